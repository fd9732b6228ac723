// Copyright 2026 The OpenClaw GitHub App Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the app configuration.
//
// Configuration comes from a single YAML file named by:
//   - the OPENCLAW_CONFIG environment variable, or
//   - the --config flag passed to the command.
//
// There are no fallbacks or automatic discovery, and environment
// variables never override file values. This keeps configuration
// deterministic and auditable. The only expansion performed is
// ${VAR} / ${VAR:-default} in path fields for portability.
//
// The file may carry environment sections (development, staging,
// production) whose values override the base configuration when the
// environment matches.
package config
