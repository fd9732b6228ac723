// Copyright 2026 The OpenClaw GitHub App Authors
// SPDX-License-Identifier: Apache-2.0

// Package identity provides the ephemeral device identity used to
// authenticate gateway connections: an Ed25519 signing keypair plus a
// fingerprint derived from the public key.
//
// An [Identity] is created once per client process with [Generate] and
// is never persisted; the private key lives only in process memory
// and dies with it. The fingerprint (lowercase hex SHA-256 of the raw
// 32-byte public key) is the stable device identifier the gateway sees
// across the lifetime of one connection.
//
// Depends only on the standard library crypto packages.
package identity
