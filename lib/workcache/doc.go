// Copyright 2026 The OpenClaw GitHub App Authors
// SPDX-License-Identifier: Apache-2.0

// Package workcache persists workspace snapshots between agent runs.
//
// A GitHub conversation can span many webhook deliveries, and each
// delivery triggers a fresh agent run. The cache carries the working
// directory across runs: after a run the workspace is archived under
// the conversation's session key, and the next run for the same key
// restores it instead of starting cold.
//
// Each entry is a compressed tar archive plus a CBOR manifest holding
// the session key, creation time, and the SHA-256 digest of the
// archive bytes. Restore verifies the digest before extracting
// anything, so a truncated or tampered snapshot fails closed and the
// destination stays untouched. Snapshots compress with zstd (default),
// lz4, or not at all, selected in the workspace configuration.
package workcache
