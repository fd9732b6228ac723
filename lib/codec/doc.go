// Copyright 2026 The OpenClaw GitHub App Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the standard CBOR encoding configuration.
//
// The app uses two serialization formats with a clear boundary:
//
//   - JSON for external interfaces: the gateway wire protocol, the
//     GitHub REST and webhook payloads, and CLI output.
//   - CBOR for internal state: workspace cache manifests and the
//     webhook delivery journal.
//
// Every package encodes through this one configuration so identical
// logical data always produces identical bytes. The encoder uses Core
// Deterministic Encoding (RFC 8949 §4.2): sorted map keys, smallest
// integer encoding, no indefinite-length items. Deterministic bytes
// make manifest digests stable, so a cache entry can be verified by
// re-hashing.
//
// Buffer-oriented use:
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// Stream-oriented use:
//
//	encoder := codec.NewEncoder(file)
//	decoder := codec.NewDecoder(file)
//
// Internal-only types carry `cbor` struct tags; types that also cross
// a JSON boundary carry `json` tags, which fxamacker/cbor reads as a
// fallback. Never put both tags on one field.
package codec
