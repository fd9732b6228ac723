// Copyright 2026 The OpenClaw GitHub App Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// Identity is an ephemeral Ed25519 device identity. The private key
// never leaves the struct; callers sign through [Identity.Sign].
//
// An Identity is immutable after creation and safe for concurrent use.
type Identity struct {
	privateKey  ed25519.PrivateKey
	publicKey   ed25519.PublicKey
	fingerprint string
}

// Generate creates a fresh identity from the system CSPRNG. The
// fingerprint is the lowercase hex SHA-256 digest of the raw 32-byte
// public key (the fixed-size encoding, not any ASN.1 or PEM wrapper)
// so it is deterministic for a given keypair and (with overwhelming
// probability) unique across independently generated identities.
//
// A generation failure is fatal to the caller: there is no degraded
// mode without a working identity.
func Generate() (*Identity, error) {
	publicKey, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("identity: generating device keypair: %w", err)
	}

	digest := sha256.Sum256(publicKey)

	return &Identity{
		privateKey:  privateKey,
		publicKey:   publicKey,
		fingerprint: hex.EncodeToString(digest[:]),
	}, nil
}

// Sign produces a detached Ed25519 signature over the exact byte
// sequence of payload. No hashing is applied beyond what Ed25519
// itself performs.
func (id *Identity) Sign(payload []byte) []byte {
	return ed25519.Sign(id.privateKey, payload)
}

// Fingerprint returns the device fingerprint: lowercase hex SHA-256 of
// the raw public key.
func (id *Identity) Fingerprint() string {
	return id.fingerprint
}

// PublicKey returns the raw Ed25519 public key.
func (id *Identity) PublicKey() ed25519.PublicKey {
	return id.publicKey
}

// PublicKeyBase64 returns the raw public key in standard base64, the
// encoding used for the device block on the wire.
func (id *Identity) PublicKeyBase64() string {
	return base64.StdEncoding.EncodeToString(id.publicKey)
}
