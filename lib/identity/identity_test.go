// Copyright 2026 The OpenClaw GitHub App Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func TestGenerateFingerprint(t *testing.T) {
	id, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	// The fingerprint is derived from the raw public key bytes.
	digest := sha256.Sum256(id.PublicKey())
	want := hex.EncodeToString(digest[:])
	if id.Fingerprint() != want {
		t.Errorf("Fingerprint() = %q, want %q", id.Fingerprint(), want)
	}

	// 32 bytes of SHA-256 as lowercase hex.
	if len(id.Fingerprint()) != 64 {
		t.Errorf("fingerprint length = %d, want 64", len(id.Fingerprint()))
	}
}

func TestGenerateDistinctIdentities(t *testing.T) {
	first, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	second, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if first.Fingerprint() == second.Fingerprint() {
		t.Error("two independently generated identities share a fingerprint")
	}
}

func TestSignVerify(t *testing.T) {
	id, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	payload := []byte("v2|abc|github-app|backend|operator|operator.read|1720000000000||nonce-1")
	signature := id.Sign(payload)

	if !ed25519.Verify(id.PublicKey(), payload, signature) {
		t.Error("signature does not verify against the identity's own public key")
	}

	other, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if ed25519.Verify(other.PublicKey(), payload, signature) {
		t.Error("signature verifies against an unrelated public key")
	}

	// A modified payload must not verify.
	tampered := append([]byte(nil), payload...)
	tampered[0] ^= 0x01
	if ed25519.Verify(id.PublicKey(), tampered, signature) {
		t.Error("signature verifies against a tampered payload")
	}
}
