// Copyright 2026 The OpenClaw GitHub App Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"crypto/ed25519"
	"encoding/base64"
	"testing"

	"github.com/offloadmywork/openclaw-github-app/lib/identity"
)

func TestConnectAssertionChallengeForm(t *testing.T) {
	got := connectAssertion("abc123", "github-app", "backend", "operator",
		[]string{"agent.run", "repo.read"}, 1700000000000, "tok", "nonce-7")
	want := "v2|abc123|github-app|backend|operator|agent.run,repo.read|1700000000000|tok|nonce-7"
	if got != want {
		t.Fatalf("assertion = %q, want %q", got, want)
	}
}

func TestConnectAssertionLegacyForm(t *testing.T) {
	got := connectAssertion("abc123", "github-app", "backend", "operator",
		[]string{"agent.run"}, 1700000000000, "", "")
	want := "v1|abc123|github-app|backend|operator|agent.run|1700000000000|"
	if got != want {
		t.Fatalf("assertion = %q, want %q", got, want)
	}
}

func TestBuildDeviceBlockSignatureVerifies(t *testing.T) {
	device, err := identity.Generate()
	if err != nil {
		t.Fatalf("generating identity: %v", err)
	}

	block := buildDeviceBlock(device, "github-app", "backend", "operator",
		[]string{"agent.run"}, 1700000000000, "tok", "nonce-7")

	if block.ID != device.Fingerprint() {
		t.Fatalf("block id = %q, want fingerprint %q", block.ID, device.Fingerprint())
	}
	if block.Nonce != "nonce-7" {
		t.Fatalf("block nonce = %q", block.Nonce)
	}

	publicKey, err := base64.StdEncoding.DecodeString(block.PublicKey)
	if err != nil {
		t.Fatalf("decoding public key: %v", err)
	}
	signature, err := base64.StdEncoding.DecodeString(block.Signature)
	if err != nil {
		t.Fatalf("decoding signature: %v", err)
	}

	assertion := connectAssertion(block.ID, "github-app", "backend", "operator",
		[]string{"agent.run"}, block.SignedAt, "tok", block.Nonce)
	if !ed25519.Verify(ed25519.PublicKey(publicKey), []byte(assertion), signature) {
		t.Fatal("signature does not verify against the canonical assertion")
	}
}

func TestBuildDeviceBlockLegacyOmitsNonce(t *testing.T) {
	device, err := identity.Generate()
	if err != nil {
		t.Fatalf("generating identity: %v", err)
	}

	block := buildDeviceBlock(device, "github-app", "backend", "operator",
		[]string{"agent.run"}, 1700000000000, "", "")
	if block.Nonce != "" {
		t.Fatalf("legacy block nonce = %q, want empty", block.Nonce)
	}

	publicKey, _ := base64.StdEncoding.DecodeString(block.PublicKey)
	signature, _ := base64.StdEncoding.DecodeString(block.Signature)
	assertion := connectAssertion(block.ID, "github-app", "backend", "operator",
		[]string{"agent.run"}, block.SignedAt, "", "")
	if !ed25519.Verify(ed25519.PublicKey(publicKey), []byte(assertion), signature) {
		t.Fatal("legacy signature does not verify")
	}
}
