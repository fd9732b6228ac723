// Copyright 2026 The OpenClaw GitHub App Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"os"
	"path/filepath"
	"testing"
)

func TestReadFromPathTrimsWhitespace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	if err := os.WriteFile(path, []byte("  tok-123\n"), 0o600); err != nil {
		t.Fatalf("writing secret file: %v", err)
	}

	buffer, err := ReadFromPath(path)
	if err != nil {
		t.Fatalf("ReadFromPath: %v", err)
	}
	defer buffer.Close()

	if got := buffer.String(); got != "tok-123" {
		t.Fatalf("secret = %q, want %q", got, "tok-123")
	}
}

func TestReadFromPathEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	if err := os.WriteFile(path, []byte("  \n"), 0o600); err != nil {
		t.Fatalf("writing secret file: %v", err)
	}
	if _, err := ReadFromPath(path); err == nil {
		t.Fatal("ReadFromPath accepted a whitespace-only file")
	}
}

func TestReadFromPathMissingFile(t *testing.T) {
	if _, err := ReadFromPath(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatal("ReadFromPath accepted a missing file")
	}
}

func TestFromEnvironmentScrubsVariable(t *testing.T) {
	const name = "OPENCLAW_TEST_SECRET"
	t.Setenv(name, "env-secret")

	buffer, err := FromEnvironment(name)
	if err != nil {
		t.Fatalf("FromEnvironment: %v", err)
	}
	defer buffer.Close()

	if got := buffer.String(); got != "env-secret" {
		t.Fatalf("secret = %q", got)
	}
	if _, still := os.LookupEnv(name); still {
		t.Fatal("variable still set after capture")
	}
}

func TestFromEnvironmentUnset(t *testing.T) {
	if _, err := FromEnvironment("OPENCLAW_TEST_UNSET"); err == nil {
		t.Fatal("FromEnvironment accepted an unset variable")
	}
}
