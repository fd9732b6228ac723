// Copyright 2026 The OpenClaw GitHub App Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"bytes"
	"testing"
)

func TestNewFromBytesZeroesSource(t *testing.T) {
	source := []byte("gateway-token")
	buffer, err := NewFromBytes(source)
	if err != nil {
		t.Fatalf("NewFromBytes: %v", err)
	}
	defer buffer.Close()

	if got := buffer.String(); got != "gateway-token" {
		t.Fatalf("buffer = %q, want the original secret", got)
	}
	if !bytes.Equal(source, make([]byte, len(source))) {
		t.Fatalf("source slice still holds %q after capture", source)
	}
}

func TestNewFromBytesEmpty(t *testing.T) {
	if _, err := NewFromBytes(nil); err == nil {
		t.Fatal("NewFromBytes accepted an empty source")
	}
}

func TestBufferEqual(t *testing.T) {
	buffer, err := NewFromBytes([]byte("hunter2"))
	if err != nil {
		t.Fatalf("NewFromBytes: %v", err)
	}
	defer buffer.Close()

	if !buffer.Equal([]byte("hunter2")) {
		t.Fatal("Equal rejected the matching value")
	}
	if buffer.Equal([]byte("hunter3")) {
		t.Fatal("Equal accepted a different value")
	}
	if buffer.Equal([]byte("hunter")) {
		t.Fatal("Equal accepted a shorter value")
	}
}

func TestBufferLen(t *testing.T) {
	buffer, err := NewFromBytes([]byte("abc"))
	if err != nil {
		t.Fatalf("NewFromBytes: %v", err)
	}
	defer buffer.Close()
	if buffer.Len() != 3 {
		t.Fatalf("Len = %d, want 3", buffer.Len())
	}
}

func TestBufferCloseIsIdempotent(t *testing.T) {
	buffer, err := NewFromBytes([]byte("abc"))
	if err != nil {
		t.Fatalf("NewFromBytes: %v", err)
	}
	if err := buffer.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := buffer.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestBufferReadAfterClosePanics(t *testing.T) {
	buffer, err := NewFromBytes([]byte("abc"))
	if err != nil {
		t.Fatalf("NewFromBytes: %v", err)
	}
	buffer.Close()

	defer func() {
		if recover() == nil {
			t.Fatal("Bytes after Close did not panic")
		}
	}()
	buffer.Bytes()
}

func TestZero(t *testing.T) {
	data := []byte{1, 2, 3}
	Zero(data)
	if !bytes.Equal(data, []byte{0, 0, 0}) {
		t.Fatalf("Zero left %v", data)
	}
}
