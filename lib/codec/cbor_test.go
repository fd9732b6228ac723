// Copyright 2026 The OpenClaw GitHub App Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"strings"
	"testing"
)

// journalEntry is a representative internal-only type using cbor
// struct tags.
type journalEntry struct {
	Delivery string `cbor:"delivery"`
	SeenAt   int64  `cbor:"seenAt"`
	Count    int    `cbor:"count,omitempty"`
}

// cacheSummary uses json struct tags, the convention for types that
// also cross a JSON boundary.
type cacheSummary struct {
	Key   string `json:"key"`
	Files int    `json:"files"`
}

func TestMarshalRoundtrip(t *testing.T) {
	original := journalEntry{Delivery: "d-42", SeenAt: 1700000000000, Count: 3}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded journalEntry
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded != original {
		t.Fatalf("roundtrip mismatch: got %+v, want %+v", decoded, original)
	}
}

func TestMarshalDeterministic(t *testing.T) {
	entry := journalEntry{Delivery: "d-7", SeenAt: 1}

	first, err := Marshal(entry)
	if err != nil {
		t.Fatalf("first Marshal: %v", err)
	}
	second, err := Marshal(entry)
	if err != nil {
		t.Fatalf("second Marshal: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("deterministic encoding violated: %x != %x", first, second)
	}
}

func TestJSONTagFallback(t *testing.T) {
	data, err := Marshal(cacheSummary{Key: "repo-main", Files: 12})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	diag, err := Diagnose(data)
	if err != nil {
		t.Fatalf("Diagnose: %v", err)
	}
	if !strings.Contains(diag, `"key"`) || !strings.Contains(diag, `"repo-main"`) {
		t.Fatalf("diagnostic %q does not use the json field names", diag)
	}
}

func TestStreamRoundtrip(t *testing.T) {
	entries := []journalEntry{
		{Delivery: "d-1", SeenAt: 1},
		{Delivery: "d-2", SeenAt: 2},
		{Delivery: "d-3", SeenAt: 3, Count: 9},
	}

	var buf bytes.Buffer
	encoder := NewEncoder(&buf)
	for _, entry := range entries {
		if err := encoder.Encode(entry); err != nil {
			t.Fatalf("Encode: %v", err)
		}
	}

	decoder := NewDecoder(&buf)
	for index, want := range entries {
		var got journalEntry
		if err := decoder.Decode(&got); err != nil {
			t.Fatalf("Decode[%d]: %v", index, err)
		}
		if got != want {
			t.Fatalf("Decode[%d] = %+v, want %+v", index, got, want)
		}
	}
}

func TestUnmarshalIgnoresUnknownFields(t *testing.T) {
	data, err := Marshal(map[string]any{
		"delivery": "d-9",
		"seenAt":   int64(5),
		"extra":    "from a newer writer",
	})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var entry journalEntry
	if err := Unmarshal(data, &entry); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if entry.Delivery != "d-9" || entry.SeenAt != 5 {
		t.Fatalf("decoded %+v", entry)
	}
}
