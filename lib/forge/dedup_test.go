// Copyright 2026 The OpenClaw GitHub App Authors
// SPDX-License-Identifier: Apache-2.0

package forge

import (
	"path/filepath"
	"testing"
	"time"
)

func TestJournalDeduplicates(t *testing.T) {
	journal, err := OpenJournal("", time.Hour)
	if err != nil {
		t.Fatalf("OpenJournal: %v", err)
	}

	if journal.Seen("d-1") {
		t.Fatal("fresh id reported as seen")
	}
	if !journal.Seen("d-1") {
		t.Fatal("repeated id not reported as seen")
	}
	if journal.Seen("d-2") {
		t.Fatal("unrelated id reported as seen")
	}
}

func TestJournalIgnoresEmptyID(t *testing.T) {
	journal, err := OpenJournal("", time.Hour)
	if err != nil {
		t.Fatalf("OpenJournal: %v", err)
	}
	if journal.Seen("") || journal.Seen("") {
		t.Fatal("empty delivery ids must never deduplicate")
	}
}

func TestJournalPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deliveries.cbor")

	journal, err := OpenJournal(path, time.Hour)
	if err != nil {
		t.Fatalf("OpenJournal: %v", err)
	}
	journal.Seen("d-1")

	reopened, err := OpenJournal(path, time.Hour)
	if err != nil {
		t.Fatalf("reopening journal: %v", err)
	}
	if !reopened.Seen("d-1") {
		t.Fatal("id lost across reopen")
	}
}

func TestJournalExpiresOldEntries(t *testing.T) {
	journal, err := OpenJournal("", 50*time.Millisecond)
	if err != nil {
		t.Fatalf("OpenJournal: %v", err)
	}
	journal.Seen("d-1")
	time.Sleep(80 * time.Millisecond)
	if journal.Seen("d-1") {
		t.Fatal("expired id still reported as seen")
	}
}
