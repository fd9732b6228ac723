// Copyright 2026 The OpenClaw GitHub App Authors
// SPDX-License-Identifier: Apache-2.0

package forge

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/offloadmywork/openclaw-github-app/lib/codec"
)

// DeliveryJournal tracks webhook delivery ids so replayed or
// redelivered events are processed once. Entries expire after the
// window; GitHub redeliveries happen within minutes, so an hour of
// memory is plenty.
//
// With a path configured, the journal persists as a CBOR file and
// survives restarts. An empty path keeps it memory-only.
type DeliveryJournal struct {
	mu     sync.Mutex
	path   string
	window time.Duration
	seen   map[string]int64
}

// journalState is the on-disk shape. Internal-only, so cbor tags.
type journalState struct {
	Seen map[string]int64 `cbor:"seen"`
}

// OpenJournal loads (or starts) a delivery journal. window bounds how
// long an id is remembered.
func OpenJournal(path string, window time.Duration) (*DeliveryJournal, error) {
	if window <= 0 {
		window = time.Hour
	}
	journal := &DeliveryJournal{
		path:   path,
		window: window,
		seen:   make(map[string]int64),
	}
	if path == "" {
		return journal, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return journal, nil
	}
	if err != nil {
		return nil, fmt.Errorf("forge: reading delivery journal: %w", err)
	}
	var state journalState
	if err := codec.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("forge: decoding delivery journal: %w", err)
	}
	if state.Seen != nil {
		journal.seen = state.Seen
	}
	return journal, nil
}

// Seen records id and reports whether it was already present within
// the window. Expired entries are swept on each call.
func (j *DeliveryJournal) Seen(id string) bool {
	if id == "" {
		return false
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	now := time.Now().UnixMilli()
	cutoff := now - j.window.Milliseconds()
	for known, at := range j.seen {
		if at < cutoff {
			delete(j.seen, known)
		}
	}

	if _, duplicate := j.seen[id]; duplicate {
		return true
	}
	j.seen[id] = now
	j.persist()
	return false
}

// persist writes the journal atomically. Write failures are
// swallowed; the cost is at most one duplicate run after a restart.
// Caller holds the mutex.
func (j *DeliveryJournal) persist() {
	if j.path == "" {
		return
	}
	data, err := codec.Marshal(journalState{Seen: j.seen})
	if err != nil {
		return
	}
	temp := j.path + ".tmp"
	if err := os.WriteFile(temp, data, 0o644); err != nil {
		return
	}
	os.Rename(temp, j.path)
}
