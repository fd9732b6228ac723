// Copyright 2026 The OpenClaw GitHub App Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"strings"
	"sync"
)

// streamBuffer accumulates assistant output fragments for the current
// run, in arrival order. It is reset at the start of each call and
// joined when computing a fallback result. Fragments are never
// reordered or deduplicated.
type streamBuffer struct {
	mu        sync.Mutex
	fragments []string
}

func (b *streamBuffer) append(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fragments = append(b.fragments, text)
}

func (b *streamBuffer) joined() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Join(b.fragments, "")
}

func (b *streamBuffer) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fragments = nil
}

// runFuture is the one-shot completion signal for a run. Either the
// dual-phase completion response or the terminal lifecycle fallback
// settles it; whichever fires first wins and the other producer's
// attempt is a no-op. done is closed exactly once, after text and err
// are assigned.
type runFuture struct {
	once sync.Once
	done chan struct{}
	text string
	err  error
}

func newRunFuture() *runFuture {
	return &runFuture{done: make(chan struct{})}
}

func (f *runFuture) settle(text string, err error) {
	f.once.Do(func() {
		f.text = text
		f.err = err
		close(f.done)
	})
}
