// Copyright 2026 The OpenClaw GitHub App Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/offloadmywork/openclaw-github-app/lib/forge"
)

func TestAppendTranscript(t *testing.T) {
	workspace := t.TempDir()
	event := &forge.Event{Author: "mona", Body: "please fix the flaky test"}

	if err := appendTranscript(workspace, event, "Done, see the patch."); err != nil {
		t.Fatalf("appendTranscript: %v", err)
	}
	if err := appendTranscript(workspace, event, "Second answer."); err != nil {
		t.Fatalf("second appendTranscript: %v", err)
	}

	content, err := os.ReadFile(filepath.Join(workspace, "transcript.md"))
	if err != nil {
		t.Fatalf("reading transcript: %v", err)
	}
	text := string(content)
	for _, fragment := range []string{"@mona", "please fix the flaky test", "Done, see the patch.", "Second answer."} {
		if !strings.Contains(text, fragment) {
			t.Errorf("transcript missing %q", fragment)
		}
	}
	if strings.Index(text, "Done, see the patch.") > strings.Index(text, "Second answer.") {
		t.Error("transcript turns out of order")
	}
}

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	if _, err := newLogger("verbose"); err == nil {
		t.Fatal("newLogger accepted an unknown level")
	}
	if _, err := newLogger("debug"); err != nil {
		t.Fatalf("newLogger: %v", err)
	}
}
