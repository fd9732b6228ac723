// Copyright 2026 The OpenClaw GitHub App Authors
// SPDX-License-Identifier: Apache-2.0

package workcache

import (
	"archive/tar"
	"bytes"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func testCache(t *testing.T, compression Compression) *Cache {
	t.Helper()
	cache, err := New(Options{
		Dir:         t.TempDir(),
		Compression: compression,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return cache
}

// populateWorkspace lays out a small tree with nesting and a symlink.
func populateWorkspace(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	files := map[string]string{
		"README.md":        "# project\n",
		"src/main.go":      "package main\n\nfunc main() {}\n",
		"src/deep/util.go": "package deep\n",
	}
	for name, content := range files {
		path := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := os.Symlink("README.md", filepath.Join(root, "readme-link")); err != nil {
		t.Fatalf("symlink: %v", err)
	}
	return root
}

func TestSaveRestoreRoundtrip(t *testing.T) {
	for _, compression := range []Compression{CompressionNone, CompressionLZ4, CompressionZstd} {
		t.Run(string(compression), func(t *testing.T) {
			cache := testCache(t, compression)
			root := populateWorkspace(t)

			if err := cache.Save("acme/widgets#12", root); err != nil {
				t.Fatalf("Save: %v", err)
			}
			if !cache.Has("acme/widgets#12") {
				t.Fatal("Has = false after Save")
			}

			dest := t.TempDir()
			if err := cache.Restore("acme/widgets#12", dest); err != nil {
				t.Fatalf("Restore: %v", err)
			}

			content, err := os.ReadFile(filepath.Join(dest, "src", "deep", "util.go"))
			if err != nil {
				t.Fatalf("reading restored file: %v", err)
			}
			if string(content) != "package deep\n" {
				t.Fatalf("restored content = %q", content)
			}

			link, err := os.Readlink(filepath.Join(dest, "readme-link"))
			if err != nil {
				t.Fatalf("reading restored symlink: %v", err)
			}
			if link != "README.md" {
				t.Fatalf("symlink target = %q", link)
			}
		})
	}
}

func TestRestoreMiss(t *testing.T) {
	cache := testCache(t, CompressionZstd)
	if err := cache.Restore("acme/widgets#99", t.TempDir()); !errors.Is(err, ErrMiss) {
		t.Fatalf("Restore = %v, want ErrMiss", err)
	}
}

func TestRestoreRejectsTamperedArchive(t *testing.T) {
	cache := testCache(t, CompressionZstd)
	root := populateWorkspace(t)
	if err := cache.Save("acme/widgets#12", root); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Flip a byte in the stored archive.
	archivePath := cache.archivePath("acme/widgets#12")
	data, err := os.ReadFile(archivePath)
	if err != nil {
		t.Fatalf("reading archive: %v", err)
	}
	data[len(data)/2] ^= 0xff
	if err := os.WriteFile(archivePath, data, 0o644); err != nil {
		t.Fatalf("writing tampered archive: %v", err)
	}

	dest := t.TempDir()
	err = cache.Restore("acme/widgets#12", dest)
	if err == nil || !strings.Contains(err.Error(), "digest mismatch") {
		t.Fatalf("Restore = %v, want a digest mismatch", err)
	}

	// Fail-closed: nothing may have been extracted.
	entries, readErr := os.ReadDir(dest)
	if readErr != nil {
		t.Fatalf("reading destination: %v", readErr)
	}
	if len(entries) != 0 {
		t.Fatalf("destination holds %d entries after failed restore", len(entries))
	}
}

func TestSaveReplacesExistingSnapshot(t *testing.T) {
	cache := testCache(t, CompressionZstd)
	root := t.TempDir()

	if err := os.WriteFile(filepath.Join(root, "state.txt"), []byte("one"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := cache.Save("k", root); err != nil {
		t.Fatalf("first Save: %v", err)
	}

	if err := os.WriteFile(filepath.Join(root, "state.txt"), []byte("two"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := cache.Save("k", root); err != nil {
		t.Fatalf("second Save: %v", err)
	}

	dest := t.TempDir()
	if err := cache.Restore("k", dest); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	content, err := os.ReadFile(filepath.Join(dest, "state.txt"))
	if err != nil {
		t.Fatalf("reading restored file: %v", err)
	}
	if string(content) != "two" {
		t.Fatalf("restored content = %q, want the second snapshot", content)
	}
}

func TestRemove(t *testing.T) {
	cache := testCache(t, CompressionZstd)
	if err := cache.Save("k", populateWorkspace(t)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := cache.Remove("k"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if cache.Has("k") {
		t.Fatal("Has = true after Remove")
	}
	// Removing a missing entry is not an error.
	if err := cache.Remove("k"); err != nil {
		t.Fatalf("second Remove: %v", err)
	}
}

func TestEvict(t *testing.T) {
	cache := testCache(t, CompressionZstd)
	root := populateWorkspace(t)
	if err := cache.Save("old", root); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := cache.Save("fresh", root); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Everything was created moments ago, so a generous max age keeps
	// both entries.
	removed, err := cache.Evict(time.Hour)
	if err != nil {
		t.Fatalf("Evict: %v", err)
	}
	if removed != 0 {
		t.Fatalf("Evict removed %d fresh entries", removed)
	}

	// A negative max age puts the cutoff in the future and evicts
	// everything.
	removed, err = cache.Evict(-time.Hour)
	if err != nil {
		t.Fatalf("Evict: %v", err)
	}
	if removed != 2 {
		t.Fatalf("Evict removed %d entries, want 2", removed)
	}
	if cache.Has("old") || cache.Has("fresh") {
		t.Fatal("entries survive a full eviction")
	}
}

func TestSecurePathRejectsEscapes(t *testing.T) {
	dest := t.TempDir()
	for _, name := range []string{"../outside", "/etc/passwd", "a/../../outside"} {
		if _, err := securePath(dest, name); err == nil {
			t.Errorf("securePath accepted %q", name)
		}
	}
	if _, err := securePath(dest, "src/main.go"); err != nil {
		t.Errorf("securePath rejected a normal path: %v", err)
	}
}

func TestExtractRejectsWriteThroughSymlink(t *testing.T) {
	outside := t.TempDir()

	// A symlink pointing outside the destination followed by a file
	// beneath it. The file's own path is clean, so only the symlink
	// tracking can catch the escape.
	var raw bytes.Buffer
	tarWriter := tar.NewWriter(&raw)
	if err := tarWriter.WriteHeader(&tar.Header{
		Typeflag: tar.TypeSymlink,
		Name:     "exit",
		Linkname: outside,
	}); err != nil {
		t.Fatalf("writing symlink header: %v", err)
	}
	content := []byte("escaped")
	if err := tarWriter.WriteHeader(&tar.Header{
		Typeflag: tar.TypeReg,
		Name:     "exit/escape.txt",
		Mode:     0o644,
		Size:     int64(len(content)),
	}); err != nil {
		t.Fatalf("writing file header: %v", err)
	}
	if _, err := tarWriter.Write(content); err != nil {
		t.Fatalf("writing file content: %v", err)
	}
	if err := tarWriter.Close(); err != nil {
		t.Fatalf("closing archive: %v", err)
	}

	dest := t.TempDir()
	err := extractArchive(bytes.NewReader(raw.Bytes()), dest, CompressionNone)
	if err == nil || !strings.Contains(err.Error(), "under a symlink") {
		t.Fatalf("extractArchive = %v, want symlink rejection", err)
	}
	if _, statErr := os.Stat(filepath.Join(outside, "escape.txt")); !os.IsNotExist(statErr) {
		t.Fatalf("file escaped the destination: stat = %v", statErr)
	}
}

func TestParseCompression(t *testing.T) {
	for _, name := range []string{"none", "lz4", "zstd"} {
		if _, err := ParseCompression(name); err != nil {
			t.Errorf("ParseCompression(%q): %v", name, err)
		}
	}
	if _, err := ParseCompression("brotli"); err == nil {
		t.Error("ParseCompression accepted an unknown algorithm")
	}
}
