// Copyright 2026 The OpenClaw GitHub App Authors
// SPDX-License-Identifier: Apache-2.0

package workcache

import (
	"archive/tar"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/offloadmywork/openclaw-github-app/lib/codec"
)

// ErrMiss is returned by Restore when no snapshot exists for the key.
var ErrMiss = errors.New("workcache: no snapshot for key")

// manifest describes one cache entry. Internal-only, so cbor tags.
type manifest struct {
	Key         string `cbor:"key"`
	CreatedAt   int64  `cbor:"createdAt"`
	Compression string `cbor:"compression"`
	ArchiveSize int64  `cbor:"archiveSize"`
	// ArchiveSHA256 is the hex digest of the archive file bytes
	// (post-compression). Restore verifies it before extracting.
	ArchiveSHA256 string `cbor:"archiveSha256"`
	FileCount     int    `cbor:"fileCount"`
}

// Cache stores workspace snapshots under a directory.
type Cache struct {
	dir         string
	compression Compression
	logger      *slog.Logger
}

// Options configures a Cache.
type Options struct {
	// Dir is the cache directory. Created if missing.
	Dir string

	// Compression selects the snapshot compression. Defaults to zstd.
	Compression Compression

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// New opens (and if needed creates) a snapshot cache.
func New(options Options) (*Cache, error) {
	if options.Dir == "" {
		return nil, errors.New("workcache: Dir is required")
	}
	if options.Compression == "" {
		options.Compression = CompressionZstd
	}
	if _, err := ParseCompression(string(options.Compression)); err != nil {
		return nil, err
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	if err := os.MkdirAll(options.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("workcache: creating %s: %w", options.Dir, err)
	}
	return &Cache{
		dir:         options.Dir,
		compression: options.Compression,
		logger:      options.Logger,
	}, nil
}

// entryName maps a session key to a filesystem-safe entry basename.
// Keys carry repository slashes and issue hashes, so the name is a
// digest, not the key itself.
func entryName(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:16]
}

func (c *Cache) archivePath(key string) string {
	return filepath.Join(c.dir, entryName(key)+".snap")
}

func (c *Cache) manifestPath(key string) string {
	return filepath.Join(c.dir, entryName(key)+".manifest")
}

// Save snapshots root under key, replacing any prior snapshot for the
// same key. The archive and manifest are written to temp files and
// renamed, so a crash mid-save never leaves a readable half-entry.
func (c *Cache) Save(key, root string) error {
	if key == "" {
		return errors.New("workcache: key is required")
	}

	archiveTemp, err := os.CreateTemp(c.dir, "snap-*")
	if err != nil {
		return fmt.Errorf("workcache: creating temp archive: %w", err)
	}
	defer os.Remove(archiveTemp.Name())
	defer archiveTemp.Close()

	hasher := sha256.New()
	fileCount, err := writeArchive(io.MultiWriter(archiveTemp, hasher), root, c.compression)
	if err != nil {
		return err
	}
	if err := archiveTemp.Close(); err != nil {
		return fmt.Errorf("workcache: closing temp archive: %w", err)
	}

	info, err := os.Stat(archiveTemp.Name())
	if err != nil {
		return fmt.Errorf("workcache: sizing archive: %w", err)
	}

	entry := manifest{
		Key:           key,
		CreatedAt:     time.Now().UnixMilli(),
		Compression:   string(c.compression),
		ArchiveSize:   info.Size(),
		ArchiveSHA256: hex.EncodeToString(hasher.Sum(nil)),
		FileCount:     fileCount,
	}
	encoded, err := codec.Marshal(entry)
	if err != nil {
		return fmt.Errorf("workcache: encoding manifest: %w", err)
	}

	manifestTemp := archiveTemp.Name() + ".manifest"
	if err := os.WriteFile(manifestTemp, encoded, 0o644); err != nil {
		return fmt.Errorf("workcache: writing temp manifest: %w", err)
	}
	defer os.Remove(manifestTemp)

	// Archive first, manifest last: a reader that sees the manifest
	// always finds a complete archive behind it.
	if err := os.Rename(archiveTemp.Name(), c.archivePath(key)); err != nil {
		return fmt.Errorf("workcache: installing archive: %w", err)
	}
	if err := os.Rename(manifestTemp, c.manifestPath(key)); err != nil {
		return fmt.Errorf("workcache: installing manifest: %w", err)
	}

	c.logger.Debug("workspace snapshot saved",
		"key", key, "files", fileCount, "bytes", entry.ArchiveSize)
	return nil
}

// Restore extracts the snapshot for key into dest. The archive digest
// is verified before anything is extracted; on any verification or
// decode failure dest is left untouched and the caller should start
// from a cold workspace. Returns ErrMiss when no snapshot exists.
func (c *Cache) Restore(key, dest string) error {
	entry, err := c.loadManifest(key)
	if err != nil {
		return err
	}

	compression, err := ParseCompression(entry.Compression)
	if err != nil {
		return err
	}

	archivePath := c.archivePath(key)
	if err := verifyDigest(archivePath, entry.ArchiveSHA256); err != nil {
		return err
	}

	archive, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("workcache: opening archive: %w", err)
	}
	defer archive.Close()

	if err := extractArchive(archive, dest, compression); err != nil {
		return err
	}

	c.logger.Debug("workspace snapshot restored", "key", key, "files", entry.FileCount)
	return nil
}

// Has reports whether a snapshot exists for key.
func (c *Cache) Has(key string) bool {
	_, err := os.Stat(c.manifestPath(key))
	return err == nil
}

// Remove drops the snapshot for key, if any.
func (c *Cache) Remove(key string) error {
	var firstError error
	for _, path := range []string{c.manifestPath(key), c.archivePath(key)} {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) && firstError == nil {
			firstError = fmt.Errorf("workcache: removing %s: %w", path, err)
		}
	}
	return firstError
}

// Evict removes snapshots created more than maxAge ago. Returns the
// number of entries removed.
func (c *Cache) Evict(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return 0, fmt.Errorf("workcache: reading cache dir: %w", err)
	}

	cutoff := time.Now().Add(-maxAge).UnixMilli()
	removed := 0
	for _, dirEntry := range entries {
		name := dirEntry.Name()
		if !strings.HasSuffix(name, ".manifest") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(c.dir, name))
		if err != nil {
			continue
		}
		var entry manifest
		if err := codec.Unmarshal(data, &entry); err != nil {
			// An unreadable manifest is itself eviction-worthy.
			os.Remove(filepath.Join(c.dir, name))
			continue
		}
		if entry.CreatedAt >= cutoff {
			continue
		}
		if err := c.Remove(entry.Key); err != nil {
			return removed, err
		}
		removed++
	}

	if removed > 0 {
		c.logger.Info("evicted workspace snapshots", "count", removed, "max_age", maxAge)
	}
	return removed, nil
}

func (c *Cache) loadManifest(key string) (*manifest, error) {
	data, err := os.ReadFile(c.manifestPath(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrMiss, key)
	}
	if err != nil {
		return nil, fmt.Errorf("workcache: reading manifest: %w", err)
	}
	var entry manifest
	if err := codec.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("workcache: decoding manifest: %w", err)
	}
	return &entry, nil
}

// verifyDigest hashes the file and compares against want (hex).
func verifyDigest(path, want string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("workcache: opening archive: %w", err)
	}
	defer file.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return fmt.Errorf("workcache: hashing archive: %w", err)
	}
	got := hex.EncodeToString(hasher.Sum(nil))
	if got != want {
		return fmt.Errorf("workcache: archive digest mismatch: got %s, want %s", got, want)
	}
	return nil
}

// writeArchive tars root into w through the selected compression.
// Returns the number of regular files archived.
func writeArchive(w io.Writer, root string, compression Compression) (int, error) {
	compressed, err := compressingWriter(w, compression)
	if err != nil {
		return 0, err
	}

	tarWriter := tar.NewWriter(compressed)
	fileCount := 0

	walkErr := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		relative, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if relative == "." {
			return nil
		}

		info, err := entry.Info()
		if err != nil {
			return err
		}

		var link string
		if info.Mode()&fs.ModeSymlink != 0 {
			if link, err = os.Readlink(path); err != nil {
				return err
			}
		}

		header, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(relative)

		if err := tarWriter.WriteHeader(header); err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		file, err := os.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()
		if _, err := io.Copy(tarWriter, file); err != nil {
			return err
		}
		fileCount++
		return nil
	})
	if walkErr != nil {
		return 0, fmt.Errorf("workcache: archiving %s: %w", root, walkErr)
	}

	if err := tarWriter.Close(); err != nil {
		return 0, fmt.Errorf("workcache: finishing archive: %w", err)
	}
	if err := compressed.Close(); err != nil {
		return 0, fmt.Errorf("workcache: flushing compression: %w", err)
	}
	return fileCount, nil
}

// extractArchive untars r into dest. Entry names must stay inside
// dest; anything escaping (absolute paths, "..") aborts extraction.
func extractArchive(r io.Reader, dest string, compression Compression) error {
	decompressed, err := decompressingReader(r, compression)
	if err != nil {
		return err
	}
	defer decompressed.Close()

	tarReader := tar.NewReader(decompressed)
	// Extracted symlinks by slash-normalized name. A later entry must
	// not have one of these as an ancestor: writing through a symlink
	// would land outside dest even though its own path looks clean.
	symlinks := make(map[string]bool)
	for {
		header, err := tarReader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("workcache: reading archive: %w", err)
		}

		target, err := securePath(dest, header.Name)
		if err != nil {
			return err
		}
		name := path.Clean(filepath.ToSlash(header.Name))
		if underSymlink(symlinks, name) {
			return fmt.Errorf("workcache: archive entry %s is under a symlink", header.Name)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, fs.FileMode(header.Mode)&fs.ModePerm); err != nil {
				return fmt.Errorf("workcache: creating directory: %w", err)
			}

		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("workcache: creating parent directory: %w", err)
			}
			file, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, fs.FileMode(header.Mode)&fs.ModePerm)
			if err != nil {
				return fmt.Errorf("workcache: creating file: %w", err)
			}
			if _, err := io.Copy(file, tarReader); err != nil {
				file.Close()
				return fmt.Errorf("workcache: extracting %s: %w", header.Name, err)
			}
			if err := file.Close(); err != nil {
				return fmt.Errorf("workcache: closing %s: %w", header.Name, err)
			}

		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("workcache: creating parent directory: %w", err)
			}
			if err := os.Symlink(header.Linkname, target); err != nil {
				return fmt.Errorf("workcache: creating symlink: %w", err)
			}
			symlinks[name] = true

		default:
			// Device nodes, fifos, and the like never belong in a
			// workspace snapshot.
			return fmt.Errorf("workcache: unsupported entry type %d for %s", header.Typeflag, header.Name)
		}
	}
}

// underSymlink reports whether any ancestor of name was extracted as
// a symlink earlier in the archive.
func underSymlink(symlinks map[string]bool, name string) bool {
	for dir := path.Dir(name); dir != "." && dir != "/"; dir = path.Dir(dir) {
		if symlinks[dir] {
			return true
		}
	}
	return false
}

// securePath resolves name relative to dest and rejects escapes.
func securePath(dest, name string) (string, error) {
	if filepath.IsAbs(name) {
		return "", fmt.Errorf("workcache: absolute path in archive: %s", name)
	}
	target := filepath.Join(dest, filepath.FromSlash(name))
	if target != dest && !strings.HasPrefix(target, dest+string(os.PathSeparator)) {
		return "", fmt.Errorf("workcache: archive entry escapes destination: %s", name)
	}
	return target, nil
}
