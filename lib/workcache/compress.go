// Copyright 2026 The OpenClaw GitHub App Authors
// SPDX-License-Identifier: Apache-2.0

package workcache

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies the snapshot compression algorithm. The
// string values are stored in manifests; changing them breaks
// existing cache entries.
type Compression string

const (
	// CompressionNone stores the tar stream as-is. For workspaces
	// dominated by already-compressed content.
	CompressionNone Compression = "none"

	// CompressionLZ4 is the fast option: modest ratios, very cheap
	// decode.
	CompressionLZ4 Compression = "lz4"

	// CompressionZstd is the default: good ratios on source trees at
	// reasonable CPU cost.
	CompressionZstd Compression = "zstd"
)

// ParseCompression parses a compression name as it appears in
// configuration and manifests.
func ParseCompression(name string) (Compression, error) {
	switch Compression(name) {
	case CompressionNone, CompressionLZ4, CompressionZstd:
		return Compression(name), nil
	default:
		return "", fmt.Errorf("workcache: unknown compression %q", name)
	}
}

// nopWriteCloser adapts a plain writer to the io.WriteCloser the
// compressing paths return.
type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// compressingWriter wraps w with the selected compression. The caller
// must Close the returned writer to flush the compressed stream
// before closing w itself.
func compressingWriter(w io.Writer, compression Compression) (io.WriteCloser, error) {
	switch compression {
	case CompressionNone:
		return nopWriteCloser{w}, nil
	case CompressionLZ4:
		return lz4.NewWriter(w), nil
	case CompressionZstd:
		writer, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("workcache: zstd writer: %w", err)
		}
		return writer, nil
	default:
		return nil, fmt.Errorf("workcache: unknown compression %q", compression)
	}
}

// decompressingReader wraps r with the decoder matching compression.
func decompressingReader(r io.Reader, compression Compression) (io.ReadCloser, error) {
	switch compression {
	case CompressionNone:
		return io.NopCloser(r), nil
	case CompressionLZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	case CompressionZstd:
		reader, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("workcache: zstd reader: %w", err)
		}
		return reader.IOReadCloser(), nil
	default:
		return nil, fmt.Errorf("workcache: unknown compression %q", compression)
	}
}
