// Package storage loads and saves container files, transparently handling
// zstd-compressed files and replacing existing files atomically.
package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/google/renameio/v2"
	"github.com/klauspost/compress/zstd"
)

var (
	// ErrFileTooLarge is returned when a file or its decompressed form
	// exceeds the configured size limit.
	ErrFileTooLarge = errors.New("brres: file exceeds size limit")

	// ErrDecompression is returned when a compressed file cannot be inflated.
	ErrDecompression = errors.New("brres: decompression failed")

	// ErrUnknownCompression is returned for an unrecognised compression name.
	ErrUnknownCompression = errors.New("brres: unknown compression")
)

// DefaultMaxFileSize bounds the size of a loaded container.
const DefaultMaxFileSize = 256 << 20

// filePerm is the mode of newly created container files.
const filePerm fs.FileMode = 0o644

var defaultPool = NewDecompressPool(0)

// Load reads the file at path and returns its decoded bytes along with the
// compression it was stored with. A maxSize of 0 disables the limit, which
// applies to both the stored and the decompressed size.
func Load(path string, maxSize uint64) ([]byte, Compression, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, CompressionNone, err
	}
	if maxSize > 0 && uint64(info.Size()) > maxSize { //nolint:gosec // size is never negative
		return nil, CompressionNone, fmt.Errorf("%s: %w", path, ErrFileTooLarge)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, CompressionNone, err
	}
	data, c, err := Decode(raw, maxSize)
	if err != nil {
		return nil, CompressionNone, fmt.Errorf("%s: %w", path, err)
	}
	return data, c, nil
}

// Decode detects the compression of raw and returns the decompressed bytes.
// Uncompressed input is returned as is.
func Decode(raw []byte, maxSize uint64) ([]byte, Compression, error) {
	c := Detect(raw)
	if c == CompressionNone {
		return raw, c, nil
	}
	data, err := defaultPool.Decompress(raw, maxSize)
	if err != nil {
		return nil, c, err
	}
	return data, c, nil
}

// Encode compresses data with c.
func Encode(data []byte, c Compression) ([]byte, error) {
	switch c {
	case CompressionNone:
		return data, nil
	case CompressionZstd:
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1), zstd.WithLowerEncoderMem(true))
		if err != nil {
			return nil, err
		}
		defer enc.Close()
		return enc.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownCompression, c)
	}
}

// Save encodes data with c and atomically replaces the file at path.
// Readers never observe a partially written file.
func Save(path string, data []byte, c Compression) error {
	out, err := Encode(data, c)
	if err != nil {
		return err
	}
	if err := renameio.WriteFile(path, out, filePerm); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}
