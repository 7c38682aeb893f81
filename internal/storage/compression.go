package storage

import (
	"bytes"
	"fmt"
)

// Compression identifies how a container file is stored on disk.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionZstd
)

// zstdMagic is the little-endian frame magic that starts every zstd stream.
var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

// String returns the human-readable name of the compression algorithm.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	default:
		return "unknown"
	}
}

// ParseCompression maps a name produced by String back to its value.
// The empty string selects CompressionNone.
func ParseCompression(s string) (Compression, error) {
	switch s {
	case "", "none":
		return CompressionNone, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return CompressionNone, fmt.Errorf("%w: %q", ErrUnknownCompression, s)
	}
}

// Detect reports the compression of data from its leading bytes.
func Detect(data []byte) Compression {
	if bytes.HasPrefix(data, zstdMagic) {
		return CompressionZstd
	}
	return CompressionNone
}
