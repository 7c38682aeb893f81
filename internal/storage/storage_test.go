package storage

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressionString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "none", CompressionNone.String())
	assert.Equal(t, "zstd", CompressionZstd.String())
	assert.Equal(t, "unknown", Compression(9).String())

	for _, c := range []Compression{CompressionNone, CompressionZstd} {
		got, err := ParseCompression(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}
	got, err := ParseCompression("")
	require.NoError(t, err)
	assert.Equal(t, CompressionNone, got)

	_, err = ParseCompression("gzip")
	assert.ErrorIs(t, err, ErrUnknownCompression)
}

func TestSaveLoad(t *testing.T) {
	t.Parallel()

	data := bytes.Repeat([]byte("bres\xfe\xff"), 512)
	tests := []Compression{CompressionNone, CompressionZstd}
	for _, c := range tests {
		t.Run(c.String(), func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), "course.brres")
			require.NoError(t, Save(path, data, c))

			raw, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, c, Detect(raw))
			if c == CompressionZstd {
				assert.Less(t, len(raw), len(data))
			}

			got, gotC, err := Load(path, 0)
			require.NoError(t, err)
			assert.Equal(t, c, gotC)
			assert.Equal(t, data, got)
		})
	}
}

func TestSaveReplaces(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "a.brres")
	require.NoError(t, Save(path, []byte("first version"), CompressionNone))
	require.NoError(t, Save(path, []byte("second"), CompressionNone))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), got)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files left behind")
}

func TestLoadLimits(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	data := bytes.Repeat([]byte{0}, 4096)

	plain := filepath.Join(dir, "plain.brres")
	require.NoError(t, Save(plain, data, CompressionNone))
	_, _, err := Load(plain, 1024)
	assert.ErrorIs(t, err, ErrFileTooLarge)

	// Compressed size is under the limit, decompressed size is not.
	packed := filepath.Join(dir, "packed.brres")
	require.NoError(t, Save(packed, data, CompressionZstd))
	_, _, err = Load(packed, 1024)
	assert.ErrorIs(t, err, ErrFileTooLarge)

	got, _, err := Load(packed, 4096)
	require.NoError(t, err)
	assert.Len(t, got, 4096)

	_, _, err = Load(filepath.Join(dir, "missing.brres"), 0)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDecodeCorrupt(t *testing.T) {
	t.Parallel()

	raw := append([]byte{0x28, 0xB5, 0x2F, 0xFD}, bytes.Repeat([]byte{0xFF}, 16)...)
	_, c, err := Decode(raw, 0)
	assert.Equal(t, CompressionZstd, c)
	assert.ErrorIs(t, err, ErrDecompression)

	plain := []byte("bres")
	got, c, err := Decode(plain, 0)
	require.NoError(t, err)
	assert.Equal(t, CompressionNone, c)
	assert.Equal(t, plain, got)
}

func TestEncodeUnknown(t *testing.T) {
	t.Parallel()

	_, err := Encode([]byte("x"), Compression(7))
	assert.ErrorIs(t, err, ErrUnknownCompression)
}

func TestDecompressPoolReuse(t *testing.T) {
	t.Parallel()

	pool := NewDecompressPool(0)
	for i := range 3 {
		data := bytes.Repeat([]byte{byte(i)}, 100*(i+1))
		enc, err := Encode(data, CompressionZstd)
		require.NoError(t, err)
		got, err := pool.Decompress(enc, 0)
		require.NoError(t, err)
		assert.Equal(t, data, got)
	}
}
