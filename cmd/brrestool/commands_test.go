package main

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/brres"
	"github.com/meigma/brres/internal/storage"
	"github.com/meigma/brres/internal/testutil"
)

// writeCourse saves a container with a model, two textures and an animation.
func writeCourse(tb testing.TB, dir string) string {
	tb.Helper()

	path := filepath.Join(dir, "course.brres")
	b := brres.New(path)
	b.AddModel(testutil.Model(tb, "course"))
	b.AddTexture(testutil.Texture(tb, "road", 1), true)
	b.AddTexture(testutil.Texture(tb, "grass", 2), true)
	b.AddColorAnim(testutil.ColorAnim(tb, "glow", "water"))
	require.NoError(tb, b.Save())
	return path
}

// writeOpaque saves a container whose only texture uses an unknown version.
func writeOpaque(tb testing.TB, dir string) string {
	tb.Helper()

	b := brres.New("v7.brres")
	b.AddTexture(testutil.Texture(tb, "t", 1), true)
	data, err := b.Pack()
	require.NoError(tb, err)
	binary.BigEndian.PutUint32(data[0x80+8:], 7)
	return testutil.WriteFile(tb, dir, "v7.brres", data)
}

func run(tb testing.TB, args ...string) (string, error) {
	tb.Helper()

	var stdout, stderr bytes.Buffer
	_, err := newApp(&stdout, &stderr).Parse(args)
	return stdout.String(), err
}

func TestInfo(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	course := writeCourse(t, dir)
	opaque := writeOpaque(t, dir)

	out, err := run(t, "--workers", "2", "info", course, opaque)
	require.NoError(t, err)
	assert.Contains(t, out, "Container: "+course)
	assert.Contains(t, out, "compression: none, sub-files: 4")
	assert.Contains(t, out, "3DModels(NW4R): course")
	assert.Contains(t, out, "Textures(NW4R): road, grass")
	assert.Contains(t, out, "AnmClr(NW4R): glow")
	assert.Contains(t, out, "digest: sha256:")
	assert.Contains(t, out, "opaque: Textures(NW4R)/t (TEX0 v7")

	_, err = run(t, "--strict", "info", opaque)
	assert.ErrorIs(t, err, errFailed)
}

func TestVerify(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	course := writeCourse(t, dir)
	opaque := writeOpaque(t, dir)

	out, err := run(t, "verify", course)
	require.NoError(t, err)
	assert.Contains(t, out, "OK   "+course)
	assert.Contains(t, out, "identical")

	// The opaque texture is written back in place with its name pool.
	out, err = run(t, "verify", course, opaque)
	require.NoError(t, err)
	assert.Contains(t, out, "OK   "+opaque+" (1 sub-files, identical)")
	assert.NotContains(t, out, "FAIL")

	out, err = run(t, "--drop-opaque", "verify", opaque)
	require.NoError(t, err)
	assert.Contains(t, out, "(1 sub-files, stable)")

	bad := testutil.WriteFile(t, dir, "bad.brres", []byte("bres\x00\x00"))
	out, err = run(t, "verify", course, bad)
	require.ErrorIs(t, err, errFailed)
	assert.Contains(t, out, "FAIL "+bad)
}

func TestRepackInPlace(t *testing.T) {
	t.Parallel()

	course := writeCourse(t, t.TempDir())

	out, err := run(t, "--compression", "zstd", "repack", course)
	require.NoError(t, err)
	assert.Contains(t, out, "repacked 1 of 1 files")

	raw, err := os.ReadFile(course)
	require.NoError(t, err)
	assert.Equal(t, brres.CompressionZstd, storage.Detect(raw))

	// Nothing changes the second time.
	out, err = run(t, "--compression", "zstd", "repack", course)
	require.NoError(t, err)
	assert.Contains(t, out, "repacked 0 of 1 files")

	b, err := brres.Open(course)
	require.NoError(t, err)
	assert.Equal(t, []string{"road", "grass"}, b.TextureNames())
}

func TestRepackOutputDir(t *testing.T) {
	t.Parallel()

	course := writeCourse(t, t.TempDir())
	outDir := t.TempDir()

	out, err := run(t, "repack", "-o", outDir, course)
	require.NoError(t, err)
	assert.Contains(t, out, "into "+outDir)

	want, err := os.ReadFile(course)
	require.NoError(t, err)
	got, err := os.ReadFile(filepath.Join(outDir, "course.brres"))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestFlagsOverrideConfig(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	course := writeCourse(t, dir)
	cfg := testutil.WriteFile(t, dir, "cfg.yaml", []byte("max_file_size: 16B\n"))

	_, err := run(t, "-c", cfg, "info", course)
	require.ErrorIs(t, err, errFailed)

	_, err = run(t, "-c", cfg, "--max-file-size", "1MiB", "info", course)
	require.NoError(t, err)

	_, err = run(t, "--log-level", "loud", "info", course)
	assert.Error(t, err)
}
