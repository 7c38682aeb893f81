package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/brres"
	"github.com/meigma/brres/internal/storage"
	"github.com/meigma/brres/internal/testutil"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	require.NoError(t, cfg.Validate())

	limit, err := cfg.maxFileSize()
	require.NoError(t, err)
	assert.Equal(t, uint64(storage.DefaultMaxFileSize), limit)

	comp, err := cfg.compression()
	require.NoError(t, err)
	assert.Nil(t, comp)
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := testutil.WriteFile(t, dir, "brrestool.yaml", []byte(`
log_level: debug
log_format: json
workers: 3
compression: ZSTD
strict: true
drop_opaque: true
max_file_size: 64MiB
`))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, Config{
		LogLevel:    "debug",
		LogFormat:   "json",
		Workers:     3,
		Compression: "ZSTD",
		Strict:      true,
		DropOpaque:  true,
		MaxFileSize: "64MiB",
	}, cfg)

	limit, err := cfg.maxFileSize()
	require.NoError(t, err)
	assert.Equal(t, uint64(64<<20), limit)

	comp, err := cfg.compression()
	require.NoError(t, err)
	require.NotNil(t, comp)
	assert.Equal(t, brres.CompressionZstd, *comp)

	saveOpts, err := cfg.saveOptions()
	require.NoError(t, err)
	assert.Len(t, saveOpts, 2)
}

func TestLoadConfigEmptyFile(t *testing.T) {
	t.Parallel()

	path := testutil.WriteFile(t, t.TempDir(), "empty.yaml", nil)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		yaml string
	}{
		{name: "unknown field", yaml: "colour: red\n"},
		{name: "bad level", yaml: "log_level: loud\n"},
		{name: "bad format", yaml: "log_format: xml\n"},
		{name: "bad compression", yaml: "compression: lz4\n"},
		{name: "bad size", yaml: "max_file_size: lots\n"},
		{name: "bad yaml", yaml: "workers: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := testutil.WriteFile(t, t.TempDir(), "cfg.yaml", []byte(tt.yaml))
			_, err := LoadConfig(path)
			assert.Error(t, err)
		})
	}

	_, err := LoadConfig(t.TempDir() + "/missing.yaml")
	assert.Error(t, err)
}

func TestConfigLogger(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.LogFormat = "json"
	cfg.LogLevel = "warn"

	var buf bytes.Buffer
	logger, err := cfg.Logger(&buf)
	require.NoError(t, err)
	logger.Info("hidden")
	logger.Warn("shown", "key", "value")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "shown", line["msg"])
	assert.Equal(t, "value", line["key"])
}
