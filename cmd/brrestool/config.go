package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/meigma/brres"
	"github.com/meigma/brres/internal/storage"
)

// Config holds the settings shared by every command. Values come from an
// optional YAML file and are overridden by command-line flags.
type Config struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	Workers     int    `yaml:"workers"`
	Compression string `yaml:"compression"`
	Strict      bool   `yaml:"strict"`
	DropOpaque  bool   `yaml:"drop_opaque"`
	MaxFileSize string `yaml:"max_file_size"`
}

// DefaultConfig returns the settings used when no file or flag says otherwise.
func DefaultConfig() Config {
	return Config{
		LogLevel:    "info",
		LogFormat:   "text",
		MaxFileSize: humanize.IBytes(storage.DefaultMaxFileSize),
	}
}

// LoadConfig reads path over the defaults. An empty path returns the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks that every setting can be applied.
func (c Config) Validate() error {
	if _, err := c.level(); err != nil {
		return err
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	if _, err := c.compression(); err != nil {
		return err
	}
	if _, err := c.maxFileSize(); err != nil {
		return err
	}
	return nil
}

func (c Config) level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return l, fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	return l, nil
}

// compression returns the output compression. An empty value keeps the
// compression each file was read with.
func (c Config) compression() (*brres.Compression, error) {
	if c.Compression == "" {
		return nil, nil //nolint:nilnil // nil means unchanged
	}
	v, err := storage.ParseCompression(strings.ToLower(c.Compression))
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (c Config) maxFileSize() (uint64, error) {
	if c.MaxFileSize == "" {
		return storage.DefaultMaxFileSize, nil
	}
	n, err := humanize.ParseBytes(c.MaxFileSize)
	if err != nil {
		return 0, fmt.Errorf("max file size %q: %w", c.MaxFileSize, err)
	}
	return n, nil
}

// Logger builds the slog logger described by the config.
func (c Config) Logger(w io.Writer) (*slog.Logger, error) {
	level, err := c.level()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

// openOptions returns the container options for the config.
func (c Config) openOptions(logger *slog.Logger) ([]brres.Option, error) {
	limit, err := c.maxFileSize()
	if err != nil {
		return nil, err
	}
	return []brres.Option{
		brres.WithLogger(logger),
		brres.WithMaxFileSize(limit),
		brres.UnpackWithStrict(c.Strict),
	}, nil
}

// saveOptions returns the save options for the config.
func (c Config) saveOptions() ([]brres.SaveOption, error) {
	comp, err := c.compression()
	if err != nil {
		return nil, err
	}
	opts := []brres.SaveOption{brres.SaveWithDropOpaque(c.DropOpaque)}
	if comp != nil {
		opts = append(opts, brres.SaveWithCompression(*comp))
	}
	return opts, nil
}
