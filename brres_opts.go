package brres

import (
	"log/slog"
)

// Option configures a Brres.
type Option func(*Brres)

// WithLogger sets the logger for container operations.
// If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Brres) {
		b.logger = logger
	}
}

// WithMaxFileSize limits the size of a container file read by Open, both as
// stored and after decompression. Set limit to 0 to disable the limit.
func WithMaxFileSize(limit uint64) Option {
	return func(b *Brres) {
		b.maxFileSize = limit
	}
}

// UnpackWithStrict controls whether sub-files without a typed codec fail the
// unpack (true) or are kept as Opaque entries (false, the default).
func UnpackWithStrict(strict bool) Option {
	return func(b *Brres) {
		b.strict = strict
	}
}

// PackOption configures Pack.
type PackOption func(*packConfig)

type packConfig struct {
	dropOpaque bool
}

// PackWithDropOpaque leaves every opaque sub-file out of the packed container
// instead of writing it back. Each dropped sub-file is logged.
func PackWithDropOpaque(drop bool) PackOption {
	return func(c *packConfig) {
		c.dropOpaque = drop
	}
}

// SaveOption configures Save.
type SaveOption func(*saveConfig)

type saveConfig struct {
	pack        []PackOption
	compression Compression
}

// SaveWithCompression sets the on-disk compression. By default a container
// is saved with the compression it was opened with.
func SaveWithCompression(c Compression) SaveOption {
	return func(cfg *saveConfig) {
		cfg.compression = c
	}
}

// SaveWithDropOpaque is PackWithDropOpaque for Save.
func SaveWithDropOpaque(drop bool) SaveOption {
	return func(cfg *saveConfig) {
		cfg.pack = append(cfg.pack, PackWithDropOpaque(drop))
	}
}
