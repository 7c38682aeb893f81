package registry

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/meigma/brres"
)

// Option configures a Registry.
type Option func(*Registry)

// WithCapacity bounds the number of open containers (default: 64).
func WithCapacity(n int) Option {
	return func(r *Registry) {
		r.capacity = n
	}
}

// WithRegisterer registers the registry metrics with reg.
// If not set, metrics are collected but not exported.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(r *Registry) {
		r.registerer = reg
	}
}

// WithLogger sets the logger for registry operations and for the
// containers it opens. If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithCreateIfMissing makes Open return a new empty container when the
// file does not exist. The file is written on the first save.
func WithCreateIfMissing(create bool) Option {
	return func(r *Registry) {
		r.createIfMissing = create
	}
}

// WithOpenOptions passes options to every container the registry opens.
func WithOpenOptions(opts ...brres.Option) Option {
	return func(r *Registry) {
		r.openOpts = append(r.openOpts, opts...)
	}
}

// WithSaveOptions passes options to every save the registry performs,
// including saves on eviction.
func WithSaveOptions(opts ...brres.SaveOption) Option {
	return func(r *Registry) {
		r.saveOpts = append(r.saveOpts, opts...)
	}
}
