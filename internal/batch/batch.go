// Package batch runs independent per-file jobs with bounded parallelism.
package batch

import (
	"context"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Option configures a batch run.
type Option func(*config)

type config struct {
	workers int // 0 = auto, <0 = serial, >0 = fixed count
	logger  *slog.Logger
}

// log returns the logger, falling back to a discard logger if nil.
func (c *config) log() *slog.Logger {
	if c.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.logger
}

// WithWorkers sets the number of workers for parallel processing.
// Values < 0 force serial processing. Zero uses GOMAXPROCS.
// Values > 0 force a specific worker count.
func WithWorkers(n int) Option {
	return func(c *config) {
		c.workers = n
	}
}

// WithLogger sets the logger for batch runs.
// If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

func newConfig(opts []Option) *config {
	c := &config{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// workerCount determines the number of workers to use for n items.
func (c *config) workerCount(n int) int {
	if n < 2 || c.workers < 0 {
		return 1
	}
	workers := c.workers
	if workers == 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > n {
		workers = n
	}
	if workers < 1 {
		return 1
	}
	return workers
}

// Run calls fn for every item and stops at the first error.
//
// The context passed to fn is canceled once any call fails. Run returns the
// first error, or nil when every call succeeded.
func Run[T any](ctx context.Context, items []T, fn func(context.Context, T) error, opts ...Option) error {
	c := newConfig(opts)
	workers := c.workerCount(len(items))
	c.log().Debug("batch run", "items", len(items), "workers", workers)

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return fn(ctx, item)
		})
	}
	return eg.Wait()
}

// Result is the outcome of one item of Collect.
type Result[R any] struct {
	Value R
	Err   error
}

// Collect calls fn for every item regardless of failures and returns the
// results in item order. Only cancellation of ctx stops it early; items not
// started by then report the context error.
func Collect[T, R any](ctx context.Context, items []T, fn func(context.Context, T) (R, error), opts ...Option) []Result[R] {
	c := newConfig(opts)
	workers := c.workerCount(len(items))
	c.log().Debug("batch collect", "items", len(items), "workers", workers)

	results := make([]Result[R], len(items))
	var eg errgroup.Group
	eg.SetLimit(workers)
	for i, item := range items {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}
			results[i].Value, results[i].Err = fn(ctx, item)
			return nil
		})
	}
	_ = eg.Wait() //nolint:errcheck // workers never fail; errors are per result
	return results
}
