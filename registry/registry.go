package registry

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"

	"github.com/meigma/brres"
	"github.com/meigma/brres/tex0"
)

// DefaultCapacity is the number of containers held when WithCapacity is not set.
const DefaultCapacity = 64

// Registry holds open containers keyed by absolute path.
type Registry struct {
	mu       sync.Mutex
	cache    *lru.Cache[string, *brres.Brres]
	loads    singleflight.Group // zero value is valid
	removing bool               // suppresses the eviction save while Close removes an entry
	evictErr []error            // eviction save failures not yet reported by Flush

	capacity        int
	registerer      prometheus.Registerer
	logger          *slog.Logger
	createIfMissing bool
	openOpts        []brres.Option
	saveOpts        []brres.SaveOption
	metrics         *metrics
}

// log returns the logger, falling back to a discard logger if nil.
func (r *Registry) log() *slog.Logger {
	if r.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return r.logger
}

// New creates an empty registry.
func New(opts ...Option) (*Registry, error) {
	r := &Registry{capacity: DefaultCapacity}
	for _, opt := range opts {
		opt(r)
	}
	if r.capacity < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCapacity, r.capacity)
	}
	r.metrics = newMetrics(r.registerer)
	cache, err := lru.NewWithEvict(r.capacity, r.onEvict)
	if err != nil {
		return nil, err
	}
	r.cache = cache
	return r, nil
}

// onEvict runs with r.mu held, from Add when the capacity is exceeded and
// from Remove and Purge.
func (r *Registry) onEvict(path string, b *brres.Brres) {
	if r.removing {
		return
	}
	r.metrics.evicted.Inc()
	r.log().Debug("evicting container", "path", path, "modified", b.Modified())
	if !b.Modified() {
		return
	}
	if _, err := r.save(b); err != nil {
		r.evictErr = append(r.evictErr, err)
	}
}

// save writes b and reports whether the file changed on disk.
func (r *Registry) save(b *brres.Brres) (bool, error) {
	before, compression := b.Digest(), b.Compression()
	if err := b.Save(r.saveOpts...); err != nil {
		r.metrics.saveFailures.Inc()
		r.log().Error("saving container", "path", b.Path(), "error", err)
		return false, fmt.Errorf("save %s: %w", b.Path(), err)
	}
	if b.Digest() == before && b.Compression() == compression {
		return false, nil
	}
	r.metrics.saved.Inc()
	return true, nil
}

func key(path string) (string, error) {
	return filepath.Abs(path)
}

// Get returns the container for path if it is open.
func (r *Registry) Get(path string) (*brres.Brres, bool) {
	k, err := key(path)
	if err != nil {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cache.Get(k)
}

// Open returns the container for path, loading it on first use.
// Concurrent calls for the same path share a single load.
func (r *Registry) Open(path string) (*brres.Brres, error) {
	k, err := key(path)
	if err != nil {
		return nil, err
	}
	if b, ok := r.Get(k); ok {
		return b, nil
	}

	v, err, _ := r.loads.Do(k, func() (any, error) {
		if b, ok := r.Get(k); ok {
			return b, nil
		}
		b, err := r.load(k)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		defer r.mu.Unlock()
		r.cache.Add(k, b)
		r.metrics.open.Set(float64(r.cache.Len()))
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	b, ok := v.(*brres.Brres)
	if !ok {
		return nil, fmt.Errorf("registry: unexpected load result %T", v)
	}
	return b, nil
}

func (r *Registry) load(path string) (*brres.Brres, error) {
	opts := append([]brres.Option{brres.WithLogger(r.logger)}, r.openOpts...)
	b, err := brres.Open(path, opts...)
	switch {
	case err == nil:
		r.metrics.opened.Inc()
		return b, nil
	case r.createIfMissing && errors.Is(err, fs.ErrNotExist):
		r.metrics.created.Inc()
		r.log().Debug("creating container", "path", path)
		return brres.New(path, opts...), nil
	default:
		return nil, err
	}
}

// Close removes the container for path. With save set, a modified
// container is saved first and stays open if saving fails.
func (r *Registry) Close(path string, save bool) error {
	k, err := key(path)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.cache.Peek(k)
	if !ok {
		return fmt.Errorf("%s: %w", k, ErrNotOpen)
	}
	if save && b.Modified() {
		if _, err := r.save(b); err != nil {
			return err
		}
	}
	r.removing = true
	r.cache.Remove(k)
	r.removing = false
	r.metrics.open.Set(float64(r.cache.Len()))
	return nil
}

// CloseAll removes every container, saving modified ones first when save
// is set. All containers are removed even if some saves fail.
func (r *Registry) CloseAll(save bool) error {
	var err error
	if save {
		_, err = r.Flush()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removing = true
	r.cache.Purge()
	r.removing = false
	r.metrics.open.Set(0)
	return err
}

// Flush saves every modified container and returns how many files were
// written. Save failures from earlier evictions are reported here as well.
func (r *Registry) Flush() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	errs := r.evictErr
	r.evictErr = nil
	written := 0
	for _, k := range r.cache.Keys() {
		b, ok := r.cache.Peek(k)
		if !ok || !b.Modified() {
			continue
		}
		changed, err := r.save(b)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if changed {
			written++
		}
	}
	r.log().Debug("flushed containers", "written", written, "failed", len(errs))
	return written, errors.Join(errs...)
}

// Paths returns the open paths, least recently used first.
func (r *Registry) Paths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cache.Keys()
}

// Len returns the number of open containers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cache.Len()
}

// FindTexture searches every open container except exclude for a texture
// named name, least recently used container first.
func (r *Registry) FindTexture(name string, exclude *brres.Brres) (*tex0.Texture, *brres.Brres, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range r.cache.Keys() {
		b, ok := r.cache.Peek(k)
		if !ok || b == exclude {
			continue
		}
		if t, ok := b.Texture(name); ok {
			return t, b, true
		}
	}
	return nil, nil, false
}

// ResolveTexture returns b's texture named name. When b has none, the
// texture is looked up in the other open containers and a copy is added
// to b.
func (r *Registry) ResolveTexture(b *brres.Brres, name string) (*tex0.Texture, bool) {
	if t, ok := b.Texture(name); ok {
		return t, true
	}
	found, from, ok := r.FindTexture(name, b)
	if !ok {
		return nil, false
	}
	t := *found
	t.Data = append([]byte(nil), found.Data...)
	b.AddTexture(&t, false)
	r.log().Debug("copied texture", "name", name, "from", from.Path(), "to", b.Path())
	return &t, true
}
