package model

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// Kind identifies a model capability.
type Kind string

const (
	KindTranscriber Kind = "transcriber"
	KindGenerator   Kind = "generator"
	KindSynthesizer Kind = "synthesizer"
)

// Config identifies a specific model instance to load.
type Config struct {
	ModelID   string
	Device    string
	Precision string
}

// Fingerprint returns the cache key identifying a loaded instance of this
// configuration.
func (c Config) Fingerprint() string {
	return fmt.Sprintf("%s|%s|%s", c.ModelID, c.Device, c.Precision)
}

// LoadError indicates a capability could not be loaded (missing weights,
// bad credentials, device placement failure). The capability stays unusable
// until the configuration is corrected; the registry does not retry.
type LoadError struct {
	Kind Kind
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load %s model: %v", e.Kind, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// LoadResult is what a Loader produces: the capability value plus whether
// concurrent inference calls on it are safe.
type LoadResult struct {
	Capability any
	// Reentrant reports whether the capability tolerates concurrent
	// inference calls. Non-reentrant capabilities are serialized by the
	// handle's exclusive gate.
	Reentrant bool
}

// Loader instantiates a capability for a configuration. Loaders are
// registered per kind so backends stay pluggable.
type Loader func(ctx context.Context, cfg Config) (LoadResult, error)

// Handle is a shared reference to one loaded capability instance.
// At most one live Handle exists per (kind, fingerprint) pair; the registry
// is the sole owner and hands out the same Handle to every acquirer.
type Handle struct {
	kind        Kind
	fingerprint string
	capability  any
	reentrant   bool
	gate        sync.Mutex
}

// Kind returns the capability kind of the handle.
func (h *Handle) Kind() Kind { return h.kind }

// Fingerprint returns the configuration fingerprint of the loaded instance.
func (h *Handle) Fingerprint() string { return h.fingerprint }

// Capability returns the loaded capability value.
func (h *Handle) Capability() any { return h.capability }

// Do invokes fn against the capability. Reentrant capabilities run
// concurrently; non-reentrant ones are serialized through an exclusive
// per-handle gate.
func (h *Handle) Do(fn func(capability any) error) error {
	if !h.reentrant {
		h.gate.Lock()
		defer h.gate.Unlock()
	}
	return fn(h.capability)
}

// entry tracks one fingerprint's load. The ready channel closes when the
// load finishes, letting concurrent acquirers block on a single load.
type entry struct {
	ready  chan struct{}
	handle *Handle
	err    error
}

// Stats reports registry counters for monitoring.
type Stats struct {
	Loads     uint64 `json:"loads"`
	CacheHits uint64 `json:"cache_hits"`
	Failures  uint64 `json:"failures"`
	Live      int    `json:"live_handles"`
}

// Registry caches loaded model handles keyed by (kind, fingerprint).
// Loading is lazy, single-flight per fingerprint, and handles stay warm for
// the process lifetime unless explicitly released.
type Registry struct {
	logger  *slog.Logger
	loaders map[Kind]Loader

	mu      sync.Mutex
	entries map[string]*entry

	statsMu   sync.Mutex
	loads     uint64
	cacheHits uint64
	failures  uint64
}

// NewRegistry creates a registry with the given per-kind loaders.
func NewRegistry(logger *slog.Logger, loaders map[Kind]Loader) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	owned := make(map[Kind]Loader, len(loaders))
	for k, l := range loaders {
		owned[k] = l
	}

	return &Registry{
		logger:  logger,
		loaders: owned,
		entries: make(map[string]*entry),
	}
}

// Acquire returns the cached handle for (kind, cfg), loading it on first
// use. Concurrent calls for the same uninitialized fingerprint block on one
// load and all receive the same handle. A failed load is not cached, so a
// later call after correcting the configuration can succeed.
func (r *Registry) Acquire(ctx context.Context, kind Kind, cfg Config) (*Handle, error) {
	loader, ok := r.loaders[kind]
	if !ok {
		return nil, &LoadError{Kind: kind, Err: fmt.Errorf("no loader registered")}
	}

	key := string(kind) + "/" + cfg.Fingerprint()

	r.mu.Lock()
	e, exists := r.entries[key]
	if !exists {
		e = &entry{ready: make(chan struct{})}
		r.entries[key] = e
		r.mu.Unlock()

		// This goroutine owns the load; everyone else waits on ready.
		r.load(ctx, e, key, kind, cfg, loader)
	} else {
		r.mu.Unlock()
		r.recordCacheHit()
	}

	select {
	case <-e.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if e.err != nil {
		return nil, e.err
	}
	return e.handle, nil
}

// load performs the actual capability load and publishes the result.
func (r *Registry) load(ctx context.Context, e *entry, key string, kind Kind, cfg Config, loader Loader) {
	defer close(e.ready)

	r.logger.Info("Loading model capability",
		slog.String("kind", string(kind)),
		slog.String("model_id", cfg.ModelID),
		slog.String("device", cfg.Device),
	)

	result, err := loader(ctx, cfg)
	if err != nil {
		e.err = &LoadError{Kind: kind, Err: err}
		r.recordFailure()

		// Drop the failed entry so a corrected config can retry.
		r.mu.Lock()
		delete(r.entries, key)
		r.mu.Unlock()

		r.logger.Error("Model load failed",
			slog.String("kind", string(kind)),
			slog.String("model_id", cfg.ModelID),
			slog.String("error", err.Error()),
		)
		return
	}

	e.handle = &Handle{
		kind:        kind,
		fingerprint: cfg.Fingerprint(),
		capability:  result.Capability,
		reentrant:   result.Reentrant,
	}
	r.recordLoad()

	r.logger.Info("Model capability loaded",
		slog.String("kind", string(kind)),
		slog.String("fingerprint", cfg.Fingerprint()),
		slog.Bool("reentrant", result.Reentrant),
	)
}

// Release tears down every cached handle of the given kind. Capabilities
// implementing io.Closer are closed. Used for test isolation and controlled
// shutdown under memory pressure.
func (r *Registry) Release(kind Kind) error {
	r.mu.Lock()
	var victims []*entry
	for key, e := range r.entries {
		if e.handle != nil && e.handle.kind == kind {
			victims = append(victims, e)
			delete(r.entries, key)
		}
	}
	r.mu.Unlock()

	var firstErr error
	for _, e := range victims {
		if closer, ok := e.handle.capability.(io.Closer); ok {
			if err := closer.Close(); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("failed to close %s capability: %w", kind, err)
			}
		}
	}

	r.logger.Info("Released model capabilities",
		slog.String("kind", string(kind)),
		slog.Int("count", len(victims)),
	)

	return firstErr
}

// Close releases every cached handle of every kind.
func (r *Registry) Close() error {
	var firstErr error
	for _, kind := range []Kind{KindTranscriber, KindGenerator, KindSynthesizer} {
		if err := r.Release(kind); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// GetStats returns current registry counters.
func (r *Registry) GetStats() Stats {
	r.statsMu.Lock()
	loads, hits, failures := r.loads, r.cacheHits, r.failures
	r.statsMu.Unlock()

	r.mu.Lock()
	live := 0
	for _, e := range r.entries {
		if e.handle != nil {
			live++
		}
	}
	r.mu.Unlock()

	return Stats{
		Loads:     loads,
		CacheHits: hits,
		Failures:  failures,
		Live:      live,
	}
}

func (r *Registry) recordLoad() {
	r.statsMu.Lock()
	r.loads++
	r.statsMu.Unlock()
}

func (r *Registry) recordCacheHit() {
	r.statsMu.Lock()
	r.cacheHits++
	r.statsMu.Unlock()
}

func (r *Registry) recordFailure() {
	r.statsMu.Lock()
	r.failures++
	r.statsMu.Unlock()
}
