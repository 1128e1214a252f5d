package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeCapability struct {
	id     string
	closed atomic.Bool
}

func (f *fakeCapability) Close() error {
	f.closed.Store(true)
	return nil
}

func TestAcquireLazyAndCached(t *testing.T) {
	var loadCount atomic.Int32

	registry := NewRegistry(testLogger(), map[Kind]Loader{
		KindTranscriber: func(ctx context.Context, cfg Config) (LoadResult, error) {
			loadCount.Add(1)
			return LoadResult{Capability: &fakeCapability{id: cfg.ModelID}, Reentrant: true}, nil
		},
	})

	if loadCount.Load() != 0 {
		t.Fatal("Expected no load before first Acquire")
	}

	cfg := Config{ModelID: "whisper-base", Device: "cpu", Precision: "fp32"}

	h1, err := registry.Acquire(context.Background(), KindTranscriber, cfg)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	h2, err := registry.Acquire(context.Background(), KindTranscriber, cfg)
	if err != nil {
		t.Fatalf("Second Acquire failed: %v", err)
	}

	if h1 != h2 {
		t.Error("Expected identical handle for identical fingerprint")
	}

	if loadCount.Load() != 1 {
		t.Errorf("Expected exactly 1 load, got %d", loadCount.Load())
	}
}

func TestAcquireConcurrentSingleLoad(t *testing.T) {
	var loadCount atomic.Int32

	registry := NewRegistry(testLogger(), map[Kind]Loader{
		KindGenerator: func(ctx context.Context, cfg Config) (LoadResult, error) {
			loadCount.Add(1)
			time.Sleep(20 * time.Millisecond) // Widen the race window
			return LoadResult{Capability: &fakeCapability{id: cfg.ModelID}, Reentrant: true}, nil
		},
	})

	cfg := Config{ModelID: "gpt-4o-mini", Device: "api", Precision: "default"}

	const n = 32
	handles := make([]*Handle, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			handles[i], errs[i] = registry.Acquire(context.Background(), KindGenerator, cfg)
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("Acquire %d failed: %v", i, errs[i])
		}
		if handles[i] != handles[0] {
			t.Fatalf("Acquire %d returned a different handle", i)
		}
	}

	if loadCount.Load() != 1 {
		t.Errorf("Expected exactly 1 underlying load for %d concurrent acquires, got %d", n, loadCount.Load())
	}
}

func TestAcquireDistinctFingerprints(t *testing.T) {
	var loadCount atomic.Int32

	registry := NewRegistry(testLogger(), map[Kind]Loader{
		KindSynthesizer: func(ctx context.Context, cfg Config) (LoadResult, error) {
			loadCount.Add(1)
			return LoadResult{Capability: &fakeCapability{id: cfg.ModelID}, Reentrant: true}, nil
		},
	})

	h1, err := registry.Acquire(context.Background(), KindSynthesizer, Config{ModelID: "kokoro", Device: "cpu"})
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	h2, err := registry.Acquire(context.Background(), KindSynthesizer, Config{ModelID: "kokoro", Device: "cuda"})
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	if h1 == h2 {
		t.Error("Expected distinct handles for distinct fingerprints")
	}

	if loadCount.Load() != 2 {
		t.Errorf("Expected 2 loads, got %d", loadCount.Load())
	}
}

func TestAcquireLoadFailureNotCached(t *testing.T) {
	var attempts atomic.Int32

	registry := NewRegistry(testLogger(), map[Kind]Loader{
		KindTranscriber: func(ctx context.Context, cfg Config) (LoadResult, error) {
			if attempts.Add(1) == 1 {
				return LoadResult{}, fmt.Errorf("weights not found")
			}
			return LoadResult{Capability: &fakeCapability{}, Reentrant: true}, nil
		},
	})

	cfg := Config{ModelID: "whisper-base", Device: "cpu"}

	_, err := registry.Acquire(context.Background(), KindTranscriber, cfg)
	var loadErr *LoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("Expected LoadError, got %v", err)
	}
	if loadErr.Kind != KindTranscriber {
		t.Errorf("Expected transcriber kind in error, got %s", loadErr.Kind)
	}

	// A failed load must not poison the cache.
	if _, err := registry.Acquire(context.Background(), KindTranscriber, cfg); err != nil {
		t.Fatalf("Expected retry after failed load to succeed, got %v", err)
	}
}

func TestAcquireUnknownKind(t *testing.T) {
	registry := NewRegistry(testLogger(), nil)

	_, err := registry.Acquire(context.Background(), KindGenerator, Config{ModelID: "x"})
	var loadErr *LoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("Expected LoadError for unregistered kind, got %v", err)
	}
}

func TestReleaseClosesCapability(t *testing.T) {
	cap1 := &fakeCapability{id: "one"}

	registry := NewRegistry(testLogger(), map[Kind]Loader{
		KindSynthesizer: func(ctx context.Context, cfg Config) (LoadResult, error) {
			return LoadResult{Capability: cap1, Reentrant: true}, nil
		},
	})

	cfg := Config{ModelID: "kokoro", Device: "cpu"}
	if _, err := registry.Acquire(context.Background(), KindSynthesizer, cfg); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	if err := registry.Release(KindSynthesizer); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	if !cap1.closed.Load() {
		t.Error("Expected capability to be closed on release")
	}

	if stats := registry.GetStats(); stats.Live != 0 {
		t.Errorf("Expected no live handles after release, got %d", stats.Live)
	}
}

func TestHandleDoSerializesNonReentrant(t *testing.T) {
	registry := NewRegistry(testLogger(), map[Kind]Loader{
		KindSynthesizer: func(ctx context.Context, cfg Config) (LoadResult, error) {
			return LoadResult{Capability: &fakeCapability{}, Reentrant: false}, nil
		},
	})

	h, err := registry.Acquire(context.Background(), KindSynthesizer, Config{ModelID: "m"})
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	var inFlight atomic.Int32
	var maxInFlight atomic.Int32

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.Do(func(any) error {
				cur := inFlight.Add(1)
				for {
					prev := maxInFlight.Load()
					if cur <= prev || maxInFlight.CompareAndSwap(prev, cur) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				inFlight.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()

	if maxInFlight.Load() != 1 {
		t.Errorf("Expected serialized access for non-reentrant capability, saw %d concurrent calls", maxInFlight.Load())
	}
}
