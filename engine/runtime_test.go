package engine

import (
	"context"
	"testing"
)

func TestAcquireReleaseRefCounting(t *testing.T) {
	ctx := context.Background()

	handles := make([]*Handle, 3)
	for i := range handles {
		h, err := Acquire(ctx)
		if err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
		handles[i] = h
	}
	if got := Refs(); got != 3 {
		t.Fatalf("expected 3 refs, got %d", got)
	}

	for _, h := range handles[:2] {
		if err := h.Release(ctx); err != nil {
			t.Fatalf("release: %v", err)
		}
	}
	if got := Refs(); got != 1 {
		t.Fatalf("expected 1 ref after releasing 2 of 3, got %d", got)
	}

	mu.Lock()
	running := rt != nil
	mu.Unlock()
	if !running {
		t.Fatal("runtime torn down while a reference remains")
	}

	if err := handles[2].Release(ctx); err != nil {
		t.Fatalf("final release: %v", err)
	}
	if got := Refs(); got != 0 {
		t.Fatalf("expected 0 refs, got %d", got)
	}
	mu.Lock()
	running = rt != nil
	mu.Unlock()
	if running {
		t.Fatal("runtime still running after last release")
	}
}

func TestReleaseIsIdempotentPerHandle(t *testing.T) {
	ctx := context.Background()

	a, err := Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	b, err := Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	// Releasing the same handle twice must decrement only once.
	a.Release(ctx)
	a.Release(ctx)
	if got := Refs(); got != 1 {
		t.Fatalf("expected 1 ref, got %d", got)
	}
	b.Release(ctx)
	if got := Refs(); got != 0 {
		t.Fatalf("expected 0 refs, got %d", got)
	}
}

func TestRuntimeRestartsAfterTeardown(t *testing.T) {
	ctx := context.Background()

	h, err := Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	h.Release(ctx)

	h, err = Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire after teardown: %v", err)
	}
	defer h.Release(ctx)

	mu.Lock()
	running := rt != nil
	mu.Unlock()
	if !running {
		t.Fatal("runtime not restarted by a fresh acquire cycle")
	}
}
