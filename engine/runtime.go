// Package engine manages the process-wide WebAssembly runtime embedded by
// script actions.
//
// The runtime is reference counted: the first Acquire starts it, the last
// Release tears it down. A single process-wide mutex guards both lifecycle
// transitions and every foreign invocation, because the embedded runtime
// must never be entered concurrently from two actions.
package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// StartupError reports that the embedded runtime could not be started. It
// is fatal to all dependent actions: once startup fails the error is
// latched and every later Acquire reports it without retrying.
type StartupError struct {
	Err error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("script runtime unavailable: %v", e.Err)
}

func (e *StartupError) Unwrap() error { return e.Err }

var (
	mu       sync.Mutex // guards refs, rt, startErr, and all foreign invocations
	refs     int
	rt       wazero.Runtime
	startErr error
)

// Handle is one action's reference to the process runtime. Obtain with
// Acquire, release exactly once with Release. All foreign transitions
// (instantiation, invocation, module close) go through the handle so they
// serialize on the process-wide lock.
type Handle struct {
	once sync.Once
}

// Acquire increments the process-wide reference count, starting the
// runtime on the first call. Startup happens-before any module resolution
// through the returned handle.
func Acquire(ctx context.Context) (*Handle, error) {
	mu.Lock()
	defer mu.Unlock()

	if startErr != nil {
		return nil, &StartupError{Err: startErr}
	}

	if refs == 0 {
		if err := start(ctx); err != nil {
			startErr = err
			return nil, &StartupError{Err: err}
		}
	}
	refs++
	return &Handle{}, nil
}

// start must be called with mu held.
func start(ctx context.Context) error {
	cfg := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	r := wazero.NewRuntimeWithConfig(ctx, cfg)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, r); err != nil {
		r.Close(ctx)
		return fmt.Errorf("instantiate WASI: %w", err)
	}
	rt = r
	return nil
}

// Release decrements the reference count, tearing the runtime down when it
// reaches zero. Safe to call more than once on the same handle; only the
// first call decrements.
func (h *Handle) Release(ctx context.Context) error {
	var err error
	h.once.Do(func() {
		mu.Lock()
		defer mu.Unlock()

		refs--
		if refs == 0 && rt != nil {
			err = rt.Close(ctx)
			rt = nil
		}
	})
	return err
}

// Instantiate compiles the wasm binary and instantiates it anonymously.
// Reactor-style modules get their _initialize export run; command-style
// entry points are not invoked.
func (h *Handle) Instantiate(ctx context.Context, wasm []byte) (api.Module, error) {
	mu.Lock()
	defer mu.Unlock()

	if rt == nil {
		return nil, &StartupError{Err: fmt.Errorf("runtime not running")}
	}

	compiled, err := rt.CompileModule(ctx, wasm)
	if err != nil {
		return nil, fmt.Errorf("compile module: %w", err)
	}

	cfg := wazero.NewModuleConfig().
		WithName("").
		WithStartFunctions("_initialize")
	mod, err := rt.InstantiateModule(ctx, compiled, cfg)
	if err != nil {
		compiled.Close(ctx)
		return nil, fmt.Errorf("instantiate module: %w", err)
	}
	return mod, nil
}

// Call invokes a guest function while holding the process-wide invocation
// lock. The calling goroutine blocks for the duration of the foreign call.
func (h *Handle) Call(ctx context.Context, fn api.Function, params ...uint64) ([]uint64, error) {
	mu.Lock()
	defer mu.Unlock()
	return fn.Call(ctx, params...)
}

// CloseModule closes a module instance obtained from Instantiate.
func (h *Handle) CloseModule(ctx context.Context, mod api.Module) error {
	mu.Lock()
	defer mu.Unlock()
	return mod.Close(ctx)
}

// Refs returns the current reference count. Diagnostic only.
func Refs() int {
	mu.Lock()
	defer mu.Unlock()
	return refs
}
