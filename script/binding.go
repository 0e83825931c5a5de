// Package script resolves wasm script modules, binds their entry points,
// and exposes mesh field data to them as zero-copy buffers.
//
// # Module ABI
//
// A script module is a wasm file <name>.wasm resolved from a search path.
// It must export its linear memory as "memory" plus:
//
//	alloc(size i32) -> i32
//	perform_action(time, dt, partial_dt, full_dt f64 [, src_ptr, src_len i32] [, tgt_ptr, tgt_len i32])
//
// and may export:
//
//	vertex_callback(id, coords_ptr, coords_len i32, time, dt, partial_dt, full_dt f64 [, src_ptr, src_len i32] [, tgt_ptr, tgt_len i32])
//	post_action(src_ptr, src_len, tgt_ptr, tgt_len i32)
//
// Buffer argument pairs are appended only for fields bound to the action,
// source before target; lengths count float64 values. alloc must return
// 8-byte-aligned regions for sizes that are multiples of 8. Modules are
// instantiated anonymously; an exported _initialize runs at load
// (reactor-style modules).
package script

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/tetratelabs/wazero/api"

	"github.com/tkoenig/meshact/engine"
)

// Entry point names fixed by convention.
const (
	entryAlloc   = "alloc"
	entryPerform = "perform_action"
	entryVertex  = "vertex_callback"
	entryPost    = "post_action"
)

// Mode is the invocation shape of a binding, decided once at bind time.
type Mode int

const (
	// WholeArray invokes perform_action once with the full buffers.
	WholeArray Mode = iota
	// PerVertex invokes vertex_callback once per mesh vertex.
	PerVertex
)

func (m Mode) String() string {
	switch m {
	case WholeArray:
		return "whole-array"
	case PerVertex:
		return "per-vertex"
	default:
		return "unknown"
	}
}

// Binding is the resolved set of foreign callables one action invokes. It
// holds the module instance and entry point references for the action's
// lifetime; the negotiated argument count is frozen at bind time.
type Binding struct {
	h    *engine.Handle
	path string
	name string

	mod     api.Module
	alloc   api.Function
	perform api.Function
	vertex  api.Function
	post    api.Function

	hasSource bool
	hasTarget bool
	numArgs   int
	mode      Mode

	closeOnce sync.Once
}

// Bind resolves moduleName from modulePath, validates the presence and
// arity of the module's entry points, and returns a live binding.
// hasSource/hasTarget declare which field buffers the action will pass;
// they fix the entry point arities for the binding's lifetime.
func Bind(ctx context.Context, h *engine.Handle, modulePath, moduleName string, hasSource, hasTarget bool) (*Binding, error) {
	file := filepath.Join(modulePath, moduleName+".wasm")
	raw, err := os.ReadFile(file)
	if err != nil {
		return nil, &ModuleNotFoundError{Path: modulePath, Name: moduleName, Err: err}
	}

	// Not a resolution failure: the file exists but is not a loadable
	// module.
	mod, err := h.Instantiate(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("load script module %q (in %q): %w", moduleName, modulePath, err)
	}

	b := &Binding{
		h:         h,
		path:      modulePath,
		name:      moduleName,
		mod:       mod,
		hasSource: hasSource,
		hasTarget: hasTarget,
	}
	if err := b.resolve(); err != nil {
		h.CloseModule(ctx, mod)
		return nil, err
	}
	return b, nil
}

func (b *Binding) resolve() error {
	if b.mod.Memory() == nil {
		return &EntryPointMissingError{Path: b.path, Name: b.name, Entry: "memory"}
	}

	b.alloc = b.mod.ExportedFunction(entryAlloc)
	if b.alloc == nil {
		return &EntryPointMissingError{Path: b.path, Name: b.name, Entry: entryAlloc}
	}
	if err := b.checkArity(b.alloc, entryAlloc, 1); err != nil {
		return err
	}

	buffers := 0
	if b.hasSource {
		buffers++
	}
	if b.hasTarget {
		buffers++
	}

	b.perform = b.mod.ExportedFunction(entryPerform)
	if b.perform == nil {
		return &EntryPointMissingError{Path: b.path, Name: b.name, Entry: entryPerform}
	}
	b.numArgs = 4 + 2*buffers
	if err := b.checkArity(b.perform, entryPerform, b.numArgs); err != nil {
		return err
	}

	b.mode = WholeArray
	if b.vertex = b.mod.ExportedFunction(entryVertex); b.vertex != nil {
		if err := b.checkArity(b.vertex, entryVertex, 7+2*buffers); err != nil {
			return err
		}
		b.mode = PerVertex
	}

	if b.post = b.mod.ExportedFunction(entryPost); b.post != nil {
		if err := b.checkArity(b.post, entryPost, 4); err != nil {
			return err
		}
	}
	return nil
}

func (b *Binding) checkArity(fn api.Function, entry string, want int) error {
	got := len(fn.Definition().ParamTypes())
	if got != want {
		return &SignatureMismatchError{Path: b.path, Name: b.name, Entry: entry, Want: want, Got: got}
	}
	return nil
}

// Mode returns the invocation shape decided at bind time.
func (b *Binding) Mode() Mode { return b.mode }

// Closed reports whether the module instance has been closed. The runtime
// closes an instance when foreign code traps; a closed binding must be
// replaced before the next invocation.
func (b *Binding) Closed() bool { return b.mod.IsClosed() }

// HasPost reports whether the module exports a post-action hook.
func (b *Binding) HasPost() bool { return b.post != nil }

// Memory returns the module's exported linear memory.
func (b *Binding) Memory() api.Memory { return b.mod.Memory() }

// Alloc reserves size bytes of guest memory and returns the offset.
func (b *Binding) Alloc(ctx context.Context, size uint32) (uint32, error) {
	results, err := b.h.Call(ctx, b.alloc, api.EncodeU32(size))
	if err != nil {
		return 0, &ExecutionError{Path: b.path, Name: b.name, Entry: entryAlloc, Err: err}
	}
	return api.DecodeU32(results[0]), nil
}

// CallPerform invokes the main entry point once with whichever buffers
// exist, source before target.
func (b *Binding) CallPerform(ctx context.Context, time, dt, partialDt, fullDt float64, source, target *Bridge) error {
	params := []uint64{
		api.EncodeF64(time),
		api.EncodeF64(dt),
		api.EncodeF64(partialDt),
		api.EncodeF64(fullDt),
	}
	if b.hasSource {
		params = source.appendArgs(params)
	}
	if b.hasTarget {
		params = target.appendArgs(params)
	}
	if _, err := b.h.Call(ctx, b.perform, params...); err != nil {
		return &ExecutionError{Path: b.path, Name: b.name, Entry: entryPerform, Err: err}
	}
	return nil
}

// CallVertex invokes the per-vertex callback for one vertex. coords is the
// guest-side scratch buffer holding the vertex coordinates; source/target
// contribute their dim-sized windows for the vertex id.
func (b *Binding) CallVertex(ctx context.Context, id int, coords *Bridge, time, dt, partialDt, fullDt float64, source, target *Bridge) error {
	params := []uint64{api.EncodeU32(uint32(id))}
	params = coords.appendArgs(params)
	params = append(params,
		api.EncodeF64(time),
		api.EncodeF64(dt),
		api.EncodeF64(partialDt),
		api.EncodeF64(fullDt),
	)
	if b.hasSource {
		params = source.appendVertexArgs(params, id)
	}
	if b.hasTarget {
		params = target.appendVertexArgs(params, id)
	}
	if _, err := b.h.Call(ctx, b.vertex, params...); err != nil {
		return &ExecutionError{Path: b.path, Name: b.name, Entry: entryVertex, Err: err}
	}
	return nil
}

// CallPost invokes the post-action hook with the full buffer pair. Absent
// buffers are passed as (0, 0).
func (b *Binding) CallPost(ctx context.Context, source, target *Bridge) error {
	params := source.appendArgs(nil)
	params = target.appendArgs(params)
	if _, err := b.h.Call(ctx, b.post, params...); err != nil {
		return &ExecutionError{Path: b.path, Name: b.name, Entry: entryPost, Err: err}
	}
	return nil
}

// Close releases the module instance. Safe to call more than once; only
// the first call closes.
func (b *Binding) Close(ctx context.Context) error {
	var err error
	b.closeOnce.Do(func() {
		err = b.h.CloseModule(ctx, b.mod)
	})
	return err
}
