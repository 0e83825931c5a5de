// Package action executes user-supplied wasm script modules at defined
// points in a simulation timestep, operating on per-vertex mesh field
// data.
package action

import (
	"context"
	"errors"
	"fmt"

	"github.com/tkoenig/meshact/engine"
	"github.com/tkoenig/meshact/geometry"
	"github.com/tkoenig/meshact/mesh"
	"github.com/tkoenig/meshact/script"
)

// ErrActionClosed is returned by PerformAction after Close.
var ErrActionClosed = errors.New("action closed")

// Option configures a ScriptAction at construction.
type Option func(*ScriptAction)

// WithSourceData names the mesh field passed to the script read-only.
func WithSourceData(name string) Option {
	return func(a *ScriptAction) { a.sourceName = name }
}

// WithTargetData names the mesh field the script writes in place.
func WithTargetData(name string) Option {
	return func(a *ScriptAction) { a.targetName = name }
}

// ScriptAction invokes a wasm script module once per timestep, optionally
// once per mesh vertex.
//
// Construction acquires the process-wide script runtime. Module resolution
// and buffer exposure happen lazily on the first PerformAction call, since
// the mesh and its fields may not be populated at construction time; once
// bound, the binding lives for the action's remaining lifetime. Close
// releases the buffers, the module, and the runtime reference exactly
// once.
type ScriptAction struct {
	timing     Timing
	modulePath string
	moduleName string
	mesh       *mesh.Mesh
	sourceName string
	targetName string

	engine  *engine.Handle
	binding *script.Binding

	source      *script.Bridge
	target      *script.Bridge
	coords      *script.Bridge
	sourceField *mesh.Data
	targetField *mesh.Data

	closed bool
}

// New creates an action firing at the given timing, executing the module
// resolved as <modulePath>/<moduleName>.wasm against m.
func New(timing Timing, modulePath, moduleName string, m *mesh.Mesh, opts ...Option) (*ScriptAction, error) {
	a := &ScriptAction{
		timing:     timing,
		modulePath: modulePath,
		moduleName: moduleName,
		mesh:       m,
	}
	for _, opt := range opts {
		opt(a)
	}

	h, err := engine.Acquire(context.Background())
	if err != nil {
		return nil, err
	}
	a.engine = h
	return a, nil
}

// Timing returns the point in the timestep at which the action fires.
func (a *ScriptAction) Timing() Timing { return a.timing }

// PerformAction runs the script's invocation protocol for one timestep:
// the main entry point once with the full buffers, or the per-vertex
// callback once per vertex in iteration order, followed by the post-action
// hook when one is bound.
//
// Errors raised by foreign code surface as *script.ExecutionError. Target
// writes made before a failure remain in place.
func (a *ScriptAction) PerformAction(ctx context.Context, time, dt, partialDt, fullDt float64) error {
	if a.closed {
		return ErrActionClosed
	}

	// A trap in a prior timestep closes the module instance. Field
	// contents survive in the old view, so the action can be retried with
	// a fresh instance.
	if a.binding != nil && a.binding.Closed() {
		a.binding = nil
		a.source, a.target, a.coords = nil, nil, nil
	}

	if a.binding == nil {
		b, err := script.Bind(ctx, a.engine, a.modulePath, a.moduleName,
			a.sourceName != "", a.targetName != "")
		if err != nil {
			return err
		}
		a.binding = b
	}

	if err := a.ensureBuffers(ctx); err != nil {
		return err
	}

	if a.binding.Mode() == script.PerVertex {
		if err := a.performPerVertex(ctx, time, dt, partialDt, fullDt); err != nil {
			return err
		}
	} else {
		if err := a.binding.CallPerform(ctx, time, dt, partialDt, fullDt, a.source, a.target); err != nil {
			return err
		}
	}

	if a.binding.HasPost() {
		return a.binding.CallPost(ctx, a.source, a.target)
	}
	return nil
}

func (a *ScriptAction) performPerVertex(ctx context.Context, time, dt, partialDt, fullDt float64) error {
	vertices := geometry.NewHandle(a.mesh).Vertices()
	for c, end := vertices.Begin(), vertices.End(); !c.Equal(end); c.Next() {
		copy(a.coords.Floats(), c.VertexCoords())
		err := a.binding.CallVertex(ctx, c.VertexID(), a.coords,
			time, dt, partialDt, fullDt, a.source, a.target)
		if err != nil {
			return err
		}
	}
	return nil
}

// ensureBuffers exposes source/target fields (and the per-vertex coords
// scratch) into guest memory, rebuilding any buffer whose shape went stale:
// a re-created field or a field whose size changed under remeshing forces a
// fresh allocation. All allocations happen before any view is taken: an
// allocation can grow guest memory, which moves the backing buffer out from
// under views taken earlier in the same pass.
func (a *ScriptAction) ensureBuffers(ctx context.Context) error {
	seedSource, seedTarget := false, false

	if a.sourceName != "" {
		field, err := a.lookupField(a.sourceName, "source")
		if err != nil {
			return err
		}
		if a.source == nil || field != a.sourceField ||
			a.source.Len() != len(field.Values()) {
			br, err := script.AllocBuffer(ctx, a.binding, len(field.Values()), field.Dimensions())
			if err != nil {
				return fmt.Errorf("expose source field %q: %w", field.Name(), err)
			}
			a.source, a.sourceField, seedSource = br, field, true
		}
	}

	if a.targetName != "" {
		field, err := a.lookupField(a.targetName, "target")
		if err != nil {
			return err
		}
		if a.target == nil || field != a.targetField ||
			a.target.Len() != len(field.Values()) {
			br, err := script.AllocBuffer(ctx, a.binding, len(field.Values()), field.Dimensions())
			if err != nil {
				return fmt.Errorf("expose target field %q: %w", field.Name(), err)
			}
			a.target, a.targetField, seedTarget = br, field, true
		}
	}

	if a.binding.Mode() == script.PerVertex {
		dim := a.mesh.Dimensions()
		if a.coords == nil || a.coords.Len() != dim {
			br, err := script.AllocBuffer(ctx, a.binding, dim, dim)
			if err != nil {
				return fmt.Errorf("allocate coords buffer: %w", err)
			}
			a.coords = br
		}
	}

	return a.mapBuffers(seedSource, seedTarget)
}

// mapBuffers (re)takes the view of every bridge that is fresh or whose
// memory grew, seeds fresh field buffers from the field's contents, and
// re-attaches the fields to the live views. Remapping performs no
// allocation, so one pass leaves every view valid.
func (a *ScriptAction) mapBuffers(seedSource, seedTarget bool) error {
	if a.source != nil && !a.source.Valid() {
		if err := a.source.Remap(); err != nil {
			return fmt.Errorf("expose source field %q: %w", a.sourceField.Name(), err)
		}
		if seedSource {
			copy(a.source.Floats(), a.sourceField.Values())
		}
		a.sourceField.Attach(a.source.Floats())
	}

	if a.target != nil && !a.target.Valid() {
		if err := a.target.Remap(); err != nil {
			return fmt.Errorf("expose target field %q: %w", a.targetField.Name(), err)
		}
		if seedTarget {
			copy(a.target.Floats(), a.targetField.Values())
		}
		a.targetField.Attach(a.target.Floats())
	}

	if a.coords != nil && !a.coords.Valid() {
		if err := a.coords.Remap(); err != nil {
			return fmt.Errorf("allocate coords buffer: %w", err)
		}
	}
	return nil
}

func (a *ScriptAction) lookupField(name, role string) (*mesh.Data, error) {
	field := a.mesh.Data(name)
	if field == nil {
		return nil, fmt.Errorf("action %s/%s: %s field %q not present on mesh",
			a.modulePath, a.moduleName, role, name)
	}
	return field, nil
}

// Close detaches exposed fields back into host-owned storage, releases the
// module instance, and drops the runtime reference. Safe to call more than
// once.
func (a *ScriptAction) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true

	ctx := context.Background()

	// Copy field contents out of guest memory before the module goes away.
	if a.sourceField != nil {
		a.sourceField.Detach()
	}
	if a.targetField != nil {
		a.targetField.Detach()
	}

	var errs []error
	if a.binding != nil {
		if err := a.binding.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.engine.Release(ctx); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}
