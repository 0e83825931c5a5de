package action_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/tkoenig/meshact/action"
	"github.com/tkoenig/meshact/engine"
	"github.com/tkoenig/meshact/internal/wasmbin"
	"github.com/tkoenig/meshact/mesh"
	"github.com/tkoenig/meshact/script"
)

func writeModule(t *testing.T, dir, name string, wasm []byte) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name+".wasm"), wasm, 0o644); err != nil {
		t.Fatal(err)
	}
}

// scalarMesh builds an n-vertex mesh with scalar "src" and "tgt" fields,
// src seeded with 1..n.
func scalarMesh(t *testing.T, n int) *mesh.Mesh {
	t.Helper()
	m := mesh.New(2)
	for i := 0; i < n; i++ {
		m.AddVertex(float64(i), 0)
	}
	src := m.CreateData("src", 1)
	vals := make([]float64, n)
	for i := range vals {
		vals[i] = float64(i + 1)
	}
	src.Set(vals)
	m.CreateData("tgt", 1)
	return m
}

func newAction(t *testing.T, timing action.Timing, dir, name string, m *mesh.Mesh, opts ...action.Option) *action.ScriptAction {
	t.Helper()
	act, err := action.New(timing, dir, name, m, opts...)
	if err != nil {
		t.Fatalf("create action: %v", err)
	}
	t.Cleanup(func() { act.Close() })
	return act
}

func checkValues(t *testing.T, got, want []float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d values, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("value %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestPerVertexScale(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "scale_v", wasmbin.VertexScaleModule(false))
	m := scalarMesh(t, 3)

	act := newAction(t, action.OnTimestepComplete, dir, "scale_v", m,
		action.WithSourceData("src"), action.WithTargetData("tgt"))

	if err := act.PerformAction(context.Background(), 0, 0.1, 0.1, 0.1); err != nil {
		t.Fatalf("perform: %v", err)
	}
	checkValues(t, m.Data("tgt").Values(), []float64{2, 4, 6})
}

func TestWholeArrayScale(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "scale", wasmbin.ScaleModule())
	m := scalarMesh(t, 3)

	act := newAction(t, action.OnTimestepComplete, dir, "scale", m,
		action.WithSourceData("src"), action.WithTargetData("tgt"))

	if err := act.PerformAction(context.Background(), 0, 0.1, 0.1, 0.1); err != nil {
		t.Fatalf("perform: %v", err)
	}
	checkValues(t, m.Data("tgt").Values(), []float64{2, 4, 6})
}

func TestPerVertexScaleWithGrowingAllocator(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "scale_grow", wasmbin.GrowingVertexScaleModule())
	m := scalarMesh(t, 3)

	act := newAction(t, action.OnTimestepComplete, dir, "scale_grow", m,
		action.WithSourceData("src"), action.WithTargetData("tgt"))

	// Every allocation grows guest memory, so each buffer placed for this
	// call moves the backing array out from under the views taken before
	// it. Guest writes must still land in the host-visible field.
	if err := act.PerformAction(context.Background(), 0, 0.1, 0.1, 0.1); err != nil {
		t.Fatalf("perform: %v", err)
	}
	checkValues(t, m.Data("tgt").Values(), []float64{2, 4, 6})
}

func TestWholeArrayScaleWithGrowingAllocator(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "scale_grow", wasmbin.GrowingScaleModule())
	m := scalarMesh(t, 3)

	act := newAction(t, action.OnTimestepComplete, dir, "scale_grow", m,
		action.WithSourceData("src"), action.WithTargetData("tgt"))

	if err := act.PerformAction(context.Background(), 0, 0.1, 0.1, 0.1); err != nil {
		t.Fatalf("perform: %v", err)
	}
	checkValues(t, m.Data("tgt").Values(), []float64{2, 4, 6})
}

func TestPostHookRunsAfterPerVertexLoop(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "scale_post", wasmbin.VertexScaleModule(true))
	m := scalarMesh(t, 3)

	act := newAction(t, action.OnTimestepComplete, dir, "scale_post", m,
		action.WithSourceData("src"), action.WithTargetData("tgt"))

	if err := act.PerformAction(context.Background(), 0, 0.1, 0.1, 0.1); err != nil {
		t.Fatalf("perform: %v", err)
	}
	// Per-vertex doubling, then the hook adds 1 to the first entry.
	checkValues(t, m.Data("tgt").Values(), []float64{3, 4, 6})
}

func TestBindingOccursExactlyOnce(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "scale", wasmbin.ScaleModule())
	m := scalarMesh(t, 3)

	act := newAction(t, action.OnTimestepComplete, dir, "scale", m,
		action.WithSourceData("src"), action.WithTargetData("tgt"))

	ctx := context.Background()
	if err := act.PerformAction(ctx, 0, 0.1, 0.1, 0.1); err != nil {
		t.Fatalf("first perform: %v", err)
	}

	// If the second call re-resolved the module it would fail: the file is
	// gone.
	if err := os.Remove(filepath.Join(dir, "scale.wasm")); err != nil {
		t.Fatal(err)
	}
	if err := act.PerformAction(ctx, 0.1, 0.1, 0.1, 0.1); err != nil {
		t.Fatalf("second perform re-resolved the module: %v", err)
	}
	checkValues(t, m.Data("tgt").Values(), []float64{2, 4, 6})
}

func TestTrapAtFifthVertexLeavesPartialEffect(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "trap5", wasmbin.TrapAtVertexModule(4))
	m := scalarMesh(t, 10)

	act := newAction(t, action.OnTimestepComplete, dir, "trap5", m,
		action.WithSourceData("src"), action.WithTargetData("tgt"))

	err := act.PerformAction(context.Background(), 0, 0.1, 0.1, 0.1)
	var execErr *script.ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected ExecutionError, got %v", err)
	}

	// Vertices 0-4 wrote before the trap; 5-9 were never invoked.
	checkValues(t, m.Data("tgt").Values(),
		[]float64{2, 4, 6, 8, 10, 0, 0, 0, 0, 0})
}

func TestRetryAfterTrapRebinds(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "flaky", wasmbin.TrapAtVertexModule(1))
	m := scalarMesh(t, 3)

	act := newAction(t, action.OnTimestepComplete, dir, "flaky", m,
		action.WithSourceData("src"), action.WithTargetData("tgt"))

	ctx := context.Background()
	if err := act.PerformAction(ctx, 0, 0.1, 0.1, 0.1); err == nil {
		t.Fatal("expected trap")
	}

	// The next timestep retries against a healthy module.
	writeModule(t, dir, "flaky", wasmbin.VertexScaleModule(false))
	if err := act.PerformAction(ctx, 0.1, 0.1, 0.1, 0.1); err != nil {
		t.Fatalf("retry: %v", err)
	}
	checkValues(t, m.Data("tgt").Values(), []float64{2, 4, 6})
}

func TestMissingEntryPointPerformsNoInvocation(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "empty", wasmbin.NoPerformModule())
	m := scalarMesh(t, 3)

	act := newAction(t, action.OnTimestepComplete, dir, "empty", m,
		action.WithSourceData("src"), action.WithTargetData("tgt"))

	err := act.PerformAction(context.Background(), 0, 0.1, 0.1, 0.1)
	var missing *script.EntryPointMissingError
	if !errors.As(err, &missing) {
		t.Fatalf("expected EntryPointMissingError, got %v", err)
	}
	checkValues(t, m.Data("tgt").Values(), []float64{0, 0, 0})
}

func TestUnknownFieldFails(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "scale", wasmbin.ScaleModule())
	m := scalarMesh(t, 3)

	act := newAction(t, action.OnTimestepComplete, dir, "scale", m,
		action.WithSourceData("nope"), action.WithTargetData("tgt"))

	if err := act.PerformAction(context.Background(), 0, 0.1, 0.1, 0.1); err == nil {
		t.Fatal("expected error for unknown source field")
	}
}

func TestPerformAfterClose(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "scale", wasmbin.ScaleModule())
	m := scalarMesh(t, 3)

	act, err := action.New(action.OnTimestepComplete, dir, "scale", m,
		action.WithSourceData("src"), action.WithTargetData("tgt"))
	if err != nil {
		t.Fatalf("create action: %v", err)
	}
	if err := act.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if err := act.PerformAction(context.Background(), 0, 0.1, 0.1, 0.1); !errors.Is(err, action.ErrActionClosed) {
		t.Fatalf("expected ErrActionClosed, got %v", err)
	}
}

func TestFieldSurvivesClose(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "scale", wasmbin.ScaleModule())
	m := scalarMesh(t, 3)

	act, err := action.New(action.OnTimestepComplete, dir, "scale", m,
		action.WithSourceData("src"), action.WithTargetData("tgt"))
	if err != nil {
		t.Fatalf("create action: %v", err)
	}
	if err := act.PerformAction(context.Background(), 0, 0.1, 0.1, 0.1); err != nil {
		t.Fatalf("perform: %v", err)
	}
	if err := act.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Values written by the script outlive the module instance.
	checkValues(t, m.Data("tgt").Values(), []float64{2, 4, 6})
}

func TestRemeshingRebuildsBuffers(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "scale", wasmbin.ScaleModule())
	m := scalarMesh(t, 3)

	act := newAction(t, action.OnTimestepComplete, dir, "scale", m,
		action.WithSourceData("src"), action.WithTargetData("tgt"))

	ctx := context.Background()
	if err := act.PerformAction(ctx, 0, 0.1, 0.1, 0.1); err != nil {
		t.Fatalf("first perform: %v", err)
	}

	// Grow the mesh between timesteps; the fields grow with it and the
	// exposed buffers must be rebuilt to match.
	m.AddVertex(3, 0)
	m.Data("src").Set([]float64{1, 2, 3, 4})

	if err := act.PerformAction(ctx, 0.1, 0.1, 0.1, 0.1); err != nil {
		t.Fatalf("second perform: %v", err)
	}
	checkValues(t, m.Data("tgt").Values(), []float64{2, 4, 6, 8})
}

func TestRuntimeRefCountAcrossActions(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "noop", wasmbin.NoArgsModule())
	m := mesh.New(2)

	if engine.Refs() != 0 {
		t.Fatalf("expected no outstanding refs, got %d", engine.Refs())
	}

	actions := make([]*action.ScriptAction, 3)
	for i := range actions {
		act, err := action.New(action.OnTimestepComplete, dir, "noop", m)
		if err != nil {
			t.Fatalf("create action %d: %v", i, err)
		}
		actions[i] = act
	}
	if got := engine.Refs(); got != 3 {
		t.Fatalf("expected 3 refs, got %d", got)
	}

	actions[0].Close()
	actions[1].Close()
	if got := engine.Refs(); got != 1 {
		t.Fatalf("expected 1 ref after closing 2 of 3, got %d", got)
	}

	actions[2].Close()
	if got := engine.Refs(); got != 0 {
		t.Fatalf("expected 0 refs after closing all, got %d", got)
	}
}

func TestActionWithoutFields(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "noop", wasmbin.NoArgsModule())
	m := mesh.New(2)
	m.AddVertex(0, 0)

	act := newAction(t, action.AtInitialization, dir, "noop", m)
	if err := act.PerformAction(context.Background(), 0, 0.1, 0.1, 0.1); err != nil {
		t.Fatalf("perform: %v", err)
	}
	if act.Timing() != action.AtInitialization {
		t.Errorf("unexpected timing %v", act.Timing())
	}
}
