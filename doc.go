// Package meshact provides a pluggable action execution subsystem for
// mesh-based simulation coupling: user-supplied computation logic, compiled
// to WebAssembly, invoked at defined points in a simulation timestep and
// operating in place on per-vertex field data.
//
// # Overview
//
// An action is a wasm module resolved by name from a search path. At each
// configured timestep point the action invokes the module's entry points
// with the current time quantities and zero-copy views over the mesh's
// source and target field arrays.
//
// # Basic Usage
//
//	m := mesh.New(3)
//	m.AddVertex(0, 0, 0)
//	m.CreateData("Forces", 1)
//
//	act, _ := action.New(action.OnTimestepComplete, "./scripts", "scale", m,
//	    action.WithTargetData("Forces"))
//	defer act.Close()
//
//	act.PerformAction(ctx, t, dt, partialDt, fullDt)
//
// # Script ABI
//
// Modules export alloc and perform_action, and optionally vertex_callback
// (switching invocation to once per mesh vertex) and post_action (always
// called last with the whole arrays). See the [script] package for the
// exact export signatures.
//
// See the [action], [script], [engine], [geometry], and [mesh] packages for
// detailed API documentation.
package meshact
