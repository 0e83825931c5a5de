package main

import (
	"context"
	"fmt"

	"github.com/tkoenig/meshact/action"
	"github.com/tkoenig/meshact/config"
	"github.com/tkoenig/meshact/internal/ctxlog"
	"github.com/tkoenig/meshact/mesh"
)

// driver is a minimal timestep harness: it loads the mesh, creates the
// configured fields, and fires every action at its timing point once per
// step. It is not a coupling scheme; actions just see a monotonic clock.
type driver struct {
	cfg     *config.Config
	mesh    *mesh.Mesh
	actions []*action.ScriptAction
	names   []string

	step int
	time float64
}

func newDriver(ctx context.Context, cfg *config.Config) (*driver, error) {
	logger := ctxlog.FromContext(ctx)

	m, err := mesh.LoadFile(cfg.Mesh.File)
	if err != nil {
		return nil, err
	}
	logger.Info("mesh loaded", "file", cfg.Mesh.File,
		"vertices", m.VertexCount(), "edges", m.EdgeCount(), "triangles", m.TriangleCount())

	for _, f := range cfg.Fields {
		m.CreateData(f.Name, f.Dimensions)
	}

	d := &driver{cfg: cfg, mesh: m}
	for _, ab := range cfg.Actions {
		timing, err := action.ParseTiming(ab.Timing)
		if err != nil {
			d.close()
			return nil, fmt.Errorf("action %q: %w", ab.Name, err)
		}

		var opts []action.Option
		if ab.SourceData != "" {
			opts = append(opts, action.WithSourceData(ab.SourceData))
		}
		if ab.TargetData != "" {
			opts = append(opts, action.WithTargetData(ab.TargetData))
		}

		act, err := action.New(timing, ab.ModulePath, ab.ModuleName, m, opts...)
		if err != nil {
			d.close()
			return nil, fmt.Errorf("action %q: %w", ab.Name, err)
		}
		d.actions = append(d.actions, act)
		d.names = append(d.names, ab.Name)
	}
	return d, nil
}

// initialize fires all at-initialization actions once.
func (d *driver) initialize(ctx context.Context) error {
	return d.fire(ctx, action.AtInitialization, d.cfg.Run.DT)
}

// advance runs one timestep, firing the remaining timing points in order.
func (d *driver) advance(ctx context.Context) error {
	dt := d.cfg.Run.DT
	for _, timing := range []action.Timing{
		action.BeforeDataSend,
		action.AfterDataReceive,
		action.OnTimestepComplete,
	} {
		if err := d.fire(ctx, timing, dt); err != nil {
			return err
		}
	}
	d.step++
	d.time += dt
	return nil
}

func (d *driver) fire(ctx context.Context, timing action.Timing, dt float64) error {
	logger := ctxlog.FromContext(ctx)
	for i, act := range d.actions {
		if act.Timing() != timing {
			continue
		}
		logger.Debug("performing action", "action", d.names[i],
			"timing", timing.String(), "step", d.step, "time", d.time)
		if err := act.PerformAction(ctx, d.time, dt, dt, dt); err != nil {
			return fmt.Errorf("action %q: %w", d.names[i], err)
		}
	}
	return nil
}

func (d *driver) close() {
	for _, act := range d.actions {
		act.Close()
	}
}
