// Package config loads the driver configuration: the mesh file, the
// per-vertex fields to create, and the script actions to fire each
// timestep.
package config

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/tkoenig/meshact/internal/ctxlog"
)

// Config is the decoded driver configuration.
type Config struct {
	Mesh    *MeshBlock     `hcl:"mesh,block"`
	Fields  []*FieldBlock  `hcl:"field,block"`
	Actions []*ActionBlock `hcl:"action,block"`
	Run     *RunBlock      `hcl:"run,block"`
}

// MeshBlock names the mesh file to load.
type MeshBlock struct {
	File string `hcl:"file"`
}

// FieldBlock declares a per-vertex field created on the mesh before any
// action runs.
type FieldBlock struct {
	Name       string `hcl:"name,label"`
	Dimensions int    `hcl:"dimensions"`
}

// ActionBlock declares one script action.
type ActionBlock struct {
	Name       string `hcl:"name,label"`
	Timing     string `hcl:"timing"`
	ModulePath string `hcl:"module_path"`
	ModuleName string `hcl:"module_name"`
	SourceData string `hcl:"source_data,optional"`
	TargetData string `hcl:"target_data,optional"`
}

// RunBlock controls the timestep loop.
type RunBlock struct {
	Steps int     `hcl:"steps"`
	DT    float64 `hcl:"dt"`
}

// Load parses and decodes an HCL configuration file. Values in vars are
// exposed to expressions as var.<name>.
func Load(ctx context.Context, path string, vars map[string]string) (*Config, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("loading configuration", "path", path, "vars", len(vars))

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parse config %s: %w", path, diags)
	}

	ctyVars := make(map[string]cty.Value, len(vars))
	for k, v := range vars {
		ctyVars[k] = cty.StringVal(v)
	}
	evalCtx := &hcl.EvalContext{
		Variables: map[string]cty.Value{},
	}
	if len(ctyVars) > 0 {
		evalCtx.Variables["var"] = cty.ObjectVal(ctyVars)
	}

	var cfg Config
	diags = gohcl.DecodeBody(file.Body, evalCtx, &cfg)
	if diags.HasErrors() {
		return nil, fmt.Errorf("decode config %s: %w", path, diags)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	logger.Debug("configuration loaded",
		"fields", len(cfg.Fields), "actions", len(cfg.Actions))
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Mesh == nil || c.Mesh.File == "" {
		return fmt.Errorf("mesh block with a file is required")
	}
	if c.Run == nil {
		c.Run = &RunBlock{Steps: 1, DT: 1.0}
	}
	if c.Run.Steps < 0 {
		return fmt.Errorf("run.steps must not be negative")
	}
	if c.Run.DT <= 0 {
		return fmt.Errorf("run.dt must be positive")
	}
	for _, f := range c.Fields {
		if f.Dimensions < 1 {
			return fmt.Errorf("field %q: dimensions must be at least 1", f.Name)
		}
	}
	for _, a := range c.Actions {
		if a.ModulePath == "" || a.ModuleName == "" {
			return fmt.Errorf("action %q: module_path and module_name are required", a.Name)
		}
		if a.Timing == "" {
			return fmt.Errorf("action %q: timing is required", a.Name)
		}
	}
	return nil
}
