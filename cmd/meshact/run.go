package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tkoenig/meshact/config"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the configured timesteps",
	Long: `Load the mesh and actions from the configuration file and run the
configured number of timesteps, printing the field values at the end.`,
	Run: runRun,
}

func init() {
	runCmd.Flags().Int("steps", 0, "Override run.steps from the config")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) {
	configFile, _ := cmd.Flags().GetString("config")
	varSpecs, _ := cmd.Flags().GetStringSlice("var")
	stepsOverride, _ := cmd.Flags().GetInt("steps")

	vars, err := parseVars(varSpecs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	cfg, err := config.Load(ctx, configFile, vars)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if stepsOverride > 0 {
		cfg.Run.Steps = stepsOverride
	}

	d, err := newDriver(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer d.close()

	if err := d.initialize(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	for i := 0; i < cfg.Run.Steps; i++ {
		if err := d.advance(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Printf("completed %d steps, t=%g\n", d.step, d.time)
	for _, name := range d.mesh.DataNames() {
		fmt.Printf("%s: %v\n", name, d.mesh.Data(name).Values())
	}
}
