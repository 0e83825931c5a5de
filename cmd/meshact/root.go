package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "meshact",
	Short: "Timestep driver for wasm mesh actions",
	Long: `meshact - Run user-supplied wasm script modules against mesh field data.

Actions are declared in an HCL configuration file together with the mesh
to load and the fields to create. Each timestep the driver invokes every
action at its configured timing point.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level, _ := cmd.Flags().GetString("log-level")
		configureLogging(level)
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "meshact.hcl", "Configuration file")
	rootCmd.PersistentFlags().String("log-level", "warn", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringSlice("var", nil, "Config variable name=value (repeatable)")
}

func configureLogging(level string) {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "info":
		l = slog.LevelInfo
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelWarn
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
}

func parseVars(specs []string) (map[string]string, error) {
	vars := make(map[string]string, len(specs))
	for _, spec := range specs {
		name, value, ok := strings.Cut(spec, "=")
		if !ok {
			return nil, fmt.Errorf("invalid variable %q (expected name=value)", spec)
		}
		vars[name] = value
	}
	return vars, nil
}
