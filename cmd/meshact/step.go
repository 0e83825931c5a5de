package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/tkoenig/meshact/config"
)

var stepCmd = &cobra.Command{
	Use:   "step",
	Short: "Interactive stepping through timesteps",
	Long: `Step through the simulation interactively.

Commands:
  step [n]      advance n timesteps (default 1)
  show <field>  print a field's values
  fields        list fields
  time          print current step and time
  exit          quit

Type 'exit' or press Ctrl+D to end the session.`,
	Run: runStep,
}

func init() {
	stepCmd.Flags().String("history", "", "History file path (default: ~/.meshact_history)")
	rootCmd.AddCommand(stepCmd)
}

func runStep(cmd *cobra.Command, args []string) {
	configFile, _ := cmd.Flags().GetString("config")
	varSpecs, _ := cmd.Flags().GetStringSlice("var")
	historyFile, _ := cmd.Flags().GetString("history")

	if historyFile == "" {
		home, _ := os.UserHomeDir()
		historyFile = filepath.Join(home, ".meshact_history")
	}

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

	completer := readline.NewPrefixCompleter(
		readline.PcItem("step"),
		readline.PcItem("show"),
		readline.PcItem("fields"),
		readline.PcItem("time"),
		readline.PcItem("exit"),
	)
	rl, err := readline.NewEx(&readline.Config{
		Prompt:       "meshact> ",
		HistoryFile:  historyFile,
		AutoComplete: completer,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			return
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "exit", "quit":
			return
		case "step":
			n := 1
			if len(fields) > 1 {
				if n, err = strconv.Atoi(fields[1]); err != nil || n < 1 {
					fmt.Println("usage: step [n]")
					continue
				}
			}
			for i := 0; i < n; i++ {
				if err := d.advance(ctx); err != nil {
					fmt.Fprintf(os.Stderr, "Error: %v\n", err)
					break
				}
			}
			fmt.Printf("step %d, t=%g\n", d.step, d.time)
		case "show":
			if len(fields) != 2 {
				fmt.Println("usage: show <field>")
				continue
			}
			data := d.mesh.Data(fields[1])
			if data == nil {
				fmt.Printf("no field %q\n", fields[1])
				continue
			}
			fmt.Println(data.Values())
		case "fields":
			for _, name := range d.mesh.DataNames() {
				fmt.Println(name)
			}
		case "time":
			fmt.Printf("step %d, t=%g\n", d.step, d.time)
		default:
			fmt.Printf("unknown command %q\n", fields[0])
		}
	}
}
