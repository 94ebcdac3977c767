package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"kestrel/internal/scenario"
)

var benchCmd = &cobra.Command{
	Use:   "bench [flags] [scenario...]",
	Short: "Repeat workloads and report throughput",
	RunE:  runBench,
}

func init() {
	benchCmd.Flags().Int("iterations", 10, "runs per scenario")
	benchCmd.Flags().String("config", "", "TOML scenario config file")
}

func runBench(cmd *cobra.Command, args []string) error {
	iterations, err := cmd.Flags().GetInt("iterations")
	if err != nil {
		return fmt.Errorf("failed to get iterations flag: %w", err)
	}
	if iterations < 1 {
		return fmt.Errorf("iterations must be positive, got %d", iterations)
	}
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return fmt.Errorf("failed to get config flag: %w", err)
	}
	if _, err := resolveColor(cmd); err != nil {
		return err
	}

	cfg := scenario.Default()
	if configPath != "" {
		cfg, err = scenario.Load(configPath)
		if err != nil {
			return err
		}
	}
	// Benchmarks skip tracing; the ring buffer skews hot paths.
	cfg.TraceSize = 0
	if len(args) > 0 {
		cfg.Scenarios = args
	}

	p := message.NewPrinter(language.English)
	out := cmd.OutOrStdout()
	for _, name := range cfg.Names() {
		var ops, ticks uint64
		var elapsed time.Duration
		for i := 0; i < iterations; i++ {
			res, err := scenario.Run(cmd.Context(), cfg, name)
			if err != nil {
				return err
			}
			ops += res.Ops
			ticks += res.Ticks
			elapsed += res.Elapsed
		}
		perSec := float64(ops) / elapsed.Seconds()
		p.Fprintf(out, "%-8s %d iters  %d ops  %d ticks  %v  %.0f ops/s\n",
			name, iterations, ops, ticks, elapsed.Round(time.Millisecond), perSec)
	}
	return nil
}
