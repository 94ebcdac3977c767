package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"kestrel/internal/ctxlog"
	"kestrel/internal/ktrace"
	"kestrel/internal/scenario"
)

var runCmd = &cobra.Command{
	Use:   "run [flags] [scenario...]",
	Short: "Run kernel workloads and report the results",
	Long: `Run the named scenarios (or all of them) on fresh virtual-time kernels.
Scenario sizing comes from a TOML config file when --config is given.`,
	RunE: runScenarios,
}

func init() {
	runCmd.Flags().String("config", "", "TOML scenario config file")
	runCmd.Flags().String("trace-out", "", "write the kernel trace of each scenario to this path")
	runCmd.Flags().String("trace-format", "text", "trace dump format (text|ndjson|msgpack)")
}

func runScenarios(cmd *cobra.Command, args []string) error {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return fmt.Errorf("failed to get config flag: %w", err)
	}
	traceOut, err := cmd.Flags().GetString("trace-out")
	if err != nil {
		return fmt.Errorf("failed to get trace-out flag: %w", err)
	}
	traceFormat, err := cmd.Flags().GetString("trace-format")
	if err != nil {
		return fmt.Errorf("failed to get trace-format flag: %w", err)
	}
	if err := checkTraceFormat(traceFormat); err != nil {
		return err
	}
	colorize, err := resolveColor(cmd)
	if err != nil {
		return err
	}

	cfg := scenario.Default()
	if configPath != "" {
		cfg, err = scenario.Load(configPath)
		if err != nil {
			return err
		}
	}
	if len(args) > 0 {
		cfg.Scenarios = args
	}
	if traceOut != "" && cfg.TraceSize == 0 {
		cfg.TraceSize = 4096
	}

	results, err := scenario.RunAll(cmd.Context(), cfg)
	if err != nil {
		return err
	}

	fmt.Fprint(cmd.OutOrStdout(), scenario.Render(results, colorize))

	if traceOut != "" {
		log := ctxlog.FromContext(cmd.Context())
		for _, res := range results {
			if res.Trace == nil {
				continue
			}
			path := tracePath(traceOut, res.Name, len(results) > 1)
			if err := dumpTrace(res.Trace, path, traceFormat); err != nil {
				return fmt.Errorf("dump trace for %s: %w", res.Name, err)
			}
			log.Info("trace written", "scenario", res.Name, "path", path)
		}
	}
	return nil
}

func checkTraceFormat(format string) error {
	switch format {
	case "text", "ndjson", "msgpack":
		return nil
	default:
		return fmt.Errorf("unsupported trace format %q (must be text, ndjson, or msgpack)", format)
	}
}

// tracePath derives a per-scenario file name when several scenarios share
// one --trace-out value.
func tracePath(base, name string, multi bool) string {
	if !multi {
		return base
	}
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext) + "." + name + ext
}

func dumpTrace(ring *ktrace.RingTracer, path, format string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var dump func(io.Writer) error
	switch format {
	case "ndjson":
		dump = ring.DumpNDJSON
	case "msgpack":
		dump = ring.DumpMsgpack
	default:
		dump = ring.DumpText
	}
	if err := dump(f); err != nil {
		return err
	}
	return f.Close()
}
