// Command gridsim runs the interdependent infrastructure simulation: as a
// long-running service with an HTTP API, as a batch run, or as tooling
// around scenario files and tick-log archives.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/talgya/gridsim/internal/config"
	"github.com/talgya/gridsim/internal/engine"
	"github.com/talgya/gridsim/internal/scenario"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "gridsim",
		Short:         "Tick-based simulation of interdependent city infrastructure",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default: ./config.yaml, ./configs, /etc/gridsim)")

	load := func() (*config.Config, error) {
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return nil, err
		}
		slog.SetDefault(cfg.Logging.NewLogger(os.Stderr))
		return cfg, nil
	}

	rootCmd.AddCommand(serveCmd(load))
	rootCmd.AddCommand(runCmd(load))
	rootCmd.AddCommand(validateCmd())
	rootCmd.AddCommand(historyCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type configLoader func() (*config.Config, error)

// ── Shared helpers ────────────────────────────────────────────────

func worldOptions(cfg *config.Config) engine.Options {
	return engine.Options{
		HistoryLimit:  cfg.Simulation.HistoryLimit,
		SnapshotEvery: cfg.Simulation.SnapshotEvery,
		SnapshotLimit: cfg.Simulation.SnapshotLimit,
		EventLimit:    cfg.Simulation.EventLimit,
	}
}

// loadScenario returns the built-in scenario when path is empty.
func loadScenario(path string) (*scenario.Scenario, error) {
	if path == "" {
		return scenario.Default(), nil
	}
	return scenario.Load(path)
}

// formatLedger renders "electricity=1,234.5 water=80" in resource order.
func formatLedger(m map[string]float64) string {
	if len(m) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, humanize.CommafWithDigits(m[k], 1)))
	}
	return strings.Join(parts, " ")
}

func printSummaryLine(s engine.Summary) {
	fmt.Printf("tick %-6s buildings %-6s edges %-6s %s\n",
		humanize.Comma(int64(s.Tick)), s.Buildings, s.Edges, formatLedger(s.Resources.Names()))
}
