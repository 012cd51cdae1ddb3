package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/talgya/gridsim/internal/config"
	"github.com/talgya/gridsim/internal/engine"
	"github.com/talgya/gridsim/internal/persistence"
	"github.com/talgya/gridsim/internal/threat"
	"github.com/talgya/gridsim/internal/ticklog"
)

type runFlags struct {
	ticks    int
	scenario string
	dbPath   string
	logDir   string
	campaign bool
	asJSON   bool
	quiet    bool
}

func runCmd(load configLoader) *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Advance a scenario a fixed number of ticks and print the summaries",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			return runBatch(cfg, f)
		},
	}
	cmd.Flags().IntVarP(&f.ticks, "ticks", "n", 0, "ticks to run (default: five past the last scheduled event, at least 30)")
	cmd.Flags().StringVarP(&f.scenario, "scenario", "s", "", "scenario file (default: simulation.scenario or the built-in city)")
	cmd.Flags().StringVar(&f.dbPath, "db", "", "save the final world and per-tick stats to this SQLite file")
	cmd.Flags().StringVar(&f.logDir, "ticklog", "", "write a compressed tick log under this directory")
	cmd.Flags().BoolVar(&f.campaign, "campaign", false, "run the configured threat campaign")
	cmd.Flags().BoolVar(&f.asJSON, "json", false, "print summaries as JSON lines")
	cmd.Flags().BoolVarP(&f.quiet, "quiet", "q", false, "print only the final summary")
	return cmd
}

func runBatch(cfg *config.Config, f runFlags) error {
	path := f.scenario
	if path == "" {
		path = cfg.Simulation.Scenario
	}
	sc, err := loadScenario(path)
	if err != nil {
		return err
	}
	w, err := sc.Build(worldOptions(cfg))
	if err != nil {
		return err
	}

	ticks := f.ticks
	if ticks <= 0 {
		ticks = int(sc.LastEventTick()) + 5
		if ticks < 30 {
			ticks = 30
		}
	}

	var campaign *threat.Campaign
	if f.campaign {
		if campaign, err = threat.New(cfg.Campaign.Seed, cfg.Campaign.Threshold, cfg.Campaign.Frequency, cfg.Campaign.Every); err != nil {
			return err
		}
	}

	var db *persistence.DB
	if f.dbPath != "" {
		if err := os.MkdirAll(filepath.Dir(f.dbPath), 0o755); err != nil {
			return err
		}
		if db, err = persistence.Open(f.dbPath); err != nil {
			return err
		}
		defer db.Close()
		if err := db.BeginRun(w.RunID); err != nil {
			return fmt.Errorf("begin run: %w", err)
		}
	}

	var tl *ticklog.Writer
	if f.logDir != "" {
		tl = ticklog.NewWriter(f.logDir, w.RunID)
		defer tl.Close()
	}

	enc := json.NewEncoder(os.Stdout)
	initial, err := sc.Apply(w, 0)
	if err != nil {
		return err
	}
	applied := countApplied(initial)

	start := time.Now()
	var last engine.Summary
	for i := 0; i < ticks; i++ {
		tick := w.Tick()

		outcomes, err := sc.Apply(w, tick)
		if err != nil {
			return err
		}
		applied += countApplied(outcomes)
		if campaign != nil {
			more, err := campaign.Apply(w, tick)
			if err != nil {
				return err
			}
			applied += len(more)
		}

		last = w.StatusSummary()
		if db != nil {
			if err := db.SaveStats(last); err != nil {
				return fmt.Errorf("save stats: %w", err)
			}
		}
		if tl != nil {
			if err := tl.WriteSummary(last); err != nil {
				return fmt.Errorf("tick log: %w", err)
			}
		}

		if f.quiet {
			continue
		}
		if f.asJSON {
			if err := enc.Encode(last); err != nil {
				return err
			}
		} else {
			printSummaryLine(last)
		}
	}
	took := time.Since(start)

	if db != nil {
		if err := db.SaveWorldState(w); err != nil {
			return fmt.Errorf("save world: %w", err)
		}
		if err := db.SaveMeta(persistence.MetaScenario, sc.Name); err != nil {
			return fmt.Errorf("save scenario name: %w", err)
		}
	}

	slog.Info("run complete",
		"scenario", sc.Name,
		"run_id", w.RunID,
		"ticks", ticks,
		"commands_applied", applied,
		"took", took,
	)

	if f.asJSON {
		return nil
	}
	fmt.Printf("\n%s: %s ticks in %s, %d commands applied\n",
		sc.Name, humanize.Comma(int64(ticks)), took.Round(time.Millisecond), applied)
	fmt.Printf("final  buildings %s  edges %s\n", last.Buildings, last.Edges)
	fmt.Printf("stock  %s\n", formatLedger(last.Resources.Names()))
	fmt.Printf("moving %s\n", formatLedger(last.InTransit.Names()))
	return nil
}

func countApplied(outcomes []engine.Outcome) int {
	n := 0
	for _, o := range outcomes {
		if o.Applied {
			n++
		}
	}
	return n
}
