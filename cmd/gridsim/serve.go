package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/talgya/gridsim/internal/api"
	"github.com/talgya/gridsim/internal/config"
	"github.com/talgya/gridsim/internal/engine"
	"github.com/talgya/gridsim/internal/metrics"
	"github.com/talgya/gridsim/internal/persistence"
	"github.com/talgya/gridsim/internal/threat"
	"github.com/talgya/gridsim/internal/ticklog"
)

func serveCmd(load configLoader) *cobra.Command {
	var fresh bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the simulation in real time behind the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, fresh)
		},
	}
	cmd.Flags().BoolVar(&fresh, "fresh", false, "ignore saved state and rebuild from the scenario")
	return cmd
}

func serve(parent context.Context, cfg *config.Config, fresh bool) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Database ──────────────────────────────────────────────────────
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	db, err := persistence.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	slog.Info("database opened", "path", cfg.Database.Path)

	// ── Load or Build World ──────────────────────────────────────────
	sc, err := loadScenario(cfg.Simulation.Scenario)
	if err != nil {
		return err
	}

	var w *engine.World
	has, err := db.HasWorldState()
	if err != nil {
		return err
	}
	if has && !fresh {
		slog.Info("found saved world state, loading...")
		if w, err = db.LoadWorld(worldOptions(cfg)); err != nil {
			return fmt.Errorf("load world: %w", err)
		}
	} else {
		if w, err = sc.Build(worldOptions(cfg)); err != nil {
			return fmt.Errorf("build world: %w", err)
		}
		if err := db.BeginRun(w.RunID); err != nil {
			return fmt.Errorf("begin run: %w", err)
		}
		if _, err := sc.Apply(w, 0); err != nil {
			return err
		}
		if err := db.SaveWorldState(w); err != nil {
			slog.Error("initial save failed", "error", err)
		}
		if err := db.SaveMeta(persistence.MetaScenario, sc.Name); err != nil {
			slog.Error("scenario name save failed", "scenario", sc.Name, "error", err)
		}
	}
	slog.Info("world ready", "run_id", w.RunID, "tick", w.CurrentTick(), "scenario", sc.Name)

	// ── Metrics ──────────────────────────────────────────────────────
	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		collector = metrics.NewCollector()
		if err := collector.Register(); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
	}

	// ── Tick Log ─────────────────────────────────────────────────────
	var tl *ticklog.Writer
	if cfg.TickLog.Enabled {
		tl = ticklog.NewWriter(cfg.TickLog.Dir, w.RunID)
		defer func() {
			if err := tl.Close(); err != nil {
				slog.Error("tick log close failed", "error", err)
			}
		}()
		slog.Info("tick log enabled", "dir", cfg.TickLog.Dir)
	}

	// ── Threat Campaign ──────────────────────────────────────────────
	var campaign *threat.Campaign
	if cfg.Campaign.Enabled {
		campaign, err = threat.New(cfg.Campaign.Seed, cfg.Campaign.Threshold, cfg.Campaign.Frequency, cfg.Campaign.Every)
		if err != nil {
			return err
		}
		slog.Info("threat campaign enabled", "seed", cfg.Campaign.Seed, "threshold", cfg.Campaign.Threshold)
	}

	// ── Engine ───────────────────────────────────────────────────────
	eng := engine.NewEngine(w)
	eng.Interval = cfg.Simulation.Interval
	eng.CheckpointEvery = cfg.Simulation.CheckpointEvery
	eng.SetSpeed(cfg.Simulation.Speed)

	hub := api.NewHub()
	go hub.Run(ctx)

	var limiter *api.RateLimiter
	if cfg.API.AdminKey != "" {
		limiter = api.NewRateLimiter(cfg.API.RateLimit.Requests, cfg.API.RateLimit.Burst)
	} else {
		slog.Warn("GRIDSIM_API_ADMIN_KEY not set, admin POST endpoints will be disabled")
	}

	apiServer := &api.Server{
		World:       w,
		Eng:         eng,
		DB:          db,
		Metrics:     collector,
		Hub:         hub,
		Limiter:     limiter,
		Port:        cfg.API.Port,
		AdminKey:    cfg.API.AdminKey,
		MetricsPath: cfg.Metrics.Path,
		CORSOrigins: cfg.API.CORSOrigins,
	}

	eng.OnTick = func(s engine.Summary) {
		outcomes, err := sc.Apply(w, s.Tick)
		if err != nil {
			slog.Error("scenario event failed", "tick", s.Tick, "error", err)
		}
		if campaign != nil {
			more, err := campaign.Apply(w, s.Tick)
			if err != nil {
				slog.Error("campaign step failed", "tick", s.Tick, "error", err)
			}
			outcomes = append(outcomes, more...)
		}
		for _, o := range outcomes {
			if collector != nil {
				collector.RecordCommand(o)
			}
			hub.Publish("command", s.Tick, o)
		}

		if collector != nil {
			collector.Observe(s, eng.LastTickDuration())
		}
		if err := db.SaveStats(s); err != nil {
			slog.Error("stats save failed", "tick", s.Tick, "error", err)
		}
		if tl != nil {
			if err := tl.WriteSummary(s); err != nil {
				slog.Error("tick log write failed", "tick", s.Tick, "error", err)
			}
			if every := cfg.TickLog.SnapshotEvery; every > 0 && s.Tick%every == 0 {
				path := ticklog.SnapshotPath(cfg.TickLog.Dir, w.RunID, s.Tick)
				if err := ticklog.WriteGraph(path, w.Graph()); err != nil {
					slog.Error("graph snapshot failed", "tick", s.Tick, "error", err)
				}
			}
		}
		apiServer.PublishTick(s)
	}
	eng.OnCheckpoint = func(tick uint64) {
		if err := db.SaveWorldState(w); err != nil {
			slog.Error("checkpoint save failed", "tick", tick, "error", err)
			return
		}
		slog.Info("checkpoint saved", "tick", tick)
	}

	// ── HTTP API ──────────────────────────────────────────────────────
	apiServer.Start()

	// ── Start ─────────────────────────────────────────────────────────
	sum := w.StatusSummary()
	fmt.Printf("\ngridsim is running: %s buildings and %s edges active.\n", sum.Buildings, sum.Edges)
	fmt.Printf("API: http://localhost:%d/api/v1/status\n", cfg.API.Port)
	if t := w.CurrentTick(); t > 0 {
		fmt.Printf("Resuming from tick %d\n", t)
	}
	fmt.Println("Starting simulation... (Ctrl+C to stop)")

	eng.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP shutdown", "error", err)
	}

	// Final save on shutdown.
	slog.Info("final save...")
	if err := db.SaveWorldState(w); err != nil {
		slog.Error("final save failed", "error", err)
		return err
	}
	fmt.Println("Simulation stopped. World state saved.")
	return nil
}
