// Command gridctl talks to a running gridsim server: it prints status,
// issues attack and recovery commands, and can watch grid health.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/talgya/gridsim/internal/engine"
	"github.com/talgya/gridsim/internal/operator"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	var (
		apiURL   string
		adminKey string
	)

	rootCmd := &cobra.Command{
		Use:           "gridctl",
		Short:         "Observe and command a running gridsim server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&apiURL, "url", envOrDefault("GRIDSIM_URL", "http://localhost:8080"), "gridsim API base URL")
	rootCmd.PersistentFlags().StringVar(&adminKey, "key", os.Getenv("GRIDSIM_API_ADMIN_KEY"), "admin bearer token")

	observer := func() *operator.Observer { return operator.NewObserver(apiURL) }
	actor := func() (*operator.Actor, error) {
		if adminKey == "" {
			return nil, fmt.Errorf("admin key required (--key or GRIDSIM_API_ADMIN_KEY)")
		}
		return operator.NewActor(apiURL, adminKey), nil
	}

	rootCmd.AddCommand(
		statusCmd(observer),
		commandCmd(engine.CommandAttack, actor),
		commandCmd(engine.CommandRecovery, actor),
		speedCmd(actor),
		snapshotCmd(actor),
		eventsCmd(observer),
		watchCmd(observer),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func statusCmd(observer func() *operator.Observer) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the current summary and health grade",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := observer().Status(cmd.Context())
			if err != nil {
				return err
			}
			printStatus(st)
			return nil
		},
	}
}

func commandCmd(kind engine.CommandKind, actor func() (*operator.Actor, error)) *cobra.Command {
	use, short := "attack <target> <severity>", "Attack a building id, layer, building's edges, or from-to pair"
	if kind == engine.CommandRecovery {
		use, short = "recover <target> <level>", "Repair a building id, layer, building's edges, or from-to pair"
	}

	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			level, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("level: %w", err)
			}
			a, err := actor()
			if err != nil {
				return err
			}

			var o *engine.Outcome
			if kind == engine.CommandAttack {
				o, err = a.Attack(cmd.Context(), args[0], level)
			} else {
				o, err = a.Recover(cmd.Context(), args[0], level)
			}
			if err != nil {
				return err
			}
			printOutcome(o)
			return nil
		},
	}
}

func speedCmd(actor func() (*operator.Actor, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "speed <multiplier>",
		Short: "Set the engine speed (0 pauses)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return err
			}
			a, err := actor()
			if err != nil {
				return err
			}
			got, err := a.SetSpeed(cmd.Context(), v)
			if err != nil {
				return err
			}
			fmt.Printf("speed %.2fx\n", got)
			return nil
		},
	}
}

func snapshotCmd(actor func() (*operator.Actor, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot",
		Short: "Capture and persist the world now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := actor()
			if err != nil {
				return err
			}
			tick, err := a.Snapshot(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("snapshot saved at tick %s\n", humanize.Comma(int64(tick)))
			return nil
		},
	}
}

func eventsCmd(observer func() *operator.Observer) *cobra.Command {
	var (
		category string
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Print recent events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			events, err := observer().Events(cmd.Context(), category, limit)
			if err != nil {
				return err
			}
			for _, e := range events {
				fmt.Printf("#%-6d tick %-6d %-9s %s\n", e.Seq, e.Tick, e.Category, e.Description)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "attack, recovery, status, scenario or campaign")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of events")
	return cmd
}

// watchCmd polls status on an interval and logs the health grade.
func watchCmd(observer func() *operator.Observer) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll status and report health changes until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return watch(ctx, observer(), interval)
		},
	}
	cmd.Flags().DurationVarP(&interval, "interval", "i", 5*time.Second, "poll interval")
	return cmd
}

func watch(ctx context.Context, obs *operator.Observer, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastLevel := ""
	for {
		st, err := obs.Status(ctx)
		if err != nil {
			slog.Error("observation failed", "error", err)
		} else {
			h := operator.Triage(st.Summary)
			if h.Level != lastLevel {
				slog.Info("grid health changed",
					"tick", st.Summary.Tick,
					"from", lastLevel,
					"to", h.Level,
					"buildings", st.Summary.Buildings,
					"edges", st.Summary.Edges,
				)
				lastLevel = h.Level
			}
		}

		select {
		case <-ctx.Done():
			fmt.Println("watch stopped.")
			return nil
		case <-ticker.C:
		}
	}
}

func printStatus(st *operator.Status) {
	s := st.Summary
	h := operator.Triage(s)
	state := "paused"
	if st.Running && st.Speed > 0 {
		state = fmt.Sprintf("running %.2fx", st.Speed)
	}

	fmt.Printf("run       %s (%s)\n", st.RunID, state)
	fmt.Printf("tick      %s\n", humanize.Comma(int64(s.Tick)))
	fmt.Printf("health    %s (buildings %.0f%%, edges %.0f%%)\n", h.Level, h.BuildingRatio*100, h.EdgeRatio*100)
	fmt.Printf("buildings %s %v\n", s.Buildings, s.BuildingStatus)
	fmt.Printf("edges     %s %v\n", s.Edges, s.EdgeStatus)
	for _, t := range s.Resources.Types() {
		fmt.Printf("  %-20s %s\n", t, humanize.CommafWithDigits(s.Resources[t], 1))
	}
}

func printOutcome(o *engine.Outcome) {
	verdict := "applied"
	switch {
	case !o.Matched():
		verdict = "no match"
	case !o.Applied:
		verdict = "ignored"
	}
	fmt.Printf("%s %s at %.2f (tick %d): %s\n", o.Kind, o.Target, o.Level, o.Tick, verdict)
	for _, r := range o.Entities {
		line := fmt.Sprintf("  %-8s %-24s %s -> %s", r.Kind, r.ID, r.Before, r.After)
		if r.Note != "" {
			line += "  (" + r.Note + ")"
		}
		fmt.Println(line)
	}
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
