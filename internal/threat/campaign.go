// Package threat generates deterministic attack and repair campaigns from
// simplex noise. Each target samples two noise fields along the tick axis:
// one drives strikes, the other drives repair crews.
package threat

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/talgya/gridsim/internal/engine"
)

// ErrInvalidCampaign is returned by Validate.
var ErrInvalidCampaign = errors.New("invalid campaign")

// Campaign parameters.
type Campaign struct {
	Seed      int64   // Noise seed; equal seeds give equal plans
	Threshold float64 // Noise level (0–1) at or above which a target is hit
	Frequency float64 // Noise frequency along the tick axis
	Every     uint64  // Plan on ticks divisible by Every (0 or 1: every tick)
	Octaves   int     // Fractal octaves (default 2)

	strike opensimplex.Noise
	repair opensimplex.Noise
}

// Action is one planned command.
type Action struct {
	Kind   engine.CommandKind `json:"kind"`
	Target string             `json:"target"`
	Level  float64            `json:"level"`
}

// New validates the parameters and seeds the noise fields.
func New(seed int64, threshold, frequency float64, every uint64) (*Campaign, error) {
	c := &Campaign{Seed: seed, Threshold: threshold, Frequency: frequency, Every: every}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	c.init()
	return c, nil
}

// Validate checks the parameter ranges.
func (c *Campaign) Validate() error {
	if c.Threshold < 0 || c.Threshold > 1 {
		return fmt.Errorf("%w: threshold %v outside [0,1]", ErrInvalidCampaign, c.Threshold)
	}
	if c.Frequency <= 0 {
		return fmt.Errorf("%w: frequency must be positive", ErrInvalidCampaign)
	}
	if c.Octaves < 0 {
		return fmt.Errorf("%w: negative octaves", ErrInvalidCampaign)
	}
	return nil
}

func (c *Campaign) init() {
	if c.strike != nil {
		return
	}
	if c.Octaves == 0 {
		c.Octaves = 2
	}
	c.strike = opensimplex.NewNormalized(c.Seed)
	c.repair = opensimplex.NewNormalized(c.Seed + 1)
}

// Due reports whether the campaign plans anything on tick.
func (c *Campaign) Due(tick uint64) bool {
	return c.Every <= 1 || tick%c.Every == 0
}

// Plan returns the strikes and repairs for tick. Targets are sampled at
// fixed x offsets, so reordering targets changes the plan. A target struck
// on a tick is never also repaired on it.
func (c *Campaign) Plan(targets []string, tick uint64) []Action {
	if !c.Due(tick) {
		return nil
	}
	c.init()

	var out []Action
	y := float64(tick)
	for i, target := range targets {
		x := float64(i) * 7.3

		v := octaveNoise(c.strike, x, y, c.Octaves, c.Frequency, 0.5)
		if v >= c.Threshold {
			out = append(out, Action{Kind: engine.CommandAttack, Target: target, Level: c.severity(v)})
			continue
		}
		r := octaveNoise(c.repair, x, y, c.Octaves, c.Frequency, 0.5)
		if r >= c.Threshold {
			out = append(out, Action{Kind: engine.CommandRecovery, Target: target, Level: clamp01(r)})
		}
	}
	return out
}

// severity rescales noise above the threshold onto [0,1].
func (c *Campaign) severity(v float64) float64 {
	if c.Threshold >= 1 {
		return 1
	}
	return clamp01((v - c.Threshold) / (1 - c.Threshold))
}

// Targets lists every building id followed by every distinct edge pair.
func Targets(w *engine.World) []string {
	var out []string
	for _, b := range w.Buildings() {
		out = append(out, b.ID)
	}
	seen := map[string]bool{}
	for _, e := range w.Edges() {
		// Pair targets are ambiguous when an id contains '-'.
		if strings.Contains(e.From, "-") || strings.Contains(e.To, "-") {
			continue
		}
		k := e.Key()
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	return out
}

// Apply plans tick against w and executes the actions through the command
// API. Only applied outcomes are returned.
func (c *Campaign) Apply(w *engine.World, tick uint64) ([]engine.Outcome, error) {
	actions := c.Plan(Targets(w), tick)
	if len(actions) == 0 {
		return nil, nil
	}

	var applied []engine.Outcome
	for _, a := range actions {
		var (
			o   engine.Outcome
			err error
		)
		switch a.Kind {
		case engine.CommandAttack:
			o, err = w.ExecuteAttack(a.Target, a.Level)
		case engine.CommandRecovery:
			o, err = w.ExecuteRecovery(a.Target, a.Level)
		}
		if err != nil {
			return applied, fmt.Errorf("campaign %s on %q: %w", a.Kind, a.Target, err)
		}
		if !o.Applied {
			continue
		}
		w.EmitEvent(engine.Event{
			Tick:        tick,
			Description: fmt.Sprintf("campaign %s on %s at %.2f", a.Kind, a.Target, a.Level),
			Category:    "campaign",
			Meta: map[string]any{
				"seed":   c.Seed,
				"action": string(a.Kind),
				"target": a.Target,
				"level":  a.Level,
			},
		})
		applied = append(applied, o)
	}

	slog.Info("campaign step",
		"tick", tick,
		"planned", len(actions),
		"applied", len(applied),
	)
	return applied, nil
}

// octaveNoise layers several frequencies of normalized noise.
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}
	return total / maxVal
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
