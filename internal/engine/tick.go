// Package engine runs the infrastructure simulation: the world model, its
// tick phases, resource distribution, attack and recovery commands, and a
// real-time driver.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Engine drives a World forward in wall-clock time.
type Engine struct {
	World    *World
	Interval time.Duration // Base tick interval (default 1 second)

	// Every CheckpointEvery ticks OnCheckpoint fires (autosave). 0 disables.
	CheckpointEvery uint64

	// Callbacks populated during setup.
	OnTick       func(s Summary) // After every tick
	OnCheckpoint func(tick uint64)

	mu       sync.Mutex
	speed    float64 // Multiplier: 1.0 = real-time, 0 = paused
	running  bool
	cancel   context.CancelFunc
	lastTook time.Duration
}

// NewEngine creates an engine for w with default settings.
func NewEngine(w *World) *Engine {
	return &Engine{
		World:    w,
		Interval: time.Second,
		speed:    1.0,
	}
}

// Speed returns the current speed multiplier.
func (e *Engine) Speed() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.speed
}

// SetSpeed changes the multiplier. Zero pauses; negative values are treated
// as zero.
func (e *Engine) SetSpeed(v float64) {
	if v < 0 {
		v = 0
	}
	e.mu.Lock()
	e.speed = v
	e.mu.Unlock()
	slog.Info("engine speed changed", "speed", v)
}

// Running reports whether Run is active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Run starts the simulation loop. It blocks until ctx is cancelled or Stop
// is called.
func (e *Engine) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.mu.Lock()
	e.running = true
	e.cancel = cancel
	e.mu.Unlock()

	slog.Info("simulation engine started", "tick", e.World.CurrentTick(), "speed", e.Speed())

	for {
		speed := e.Speed()
		if speed <= 0 {
			// Paused: check again shortly.
			if !sleepCtx(ctx, 100*time.Millisecond) {
				break
			}
			continue
		}

		start := time.Now()
		e.Step()

		// Sleep for the remainder of the tick interval, adjusted for speed.
		elapsed := time.Since(start)
		target := time.Duration(float64(e.Interval) / speed)
		wait := time.Duration(0)
		if elapsed < target {
			wait = target - elapsed
		}
		if !sleepCtx(ctx, wait) {
			break
		}
	}

	e.mu.Lock()
	e.running = false
	e.cancel = nil
	e.mu.Unlock()

	slog.Info("simulation engine stopped", "tick", e.World.CurrentTick())
}

// Stop halts the loop started by Run.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
	}
}

// Step advances the world one tick and fires the callbacks.
func (e *Engine) Step() Summary {
	start := time.Now()
	s := e.World.Run(1)[0]
	took := time.Since(start)
	tick := s.Tick

	e.mu.Lock()
	e.lastTook = took
	e.mu.Unlock()

	if e.OnTick != nil {
		e.OnTick(s)
	}
	if e.CheckpointEvery > 0 && tick%e.CheckpointEvery == 0 && e.OnCheckpoint != nil {
		e.OnCheckpoint(tick)
	}
	return s
}

// LastTickDuration is the wall-clock time the most recent Step spent
// advancing and summarising the world, excluding callbacks.
func (e *Engine) LastTickDuration() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastTook
}

// sleepCtx waits for d or until ctx is done. It reports false when ctx ended.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		select {
		case <-ctx.Done():
			return false
		default:
			return true
		}
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
