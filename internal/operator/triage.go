package operator

import (
	"github.com/talgya/gridsim/internal/engine"
)

// Health levels, worst first.
const (
	LevelCritical = "CRITICAL"
	LevelWarning  = "WARNING"
	LevelWatch    = "WATCH"
	LevelHealthy  = "HEALTHY"
)

// Health holds diagnostic signals derived from a summary.
type Health struct {
	BuildingRatio float64 // active / total
	EdgeRatio     float64 // active / total
	Destroyed     int     // buildings plus edges
	FailedLast    int     // consumers and producers that lacked inputs last tick
	Level         string
}

// Triage grades a summary. Worlds with nothing in them are healthy.
func Triage(s engine.Summary) Health {
	h := Health{
		BuildingRatio: ratio(s.BuildingsActive, s.BuildingsTotal),
		EdgeRatio:     ratio(s.EdgesActive, s.EdgesTotal),
		Destroyed:     s.BuildingStatus["destroyed"] + s.EdgeStatus["destroyed"],
		FailedLast:    s.Last.ConsumersFailed + s.Last.ProducersFailed,
	}

	worst := h.BuildingRatio
	if h.EdgeRatio < worst {
		worst = h.EdgeRatio
	}

	switch {
	case worst < 0.5:
		h.Level = LevelCritical
	case worst < 0.75 || h.Destroyed > 0:
		h.Level = LevelWarning
	case worst < 1 || h.FailedLast > 0:
		h.Level = LevelWatch
	default:
		h.Level = LevelHealthy
	}
	return h
}

func ratio(active, total int) float64 {
	if total == 0 {
		return 1
	}
	return float64(active) / float64(total)
}
