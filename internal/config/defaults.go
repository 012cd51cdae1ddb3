package config

import "time"

// SetDefaults fills zero-valued fields. Speed and the Enabled switches are
// left alone because their zero values are meaningful.
func SetDefaults(cfg *Config) {
	// Simulation defaults
	if cfg.Simulation.Interval == 0 {
		cfg.Simulation.Interval = time.Second
	}
	if cfg.Simulation.HistoryLimit == 0 {
		cfg.Simulation.HistoryLimit = 1000
	}
	if cfg.Simulation.EventLimit == 0 {
		cfg.Simulation.EventLimit = 1000
	}
	if cfg.Simulation.SnapshotLimit == 0 {
		cfg.Simulation.SnapshotLimit = 100
	}
	if cfg.Simulation.CheckpointEvery == 0 {
		cfg.Simulation.CheckpointEvery = 60
	}

	// Database defaults
	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/gridsim.db"
	}

	// API defaults
	if cfg.API.Port == 0 {
		cfg.API.Port = 8080
	}
	if cfg.API.RateLimit.Requests == 0 {
		cfg.API.RateLimit.Requests = 2
	}
	if cfg.API.RateLimit.Burst == 0 {
		cfg.API.RateLimit.Burst = 10
	}

	// Metrics defaults
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}

	// Tick log defaults
	if cfg.TickLog.Dir == "" {
		cfg.TickLog.Dir = "data/ticks"
	}

	// Campaign defaults
	if cfg.Campaign.Threshold == 0 {
		cfg.Campaign.Threshold = 0.8
	}
	if cfg.Campaign.Frequency == 0 {
		cfg.Campaign.Frequency = 0.05
	}
	if cfg.Campaign.Every == 0 {
		cfg.Campaign.Every = 10
	}
}
