package scheduler

import (
	"time"

	"github.com/smallbiznis/trailpay/internal/config"
)

// Config controls scheduler intervals and batch sizes.
type Config struct {
	Enabled            bool
	RunInterval        time.Duration
	BatchSize          int
	JobTimeout         time.Duration
	MaxReplayAttempts  int
	ReplayBackoff      time.Duration
	StaleRefundAfter   time.Duration
	StaleRefundRealert time.Duration
	DisabledJobs       []string
}

func DefaultConfig() Config {
	return Config{
		Enabled:            true,
		RunInterval:        time.Minute,
		BatchSize:          50,
		JobTimeout:         30 * time.Second,
		MaxReplayAttempts:  5,
		ReplayBackoff:      10 * time.Minute,
		StaleRefundAfter:   time.Hour,
		StaleRefundRealert: 24 * time.Hour,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		Enabled:           cfg.Scheduler.Enabled,
		RunInterval:       cfg.Scheduler.RunInterval,
		MaxReplayAttempts: cfg.Scheduler.MaxReplayAttempts,
		ReplayBackoff:     cfg.Scheduler.ReplayBackoff,
		StaleRefundAfter:  cfg.Scheduler.StaleRefundAfter,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.MaxReplayAttempts <= 0 {
		c.MaxReplayAttempts = defaults.MaxReplayAttempts
	}
	if c.ReplayBackoff <= 0 {
		c.ReplayBackoff = defaults.ReplayBackoff
	}
	if c.StaleRefundAfter <= 0 {
		c.StaleRefundAfter = defaults.StaleRefundAfter
	}
	if c.StaleRefundRealert <= 0 {
		c.StaleRefundRealert = defaults.StaleRefundRealert
	}
	return c
}
