package scheduler

import (
	"time"
)

// Config controls scheduler cadence and batch sizes.
type Config struct {
	RunInterval time.Duration
	BatchSize   int
	EnabledJobs []string

	RefreshRatesEvery   time.Duration
	ExpireCodesEvery    time.Duration
	WebhookRetriesEvery time.Duration
	CleanupRatesEvery   time.Duration

	LockTTL time.Duration
}

func DefaultConfig() Config {
	return Config{
		RunInterval:         15 * time.Second,
		BatchSize:           100,
		RefreshRatesEvery:   5 * time.Minute,
		ExpireCodesEvery:    time.Minute,
		WebhookRetriesEvery: 30 * time.Second,
		CleanupRatesEvery:   24 * time.Hour,
		LockTTL:             time.Minute,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.RefreshRatesEvery <= 0 {
		c.RefreshRatesEvery = defaults.RefreshRatesEvery
	}
	if c.ExpireCodesEvery <= 0 {
		c.ExpireCodesEvery = defaults.ExpireCodesEvery
	}
	if c.WebhookRetriesEvery <= 0 {
		c.WebhookRetriesEvery = defaults.WebhookRetriesEvery
	}
	if c.CleanupRatesEvery <= 0 {
		c.CleanupRatesEvery = defaults.CleanupRatesEvery
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	return c
}
