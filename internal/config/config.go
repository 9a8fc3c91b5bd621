// Package config loads the coordinator and worker's tunable
// parameters from environment variables through viper, so both
// binaries share one source of truth for the timeout and poll
// cadence and can never read conflicting defaults.
package config

import (
	"time"

	"github.com/spf13/viper"
)

const (
	defaultTaskTimeoutMS  = 10000
	defaultPollIntervalMS = 200
)

// Config holds the scheduling-relevant tunables.
type Config struct {
	// TaskTimeout is TASK_TIMEOUT: how long an IN_PROGRESS task may
	// run before the timeout monitor reclaims it.
	TaskTimeout time.Duration

	// PollInterval is how long a worker sleeps after a WAIT reply,
	// and the cadence of the coordinator's timeout monitor tick.
	PollInterval time.Duration
}

// Load reads MR_TASK_TIMEOUT_MS and MR_POLL_INTERVAL_MS from the
// process environment, falling back to sane defaults.
func Load() Config {
	v := viper.New()
	v.SetDefault("task_timeout_ms", defaultTaskTimeoutMS)
	v.SetDefault("poll_interval_ms", defaultPollIntervalMS)
	_ = v.BindEnv("task_timeout_ms", "MR_TASK_TIMEOUT_MS")
	_ = v.BindEnv("poll_interval_ms", "MR_POLL_INTERVAL_MS")

	return Config{
		TaskTimeout:  time.Duration(v.GetInt("task_timeout_ms")) * time.Millisecond,
		PollInterval: time.Duration(v.GetInt("poll_interval_ms")) * time.Millisecond,
	}
}
