/*
Package jobqueue configuration - tunable parameters for the River job queue.

# Tuning

  - MaxWorkers bounds concurrent jobs on the default queue and therefore the
    number of pool connections the workers hold.
  - MaxAttempts and RetryPolicy control how failed traffic inserts and sweeps
    are retried. Sweeps are idempotent so retrying them is always safe.
  - SweepInterval and SessionCleanupInterval schedule the periodic jobs. Both
    run once when the client starts.

Values come from the [jobs] section of the config file; anything left at zero
falls back to DefaultQueueConfig.
*/
package jobqueue

import (
	"math"
	"time"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"

	"github.com/licensehub/internal/config"
)

// QueueConfig holds all configurable parameters for the job queue
type QueueConfig struct {
	// Worker Configuration
	MaxWorkers int // Number of concurrent workers processing jobs (default: 10)

	// Retry Configuration
	MaxAttempts int           // Attempts per job before it is discarded (default: 5)
	RetryPolicy RetryPolicy   // Retry timing and backoff configuration
	JobTimeout  time.Duration // Maximum time a single job can run (default: 1 minute)

	// Schedules
	SweepInterval          time.Duration // License expiry sweep (default: 1 hour)
	SessionCleanupInterval time.Duration // Expired session cleanup (default: 1 hour)
}

// RetryPolicy defines how failed jobs are retried. It implements River's
// ClientRetryPolicy.
type RetryPolicy struct {
	// InitialInterval is the time to wait before the first retry
	InitialInterval time.Duration // default: 1 second

	// MaxInterval is the maximum time to wait between retries
	MaxInterval time.Duration // default: 10 minutes

	// Multiplier is the factor by which the interval increases after each retry
	Multiplier float64 // default: 2.0 (exponential backoff)
}

// Backoff returns the wait before retrying after the given failed attempt
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(p.InitialInterval) * math.Pow(p.Multiplier, float64(attempt-1))
	if d > float64(p.MaxInterval) || math.IsInf(d, 1) {
		return p.MaxInterval
	}
	return time.Duration(d)
}

// NextRetry satisfies river.ClientRetryPolicy
func (p RetryPolicy) NextRetry(job *rivertype.JobRow) time.Time {
	return time.Now().UTC().Add(p.Backoff(job.Attempt))
}

// DefaultQueueConfig returns the default configuration
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		MaxWorkers:  10,
		MaxAttempts: 5,
		RetryPolicy: RetryPolicy{
			InitialInterval: 1 * time.Second,
			MaxInterval:     10 * time.Minute,
			Multiplier:      2.0,
		},
		JobTimeout:             1 * time.Minute,
		SweepInterval:          1 * time.Hour,
		SessionCleanupInterval: 1 * time.Hour,
	}
}

// FromConfig overlays the [jobs] section onto the defaults
func FromConfig(cfg *config.Config) *QueueConfig {
	qc := DefaultQueueConfig()
	if cfg == nil {
		return qc
	}
	if cfg.Jobs.MaxWorkers > 0 {
		qc.MaxWorkers = cfg.Jobs.MaxWorkers
	}
	if cfg.Jobs.SweepInterval > 0 {
		qc.SweepInterval = cfg.Jobs.SweepInterval
	}
	if cfg.Jobs.SessionCleanupInterval > 0 {
		qc.SessionCleanupInterval = cfg.Jobs.SessionCleanupInterval
	}
	return qc
}

// RiverQueueConfig converts our config to River's queue configuration format
func (c *QueueConfig) RiverQueueConfig() map[string]river.QueueConfig {
	return map[string]river.QueueConfig{
		river.QueueDefault: {
			MaxWorkers: c.MaxWorkers,
		},
	}
}

// PeriodicJobs schedules the license sweep and session cleanup. Both run
// once on start so a restarted server catches up immediately.
func (c *QueueConfig) PeriodicJobs() []*river.PeriodicJob {
	return []*river.PeriodicJob{
		river.NewPeriodicJob(
			river.PeriodicInterval(c.SweepInterval),
			func() (river.JobArgs, *river.InsertOpts) { return LicenseSweepArgs{}, nil },
			&river.PeriodicJobOpts{RunOnStart: true},
		),
		river.NewPeriodicJob(
			river.PeriodicInterval(c.SessionCleanupInterval),
			func() (river.JobArgs, *river.InsertOpts) { return SessionCleanupArgs{}, nil },
			&river.PeriodicJobOpts{RunOnStart: true},
		),
	}
}
