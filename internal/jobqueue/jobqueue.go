/*
Package jobqueue provides a River-based job queue for background work: the
traffic log writer, the periodic license expiry sweep and the periodic
expired session cleanup.

For configuration options, retry policies, and schedules, see queue_config.go.
*/
package jobqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/rs/zerolog/log"

	"github.com/licensehub/pkg/models"
)

// TrafficWriter persists traffic log entries
type TrafficWriter interface {
	Insert(ctx context.Context, e *models.TrafficLog) error
}

// LicenseExpirer flips overdue licenses to expired
type LicenseExpirer interface {
	ExpireOverdue(ctx context.Context) (int, error)
}

// SessionCleaner removes sessions past their refresh window
type SessionCleaner interface {
	CleanupExpiredSessions(ctx context.Context) (int64, error)
}

// Deps are the domain services the workers call into
type Deps struct {
	Traffic  TrafficWriter
	Licenses LicenseExpirer
	Sessions SessionCleaner
}

// TrafficLogArgs carries one request record
type TrafficLogArgs struct {
	Entry models.TrafficLog `json:"entry"`
}

// Kind returns the job kind for River
func (TrafficLogArgs) Kind() string { return "traffic_log" }

// TrafficLogWorker writes traffic entries
type TrafficLogWorker struct {
	river.WorkerDefaults[TrafficLogArgs]
	store   TrafficWriter
	timeout time.Duration
}

func (w *TrafficLogWorker) Timeout(*river.Job[TrafficLogArgs]) time.Duration { return w.timeout }

func (w *TrafficLogWorker) Work(ctx context.Context, job *river.Job[TrafficLogArgs]) error {
	e := job.Args.Entry
	if err := w.store.Insert(ctx, &e); err != nil {
		return fmt.Errorf("write traffic log: %w", err)
	}
	return nil
}

// LicenseSweepArgs triggers one expiry sweep
type LicenseSweepArgs struct{}

// Kind returns the job kind for River
func (LicenseSweepArgs) Kind() string { return "license_expiry_sweep" }

// LicenseSweepWorker marks overdue active licenses expired
type LicenseSweepWorker struct {
	river.WorkerDefaults[LicenseSweepArgs]
	licenses LicenseExpirer
	timeout  time.Duration
}

func (w *LicenseSweepWorker) Timeout(*river.Job[LicenseSweepArgs]) time.Duration { return w.timeout }

func (w *LicenseSweepWorker) Work(ctx context.Context, job *river.Job[LicenseSweepArgs]) error {
	n, err := w.licenses.ExpireOverdue(ctx)
	if err != nil {
		return fmt.Errorf("license expiry sweep: %w", err)
	}
	log.Debug().Int("expired", n).Int64("job_id", job.ID).Msg("license expiry sweep finished")
	return nil
}

// SessionCleanupArgs triggers one expired-session cleanup
type SessionCleanupArgs struct{}

// Kind returns the job kind for River
func (SessionCleanupArgs) Kind() string { return "session_cleanup" }

// SessionCleanupWorker deletes expired sessions
type SessionCleanupWorker struct {
	river.WorkerDefaults[SessionCleanupArgs]
	sessions SessionCleaner
	timeout  time.Duration
}

func (w *SessionCleanupWorker) Timeout(*river.Job[SessionCleanupArgs]) time.Duration { return w.timeout }

func (w *SessionCleanupWorker) Work(ctx context.Context, job *river.Job[SessionCleanupArgs]) error {
	n, err := w.sessions.CleanupExpiredSessions(ctx)
	if err != nil {
		return fmt.Errorf("session cleanup: %w", err)
	}
	if n > 0 {
		log.Info().Int64("removed", n).Msg("expired sessions removed")
	}
	return nil
}

// NewWorkers registers every worker against deps
func NewWorkers(deps Deps, config *QueueConfig) *river.Workers {
	workers := river.NewWorkers()
	river.AddWorker(workers, &TrafficLogWorker{store: deps.Traffic, timeout: config.JobTimeout})
	river.AddWorker(workers, &LicenseSweepWorker{licenses: deps.Licenses, timeout: config.JobTimeout})
	river.AddWorker(workers, &SessionCleanupWorker{sessions: deps.Sessions, timeout: config.JobTimeout})
	return workers
}

// JobQueue manages the River job queue
type JobQueue struct {
	client *river.Client[pgx.Tx]
	pool   *pgxpool.Pool
	config *QueueConfig
}

// NewJobQueue creates a new job queue instance. The River schema is
// migrated before the client is built.
func NewJobQueue(ctx context.Context, databaseURL string, config *QueueConfig, deps Deps) (*JobQueue, error) {
	if config == nil {
		config = DefaultQueueConfig()
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues:       config.RiverQueueConfig(),
		Workers:      NewWorkers(deps, config),
		PeriodicJobs: config.PeriodicJobs(),
		MaxAttempts:  config.MaxAttempts,
		RetryPolicy:  config.RetryPolicy,
		JobTimeout:   config.JobTimeout,
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create River client: %w", err)
	}

	return &JobQueue{
		client: client,
		pool:   pool,
		config: config,
	}, nil
}

func migrate(ctx context.Context, pool *pgxpool.Pool) error {
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		return fmt.Errorf("failed to create River migrator: %w", err)
	}
	res, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil)
	if err != nil {
		return fmt.Errorf("failed to migrate River schema: %w", err)
	}
	for _, v := range res.Versions {
		log.Info().Int("version", v.Version).Msg("applied River migration")
	}
	return nil
}

// Start starts the job queue workers
func (jq *JobQueue) Start(ctx context.Context) error {
	log.Info().Int("max_workers", jq.config.MaxWorkers).
		Dur("sweep_interval", jq.config.SweepInterval).
		Dur("session_cleanup_interval", jq.config.SessionCleanupInterval).
		Msg("starting job queue")
	return jq.client.Start(ctx)
}

// Stop waits for running jobs and closes the pool
func (jq *JobQueue) Stop(ctx context.Context) error {
	defer jq.pool.Close()
	return jq.client.Stop(ctx)
}

// EnqueueTraffic inserts a traffic log job. It is a synchronous round trip
// to Postgres; the traffic_logs row itself is written by TrafficLogWorker.
func (jq *JobQueue) EnqueueTraffic(ctx context.Context, entry models.TrafficLog) error {
	if _, err := jq.client.Insert(ctx, TrafficLogArgs{Entry: entry}, nil); err != nil {
		return fmt.Errorf("failed to queue traffic log job: %w", err)
	}
	return nil
}
