package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/licensehub/internal/api"
	"github.com/licensehub/internal/api/auth"
	"github.com/licensehub/internal/api/users"
	"github.com/licensehub/internal/audit"
	"github.com/licensehub/internal/catalog"
	"github.com/licensehub/internal/clinic"
	"github.com/licensehub/internal/config"
	"github.com/licensehub/internal/database"
	"github.com/licensehub/internal/jobqueue"
	"github.com/licensehub/internal/license"
	"github.com/licensehub/internal/logging"
	"github.com/licensehub/internal/metrics"
	"github.com/licensehub/internal/subscription"
	"github.com/licensehub/internal/support"
	"github.com/licensehub/internal/traffic"
)

// APICommand returns the CLI command for starting the API server
func APICommand() *cli.Command {
	return &cli.Command{
		Name:  "api",
		Usage: "Start the licensehub API server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port for the API server (overrides server.port)",
			},
		},
		Action: runAPI,
	}
}

// loadConfig reads and validates the configuration named by the global
// --config flag and sets up logging from it.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if port := c.Int("port"); port > 0 {
		cfg.Server.Port = port
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Pretty)
	return cfg, nil
}

func runAPI(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	ctx := c.Context

	db, err := database.NewDB(ctx, cfg.Database.URL, database.Options{MaxOpenConns: cfg.Database.MaxOpenConns})
	if err != nil {
		return err
	}
	defer db.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	tokens := auth.NewTokenService(auth.NewStorage(db), cfg.Auth.JWTSecret, cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL)
	licenses := license.NewService(license.NewStorage(db), m)
	clinicStore := clinic.NewStorage(db)
	trafficStore := traffic.NewStorage(db)

	var queue traffic.Enqueuer = trafficStore
	if cfg.Jobs.Enabled {
		jq, err := jobqueue.NewJobQueue(ctx, cfg.Database.URL, jobqueue.FromConfig(cfg), jobqueue.Deps{
			Traffic:  trafficStore,
			Licenses: licenses,
			Sessions: tokens,
		})
		if err != nil {
			return err
		}
		if err := jq.Start(ctx); err != nil {
			return fmt.Errorf("failed to start job queue: %w", err)
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := jq.Stop(stopCtx); err != nil {
				log.Warn().Err(err).Msg("job queue did not stop cleanly")
			}
		}()
		queue = jq
	} else {
		log.Warn().Msg("background jobs disabled: traffic is written inline and no expiry sweep runs")
	}

	server := api.NewServer(cfg, api.Deps{
		DB:            db,
		Gatherer:      reg,
		Metrics:       m,
		Tokens:        tokens,
		Users:         users.NewUserService(users.NewStorage(db)),
		Licenses:      licenses,
		Clinics:       clinic.NewService(clinicStore),
		Controls:      clinic.NewControls(clinicStore),
		Subscriptions: subscription.NewResolver(clinicStore, m),
		Catalog:       catalog.NewService(catalog.NewStorage(db)),
		Support:       support.NewService(support.NewStorage(db)),
		AuditLogs:     audit.NewStorage(db),
		TrafficLogs:   trafficStore,
		TrafficQueue:  queue,
		Stats:         api.NewStatsStorage(db),
	})
	return server.Start()
}
