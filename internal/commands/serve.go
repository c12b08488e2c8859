package commands

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"focusflow/internal/app"
	"focusflow/internal/clock"
	"focusflow/internal/config"
	"focusflow/internal/gcal"
	"focusflow/internal/ics"
	appLog "focusflow/internal/log"
	"focusflow/internal/model"
	"focusflow/internal/scheduler"
	"focusflow/internal/storage/memory"
	"focusflow/internal/storage/postgres"
	"focusflow/internal/web"
	"focusflow/migrations"
)

type serveOptions struct {
	listen string
	once   bool
}

func addServe(topLevel *cobra.Command, ro *rootOptions) {
	so := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the subscription scheduler.",
		Example: `
focusflow serve --config ./config.yaml
focusflow serve --once
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), ro, so)
		},
	}
	cmd.Flags().StringVar(&so.listen, "listen", "", "HTTP listen address (overrides config if set).")
	cmd.Flags().BoolVar(&so.once, "once", false, "Run one subscription sync and exit.")
	topLevel.AddCommand(cmd)
}

func runServe(parent context.Context, ro *rootOptions, so *serveOptions) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ro.configPath)
	if err != nil {
		return fmt.Errorf("load config %s: %w", ro.configPath, err)
	}
	if so.listen != "" {
		cfg.Listen = so.listen
	}
	if ro.logLevel == "" {
		appLog.SetLevel(appLog.ParseLevel(cfg.LogLevel))
	}
	loc, err := cfg.Location()
	if err != nil {
		appLog.Warn("unknown timezone, using UTC", "timezone", cfg.Timezone)
	}

	appLog.Info("effective config",
		"listen", cfg.Listen,
		"timezone", loc.String(),
		"refresh", cfg.RefreshCron,
		"horizon_days", cfg.HorizonDays,
		"backfill_days", cfg.BackfillDays,
		"ics_count", len(cfg.ICS),
		"database", cfg.DatabaseURL != "",
	)

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	clk := clock.NewSystem()
	fetcher := ics.NewFetcher(cfg.CacheDir, nil)
	svc := app.NewCalendarService(store, fetcher, clk, app.Options{
		Location:      loc,
		FirstWeekday:  cfg.FirstWeekday(),
		HorizonDays:   cfg.HorizonDays,
		BackfillDays:  cfg.BackfillDays,
		Subscriptions: subscriptions(cfg),
	})

	if cfg.Google != nil && cfg.Google.AccessToken != "" {
		g, err := gcal.New(ctx, cfg.Google.AccessToken)
		if err != nil {
			return err
		}
		svc.SetGoogle(g)
	}

	server := web.NewServer(cfg, svc, clk)
	sched, err := scheduler.New(cfg.RefreshCron, loc, svc, func(app.SyncReport) {
		server.InvalidateLayouts()
	})
	if err != nil {
		return err
	}
	server.SetSyncRunner(sched)

	if so.once {
		report := sched.RunOnce(ctx)
		return errors.Join(report.Errors...)
	}

	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		if err := sched.Start(ctx); err != nil {
			appLog.Error("scheduler failed", err)
		}
	}()

	err = server.Run(ctx)
	stop()
	<-schedDone
	appLog.Info("focusflow exiting")
	return err
}

func openStore(ctx context.Context, cfg *config.Config) (app.EventStore, func(), error) {
	if cfg.DatabaseURL == "" {
		appLog.Info("using in-memory store")
		return memory.New(), func() {}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping database: %w", err)
	}
	if err := migrations.Apply(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("apply migrations: %w", err)
	}
	appLog.Info("using postgres store")
	return postgres.NewStore(pool), pool.Close, nil
}

// subscriptions lists the calendars kept in sync from the config file.
func subscriptions(cfg *config.Config) []app.Subscription {
	var subs []app.Subscription
	for _, c := range cfg.ICS {
		if c.URL == "" {
			continue
		}
		name := c.Name
		if name == "" {
			name = c.ID
		}
		subs = append(subs, app.Subscription{
			CalendarID: c.ID,
			OwnerID:    c.Owner,
			Name:       name,
			Source:     model.SourceICS,
			URL:        c.URL,
		})
	}
	if cfg.Google != nil && cfg.Google.AccessToken != "" {
		for _, gid := range cfg.Google.Calendars {
			subs = append(subs, app.Subscription{
				CalendarID: "google:" + gid,
				OwnerID:    cfg.Google.Owner,
				Name:       gid,
				Source:     model.SourceGoogle,
				GoogleID:   gid,
			})
		}
	}
	return subs
}
