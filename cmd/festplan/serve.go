package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"festplan/internal/ics"
	appLog "festplan/internal/log"
	"festplan/internal/reminder"
	"festplan/internal/web"
)

func init() {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the offline worker and the catalog refresh",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			listen, _ := cmd.Flags().GetString("listen")
			if listen != "" {
				conf.Listen = listen
			}
			// Root context with cancellation on SIGINT/SIGTERM.
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return withApp(cmd, func(_ context.Context, a *app) error {
				return serve(ctx, a)
			})
		},
	}
	serveCmd.Flags().StringP("listen", "l", "", "HTTP listen address (overrides config if set)")
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context, a *app) error {
	appLog.Info("festplan starting", "version", version, "config", a.cfg.String())

	worker, err := a.worker()
	if err != nil {
		return err
	}
	if err := worker.Register(ctx); err != nil {
		// Keep serving: an uninstalled worker passes requests to the network.
		appLog.Error("offline worker registration failed", err, "version", a.cfg.Cache.Version)
	}

	sched := a.scheduler(ctx,
		reminder.WorkerDelivery{Worker: worker},
		reminder.TimerDelivery{Clock: a.clock, Notifier: a.center, Permissions: a.center, Style: a.style()},
	)
	if _, err := sched.RequestPermission(ctx); err != nil {
		appLog.Warn("notification permission request failed", err)
	}
	appLog.Info("reminders re-armed", "count", sched.Rearm(ctx))

	var c *cron.Cron
	if a.cfg.Catalog.FeedURL != "" {
		fetcher := ics.NewFetcher(a.cfg.FeedCacheDir(), nil)
		if err := refreshCatalog(ctx, a, fetcher); err != nil {
			appLog.Error("initial catalog refresh failed; using current catalog", err)
		}
		c = cron.New(cron.WithLocation(a.loc))
		if _, err := c.AddFunc(a.cfg.RefreshCron, func() {
			if err := refreshCatalog(ctx, a, fetcher); err != nil {
				appLog.Error("scheduled catalog refresh failed", err)
			}
		}); err != nil {
			return err
		}
		c.Start()
		appLog.Info("catalog refresh scheduled", "cron", a.cfg.RefreshCron)
	}

	srv := web.NewServer(web.Deps{
		Config:    a.cfg,
		Catalog:   a.catalog,
		Prefs:     a.prefs,
		Friends:   a.friends,
		Reminders: sched,
		Worker:    worker,
		Center:    a.center,
		Clock:     a.clock,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return worker.Run(gctx) })
	g.Go(func() error { return srv.Serve(gctx) })
	err = g.Wait()

	if c != nil {
		<-c.Stop().Done()
	}
	appLog.Info("festplan exiting")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
