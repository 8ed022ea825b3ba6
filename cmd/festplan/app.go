package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"festplan/internal/catalog"
	"festplan/internal/clock"
	"festplan/internal/config"
	"festplan/internal/ics"
	appLog "festplan/internal/log"
	"festplan/internal/notify"
	"festplan/internal/offline"
	"festplan/internal/plan"
	"festplan/internal/reminder"
	"festplan/internal/storage"
	"festplan/internal/web"
)

// app holds the stores every command works against.
type app struct {
	cfg     *config.Config
	loc     *time.Location
	kv      storage.KV
	closeKV func() error
	catalog *catalog.Live
	prefs   *plan.PreferenceStore
	friends *plan.FriendsStore
	center  *notify.Center
	clock   clock.Clock
}

// openApp opens the stores. With ephemeral set nothing is written to disk
// except cache buckets.
func openApp(ctx context.Context, cfg *config.Config, ephemeral bool) (*app, error) {
	var (
		kv      storage.KV = storage.NewMemory()
		closeKV            = func() error { return nil }
	)
	if !ephemeral {
		db, err := storage.OpenSQLite(ctx, cfg.DBPath())
		if err != nil {
			return nil, err
		}
		kv, closeKV = db, db.Close
	}
	cat, err := loadCatalog(cfg)
	if err != nil {
		_ = closeKV()
		return nil, err
	}

	center := notify.NewCenter(notify.Permission(cfg.Notifications.Permission))
	return &app{
		cfg:     cfg,
		loc:     cfg.Location(),
		kv:      kv,
		closeKV: closeKV,
		catalog: catalog.NewLive(cat),
		prefs:   plan.NewPreferenceStore(ctx, kv),
		friends: plan.NewFriendsStore(ctx, kv),
		center:  center,
		clock:   clock.Real{},
	}, nil
}

func (a *app) Close() error {
	return a.closeKV()
}

// scheduler builds the reminder scheduler with the given deliveries. CLI
// commands pass none: the reminder is stored and `serve` arms it on start.
func (a *app) scheduler(ctx context.Context, deliveries ...reminder.Delivery) *reminder.Scheduler {
	return reminder.NewScheduler(reminder.NewStore(ctx, a.kv), a.center, a.clock, a.loc, deliveries...)
}

func (a *app) style() notify.Style {
	return notify.Style{
		AppName: a.cfg.Notifications.AppName,
		Icon:    a.cfg.Notifications.Icon,
		Vibrate: a.cfg.Notifications.Vibrate,
	}
}

// worker builds the offline worker. Without a configured origin it fronts
// the embedded shell.
func (a *app) worker() (*offline.Worker, error) {
	origin := web.EmbeddedOrigin
	var client *http.Client
	if a.cfg.Cache.Origin != "" {
		u, err := url.Parse(a.cfg.Cache.Origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("cache.origin %q is not an absolute URL", a.cfg.Cache.Origin)
		}
		origin = u
	} else {
		client = web.EmbeddedClient()
	}
	return offline.New(offline.Config{
		Version:  a.cfg.Cache.Version,
		Shell:    a.cfg.Cache.Shell,
		Fallback: a.cfg.Cache.Fallback,
		Origin:   origin,
		Location: a.loc,
		Style:    a.style(),
		Client:   client,
	}, offline.NewCacheStorage(a.cfg.CacheDir()), a.center, a.clock), nil
}

func loadCatalog(cfg *config.Config) (*catalog.Catalog, error) {
	if cfg.Catalog.Path != "" {
		cat, err := catalog.LoadFile(cfg.Catalog.Path)
		if err != nil {
			return nil, fmt.Errorf("load catalog: %w", err)
		}
		appLog.Info("catalog loaded", "path", cfg.Catalog.Path, "events", cat.Len())
		return cat, nil
	}
	return catalog.Default(), nil
}

// refreshCatalog fetches the line-up feed and swaps it in. On any failure
// the current catalog stays live.
func refreshCatalog(ctx context.Context, a *app, fetcher *ics.Fetcher) error {
	start, err := a.cfg.FestivalStartTime()
	if err != nil {
		return err
	}
	feed := ics.Feed{ID: "lineup", URL: a.cfg.Catalog.FeedURL}
	res, err := fetcher.Fetch(ctx, feed)
	if err != nil {
		return fmt.Errorf("catalog refresh: %w", err)
	}
	events, err := ics.ParseCatalog(feed, res.Body, start)
	if err != nil {
		return fmt.Errorf("catalog refresh: %w", err)
	}
	cat, err := catalog.New(events)
	if err != nil {
		return fmt.Errorf("catalog refresh: %w", err)
	}
	if cat.Len() == 0 {
		return errors.New("catalog refresh: feed has no festival events")
	}
	a.catalog.Set(cat)
	appLog.Info("catalog refreshed", "events", cat.Len(), "from_cache", res.FromCache)
	return nil
}
