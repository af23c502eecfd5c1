package main

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/versecast/internal/cache"
	"github.com/dgnsrekt/versecast/internal/config"
	"github.com/dgnsrekt/versecast/internal/events"
	"github.com/dgnsrekt/versecast/internal/position"
	"github.com/dgnsrekt/versecast/internal/quota"
	"github.com/dgnsrekt/versecast/internal/session"
	"github.com/dgnsrekt/versecast/internal/store"
)

const shutdownTimeout = 5 * time.Second

// app holds the components every command shares. Components are shut down
// in reverse order of opening.
type app struct {
	cfg       config.Config
	store     *store.SQLite
	bus       *events.Bus
	tracker   *quota.Tracker
	recorder  *position.Recorder
	cache     *cache.Manager
	lifecycle *session.Lifecycle
}

func openApp(ctx context.Context, cfg config.Config) (*app, error) {
	a := &app{
		cfg:       cfg,
		lifecycle: session.NewLifecycle(shutdownTimeout, log.Default().WithPrefix("lifecycle")),
	}

	db, err := store.Open(ctx, cfg.StatePath)
	if err != nil {
		return nil, fmt.Errorf("unable to open state: %w", err)
	}
	a.store = db
	a.lifecycle.Register(session.ComponentFunc("store", func(ctx context.Context) error {
		if err := db.Flush(ctx); err != nil {
			log.Warn("checkpoint failed", "err", err)
		}
		return db.Close()
	}))

	a.bus = events.NewBus()
	a.lifecycle.Register(session.ComponentFunc("events", func(context.Context) error {
		a.bus.Close()
		return nil
	}))

	a.tracker, err = quota.NewTracker(ctx, cfg.QuotaLimits(),
		quota.WithStore(db),
		quota.WithPublisher(a.bus),
		quota.WithLogger(log.Default().WithPrefix("quota")),
	)
	if err != nil {
		_ = a.close()
		return nil, fmt.Errorf("unable to load usage: %w", err)
	}
	a.lifecycle.Register(session.ComponentFunc("quota", a.tracker.Stop))

	a.recorder = position.NewRecorder(db,
		position.WithMaxAge(cfg.PositionTTL),
		position.WithLogger(log.Default().WithPrefix("position")),
	)
	return a, nil
}

func (a *app) openCache() error {
	if a.cache != nil {
		return nil
	}
	c, err := cache.NewManager(a.cfg.CacheConfig(), log.Default().WithPrefix("cache"))
	if err != nil {
		return fmt.Errorf("unable to open audio cache: %w", err)
	}
	a.cache = c
	a.lifecycle.Register(session.ComponentFunc("cache", func(context.Context) error {
		return c.Close()
	}))
	return nil
}

func (a *app) close() error {
	return a.lifecycle.Shutdown(context.Background())
}
