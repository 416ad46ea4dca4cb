package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/wanops/outagewatch/internal/config"
	"github.com/wanops/outagewatch/internal/event"
	"github.com/wanops/outagewatch/internal/notify"
	"github.com/wanops/outagewatch/internal/outage"
	"github.com/wanops/outagewatch/internal/store"
	"github.com/wanops/outagewatch/internal/version"
)

// app holds what every subcommand shares. Fields are filled lazily so
// "version" works without a config or database.
type app struct {
	configPath string
	dbPath     string
	stdout     io.Writer

	v      *viper.Viper
	cfg    *config.Config
	logger *zap.Logger
	clock  clockwork.Clock
	bus    *event.Bus

	db    *store.SQLiteStore
	store *outage.Store
}

// setup loads configuration and builds the logger and event bus.
func (a *app) setup() error {
	if a.cfg != nil {
		return nil
	}
	v, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if a.dbPath != "" {
		v.Set("database.path", a.dbPath)
	}
	cfg, err := config.Decode(v)
	if err != nil {
		return err
	}
	logger, err := config.NewLogger(v)
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}

	a.v, a.cfg, a.logger = v, cfg, logger
	if a.clock == nil {
		a.clock = clockwork.NewRealClock()
	}
	a.bus = event.NewBus(logger.Named("event"))

	if f := v.ConfigFileUsed(); f != "" {
		logger.Debug("configuration loaded", zap.String("component", "config"), zap.String("source", f))
	}
	return nil
}

// open opens the database, checks its version stamp and migrates the schema.
func (a *app) open(ctx context.Context) error {
	if err := a.setup(); err != nil {
		return err
	}
	if a.store != nil {
		return nil
	}
	path := a.cfg.Database.Path
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create database dir: %w", err)
		}
	}
	db, err := store.New(path)
	if err != nil {
		return err
	}
	if err := db.CheckVersion(ctx, version.Short()); err != nil {
		db.Close()
		return err
	}
	st, err := outage.New(ctx, db)
	if err != nil {
		db.Close()
		return err
	}
	a.db, a.store = db, st
	a.logger.Debug("database opened", zap.String("component", "database"), zap.String("path", path))
	return nil
}

// notifications subscribes the configured notifiers to the bus. It is a
// no-op when enabled is false.
func (a *app) notifications(enabled bool) {
	if !enabled {
		return
	}
	n := a.cfg.Notify
	d := notify.NewDispatcher(a.logger.Named("notify"), notify.FromConfig(n.Pushover, n.Webhook, n.Timeout)...)
	if d.Len() == 0 {
		a.logger.Warn("notifications requested but no channel is configured",
			zap.String("hint", "set OW_NOTIFY_PUSHOVER_USER_KEY and OW_NOTIFY_PUSHOVER_API_TOKEN or notify.webhook.url"))
		return
	}
	d.Subscribe(a.bus)
}

func (a *app) close() {
	if a.db != nil {
		_ = a.db.Close()
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}
