package main

import (
	"context"
	"log/slog"

	"github.com/joseph-ayodele/docrender/internal/common"
	"github.com/joseph-ayodele/docrender/internal/lease"
	"github.com/joseph-ayodele/docrender/internal/render"
	"github.com/joseph-ayodele/docrender/internal/repository"
)

// app holds the components every command shares.
type app struct {
	store    *render.Store
	conv     *render.Converter
	db       *repository.DB
	attempts repository.ConversionAttemptRepository
	locker   *lease.RedisLocker
	logger   *slog.Logger
}

func newApp(ctx context.Context, cfg *common.Config, logger *slog.Logger) (*app, error) {
	a := &app{logger: logger}

	store, err := render.NewStore(cfg.Store.Root, cfg.Store.Mount, logger)
	if err != nil {
		return nil, err
	}
	a.store = store

	opts := render.Options{
		Settings: render.Settings{
			Soffice:          cfg.Render.Soffice,
			Magick:           cfg.Render.Magick,
			DPI:              cfg.Render.DPI,
			OfficeTimeout:    cfg.Render.OfficeTimeout,
			RasterizeTimeout: cfg.Render.RasterizeTimeout,
		},
		StaleAfter: cfg.Store.SweepGrace,
	}

	if cfg.Database.Driver != "" {
		db, err := repository.Open(ctx, repository.Config{
			Driver:          repository.Dialect(cfg.Database.Driver),
			DSN:             cfg.Database.DSN,
			MaxConns:        cfg.Database.MaxConns,
			MinConns:        cfg.Database.MinConns,
			MaxConnLifetime: cfg.Database.MaxConnLifetime,
			MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
			DialTimeout:     cfg.Database.DialTimeout,
		}, logger)
		if err != nil {
			return nil, err
		}
		a.db = db
		a.attempts = repository.NewConversionAttemptRepository(db, logger)
		opts.Journal = a.attempts
	}

	if cfg.Redis.Addr != "" {
		locker, err := lease.NewRedisLocker(lease.Config{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			Prefix:       cfg.Redis.Prefix,
			TTL:          cfg.Redis.LeaseTTL,
			PollInterval: cfg.Redis.PollInterval,
		}, logger)
		if err != nil {
			a.close(ctx)
			return nil, err
		}
		a.locker = locker
		opts.Locker = locker
	}

	a.conv = render.NewConverter(store, opts, logger)
	return a, nil
}

// close stops running conversions, then releases connections.
func (a *app) close(ctx context.Context) {
	if a.conv != nil {
		if err := a.conv.Close(ctx); err != nil {
			a.logger.Warn("converter did not stop in time", "error", err)
		}
	}
	if a.locker != nil {
		if err := a.locker.Close(); err != nil {
			a.logger.Warn("failed to close redis client", "error", err)
		}
	}
	repository.Close(a.db, a.logger)
}
