package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/clinicops/coverage/internal/calculation"
	"github.com/clinicops/coverage/internal/config"
	"github.com/clinicops/coverage/internal/logging"
	"github.com/clinicops/coverage/internal/store"
	"github.com/clinicops/coverage/internal/store/postgres"
	"github.com/rs/zerolog"
)

type backend interface {
	calculation.SnapshotSource
	calculation.Recorder
}

// app holds everything a command needs once settings are resolved.
type app struct {
	settings *config.Settings
	logger   zerolog.Logger
	engine   *calculation.CoverageEngine
	history  calculation.Recorder
	pg       *postgres.Store
	cache    *store.CachedSource
	closers  []io.Closer
}

func newApp(ctx context.Context, s *config.Settings) (*app, error) {
	a := &app{
		settings: s,
		logger:   logging.New(os.Stderr, "coverage", s.Env, s.LogLevel),
	}
	adapter := logging.NewAdapter(a.logger)

	var be backend
	switch s.Backend {
	case config.BackendPostgres:
		pg, err := postgres.Open(ctx, s.DatabaseURL, postgres.DefaultRetryConfig(), adapter)
		if err != nil {
			return nil, err
		}
		a.pg = pg
		a.closers = append(a.closers, pg)
		be = pg
	default:
		ds, err := config.NewInputParser().LoadFromFile(s.Dataset)
		if err != nil {
			return nil, err
		}
		be = store.NewMemoryStore(ds)
	}

	var source calculation.SnapshotSource = be
	if s.CacheEnabled() {
		rc, err := store.DialRedis(ctx, s.RedisAddr, s.RedisPassword, s.RedisDB)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, rc)
		a.cache = store.NewCachedSource(be, rc, s.CacheTTL)
		a.cache.SetLogger(adapter)
		source = a.cache
	}

	a.engine = calculation.NewCoverageEngine(source, be)
	a.engine.Calculator = calculation.NewCalculator(s.CurrencyPlaces)
	a.engine.SetLogger(adapter)
	a.history = be

	a.logger.Debug().
		Str("backend", s.Backend).
		Bool("cache", s.CacheEnabled()).
		Int32("currency_places", s.CurrencyPlaces).
		Msg("coverage engine ready")
	return a, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.logger.Warn().Err(err).Msg("close failed")
		}
	}
	a.closers = nil
}

// loadApp resolves settings from flags, environment and the settings file.
func loadApp(ctx context.Context) (*app, error) {
	s, err := config.Load(settings, settingsFile)
	if err != nil {
		return nil, err
	}
	return newApp(ctx, s)
}

func requireBackend(a *app, backend string) error {
	if a.settings.Backend != backend {
		return fmt.Errorf("this command needs the %s backend (current: %s)", backend, a.settings.Backend)
	}
	return nil
}
