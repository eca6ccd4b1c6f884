package store

import (
	"context"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"uas-ingest/internal/config"
)

// Open builds the backend selected by cfg, wrapped in the circuit breaker
// when bc is enabled. The caller owns the returned Store and must Close it.
func Open(ctx context.Context, cfg config.StoreConfig, bc config.BreakerConfig, logger *slog.Logger) (Store, error) {
	var (
		s   Store
		err error
	)
	switch cfg.Backend {
	case config.BackendRedis:
		s, err = NewRedis(ctx, RedisOptions{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		})
	case config.BackendPostgres:
		s, err = openSQL(OpenPostgres(cfg.PostgresDSN))
	case config.BackendSQLite:
		s, err = openSQL(OpenSQLite(cfg.SQLitePath))
	case config.BackendMemory:
		s = NewMemory()
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Backend, err)
	}
	logger.Info("store connected", "backend", cfg.Backend)

	if !bc.Enabled {
		return s, nil
	}
	return NewGuarded(s, BreakerConfig{
		Name:             cfg.Backend,
		FailureThreshold: bc.FailureThreshold,
		MaxRequests:      bc.MaxRequests,
		Interval:         bc.Interval,
		Timeout:          bc.Timeout,
	}, logger), nil
}

func openSQL(db *gorm.DB, err error) (Store, error) {
	if err != nil {
		return nil, err
	}
	return NewSQL(db)
}
