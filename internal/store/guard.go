package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"uas-ingest/internal/observability"
	"uas-ingest/internal/pipeline"
)

type BreakerConfig struct {
	Name             string
	FailureThreshold uint32
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
}

// Guarded wraps a Store so that a failing backend is cut off after
// FailureThreshold consecutive write errors. While open, writes fail fast
// with ErrUnavailable. Reads pass straight through.
type Guarded struct {
	Store
	cb *gobreaker.CircuitBreaker[any]
}

func NewGuarded(inner Store, cfg BreakerConfig, logger *slog.Logger) *Guarded {
	if cfg.Name == "" {
		cfg.Name = "store"
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			// a cancelled request says nothing about the backend
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			observability.BreakerState.Set(float64(to))
			logger.Warn("store breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	}
	return &Guarded{Store: inner, cb: gobreaker.NewCircuitBreaker[any](settings)}
}

func (g *Guarded) UpsertObject(ctx context.Context, u ObjectUpdate) error {
	_, err := g.cb.Execute(func() (any, error) {
		return nil, g.Store.UpsertObject(ctx, u)
	})
	return breakerErr(err)
}

func (g *Guarded) AppendPoint(ctx context.Context, docID string, p pipeline.TrajectoryPoint) (string, error) {
	id, err := g.cb.Execute(func() (any, error) {
		return g.Store.AppendPoint(ctx, docID, p)
	})
	if err != nil {
		return "", breakerErr(err)
	}
	return id.(string), nil
}

func (g *Guarded) State() string {
	return g.cb.State().String()
}

func breakerErr(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}
