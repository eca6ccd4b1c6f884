// Package ingest turns feeder reports into store writes: authorize, validate,
// upsert the object state, append the trajectory point.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"uas-ingest/internal/observability"
	"uas-ingest/internal/pipeline"
	"uas-ingest/internal/store"
)

const DefaultTTL = 24 * time.Hour

type ObjectWriter interface {
	UpsertObject(ctx context.Context, u store.ObjectUpdate) error
}

type PointAppender interface {
	AppendPoint(ctx context.Context, docID string, p pipeline.TrajectoryPoint) (string, error)
}

// Result is the classified outcome of one report. DocID and LastSeen are set
// only for stored reports; Source carries the submitted source value.
type Result struct {
	Outcome  pipeline.Outcome
	DocID    string
	LastSeen time.Time
	Source   any
}

type Coordinator struct {
	auth      pipeline.Authorizer
	validator *pipeline.Validator
	objects   ObjectWriter
	points    PointAppender
	ttl       time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

type Option func(*Coordinator)

func WithTTL(ttl time.Duration) Option {
	return func(c *Coordinator) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

func New(auth pipeline.Authorizer, v *pipeline.Validator, objects ObjectWriter, points PointAppender, logger *slog.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		auth:      auth,
		validator: v,
		objects:   objects,
		points:    points,
		ttl:       DefaultTTL,
		now:       time.Now,
		logger:    logger.With("component", "ingest"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Ingest handles one report received over transport. Classified rejections
// come back as a Result with a nil error; a non-nil error means a store write
// failed and the feeder may retry.
func (c *Coordinator) Ingest(ctx context.Context, transport string, r pipeline.Report) (res Result, err error) {
	ctx, span := observability.Tracer().Start(ctx, "ingest.Report",
		trace.WithAttributes(attribute.String("uas.transport", transport)))
	defer func() {
		outcome := res.Outcome.String()
		if err != nil {
			outcome = "store_failure"
			span.RecordError(err)
			span.SetStatus(codes.Error, "store write failed")
		}
		span.SetAttributes(attribute.String("uas.outcome", outcome))
		span.End()
		observability.ReportsTotal.WithLabelValues(transport, outcome).Inc()
	}()

	res.Source = r.RawSource

	if !c.auth.Authorize(r.Source) {
		res.Outcome = pipeline.OutcomeUnauthorized
		c.logger.Info("source not allowed", "transport", transport, "source", r.RawSource)
		return res, nil
	}

	outcome, rec := c.validator.Validate(r)
	if outcome != pipeline.OutcomeValid {
		res.Outcome = outcome
		c.logger.Debug("report rejected", "transport", transport, "source", r.Source, "object_id", r.ObjectID, "outcome", outcome.String())
		return res, nil
	}

	now := c.now()
	docID := rec.DocID()
	span.SetAttributes(attribute.String("uas.doc_id", docID))

	start := time.Now()
	err = c.objects.UpsertObject(ctx, store.UpdateFromRecord(rec, now, c.ttl))
	observability.ObserveStoreLatency("upsert", start)
	if err != nil {
		observability.StoreErrors.WithLabelValues("upsert").Inc()
		c.logger.Error("object upsert failed", "doc_id", docID, "error", err)
		return res, fmt.Errorf("upsert object %s: %w", docID, err)
	}

	start = time.Now()
	_, err = c.points.AppendPoint(ctx, docID, rec.Point(now))
	observability.ObserveStoreLatency("append", start)
	if err != nil {
		// the object state is already updated; a retry re-upserts and appends again
		observability.StoreErrors.WithLabelValues("append").Inc()
		c.logger.Error("trajectory append failed", "doc_id", docID, "error", err)
		return res, fmt.Errorf("append point %s: %w", docID, err)
	}

	res.Outcome = pipeline.OutcomeValid
	res.DocID = docID
	res.LastSeen = now
	return res, nil
}
