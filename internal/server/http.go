// Package server exposes the ingestion pipeline over HTTP.
package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/goccy/go-json"

	"uas-ingest/internal/ingest"
	"uas-ingest/internal/pipeline"
)

const transportHTTP = "http"

// Ingester runs one report through the pipeline.
type Ingester interface {
	Ingest(ctx context.Context, transport string, r pipeline.Report) (ingest.Result, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Options struct {
	RequestTimeout    time.Duration
	MaxBodyBytes      int64
	CORSOrigins       []string
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

type Server struct {
	ingester Ingester
	health   Pinger
	opts     Options
	logger   *slog.Logger
}

// New builds the HTTP surface. health may be nil, in which case /healthz only
// reports liveness.
func New(ingester Ingester, health Pinger, opts Options, logger *slog.Logger) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}
	return &Server{
		ingester: ingester,
		health:   health,
		opts:     opts,
		logger:   logger.With("component", "http"),
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.CORSOrigins,
		AllowedMethods: []string{http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         300,
	}))
	if s.opts.RateLimitRequests > 0 {
		r.Use(httprate.LimitByIP(s.opts.RateLimitRequests, s.opts.RateLimitWindow))
	}
	r.Use(middleware.Timeout(s.opts.RequestTimeout))

	r.MethodNotAllowed(s.handleMethodNotAllowed)
	r.Get("/healthz", s.handleHealth)
	r.HandleFunc("/ingest", s.handleIngest)
	r.HandleFunc("/", s.handleIngest)
	return r
}

// NewHTTPServer wraps the handler in an *http.Server listening on port.
func (s *Server) NewHTTPServer(port string) *http.Server {
	return &http.Server{
		Addr:              ":" + port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.handleMethodNotAllowed(w, r)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes))
	if err != nil {
		// unreadable bodies count as empty reports
		s.logger.Debug("request body unreadable", "request_id", middleware.GetReqID(r.Context()), "error", err)
		body = nil
	}

	res, err := s.ingester.Ingest(r.Context(), transportHTTP, pipeline.DecodeReport(body))
	if err != nil {
		s.logger.Error("ingest failed", "request_id", middleware.GetReqID(r.Context()), "error", err)
	}
	reply := ingest.Classify(res, err)
	writeJSON(w, reply.Status, reply.Body)
}

func (s *Server) handleMethodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, ingest.MethodNotAllowed.Status, ingest.MethodNotAllowed.Body)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health.Ping(r.Context()); err != nil {
			s.logger.Warn("health check failed", "error", err)
			http.Error(w, "store unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write response failed", "error", err)
	}
}
