package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"uas-ingest/internal/config"
	"uas-ingest/internal/grpcapi"
	"uas-ingest/internal/ingest"
	"uas-ingest/internal/mqtt"
	"uas-ingest/internal/observability"
	"uas-ingest/internal/pipeline"
	"uas-ingest/internal/server"
	"uas-ingest/internal/store"
	"uas-ingest/internal/supervisor"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "error", err)
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("uas-ingest stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting uas-ingest...",
		"http_port", cfg.Server.HTTPPort,
		"grpc_port", cfg.Server.GRPCPort,
		"store", cfg.Store.Backend)

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		Exporter:    cfg.Tracing.Exporter,
		Endpoint:    cfg.Tracing.Endpoint,
		SampleRatio: cfg.Tracing.SampleRatio,
	}, logger)
	if err != nil {
		return err
	}
	defer observability.ShutdownTracing(shutdownTracing, logger)

	// store handles live for the whole process
	st, err := store.Open(ctx, cfg.Store, cfg.Breaker, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Warn("store close failed", "error", err)
		}
	}()

	allow := pipeline.NewAllowList(cfg.Validation.AllowedSources...)
	validator := pipeline.NewValidator(pipeline.Thresholds{
		SpeedCeiling:    cfg.Validation.SpeedCeiling,
		AllowNullIsland: cfg.Validation.AllowNullIsland,
	})
	coordinator := ingest.New(allow, validator, st, st, logger, ingest.WithTTL(cfg.Store.ObjectTTL))
	logger.Info("pipeline ready", "allowed_sources", allow.Sources(), "speed_ceiling", validator.Thresholds().SpeedCeiling)

	tree := supervisor.NewTree(logger, supervisor.TreeConfig{ShutdownTimeout: cfg.Server.ShutdownTimeout})

	httpSrv := server.New(coordinator, st, server.Options{
		RequestTimeout:    cfg.Server.RequestTimeout,
		MaxBodyBytes:      cfg.Server.MaxBodyBytes,
		CORSOrigins:       cfg.Server.CORSOrigins,
		RateLimitRequests: cfg.Server.RateLimitRequests,
		RateLimitWindow:   cfg.Server.RateLimitWindow,
	}, logger)
	tree.AddAPIService(supervisor.NewHTTPServerService("http-server",
		httpSrv.NewHTTPServer(cfg.Server.HTTPPort), cfg.Server.ShutdownTimeout))

	if cfg.Server.MetricsPort != "" {
		tree.AddAPIService(supervisor.NewHTTPServerService("metrics-server",
			observability.NewMetricsServer(cfg.Server.MetricsPort), cfg.Server.ShutdownTimeout))
	}

	if cfg.Server.GRPCPort != "" {
		grpcSrv := grpcapi.NewServer(grpcapi.NewService(coordinator, logger), logger)
		tree.AddAPIService(supervisor.NewGRPCServerService(grpcSrv, ":"+cfg.Server.GRPCPort, cfg.Server.ShutdownTimeout))
	}

	if cfg.MQTT.BrokerURL != "" {
		mlog := logger.With("component", "mqtt")
		client, err := mqtt.Connect(cfg.MQTT.BrokerURL, cfg.MQTT.ClientID, mlog)
		if err != nil {
			return err
		}
		defer client.Close()
		tree.AddIngressService(&mqtt.Subscriber{
			Broker:      client,
			Ingester:    coordinator,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			Logger:      mlog,
		})
	}

	err = tree.Serve(ctx)
	logger.Info("uas-ingest shut down")
	return err
}
