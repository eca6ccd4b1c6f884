package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ReportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "uas_ingest_reports_total",
		Help: "Reports handled, by transport and outcome",
	}, []string{"transport", "outcome"})
	StoreErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "uas_ingest_store_errors_total",
		Help: "Failed store writes, by operation",
	}, []string{"op"})
	StoreLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "uas_ingest_store_latency_seconds",
		Help:    "Store write latency, by operation",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})
	BreakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "uas_ingest_breaker_state",
		Help: "Store circuit breaker state (0=closed, 1=half-open, 2=open)",
	})
	MQTTMessages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "uas_ingest_mqtt_messages_total",
		Help: "MQTT messages received on the report topics",
	})
)

func ObserveStoreLatency(op string, start time.Time) {
	StoreLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// NewMetricsServer serves /metrics and /healthz on port.
func NewMetricsServer(port string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
