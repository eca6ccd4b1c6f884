// Command feeder emits synthetic drone tracks to a uas-ingest endpoint.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"

	"uas-ingest/internal/grpcclient"
	"uas-ingest/internal/observability"
)

// sender submits one report and returns the reply body.
type sender interface {
	Send(ctx context.Context, report map[string]any) (string, error)
}

type grpcSender struct {
	client *grpcclient.GRPCClient
}

func (g grpcSender) Send(ctx context.Context, report map[string]any) (string, error) {
	res, err := g.client.SendReport(ctx, report)
	if err != nil {
		return "", err
	}
	raw, err := res.MarshalJSON()
	return string(raw), err
}

type httpSender struct {
	url    string
	client *http.Client
}

func (h httpSender) Send(ctx context.Context, report map[string]any) (string, error) {
	body, err := json.Marshal(report)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := h.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= http.StatusInternalServerError {
		return "", fmt.Errorf("ingest returned %d: %s", resp.StatusCode, bytes.TrimSpace(raw))
	}
	return string(bytes.TrimSpace(raw)), nil
}

func main() {
	transport := flag.String("transport", "grpc", "grpc or http")
	addr := flag.String("addr", "localhost:50051", "gRPC address, or the HTTP ingest URL when -transport=http")
	source := flag.String("source", "simulator", "feeder identity sent as source")
	objects := flag.Int("objects", 3, "number of simulated drones")
	interval := flag.Duration("interval", time.Second, "time between report rounds")
	rounds := flag.Int("rounds", 0, "stop after this many rounds (0 runs until interrupted)")
	lat := flag.Float64("lat", 40.7128, "center latitude")
	lon := flag.Float64("lon", -74.0060, "center longitude")
	flag.Parse()

	logger := observability.NewLogger(os.Getenv("LOG_LEVEL"), "text")

	var s sender
	switch *transport {
	case "grpc":
		client, err := grpcclient.NewGRPCClient(*addr)
		if err != nil {
			logger.Error("grpc client failed", "error", err)
			os.Exit(1)
		}
		defer client.Close()
		s = grpcSender{client: client}
	case "http":
		s = httpSender{url: *addr, client: &http.Client{Timeout: 10 * time.Second}}
	default:
		logger.Error("unknown transport", "transport", *transport)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rng := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 1))
	tracks := newTracks(*objects, *lat, *lon, rng)
	logger.Info("feeding", "transport", *transport, "addr", *addr, "objects", len(tracks))

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	for round := 1; ; round++ {
		for _, t := range tracks {
			reply, err := s.Send(ctx, t.next(*source))
			if err != nil {
				logger.Warn("report failed", "object_id", t.id, "error", err)
				continue
			}
			logger.Debug("report sent", "object_id", t.id, "reply", reply)
		}
		if *rounds > 0 && round >= *rounds {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
