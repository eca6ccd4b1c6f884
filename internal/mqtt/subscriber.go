package mqtt

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"uas-ingest/internal/ingest"
	"uas-ingest/internal/observability"
	"uas-ingest/internal/pipeline"
)

const (
	DefaultTopicPrefix = "uas/reports/"
	transportMQTT      = "mqtt"
)

type Ingester interface {
	Ingest(ctx context.Context, transport string, r pipeline.Report) (ingest.Result, error)
}

// Broker is the subset of Client the Subscriber drives.
type Broker interface {
	Subscribe(topic string, handler func(Message)) error
	Unsubscribe(topic string)
}

// Subscriber runs every message under TopicPrefix through the pipeline.
// There is no reply channel: outcomes are logged and counted.
type Subscriber struct {
	Broker       Broker
	Ingester     Ingester
	TopicPrefix  string
	AllowRetains bool
	Logger       *slog.Logger
}

func (s *Subscriber) prefix() string {
	if s.TopicPrefix == "" {
		return DefaultTopicPrefix
	}
	return s.TopicPrefix
}

func (s *Subscriber) Topic() string {
	p := s.prefix()
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p + "#"
}

func (s *Subscriber) HandleMessage(ctx context.Context, msg Message) {
	observability.MQTTMessages.Inc()
	topic := msg.Topic()
	if msg.Retained() && !s.AllowRetains {
		s.Logger.Debug("mqtt ignoring retained report", "topic", topic)
		return
	}
	if !strings.HasPrefix(topic, strings.TrimSuffix(s.prefix(), "/")) {
		return
	}

	res, err := s.Ingester.Ingest(ctx, transportMQTT, pipeline.DecodeReport(msg.Payload()))
	if err != nil {
		s.Logger.Error("mqtt report not stored", "topic", topic, "error", err)
		return
	}
	s.Logger.Debug("mqtt report handled", "topic", topic, "outcome", res.Outcome.String(), "doc_id", res.DocID)
}

// Serve subscribes and blocks until ctx is done, then unsubscribes. It
// satisfies suture.Service.
func (s *Subscriber) Serve(ctx context.Context) error {
	topic := s.Topic()
	err := s.Broker.Subscribe(topic, func(m Message) {
		s.HandleMessage(ctx, m)
	})
	if err != nil {
		return fmt.Errorf("mqtt subscribe %s: %w", topic, err)
	}
	s.Logger.Info("mqtt subscribed", "topic", topic)

	<-ctx.Done()
	s.Broker.Unsubscribe(topic)
	return ctx.Err()
}

func (s *Subscriber) String() string { return "mqtt-subscriber" }
