// Package events publishes call summaries and bug reports to Kafka.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"github.com/PYPE-AI-MAIN/whispey/internal/models"
	"github.com/PYPE-AI-MAIN/whispey/internal/observability/metrics"
)

// Event types carried in the eventType header.
const (
	EventTypeCallLog   = "call_log"
	EventTypeBugReport = "bug_report"
)

// Publisher writes records to one Kafka topic per record type.
type Publisher struct {
	writerCallLog   *kafka.Writer
	writerBugReport *kafka.Writer
	principal       string
	topicCallLog    string
	topicBugReport  string
	enabled         bool
	metrics         *metrics.Metrics
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers        []string
	TopicCallLog   string
	TopicBugReport string
	Principal      string
	Enabled        bool
}

// New creates a publisher. Without brokers, or when disabled, records are
// only logged.
func New(cfg *Config) *Publisher {
	m := metrics.DefaultMetrics

	if cfg == nil {
		log.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return &Publisher{metrics: m}
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		return &Publisher{
			principal:      cfg.Principal,
			topicCallLog:   cfg.TopicCallLog,
			topicBugReport: cfg.TopicBugReport,
			metrics:        m,
		}
	}

	// Longer dial timeout for DNS resolution in Kubernetes.
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	transport := &kafka.Transport{Dial: dialer.DialFunc}

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicCallLog", cfg.TopicCallLog).
		Str("topicBugReport", cfg.TopicBugReport).
		Str("principal", cfg.Principal).
		Msg("Kafka publisher initialized")

	return &Publisher{
		writerCallLog:   newWriter(cfg.Brokers, cfg.TopicCallLog, transport),
		writerBugReport: newWriter(cfg.Brokers, cfg.TopicBugReport, transport),
		principal:       cfg.Principal,
		topicCallLog:    cfg.TopicCallLog,
		topicBugReport:  cfg.TopicBugReport,
		enabled:         true,
		metrics:         m,
	}
}

func newWriter(brokers []string, topic string, transport *kafka.Transport) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    transport,
	}
}

// PublishCallLog publishes the summary of an exported call keyed by call ID.
func (p *Publisher) PublishCallLog(ctx context.Context, summary models.CallSummary) error {
	return p.publish(ctx, p.writerCallLog, p.topicCallLog, EventTypeCallLog, summary.CallID, summary)
}

// PublishBugReport publishes a completed bug report keyed by session ID.
func (p *Publisher) PublishBugReport(ctx context.Context, report models.BugReport) error {
	return p.publish(ctx, p.writerBugReport, p.topicBugReport, EventTypeBugReport, report.SessionID, report)
}

func (p *Publisher) publish(ctx context.Context, writer *kafka.Writer, topic, eventType, key string, event any) error {
	start := time.Now()

	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to marshal event")
		return err
	}

	log.Debug().
		Str("principal", p.principal).
		Str("topic", topic).
		Str("key", key).
		RawJSON("payload", payload).
		Msg("Publishing event")

	if !p.enabled || writer == nil {
		p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(eventType)},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("topic", topic).
			Str("key", key).
			Msg("Failed to write to Kafka")
		p.metrics.RecordKafkaPublish(topic, eventType, err, time.Since(start).Seconds())
		return err
	}

	p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
	return nil
}

// Close closes both writers.
func (p *Publisher) Close() error {
	var err error
	for name, w := range map[string]*kafka.Writer{"call-log": p.writerCallLog, "bug-report": p.writerBugReport} {
		if w == nil {
			continue
		}
		if e := w.Close(); e != nil {
			log.Error().Err(e).Str("writer", name).Msg("Error closing Kafka writer")
			err = e
		}
	}
	return err
}
