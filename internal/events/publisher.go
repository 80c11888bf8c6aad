// Package events publishes task and session events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"voice-task-service/internal/observability/metrics"
)

// messageWriter is the subset of *kafka.Writer used here.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher publishes created tasks and session notices to separate topics.
type Publisher struct {
	writerTasks   messageWriter
	writerNotices messageWriter
	principal     string
	topicTasks    string
	topicNotices  string
	enabled       bool
	metrics       *metrics.Metrics
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers      []string
	TopicTasks   string
	TopicNotices string
	Principal    string
	Enabled      bool
}

// New creates a Kafka publisher. Without brokers, or when disabled, events are
// only logged.
func New(cfg *Config) *Publisher {
	m := metrics.DefaultMetrics

	if cfg == nil {
		log.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return &Publisher{
			enabled: false,
			metrics: m,
		}
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		return &Publisher{
			principal:    cfg.Principal,
			topicTasks:   cfg.TopicTasks,
			topicNotices: cfg.TopicNotices,
			enabled:      false,
			metrics:      m,
		}
	}

	// Longer dial timeout for DNS resolution in Kubernetes
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}

	transport := &kafka.Transport{
		Dial: dialer.DialFunc,
	}

	newWriter := func(topic string) *kafka.Writer {
		return &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: 10 * time.Second,
			RequiredAcks: kafka.RequireOne,
			Transport:    transport,
		}
	}

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicTasks", cfg.TopicTasks).
		Str("topicNotices", cfg.TopicNotices).
		Str("principal", cfg.Principal).
		Msg("Kafka publisher initialized")

	return &Publisher{
		writerTasks:   newWriter(cfg.TopicTasks),
		writerNotices: newWriter(cfg.TopicNotices),
		principal:     cfg.Principal,
		topicTasks:    cfg.TopicTasks,
		topicNotices:  cfg.TopicNotices,
		enabled:       true,
		metrics:       m,
	}
}

// PublishTasks publishes a tasks-created event, keyed by session.
func (p *Publisher) PublishTasks(ctx context.Context, key string, event any) error {
	return p.publish(ctx, p.writerTasks, p.topicTasks, "tasks_created", key, event)
}

// PublishNotice publishes a session notice event, keyed by session.
func (p *Publisher) PublishNotice(ctx context.Context, key string, event any) error {
	return p.publish(ctx, p.writerNotices, p.topicNotices, "session_notice", key, event)
}

func (p *Publisher) publish(ctx context.Context, writer messageWriter, topic, eventType, key string, event any) error {
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

// Close closes both Kafka writers.
func (p *Publisher) Close() error {
	var err error
	if p.writerTasks != nil {
		if e := p.writerTasks.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing tasks writer")
			err = e
		}
	}
	if p.writerNotices != nil {
		if e := p.writerNotices.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing notices writer")
			err = e
		}
	}
	return err
}
