// Package sink fans normalized launchpad events out to their consumers.
package sink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/alim08/marketgql/pkg/metrics"
	"github.com/alim08/marketgql/pkg/models"
)

// Redis keys shared by the pipeline commands.
const (
	RawStream       = "launchpad:raw"
	EventsStream    = "launchpad:events"
	AnomalyStream   = "launchpad:anomalies"
	PubSubChannel   = "launchpad:pubsub"
	LatestKeyPrefix = "launchpad:latest:"
	LatestChannel   = "launchpad:latest"

	DefaultTopic   = "launchpad-events"
	kafkaBatchSize = 100
)

// AnomalyHistoryKey is the sorted set of a token's anomalies scored by
// detection time.
func AnomalyHistoryKey(tokenKey string) string {
	return "anomalies:" + tokenKey
}

type Sink interface {
	Name() string
	Write(ctx context.Context, event models.LaunchpadTokenEventOutput, receivedAt time.Time) error
	Close() error
}

// StreamWriter is the subset of *redisclient.Client RedisSink needs.
type StreamWriter interface {
	AddToStream(ctx context.Context, stream string, values map[string]interface{}) (string, error)
	Publish(ctx context.Context, channel string, msg interface{}) error
}

// RedisSink appends events to the normalized stream and announces them on
// the pub/sub channel.
type RedisSink struct {
	rdb     StreamWriter
	stream  string
	channel string
}

func NewRedisSink(rdb StreamWriter) *RedisSink {
	return &RedisSink{rdb: rdb, stream: EventsStream, channel: PubSubChannel}
}

func (s *RedisSink) Name() string { return "redis" }

func (s *RedisSink) Write(ctx context.Context, event models.LaunchpadTokenEventOutput, receivedAt time.Time) error {
	values, err := event.ToMap(receivedAt)
	if err != nil {
		return err
	}
	if _, err := s.rdb.AddToStream(ctx, s.stream, values); err != nil {
		return fmt.Errorf("xadd %s: %w", s.stream, err)
	}
	payload, ok := values["payload"].(string)
	if !ok {
		return fmt.Errorf("event %s has no payload", event.Key())
	}
	if err := s.rdb.Publish(ctx, s.channel, payload); err != nil {
		return fmt.Errorf("publish %s: %w", s.channel, err)
	}
	return nil
}

func (s *RedisSink) Close() error { return nil }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes events keyed by network:address so a token's events
// stay on one partition.
type KafkaSink struct {
	writer messageWriter
}

func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	if topic == "" {
		topic = DefaultTopic
	}
	return &KafkaSink{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchSize:    kafkaBatchSize,
		BatchTimeout: 50 * time.Millisecond,
	}}
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Write(ctx context.Context, event models.LaunchpadTokenEventOutput, receivedAt time.Time) error {
	data, err := event.ToJSON()
	if err != nil {
		return err
	}
	return s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.Key()),
		Value: []byte(data),
		Time:  receivedAt,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(event.EventType)},
			{Key: "protocol", Value: []byte(event.Protocol)},
		},
	})
}

func (s *KafkaSink) Close() error { return s.writer.Close() }

// Multi writes every event to all sinks. A failing sink does not stop the
// others; their errors are joined.
type Multi []Sink

func (m Multi) Name() string { return "multi" }

func (m Multi) Write(ctx context.Context, event models.LaunchpadTokenEventOutput, receivedAt time.Time) error {
	var errs []error
	for _, s := range m {
		err := s.Write(ctx, event, receivedAt)
		metrics.SinkWrites.WithLabelValues(s.Name(), metrics.Status(err)).Inc()
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}
