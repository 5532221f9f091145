// Package events publishes analytics events to Kafka.
package events

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/segmentio/kafka-go"

	"github.com/xenking/roofgenius/internal/domain/analytics"
)

// DefaultTopic receives analytics events when no topic is configured.
const DefaultTopic = "roofgenius.analytics"

// envelopeVersion is bumped on incompatible envelope changes.
const envelopeVersion = "1"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

var _ analytics.Tracker = (*Producer)(nil)

// Producer implements analytics.Tracker on a Kafka topic. Messages are keyed
// by user id so one user's events stay ordered.
type Producer struct {
	w messageWriter
}

// NewProducer creates a Producer writing to topic on brokers.
func NewProducer(brokers []string, topic string) *Producer {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Producer{w: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}}
}

// Track publishes the event envelope.
func (p *Producer) Track(ctx context.Context, e analytics.Event) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if err := p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.UserID),
		Value: Encode(e),
		Time:  e.OccurredAt,
	}); err != nil {
		return errors.Wrapf(err, "publish %s", e.Type)
	}
	return nil
}

// Close flushes pending writes.
func (p *Producer) Close() error {
	return p.w.Close()
}

// Encode renders the wire envelope of an event.
func Encode(ev analytics.Event) []byte {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("eventType", func(e *jx.Encoder) { e.Str(ev.Type) })
		e.Field("eventVersion", func(e *jx.Encoder) { e.Str(envelopeVersion) })
		e.Field("occurredAt", func(e *jx.Encoder) { e.Str(ev.OccurredAt.UTC().Format("2006-01-02T15:04:05.000Z07:00")) })
		if ev.UserID != "" {
			e.Field("userId", func(e *jx.Encoder) { e.Str(ev.UserID) })
		}
		e.Field("data", func(e *jx.Encoder) { e.Raw(ev.DataOrEmpty()) })
	})
	return e.Bytes()
}
