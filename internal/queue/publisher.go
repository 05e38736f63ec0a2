package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/acme/lead-contact-engine/internal/domain"
)

// Publisher emits task outcomes and pass summaries.
type Publisher interface {
	PublishOutcome(ctx context.Context, msg OutcomeMessage) error
	PublishPass(ctx context.Context, stats domain.PassStats) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes outcomes keyed by lead id and pass summaries keyed
// by pass id.
type KafkaPublisher struct {
	outcomes messageWriter
	passes   messageWriter
}

// NewKafkaPublisher constructs a publisher for the two topics.
func NewKafkaPublisher(k *Kafka, outcomeTopic, passTopic string) *KafkaPublisher {
	return &KafkaPublisher{outcomes: k.NewWriter(outcomeTopic), passes: k.NewWriter(passTopic)}
}

// PublishOutcome emits a task outcome.
func (p *KafkaPublisher) PublishOutcome(ctx context.Context, msg OutcomeMessage) error {
	return write(ctx, p.outcomes, "outcome", msg.LeadID, msg, msg.OccurredAt)
}

// PublishPass emits a pass summary.
func (p *KafkaPublisher) PublishPass(ctx context.Context, stats domain.PassStats) error {
	return write(ctx, p.passes, "pass", stats.ID, NewPassMessage(stats), stats.StartedAt.Add(stats.Duration))
}

// Close closes both writers.
func (p *KafkaPublisher) Close() error {
	errOutcomes := p.outcomes.Close()
	if err := p.passes.Close(); err != nil {
		return err
	}
	return errOutcomes
}

func write(ctx context.Context, w messageWriter, kind, key string, payload any, at time.Time) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s publisher: marshal message: %w", kind, err)
	}
	record := kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  at.UTC(),
	}
	if err := w.WriteMessages(ctx, record); err != nil {
		return fmt.Errorf("%s publisher: write message: %w", kind, err)
	}
	return nil
}

// NopPublisher drops everything.
type NopPublisher struct{}

func (NopPublisher) PublishOutcome(context.Context, OutcomeMessage) error { return nil }
func (NopPublisher) PublishPass(context.Context, domain.PassStats) error { return nil }
func (NopPublisher) Close() error { return nil }

var (
	_ Publisher = (*KafkaPublisher)(nil)
	_ Publisher = NopPublisher{}
)
