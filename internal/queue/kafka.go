package queue

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/acme/lead-contact-engine/internal/config"
	apperrors "github.com/acme/lead-contact-engine/pkg/errors"
)

const (
	defaultBatchTimeout = 50 * time.Millisecond
	dialTimeout         = 10 * time.Second
	// outcome and pass events are kept for a week
	topicRetention = 7 * 24 * time.Hour
)

// Kafka holds the broker settings shared by writers and topic admin.
type Kafka struct {
	cfg config.KafkaConfig
}

// NewKafka validates cfg and returns the helper.
func NewKafka(cfg config.KafkaConfig) (*Kafka, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("%w: kafka: no brokers configured", apperrors.ErrValidation)
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = defaultBatchTimeout
	}
	return &Kafka{cfg: cfg}, nil
}

// NewWriter returns a synchronous writer for topic. Messages with the same
// key land on the same partition so one lead's outcomes stay ordered.
func (k *Kafka) NewWriter(topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(k.cfg.Brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           k.cfg.BatchTimeout,
		Compression:            kafka.Snappy,
		AllowAutoTopicCreation: false,
		Transport: &kafka.Transport{
			ClientID:    k.cfg.ClientID,
			DialTimeout: dialTimeout,
		},
	}
}

// EnsureTopics creates any of topics that the cluster does not have yet.
// Topic creation is sent to the controller broker.
func (k *Kafka) EnsureTopics(ctx context.Context, partitions, replicationFactor int, topics ...string) error {
	dialer := &kafka.Dialer{Timeout: dialTimeout, ClientID: k.cfg.ClientID}
	conn, err := dialer.DialContext(ctx, "tcp", k.cfg.Brokers[0])
	if err != nil {
		return fmt.Errorf("%w: kafka dial: %v", apperrors.ErrUnavailable, err)
	}
	defer conn.Close()

	existing, err := conn.ReadPartitions()
	if err != nil {
		return fmt.Errorf("kafka: read partitions: %w", err)
	}
	known := make(map[string]struct{}, len(existing))
	for _, p := range existing {
		known[p.Topic] = struct{}{}
	}

	var missing []kafka.TopicConfig
	for _, topic := range topics {
		if _, ok := known[topic]; ok || topic == "" {
			continue
		}
		missing = append(missing, kafka.TopicConfig{
			Topic:             topic,
			NumPartitions:     partitions,
			ReplicationFactor: replicationFactor,
			ConfigEntries: []kafka.ConfigEntry{
				{ConfigName: "retention.ms", ConfigValue: strconv.FormatInt(topicRetention.Milliseconds(), 10)},
			},
		})
	}
	if len(missing) == 0 {
		return nil
	}

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("kafka: locate controller: %w", err)
	}
	ctrl, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("%w: kafka dial controller: %v", apperrors.ErrUnavailable, err)
	}
	defer ctrl.Close()

	if err := ctrl.CreateTopics(missing...); err != nil {
		return fmt.Errorf("kafka: create topics: %w", err)
	}
	return nil
}
