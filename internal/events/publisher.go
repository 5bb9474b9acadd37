// Package events publishes committed coin ledger entries to Kafka for
// downstream consumers (notifications, analytics). Publishing happens after
// the ledger transaction commits and never affects balances.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/tbourn/go-coin-ledger/internal/domain"
)

// Config configures the Kafka writer.
type Config struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

// Message is the wire format of one ledger entry.
type Message struct {
	EventID      string            `json:"event_id"`
	UserID       string            `json:"user_id"`
	Delta        int64             `json:"delta"`
	Reason       domain.CoinReason `json:"reason"`
	BalanceAfter int64             `json:"balance_after"`
	ThreadID     *string           `json:"thread_id,omitempty"`
	AnswerID     *string           `json:"answer_id,omitempty"`
	OccurredAt   time.Time         `json:"occurred_at"`
}

// NewMessage converts a ledger entry to its wire form.
func NewMessage(ev domain.CoinEvent) Message {
	return Message{
		EventID:      ev.ID,
		UserID:       ev.UserID,
		Delta:        ev.Delta,
		Reason:       ev.Reason,
		BalanceAfter: ev.BalanceAfter,
		ThreadID:     ev.ThreadID,
		AnswerID:     ev.AnswerID,
		OccurredAt:   ev.CreatedAt.UTC(),
	}
}

// writer is the subset of *kafka.Writer used here.
type writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes ledger entries keyed by user id, so one user's
// entries stay ordered within a partition.
type KafkaPublisher struct {
	w       writer
	timeout time.Duration
}

// NewKafkaPublisher returns a synchronous publisher that waits for all
// in-sync replicas.
func NewKafkaPublisher(cfg Config) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("events: no kafka brokers configured")
	}
	if cfg.Topic == "" {
		return nil, errors.New("events: kafka topic is required")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
	}
	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &KafkaPublisher{w: w, timeout: timeout}, nil
}

// Publish writes evs in one batch.
func (p *KafkaPublisher) Publish(ctx context.Context, evs ...domain.CoinEvent) error {
	if len(evs) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(evs))
	for _, ev := range evs {
		value, err := json.Marshal(NewMessage(ev))
		if err != nil {
			return err
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(ev.UserID),
			Value: value,
			Headers: []kafka.Header{
				{Key: "reason", Value: []byte(ev.Reason)},
			},
		})
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.w.WriteMessages(ctx, msgs...)
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	if p == nil || p.w == nil {
		return nil
	}
	return p.w.Close()
}

// Noop discards events. It is used when Kafka is not configured.
type Noop struct{}

// Publish does nothing.
func (Noop) Publish(context.Context, ...domain.CoinEvent) error { return nil }
