package feed

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
)

// Event is published when a settlement watch observes something operators
// care about: a terminal outcome, or a replayed execution hash.
type Event struct {
	Kind          string    `json:"kind"`
	OrderUID      string    `json:"orderId"`
	Owner         string    `json:"owner"`
	ExecutionHash string    `json:"executionHash"`
	Outcome       string    `json:"outcome,omitempty"`
	At            time.Time `json:"at"`
}

const (
	KindSettled = "settled"
	KindReplay  = "replay"
)

type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

type publisher struct {
	writer *kafka.Writer
}

func NewPublisher(brokers []string, topic string) Publisher {
	return &publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

func (p *publisher) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.OrderUID),
		Value: data,
	})
}

func (p *publisher) Close() error {
	return p.writer.Close()
}
