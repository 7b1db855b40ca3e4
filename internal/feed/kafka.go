package feed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
)

// Kafka publishes changes to a topic, keyed by stream id so all changes of
// one stream land on one partition in order.
type Kafka struct {
	producer sarama.SyncProducer
	topic    string
}

// NewKafka wraps producer. The caller keeps ownership of the producer
// unless it calls Close.
func NewKafka(producer sarama.SyncProducer, topic string) *Kafka {
	return &Kafka{producer: producer, topic: topic}
}

// DialKafka creates a SyncProducer for brokers with leader acks.
func DialKafka(brokers []string, topic string) (*Kafka, error) {
	cfg := sarama.NewConfig()
	// SyncProducer requires Return.Successes.
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("dial kafka: %w", err)
	}
	return NewKafka(producer, topic), nil
}

// Notify implements Notifier.
func (k *Kafka) Notify(ctx context.Context, c Change) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("publish change: %w", err)
	}
	msg := &sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(c.Stream),
		Value: sarama.ByteEncoder(b),
	}
	if _, _, err := k.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("publish change %s/%s: %w", c.Stream, c.Device, err)
	}
	return nil
}

// Close closes the underlying producer.
func (k *Kafka) Close() error {
	return k.producer.Close()
}
