package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

type producer interface {
	Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error
	Flush(timeoutMs int) int
	Close()
}

// KafkaSink publishes each event as JSON keyed by run id.
type KafkaSink struct {
	producer producer
	topic    string
}

var newProducer = func(cfg *kafka.ConfigMap) (producer, error) {
	return kafka.NewProducer(cfg)
}

func NewKafkaSink(brokers, topic string) (*KafkaSink, error) {
	if brokers == "" || topic == "" {
		return nil, errors.New("kafka sink needs brokers and a topic")
	}
	p, err := newProducer(&kafka.ConfigMap{
		"bootstrap.servers": brokers,
		"client.id":         "blockminds",
		"acks":              "1",
	})
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return &KafkaSink{producer: p, topic: topic}, nil
}

func (s *KafkaSink) Name() string { return "kafka" }

// Send waits for the delivery report or ctx, whichever comes first.
func (s *KafkaSink) Send(ctx context.Context, e Event) error {
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	delivery := make(chan kafka.Event, 1)
	topic := s.topic
	err = s.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Key:            []byte(e.RunID),
		Value:          value,
	}, delivery)
	if err != nil {
		return fmt.Errorf("produce event: %w", err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case ev := <-delivery:
		if m, ok := ev.(*kafka.Message); ok && m.TopicPartition.Error != nil {
			return fmt.Errorf("deliver event: %w", m.TopicPartition.Error)
		}
		return nil
	}
}

// Close flushes outstanding messages for up to five seconds.
func (s *KafkaSink) Close() {
	s.producer.Flush(5000)
	s.producer.Close()
}
