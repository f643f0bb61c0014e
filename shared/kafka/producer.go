// shared/kafka/producer.go
package kafka

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"
)

type Producer struct {
	producer sarama.AsyncProducer
	logger   *slog.Logger
	done     sync.WaitGroup
}

func NewProducer(brokers []string, logger *slog.Logger) (*Producer, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal       // Balance speed and reliability
	config.Producer.Compression = sarama.CompressionSnappy   // Better throughput
	config.Producer.Flush.Frequency = 500 * time.Millisecond // Batch messages
	config.Producer.Retry.Max = 5
	config.Producer.Partitioner = sarama.NewHashPartitioner // Keep one order's events in order

	producer, err := sarama.NewAsyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to start Kafka producer: %w", err)
	}
	return NewProducerFrom(producer, logger), nil
}

// NewProducerFrom wraps an existing async producer and drains its error
// channel.
func NewProducerFrom(producer sarama.AsyncProducer, logger *slog.Logger) *Producer {
	p := &Producer{producer: producer, logger: logger}
	p.done.Add(1)
	go func() {
		defer p.done.Done()
		for err := range producer.Errors() {
			p.logger.Error("failed to send Kafka message", "topic", err.Msg.Topic, "error", err.Err)
		}
	}()
	return p
}

// Publish queues message as JSON on topic. Delivery errors surface in the
// log, not here.
func (p *Producer) Publish(topic, key string, message any) error {
	bytes, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("marshal %s message: %w", topic, err)
	}
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(bytes),
	}
	if key != "" {
		msg.Key = sarama.StringEncoder(key)
	}
	p.producer.Input() <- msg
	return nil
}

func (p *Producer) Close() error {
	err := p.producer.Close()
	p.done.Wait()
	return err
}
