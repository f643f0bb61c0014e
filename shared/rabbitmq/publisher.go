package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

type Config struct {
	URL      string
	Exchange string
}

// Publisher sends JSON messages to a durable topic exchange. The topic is
// used as the routing key.
type Publisher struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	mu      sync.Mutex
	config  Config
	logger  *slog.Logger
}

// NewPublisher connects with retry and declares the exchange.
func NewPublisher(config Config, logger *slog.Logger) (*Publisher, error) {
	if config.Exchange == "" {
		return nil, fmt.Errorf("exchange name cannot be empty")
	}

	var conn *amqp.Connection
	var err error

	// Retry connection up to 5 times with growing backoff
	for i := 0; i < 5; i++ {
		conn, err = amqp.Dial(config.URL)
		if err == nil {
			break
		}
		retryTime := time.Duration(i*i)*time.Second + time.Second
		logger.Warn("failed to connect to RabbitMQ, retrying", "in", retryTime, "error", err)
		time.Sleep(retryTime)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ after retries: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		config.Exchange, // name
		"topic",         // type
		true,            // durable
		false,           // auto-deleted
		false,           // internal
		false,           // no-wait
		nil,             // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", config.Exchange, err)
	}
	logger.Info("declared RabbitMQ exchange", "exchange", config.Exchange)

	return &Publisher{conn: conn, channel: channel, config: config, logger: logger}, nil
}

func (p *Publisher) Publish(ctx context.Context, routingKey, messageID string, message any) error {
	msg, err := NewPublishing(messageID, message, time.Now())
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.channel.PublishWithContext(
		ctx,
		p.config.Exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		msg,
	)
	if err != nil {
		return fmt.Errorf("failed to publish message to exchange %s with routing key %s: %w",
			p.config.Exchange, routingKey, err)
	}
	return nil
}

// NewPublishing builds a persistent JSON message.
func NewPublishing(messageID string, message any, now time.Time) (amqp.Publishing, error) {
	body, err := json.Marshal(message)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("failed to marshal message: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    messageID,
		Timestamp:    now,
		Body:         body,
	}, nil
}

func (p *Publisher) Close() error {
	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			return err
		}
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
