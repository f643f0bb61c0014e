// Package events connects the order service to the configured message bus.
package events

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"bookstore-system/services/order-service/internal/config"
	"bookstore-system/services/order-service/internal/domain"
	"bookstore-system/shared/kafka"
	"bookstore-system/shared/rabbitmq"
)

// New builds the publisher selected by cfg.Driver. The returned closer
// flushes and releases the connection.
func New(cfg config.EventsConfig, logger *slog.Logger) (domain.EventPublisher, io.Closer, error) {
	switch cfg.Driver {
	case config.EventsKafka:
		p, err := kafka.NewProducer(cfg.KafkaBrokers, logger)
		if err != nil {
			return nil, nil, err
		}
		return KafkaPublisher{Producer: p}, p, nil
	case config.EventsRabbitMQ:
		p, err := rabbitmq.NewPublisher(rabbitmq.Config{URL: cfg.RabbitMQURL, Exchange: cfg.Exchange}, logger)
		if err != nil {
			return nil, nil, err
		}
		return RabbitPublisher{Publisher: p}, p, nil
	case config.EventsNone, "":
		return NopPublisher{}, NopPublisher{}, nil
	default:
		return nil, nil, fmt.Errorf("unknown events driver %q", cfg.Driver)
	}
}

// KafkaPublisher keys messages by order id so one order's events stay on
// one partition.
type KafkaPublisher struct {
	Producer *kafka.Producer
}

func (k KafkaPublisher) Publish(_ context.Context, topic string, event domain.OrderEvent) error {
	return k.Producer.Publish(topic, strconv.FormatInt(event.OrderID, 10), event)
}

type RabbitPublisher struct {
	Publisher *rabbitmq.Publisher
}

func (r RabbitPublisher) Publish(ctx context.Context, topic string, event domain.OrderEvent) error {
	return r.Publisher.Publish(ctx, topic, event.EventID, event)
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, domain.OrderEvent) error { return nil }

func (NopPublisher) Close() error { return nil }
