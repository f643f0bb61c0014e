package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"bookstore-system/services/order-service/internal/config"
	"bookstore-system/services/order-service/internal/domain"
	"bookstore-system/shared/kafka"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_NoneDriver(t *testing.T) {
	pub, closer, err := New(config.EventsConfig{Driver: config.EventsNone}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	assert.NoError(t, pub.Publish(context.Background(), domain.TopicOrderCreated, domain.OrderEvent{OrderID: 1}))
	assert.NoError(t, closer.Close())
}

func TestNew_UnknownDriver(t *testing.T) {
	_, _, err := New(config.EventsConfig{Driver: "carrier-pigeon"}, nil)
	assert.ErrorContains(t, err, `unknown events driver "carrier-pigeon"`)
}

func TestKafkaPublisher_KeysByOrderID(t *testing.T) {
	mp := mocks.NewAsyncProducer(t, mocks.NewTestConfig())
	mp.ExpectInputWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		key, _ := msg.Key.Encode()
		if string(key) != "17" || msg.Topic != domain.TopicOrderPaid {
			return errors.New("unexpected message routing")
		}
		return nil
	})
	producer := kafka.NewProducerFrom(mp, slog.New(slog.NewTextHandler(io.Discard, nil)))

	pub := KafkaPublisher{Producer: producer}
	require.NoError(t, pub.Publish(context.Background(), domain.TopicOrderPaid, domain.OrderEvent{EventID: "e", OrderID: 17}))
	require.NoError(t, producer.Close())
}
