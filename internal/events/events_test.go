package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/frostbank/pkg/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEventJSONShape(t *testing.T) {
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.FixedZone("KST", 9*3600))
	event := New(TypeGrant, 1, []int64{2, 3}, 50, "event prize", at)

	data, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.NotEmpty(t, decoded["id"])
	assert.Equal(t, "grant", decoded["type"])
	assert.Equal(t, float64(1), decoded["actor_id"])
	assert.Equal(t, []any{float64(2), float64(3)}, decoded["user_ids"])
	assert.Equal(t, float64(50), decoded["amount"])
	assert.Equal(t, "event prize", decoded["reason"])
	assert.Equal(t, "2024-03-01T00:00:00Z", decoded["occurred_at"])
}

func TestKafkaPublisherSendsKeyedMessage(t *testing.T) {
	producer := mocks.NewSyncProducer(t, NewKafkaConfig())
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var event Event
		if err := json.Unmarshal(val, &event); err != nil {
			return err
		}
		if event.Type != TypeTransfer {
			return errors.New("unexpected type")
		}
		return nil
	})

	pub := NewKafkaPublisherWithProducer(producer, "ledger", testLogger())
	err := pub.Publish(context.Background(), New(TypeTransfer, 7, []int64{8}, 20, "", time.Now()))
	require.NoError(t, err)
	require.NoError(t, pub.Close())
}

func TestKafkaPublisherReportsFailure(t *testing.T) {
	producer := mocks.NewSyncProducer(t, NewKafkaConfig())
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	pub := NewKafkaPublisherWithProducer(producer, "ledger", testLogger())
	err := pub.Publish(context.Background(), New(TypeGrant, 1, []int64{2}, 5, "", time.Now()))
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, pub.Close())
}

type fakeChannel struct {
	published []amqp.Publishing
	keys      []string
	err       error
	closed    bool
}

func (f *fakeChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.keys = append(f.keys, key)
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestRabbitMQPublisherPublishesPersistentJSON(t *testing.T) {
	ch := &fakeChannel{}
	pub := &RabbitMQPublisher{ch: ch, queue: "frostbank.ledger", log: testLogger()}

	event := New(TypeWithdraw, 1, []int64{2}, 100, "cleanup", time.Now())
	require.NoError(t, pub.Publish(context.Background(), event))

	require.Len(t, ch.published, 1)
	msg := ch.published[0]
	assert.Equal(t, "frostbank.ledger", ch.keys[0])
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, event.ID, msg.MessageId)
	assert.Equal(t, "withdraw", msg.Type)

	require.NoError(t, pub.Close())
	assert.True(t, ch.closed)
}

func TestRabbitMQPublisherWrapsErrors(t *testing.T) {
	ch := &fakeChannel{err: amqp.ErrClosed}
	pub := &RabbitMQPublisher{ch: ch, queue: "q", log: testLogger()}

	err := pub.Publish(context.Background(), New(TypeGrant, 1, []int64{2}, 5, "", time.Now()))
	assert.ErrorIs(t, err, amqp.ErrClosed)
}

func TestNewPublisherSelectsDriver(t *testing.T) {
	pub, err := NewPublisher(config.EventsConfig{Driver: config.EventsDriverNone}, testLogger())
	require.NoError(t, err)
	assert.IsType(t, NoopPublisher{}, pub)

	_, err = NewPublisher(config.EventsConfig{Driver: "carrier-pigeon"}, testLogger())
	assert.Error(t, err)
}
