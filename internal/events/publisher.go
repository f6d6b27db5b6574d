package events

import (
	"fmt"
	"log/slog"

	"github.com/Proton-105/frostbank/pkg/config"
)

// NewPublisher builds the publisher selected by cfg.Driver.
func NewPublisher(cfg config.EventsConfig, log *slog.Logger) (Publisher, error) {
	switch cfg.Driver {
	case "", config.EventsDriverNone:
		return NoopPublisher{}, nil
	case config.EventsDriverRabbitMQ:
		return NewRabbitMQPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Queue, log)
	case config.EventsDriverKafka:
		return NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
	default:
		return nil, fmt.Errorf("unknown events driver %q", cfg.Driver)
	}
}
