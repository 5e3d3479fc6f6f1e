package kafka

import (
	"context"

	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"github.com/solitack2/sender-service/config"
	"github.com/solitack2/sender-service/internal/domain"
)

// Module provides the job event producer
var Module = fx.Module(
	"kafka",
	fx.Provide(NewProducerFx),
)

// NewProducerFx validates broker connectivity, builds the async producer and
// registers its Close on the fx lifecycle.
func NewProducerFx(
	lc fx.Lifecycle,
	cfg *config.KafkaConfig,
	logger zerolog.Logger,
) (domain.EventProducer, error) {
	if err := ValidateBrokers(cfg.Brokers); err != nil {
		return nil, err
	}

	producer, err := NewJobEventProducer(ProducerConfig{
		Brokers: cfg.Brokers,
		Topic:   cfg.TopicJobEvents,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			return producer.Close()
		},
	})

	return producer, nil
}
