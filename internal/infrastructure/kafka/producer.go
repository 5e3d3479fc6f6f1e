package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"

	"github.com/solitack2/sender-service/internal/domain"
	"github.com/solitack2/sender-service/internal/infrastructure/metrics"
)

// JobEventProducer publishes job lifecycle events using an asynchronous
// sarama producer.
type JobEventProducer struct {
	producer  sarama.AsyncProducer
	topic     string
	logger    zerolog.Logger
	metrics   *metrics.Metrics
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
	closed    bool
	closeMu   sync.Mutex
}

// ProducerConfig holds configuration for the job event producer
type ProducerConfig struct {
	Brokers []string
	Topic   string
	Logger  zerolog.Logger
}

// ValidateBrokers checks if Kafka brokers are accessible
func ValidateBrokers(brokers []string) error {
	if len(brokers) == 0 {
		return fmt.Errorf("no brokers specified")
	}

	config := sarama.NewConfig()
	config.Version = sarama.V2_6_0_0

	client, err := sarama.NewClient(brokers, config)
	if err != nil {
		return fmt.Errorf("failed to connect to Kafka brokers: %w", err)
	}
	defer client.Close()

	if err := client.RefreshMetadata(); err != nil {
		return fmt.Errorf("failed to refresh metadata from Kafka: %w", err)
	}

	return nil
}

// NewJobEventProducer creates a new async Kafka producer for job events.
// Events are hash-partitioned by job id so per-job ordering is preserved.
func NewJobEventProducer(cfg ProducerConfig) (domain.EventProducer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("no kafka brokers specified")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka topic is required")
	}

	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Idempotent = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Net.MaxOpenRequests = 1
	config.Producer.Retry.Max = 5
	config.Producer.Partitioner = sarama.NewHashPartitioner
	config.Version = sarama.V2_6_0_0
	config.ClientID = "sender-service-producer"

	producer, err := sarama.NewAsyncProducer(cfg.Brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create async producer: %w", err)
	}

	p := &JobEventProducer{
		producer: producer,
		topic:    cfg.Topic,
		logger:   cfg.Logger.With().Str("component", "job_event_producer").Logger(),
		metrics:  metrics.GetDefaultMetrics(),
	}

	p.wg.Add(2)
	go p.monitorSuccesses()
	go p.monitorErrors()

	cfg.Logger.Info().
		Strs("brokers", cfg.Brokers).
		Str("topic", cfg.Topic).
		Msg("Kafka producer initialized successfully")

	return p, nil
}

// PublishJobEvent enqueues one job event for asynchronous delivery.
func (p *JobEventProducer) PublishJobEvent(ctx context.Context, event domain.JobEvent) error {
	p.closeMu.Lock()
	if p.closed {
		p.closeMu.Unlock()
		return fmt.Errorf("producer is closed")
	}
	p.closeMu.Unlock()

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal job event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(strconv.FormatUint(uint64(event.JobID), 10)),
		Value: sarama.ByteEncoder(payload),
	}

	select {
	case p.producer.Input() <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsHealthy reports whether the producer is accepting events.
func (p *JobEventProducer) IsHealthy() bool {
	p.closeMu.Lock()
	defer p.closeMu.Unlock()
	return !p.closed
}

// Close flushes pending events and shuts the producer down.
func (p *JobEventProducer) Close() error {
	p.closeOnce.Do(func() {
		p.closeMu.Lock()
		p.closed = true
		p.closeMu.Unlock()

		p.closeErr = p.producer.Close()
		p.wg.Wait()

		p.logger.Info().Msg("Kafka producer closed")
	})
	return p.closeErr
}

func (p *JobEventProducer) monitorSuccesses() {
	defer p.wg.Done()
	for msg := range p.producer.Successes() {
		p.metrics.JobEventsProduced.Inc()
		p.logger.Debug().
			Str("topic", msg.Topic).
			Int32("partition", msg.Partition).
			Int64("offset", msg.Offset).
			Msg("job event delivered")
	}
}

func (p *JobEventProducer) monitorErrors() {
	defer p.wg.Done()
	for err := range p.producer.Errors() {
		p.metrics.JobEventsDropped.Inc()
		p.logger.Error().
			Err(err.Err).
			Str("topic", err.Msg.Topic).
			Msg("failed to deliver job event")
	}
}
