package kafkax

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"

	"github.com/Hello-Vince/crm-system/pkg/event"
	"github.com/Hello-Vince/crm-system/pkg/logger"
)

// PublishErrorKind distinguishes broker failures the caller can retry later
// from ones that will never succeed.
type PublishErrorKind string

const (
	PublishTransient PublishErrorKind = "TRANSIENT"
	PublishFatal     PublishErrorKind = "FATAL"
)

// PublishError is returned when an event could not be delivered. The caller's
// database write has already committed by the time publish runs, so a
// transient failure here is a known consistency gap that must be surfaced,
// never swallowed.
type PublishError struct {
	Kind  PublishErrorKind
	Topic string
	Err   error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish to %s failed (%s): %v", e.Topic, e.Kind, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// IsTransientPublishError reports whether err is a transient publish failure.
func IsTransientPublishError(err error) bool {
	var pe *PublishError
	return errors.As(err, &pe) && pe.Kind == PublishTransient
}

// PublisherConfig holds reliable publisher settings.
type PublisherConfig struct {
	Brokers      []string
	ClientID     string
	MaxRetries   int           // local retry bound for transient failures
	RetryBackoff time.Duration // flat wait between local retries
}

func (c *PublisherConfig) withDefaults() {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 500 * time.Millisecond
	}
}

// producerClient is the slice of *kgo.Client the publisher needs, split out
// so tests can stub delivery results.
type producerClient interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// Publisher publishes envelopes with delivery confirmation (acks from all
// in-sync replicas) and bounded local retry of transient broker failures.
type Publisher struct {
	cfg    PublisherConfig
	client producerClient
	closer func()
	log    *logger.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// NewPublisher connects a publisher to the brokers in cfg.
func NewPublisher(cfg PublisherConfig, log *logger.Logger) (*Publisher, error) {
	cfg.withDefaults()
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	}
	if cfg.ClientID != "" {
		opts = append(opts, kgo.ClientID(cfg.ClientID))
	}
	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("new kafka client: %w", err)
	}
	return newPublisher(cfg, client, client.Close, log), nil
}

func newPublisher(cfg PublisherConfig, client producerClient, closer func(), log *logger.Logger) *Publisher {
	cfg.withDefaults()
	if log == nil {
		log = logger.Get()
	}
	return &Publisher{
		cfg:    cfg,
		client: client,
		closer: closer,
		log:    log,
		sleep:  sleepCtx,
	}
}

// Publish encodes env and produces it to topic, keyed by the envelope's
// partition key so events for the same entity stay ordered. Transient broker
// failures are retried locally up to MaxRetries before surfacing.
func (p *Publisher) Publish(ctx context.Context, topic string, env *event.Envelope) error {
	value, err := env.Encode()
	if err != nil {
		return &PublishError{Kind: PublishFatal, Topic: topic, Err: err}
	}
	rec := &kgo.Record{
		Topic: topic,
		Key:   []byte(env.PartitionKey),
		Value: value,
	}

	var lastErr error
	for attempt := 1; attempt <= p.cfg.MaxRetries; attempt++ {
		err := p.client.ProduceSync(ctx, rec).FirstErr()
		if err == nil {
			p.log.DebugContext(ctx, "event published",
				zap.String("topic", topic),
				zap.String("event_type", env.EventType),
				zap.String("partition_key", env.PartitionKey),
			)
			return nil
		}
		if !isTransientBrokerError(err) {
			p.log.ErrorContext(ctx, "event publish failed fatally",
				zap.String("topic", topic),
				zap.String("event_type", env.EventType),
				zap.Error(err),
			)
			return &PublishError{Kind: PublishFatal, Topic: topic, Err: err}
		}
		lastErr = err
		p.log.WarnContext(ctx, "transient publish failure, retrying",
			zap.String("topic", topic),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if attempt < p.cfg.MaxRetries {
			if err := p.sleep(ctx, p.cfg.RetryBackoff); err != nil {
				return &PublishError{Kind: PublishTransient, Topic: topic, Err: err}
			}
		}
	}

	// The upstream write already committed; this event is now missing from
	// the stream until an operator intervenes.
	p.log.ErrorContext(ctx, "event publish exhausted local retries, consistency gap",
		zap.String("topic", topic),
		zap.String("event_type", env.EventType),
		zap.Int("attempts", p.cfg.MaxRetries),
		zap.Error(lastErr),
	)
	return &PublishError{Kind: PublishTransient, Topic: topic, Err: lastErr}
}

// Close flushes and tears down the underlying client.
func (p *Publisher) Close() {
	if p.closer != nil {
		p.closer()
	}
}

// isTransientBrokerError reports whether a produce failure is worth retrying
// locally: retriable Kafka error codes, network faults and timeouts.
func isTransientBrokerError(err error) bool {
	var ke *kerr.Error
	if errors.As(err, &ke) {
		return ke.Retriable
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, kgo.ErrRecordTimeout) {
		return true
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
