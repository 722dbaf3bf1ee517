package kafkax

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Hello-Vince/crm-system/pkg/telemetry"
)

// consumerMetrics exports per topic + consumer-group counters for the
// runtime: processed, retried, failed, dead-lettered, plus the alerting
// counter for dead-letter write failures.
type consumerMetrics struct {
	group string

	processedTotal    *telemetry.Counter
	retriedTotal      *telemetry.Counter
	failedTotal       *telemetry.Counter
	deadLetteredTotal *telemetry.Counter
	dlqWriteFailures  *telemetry.Counter
}

func newConsumerMetrics(group string) *consumerMetrics {
	m := &consumerMetrics{group: group}
	m.processedTotal, _ = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "consumer.messages.processed",
		Description: "Messages handled successfully and committed",
		Unit:        "{message}",
	})
	m.retriedTotal, _ = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "consumer.messages.retried",
		Description: "Handler attempts that failed retryably",
		Unit:        "{message}",
	})
	m.failedTotal, _ = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "consumer.messages.failed",
		Description: "Handler attempts that failed permanently",
		Unit:        "{message}",
	})
	m.deadLetteredTotal, _ = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "consumer.messages.dead_lettered",
		Description: "Messages routed to the dead-letter sink",
		Unit:        "{message}",
	})
	m.dlqWriteFailures, _ = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "consumer.dlq.write_failures",
		Description: "Dead-letter sink writes that failed (requires operator attention)",
		Unit:        "{message}",
	})
	return m
}

func (m *consumerMetrics) attrs(topic string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("topic", topic),
		attribute.String("consumer_group", m.group),
	}
}

func (m *consumerMetrics) processed(ctx context.Context, topic string) {
	if m.processedTotal != nil {
		m.processedTotal.Inc(ctx, m.attrs(topic)...)
	}
}

func (m *consumerMetrics) retried(ctx context.Context, topic string) {
	if m.retriedTotal != nil {
		m.retriedTotal.Inc(ctx, m.attrs(topic)...)
	}
}

func (m *consumerMetrics) failed(ctx context.Context, topic string) {
	if m.failedTotal != nil {
		m.failedTotal.Inc(ctx, m.attrs(topic)...)
	}
}

func (m *consumerMetrics) deadLettered(ctx context.Context, topic string) {
	if m.deadLetteredTotal != nil {
		m.deadLetteredTotal.Inc(ctx, m.attrs(topic)...)
	}
}

func (m *consumerMetrics) dlqWriteFailed(ctx context.Context, topic string) {
	if m.dlqWriteFailures != nil {
		m.dlqWriteFailures.Inc(ctx, m.attrs(topic)...)
	}
}
