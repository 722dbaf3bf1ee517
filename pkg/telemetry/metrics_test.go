package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTelemetryDisabled(t *testing.T) func() {
	ctx := context.Background()
	cfg := &Config{
		Enabled:     false,
		ServiceName: "test-service",
	}

	_, err := Init(ctx, cfg)
	require.NoError(t, err)

	return func() {
		_ = Shutdown(ctx)
	}
}

func TestNewCounter_Disabled(t *testing.T) {
	cleanup := setupTelemetryDisabled(t)
	defer cleanup()

	counter, err := NewCounter(MetricOpts{
		Name:        "test_counter",
		Description: "A test counter",
		Unit:        "1",
	})
	require.NoError(t, err)
	assert.NotNil(t, counter)

	ctx := context.Background()
	// No-op providers; must not panic
	counter.Add(ctx, 5)
	counter.Inc(ctx, TopicAttr("crm.customer.created"))
}

func TestNewHistogram_Disabled(t *testing.T) {
	cleanup := setupTelemetryDisabled(t)
	defer cleanup()

	hist, err := NewHistogram(MetricOpts{
		Name:        "test_duration_seconds",
		Description: "A test histogram",
		Unit:        "s",
	})
	require.NoError(t, err)
	assert.NotNil(t, hist)

	hist.Record(context.Background(), 0.25, ConsumerGroupAttr("audit-service-group"))
}

func TestAttributeHelpers(t *testing.T) {
	assert.Equal(t, "messaging.destination.name", string(TopicAttr("t").Key))
	assert.Equal(t, "t", TopicAttr("t").Value.AsString())
	assert.Equal(t, "g", ConsumerGroupAttr("g").Value.AsString())
	assert.Equal(t, "company-1", CompanyIDAttr("company-1").Value.AsString())
	assert.Equal(t, "crm.customer.created", EventTypeAttr("crm.customer.created").Value.AsString())
}

func TestGetTraceID_NoSpan(t *testing.T) {
	cleanup := setupTelemetryDisabled(t)
	defer cleanup()

	assert.Empty(t, GetTraceID(context.Background()))
}
