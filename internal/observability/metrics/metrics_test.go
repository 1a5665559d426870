package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("event_type", "payment_intent.succeeded"),
		attribute.String("booking_id", "b-1"),
		attribute.String("outcome", "processed"),
	)
	require.Len(t, attrs, 2)
	keys := []attribute.Key{attrs[0].Key, attrs[1].Key}
	assert.Contains(t, keys, attribute.Key("event_type"))
	assert.Contains(t, keys, attribute.Key("outcome"))
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{ServiceName: "trailpay"}, noop.NewMeterProvider())
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordPaymentEvent(ctx, "stripe", "charge.succeeded", "processed")
	m.RecordRefund(ctx, "refunded")
	m.RecordNotification(ctx, "booking_confirmed", "sent")
	m.RecordLockContention(ctx, "event")

	var nilMetrics *Metrics
	nilMetrics.RecordRefund(ctx, "refunded")
}
