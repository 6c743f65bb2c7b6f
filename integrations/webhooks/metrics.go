package webhooks

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const (
	outcomeDelivered = "delivered"
	outcomeRetried   = "retried"
	outcomeAbandoned = "abandoned"
	outcomeDropped   = "dropped"

	meterName         = "crowdsale/webhooks"
	deliveriesCounter = "sale.webhooks.deliveries"
)

type deliveryMetrics struct {
	deliveries metric.Int64Counter
}

func newDeliveryMetrics(provider metric.MeterProvider) *deliveryMetrics {
	counter, err := provider.Meter(meterName).Int64Counter(deliveriesCounter,
		metric.WithDescription("Webhook delivery attempts by outcome"))
	if err != nil {
		counter, _ = noop.NewMeterProvider().Meter(meterName).Int64Counter(deliveriesCounter)
	}
	return &deliveryMetrics{deliveries: counter}
}

func (m *deliveryMetrics) record(outcome, eventType string) {
	if m == nil || m.deliveries == nil {
		return
	}
	m.deliveries.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.String("event", eventType),
	))
}
