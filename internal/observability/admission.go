package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// AdmissionMetrics counts admission decisions by action and outcome.
type AdmissionMetrics struct {
	decisions metric.Int64Counter
}

func NewAdmissionMetrics() (*AdmissionMetrics, error) {
	meter := otel.Meter("gatekeeper/admission")

	decisions, err := meter.Int64Counter(
		"admission.decisions",
		metric.WithDescription("Number of admission decisions by action and outcome"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, err
	}

	return &AdmissionMetrics{decisions: decisions}, nil
}

// RecordDecision adds one decision for action with the given outcome.
func (m *AdmissionMetrics) RecordDecision(ctx context.Context, action, outcome string) {
	m.decisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", action),
		attribute.String("outcome", outcome),
	))
}
