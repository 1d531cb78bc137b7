// Package telemetry exposes the service counters through the OpenTelemetry
// metric API. Without a configured MeterProvider the global meter is a no-op.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/dmitrijs2005/companion"

// Turn outcomes.
const (
	OutcomeOK               = "ok"
	OutcomeGenerationFailed = "generation_failed"
	OutcomePersistFailed    = "persistence_failed"
)

// Metrics groups the counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	turns        metric.Int64Counter
	flagged      metric.Int64Counter
	indexFailure metric.Int64Counter
	reconciled   metric.Int64Counter
}

// New creates the counters on meter; a nil meter uses the global provider.
func New(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = otel.Meter(meterName)
	}

	var (
		m   Metrics
		err error
	)
	if m.turns, err = meter.Int64Counter("companion.turns",
		metric.WithDescription("Conversation turns by outcome")); err != nil {
		return nil, err
	}
	if m.flagged, err = meter.Int64Counter("companion.moderation.flagged",
		metric.WithDescription("Exchanges flagged by the moderation pass")); err != nil {
		return nil, err
	}
	if m.indexFailure, err = meter.Int64Counter("companion.memory.failures",
		metric.WithDescription("Memory index operations that failed, by operation")); err != nil {
		return nil, err
	}
	if m.reconciled, err = meter.Int64Counter("companion.memory.reconciled",
		metric.WithDescription("Memory records removed or re-indexed by reconciliation")); err != nil {
		return nil, err
	}
	return &m, nil
}

// Noop returns Metrics backed by the no-op meter.
func Noop() *Metrics {
	m, _ := New(noop.NewMeterProvider().Meter(meterName))
	return m
}

func (m *Metrics) Turn(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.turns.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *Metrics) Flagged(ctx context.Context) {
	if m == nil {
		return
	}
	m.flagged.Add(ctx, 1)
}

func (m *Metrics) IndexFailure(ctx context.Context, op string) {
	if m == nil {
		return
	}
	m.indexFailure.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}

func (m *Metrics) Reconciled(ctx context.Context, kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.reconciled.Add(ctx, int64(n), metric.WithAttributes(attribute.String("kind", kind)))
}
