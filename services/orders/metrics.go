package main

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics agrupa os instrumentos do serviço de pedidos
type Metrics struct {
	ordersCreated  metric.Int64Counter
	operations     metric.Int64Counter
	reservedUnits  metric.Int64Counter
	releasedUnits  metric.Int64Counter
	operationTimer metric.Float64Histogram
}

// NewMetrics registra os instrumentos no meter informado
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	ordersCreated, err := meter.Int64Counter("orders.created",
		metric.WithDescription("Orders successfully created"))
	if err != nil {
		return nil, fmt.Errorf("orders.created: %w", err)
	}

	operations, err := meter.Int64Counter("orders.operations",
		metric.WithDescription("Fulfillment operations by operation and outcome"))
	if err != nil {
		return nil, fmt.Errorf("orders.operations: %w", err)
	}

	reservedUnits, err := meter.Int64Counter("inventory.reserved_units",
		metric.WithDescription("Stock units reserved by committed operations"))
	if err != nil {
		return nil, fmt.Errorf("inventory.reserved_units: %w", err)
	}

	releasedUnits, err := meter.Int64Counter("inventory.released_units",
		metric.WithDescription("Stock units released by committed operations"))
	if err != nil {
		return nil, fmt.Errorf("inventory.released_units: %w", err)
	}

	operationTimer, err := meter.Float64Histogram("orders.operation.duration",
		metric.WithDescription("Duration of fulfillment operations"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, fmt.Errorf("orders.operation.duration: %w", err)
	}

	return &Metrics{
		ordersCreated:  ordersCreated,
		operations:     operations,
		reservedUnits:  reservedUnits,
		releasedUnits:  releasedUnits,
		operationTimer: operationTimer,
	}, nil
}

// observe registra o resultado e a duração de uma operação
func (m *Metrics) observe(ctx context.Context, operation string, started time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = string(ErrorKindOf(err))
	}
	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	)
	m.operations.Add(ctx, 1, attrs)
	m.operationTimer.Record(ctx, float64(time.Since(started).Microseconds())/1000, attrs)
}

func (m *Metrics) orderCreated(ctx context.Context) {
	m.ordersCreated.Add(ctx, 1)
}

// stockMoved registra a variação líquida de estoque de uma operação confirmada
func (m *Metrics) stockMoved(ctx context.Context, reserved, released int) {
	if reserved > 0 {
		m.reservedUnits.Add(ctx, int64(reserved))
	}
	if released > 0 {
		m.releasedUnits.Add(ctx, int64(released))
	}
}
