package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	otelkafka "github.com/Trendyol/otel-kafka-konsumer"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Tipos de evento publicados depois do commit
const (
	EventOrderCreated       = "order.created"
	EventOrderUpdated       = "order.updated"
	EventOrderDeleted       = "order.deleted"
	EventOrderStatusChanged = "order.status_changed"
)

// OrderEvent descreve o estado do pedido depois de uma operação confirmada
type OrderEvent struct {
	Type        string          `json:"type"`
	OrderID     string          `json:"order_id"`
	CustomerID  string          `json:"customer_id"`
	Status      string          `json:"status,omitempty"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

func newOrderEvent(eventType string, order *Order, now time.Time) OrderEvent {
	return OrderEvent{
		Type:        eventType,
		OrderID:     order.ID,
		CustomerID:  order.CustomerID,
		Status:      order.Status,
		TotalAmount: order.TotalAmount,
		OccurredAt:  now,
	}
}

// EventPublisher publica eventos de pedido
type EventPublisher interface {
	Publish(ctx context.Context, event OrderEvent) error
	Close() error
}

// messageWriter é o produtor Kafka instrumentado
type messageWriter interface {
	WriteMessage(ctx context.Context, msg kafka.Message) error
	Close() error
}

// KafkaEventPublisher publica eventos num tópico Kafka, com a chave igual ao id do pedido
type KafkaEventPublisher struct {
	writer messageWriter
	logger *zap.Logger
}

// NewKafkaEventPublisher cria um produtor que propaga o trace context nos headers
func NewKafkaEventPublisher(broker, topic, serviceName string, tp trace.TracerProvider, logger *zap.Logger) (*KafkaEventPublisher, error) {
	baseWriter := &kafka.Writer{
		Addr:                   kafka.TCP(broker),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}

	writer, err := otelkafka.NewWriter(baseWriter,
		otelkafka.WithTracerProvider(tp),
		otelkafka.WithPropagator(propagation.TraceContext{}),
		otelkafka.WithAttributes(
			[]attribute.KeyValue{
				semconv.MessagingDestinationNameKey.String(topic),
				attribute.String("messaging.kafka.client_id", serviceName),
			},
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka writer: %w", err)
	}

	return &KafkaEventPublisher{writer: writer, logger: logger}, nil
}

func (p *KafkaEventPublisher) Publish(ctx context.Context, event OrderEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to serialize %s event: %w", event.Type, err)
	}

	msg := kafka.Message{
		Key:   []byte(event.OrderID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}
	if err := p.writer.WriteMessage(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", event.Type, err)
	}

	p.logger.Debug("📤 Event published",
		zap.String("type", event.Type),
		zap.String("order_id", event.OrderID),
	)
	return nil
}

func (p *KafkaEventPublisher) Close() error {
	return p.writer.Close()
}

// noopPublisher descarta eventos quando nenhum broker está configurado
type noopPublisher struct{}

func (noopPublisher) Publish(ctx context.Context, event OrderEvent) error { return nil }
func (noopPublisher) Close() error                                       { return nil }
