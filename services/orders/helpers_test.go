package main

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

const (
	testCategoryID = "cat-electronics"
	testCustomerID = "cust-anna"
)

// recordingPublisher guarda os eventos publicados
type recordingPublisher struct {
	mu     sync.Mutex
	events []OrderEvent
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, event OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]string, len(p.events))
	for i, e := range p.events {
		types[i] = e.Type
	}
	return types
}

func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	metrics, err := NewMetrics(metricnoop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)
	return metrics
}

// fixture monta um OrderUseCase sobre o MemoryStore com uma categoria e um cliente
type fixture struct {
	store  *MemoryStore
	events *recordingPublisher
	uc     *OrderUseCase
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := NewMemoryStore()
	require.NoError(t, store.AddCategory(Category{ID: testCategoryID, Name: "Elektronik"}))
	require.NoError(t, store.AddCustomer(Customer{ID: testCustomerID, Name: "Anna Andersson", City: "Stockholm"}))

	events := &recordingPublisher{}
	uc := NewOrderUseCase(store, events, zap.NewNop(), tracenoop.NewTracerProvider().Tracer("test"), newTestMetrics(t))
	return &fixture{store: store, events: events, uc: uc}
}

func (f *fixture) addProduct(t *testing.T, id, name, price string, stock int) {
	t.Helper()
	require.NoError(t, f.store.AddProduct(Product{
		ID:            id,
		CategoryID:    testCategoryID,
		Name:          name,
		Price:         decimal.RequireFromString(price),
		StockQuantity: stock,
	}))
}

func (f *fixture) stock(t *testing.T, productID string) int {
	t.Helper()
	p, ok := f.store.Product(productID)
	require.True(t, ok, "product %s not found", productID)
	return p.StockQuantity
}

// createOrder cria um pedido que precisa dar certo
func (f *fixture) createOrder(t *testing.T, items ...OrderItem) *Order {
	t.Helper()
	result := f.uc.CreateOrder(context.Background(), testCustomerID, items)
	require.True(t, result.Success, result.Message)
	require.NotNil(t, result.Order)
	return result.Order
}

func (f *fixture) order(t *testing.T, orderID string) *Order {
	t.Helper()
	result := f.uc.GetByID(context.Background(), orderID)
	require.True(t, result.Success, result.Message)
	return result.Order
}

func item(productID string, quantity int) OrderItem {
	return OrderItem{ProductID: productID, Quantity: quantity}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// requireTotalMatchesLines confere o total derivado contra as linhas persistidas
func requireTotalMatchesLines(t *testing.T, order *Order) {
	t.Helper()
	require.True(t, order.TotalAmount.Equal(sumLines(order.Lines)),
		"total %s does not match lines %s", order.TotalAmount, sumLines(order.Lines))
}
