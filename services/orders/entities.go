package main

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status possíveis de um pedido
const (
	OrderStatusReceived   = "Received"
	OrderStatusProcessing = "Processing"
	OrderStatusShipped    = "Shipped"
	OrderStatusDelivered  = "Delivered"
	OrderStatusCancelled  = "Cancelled"
)

// ValidStatuses lista os status aceitos, na ordem do ciclo de vida
var ValidStatuses = []string{
	OrderStatusReceived,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

// statusTransitions define para onde cada status pode avançar.
// Delivered e Cancelled são terminais.
var statusTransitions = map[string][]string{
	OrderStatusReceived:   {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusDelivered, OrderStatusCancelled},
	OrderStatusDelivered:  {},
	OrderStatusCancelled:  {},
}

// IsValidStatus verifica se o nome pertence ao conjunto enumerado de status
func IsValidStatus(status string) bool {
	_, ok := statusTransitions[status]
	return ok
}

// IsPendingStatus indica se o pedido ainda não saiu para entrega
func IsPendingStatus(status string) bool {
	return status == OrderStatusReceived || status == OrderStatusProcessing
}

// Category representa uma categoria do catálogo
type Category struct {
	ID   string `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

// Customer representa um cliente (somente leitura para o motor de pedidos)
type Customer struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	City      string    `json:"city,omitempty" db:"city"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Product representa um produto e seu estoque atual
type Product struct {
	ID            string          `json:"id" db:"id"`
	CategoryID    string          `json:"category_id" db:"category_id"`
	Name          string          `json:"name" db:"name"`
	Price         decimal.Decimal `json:"price" db:"price"`
	StockQuantity int             `json:"stock_quantity" db:"stock_quantity"`
}

// Order representa um pedido com suas linhas.
// TotalAmount é derivado das linhas e só é escrito pelo repositório.
type Order struct {
	ID          string          `json:"id" db:"id"`
	CustomerID  string          `json:"customer_id" db:"customer_id"`
	Status      string          `json:"status" db:"status"`
	TotalAmount decimal.Decimal `json:"total_amount" db:"total_amount"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
	Lines       []OrderLine     `json:"lines" db:"-"`
}

// OrderLine representa uma linha do pedido.
// UnitPrice é capturado na criação da linha e não acompanha mudanças de preço do produto.
type OrderLine struct {
	ID          string          `json:"id" db:"id"`
	OrderID     string          `json:"order_id" db:"order_id"`
	ProductID   string          `json:"product_id" db:"product_id"`
	ProductName string          `json:"product_name,omitempty" db:"product_name"`
	Quantity    int             `json:"quantity" db:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price" db:"unit_price"`
}

// Subtotal retorna quantity × unit price
func (l OrderLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// OrderItem é um item solicitado na criação de um pedido
type OrderItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// OrderStatistics agrega números de todos os pedidos
type OrderStatistics struct {
	TotalOrders   int             `json:"total_orders"`
	TotalRevenue  decimal.Decimal `json:"total_revenue"`
	PendingOrders int             `json:"pending_orders"`
}

// NewOrder cria uma nova instância de Order com status Received e total zero
func NewOrder(id, customerID string, now time.Time) *Order {
	return &Order{
		ID:          id,
		CustomerID:  customerID,
		Status:      OrderStatusReceived,
		TotalAmount: decimal.Zero,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// NewOrderLine cria uma linha capturando o preço atual do produto
func NewOrderLine(id, orderID string, product *Product, quantity int) OrderLine {
	return OrderLine{
		ID:          id,
		OrderID:     orderID,
		ProductID:   product.ID,
		ProductName: product.Name,
		Quantity:    quantity,
		UnitPrice:   product.Price,
	}
}

// CanTransitionTo valida a mudança de status contra a máquina de estados.
// Repetir o status atual é aceito como no-op.
func (o *Order) CanTransitionTo(status string) error {
	if !IsValidStatus(status) {
		return ErrInvalidStatus
	}
	if o.Status == status {
		return nil
	}
	for _, next := range statusTransitions[o.Status] {
		if next == status {
			return nil
		}
	}
	return invalidTransition(o.Status, status)
}
