// Package client é o cliente HTTP da API de pedidos.
package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

// Códigos de erro retornados pela API
const (
	CodeEmptyOrder        = "EmptyOrder"
	CodeInvalidQuantity   = "InvalidQuantity"
	CodeDuplicateProduct  = "DuplicateProductInRequest"
	CodeInvalidStatus     = "InvalidStatus"
	CodeInvalidTransition = "InvalidTransition"
	CodeCustomerNotFound  = "CustomerNotFound"
	CodeProductNotFound   = "ProductNotFound"
	CodeOrderNotFound     = "OrderNotFound"
	CodeOrderLineNotFound = "OrderLineNotFound"
	CodeInsufficientStock = "InsufficientStock"
	CodeConflict          = "Conflict"
	CodeStorageFailure    = "StorageFailure"
	CodeInvalidRequest    = "InvalidRequest"
)

type Order struct {
	ID          string          `json:"id"`
	CustomerID  string          `json:"customer_id"`
	Status      string          `json:"status"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Lines       []OrderLine     `json:"lines"`
}

type OrderLine struct {
	ID          string          `json:"id"`
	OrderID     string          `json:"order_id"`
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name,omitempty"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

type OrderItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type Statistics struct {
	TotalOrders   int             `json:"total_orders"`
	TotalRevenue  decimal.Decimal `json:"total_revenue"`
	PendingOrders int             `json:"pending_orders"`
}

// OrderResult é uma operação bem-sucedida: a mensagem do serviço e o pedido, quando houver
type OrderResult struct {
	Message string
	Order   *Order
}

// APIError é uma operação recusada pelo serviço
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

// Error devolve a mensagem do serviço como veio; status e código ficam nos campos
func (e *APIError) Error() string {
	return e.Message
}

// ErrorCode retorna o código de um *APIError, ou "" para outros erros
func ErrorCode(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}

type orderResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Order   *Order `json:"order"`
}

type ordersResponse struct {
	Success bool    `json:"success"`
	Message string  `json:"message"`
	Code    string  `json:"code"`
	Orders  []Order `json:"orders"`
}

type statisticsResponse struct {
	Success    bool        `json:"success"`
	Message    string      `json:"message"`
	Code       string      `json:"code"`
	Statistics *Statistics `json:"statistics"`
}

// Client fala com o serviço de pedidos
type Client struct {
	http *resty.Client
}

type Option func(*resty.Client)

// WithTimeout define o timeout de cada requisição
func WithTimeout(d time.Duration) Option {
	return func(c *resty.Client) { c.SetTimeout(d) }
}

// WithRetries repete requisições que falharam no transporte
func WithRetries(count int, wait time.Duration) Option {
	return func(c *resty.Client) {
		c.SetRetryCount(count).SetRetryWaitTime(wait)
	}
}

// New cria um cliente para baseURL, por exemplo http://localhost:8080
func New(baseURL string, opts ...Option) *Client {
	r := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/json").
		SetTimeout(10 * time.Second)
	for _, opt := range opts {
		opt(r)
	}
	return &Client{http: r}
}

func (c *Client) request(ctx context.Context) *resty.Request {
	return c.http.R().SetContext(ctx)
}

func apiError(resp *resty.Response, code, message string) *APIError {
	if message == "" {
		message = resp.Status()
	}
	return &APIError{StatusCode: resp.StatusCode(), Code: code, Message: message}
}

func orderResult(resp *resty.Response, out *orderResponse) (*OrderResult, error) {
	if resp.IsError() || !out.Success {
		return nil, apiError(resp, out.Code, out.Message)
	}
	return &OrderResult{Message: out.Message, Order: out.Order}, nil
}

func (c *Client) doOrder(req *resty.Request, method, path string) (*OrderResult, error) {
	var out orderResponse
	resp, err := req.SetResult(&out).SetError(&out).Execute(method, path)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return orderResult(resp, &out)
}

// CreateOrder cria um pedido com os itens informados
func (c *Client) CreateOrder(ctx context.Context, customerID string, items []OrderItem) (*OrderResult, error) {
	body := map[string]any{"customer_id": customerID, "items": items}
	return c.doOrder(c.request(ctx).SetBody(body), resty.MethodPost, "/api/orders")
}

// GetOrder busca um pedido pelo id
func (c *Client) GetOrder(ctx context.Context, orderID string) (*OrderResult, error) {
	return c.doOrder(c.request(ctx).SetPathParam("id", orderID), resty.MethodGet, "/api/orders/{id}")
}

// DeleteOrder remove o pedido e devolve o estoque
func (c *Client) DeleteOrder(ctx context.Context, orderID string) (*OrderResult, error) {
	return c.doOrder(c.request(ctx).SetPathParam("id", orderID), resty.MethodDelete, "/api/orders/{id}")
}

// UpdateStatus altera o status do pedido
func (c *Client) UpdateStatus(ctx context.Context, orderID, status string) (*OrderResult, error) {
	req := c.request(ctx).SetPathParam("id", orderID).SetBody(map[string]string{"status": status})
	return c.doOrder(req, resty.MethodPatch, "/api/orders/{id}/status")
}

// AddOrderRow acrescenta uma linha ao pedido
func (c *Client) AddOrderRow(ctx context.Context, orderID, productID string, quantity int) (*OrderResult, error) {
	req := c.request(ctx).
		SetPathParam("id", orderID).
		SetBody(map[string]any{"product_id": productID, "quantity": quantity})
	return c.doOrder(req, resty.MethodPost, "/api/orders/{id}/rows")
}

// UpdateOrderRow altera a quantidade de uma linha
func (c *Client) UpdateOrderRow(ctx context.Context, lineID string, quantity int) (*OrderResult, error) {
	req := c.request(ctx).SetPathParam("id", lineID).SetBody(map[string]int{"quantity": quantity})
	return c.doOrder(req, resty.MethodPatch, "/api/order-rows/{id}")
}

// DeleteOrderRow remove uma linha e devolve o estoque
func (c *Client) DeleteOrderRow(ctx context.Context, lineID string) (*OrderResult, error) {
	return c.doOrder(c.request(ctx).SetPathParam("id", lineID), resty.MethodDelete, "/api/order-rows/{id}")
}

// DeleteCustomer remove o cliente e todos os seus pedidos
func (c *Client) DeleteCustomer(ctx context.Context, customerID string) (*OrderResult, error) {
	return c.doOrder(c.request(ctx).SetPathParam("id", customerID), resty.MethodDelete, "/api/customers/{id}")
}

// ListCustomerOrders lista os pedidos do cliente
func (c *Client) ListCustomerOrders(ctx context.Context, customerID string) ([]Order, error) {
	var out ordersResponse
	resp, err := c.request(ctx).
		SetPathParam("id", customerID).
		SetResult(&out).
		SetError(&out).
		Get("/api/customers/{id}/orders")
	if err != nil {
		return nil, fmt.Errorf("list customer orders: %w", err)
	}
	if resp.IsError() || !out.Success {
		return nil, apiError(resp, out.Code, out.Message)
	}
	return out.Orders, nil
}

// Statistics retorna os números agregados dos pedidos
func (c *Client) Statistics(ctx context.Context) (*Statistics, error) {
	var out statisticsResponse
	resp, err := c.request(ctx).SetResult(&out).SetError(&out).Get("/api/statistics")
	if err != nil {
		return nil, fmt.Errorf("get statistics: %w", err)
	}
	if resp.IsError() || !out.Success || out.Statistics == nil {
		return nil, apiError(resp, out.Code, out.Message)
	}
	return out.Statistics, nil
}

// Health verifica se o serviço responde
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.request(ctx).Get("/health")
	if err != nil {
		return fmt.Errorf("health: %w", err)
	}
	if resp.IsError() {
		return apiError(resp, "", "")
	}
	return nil
}
