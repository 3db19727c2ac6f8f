package main

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// OrderUseCaseInterface define a interface para o use case
type OrderUseCaseInterface interface {
	CreateOrder(ctx context.Context, customerID string, items []OrderItem) Result
	AddOrderRow(ctx context.Context, orderID, productID string, quantity int) Result
	UpdateOrderRowQuantity(ctx context.Context, lineID string, quantity int) Result
	DeleteOrderRow(ctx context.Context, lineID string) Result
	DeleteOrder(ctx context.Context, orderID string) Result
	UpdateStatus(ctx context.Context, orderID, status string) Result
	GetByID(ctx context.Context, orderID string) Result
	GetStatistics(ctx context.Context) StatisticsResult
	ListCustomerOrders(ctx context.Context, customerID string) ([]Order, error)
	DeleteCustomer(ctx context.Context, customerID string) Result
}

// CreateOrderRequest é o corpo de POST /api/orders
type CreateOrderRequest struct {
	CustomerID string      `json:"customer_id" binding:"required"`
	Items      []OrderItem `json:"items"`
}

// AddOrderRowRequest é o corpo de POST /api/orders/:id/rows
type AddOrderRowRequest struct {
	ProductID string `json:"product_id" binding:"required"`
	Quantity  int    `json:"quantity"`
}

// UpdateOrderRowRequest é o corpo de PATCH /api/order-rows/:id
type UpdateOrderRowRequest struct {
	Quantity int `json:"quantity"`
}

// UpdateStatusRequest é o corpo de PATCH /api/orders/:id/status
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// OrderResponse é a resposta de toda operação sobre um pedido
type OrderResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Order   *Order `json:"order,omitempty"`
}

// OrdersResponse é a resposta da listagem de pedidos de um cliente
type OrdersResponse struct {
	Success bool    `json:"success"`
	Message string  `json:"message,omitempty"`
	Code    string  `json:"code,omitempty"`
	Orders  []Order `json:"orders"`
}

// StatisticsResponse é a resposta de GET /api/statistics
type StatisticsResponse struct {
	Success    bool             `json:"success"`
	Message    string           `json:"message,omitempty"`
	Code       string           `json:"code,omitempty"`
	Statistics *OrderStatistics `json:"statistics,omitempty"`
}

const codeInvalidRequest = "InvalidRequest"

// OrderHandler contém os handlers HTTP
type OrderHandler struct {
	useCase OrderUseCaseInterface
	tracer  trace.Tracer
	logger  *zap.Logger
}

// NewOrderHandler cria uma nova instância de OrderHandler
func NewOrderHandler(useCase OrderUseCaseInterface, tracer trace.Tracer, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		useCase: useCase,
		tracer:  tracer,
		logger:  logger,
	}
}

// RegisterRoutes registra as rotas da API de pedidos
func (h *OrderHandler) RegisterRoutes(r gin.IRouter) {
	r.GET("/health", h.HealthCheck)

	api := r.Group("/api")
	api.POST("/orders", h.CreateOrder)
	api.GET("/orders/:id", h.GetOrder)
	api.DELETE("/orders/:id", h.DeleteOrder)
	api.PATCH("/orders/:id/status", h.UpdateStatus)
	api.POST("/orders/:id/rows", h.AddOrderRow)

	api.PATCH("/order-rows/:id", h.UpdateOrderRow)
	api.DELETE("/order-rows/:id", h.DeleteOrderRow)

	api.GET("/customers/:id/orders", h.ListCustomerOrders)
	api.DELETE("/customers/:id", h.DeleteCustomer)

	api.GET("/statistics", h.GetStatistics)
}

// statusFor traduz o tipo de erro em status HTTP
func statusFor(err error) int {
	switch ErrorKindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	case KindInsufficientStock, KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *OrderHandler) badRequest(c *gin.Context, err error) {
	trace.SpanFromContext(c.Request.Context()).RecordError(err)
	c.JSON(http.StatusBadRequest, OrderResponse{
		Success: false,
		Message: err.Error(),
		Code:    codeInvalidRequest,
	})
}

// respond escreve o Result; a mensagem é sempre repassada como veio do use case
func (h *OrderHandler) respond(c *gin.Context, successStatus int, result Result) {
	if !result.Success {
		code := ErrorCodeOf(result.Err)
		trace.SpanFromContext(c.Request.Context()).SetAttributes(attribute.String("error.code", code))
		c.JSON(statusFor(result.Err), OrderResponse{
			Success: false,
			Message: result.Message,
			Code:    code,
		})
		return
	}
	c.JSON(successStatus, OrderResponse{
		Success: true,
		Message: result.Message,
		Order:   result.Order,
	})
}

// CreateOrder cria um pedido reservando o estoque de todos os itens
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "create_order")
	defer span.End()
	span.SetAttributes(
		attribute.String("customer_id", req.CustomerID),
		attribute.Int("items", len(req.Items)),
	)

	h.respond(c, http.StatusCreated, h.useCase.CreateOrder(ctx, req.CustomerID, req.Items))
}

// GetOrder retorna o pedido com as linhas
func (h *OrderHandler) GetOrder(c *gin.Context) {
	h.respond(c, http.StatusOK, h.useCase.GetByID(c.Request.Context(), c.Param("id")))
}

// DeleteOrder remove o pedido devolvendo o estoque
func (h *OrderHandler) DeleteOrder(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "delete_order")
	defer span.End()
	span.SetAttributes(attribute.String("order_id", c.Param("id")))

	h.respond(c, http.StatusOK, h.useCase.DeleteOrder(ctx, c.Param("id")))
}

// UpdateStatus altera o status do pedido
func (h *OrderHandler) UpdateStatus(c *gin.Context) {
	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "update_order_status")
	defer span.End()
	span.SetAttributes(
		attribute.String("order_id", c.Param("id")),
		attribute.String("status", req.Status),
	)

	h.respond(c, http.StatusOK, h.useCase.UpdateStatus(ctx, c.Param("id"), req.Status))
}

// AddOrderRow acrescenta uma linha ao pedido
func (h *OrderHandler) AddOrderRow(c *gin.Context) {
	var req AddOrderRowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "add_order_row")
	defer span.End()
	span.SetAttributes(
		attribute.String("order_id", c.Param("id")),
		attribute.String("product_id", req.ProductID),
		attribute.Int("quantity", req.Quantity),
	)

	h.respond(c, http.StatusCreated, h.useCase.AddOrderRow(ctx, c.Param("id"), req.ProductID, req.Quantity))
}

// UpdateOrderRow altera a quantidade de uma linha
func (h *OrderHandler) UpdateOrderRow(c *gin.Context) {
	var req UpdateOrderRowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "update_order_row")
	defer span.End()
	span.SetAttributes(
		attribute.String("line_id", c.Param("id")),
		attribute.Int("quantity", req.Quantity),
	)

	h.respond(c, http.StatusOK, h.useCase.UpdateOrderRowQuantity(ctx, c.Param("id"), req.Quantity))
}

// DeleteOrderRow remove uma linha devolvendo o estoque
func (h *OrderHandler) DeleteOrderRow(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "delete_order_row")
	defer span.End()
	span.SetAttributes(attribute.String("line_id", c.Param("id")))

	h.respond(c, http.StatusOK, h.useCase.DeleteOrderRow(ctx, c.Param("id")))
}

// ListCustomerOrders lista os pedidos do cliente
func (h *OrderHandler) ListCustomerOrders(c *gin.Context) {
	orders, err := h.useCase.ListCustomerOrders(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), OrdersResponse{
			Success: false,
			Message: err.Error(),
			Code:    ErrorCodeOf(err),
			Orders:  []Order{},
		})
		return
	}
	c.JSON(http.StatusOK, OrdersResponse{Success: true, Orders: orders})
}

// DeleteCustomer remove o cliente, seus pedidos e devolve o estoque
func (h *OrderHandler) DeleteCustomer(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "delete_customer")
	defer span.End()
	span.SetAttributes(attribute.String("customer_id", c.Param("id")))

	h.respond(c, http.StatusOK, h.useCase.DeleteCustomer(ctx, c.Param("id")))
}

// GetStatistics retorna os números agregados dos pedidos
func (h *OrderHandler) GetStatistics(c *gin.Context) {
	result := h.useCase.GetStatistics(c.Request.Context())
	if !result.Success {
		h.logger.Error("❌ Failed to get statistics", zap.Error(result.Err))
		c.JSON(statusFor(result.Err), StatisticsResponse{
			Success: false,
			Message: result.Message,
			Code:    ErrorCodeOf(result.Err),
		})
		return
	}
	c.JSON(http.StatusOK, StatisticsResponse{Success: true, Message: result.Message, Statistics: result.Statistics})
}

// HealthCheck é o endpoint de health check
func (h *OrderHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}
