package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

// MockUseCase simula o OrderUseCase para os handlers
type MockUseCase struct {
	mock.Mock
}

func (m *MockUseCase) CreateOrder(ctx context.Context, customerID string, items []OrderItem) Result {
	return m.Called(ctx, customerID, items).Get(0).(Result)
}

func (m *MockUseCase) AddOrderRow(ctx context.Context, orderID, productID string, quantity int) Result {
	return m.Called(ctx, orderID, productID, quantity).Get(0).(Result)
}

func (m *MockUseCase) UpdateOrderRowQuantity(ctx context.Context, lineID string, quantity int) Result {
	return m.Called(ctx, lineID, quantity).Get(0).(Result)
}

func (m *MockUseCase) DeleteOrderRow(ctx context.Context, lineID string) Result {
	return m.Called(ctx, lineID).Get(0).(Result)
}

func (m *MockUseCase) DeleteOrder(ctx context.Context, orderID string) Result {
	return m.Called(ctx, orderID).Get(0).(Result)
}

func (m *MockUseCase) UpdateStatus(ctx context.Context, orderID, status string) Result {
	return m.Called(ctx, orderID, status).Get(0).(Result)
}

func (m *MockUseCase) GetByID(ctx context.Context, orderID string) Result {
	return m.Called(ctx, orderID).Get(0).(Result)
}

func (m *MockUseCase) GetStatistics(ctx context.Context) StatisticsResult {
	return m.Called(ctx).Get(0).(StatisticsResult)
}

func (m *MockUseCase) ListCustomerOrders(ctx context.Context, customerID string) ([]Order, error) {
	args := m.Called(ctx, customerID)
	orders, _ := args.Get(0).([]Order)
	return orders, args.Error(1)
}

func (m *MockUseCase) DeleteCustomer(ctx context.Context, customerID string) Result {
	return m.Called(ctx, customerID).Get(0).(Result)
}

func newTestRouter(uc OrderUseCaseInterface) *gin.Engine {
	gin.SetMode(gin.TestMode)
	tp := tracenoop.NewTracerProvider()
	handler := NewOrderHandler(uc, tp.Tracer("test"), zap.NewNop())
	return newRouter("orders-test", tp, handler)
}

func doJSON(t *testing.T, r http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded), w.Body.String())
	return w, decoded
}

func sampleOrder() *Order {
	order := NewOrder("o-1", testCustomerID, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))
	order.Lines = []OrderLine{{ID: "l-1", OrderID: "o-1", ProductID: "p-1", ProductName: "Widget", Quantity: 2, UnitPrice: dec("5.00")}}
	order.TotalAmount = dec("10.00")
	return order
}

func TestHandler_CreateOrder(t *testing.T) {
	// Arrange
	uc := &MockUseCase{}
	uc.On("CreateOrder", mock.Anything, testCustomerID, []OrderItem{item("p-1", 2)}).
		Return(succeeded("Order o-1 created with total amount 10.00.", sampleOrder()))
	r := newTestRouter(uc)

	// Act
	w, body := doJSON(t, r, http.MethodPost, "/api/orders", `{"customer_id":"cust-anna","items":[{"product_id":"p-1","quantity":2}]}`)

	// Assert
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Order o-1 created with total amount 10.00.", body["message"])
	order := body["order"].(map[string]any)
	assert.Equal(t, "o-1", order["id"])
	assert.NotContains(t, body, "code")
	uc.AssertExpectations(t)
}

func TestHandler_BindErrorsAreInvalidRequest(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		body   string
	}{
		{"create without customer", http.MethodPost, "/api/orders", `{"items":[]}`},
		{"create malformed", http.MethodPost, "/api/orders", `{"customer_id":`},
		{"status without value", http.MethodPatch, "/api/orders/o-1/status", `{}`},
		{"row without product", http.MethodPost, "/api/orders/o-1/rows", `{"quantity":1}`},
		{"row quantity not a number", http.MethodPatch, "/api/order-rows/l-1", `{"quantity":"two"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uc := &MockUseCase{}
			r := newTestRouter(uc)

			w, body := doJSON(t, r, tt.method, tt.path, tt.body)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, codeInvalidRequest, body["code"])
			uc.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything, mock.Anything)
			uc.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestHandler_FailureStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not found", ErrOrderNotFound, http.StatusNotFound, "OrderNotFound"},
		{"line not found", ErrOrderLineNotFound, http.StatusNotFound, "OrderLineNotFound"},
		{"validation", ErrInvalidQuantity, http.StatusBadRequest, "InvalidQuantity"},
		{"transition", invalidTransition(OrderStatusDelivered, OrderStatusReceived), http.StatusBadRequest, "InvalidTransition"},
		{"stock", &InsufficientStockError{ProductName: "Widget", Available: 1}, http.StatusConflict, "InsufficientStock"},
		{"conflict", ErrConflict, http.StatusConflict, "Conflict"},
		{"storage", storageFailure("deleting the order"), http.StatusInternalServerError, "StorageFailure"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			uc := &MockUseCase{}
			uc.On("DeleteOrder", mock.Anything, "o-1").Return(failed(tt.err))
			r := newTestRouter(uc)

			// Act
			w, body := doJSON(t, r, http.MethodDelete, "/api/orders/o-1", "")

			// Assert
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.code, body["code"])
			assert.Equal(t, tt.err.Error(), body["message"])
			assert.NotContains(t, body, "order")
		})
	}
}

func TestHandler_RoutesPassPathParameters(t *testing.T) {
	// Arrange
	uc := &MockUseCase{}
	uc.On("GetByID", mock.Anything, "o-7").Return(succeeded("Order found.", sampleOrder()))
	uc.On("UpdateStatus", mock.Anything, "o-7", "Shipped").Return(succeeded("Order status updated to 'Shipped'.", sampleOrder()))
	uc.On("AddOrderRow", mock.Anything, "o-7", "p-2", 3).Return(succeeded("Order row added.", sampleOrder()))
	uc.On("UpdateOrderRowQuantity", mock.Anything, "l-9", 4).Return(succeeded("Order row updated.", sampleOrder()))
	uc.On("DeleteOrderRow", mock.Anything, "l-9").Return(succeeded("Order row deleted and stock restored.", sampleOrder()))
	uc.On("DeleteCustomer", mock.Anything, "c-3").Return(succeeded("Customer and associated orders deleted.", nil))
	r := newTestRouter(uc)

	// Act + Assert
	w, _ := doJSON(t, r, http.MethodGet, "/api/orders/o-7", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = doJSON(t, r, http.MethodPatch, "/api/orders/o-7/status", `{"status":"Shipped"}`)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = doJSON(t, r, http.MethodPost, "/api/orders/o-7/rows", `{"product_id":"p-2","quantity":3}`)
	assert.Equal(t, http.StatusCreated, w.Code)

	w, _ = doJSON(t, r, http.MethodPatch, "/api/order-rows/l-9", `{"quantity":4}`)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = doJSON(t, r, http.MethodDelete, "/api/order-rows/l-9", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w, body := doJSON(t, r, http.MethodDelete, "/api/customers/c-3", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, body, "order")

	uc.AssertExpectations(t)
}

func TestHandler_ListCustomerOrders(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		uc := &MockUseCase{}
		uc.On("ListCustomerOrders", mock.Anything, testCustomerID).Return([]Order{*sampleOrder()}, nil)
		r := newTestRouter(uc)

		w, body := doJSON(t, r, http.MethodGet, "/api/customers/cust-anna/orders", "")

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, body["orders"], 1)
	})

	t.Run("unknown customer", func(t *testing.T) {
		uc := &MockUseCase{}
		uc.On("ListCustomerOrders", mock.Anything, "ghost").Return(nil, ErrCustomerNotFound)
		r := newTestRouter(uc)

		w, body := doJSON(t, r, http.MethodGet, "/api/customers/ghost/orders", "")

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "CustomerNotFound", body["code"])
		assert.Empty(t, body["orders"])
	})
}

func TestHandler_GetStatistics(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		uc := &MockUseCase{}
		uc.On("GetStatistics", mock.Anything).Return(StatisticsResult{
			Success:    true,
			Message:    "Statistics loaded.",
			Statistics: &OrderStatistics{TotalOrders: 3, TotalRevenue: dec("42.50"), PendingOrders: 2},
		})
		r := newTestRouter(uc)

		w, body := doJSON(t, r, http.MethodGet, "/api/statistics", "")

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "Statistics loaded.", body["message"])
		stats := body["statistics"].(map[string]any)
		assert.EqualValues(t, 3, stats["total_orders"])
		assert.EqualValues(t, 2, stats["pending_orders"])
	})

	t.Run("storage failure", func(t *testing.T) {
		uc := &MockUseCase{}
		err := storageFailure("loading order statistics")
		uc.On("GetStatistics", mock.Anything).Return(StatisticsResult{Success: false, Message: err.Error(), Err: err})
		r := newTestRouter(uc)

		w, body := doJSON(t, r, http.MethodGet, "/api/statistics", "")

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "StorageFailure", body["code"])
		assert.NotContains(t, body, "statistics")
	})
}

func TestHandler_HealthCheck(t *testing.T) {
	r := newTestRouter(&MockUseCase{})

	w, body := doJSON(t, r, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", body["status"])
}

func TestHandler_UnknownErrorIsStorageFailure(t *testing.T) {
	uc := &MockUseCase{}
	uc.On("GetByID", mock.Anything, "o-1").Return(failed(errors.New("boom")))
	r := newTestRouter(uc)

	w, body := doJSON(t, r, http.MethodGet, "/api/orders/o-1", "")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "StorageFailure", body["code"])
}
