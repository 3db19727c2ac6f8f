package main

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifica as falhas retornadas pelo motor de pedidos
type ErrorKind string

const (
	KindNotFound          ErrorKind = "not_found"
	KindValidation        ErrorKind = "validation"
	KindInsufficientStock ErrorKind = "insufficient_stock"
	KindConflict          ErrorKind = "conflict"
	KindStorageFailure    ErrorKind = "storage_failure"
)

// OrderError é uma falha de regra de negócio ou de armazenamento.
// Dois OrderError são equivalentes para errors.Is quando têm o mesmo Code.
type OrderError struct {
	Kind    ErrorKind
	Code    string
	Message string
}

func (e *OrderError) Error() string {
	return e.Message
}

func (e *OrderError) Is(target error) bool {
	t, ok := target.(*OrderError)
	return ok && t.Code == e.Code
}

// withMessage devolve uma cópia do erro com outra mensagem
func (e *OrderError) withMessage(format string, args ...any) *OrderError {
	return &OrderError{Kind: e.Kind, Code: e.Code, Message: fmt.Sprintf(format, args...)}
}

// Erros customizados
var (
	ErrEmptyOrder        = &OrderError{Kind: KindValidation, Code: "EmptyOrder", Message: "Order must contain at least one product."}
	ErrInvalidQuantity   = &OrderError{Kind: KindValidation, Code: "InvalidQuantity", Message: "Quantity must be greater than 0."}
	ErrDuplicateProduct  = &OrderError{Kind: KindValidation, Code: "DuplicateProductInRequest", Message: "Each product may appear only once in an order request."}
	ErrInvalidStatus     = &OrderError{Kind: KindValidation, Code: "InvalidStatus", Message: "Invalid status. Valid values: " + strings.Join(ValidStatuses, ", ")}
	ErrInvalidTransition = &OrderError{Kind: KindValidation, Code: "InvalidTransition", Message: "Status transition is not allowed."}

	ErrCustomerNotFound  = &OrderError{Kind: KindNotFound, Code: "CustomerNotFound", Message: "Customer not found."}
	ErrProductNotFound   = &OrderError{Kind: KindNotFound, Code: "ProductNotFound", Message: "Product not found."}
	ErrOrderNotFound     = &OrderError{Kind: KindNotFound, Code: "OrderNotFound", Message: "Order not found."}
	ErrOrderLineNotFound = &OrderError{Kind: KindNotFound, Code: "OrderLineNotFound", Message: "Order row not found."}

	ErrInsufficientStock = &OrderError{Kind: KindInsufficientStock, Code: "InsufficientStock", Message: "Insufficient stock."}

	ErrConflict       = &OrderError{Kind: KindConflict, Code: "Conflict", Message: "The request conflicts with existing data."}
	ErrStorageFailure = &OrderError{Kind: KindStorageFailure, Code: "StorageFailure", Message: "Storage failure. No changes were applied."}
)

// InsufficientStockError carrega o produto e a quantidade disponível no momento da checagem
type InsufficientStockError struct {
	ProductID   string
	ProductName string
	Available   int
	Requested   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("Insufficient stock for '%s'. Available: %d", e.ProductName, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

func invalidTransition(from, to string) *OrderError {
	return ErrInvalidTransition.withMessage("Cannot change status from '%s' to '%s'.", from, to)
}

func storageFailure(operation string) *OrderError {
	return ErrStorageFailure.withMessage("Storage failure while %s. No changes were applied.", operation)
}

// ErrorKindOf classifica qualquer erro; erros desconhecidos são falhas de armazenamento
func ErrorKindOf(err error) ErrorKind {
	var stockErr *InsufficientStockError
	if errors.As(err, &stockErr) {
		return KindInsufficientStock
	}
	var orderErr *OrderError
	if errors.As(err, &orderErr) {
		return orderErr.Kind
	}
	return KindStorageFailure
}

// ErrorCodeOf retorna o código estável do erro, usado nas respostas HTTP
func ErrorCodeOf(err error) string {
	var stockErr *InsufficientStockError
	if errors.As(err, &stockErr) {
		return ErrInsufficientStock.Code
	}
	var orderErr *OrderError
	if errors.As(err, &orderErr) {
		return orderErr.Code
	}
	return ErrStorageFailure.Code
}

// isBusinessError indica uma violação de regra detectada antes de qualquer escrita
func isBusinessError(err error) bool {
	return ErrorKindOf(err) != KindStorageFailure
}
