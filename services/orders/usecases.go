package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// OrderUseCase contém a lógica de negócio de pedidos e estoque.
// Cada operação de escrita roda numa única unidade de trabalho.
type OrderUseCase struct {
	store     Store
	publisher EventPublisher
	logger    *zap.Logger
	tracer    trace.Tracer
	metrics   *Metrics
	now       func() time.Time
	newID     func() string
}

// NewOrderUseCase cria uma nova instância de OrderUseCase
func NewOrderUseCase(
	store Store,
	publisher EventPublisher,
	logger *zap.Logger,
	tracer trace.Tracer,
	metrics *Metrics,
) *OrderUseCase {
	return &OrderUseCase{
		store:     store,
		publisher: publisher,
		logger:    logger,
		tracer:    tracer,
		metrics:   metrics,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// withinTx executa fn numa transação. Erros de negócio voltam como estão;
// qualquer outro erro vira StorageFailure depois do rollback.
func (uc *OrderUseCase) withinTx(ctx context.Context, operation string, fn func(tx Tx) error) error {
	tx, err := uc.store.BeginTx(ctx)
	if err != nil {
		uc.logger.Error("❌ Failed to begin transaction", zap.String("operation", operation), zap.Error(err))
		return storageFailure(operation)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		if isBusinessError(err) {
			return err
		}
		uc.logger.Error("❌ Unit of work failed, rolled back", zap.String("operation", operation), zap.Error(err))
		return storageFailure(operation)
	}

	if err := tx.Commit(); err != nil {
		uc.logger.Error("❌ Commit failed", zap.String("operation", operation), zap.Error(err))
		return storageFailure(operation)
	}
	return nil
}

// finish fecha a operação: métricas, status do span e log de falha
func (uc *OrderUseCase) finish(ctx context.Context, span trace.Span, operation string, started time.Time, err error) {
	uc.metrics.observe(ctx, operation, started, err)
	if err == nil {
		return
	}

	span.SetAttributes(attribute.String("error.code", ErrorCodeOf(err)))
	if isBusinessError(err) {
		uc.logger.Info("ℹ️ Operation rejected",
			zap.String("operation", operation),
			zap.String("code", ErrorCodeOf(err)),
			zap.String("reason", err.Error()),
		)
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// publish envia o evento depois do commit; falhas não alteram o resultado da operação
func (uc *OrderUseCase) publish(ctx context.Context, eventType string, order *Order) {
	if err := uc.publisher.Publish(ctx, newOrderEvent(eventType, order, uc.now())); err != nil {
		uc.logger.Warn("⚠️ Failed to publish order event",
			zap.String("type", eventType),
			zap.String("order_id", order.ID),
			zap.Error(err),
		)
	}
}

// validateItems aplica as regras que não dependem do armazenamento, nesta ordem:
// lista vazia, quantidade inválida, produto repetido.
func validateItems(items []OrderItem) error {
	if len(items) == 0 {
		return ErrEmptyOrder
	}
	for _, item := range items {
		if item.Quantity <= 0 {
			return ErrInvalidQuantity
		}
	}
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		if _, dup := seen[item.ProductID]; dup {
			return ErrDuplicateProduct.withMessage("Product %s appears more than once in the order request.", item.ProductID)
		}
		seen[item.ProductID] = struct{}{}
	}
	return nil
}

func itemProductIDs(items []OrderItem) []string {
	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ProductID
	}
	return ids
}

// CreateOrder cria o pedido, reserva o estoque de todos os itens e grava as linhas
// numa única transação. Produtos são conferidos como conjunto; o estoque é conferido
// item a item na ordem recebida e o primeiro item sem estoque define o erro.
func (uc *OrderUseCase) CreateOrder(ctx context.Context, customerID string, items []OrderItem) Result {
	const operation = "create_order"
	ctx, span := uc.tracer.Start(ctx, "CreateOrder", trace.WithAttributes(
		attribute.String("customer_id", customerID),
		attribute.Int("items", len(items)),
	))
	defer span.End()
	started := time.Now()

	var order *Order
	reserved := 0
	err := validateItems(items)
	if err == nil {
		err = uc.withinTx(ctx, "creating the order", func(tx Tx) error {
			// Cliente antes dos produtos, como em DeleteCustomer
			if err := uc.store.Catalog().ShareCustomer(ctx, tx, customerID); err != nil {
				return err
			}

			// Trava os produtos em ordem de id
			products, err := uc.store.Inventory().LockProducts(ctx, tx, itemProductIDs(items))
			if err != nil {
				return err
			}
			for _, item := range items {
				if _, ok := products[item.ProductID]; !ok {
					return ErrProductNotFound.withMessage("One or more products not found.")
				}
			}

			for _, item := range items {
				product := products[item.ProductID]
				if product.StockQuantity < item.Quantity {
					return &InsufficientStockError{
						ProductID:   product.ID,
						ProductName: product.Name,
						Available:   product.StockQuantity,
						Requested:   item.Quantity,
					}
				}
			}

			order = NewOrder(uc.newID(), customerID, uc.now())
			lines := make([]OrderLine, 0, len(items))
			for _, item := range items {
				if _, err := uc.store.Inventory().Reserve(ctx, tx, item.ProductID, item.Quantity); err != nil {
					return err
				}
				lines = append(lines, NewOrderLine(uc.newID(), order.ID, products[item.ProductID], item.Quantity))
				reserved += item.Quantity
			}

			return uc.store.Orders().Create(ctx, tx, order, lines)
		})
	}
	uc.finish(ctx, span, operation, started, err)
	if err != nil {
		return failed(err)
	}

	span.SetAttributes(attribute.String("order_id", order.ID))
	uc.metrics.orderCreated(ctx)
	uc.metrics.stockMoved(ctx, reserved, 0)
	uc.publish(ctx, EventOrderCreated, order)
	uc.logger.Info("✅ Order created",
		zap.String("order_id", order.ID),
		zap.String("customer_id", customerID),
		zap.String("total_amount", order.TotalAmount.StringFixed(2)),
	)
	return succeeded(fmt.Sprintf("Order %s created with total amount %s.", order.ID, order.TotalAmount.StringFixed(2)), order)
}

// AddOrderRow reserva o estoque e acrescenta uma linha ao pedido
func (uc *OrderUseCase) AddOrderRow(ctx context.Context, orderID, productID string, quantity int) Result {
	const operation = "add_order_row"
	ctx, span := uc.tracer.Start(ctx, "AddOrderRow", trace.WithAttributes(
		attribute.String("order_id", orderID),
		attribute.String("product_id", productID),
		attribute.Int("quantity", quantity),
	))
	defer span.End()
	started := time.Now()

	var order *Order
	var err error
	if quantity <= 0 {
		err = ErrInvalidQuantity
	} else {
		err = uc.withinTx(ctx, "adding the order row", func(tx Tx) error {
			if _, err := uc.store.Orders().GetForUpdate(ctx, tx, orderID); err != nil {
				return err
			}

			product, err := uc.store.Inventory().GetProductForUpdate(ctx, tx, productID)
			if err != nil {
				return err
			}
			if product.StockQuantity < quantity {
				return &InsufficientStockError{
					ProductID:   product.ID,
					ProductName: product.Name,
					Available:   product.StockQuantity,
					Requested:   quantity,
				}
			}

			if _, err := uc.store.Inventory().Reserve(ctx, tx, productID, quantity); err != nil {
				return err
			}
			if err := uc.store.Orders().AddLine(ctx, tx, NewOrderLine(uc.newID(), orderID, product, quantity)); err != nil {
				return err
			}

			order, err = uc.store.Orders().GetByID(ctx, tx, orderID)
			return err
		})
	}
	uc.finish(ctx, span, operation, started, err)
	if err != nil {
		return failed(err)
	}

	uc.metrics.stockMoved(ctx, quantity, 0)
	uc.publish(ctx, EventOrderUpdated, order)
	uc.logger.Info("✅ Order row added",
		zap.String("order_id", orderID),
		zap.String("product_id", productID),
		zap.Int("quantity", quantity),
	)
	return succeeded("Order row added.", order)
}

// UpdateOrderRowQuantity ajusta a quantidade da linha reservando ou devolvendo só a diferença
func (uc *OrderUseCase) UpdateOrderRowQuantity(ctx context.Context, lineID string, quantity int) Result {
	const operation = "update_order_row"
	ctx, span := uc.tracer.Start(ctx, "UpdateOrderRowQuantity", trace.WithAttributes(
		attribute.String("line_id", lineID),
		attribute.Int("quantity", quantity),
	))
	defer span.End()
	started := time.Now()

	var order *Order
	var delta int
	var err error
	if quantity <= 0 {
		err = ErrInvalidQuantity
	} else {
		err = uc.withinTx(ctx, "updating the order row", func(tx Tx) error {
			line, err := uc.store.Orders().GetLineForUpdate(ctx, tx, lineID)
			if err != nil {
				return err
			}

			product, err := uc.store.Inventory().GetProductForUpdate(ctx, tx, line.ProductID)
			if err != nil {
				return err
			}

			delta = quantity - line.Quantity
			switch {
			case delta > 0:
				if product.StockQuantity < delta {
					return &InsufficientStockError{
						ProductID:   product.ID,
						ProductName: product.Name,
						Available:   product.StockQuantity,
						Requested:   delta,
					}
				}
				if _, err := uc.store.Inventory().Reserve(ctx, tx, product.ID, delta); err != nil {
					return err
				}
			case delta < 0:
				if err := uc.store.Inventory().Release(ctx, tx, product.ID, -delta); err != nil {
					return err
				}
			}

			if err := uc.store.Orders().UpdateLineQuantity(ctx, tx, lineID, quantity); err != nil {
				return err
			}

			order, err = uc.store.Orders().GetByID(ctx, tx, line.OrderID)
			return err
		})
	}
	uc.finish(ctx, span, operation, started, err)
	if err != nil {
		return failed(err)
	}

	if delta > 0 {
		uc.metrics.stockMoved(ctx, delta, 0)
	} else {
		uc.metrics.stockMoved(ctx, 0, -delta)
	}
	uc.publish(ctx, EventOrderUpdated, order)
	uc.logger.Info("✅ Order row updated",
		zap.String("order_id", order.ID),
		zap.String("line_id", lineID),
		zap.Int("quantity", quantity),
		zap.Int("delta", delta),
	)
	return succeeded("Order row updated.", order)
}

// DeleteOrderRow devolve ao estoque a quantidade da linha e a remove
func (uc *OrderUseCase) DeleteOrderRow(ctx context.Context, lineID string) Result {
	const operation = "delete_order_row"
	ctx, span := uc.tracer.Start(ctx, "DeleteOrderRow", trace.WithAttributes(
		attribute.String("line_id", lineID),
	))
	defer span.End()
	started := time.Now()

	var order *Order
	released := 0
	err := uc.withinTx(ctx, "deleting the order row", func(tx Tx) error {
		line, err := uc.store.Orders().GetLineForUpdate(ctx, tx, lineID)
		if err != nil {
			return err
		}

		if err := uc.store.Inventory().Release(ctx, tx, line.ProductID, line.Quantity); err != nil {
			return err
		}
		if err := uc.store.Orders().RemoveLine(ctx, tx, lineID); err != nil {
			return err
		}
		released = line.Quantity

		order, err = uc.store.Orders().GetByID(ctx, tx, line.OrderID)
		return err
	})
	uc.finish(ctx, span, operation, started, err)
	if err != nil {
		return failed(err)
	}

	uc.metrics.stockMoved(ctx, 0, released)
	uc.publish(ctx, EventOrderUpdated, order)
	uc.logger.Info("✅ Order row deleted",
		zap.String("order_id", order.ID),
		zap.String("line_id", lineID),
		zap.Int("released", released),
	)
	return succeeded("Order row deleted and stock restored.", order)
}

// DeleteOrder devolve o estoque de todas as linhas e remove o pedido
func (uc *OrderUseCase) DeleteOrder(ctx context.Context, orderID string) Result {
	const operation = "delete_order"
	ctx, span := uc.tracer.Start(ctx, "DeleteOrder", trace.WithAttributes(
		attribute.String("order_id", orderID),
	))
	defer span.End()
	started := time.Now()

	var order *Order
	released := 0
	err := uc.withinTx(ctx, "deleting the order", func(tx Tx) error {
		var err error
		order, err = uc.store.Orders().GetForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}

		for _, r := range releasePlan(order.Lines) {
			if err := uc.store.Inventory().Release(ctx, tx, r.ProductID, r.Quantity); err != nil {
				return err
			}
			released += r.Quantity
		}

		return uc.store.Orders().Delete(ctx, tx, orderID)
	})
	uc.finish(ctx, span, operation, started, err)
	if err != nil {
		return failed(err)
	}

	uc.metrics.stockMoved(ctx, 0, released)
	uc.publish(ctx, EventOrderDeleted, order)
	uc.logger.Info("✅ Order deleted",
		zap.String("order_id", orderID),
		zap.Int("released", released),
	)
	return succeeded("Order deleted and stock restored.", nil)
}

// UpdateStatus move o pedido pela máquina de estados, sem efeito no estoque
func (uc *OrderUseCase) UpdateStatus(ctx context.Context, orderID, status string) Result {
	const operation = "update_status"
	ctx, span := uc.tracer.Start(ctx, "UpdateStatus", trace.WithAttributes(
		attribute.String("order_id", orderID),
		attribute.String("status", status),
	))
	defer span.End()
	started := time.Now()

	var order *Order
	changed := false
	var err error
	if !IsValidStatus(status) {
		err = ErrInvalidStatus
	} else {
		err = uc.withinTx(ctx, "updating the order status", func(tx Tx) error {
			var err error
			order, err = uc.store.Orders().GetForUpdate(ctx, tx, orderID)
			if err != nil {
				return err
			}
			if err := order.CanTransitionTo(status); err != nil {
				return err
			}
			if order.Status == status {
				return nil
			}

			if err := uc.store.Orders().UpdateStatus(ctx, tx, orderID, status); err != nil {
				return err
			}
			changed = true
			order, err = uc.store.Orders().GetByID(ctx, tx, orderID)
			return err
		})
	}
	uc.finish(ctx, span, operation, started, err)
	if err != nil {
		return failed(err)
	}

	if changed {
		uc.publish(ctx, EventOrderStatusChanged, order)
		uc.logger.Info("✅ Order status updated",
			zap.String("order_id", orderID),
			zap.String("status", status),
		)
	}
	return succeeded(fmt.Sprintf("Order status updated to '%s'.", status), order)
}

// GetByID carrega o pedido com as linhas
func (uc *OrderUseCase) GetByID(ctx context.Context, orderID string) Result {
	const operation = "get_order"
	ctx, span := uc.tracer.Start(ctx, "GetByID", trace.WithAttributes(
		attribute.String("order_id", orderID),
	))
	defer span.End()
	started := time.Now()

	order, err := uc.store.Orders().GetByID(ctx, nil, orderID)
	if err != nil && !isBusinessError(err) {
		uc.logger.Error("❌ Failed to load order", zap.String("order_id", orderID), zap.Error(err))
		err = storageFailure("loading the order")
	}
	uc.finish(ctx, span, operation, started, err)
	if err != nil {
		return failed(err)
	}
	return succeeded("Order found.", order)
}

// GetStatistics retorna total de pedidos, receita total e pedidos pendentes
func (uc *OrderUseCase) GetStatistics(ctx context.Context) StatisticsResult {
	const operation = "get_statistics"
	ctx, span := uc.tracer.Start(ctx, "GetStatistics")
	defer span.End()
	started := time.Now()

	stats, err := uc.store.Orders().Statistics(ctx)
	if err != nil {
		uc.logger.Error("❌ Failed to load statistics", zap.Error(err))
		err = storageFailure("loading order statistics")
	}
	uc.finish(ctx, span, operation, started, err)
	if err != nil {
		return StatisticsResult{Success: false, Message: err.Error(), Err: err}
	}
	return StatisticsResult{Success: true, Message: "Statistics loaded.", Statistics: &stats}
}

// ListCustomerOrders lista os pedidos do cliente, mais novos primeiro
func (uc *OrderUseCase) ListCustomerOrders(ctx context.Context, customerID string) ([]Order, error) {
	const operation = "list_customer_orders"
	ctx, span := uc.tracer.Start(ctx, "ListCustomerOrders", trace.WithAttributes(
		attribute.String("customer_id", customerID),
	))
	defer span.End()
	started := time.Now()

	orders, err := uc.listCustomerOrders(ctx, customerID)
	uc.finish(ctx, span, operation, started, err)
	return orders, err
}

func (uc *OrderUseCase) listCustomerOrders(ctx context.Context, customerID string) ([]Order, error) {
	exists, err := uc.store.Catalog().CustomerExists(ctx, nil, customerID)
	if err != nil {
		uc.logger.Error("❌ Failed to check customer", zap.String("customer_id", customerID), zap.Error(err))
		return nil, storageFailure("listing customer orders")
	}
	if !exists {
		return nil, ErrCustomerNotFound
	}

	orders, err := uc.store.Orders().ListByCustomer(ctx, nil, customerID)
	if err != nil {
		uc.logger.Error("❌ Failed to list orders", zap.String("customer_id", customerID), zap.Error(err))
		return nil, storageFailure("listing customer orders")
	}
	return orders, nil
}

// DeleteCustomer devolve o estoque de todos os pedidos do cliente e o remove;
// pedidos e linhas caem junto, na mesma transação.
func (uc *OrderUseCase) DeleteCustomer(ctx context.Context, customerID string) Result {
	const operation = "delete_customer"
	ctx, span := uc.tracer.Start(ctx, "DeleteCustomer", trace.WithAttributes(
		attribute.String("customer_id", customerID),
	))
	defer span.End()
	started := time.Now()

	var orders []Order
	released := 0
	err := uc.withinTx(ctx, "deleting the customer", func(tx Tx) error {
		if err := uc.store.Catalog().LockCustomer(ctx, tx, customerID); err != nil {
			return err
		}

		var err error
		orders, err = uc.store.Orders().ListByCustomer(ctx, tx, customerID)
		if err != nil {
			return err
		}

		var lines []OrderLine
		for _, o := range orders {
			lines = append(lines, o.Lines...)
		}
		for _, r := range releasePlan(lines) {
			if err := uc.store.Inventory().Release(ctx, tx, r.ProductID, r.Quantity); err != nil {
				return err
			}
			released += r.Quantity
		}

		return uc.store.Catalog().DeleteCustomer(ctx, tx, customerID)
	})
	uc.finish(ctx, span, operation, started, err)
	if err != nil {
		return failed(err)
	}

	uc.metrics.stockMoved(ctx, 0, released)
	for i := range orders {
		uc.publish(ctx, EventOrderDeleted, &orders[i])
	}
	uc.logger.Info("✅ Customer deleted",
		zap.String("customer_id", customerID),
		zap.Int("orders", len(orders)),
		zap.Int("released", released),
	)
	return succeeded("Customer and associated orders deleted.", nil)
}
