package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier é o subconjunto comum a *pgxpool.Pool e pgx.Tx
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// isConstraintViolation detecta violação de chave estrangeira ou unicidade
func isConstraintViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23503" || pgErr.Code == "23505"
}

// PostgresTx implementa a interface Tx
type PostgresTx struct {
	tx pgx.Tx
}

func (t *PostgresTx) Commit() error {
	return t.tx.Commit(context.Background())
}

func (t *PostgresTx) Rollback() error {
	return t.tx.Rollback(context.Background())
}

func pgTx(tx Tx) pgx.Tx {
	return tx.(*PostgresTx).tx
}

// conn usa a transação quando existe, senão o pool
func conn(db *pgxpool.Pool, tx Tx) querier {
	if tx == nil {
		return db
	}
	return pgTx(tx)
}

// PostgresStore implementa Store usando PostgreSQL
type PostgresStore struct {
	db        *pgxpool.Pool
	inventory *PostgresInventoryRepository
	orders    *PostgresOrderRepository
	catalog   *PostgresCatalogRepository
}

// NewPostgresStore cria uma nova instância de PostgresStore
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{
		db:        db,
		inventory: &PostgresInventoryRepository{db: db},
		orders:    &PostgresOrderRepository{db: db},
		catalog:   &PostgresCatalogRepository{db: db},
	}
}

// BeginTx inicia uma nova transação READ COMMITTED; os locks de linha fazem o resto
func (s *PostgresStore) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &PostgresTx{tx: tx}, nil
}

func (s *PostgresStore) Inventory() InventoryRepository { return s.inventory }
func (s *PostgresStore) Orders() OrderRepository       { return s.orders }
func (s *PostgresStore) Catalog() CatalogRepository    { return s.catalog }

// PostgresInventoryRepository implementa InventoryRepository usando PostgreSQL
type PostgresInventoryRepository struct {
	db *pgxpool.Pool
}

const selectProductColumns = `SELECT id, category_id, name, price, stock_quantity FROM products`

// GetProductForUpdate obtém o produto com lock pessimista (FOR UPDATE)
func (r *PostgresInventoryRepository) GetProductForUpdate(ctx context.Context, tx Tx, productID string) (*Product, error) {
	rows, err := pgTx(tx).Query(ctx, selectProductColumns+` WHERE id = $1 FOR UPDATE`, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to get product with lock: %w", err)
	}

	product, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[Product])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to get product with lock: %w", err)
	}
	return product, nil
}

// LockProducts trava todos os produtos pedidos de uma vez, em ordem de id
func (r *PostgresInventoryRepository) LockProducts(ctx context.Context, tx Tx, productIDs []string) (map[string]*Product, error) {
	rows, err := pgTx(tx).Query(ctx, selectProductColumns+` WHERE id = ANY($1) ORDER BY id FOR UPDATE`, productIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to lock products: %w", err)
	}

	products, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[Product])
	if err != nil {
		return nil, fmt.Errorf("failed to lock products: %w", err)
	}

	byID := make(map[string]*Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	return byID, nil
}

// Reserve decrementa o estoque numa única instrução condicional
func (r *PostgresInventoryRepository) Reserve(ctx context.Context, tx Tx, productID string, quantity int) (int, error) {
	if quantity <= 0 {
		return 0, ErrInvalidQuantity
	}
	q := pgTx(tx)

	var previous int
	err := q.QueryRow(ctx, `
		UPDATE products
		SET stock_quantity = stock_quantity - $2,
		    updated_at = NOW()
		WHERE id = $1
		  AND stock_quantity >= $2
		RETURNING stock_quantity + $2
	`, productID, quantity).Scan(&previous)
	if err == nil {
		return previous, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("failed to reserve stock: %w", err)
	}

	// Nenhuma linha atualizada: produto inexistente ou estoque insuficiente
	var name string
	var available int
	err = q.QueryRow(ctx, `SELECT name, stock_quantity FROM products WHERE id = $1`, productID).Scan(&name, &available)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrProductNotFound
		}
		return 0, fmt.Errorf("failed to read stock: %w", err)
	}
	return 0, &InsufficientStockError{ProductID: productID, ProductName: name, Available: available, Requested: quantity}
}

// Release devolve unidades ao estoque
func (r *PostgresInventoryRepository) Release(ctx context.Context, tx Tx, productID string, quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}

	tag, err := pgTx(tx).Exec(ctx, `
		UPDATE products
		SET stock_quantity = stock_quantity + $2,
		    updated_at = NOW()
		WHERE id = $1
	`, productID, quantity)
	if err != nil {
		return fmt.Errorf("failed to release stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

// PostgresOrderRepository implementa OrderRepository usando PostgreSQL
type PostgresOrderRepository struct {
	db *pgxpool.Pool
}

const (
	selectOrderColumns = `SELECT id, customer_id, status, total_amount, created_at, updated_at FROM orders`
	selectLineColumns  = `
		SELECT l.id, l.order_id, l.product_id, p.name AS product_name, l.quantity, l.unit_price
		FROM order_lines l
		JOIN products p ON p.id = l.product_id`
)

// recomputeTotal aplica a regra do total derivado para o pedido
func (r *PostgresOrderRepository) recomputeTotal(ctx context.Context, q querier, order *Order) error {
	if err := q.QueryRow(ctx, recomputeOrderTotalSQL, order.ID).Scan(&order.TotalAmount); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrOrderNotFound
		}
		return fmt.Errorf("failed to recompute order total: %w", err)
	}
	return nil
}

func (r *PostgresOrderRepository) insertLine(ctx context.Context, q querier, line OrderLine) error {
	_, err := q.Exec(ctx, `
		INSERT INTO order_lines (id, order_id, product_id, quantity, unit_price)
		VALUES ($1, $2, $3, $4, $5)
	`, line.ID, line.OrderID, line.ProductID, line.Quantity, line.UnitPrice)
	if err != nil {
		return fmt.Errorf("failed to insert order line: %w", err)
	}
	return nil
}

// Create grava o pedido, as linhas e o total numa única transação
func (r *PostgresOrderRepository) Create(ctx context.Context, tx Tx, order *Order, lines []OrderLine) error {
	if len(lines) == 0 {
		return ErrEmptyOrder
	}
	q := pgTx(tx)

	_, err := q.Exec(ctx, `
		INSERT INTO orders (id, customer_id, status, total_amount, created_at, updated_at)
		VALUES ($1, $2, $3, 0, $4, $5)
	`, order.ID, order.CustomerID, order.Status, order.CreatedAt, order.UpdatedAt)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrConflict.withMessage("Customer %s changed while the order was being created.", order.CustomerID)
		}
		return fmt.Errorf("failed to insert order: %w", err)
	}

	for _, line := range lines {
		if err := r.insertLine(ctx, q, line); err != nil {
			return err
		}
	}

	if err := r.recomputeTotal(ctx, q, order); err != nil {
		return err
	}
	order.Lines = lines
	return nil
}

func (r *PostgresOrderRepository) getOrder(ctx context.Context, q querier, orderID string, lock bool) (*Order, error) {
	query := selectOrderColumns + ` WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}

	rows, err := q.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	order, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[Order])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	lines, err := r.linesOf(ctx, q, []string{order.ID})
	if err != nil {
		return nil, err
	}
	order.Lines = lines[order.ID]
	if order.Lines == nil {
		order.Lines = []OrderLine{}
	}
	return order, nil
}

// linesOf carrega as linhas de vários pedidos numa consulta, agrupadas por pedido
func (r *PostgresOrderRepository) linesOf(ctx context.Context, q querier, orderIDs []string) (map[string][]OrderLine, error) {
	rows, err := q.Query(ctx, selectLineColumns+` WHERE l.order_id = ANY($1) ORDER BY l.seq`, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to get order lines: %w", err)
	}
	lines, err := pgx.CollectRows(rows, pgx.RowToStructByName[OrderLine])
	if err != nil {
		return nil, fmt.Errorf("failed to get order lines: %w", err)
	}

	byOrder := make(map[string][]OrderLine, len(orderIDs))
	for _, line := range lines {
		byOrder[line.OrderID] = append(byOrder[line.OrderID], line)
	}
	return byOrder, nil
}

// GetByID busca um pedido pelo ID
func (r *PostgresOrderRepository) GetByID(ctx context.Context, tx Tx, orderID string) (*Order, error) {
	return r.getOrder(ctx, conn(r.db, tx), orderID, false)
}

// GetForUpdate busca o pedido com lock pessimista; é o primeiro lock de toda mutação de linha
func (r *PostgresOrderRepository) GetForUpdate(ctx context.Context, tx Tx, orderID string) (*Order, error) {
	return r.getOrder(ctx, pgTx(tx), orderID, true)
}

// GetLineForUpdate trava o pedido dono da linha e depois a linha.
// A ordem pedido → linha → produto é a mesma em todas as operações.
func (r *PostgresOrderRepository) GetLineForUpdate(ctx context.Context, tx Tx, lineID string) (*OrderLine, error) {
	q := pgTx(tx)

	var orderID string
	err := q.QueryRow(ctx, `SELECT order_id FROM order_lines WHERE id = $1`, lineID).Scan(&orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderLineNotFound
		}
		return nil, fmt.Errorf("failed to get order line: %w", err)
	}

	if _, err := q.Exec(ctx, `SELECT 1 FROM orders WHERE id = $1 FOR UPDATE`, orderID); err != nil {
		return nil, fmt.Errorf("failed to lock order: %w", err)
	}

	rows, err := q.Query(ctx, selectLineColumns+` WHERE l.id = $1 FOR UPDATE OF l`, lineID)
	if err != nil {
		return nil, fmt.Errorf("failed to get order line with lock: %w", err)
	}
	line, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[OrderLine])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderLineNotFound
		}
		return nil, fmt.Errorf("failed to get order line with lock: %w", err)
	}
	return line, nil
}

// AddLine insere a linha e recalcula o total
func (r *PostgresOrderRepository) AddLine(ctx context.Context, tx Tx, line OrderLine) error {
	q := pgTx(tx)
	if err := r.insertLine(ctx, q, line); err != nil {
		return err
	}
	return r.recomputeTotal(ctx, q, &Order{ID: line.OrderID})
}

// UpdateLineQuantity altera a quantidade da linha e recalcula o total
func (r *PostgresOrderRepository) UpdateLineQuantity(ctx context.Context, tx Tx, lineID string, quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	q := pgTx(tx)

	var orderID string
	err := q.QueryRow(ctx, `UPDATE order_lines SET quantity = $2 WHERE id = $1 RETURNING order_id`, lineID, quantity).Scan(&orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrOrderLineNotFound
		}
		return fmt.Errorf("failed to update order line: %w", err)
	}
	return r.recomputeTotal(ctx, q, &Order{ID: orderID})
}

// RemoveLine remove a linha e recalcula o total, que pode voltar a zero
func (r *PostgresOrderRepository) RemoveLine(ctx context.Context, tx Tx, lineID string) error {
	q := pgTx(tx)

	var orderID string
	err := q.QueryRow(ctx, `DELETE FROM order_lines WHERE id = $1 RETURNING order_id`, lineID).Scan(&orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrOrderLineNotFound
		}
		return fmt.Errorf("failed to delete order line: %w", err)
	}
	return r.recomputeTotal(ctx, q, &Order{ID: orderID})
}

// UpdateStatus atualiza o status de um pedido
func (r *PostgresOrderRepository) UpdateStatus(ctx context.Context, tx Tx, orderID string, status string) error {
	tag, err := pgTx(tx).Exec(ctx, `
		UPDATE orders
		SET status = $2, updated_at = NOW()
		WHERE id = $1
	`, orderID, status)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// Delete remove o pedido; as linhas caem junto por ON DELETE CASCADE
func (r *PostgresOrderRepository) Delete(ctx context.Context, tx Tx, orderID string) error {
	tag, err := pgTx(tx).Exec(ctx, `DELETE FROM orders WHERE id = $1`, orderID)
	if err != nil {
		return fmt.Errorf("failed to delete order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// ListByCustomer busca os pedidos de um cliente com suas linhas
func (r *PostgresOrderRepository) ListByCustomer(ctx context.Context, tx Tx, customerID string) ([]Order, error) {
	q := conn(r.db, tx)
	query := selectOrderColumns + ` WHERE customer_id = $1 ORDER BY created_at DESC, id`
	if tx != nil {
		query += ` FOR UPDATE`
	}

	rows, err := q.Query(ctx, query, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list customer orders: %w", err)
	}
	orders, err := pgx.CollectRows(rows, pgx.RowToStructByName[Order])
	if err != nil {
		return nil, fmt.Errorf("failed to list customer orders: %w", err)
	}
	if len(orders) == 0 {
		return orders, nil
	}

	ids := make([]string, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}
	lines, err := r.linesOf(ctx, q, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Lines = lines[orders[i].ID]
		if orders[i].Lines == nil {
			orders[i].Lines = []OrderLine{}
		}
	}
	return orders, nil
}

// Statistics conta pedidos, soma a receita e conta pedidos pendentes
func (r *PostgresOrderRepository) Statistics(ctx context.Context) (OrderStatistics, error) {
	var stats OrderStatistics
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(total_amount), 0),
		       COUNT(*) FILTER (WHERE status = ANY($1))
		FROM orders
	`, []string{OrderStatusReceived, OrderStatusProcessing}).Scan(&stats.TotalOrders, &stats.TotalRevenue, &stats.PendingOrders)
	if err != nil {
		return OrderStatistics{}, fmt.Errorf("failed to get order statistics: %w", err)
	}
	return stats, nil
}

// PostgresCatalogRepository implementa CatalogRepository usando PostgreSQL
type PostgresCatalogRepository struct {
	db *pgxpool.Pool
}

// GetProduct busca um produto sem lock
func (r *PostgresCatalogRepository) GetProduct(ctx context.Context, tx Tx, productID string) (*Product, error) {
	rows, err := conn(r.db, tx).Query(ctx, selectProductColumns+` WHERE id = $1`, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	product, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[Product])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return product, nil
}

// CustomerExists verifica se o cliente existe
func (r *PostgresCatalogRepository) CustomerExists(ctx context.Context, tx Tx, customerID string) (bool, error) {
	var exists bool
	err := conn(r.db, tx).QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM customers WHERE id = $1)", customerID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check customer: %w", err)
	}
	return exists, nil
}

// ShareCustomer trava o cliente em FOR KEY SHARE antes dos produtos, na mesma ordem
// que DeleteCustomer usa (cliente, depois produtos)
func (r *PostgresCatalogRepository) ShareCustomer(ctx context.Context, tx Tx, customerID string) error {
	var id string
	err := pgTx(tx).QueryRow(ctx, `SELECT id FROM customers WHERE id = $1 FOR KEY SHARE`, customerID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrCustomerNotFound
		}
		return fmt.Errorf("failed to share-lock customer: %w", err)
	}
	return nil
}

// LockCustomer trava o cliente; inserções de pedidos para ele esperam o fim da transação
func (r *PostgresCatalogRepository) LockCustomer(ctx context.Context, tx Tx, customerID string) error {
	var id string
	err := pgTx(tx).QueryRow(ctx, `SELECT id FROM customers WHERE id = $1 FOR UPDATE`, customerID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrCustomerNotFound
		}
		return fmt.Errorf("failed to lock customer: %w", err)
	}
	return nil
}

// DeleteCustomer remove o cliente; pedidos e linhas caem em cascata
func (r *PostgresCatalogRepository) DeleteCustomer(ctx context.Context, tx Tx, customerID string) error {
	tag, err := pgTx(tx).Exec(ctx, `DELETE FROM customers WHERE id = $1`, customerID)
	if err != nil {
		return fmt.Errorf("failed to delete customer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCustomerNotFound
	}
	return nil
}
