package main

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

// newPostgresUseCase roda contra o banco de ORDERS_TEST_DATABASE_URL; sem ele o teste é pulado
func newPostgresUseCase(t *testing.T) (*OrderUseCase, *pgxpool.Pool) {
	t.Helper()
	dsn := os.Getenv("ORDERS_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("ORDERS_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	db, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	require.NoError(t, migrate(ctx, db))
	_, err = db.Exec(ctx, `TRUNCATE order_lines, orders, products, customers, categories`)
	require.NoError(t, err)

	_, err = db.Exec(ctx, `INSERT INTO categories (id, name) VALUES ($1, 'Elektronik')`, testCategoryID)
	require.NoError(t, err)
	_, err = db.Exec(ctx, `INSERT INTO customers (id, name) VALUES ($1, 'Anna Andersson')`, testCustomerID)
	require.NoError(t, err)

	uc := NewOrderUseCase(NewPostgresStore(db), &recordingPublisher{}, zap.NewNop(), tracenoop.NewTracerProvider().Tracer("test"), newTestMetrics(t))
	return uc, db
}

func insertProduct(t *testing.T, db *pgxpool.Pool, id, name, price string, stock int) {
	t.Helper()
	_, err := db.Exec(context.Background(),
		`INSERT INTO products (id, category_id, name, price, stock_quantity) VALUES ($1, $2, $3, $4, $5)`,
		id, testCategoryID, name, dec(price), stock)
	require.NoError(t, err)
}

func productStock(t *testing.T, db *pgxpool.Pool, id string) int {
	t.Helper()
	var stock int
	require.NoError(t, db.QueryRow(context.Background(), `SELECT stock_quantity FROM products WHERE id = $1`, id).Scan(&stock))
	return stock
}

func TestPostgres_LineScenario(t *testing.T) {
	uc, db := newPostgresUseCase(t)
	insertProduct(t, db, "p-1", "Widget", "12.50", 10)
	ctx := context.Background()

	created := uc.CreateOrder(ctx, testCustomerID, []OrderItem{item("p-1", 4)})
	require.True(t, created.Success, created.Message)
	assert.Equal(t, "50.00", created.Order.TotalAmount.StringFixed(2))
	assert.Equal(t, 6, productStock(t, db, "p-1"))
	lineID := created.Order.Lines[0].ID

	updated := uc.UpdateOrderRowQuantity(ctx, lineID, 7)
	require.True(t, updated.Success, updated.Message)
	assert.Equal(t, "87.50", updated.Order.TotalAmount.StringFixed(2))
	assert.Equal(t, 3, productStock(t, db, "p-1"))

	deleted := uc.DeleteOrderRow(ctx, lineID)
	require.True(t, deleted.Success, deleted.Message)
	assert.True(t, deleted.Order.TotalAmount.IsZero())
	assert.Equal(t, 10, productStock(t, db, "p-1"))
}

func TestPostgres_AllOrNothing(t *testing.T) {
	uc, db := newPostgresUseCase(t)
	insertProduct(t, db, "p-1", "Widget", "1.00", 10)
	insertProduct(t, db, "p-2", "Gadget", "1.00", 1)

	result := uc.CreateOrder(context.Background(), testCustomerID, []OrderItem{item("p-1", 2), item("p-2", 2)})

	assert.False(t, result.Success)
	assert.Equal(t, "Insufficient stock for 'Gadget'. Available: 1", result.Message)
	assert.Equal(t, 10, productStock(t, db, "p-1"))
	var orders int
	require.NoError(t, db.QueryRow(context.Background(), `SELECT COUNT(*) FROM orders`).Scan(&orders))
	assert.Zero(t, orders)
}

func TestPostgres_ConcurrentLastUnit(t *testing.T) {
	uc, db := newPostgresUseCase(t)
	insertProduct(t, db, "p-1", "Widget", "1.00", 1)

	var wg sync.WaitGroup
	results := make([]Result, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = uc.CreateOrder(context.Background(), testCustomerID, []OrderItem{item("p-1", 1)})
		}(i)
	}
	wg.Wait()

	assert.NotEqual(t, results[0].Success, results[1].Success)
	for _, r := range results {
		if !r.Success {
			assert.Equal(t, KindInsufficientStock, ErrorKindOf(r.Err))
		}
	}
	assert.Equal(t, 0, productStock(t, db, "p-1"))
}

func TestPostgres_DeleteCustomerRestoresStock(t *testing.T) {
	uc, db := newPostgresUseCase(t)
	insertProduct(t, db, "p-1", "Widget", "1.00", 5)
	ctx := context.Background()
	require.True(t, uc.CreateOrder(ctx, testCustomerID, []OrderItem{item("p-1", 3)}).Success)

	result := uc.DeleteCustomer(ctx, testCustomerID)

	require.True(t, result.Success, result.Message)
	assert.Equal(t, 5, productStock(t, db, "p-1"))
	stats := uc.GetStatistics(ctx)
	require.True(t, stats.Success, stats.Message)
	assert.Zero(t, stats.Statistics.TotalOrders)
}

func TestPostgres_CreateOrderRacingDeleteCustomer(t *testing.T) {
	uc, db := newPostgresUseCase(t)
	insertProduct(t, db, "p-1", "Widget", "1.00", 100)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		customerID := fmt.Sprintf("cust-race-%d", i)
		_, err := db.Exec(ctx, `INSERT INTO customers (id, name) VALUES ($1, $1)`, customerID)
		require.NoError(t, err)

		var wg sync.WaitGroup
		var created, deleted Result
		wg.Add(2)
		go func() {
			defer wg.Done()
			created = uc.CreateOrder(ctx, customerID, []OrderItem{item("p-1", 3)})
		}()
		go func() {
			defer wg.Done()
			deleted = uc.DeleteCustomer(ctx, customerID)
		}()
		wg.Wait()

		// sem deadlock: nenhum dos dois termina em StorageFailure
		require.True(t, deleted.Success, deleted.Message)
		if !created.Success {
			assert.ErrorIs(t, created.Err, ErrCustomerNotFound)
		}
	}

	assert.Equal(t, 100, productStock(t, db, "p-1"))
	var orders int
	require.NoError(t, db.QueryRow(ctx, `SELECT COUNT(*) FROM orders`).Scan(&orders))
	assert.Zero(t, orders)
}

func TestSeedPostgres_IsRepeatable(t *testing.T) {
	_, db := newPostgresUseCase(t)
	ctx := context.Background()
	_, err := db.Exec(ctx, `TRUNCATE order_lines, orders, products, customers, categories`)
	require.NoError(t, err)

	require.NoError(t, seedPostgres(ctx, db))
	require.NoError(t, seedPostgres(ctx, db))

	var products int
	require.NoError(t, db.QueryRow(ctx, `SELECT COUNT(*) FROM products`).Scan(&products))
	assert.Equal(t, len(newDemoCatalog().products), products)
}
