package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// demoID gera ids estáveis para o catálogo de demonstração
func demoID(kind string, n int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("order-fulfillment/%s/%d", kind, n))).String()
}

type demoCatalog struct {
	categories []Category
	customers  []Customer
	products   []Product
}

func newDemoCatalog() demoCatalog {
	category := func(n int, name string) Category {
		return Category{ID: demoID("category", n), Name: name}
	}
	customer := func(n int, name, city string) Customer {
		return Customer{ID: demoID("customer", n), Name: name, City: city}
	}
	product := func(n, categoryN int, name, price string, stock int) Product {
		return Product{
			ID:            demoID("product", n),
			CategoryID:    demoID("category", categoryN),
			Name:          name,
			Price:         decimal.RequireFromString(price),
			StockQuantity: stock,
		}
	}

	return demoCatalog{
		categories: []Category{
			category(1, "Elektronik"),
			category(2, "Kläder"),
			category(3, "Hem & Trädgård"),
			category(4, "Sport & Fritid"),
			category(5, "Böcker"),
		},
		customers: []Customer{
			customer(1, "Anna Andersson", "Stockholm"),
			customer(2, "Erik Eriksson", "Göteborg"),
			customer(3, "Maria Svensson", "Malmö"),
		},
		products: []Product{
			product(1, 1, "Laptop", "12999.00", 25),
			product(2, 1, "Smartphone", "8999.00", 50),
			product(3, 1, "Hörlurar", "2499.00", 100),
			product(4, 2, "T-shirt", "299.00", 200),
			product(5, 2, "Jeans", "699.00", 150),
			product(6, 3, "Trädgårdsstol", "499.00", 75),
			product(7, 3, "Lampa", "399.00", 60),
			product(8, 4, "Fotboll", "349.00", 80),
			product(9, 4, "Yogamatta", "299.00", 120),
			product(10, 5, "Roman", "199.00", 300),
		},
	}
}

// seedMemoryStore carrega o catálogo de demonstração no MemoryStore
func seedMemoryStore(store *MemoryStore) error {
	catalog := newDemoCatalog()
	for _, c := range catalog.categories {
		if err := store.AddCategory(c); err != nil {
			return err
		}
	}
	for _, c := range catalog.customers {
		if err := store.AddCustomer(c); err != nil {
			return err
		}
	}
	for _, p := range catalog.products {
		if err := store.AddProduct(p); err != nil {
			return err
		}
	}
	return nil
}

// seedPostgres insere o catálogo de demonstração; linhas existentes são mantidas
func seedPostgres(ctx context.Context, db *pgxpool.Pool) error {
	catalog := newDemoCatalog()
	batch := &pgx.Batch{}
	for _, c := range catalog.categories {
		batch.Queue(`INSERT INTO categories (id, name) VALUES ($1, $2) ON CONFLICT DO NOTHING`, c.ID, c.Name)
	}
	for _, c := range catalog.customers {
		batch.Queue(`INSERT INTO customers (id, name, city) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`, c.ID, c.Name, c.City)
	}
	for _, p := range catalog.products {
		batch.Queue(`
			INSERT INTO products (id, category_id, name, price, stock_quantity)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT DO NOTHING
		`, p.ID, p.CategoryID, p.Name, p.Price, p.StockQuantity)
	}

	if err := db.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to seed demo catalog: %w", err)
	}
	return nil
}
