package main

import (
	"context"
)

// Tx é uma unidade de trabalho atômica.
// Commit e Rollback não recebem contexto: uma vez aceita, a unidade termina ou é desfeita por completo.
type Tx interface {
	Commit() error
	Rollback() error
}

// Store abre unidades de trabalho e expõe os repositórios que participam delas
type Store interface {
	BeginTx(ctx context.Context) (Tx, error)
	Inventory() InventoryRepository
	Orders() OrderRepository
	Catalog() CatalogRepository
}

// InventoryRepository guarda o estoque por produto
type InventoryRepository interface {
	// GetProductForUpdate obtém o produto com lock pessimista
	GetProductForUpdate(ctx context.Context, tx Tx, productID string) (*Product, error)

	// LockProducts trava os produtos em ordem de id; ids inexistentes ficam fora do mapa
	LockProducts(ctx context.Context, tx Tx, productIDs []string) (map[string]*Product, error)

	// Reserve decrementa o estoque e retorna a quantidade anterior.
	// Falha com *InsufficientStockError se quantity excede o estoque.
	Reserve(ctx context.Context, tx Tx, productID string, quantity int) (int, error)

	// Release devolve quantity ao estoque
	Release(ctx context.Context, tx Tx, productID string, quantity int) error
}

// OrderRepository persiste pedidos e linhas como uma unidade de consistência.
// Toda mutação de linha recalcula o total do pedido na mesma transação; não existe
// método para gravar o total diretamente.
type OrderRepository interface {
	Create(ctx context.Context, tx Tx, order *Order, lines []OrderLine) error

	// GetByID carrega o pedido com as linhas; tx pode ser nil para leitura fora de transação
	GetByID(ctx context.Context, tx Tx, orderID string) (*Order, error)
	GetForUpdate(ctx context.Context, tx Tx, orderID string) (*Order, error)
	GetLineForUpdate(ctx context.Context, tx Tx, lineID string) (*OrderLine, error)

	AddLine(ctx context.Context, tx Tx, line OrderLine) error
	UpdateLineQuantity(ctx context.Context, tx Tx, lineID string, quantity int) error
	RemoveLine(ctx context.Context, tx Tx, lineID string) error

	UpdateStatus(ctx context.Context, tx Tx, orderID string, status string) error
	Delete(ctx context.Context, tx Tx, orderID string) error

	// ListByCustomer carrega os pedidos do cliente, mais novos primeiro; com tx os pedidos ficam travados
	ListByCustomer(ctx context.Context, tx Tx, customerID string) ([]Order, error)
	Statistics(ctx context.Context) (OrderStatistics, error)
}

// CatalogRepository dá acesso de leitura a produtos e clientes.
// DeleteCustomer é a única escrita: remove o cliente e, em cascata, seus pedidos e linhas.
type CatalogRepository interface {
	GetProduct(ctx context.Context, tx Tx, productID string) (*Product, error)
	CustomerExists(ctx context.Context, tx Tx, customerID string) (bool, error)
	// ShareCustomer segura o cliente para um novo pedido: impede a remoção, não outros pedidos
	ShareCustomer(ctx context.Context, tx Tx, customerID string) error
	LockCustomer(ctx context.Context, tx Tx, customerID string) error
	DeleteCustomer(ctx context.Context, tx Tx, customerID string) error
}
