package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

var errTxClosed = errors.New("memory store: transaction already closed")

type memoryLine struct {
	OrderLine
	seq int64
}

// memoryState é uma fotografia completa do armazenamento
type memoryState struct {
	categories map[string]Category
	customers  map[string]Customer
	products   map[string]Product
	orders     map[string]Order
	lines      map[string]memoryLine
	nextSeq    int64
}

func newMemoryState() *memoryState {
	return &memoryState{
		categories: make(map[string]Category),
		customers:  make(map[string]Customer),
		products:   make(map[string]Product),
		orders:     make(map[string]Order),
		lines:      make(map[string]memoryLine),
	}
}

func (s *memoryState) clone() *memoryState {
	c := &memoryState{
		categories: make(map[string]Category, len(s.categories)),
		customers:  make(map[string]Customer, len(s.customers)),
		products:   make(map[string]Product, len(s.products)),
		orders:     make(map[string]Order, len(s.orders)),
		lines:      make(map[string]memoryLine, len(s.lines)),
		nextSeq:    s.nextSeq,
	}
	for k, v := range s.categories {
		c.categories[k] = v
	}
	for k, v := range s.customers {
		c.customers[k] = v
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.lines {
		c.lines[k] = v
	}
	return c
}

// linesOf retorna as linhas do pedido na ordem de inserção, com o nome do produto
func (s *memoryState) linesOf(orderID string) []OrderLine {
	matched := make([]memoryLine, 0)
	for _, l := range s.lines {
		if l.OrderID == orderID {
			matched = append(matched, l)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].seq < matched[j].seq })

	lines := make([]OrderLine, len(matched))
	for i, l := range matched {
		lines[i] = l.OrderLine
		lines[i].ProductName = s.products[l.ProductID].Name
	}
	return lines
}

func (s *memoryState) order(orderID string) (*Order, error) {
	o, ok := s.orders[orderID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	o.Lines = s.linesOf(orderID)
	return &o, nil
}

func (s *memoryState) insertLine(line OrderLine) error {
	if _, ok := s.orders[line.OrderID]; !ok {
		return ErrOrderNotFound
	}
	if _, ok := s.products[line.ProductID]; !ok {
		return fmt.Errorf("memory store: order line references unknown product %s", line.ProductID)
	}
	s.nextSeq++
	line.ProductName = ""
	s.lines[line.ID] = memoryLine{OrderLine: line, seq: s.nextSeq}
	return nil
}

// recomputeTotal é a regra do total derivado aplicada à fotografia da transação
func (s *memoryState) recomputeTotal(orderID string) (*Order, error) {
	o, ok := s.orders[orderID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	o.TotalAmount = sumLines(s.linesOf(orderID))
	o.UpdatedAt = time.Now()
	s.orders[orderID] = o
	return &o, nil
}

func (s *memoryState) deleteOrder(orderID string) {
	for id, l := range s.lines {
		if l.OrderID == orderID {
			delete(s.lines, id)
		}
	}
	delete(s.orders, orderID)
}

// MemoryStore implementa Store em memória com um único escritor por vez.
// Cada transação trabalha numa cópia; Commit publica a cópia e Rollback a descarta,
// então leitores nunca veem uma escrita parcial.
type MemoryStore struct {
	writer chan struct{}

	mu    sync.RWMutex
	state *memoryState

	faultMu sync.Mutex
	faults  map[string]*injectedFault
}

type injectedFault struct {
	skip int
	err  error
}

// NewMemoryStore cria uma nova instância de MemoryStore vazia
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		writer: make(chan struct{}, 1),
		state:  newMemoryState(),
		faults: make(map[string]*injectedFault),
	}
}

type memoryTx struct {
	store *MemoryStore
	state *memoryState
	done  bool
}

func (t *memoryTx) Commit() error {
	if t.done {
		return errTxClosed
	}
	t.store.mu.Lock()
	t.store.state = t.state
	t.store.mu.Unlock()
	t.done = true
	<-t.store.writer
	return nil
}

func (t *memoryTx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	<-t.store.writer
	return nil
}

// BeginTx espera a vez de escrever ou o cancelamento do contexto
func (s *MemoryStore) BeginTx(ctx context.Context) (Tx, error) {
	select {
	case s.writer <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()
	return &memoryTx{store: s, state: snapshot}, nil
}

func (s *MemoryStore) Inventory() InventoryRepository { return &memoryInventoryRepository{store: s} }
func (s *MemoryStore) Orders() OrderRepository       { return &memoryOrderRepository{store: s} }
func (s *MemoryStore) Catalog() CatalogRepository    { return &memoryCatalogRepository{store: s} }

// InjectFailure faz a próxima chamada da operação falhar com err
func (s *MemoryStore) InjectFailure(operation string, err error) {
	s.InjectFailureAfter(operation, 0, err)
}

// InjectFailureAfter deixa passar skip chamadas da operação e faz a seguinte falhar com err
func (s *MemoryStore) InjectFailureAfter(operation string, skip int, err error) {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	s.faults[operation] = &injectedFault{skip: skip, err: err}
}

func (s *MemoryStore) fault(operation string) error {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	f, ok := s.faults[operation]
	if !ok {
		return nil
	}
	if f.skip > 0 {
		f.skip--
		return nil
	}
	delete(s.faults, operation)
	return f.err
}

// view executa fn na fotografia da transação ou, sem transação, no estado publicado
func (s *MemoryStore) view(tx Tx, fn func(st *memoryState) error) error {
	if tx != nil {
		return fn(s.txState(tx))
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.state)
}

func (s *MemoryStore) txState(tx Tx) *memoryState {
	return tx.(*memoryTx).state
}

// provision altera o estado publicado fora de uma unidade de trabalho do motor
func (s *MemoryStore) provision(fn func(st *memoryState) error) error {
	s.writer <- struct{}{}
	defer func() { <-s.writer }()

	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.state)
}

// AddCategory cadastra uma categoria
func (s *MemoryStore) AddCategory(c Category) error {
	return s.provision(func(st *memoryState) error {
		if _, ok := st.categories[c.ID]; ok {
			return fmt.Errorf("category %s already exists", c.ID)
		}
		st.categories[c.ID] = c
		return nil
	})
}

// AddCustomer cadastra um cliente
func (s *MemoryStore) AddCustomer(c Customer) error {
	return s.provision(func(st *memoryState) error {
		if _, ok := st.customers[c.ID]; ok {
			return fmt.Errorf("customer %s already exists", c.ID)
		}
		if c.CreatedAt.IsZero() {
			c.CreatedAt = time.Now()
		}
		st.customers[c.ID] = c
		return nil
	})
}

// AddProduct cadastra um produto com seu estoque inicial
func (s *MemoryStore) AddProduct(p Product) error {
	return s.provision(func(st *memoryState) error {
		if _, ok := st.products[p.ID]; ok {
			return fmt.Errorf("product %s already exists", p.ID)
		}
		if p.CategoryID != "" {
			if _, ok := st.categories[p.CategoryID]; !ok {
				return fmt.Errorf("category %s not found", p.CategoryID)
			}
		}
		if p.Price.IsNegative() {
			return fmt.Errorf("product %s has a negative price", p.ID)
		}
		if p.StockQuantity < 0 {
			return fmt.Errorf("product %s has a negative stock quantity", p.ID)
		}
		st.products[p.ID] = p
		return nil
	})
}

// Product lê o produto publicado
func (s *MemoryStore) Product(productID string) (Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.state.products[productID]
	return p, ok
}

// OrderCount retorna quantos pedidos estão publicados
func (s *MemoryStore) OrderCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.state.orders)
}

type memoryInventoryRepository struct {
	store *MemoryStore
}

func (r *memoryInventoryRepository) GetProductForUpdate(ctx context.Context, tx Tx, productID string) (*Product, error) {
	if err := r.store.fault("GetProductForUpdate"); err != nil {
		return nil, err
	}
	p, ok := r.store.txState(tx).products[productID]
	if !ok {
		return nil, ErrProductNotFound
	}
	return &p, nil
}

func (r *memoryInventoryRepository) LockProducts(ctx context.Context, tx Tx, productIDs []string) (map[string]*Product, error) {
	if err := r.store.fault("LockProducts"); err != nil {
		return nil, err
	}
	st := r.store.txState(tx)
	byID := make(map[string]*Product, len(productIDs))
	for _, id := range productIDs {
		if p, ok := st.products[id]; ok {
			byID[id] = &p
		}
	}
	return byID, nil
}

func (r *memoryInventoryRepository) Reserve(ctx context.Context, tx Tx, productID string, quantity int) (int, error) {
	if err := r.store.fault("Reserve"); err != nil {
		return 0, err
	}
	if quantity <= 0 {
		return 0, ErrInvalidQuantity
	}
	st := r.store.txState(tx)
	p, ok := st.products[productID]
	if !ok {
		return 0, ErrProductNotFound
	}
	if p.StockQuantity < quantity {
		return 0, &InsufficientStockError{ProductID: p.ID, ProductName: p.Name, Available: p.StockQuantity, Requested: quantity}
	}
	previous := p.StockQuantity
	p.StockQuantity -= quantity
	st.products[productID] = p
	return previous, nil
}

func (r *memoryInventoryRepository) Release(ctx context.Context, tx Tx, productID string, quantity int) error {
	if err := r.store.fault("Release"); err != nil {
		return err
	}
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	st := r.store.txState(tx)
	p, ok := st.products[productID]
	if !ok {
		return ErrProductNotFound
	}
	p.StockQuantity += quantity
	st.products[productID] = p
	return nil
}

type memoryOrderRepository struct {
	store *MemoryStore
}

func (r *memoryOrderRepository) Create(ctx context.Context, tx Tx, order *Order, lines []OrderLine) error {
	if err := r.store.fault("CreateOrder"); err != nil {
		return err
	}
	if len(lines) == 0 {
		return ErrEmptyOrder
	}
	st := r.store.txState(tx)
	if _, ok := st.customers[order.CustomerID]; !ok {
		return ErrConflict.withMessage("Customer %s changed while the order was being created.", order.CustomerID)
	}

	stored := *order
	stored.Lines = nil
	st.orders[order.ID] = stored
	for _, line := range lines {
		if err := st.insertLine(line); err != nil {
			return err
		}
	}

	saved, err := st.recomputeTotal(order.ID)
	if err != nil {
		return err
	}
	order.TotalAmount = saved.TotalAmount
	order.UpdatedAt = saved.UpdatedAt
	order.Lines = st.linesOf(order.ID)
	return nil
}

func (r *memoryOrderRepository) GetByID(ctx context.Context, tx Tx, orderID string) (*Order, error) {
	var order *Order
	err := r.store.view(tx, func(st *memoryState) error {
		var err error
		order, err = st.order(orderID)
		return err
	})
	return order, err
}

func (r *memoryOrderRepository) GetForUpdate(ctx context.Context, tx Tx, orderID string) (*Order, error) {
	if err := r.store.fault("GetForUpdate"); err != nil {
		return nil, err
	}
	return r.store.txState(tx).order(orderID)
}

func (r *memoryOrderRepository) GetLineForUpdate(ctx context.Context, tx Tx, lineID string) (*OrderLine, error) {
	if err := r.store.fault("GetLineForUpdate"); err != nil {
		return nil, err
	}
	st := r.store.txState(tx)
	l, ok := st.lines[lineID]
	if !ok {
		return nil, ErrOrderLineNotFound
	}
	line := l.OrderLine
	line.ProductName = st.products[line.ProductID].Name
	return &line, nil
}

func (r *memoryOrderRepository) AddLine(ctx context.Context, tx Tx, line OrderLine) error {
	if err := r.store.fault("AddLine"); err != nil {
		return err
	}
	st := r.store.txState(tx)
	if err := st.insertLine(line); err != nil {
		return err
	}
	_, err := st.recomputeTotal(line.OrderID)
	return err
}

func (r *memoryOrderRepository) UpdateLineQuantity(ctx context.Context, tx Tx, lineID string, quantity int) error {
	if err := r.store.fault("UpdateLineQuantity"); err != nil {
		return err
	}
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	st := r.store.txState(tx)
	l, ok := st.lines[lineID]
	if !ok {
		return ErrOrderLineNotFound
	}
	l.Quantity = quantity
	st.lines[lineID] = l
	_, err := st.recomputeTotal(l.OrderID)
	return err
}

func (r *memoryOrderRepository) RemoveLine(ctx context.Context, tx Tx, lineID string) error {
	if err := r.store.fault("RemoveLine"); err != nil {
		return err
	}
	st := r.store.txState(tx)
	l, ok := st.lines[lineID]
	if !ok {
		return ErrOrderLineNotFound
	}
	delete(st.lines, lineID)
	_, err := st.recomputeTotal(l.OrderID)
	return err
}

func (r *memoryOrderRepository) UpdateStatus(ctx context.Context, tx Tx, orderID string, status string) error {
	if err := r.store.fault("UpdateStatus"); err != nil {
		return err
	}
	st := r.store.txState(tx)
	o, ok := st.orders[orderID]
	if !ok {
		return ErrOrderNotFound
	}
	o.Status = status
	o.UpdatedAt = time.Now()
	st.orders[orderID] = o
	return nil
}

func (r *memoryOrderRepository) Delete(ctx context.Context, tx Tx, orderID string) error {
	if err := r.store.fault("DeleteOrder"); err != nil {
		return err
	}
	st := r.store.txState(tx)
	if _, ok := st.orders[orderID]; !ok {
		return ErrOrderNotFound
	}
	st.deleteOrder(orderID)
	return nil
}

func (r *memoryOrderRepository) ListByCustomer(ctx context.Context, tx Tx, customerID string) ([]Order, error) {
	orders := make([]Order, 0)
	err := r.store.view(tx, func(st *memoryState) error {
		for _, o := range st.orders {
			if o.CustomerID == customerID {
				o.Lines = st.linesOf(o.ID)
				orders = append(orders, o)
			}
		}
		return nil
	})
	sort.Slice(orders, func(i, j int) bool {
		if orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].ID < orders[j].ID
		}
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	return orders, err
}

func (r *memoryOrderRepository) Statistics(ctx context.Context) (OrderStatistics, error) {
	if err := r.store.fault("Statistics"); err != nil {
		return OrderStatistics{}, err
	}
	var stats OrderStatistics
	err := r.store.view(nil, func(st *memoryState) error {
		stats.TotalRevenue = sumOrderTotals(st.orders)
		for _, o := range st.orders {
			stats.TotalOrders++
			if IsPendingStatus(o.Status) {
				stats.PendingOrders++
			}
		}
		return nil
	})
	return stats, err
}

type memoryCatalogRepository struct {
	store *MemoryStore
}

func (r *memoryCatalogRepository) GetProduct(ctx context.Context, tx Tx, productID string) (*Product, error) {
	var product *Product
	err := r.store.view(tx, func(st *memoryState) error {
		p, ok := st.products[productID]
		if !ok {
			return ErrProductNotFound
		}
		product = &p
		return nil
	})
	return product, err
}

func (r *memoryCatalogRepository) CustomerExists(ctx context.Context, tx Tx, customerID string) (bool, error) {
	if err := r.store.fault("CustomerExists"); err != nil {
		return false, err
	}
	var exists bool
	err := r.store.view(tx, func(st *memoryState) error {
		_, exists = st.customers[customerID]
		return nil
	})
	return exists, err
}

func (r *memoryCatalogRepository) ShareCustomer(ctx context.Context, tx Tx, customerID string) error {
	if err := r.store.fault("ShareCustomer"); err != nil {
		return err
	}
	if _, ok := r.store.txState(tx).customers[customerID]; !ok {
		return ErrCustomerNotFound
	}
	return nil
}

func (r *memoryCatalogRepository) LockCustomer(ctx context.Context, tx Tx, customerID string) error {
	if err := r.store.fault("LockCustomer"); err != nil {
		return err
	}
	if _, ok := r.store.txState(tx).customers[customerID]; !ok {
		return ErrCustomerNotFound
	}
	return nil
}

func (r *memoryCatalogRepository) DeleteCustomer(ctx context.Context, tx Tx, customerID string) error {
	if err := r.store.fault("DeleteCustomer"); err != nil {
		return err
	}
	st := r.store.txState(tx)
	if _, ok := st.customers[customerID]; !ok {
		return ErrCustomerNotFound
	}
	for id, o := range st.orders {
		if o.CustomerID == customerID {
			st.deleteOrder(id)
		}
	}
	delete(st.customers, customerID)
	return nil
}
