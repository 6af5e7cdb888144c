package storage

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/rl1809/pos-core/internal/core/domain"
	"github.com/rl1809/pos-core/internal/port"
)

var ErrDuplicateKey = errors.New("duplicate key")

// MemoryStore keeps every table in maps. Transactions stage their writes and
// apply them under the write lock at commit, after checking that no product
// or order they touched changed version in the meantime.
type MemoryStore struct {
	mu         sync.RWMutex
	products   map[string]domain.Product
	ledger     map[string][]domain.InventoryTransaction
	orders     map[string]domain.Order
	items      map[string]domain.OrderItem
	orderItems map[string][]string
	payments   map[string][]domain.Payment
	finance    []domain.FinancialTransaction
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		products:   make(map[string]domain.Product),
		ledger:     make(map[string][]domain.InventoryTransaction),
		orders:     make(map[string]domain.Order),
		items:      make(map[string]domain.OrderItem),
		orderItems: make(map[string][]string),
		payments:   make(map[string][]domain.Payment),
	}
}

func (s *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx port.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := newMemoryTx(s)
	if err := fn(ctx, tx); err != nil {
		return err
	}
	return tx.commit()
}

func (s *MemoryStore) Snapshot(ctx context.Context, fn func(ctx context.Context, r port.Reader) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(ctx, memoryView{s: s})
}

// memoryView reads committed state. Callers hold s.mu.
type memoryView struct {
	s *MemoryStore
}

func (v memoryView) GetProduct(_ context.Context, id string) (domain.Product, error) {
	p, ok := v.s.products[id]
	if !ok {
		return domain.Product{}, fmt.Errorf("product %s: %w", id, domain.ErrNotFound)
	}
	return p, nil
}

func (v memoryView) ListProducts(_ context.Context, afterID string, limit int) ([]domain.Product, error) {
	return pageProducts(v.s.products, afterID, limit), nil
}

func (v memoryView) GetOrder(_ context.Context, id string) (domain.Order, error) {
	o, ok := v.s.orders[id]
	if !ok {
		return domain.Order{}, fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
	}
	o.ItemIDs = slices.Clone(v.s.orderItems[id])
	return o, nil
}

func (v memoryView) ListOrders(_ context.Context, filter port.OrderFilter) ([]domain.Order, error) {
	return filterOrders(v.s.orders, filter), nil
}

func (v memoryView) GetOrderItem(_ context.Context, id string) (domain.OrderItem, error) {
	it, ok := v.s.items[id]
	if !ok {
		return domain.OrderItem{}, fmt.Errorf("order item %s: %w", id, domain.ErrNotFound)
	}
	return it, nil
}

func (v memoryView) ListOrderItems(_ context.Context, orderID string) ([]domain.OrderItem, error) {
	ids := v.s.orderItems[orderID]
	out := make([]domain.OrderItem, 0, len(ids))
	for _, id := range ids {
		out = append(out, v.s.items[id])
	}
	return out, nil
}

func (v memoryView) ListInventoryTransactions(_ context.Context, productID string) ([]domain.InventoryTransaction, error) {
	return slices.Clone(v.s.ledger[productID]), nil
}

func (v memoryView) ListPayments(_ context.Context, orderID string) ([]domain.Payment, error) {
	return slices.Clone(v.s.payments[orderID]), nil
}

func (v memoryView) ListFinancialTransactions(_ context.Context, from, to time.Time) ([]domain.FinancialTransaction, error) {
	return filterFinance(v.s.finance, from, to), nil
}

type memoryTx struct {
	s *MemoryStore

	products    map[string]domain.Product
	productBase map[string]int64
	newProducts map[string]bool

	orders    map[string]domain.Order
	orderBase map[string]int64
	newOrders map[string]bool

	newItems     []domain.OrderItem
	deletedItems map[string]bool

	ledger   []domain.InventoryTransaction
	payments []domain.Payment
	finance  []domain.FinancialTransaction
}

func newMemoryTx(s *MemoryStore) *memoryTx {
	return &memoryTx{
		s:            s,
		products:     make(map[string]domain.Product),
		productBase:  make(map[string]int64),
		newProducts:  make(map[string]bool),
		orders:       make(map[string]domain.Order),
		orderBase:    make(map[string]int64),
		newOrders:    make(map[string]bool),
		deletedItems: make(map[string]bool),
	}
}

func (t *memoryTx) view() (memoryView, func()) {
	t.s.mu.RLock()
	return memoryView{s: t.s}, t.s.mu.RUnlock
}

func (t *memoryTx) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	if p, ok := t.products[id]; ok {
		return p, nil
	}
	v, done := t.view()
	defer done()
	return v.GetProduct(ctx, id)
}

func (t *memoryTx) ListProducts(_ context.Context, afterID string, limit int) ([]domain.Product, error) {
	v, done := t.view()
	merged := make(map[string]domain.Product, len(v.s.products)+len(t.products))
	for id, p := range v.s.products {
		merged[id] = p
	}
	done()
	for id, p := range t.products {
		merged[id] = p
	}
	return pageProducts(merged, afterID, limit), nil
}

func (t *memoryTx) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	o, ok := t.orders[id]
	if !ok {
		v, done := t.view()
		base, err := v.GetOrder(ctx, id)
		done()
		if err != nil {
			return domain.Order{}, err
		}
		o = base
	}
	items, err := t.ListOrderItems(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	o.ItemIDs = make([]string, 0, len(items))
	for _, it := range items {
		o.ItemIDs = append(o.ItemIDs, it.ID)
	}
	return o, nil
}

func (t *memoryTx) ListOrders(_ context.Context, filter port.OrderFilter) ([]domain.Order, error) {
	v, done := t.view()
	merged := make(map[string]domain.Order, len(v.s.orders)+len(t.orders))
	for id, o := range v.s.orders {
		merged[id] = o
	}
	done()
	for id, o := range t.orders {
		merged[id] = o
	}
	return filterOrders(merged, filter), nil
}

func (t *memoryTx) GetOrderItem(ctx context.Context, id string) (domain.OrderItem, error) {
	if t.deletedItems[id] {
		return domain.OrderItem{}, fmt.Errorf("order item %s: %w", id, domain.ErrNotFound)
	}
	for _, it := range t.newItems {
		if it.ID == id {
			return it, nil
		}
	}
	v, done := t.view()
	defer done()
	return v.GetOrderItem(ctx, id)
}

func (t *memoryTx) ListOrderItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	v, done := t.view()
	base, _ := v.ListOrderItems(ctx, orderID)
	done()

	out := make([]domain.OrderItem, 0, len(base)+len(t.newItems))
	for _, it := range base {
		if !t.deletedItems[it.ID] {
			out = append(out, it)
		}
	}
	for _, it := range t.newItems {
		if it.OrderID == orderID {
			out = append(out, it)
		}
	}
	return out, nil
}

func (t *memoryTx) ListInventoryTransactions(ctx context.Context, productID string) ([]domain.InventoryTransaction, error) {
	v, done := t.view()
	out, _ := v.ListInventoryTransactions(ctx, productID)
	done()
	for _, e := range t.ledger {
		if e.ProductID == productID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (t *memoryTx) ListPayments(ctx context.Context, orderID string) ([]domain.Payment, error) {
	v, done := t.view()
	out, _ := v.ListPayments(ctx, orderID)
	done()
	for _, p := range t.payments {
		if p.OrderID == orderID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (t *memoryTx) ListFinancialTransactions(ctx context.Context, from, to time.Time) ([]domain.FinancialTransaction, error) {
	v, done := t.view()
	out, _ := v.ListFinancialTransactions(ctx, from, to)
	done()
	return append(out, filterFinance(t.finance, from, to)...), nil
}

func (t *memoryTx) InsertProduct(ctx context.Context, p domain.Product) error {
	if _, err := t.GetProduct(ctx, p.ID); err == nil {
		return fmt.Errorf("product %s: %w", p.ID, ErrDuplicateKey)
	}
	t.products[p.ID] = p
	t.newProducts[p.ID] = true
	return nil
}

// stageProduct copies the visible product into the write set, remembering
// the committed version it was read at.
func (t *memoryTx) stageProduct(ctx context.Context, id string) (domain.Product, error) {
	if p, ok := t.products[id]; ok {
		return p, nil
	}
	p, err := t.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	t.productBase[id] = p.Version
	t.products[id] = p
	return p, nil
}

func (t *memoryTx) UpdateProduct(ctx context.Context, p domain.Product) error {
	cur, err := t.stageProduct(ctx, p.ID)
	if err != nil {
		return err
	}
	if cur.Version != p.Version {
		return fmt.Errorf("%w: product %s at version %d, got %d", domain.ErrConcurrentModification, p.ID, cur.Version, p.Version)
	}
	cur.Name = p.Name
	cur.Category = p.Category
	cur.Price = p.Price
	cur.CostPrice = p.CostPrice
	cur.ReorderThreshold = p.ReorderThreshold
	cur.UpdatedAt = p.UpdatedAt
	cur.Version++
	t.products[p.ID] = cur
	return nil
}

func (t *memoryTx) ApplyStockDelta(ctx context.Context, productID string, delta int) (int, error) {
	cur, err := t.stageProduct(ctx, productID)
	if err != nil {
		return 0, err
	}
	if delta < 0 && cur.StockQuantity+delta < 0 {
		return cur.StockQuantity, fmt.Errorf("%w: product %s has %d, requested %d",
			domain.ErrInsufficientStock, productID, cur.StockQuantity, -delta)
	}
	cur.StockQuantity += delta
	cur.Version++
	cur.UpdatedAt = time.Now().UTC()
	t.products[productID] = cur
	return cur.StockQuantity, nil
}

func (t *memoryTx) InsertInventoryTransaction(ctx context.Context, e domain.InventoryTransaction) error {
	if _, err := t.GetProduct(ctx, e.ProductID); err != nil {
		return err
	}
	t.ledger = append(t.ledger, e)
	return nil
}

func (t *memoryTx) InsertOrder(ctx context.Context, o domain.Order) error {
	if _, err := t.GetOrder(ctx, o.ID); err == nil {
		return fmt.Errorf("order %s: %w", o.ID, ErrDuplicateKey)
	}
	o.ItemIDs = nil
	t.orders[o.ID] = o
	t.newOrders[o.ID] = true
	return nil
}

func (t *memoryTx) UpdateOrder(ctx context.Context, o domain.Order) error {
	cur, ok := t.orders[o.ID]
	if !ok {
		v, done := t.view()
		base, err := v.GetOrder(ctx, o.ID)
		done()
		if err != nil {
			return err
		}
		t.orderBase[o.ID] = base.Version
		cur = base
	}
	if cur.Version != o.Version {
		return fmt.Errorf("%w: order %s at version %d, got %d", domain.ErrConcurrentModification, o.ID, cur.Version, o.Version)
	}
	cur.Status = o.Status
	cur.Subtotal = o.Subtotal
	cur.TaxAmount = o.TaxAmount
	cur.DiscountAmount = o.DiscountAmount
	cur.TotalAmount = o.TotalAmount
	cur.UpdatedAt = o.UpdatedAt
	cur.CompletedAt = o.CompletedAt
	cur.CancelledAt = o.CancelledAt
	cur.ItemIDs = nil
	cur.Version++
	t.orders[o.ID] = cur
	return nil
}

func (t *memoryTx) InsertOrderItem(ctx context.Context, item domain.OrderItem) error {
	if _, err := t.GetOrder(ctx, item.OrderID); err != nil {
		return err
	}
	if _, err := t.GetOrderItem(ctx, item.ID); err == nil {
		return fmt.Errorf("order item %s: %w", item.ID, ErrDuplicateKey)
	}
	t.newItems = append(t.newItems, item)
	return nil
}

func (t *memoryTx) DeleteOrderItem(ctx context.Context, id string) error {
	if _, err := t.GetOrderItem(ctx, id); err != nil {
		return err
	}
	for i, it := range t.newItems {
		if it.ID == id {
			t.newItems = slices.Delete(t.newItems, i, i+1)
			return nil
		}
	}
	t.deletedItems[id] = true
	return nil
}

func (t *memoryTx) InsertPayment(_ context.Context, p domain.Payment) error {
	t.payments = append(t.payments, p)
	return nil
}

func (t *memoryTx) InsertFinancialTransaction(_ context.Context, ft domain.FinancialTransaction) error {
	t.finance = append(t.finance, ft)
	return nil
}

func (t *memoryTx) commit() error {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, version := range t.productBase {
		if cur, ok := s.products[id]; !ok || cur.Version != version {
			return fmt.Errorf("%w: product %s changed", domain.ErrConcurrentModification, id)
		}
	}
	for id := range t.newProducts {
		if _, ok := s.products[id]; ok {
			return fmt.Errorf("product %s: %w", id, ErrDuplicateKey)
		}
	}
	for id, version := range t.orderBase {
		if cur, ok := s.orders[id]; !ok || cur.Version != version {
			return fmt.Errorf("%w: order %s changed", domain.ErrConcurrentModification, id)
		}
	}
	for id := range t.newOrders {
		if _, ok := s.orders[id]; ok {
			return fmt.Errorf("order %s: %w", id, ErrDuplicateKey)
		}
	}
	for id := range t.deletedItems {
		if _, ok := s.items[id]; !ok {
			return fmt.Errorf("%w: order item %s already removed", domain.ErrConcurrentModification, id)
		}
	}

	for id, p := range t.products {
		s.products[id] = p
	}
	for _, e := range t.ledger {
		s.ledger[e.ProductID] = append(s.ledger[e.ProductID], e)
	}
	for id, o := range t.orders {
		s.orders[id] = o
	}
	for id := range t.deletedItems {
		orderID := s.items[id].OrderID
		delete(s.items, id)
		s.orderItems[orderID] = slices.DeleteFunc(s.orderItems[orderID], func(v string) bool { return v == id })
	}
	for _, it := range t.newItems {
		s.items[it.ID] = it
		s.orderItems[it.OrderID] = append(s.orderItems[it.OrderID], it.ID)
	}
	for _, p := range t.payments {
		s.payments[p.OrderID] = append(s.payments[p.OrderID], p)
	}
	s.finance = append(s.finance, t.finance...)
	return nil
}

func pageProducts(all map[string]domain.Product, afterID string, limit int) []domain.Product {
	ids := make([]string, 0, len(all))
	for id := range all {
		if id > afterID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]domain.Product, 0, len(ids))
	for _, id := range ids {
		out = append(out, all[id])
	}
	return out
}

func filterOrders(all map[string]domain.Order, f port.OrderFilter) []domain.Order {
	out := make([]domain.Order, 0)
	for _, o := range all {
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		if !inRange(o.CreatedAt, f.From, f.To) {
			continue
		}
		o.ItemIDs = nil
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func filterFinance(all []domain.FinancialTransaction, from, to time.Time) []domain.FinancialTransaction {
	out := make([]domain.FinancialTransaction, 0)
	for _, ft := range all {
		if inRange(ft.CreatedAt, from, to) {
			out = append(out, ft)
		}
	}
	return out
}

func inRange(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && !t.Before(to) {
		return false
	}
	return true
}
