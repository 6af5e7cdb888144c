package port

import (
	"context"
	"time"

	"github.com/rl1809/pos-core/internal/core/domain"
)

// Store is the transactional storage backend the core runs against.
type Store interface {
	// WithinTx runs fn inside one transaction. The transaction commits when
	// fn returns nil and rolls back on error or panic.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// Snapshot runs fn against a consistent read-only view.
	Snapshot(ctx context.Context, fn func(ctx context.Context, r Reader) error) error
}

type OrderFilter struct {
	Status domain.OrderStatus // empty matches every status
	From   time.Time          // inclusive, on CreatedAt; zero means unbounded
	To     time.Time          // exclusive; zero means unbounded
}

// Reader exposes lookups. Missing rows yield domain.ErrNotFound.
type Reader interface {
	GetProduct(ctx context.Context, id string) (domain.Product, error)

	// ListProducts returns up to limit products with ID > afterID, ordered by ID.
	ListProducts(ctx context.Context, afterID string, limit int) ([]domain.Product, error)

	// GetOrder returns the order with ItemIDs populated in insertion order.
	GetOrder(ctx context.Context, id string) (domain.Order, error)
	ListOrders(ctx context.Context, filter OrderFilter) ([]domain.Order, error)

	GetOrderItem(ctx context.Context, id string) (domain.OrderItem, error)
	ListOrderItems(ctx context.Context, orderID string) ([]domain.OrderItem, error)

	ListInventoryTransactions(ctx context.Context, productID string) ([]domain.InventoryTransaction, error)
	ListPayments(ctx context.Context, orderID string) ([]domain.Payment, error)
	ListFinancialTransactions(ctx context.Context, from, to time.Time) ([]domain.FinancialTransaction, error)
}

// Tx is a Reader plus the writes allowed inside a transaction.
type Tx interface {
	Reader

	InsertProduct(ctx context.Context, p domain.Product) error

	// UpdateProduct writes master data only; stock is left untouched.
	// p.Version must match the stored version.
	UpdateProduct(ctx context.Context, p domain.Product) error

	// ApplyStockDelta adds delta to the cached stock counter as one
	// conditional update and returns the new stock. A negative delta that
	// would take stock below zero fails with domain.ErrInsufficientStock.
	ApplyStockDelta(ctx context.Context, productID string, delta int) (int, error)

	InsertInventoryTransaction(ctx context.Context, t domain.InventoryTransaction) error

	InsertOrder(ctx context.Context, o domain.Order) error

	// UpdateOrder writes status, totals and timestamps. o.Version must match
	// the stored version, else domain.ErrConcurrentModification.
	UpdateOrder(ctx context.Context, o domain.Order) error

	InsertOrderItem(ctx context.Context, item domain.OrderItem) error
	DeleteOrderItem(ctx context.Context, id string) error

	InsertPayment(ctx context.Context, p domain.Payment) error
	InsertFinancialTransaction(ctx context.Context, ft domain.FinancialTransaction) error
}
