package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/rl1809/pos-core/internal/core/domain"
	"github.com/rl1809/pos-core/internal/port"
)

type NewProduct struct {
	Name             string
	Category         string
	Price            decimal.Decimal
	CostPrice        decimal.Decimal
	InitialStock     int
	ReorderThreshold int
}

func (p NewProduct) validate() error {
	if p.Price.IsNegative() || p.CostPrice.IsNegative() {
		return fmt.Errorf("%w: prices must not be negative", domain.ErrInvalidAmount)
	}
	if p.InitialStock < 0 || p.ReorderThreshold < 0 {
		return fmt.Errorf("%w: initial stock and reorder threshold must not be negative", domain.ErrInvalidQuantity)
	}
	return nil
}

// Catalog owns product master data. Stock changes go through the Ledger.
type Catalog struct {
	exec   *executor
	ledger *Ledger
}

func (c *Catalog) Create(ctx context.Context, in NewProduct, actorID string) (domain.Product, error) {
	if err := in.validate(); err != nil {
		return domain.Product{}, err
	}

	now := c.exec.now()
	p := domain.Product{
		ID:               c.exec.newID(),
		Name:             in.Name,
		Category:         in.Category,
		Price:            in.Price,
		CostPrice:        in.CostPrice,
		InitialStock:     in.InitialStock,
		StockQuantity:    in.InitialStock,
		ReorderThreshold: in.ReorderThreshold,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	err := c.exec.run(ctx, "catalog.create", fixedLocks("", p.ID), func(ctx context.Context, uow *unitOfWork) error {
		return uow.InsertProduct(ctx, p)
	})
	if err != nil {
		return domain.Product{}, err
	}
	return p, nil
}

// UpdatePrice changes the list price. Items already on orders keep the
// price they were added at.
func (c *Catalog) UpdatePrice(ctx context.Context, productID string, price decimal.Decimal, actorID string) (domain.Product, error) {
	if price.IsNegative() {
		return domain.Product{}, fmt.Errorf("%w: price %s is negative", domain.ErrInvalidAmount, price)
	}

	var updated domain.Product
	err := c.exec.run(ctx, "catalog.update_price", fixedLocks("", productID), func(ctx context.Context, uow *unitOfWork) error {
		p, err := uow.GetProduct(ctx, productID)
		if err != nil {
			return err
		}
		p.Price = price
		p.UpdatedAt = c.exec.now()
		if err := uow.UpdateProduct(ctx, p); err != nil {
			return err
		}
		p.Version++
		updated = p
		return nil
	})
	return updated, err
}

// AdjustStock records a manual correction of delta units.
func (c *Catalog) AdjustStock(ctx context.Context, productID string, delta int, reason, actorID string) (string, error) {
	return c.ledger.AppendEntry(ctx, Entry{
		ProductID: productID,
		Delta:     delta,
		Kind:      domain.TransactionAdjustment,
		ActorID:   actorID,
		Reason:    reason,
	})
}

// ReceiveStock books a delivery: a purchase entry on the ledger and an
// expense of cost_price × quantity, committed together.
func (c *Catalog) ReceiveStock(ctx context.Context, productID string, quantity int, actorID string) (string, error) {
	if quantity <= 0 {
		return "", fmt.Errorf("%w: received quantity must be positive, got %d", domain.ErrInvalidQuantity, quantity)
	}

	var id string
	err := c.exec.run(ctx, "catalog.receive_stock", fixedLocks("", productID), func(ctx context.Context, uow *unitOfWork) error {
		t, err := c.exec.appendEntry(ctx, uow, Entry{
			ProductID: productID,
			Delta:     quantity,
			Kind:      domain.TransactionPurchase,
			ActorID:   actorID,
			Reason:    "stock received",
		})
		if err != nil {
			return err
		}
		id = t.ID

		p, err := uow.GetProduct(ctx, productID)
		if err != nil {
			return err
		}
		ft := domain.FinancialTransaction{
			ID:          c.exec.newID(),
			Kind:        domain.FinancialExpense,
			Amount:      p.CostPrice.Mul(decimal.NewFromInt(int64(quantity))),
			ActorID:     actorID,
			Description: fmt.Sprintf("received %d x %s", quantity, p.Name),
			CreatedAt:   t.CreatedAt,
		}
		if err := uow.InsertFinancialTransaction(ctx, ft); err != nil {
			return err
		}
		uow.emit(financialEvent(ft))
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (c *Catalog) Get(ctx context.Context, productID string) (domain.Product, error) {
	var p domain.Product
	err := c.exec.snapshot(ctx, "catalog.get", func(ctx context.Context, r port.Reader) error {
		var err error
		p, err = r.GetProduct(ctx, productID)
		return err
	})
	return p, err
}

// List returns up to limit products with ID greater than afterID.
func (c *Catalog) List(ctx context.Context, afterID string, limit int) ([]domain.Product, error) {
	if limit <= 0 {
		limit = c.exec.pageSize
	}
	var products []domain.Product
	err := c.exec.snapshot(ctx, "catalog.list", func(ctx context.Context, r port.Reader) error {
		var err error
		products, err = r.ListProducts(ctx, afterID, limit)
		return err
	})
	return products, err
}

func financialEvent(ft domain.FinancialTransaction) domain.Event {
	return domain.Event{
		Type:        domain.EventFinancialTransaction,
		AggregateID: ft.ID,
		OccurredAt:  ft.CreatedAt,
		Payload:     ft,
	}
}
