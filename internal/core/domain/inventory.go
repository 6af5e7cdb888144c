package domain

import (
	"fmt"
	"time"
)

type TransactionKind string

const (
	TransactionPurchase   TransactionKind = "purchase"
	TransactionSale       TransactionKind = "sale"
	TransactionReturn     TransactionKind = "return"
	TransactionAdjustment TransactionKind = "adjustment"
)

// InventoryTransaction is one immutable entry of the stock ledger.
type InventoryTransaction struct {
	ID            string
	ProductID     string
	QuantityDelta int
	Kind          TransactionKind
	ActorID       string
	Reason        string
	Reference     string // order id for sale/return entries
	StockAfter    int
	CreatedAt     time.Time
}

// ValidateDelta checks that delta is non-zero and carries the sign the kind
// requires: sales decrease stock, purchases and returns increase it,
// adjustments go either way.
func (k TransactionKind) ValidateDelta(delta int) error {
	if delta == 0 {
		return fmt.Errorf("%w: delta must not be zero", ErrInvalidQuantity)
	}
	switch k {
	case TransactionSale:
		if delta > 0 {
			return fmt.Errorf("%w: sale delta must be negative, got %d", ErrInvalidQuantity, delta)
		}
	case TransactionPurchase, TransactionReturn:
		if delta < 0 {
			return fmt.Errorf("%w: %s delta must be positive, got %d", ErrInvalidQuantity, k, delta)
		}
	case TransactionAdjustment:
	default:
		return fmt.Errorf("%w: unknown transaction kind %q", ErrInvalidQuantity, k)
	}
	return nil
}

// ReplayStock folds entries onto the initial stock.
func ReplayStock(initial int, entries []InventoryTransaction) int {
	stock := initial
	for _, e := range entries {
		stock += e.QuantityDelta
	}
	return stock
}
