package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID               string
	Name             string
	Category         string
	Price            decimal.Decimal
	CostPrice        decimal.Decimal
	InitialStock     int
	StockQuantity    int // cached; only ledger appends move it
	ReorderThreshold int
	Version          int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (p Product) IsLowStock() bool {
	return p.StockQuantity <= p.ReorderThreshold
}

// StockValue is price × stock_quantity.
func (p Product) StockValue() decimal.Decimal {
	return p.Price.Mul(decimal.NewFromInt(int64(p.StockQuantity)))
}
