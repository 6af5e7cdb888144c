package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "cash"
	PaymentCard     PaymentMethod = "card"
	PaymentTransfer PaymentMethod = "transfer"
)

type Payment struct {
	ID        string
	OrderID   string
	Amount    decimal.Decimal
	Method    PaymentMethod
	Notes     string
	ActorID   string
	CreatedAt time.Time
}

type PaymentSummary struct {
	OrderID string
	Total   decimal.Decimal
	Paid    decimal.Decimal
	Balance decimal.Decimal
}

type FinancialTransactionKind string

const (
	FinancialSale    FinancialTransactionKind = "sale"
	FinancialExpense FinancialTransactionKind = "expense"
	FinancialRefund  FinancialTransactionKind = "refund"
)

// FinancialTransaction is an entry of the accounting ledger, kept apart from
// the inventory ledger.
type FinancialTransaction struct {
	ID          string
	Kind        FinancialTransactionKind
	Amount      decimal.Decimal
	OrderID     string
	ActorID     string
	Description string
	CreatedAt   time.Time
}
