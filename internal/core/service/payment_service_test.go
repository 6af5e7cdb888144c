package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/pos-core/internal/core/domain"
)

func TestRecordPayment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.product(t, "10", 10, 0)
	o := env.order(t)
	_, err := env.core.Orders.AddItem(ctx, o.ID, p.ID, 5, "cashier-1")
	require.NoError(t, err)

	_, err = env.core.Payments.RecordPayment(ctx, o.ID, decimal.NewFromInt(20), domain.PaymentCash, "", "cashier-1")
	require.NoError(t, err)
	pay, err := env.core.Payments.RecordPayment(ctx, o.ID, decimal.RequireFromString("12.50"), domain.PaymentCard, "visa", "cashier-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentCard, pay.Method)

	summary, err := env.core.Payments.Summary(ctx, o.ID)
	require.NoError(t, err)
	assertMoney(t, "50.00", summary.Total)
	assertMoney(t, "32.50", summary.Paid)
	assertMoney(t, "17.50", summary.Balance)

	payments, err := env.core.Payments.Payments(ctx, o.ID)
	require.NoError(t, err)
	assert.Len(t, payments, 2)

	// payments never touch stock or status
	stock, _ := env.core.Ledger.CurrentStock(ctx, p.ID)
	assert.Equal(t, 5, stock)
	view, _ := env.core.Orders.Get(ctx, o.ID)
	assert.Equal(t, domain.OrderStatusPending, view.Status)
}

func TestRecordPayment_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	o := env.order(t)

	_, err := env.core.Payments.RecordPayment(ctx, o.ID, decimal.Zero, domain.PaymentCash, "", "cashier-1")
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = env.core.Payments.RecordPayment(ctx, o.ID, decimal.NewFromInt(-5), domain.PaymentCash, "", "cashier-1")
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = env.core.Payments.RecordPayment(ctx, "missing", decimal.NewFromInt(5), domain.PaymentCash, "", "cashier-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	pay, err := env.core.Payments.RecordPayment(ctx, o.ID, decimal.NewFromInt(5), "", "", "cashier-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentCash, pay.Method)

	_, err = env.core.Orders.Cancel(ctx, o.ID, "cashier-1")
	require.NoError(t, err)
	_, err = env.core.Payments.RecordPayment(ctx, o.ID, decimal.NewFromInt(5), domain.PaymentCash, "", "cashier-1")
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestRecordRefund(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.product(t, "10", 10, 0)
	o := env.order(t)
	_, err := env.core.Orders.AddItem(ctx, o.ID, p.ID, 2, "cashier-1")
	require.NoError(t, err)

	_, err = env.core.Accounting.RecordRefund(ctx, o.ID, decimal.NewFromInt(5), "damaged", "manager")
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	_, err = env.core.Orders.Complete(ctx, o.ID, "cashier-1")
	require.NoError(t, err)

	ft, err := env.core.Accounting.RecordRefund(ctx, o.ID, decimal.NewFromInt(5), "damaged", "manager")
	require.NoError(t, err)
	assert.Equal(t, domain.FinancialRefund, ft.Kind)
	assert.Equal(t, o.ID, ft.OrderID)

	_, err = env.core.Accounting.RecordRefund(ctx, "", decimal.NewFromInt(3), "goodwill", "manager")
	require.NoError(t, err)

	_, err = env.core.Accounting.RecordRefund(ctx, "missing", decimal.NewFromInt(3), "x", "manager")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = env.core.Accounting.RecordExpense(ctx, decimal.NewFromInt(40), "rent", "manager")
	require.NoError(t, err)
	_, err = env.core.Accounting.RecordExpense(ctx, decimal.Zero, "nothing", "manager")
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	now := time.Now()
	summary, err := env.core.Reports.FinancialReport(ctx, now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, err)
	assertMoney(t, "20.00", summary.Sales)
	assertMoney(t, "40.00", summary.Expenses)
	assertMoney(t, "8.00", summary.Refunds)
	assertMoney(t, "-20.00", summary.Profit)
}
