package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/pos-core/internal/core/domain"
)

func TestLedgerAppend_SignRules(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.product(t, "10", 10, 0)

	tests := []struct {
		name  string
		delta int
		kind  domain.TransactionKind
		want  error
	}{
		{"zero delta", 0, domain.TransactionAdjustment, domain.ErrInvalidQuantity},
		{"positive sale", 2, domain.TransactionSale, domain.ErrInvalidQuantity},
		{"negative purchase", -2, domain.TransactionPurchase, domain.ErrInvalidQuantity},
		{"negative return", -1, domain.TransactionReturn, domain.ErrInvalidQuantity},
		{"sale", -2, domain.TransactionSale, nil},
		{"purchase", 5, domain.TransactionPurchase, nil},
		{"adjustment down", -3, domain.TransactionAdjustment, nil},
		{"adjustment below zero", -100, domain.TransactionAdjustment, domain.ErrInsufficientStock},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := env.core.Ledger.Append(ctx, p.ID, tt.delta, tt.kind, "manager")
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
				assert.Empty(t, id)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, id)
		})
	}

	stock, err := env.core.Ledger.CurrentStock(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, stock)

	rec, err := env.core.Ledger.Reconcile(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, rec.Consistent)
	assert.Equal(t, 3, rec.Entries)
}

func TestLedgerAppend_MissingProduct(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.core.Ledger.Append(context.Background(), "nope", 1, domain.TransactionPurchase, "manager")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = env.core.Ledger.CurrentStock(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = env.core.Ledger.History(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLedgerAppend_EmitsLowStockOnCrossing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.product(t, "10", 10, 3)

	_, err := env.core.Ledger.Append(ctx, p.ID, -6, domain.TransactionAdjustment, "manager")
	require.NoError(t, err)
	assert.Empty(t, env.publisher.ofType(domain.EventLowStock))

	_, err = env.core.Ledger.Append(ctx, p.ID, -2, domain.TransactionAdjustment, "manager")
	require.NoError(t, err)

	// already below, no second alert
	_, err = env.core.Ledger.Append(ctx, p.ID, -1, domain.TransactionAdjustment, "manager")
	require.NoError(t, err)

	events := env.publisher.ofType(domain.EventLowStock)
	require.Len(t, events, 1)
	alert, ok := events[0].Payload.(domain.LowStockAlert)
	require.True(t, ok)
	assert.Equal(t, domain.LowStockAlert{ProductID: p.ID, Stock: 2, Threshold: 3}, alert)
}

func TestLedgerHistory_AppendOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.product(t, "10", 0, 0)

	deltas := []int{5, -2, 7, -1}
	for _, d := range deltas {
		_, err := env.core.Ledger.Append(ctx, p.ID, d, domain.TransactionAdjustment, "manager")
		require.NoError(t, err)
	}

	history, err := env.core.Ledger.History(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, history, len(deltas))
	for i, d := range deltas {
		assert.Equal(t, d, history[i].QuantityDelta)
	}
	assert.Equal(t, 9, history[len(history)-1].StockAfter)
	assert.Equal(t, 9, domain.ReplayStock(p.InitialStock, history))
}

func TestLedgerLowStock(t *testing.T) {
	env := newTestEnv(t, WithPageSize(2))
	ctx := context.Background()

	var low []string
	for _, tc := range []struct{ stock, threshold int }{
		{1, 5}, {10, 5}, {5, 5}, {0, 0}, {8, 2}, {2, 3},
	} {
		p := env.product(t, "1", tc.stock, tc.threshold)
		if tc.stock <= tc.threshold {
			low = append(low, p.ID)
		}
	}

	var got []string
	for id, err := range env.core.Ledger.LowStock(ctx, nil) {
		require.NoError(t, err)
		got = append(got, id)
	}
	assert.ElementsMatch(t, low, got)

	// the sequence restarts from the beginning on every range
	var again []string
	for id, err := range env.core.Ledger.LowStock(ctx, nil) {
		require.NoError(t, err)
		again = append(again, id)
	}
	assert.Equal(t, got, again)

	// early break stops the scan
	var first []string
	for id, err := range env.core.Ledger.LowStock(ctx, nil) {
		require.NoError(t, err)
		first = append(first, id)
		break
	}
	assert.Len(t, first, 1)

	// predicate narrows the result
	var empty []string
	for id, err := range env.core.Ledger.LowStock(ctx, func(p domain.Product) bool { return p.StockQuantity == 0 }) {
		require.NoError(t, err)
		empty = append(empty, id)
	}
	require.Len(t, empty, 1)
	assert.Contains(t, low, empty[0])
}
