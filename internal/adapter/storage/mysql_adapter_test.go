package storage

import (
	"context"
	"database/sql"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/pos-core/internal/core/domain"
	"github.com/rl1809/pos-core/internal/port"
)

func getMySQLAdapter(t *testing.T) (*MySQLAdapter, *sql.DB) {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		dsn = "root:root@tcp(localhost:3306)/pos?parseTime=true"
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}
	if err := db.Ping(); err != nil {
		t.Skipf("MySQL not available: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	adapter := NewMySQLAdapter(db, time.Second)
	require.NoError(t, adapter.Migrate(context.Background()))
	return adapter, db
}

func insertTestProduct(t *testing.T, a *MySQLAdapter, stock int) string {
	t.Helper()
	id := uuid.NewString()
	now := time.Now().UTC()
	err := a.WithinTx(context.Background(), func(ctx context.Context, tx port.Tx) error {
		return tx.InsertProduct(ctx, domain.Product{
			ID:            id,
			Name:          "test product",
			Category:      "test",
			Price:         decimal.RequireFromString("9.99"),
			CostPrice:     decimal.RequireFromString("5.00"),
			InitialStock:  stock,
			StockQuantity: stock,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	})
	require.NoError(t, err)
	return id
}

func TestMySQL_ApplyStockDelta_Success(t *testing.T) {
	a, db := getMySQLAdapter(t)
	ctx := context.Background()
	id := insertTestProduct(t, a, 100)
	defer db.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id)

	var after int
	err := a.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
		var err error
		after, err = tx.ApplyStockDelta(ctx, id, -1)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 99, after)

	var stock int
	db.QueryRowContext(ctx, `SELECT stock_quantity FROM products WHERE id = ?`, id).Scan(&stock)
	assert.Equal(t, 99, stock)
}

func TestMySQL_ApplyStockDelta_InsufficientStock(t *testing.T) {
	a, db := getMySQLAdapter(t)
	ctx := context.Background()
	id := insertTestProduct(t, a, 0)
	defer db.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id)

	err := a.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
		_, err := tx.ApplyStockDelta(ctx, id, -1)
		return err
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
}

func TestMySQL_RollbackOnError(t *testing.T) {
	a, db := getMySQLAdapter(t)
	ctx := context.Background()
	id := insertTestProduct(t, a, 10)
	defer db.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id)

	err := a.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
		if _, err := tx.ApplyStockDelta(ctx, id, -5); err != nil {
			return err
		}
		return domain.ErrInvalidState
	})
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	var stock int
	db.QueryRowContext(ctx, `SELECT stock_quantity FROM products WHERE id = ?`, id).Scan(&stock)
	assert.Equal(t, 10, stock)
}

func TestMySQL_GetProduct_NotFound(t *testing.T) {
	a, _ := getMySQLAdapter(t)

	err := a.Snapshot(context.Background(), func(ctx context.Context, r port.Reader) error {
		_, err := r.GetProduct(ctx, "nonexistent-item")
		return err
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMySQL_UpdateOrder_OptimisticLock(t *testing.T) {
	a, db := getMySQLAdapter(t)
	ctx := context.Background()
	order := domain.NewOrder(uuid.NewString(), "test-user", time.Now().UTC())
	defer db.ExecContext(ctx, `DELETE FROM orders WHERE id = ?`, order.ID)

	require.NoError(t, a.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
		return tx.InsertOrder(ctx, order)
	}))

	// Update with correct version
	require.NoError(t, a.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
		return tx.UpdateOrder(ctx, order)
	}))

	var version int
	db.QueryRowContext(ctx, `SELECT version FROM orders WHERE id = ?`, order.ID).Scan(&version)
	assert.Equal(t, 1, version)

	// stale
	err := a.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
		return tx.UpdateOrder(ctx, order)
	})
	assert.ErrorIs(t, err, domain.ErrConcurrentModification)
}

func TestMySQL_ConcurrentDecrements(t *testing.T) {
	a, db := getMySQLAdapter(t)
	ctx := context.Background()
	id := insertTestProduct(t, a, 20)
	defer db.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id)

	var successCount atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := a.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
				_, err := tx.ApplyStockDelta(ctx, id, -1)
				return err
			})
			if err == nil {
				successCount.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(20), successCount.Load())

	var stock int
	db.QueryRowContext(ctx, `SELECT stock_quantity FROM products WHERE id = ?`, id).Scan(&stock)
	assert.Equal(t, 0, stock)
}

func TestMapMySQLError(t *testing.T) {
	assert.ErrorIs(t, mapMySQLError(&mysql.MySQLError{Number: mysqlErrDeadlock}), domain.ErrConcurrentModification)
	assert.ErrorIs(t, mapMySQLError(&mysql.MySQLError{Number: mysqlErrLockWaitTimeout}), domain.ErrConcurrentModification)
	assert.ErrorIs(t, mapMySQLError(&mysql.MySQLError{Number: mysqlErrDuplicateEntry}), ErrDuplicateKey)
	assert.Equal(t, sql.ErrConnDone, mapMySQLError(sql.ErrConnDone))
}

func TestLockWaitSeconds(t *testing.T) {
	assert.Equal(t, 0, lockWaitSeconds(0))
	assert.Equal(t, 1, lockWaitSeconds(200*time.Millisecond))
	assert.Equal(t, 2, lockWaitSeconds(1500*time.Millisecond))
}
