package storage_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rl1809/pos-core/internal/adapter/messaging"
	"github.com/rl1809/pos-core/internal/adapter/storage"
	"github.com/rl1809/pos-core/internal/core/domain"
	"github.com/rl1809/pos-core/internal/core/service"
)

// setupIntegrationCore wires the core to MySQL and the Redis locker. The
// test is skipped when either backend is unreachable.
func setupIntegrationCore(t *testing.T) *service.Core {
	t.Helper()

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		mysqlDSN = "root:root@tcp(localhost:3306)/pos?parseTime=true"
	}

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	t.Cleanup(func() { rdb.Close() })

	db, err := sql.Open("mysql", mysqlDSN)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}
	if err := db.Ping(); err != nil {
		t.Skipf("MySQL not available: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store := storage.NewMySQLAdapter(db, 2*time.Second)
	require.NoError(t, store.Migrate(context.Background()))

	logger := zaptest.NewLogger(t)
	return service.New(store,
		storage.NewRedisLocker(rdb, 10*time.Second, 2*time.Second),
		messaging.NewLogPublisher(logger),
		service.WithLogger(logger),
		service.WithRetry(10, 5*time.Millisecond),
	)
}

func createIntegrationProduct(t *testing.T, core *service.Core, stock int) domain.Product {
	t.Helper()
	p, err := core.Catalog.Create(context.Background(), service.NewProduct{
		Name:         "integration item",
		Category:     "integration",
		Price:        decimal.NewFromInt(5),
		InitialStock: stock,
	}, "integration")
	require.NoError(t, err)
	return p
}

func TestIntegration_ConcurrentSales(t *testing.T) {
	core := setupIntegrationCore(t)
	ctx := context.Background()
	p := createIntegrationProduct(t, core, 10)

	var success, soldOut atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(cashier int) {
			defer wg.Done()
			actor := fmt.Sprintf("cashier-%d", cashier)
			o, err := core.Orders.Create(ctx, actor)
			if err != nil {
				t.Errorf("create order: %v", err)
				return
			}
			_, err = core.Orders.AddItem(ctx, o.ID, p.ID, 1, actor)
			switch {
			case err == nil:
				success.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
				soldOut.Add(1)
			default:
				t.Errorf("add item: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(10), success.Load())
	assert.Equal(t, int32(10), soldOut.Load())

	rec, err := core.Ledger.Reconcile(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, rec.Consistent)
	assert.Equal(t, 0, rec.Cached)
	assert.Equal(t, 10, rec.Entries)
}

func TestIntegration_FailedOperationLeavesNoTrace(t *testing.T) {
	core := setupIntegrationCore(t)
	ctx := context.Background()
	p := createIntegrationProduct(t, core, 5)

	o, err := core.Orders.Create(ctx, "integration")
	require.NoError(t, err)
	_, err = core.Orders.AddItem(ctx, o.ID, p.ID, 1, "integration")
	require.NoError(t, err)
	_, err = core.Orders.Complete(ctx, o.ID, "integration")
	require.NoError(t, err)

	_, err = core.Orders.AddItem(ctx, o.ID, p.ID, 1, "integration")
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	stock, err := core.Ledger.CurrentStock(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, stock)

	history, err := core.Ledger.History(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestIntegration_CancelRestocks(t *testing.T) {
	core := setupIntegrationCore(t)
	ctx := context.Background()
	p := createIntegrationProduct(t, core, 5)

	o, err := core.Orders.Create(ctx, "integration")
	require.NoError(t, err)
	_, err = core.Orders.AddItem(ctx, o.ID, p.ID, 3, "integration")
	require.NoError(t, err)

	cancelled, err := core.Orders.Cancel(ctx, o.ID, "integration")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, cancelled.Status)

	history, err := core.Ledger.History(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, domain.TransactionSale, history[0].Kind)
	assert.Equal(t, domain.TransactionReturn, history[1].Kind)
	assert.Equal(t, 5, history[1].StockAfter)
}
