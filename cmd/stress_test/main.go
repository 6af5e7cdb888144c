package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/pos-core/internal/adapter/messaging"
	"github.com/rl1809/pos-core/internal/adapter/storage"
	"github.com/rl1809/pos-core/internal/core/domain"
	"github.com/rl1809/pos-core/internal/core/service"
	"github.com/rl1809/pos-core/internal/port"
)

const (
	initialStock  = 20
	totalRequests = 50
	lockWait      = 2 * time.Second
	lockTTL       = 10 * time.Second
)

// Fires totalRequests concurrent single-unit sales at one product, each on
// its own order, and checks that exactly initialStock succeed. Set
// REDIS_ADDR to exercise the Redis locker instead of the in-process one.
func main() {
	ctx := context.Background()

	var locker port.Locker = storage.NewMemoryLocker(lockWait)
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("failed to connect redis: %v", err)
		}
		defer rdb.Close()
		locker = storage.NewRedisLocker(rdb, lockTTL, lockWait)
	}

	core := service.New(storage.NewMemoryStore(), locker, messaging.NewLogPublisher(zap.NewNop()),
		service.WithRetry(10, 2*time.Millisecond),
	)

	product, err := core.Catalog.Create(ctx, service.NewProduct{
		Name:         "stress-item",
		Category:     "stress",
		Price:        decimal.NewFromInt(10),
		InitialStock: initialStock,
	}, "stress")
	if err != nil {
		log.Fatalf("failed to create product: %v", err)
	}

	var successCount, soldOutCount, failCount atomic.Int32

	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(cashier int) {
			defer wg.Done()

			actor := fmt.Sprintf("cashier-%d", cashier)
			order, err := core.Orders.Create(ctx, actor)
			if err == nil {
				_, err = core.Orders.AddItem(ctx, order.ID, product.ID, 1, actor)
			}
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
				soldOutCount.Add(1)
			default:
				failCount.Add(1)
				log.Printf("cashier %d: %v", cashier, err)
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	success := successCount.Load()
	soldOut := soldOutCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Sold out:         %d\n", soldOut)
	fmt.Printf("Other failures:   %d\n", failCount.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	if success == initialStock && soldOut == totalRequests-initialStock {
		fmt.Printf("PASS: Exactly %d sales succeeded, %d sold out\n", initialStock, totalRequests-initialStock)
	} else {
		fmt.Printf("FAIL: Expected %d success/%d sold out, got %d/%d\n",
			initialStock, totalRequests-initialStock, success, soldOut)
	}

	rec, err := core.Ledger.Reconcile(ctx, product.ID)
	if err != nil {
		log.Fatalf("failed to reconcile: %v", err)
	}
	fmt.Printf("Final Stock:      %d (ledger replay %d over %d entries)\n", rec.Cached, rec.Replayed, rec.Entries)

	if rec.Cached == 0 && rec.Consistent {
		fmt.Println("PASS: Stock depleted to 0 and matches the ledger")
	} else {
		fmt.Printf("FAIL: Expected consistent stock 0, got cached %d replayed %d\n", rec.Cached, rec.Replayed)
	}
}
