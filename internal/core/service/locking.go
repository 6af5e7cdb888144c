package service

import (
	"context"
	"slices"

	"github.com/rl1809/pos-core/internal/port"
)

// lockPlan yields the keys a unit of work must hold. It runs before the
// locks are taken, so plans derived from stored data must be re-checked
// under lock.
type lockPlan func(ctx context.Context, store port.Store) ([]string, error)

func productKey(id string) string { return "product:" + id }

func orderKey(id string) string { return "order:" + id }

// lockKeys returns product keys sorted and deduplicated, then the order key.
// Every writer acquires in this order, so two units of work can never wait
// on each other in a cycle.
func lockKeys(orderID string, productIDs ...string) []string {
	keys := make([]string, 0, len(productIDs)+1)
	for _, id := range productIDs {
		keys = append(keys, productKey(id))
	}
	slices.Sort(keys)
	keys = slices.Compact(keys)
	if orderID != "" {
		keys = append(keys, orderKey(orderID))
	}
	return keys
}

func fixedLocks(orderID string, productIDs ...string) lockPlan {
	keys := lockKeys(orderID, productIDs...)
	return func(context.Context, port.Store) ([]string, error) {
		return keys, nil
	}
}

var noLocks lockPlan = func(context.Context, port.Store) ([]string, error) {
	return nil, nil
}
