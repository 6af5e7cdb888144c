package port

import "context"

// Locker hands out exclusive keyed locks shared by every writer.
type Locker interface {
	// Acquire takes keys in the order given. It waits a bounded time for each
	// key and fails with domain.ErrConcurrentModification when one stays held.
	// On failure nothing remains locked.
	Acquire(ctx context.Context, keys ...string) (release func(), err error)
}
