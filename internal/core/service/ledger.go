package service

import (
	"context"
	"fmt"
	"iter"

	"go.uber.org/zap"

	"github.com/rl1809/pos-core/internal/core/domain"
	"github.com/rl1809/pos-core/internal/port"
)

// Entry describes one ledger append.
type Entry struct {
	ProductID string
	Delta     int
	Kind      domain.TransactionKind
	ActorID   string
	Reason    string
	Reference string
}

// Reconciliation compares the cached stock counter with the value obtained
// by replaying the product's ledger.
type Reconciliation struct {
	ProductID  string
	Cached     int
	Replayed   int
	Entries    int
	Consistent bool
}

// Ledger is the append-only log of stock movements and the only writer of
// a product's stock counter.
type Ledger struct {
	exec *executor
}

// Append records delta against the product and returns the new entry's id.
func (l *Ledger) Append(ctx context.Context, productID string, delta int, kind domain.TransactionKind, actorID string) (string, error) {
	return l.AppendEntry(ctx, Entry{
		ProductID: productID,
		Delta:     delta,
		Kind:      kind,
		ActorID:   actorID,
	})
}

func (l *Ledger) AppendEntry(ctx context.Context, e Entry) (string, error) {
	if err := e.Kind.ValidateDelta(e.Delta); err != nil {
		return "", err
	}

	var id string
	err := l.exec.run(ctx, "ledger.append", fixedLocks("", e.ProductID), func(ctx context.Context, uow *unitOfWork) error {
		t, err := l.exec.appendEntry(ctx, uow, e)
		id = t.ID
		return err
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// appendEntry writes the log row and moves the cached counter inside uow.
// Decreasing deltas fail with domain.ErrInsufficientStock rather than take
// stock below zero.
func (e *executor) appendEntry(ctx context.Context, uow *unitOfWork, entry Entry) (domain.InventoryTransaction, error) {
	if err := entry.Kind.ValidateDelta(entry.Delta); err != nil {
		return domain.InventoryTransaction{}, err
	}

	product, err := uow.GetProduct(ctx, entry.ProductID)
	if err != nil {
		return domain.InventoryTransaction{}, err
	}

	stock, err := uow.ApplyStockDelta(ctx, entry.ProductID, entry.Delta)
	if err != nil {
		return domain.InventoryTransaction{}, err
	}

	t := domain.InventoryTransaction{
		ID:            e.newID(),
		ProductID:     entry.ProductID,
		QuantityDelta: entry.Delta,
		Kind:          entry.Kind,
		ActorID:       entry.ActorID,
		Reason:        entry.Reason,
		Reference:     entry.Reference,
		StockAfter:    stock,
		CreatedAt:     e.now(),
	}
	if err := uow.InsertInventoryTransaction(ctx, t); err != nil {
		return domain.InventoryTransaction{}, err
	}

	if product.StockQuantity > product.ReorderThreshold && stock <= product.ReorderThreshold {
		uow.emit(domain.Event{
			Type:        domain.EventLowStock,
			AggregateID: product.ID,
			OccurredAt:  t.CreatedAt,
			Payload: domain.LowStockAlert{
				ProductID: product.ID,
				Stock:     stock,
				Threshold: product.ReorderThreshold,
			},
		})
	}
	return t, nil
}

func (l *Ledger) CurrentStock(ctx context.Context, productID string) (int, error) {
	var stock int
	err := l.exec.snapshot(ctx, "ledger.current_stock", func(ctx context.Context, r port.Reader) error {
		p, err := r.GetProduct(ctx, productID)
		stock = p.StockQuantity
		return err
	})
	return stock, err
}

// History returns the product's entries in append order.
func (l *Ledger) History(ctx context.Context, productID string) ([]domain.InventoryTransaction, error) {
	var entries []domain.InventoryTransaction
	err := l.exec.snapshot(ctx, "ledger.history", func(ctx context.Context, r port.Reader) error {
		if _, err := r.GetProduct(ctx, productID); err != nil {
			return err
		}
		var err error
		entries, err = r.ListInventoryTransactions(ctx, productID)
		return err
	})
	return entries, err
}

func (l *Ledger) Reconcile(ctx context.Context, productID string) (Reconciliation, error) {
	var rec Reconciliation
	err := l.exec.snapshot(ctx, "ledger.reconcile", func(ctx context.Context, r port.Reader) error {
		p, err := r.GetProduct(ctx, productID)
		if err != nil {
			return err
		}
		entries, err := r.ListInventoryTransactions(ctx, productID)
		if err != nil {
			return err
		}
		rec = Reconciliation{
			ProductID: productID,
			Cached:    p.StockQuantity,
			Replayed:  domain.ReplayStock(p.InitialStock, entries),
			Entries:   len(entries),
		}
		rec.Consistent = rec.Cached == rec.Replayed
		return nil
	})
	if err != nil {
		return Reconciliation{}, err
	}
	if !rec.Consistent {
		l.exec.logger.Warn("Stock counter diverges from ledger",
			zap.String("product_id", productID),
			zap.Int("cached", rec.Cached),
			zap.Int("replayed", rec.Replayed),
		)
	}
	return rec, nil
}

// LowStock yields the ids of products at or below their reorder threshold
// that also satisfy pred, when given. Products are read page by page as the
// caller consumes the sequence; ranging over it again starts a fresh scan.
func (l *Ledger) LowStock(ctx context.Context, pred func(domain.Product) bool) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		after := ""
		for {
			var page []domain.Product
			err := l.exec.snapshot(ctx, "ledger.low_stock", func(ctx context.Context, r port.Reader) error {
				var err error
				page, err = r.ListProducts(ctx, after, l.exec.pageSize)
				return err
			})
			if err != nil {
				yield("", fmt.Errorf("scan products after %q: %w", after, err))
				return
			}

			for _, p := range page {
				if !p.IsLowStock() || (pred != nil && !pred(p)) {
					continue
				}
				if !yield(p.ID, nil) {
					return
				}
			}

			if len(page) < l.exec.pageSize {
				return
			}
			after = page[len(page)-1].ID
		}
	}
}
