package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/rl1809/pos-core/internal/core/domain"
	"github.com/rl1809/pos-core/internal/port"
)

// OrderView is an order with its line items in insertion order.
type OrderView struct {
	domain.Order
	Items []domain.OrderItem
}

type OrderService struct {
	exec *executor
}

func (s *OrderService) Create(ctx context.Context, actorID string) (domain.Order, error) {
	order := domain.NewOrder(s.exec.newID(), actorID, s.exec.now())
	err := s.exec.run(ctx, "order.create", fixedLocks(order.ID), func(ctx context.Context, uow *unitOfWork) error {
		return uow.InsertOrder(ctx, order)
	})
	if err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

// AddItem sells quantity units of the product on the order at the current
// list price. The stock decrement, the new item and the recomputed totals
// commit together or not at all.
func (s *OrderService) AddItem(ctx context.Context, orderID, productID string, quantity int, actorID string) (domain.OrderItem, error) {
	if quantity <= 0 {
		return domain.OrderItem{}, fmt.Errorf("%w: quantity must be positive, got %d", domain.ErrInvalidQuantity, quantity)
	}

	var item domain.OrderItem
	err := s.exec.run(ctx, "order.add_item", fixedLocks(orderID, productID), func(ctx context.Context, uow *unitOfWork) error {
		order, err := uow.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if err := order.EnsureModifiable(); err != nil {
			return err
		}

		product, err := uow.GetProduct(ctx, productID)
		if err != nil {
			return err
		}

		_, err = s.exec.appendEntry(ctx, uow, Entry{
			ProductID: productID,
			Delta:     -quantity,
			Kind:      domain.TransactionSale,
			ActorID:   actorID,
			Reason:    "order item added",
			Reference: orderID,
		})
		if err != nil {
			return err
		}

		item = domain.NewOrderItem(s.exec.newID(), orderID, productID, quantity, product.Price, s.exec.now())
		if err := uow.InsertOrderItem(ctx, item); err != nil {
			return err
		}
		return s.recomputeTotals(ctx, uow, order)
	})
	if err != nil {
		return domain.OrderItem{}, err
	}

	s.exec.logger.Info("Item added to order",
		zap.String("order_id", orderID),
		zap.String("product_id", productID),
		zap.Int("quantity", quantity),
	)
	return item, nil
}

// RemoveItem takes the item off a pending order and returns its units to
// stock.
func (s *OrderService) RemoveItem(ctx context.Context, orderID, itemID, actorID string) error {
	plan := func(ctx context.Context, store port.Store) ([]string, error) {
		var item domain.OrderItem
		err := store.Snapshot(ctx, func(ctx context.Context, r port.Reader) error {
			var err error
			item, err = r.GetOrderItem(ctx, itemID)
			return err
		})
		if err != nil {
			return nil, err
		}
		if item.OrderID != orderID {
			return nil, fmt.Errorf("%w: item %s on order %s", domain.ErrNotFound, itemID, orderID)
		}
		return lockKeys(orderID, item.ProductID), nil
	}

	return s.exec.run(ctx, "order.remove_item", plan, func(ctx context.Context, uow *unitOfWork) error {
		order, err := uow.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if err := order.EnsureModifiable(); err != nil {
			return err
		}

		// removed by a concurrent call between planning and locking
		item, err := uow.GetOrderItem(ctx, itemID)
		if err != nil {
			return err
		}

		_, err = s.exec.appendEntry(ctx, uow, Entry{
			ProductID: item.ProductID,
			Delta:     item.Quantity,
			Kind:      domain.TransactionReturn,
			ActorID:   actorID,
			Reason:    "order item removed",
			Reference: orderID,
		})
		if err != nil {
			return err
		}

		if err := uow.DeleteOrderItem(ctx, itemID); err != nil {
			return err
		}
		return s.recomputeTotals(ctx, uow, order)
	})
}

// recomputeTotals derives the order's money fields from its current items
// and writes the order back.
func (s *OrderService) recomputeTotals(ctx context.Context, uow *unitOfWork, order domain.Order) error {
	items, err := uow.ListOrderItems(ctx, order.ID)
	if err != nil {
		return err
	}
	order.ApplyTotals(s.exec.policies.Totals(order, items))
	order.UpdatedAt = s.exec.now()
	return uow.UpdateOrder(ctx, order)
}

// Complete closes the order as paid-out and books its total as a sale.
// Payment coverage is not checked.
func (s *OrderService) Complete(ctx context.Context, orderID, actorID string) (domain.Order, error) {
	var order domain.Order
	err := s.exec.run(ctx, "order.complete", fixedLocks(orderID), func(ctx context.Context, uow *unitOfWork) error {
		var err error
		order, err = uow.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		now := s.exec.now()
		if err := order.Complete(now); err != nil {
			return err
		}
		if err := uow.UpdateOrder(ctx, order); err != nil {
			return err
		}
		order.Version++

		ft := domain.FinancialTransaction{
			ID:          s.exec.newID(),
			Kind:        domain.FinancialSale,
			Amount:      order.TotalAmount,
			OrderID:     order.ID,
			ActorID:     actorID,
			Description: "order " + order.ID + " completed",
			CreatedAt:   now,
		}
		if err := uow.InsertFinancialTransaction(ctx, ft); err != nil {
			return err
		}

		uow.emit(domain.Event{
			Type:        domain.EventOrderCompleted,
			AggregateID: order.ID,
			OccurredAt:  now,
			Payload:     orderPayload(order),
		})
		uow.emit(financialEvent(ft))
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.exec.logger.Info("Order completed",
		zap.String("order_id", order.ID),
		zap.String("total", order.TotalAmount.StringFixed(2)),
	)
	return order, nil
}

// Cancel voids a pending order and returns every item's units to stock.
func (s *OrderService) Cancel(ctx context.Context, orderID, actorID string) (domain.Order, error) {
	plan := func(ctx context.Context, store port.Store) ([]string, error) {
		products, err := orderProducts(ctx, store, orderID)
		if err != nil {
			return nil, err
		}
		return lockKeys(orderID, products...), nil
	}

	var order domain.Order
	err := s.exec.run(ctx, "order.cancel", plan, func(ctx context.Context, uow *unitOfWork) error {
		var err error
		order, err = uow.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		now := s.exec.now()
		if err := order.Cancel(now); err != nil {
			return err
		}

		items, err := uow.ListOrderItems(ctx, orderID)
		if err != nil {
			return err
		}
		for _, it := range items {
			if !uow.holds(productKey(it.ProductID)) {
				return fmt.Errorf("%w: order %s gained product %s while locking", domain.ErrConcurrentModification, orderID, it.ProductID)
			}
		}

		for _, it := range items {
			_, err := s.exec.appendEntry(ctx, uow, Entry{
				ProductID: it.ProductID,
				Delta:     it.Quantity,
				Kind:      domain.TransactionReturn,
				ActorID:   actorID,
				Reason:    "order cancelled",
				Reference: orderID,
			})
			if err != nil {
				return err
			}
		}

		if err := uow.UpdateOrder(ctx, order); err != nil {
			return err
		}
		order.Version++

		uow.emit(domain.Event{
			Type:        domain.EventOrderCancelled,
			AggregateID: order.ID,
			OccurredAt:  now,
			Payload:     orderPayload(order),
		})
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.exec.logger.Info("Order cancelled", zap.String("order_id", order.ID))
	return order, nil
}

func orderProducts(ctx context.Context, store port.Store, orderID string) ([]string, error) {
	var products []string
	err := store.Snapshot(ctx, func(ctx context.Context, r port.Reader) error {
		if _, err := r.GetOrder(ctx, orderID); err != nil {
			return err
		}
		items, err := r.ListOrderItems(ctx, orderID)
		if err != nil {
			return err
		}
		for _, it := range items {
			products = append(products, it.ProductID)
		}
		return nil
	})
	return products, err
}

func (s *OrderService) Get(ctx context.Context, orderID string) (OrderView, error) {
	var view OrderView
	err := s.exec.snapshot(ctx, "order.get", func(ctx context.Context, r port.Reader) error {
		order, err := r.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		items, err := r.ListOrderItems(ctx, orderID)
		if err != nil {
			return err
		}
		view = OrderView{Order: order, Items: items}
		return nil
	})
	return view, err
}

func (s *OrderService) List(ctx context.Context, filter port.OrderFilter) ([]domain.Order, error) {
	var orders []domain.Order
	err := s.exec.snapshot(ctx, "order.list", func(ctx context.Context, r port.Reader) error {
		var err error
		orders, err = r.ListOrders(ctx, filter)
		return err
	})
	return orders, err
}

type orderEvent struct {
	OrderID     string `json:"order_id"`
	Status      string `json:"status"`
	TotalAmount string `json:"total_amount"`
	ActorID     string `json:"actor_id"`
}

func orderPayload(o domain.Order) orderEvent {
	return orderEvent{
		OrderID:     o.ID,
		Status:      string(o.Status),
		TotalAmount: o.TotalAmount.StringFixed(2),
		ActorID:     o.ActorID,
	}
}
