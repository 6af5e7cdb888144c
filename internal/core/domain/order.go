package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending: {OrderStatusCompleted, OrderStatusCancelled},
}

func (s OrderStatus) IsTerminal() bool {
	return len(orderTransitions[s]) == 0
}

// Transition returns the target status when the edge s -> to exists.
func (s OrderStatus) Transition(to OrderStatus) (OrderStatus, error) {
	for _, allowed := range orderTransitions[s] {
		if allowed == to {
			return to, nil
		}
	}
	return s, fmt.Errorf("%w: cannot move order from %s to %s", ErrInvalidState, s, to)
}

type Order struct {
	ID             string
	Status         OrderStatus
	Subtotal       decimal.Decimal
	TaxAmount      decimal.Decimal
	DiscountAmount decimal.Decimal
	TotalAmount    decimal.Decimal
	ActorID        string
	ItemIDs        []string
	Version        int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
	CompletedAt    *time.Time
	CancelledAt    *time.Time
}

func NewOrder(id, actorID string, now time.Time) Order {
	return Order{
		ID:             id,
		Status:         OrderStatusPending,
		Subtotal:       decimal.Zero,
		TaxAmount:      decimal.Zero,
		DiscountAmount: decimal.Zero,
		TotalAmount:    decimal.Zero,
		ActorID:        actorID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// EnsureModifiable fails unless items may still be added or removed.
func (o Order) EnsureModifiable() error {
	if o.Status != OrderStatusPending {
		return fmt.Errorf("%w: order %s is %s", ErrInvalidState, o.ID, o.Status)
	}
	return nil
}

// Complete moves the order to completed.
func (o *Order) Complete(now time.Time) error {
	next, err := o.Status.Transition(OrderStatusCompleted)
	if err != nil {
		return err
	}
	o.Status = next
	o.CompletedAt = &now
	o.UpdatedAt = now
	return nil
}

// Cancel moves the order to cancelled.
func (o *Order) Cancel(now time.Time) error {
	next, err := o.Status.Transition(OrderStatusCancelled)
	if err != nil {
		return err
	}
	o.Status = next
	o.CancelledAt = &now
	o.UpdatedAt = now
	return nil
}

// ApplyTotals sets the monetary fields so that
// total = subtotal + tax - discount holds.
func (o *Order) ApplyTotals(subtotal, tax, discount decimal.Decimal) {
	o.Subtotal = subtotal
	o.TaxAmount = tax
	o.DiscountAmount = discount
	o.TotalAmount = subtotal.Add(tax).Sub(discount)
}

type OrderItem struct {
	ID         string
	OrderID    string
	ProductID  string
	Quantity   int
	UnitPrice  decimal.Decimal
	TotalPrice decimal.Decimal
	CreatedAt  time.Time
}

func NewOrderItem(id, orderID, productID string, quantity int, unitPrice decimal.Decimal, now time.Time) OrderItem {
	return OrderItem{
		ID:         id,
		OrderID:    orderID,
		ProductID:  productID,
		Quantity:   quantity,
		UnitPrice:  unitPrice,
		TotalPrice: unitPrice.Mul(decimal.NewFromInt(int64(quantity))),
		CreatedAt:  now,
	}
}

func Subtotal(items []OrderItem) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(it.TotalPrice)
	}
	return sum
}
