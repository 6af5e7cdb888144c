package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/pos-core/internal/core/domain"
	"github.com/rl1809/pos-core/internal/port"
)

type PaymentService struct {
	exec *executor
}

// RecordPayment attaches a payment to a pending order. It never touches
// inventory or the order's status.
func (s *PaymentService) RecordPayment(ctx context.Context, orderID string, amount decimal.Decimal, method domain.PaymentMethod, notes, actorID string) (domain.Payment, error) {
	if !amount.IsPositive() {
		return domain.Payment{}, fmt.Errorf("%w: payment amount must be positive, got %s", domain.ErrInvalidAmount, amount)
	}
	if method == "" {
		method = domain.PaymentCash
	}

	var payment domain.Payment
	err := s.exec.run(ctx, "payment.record", fixedLocks(orderID), func(ctx context.Context, uow *unitOfWork) error {
		order, err := uow.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status != domain.OrderStatusPending {
			return fmt.Errorf("%w: cannot pay order %s in status %s", domain.ErrInvalidState, orderID, order.Status)
		}

		payment = domain.Payment{
			ID:        s.exec.newID(),
			OrderID:   orderID,
			Amount:    amount,
			Method:    method,
			Notes:     notes,
			ActorID:   actorID,
			CreatedAt: s.exec.now(),
		}
		return uow.InsertPayment(ctx, payment)
	})
	if err != nil {
		return domain.Payment{}, err
	}

	s.exec.logger.Info("Payment recorded",
		zap.String("order_id", orderID),
		zap.String("amount", amount.StringFixed(2)),
		zap.String("method", string(method)),
	)
	return payment, nil
}

func (s *PaymentService) Payments(ctx context.Context, orderID string) ([]domain.Payment, error) {
	var payments []domain.Payment
	err := s.exec.snapshot(ctx, "payment.list", func(ctx context.Context, r port.Reader) error {
		if _, err := r.GetOrder(ctx, orderID); err != nil {
			return err
		}
		var err error
		payments, err = r.ListPayments(ctx, orderID)
		return err
	})
	return payments, err
}

// Summary reports the order total, the sum paid so far and the remaining
// balance. Overpayment shows as a negative balance.
func (s *PaymentService) Summary(ctx context.Context, orderID string) (domain.PaymentSummary, error) {
	var summary domain.PaymentSummary
	err := s.exec.snapshot(ctx, "payment.summary", func(ctx context.Context, r port.Reader) error {
		order, err := r.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		payments, err := r.ListPayments(ctx, orderID)
		if err != nil {
			return err
		}
		paid := decimal.Zero
		for _, p := range payments {
			paid = paid.Add(p.Amount)
		}
		summary = domain.PaymentSummary{
			OrderID: orderID,
			Total:   order.TotalAmount,
			Paid:    paid,
			Balance: order.TotalAmount.Sub(paid),
		}
		return nil
	})
	return summary, err
}
