package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/rl1809/pos-core/internal/core/domain"
)

// AccountingService books money movements that do not come from an order
// lifecycle transition.
type AccountingService struct {
	exec *executor
}

func (s *AccountingService) RecordExpense(ctx context.Context, amount decimal.Decimal, description, actorID string) (domain.FinancialTransaction, error) {
	if !amount.IsPositive() {
		return domain.FinancialTransaction{}, fmt.Errorf("%w: expense must be positive, got %s", domain.ErrInvalidAmount, amount)
	}

	ft := domain.FinancialTransaction{
		ID:          s.exec.newID(),
		Kind:        domain.FinancialExpense,
		Amount:      amount,
		ActorID:     actorID,
		Description: description,
		CreatedAt:   s.exec.now(),
	}
	err := s.exec.run(ctx, "accounting.record_expense", noLocks, func(ctx context.Context, uow *unitOfWork) error {
		if err := uow.InsertFinancialTransaction(ctx, ft); err != nil {
			return err
		}
		uow.emit(financialEvent(ft))
		return nil
	})
	if err != nil {
		return domain.FinancialTransaction{}, err
	}
	return ft, nil
}

// RecordRefund books money paid back to a customer. When orderID is set the
// order must be completed.
func (s *AccountingService) RecordRefund(ctx context.Context, orderID string, amount decimal.Decimal, description, actorID string) (domain.FinancialTransaction, error) {
	if !amount.IsPositive() {
		return domain.FinancialTransaction{}, fmt.Errorf("%w: refund must be positive, got %s", domain.ErrInvalidAmount, amount)
	}

	plan := noLocks
	if orderID != "" {
		plan = fixedLocks(orderID)
	}

	ft := domain.FinancialTransaction{
		ID:          s.exec.newID(),
		Kind:        domain.FinancialRefund,
		Amount:      amount,
		OrderID:     orderID,
		ActorID:     actorID,
		Description: description,
		CreatedAt:   s.exec.now(),
	}
	err := s.exec.run(ctx, "accounting.record_refund", plan, func(ctx context.Context, uow *unitOfWork) error {
		if orderID != "" {
			order, err := uow.GetOrder(ctx, orderID)
			if err != nil {
				return err
			}
			if order.Status != domain.OrderStatusCompleted {
				return fmt.Errorf("%w: cannot refund order %s in status %s", domain.ErrInvalidState, orderID, order.Status)
			}
		}
		if err := uow.InsertFinancialTransaction(ctx, ft); err != nil {
			return err
		}
		uow.emit(financialEvent(ft))
		return nil
	})
	if err != nil {
		return domain.FinancialTransaction{}, err
	}
	return ft, nil
}
