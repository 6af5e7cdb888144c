package service

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/pos-core/internal/core/domain"
	"github.com/rl1809/pos-core/internal/port"
)

type DailySales struct {
	Day    time.Time
	Orders int
	Total  decimal.Decimal
}

type SalesReport struct {
	From   time.Time
	To     time.Time
	Days   []DailySales
	Orders int
	Total  decimal.Decimal
}

type CategoryValuation struct {
	Category   string
	Products   int
	Units      int
	TotalValue decimal.Decimal
}

type InventoryValuation struct {
	Categories []CategoryValuation
	TotalValue decimal.Decimal
}

type FinancialSummary struct {
	From     time.Time
	To       time.Time
	Sales    decimal.Decimal
	Expenses decimal.Decimal
	Refunds  decimal.Decimal
	Profit   decimal.Decimal
}

// ReportService aggregates over snapshot reads and takes no locks.
type ReportService struct {
	exec *executor
}

// SalesReport sums completed orders created in [from, to), bucketed by UTC
// calendar day of creation.
func (s *ReportService) SalesReport(ctx context.Context, from, to time.Time) (SalesReport, error) {
	report := SalesReport{From: from, To: to, Total: decimal.Zero}
	if !to.After(from) {
		return report, nil
	}

	var orders []domain.Order
	err := s.exec.snapshot(ctx, "report.sales", func(ctx context.Context, r port.Reader) error {
		var err error
		orders, err = r.ListOrders(ctx, port.OrderFilter{
			Status: domain.OrderStatusCompleted,
			From:   from,
			To:     to,
		})
		return err
	})
	if err != nil {
		return SalesReport{}, err
	}

	byDay := make(map[time.Time]*DailySales)
	for _, o := range orders {
		day := utcDay(o.CreatedAt)
		d, ok := byDay[day]
		if !ok {
			d = &DailySales{Day: day, Total: decimal.Zero}
			byDay[day] = d
		}
		d.Orders++
		d.Total = d.Total.Add(o.TotalAmount)
		report.Orders++
		report.Total = report.Total.Add(o.TotalAmount)
	}

	report.Days = make([]DailySales, 0, len(byDay))
	for _, d := range byDay {
		report.Days = append(report.Days, *d)
	}
	slices.SortFunc(report.Days, func(a, b DailySales) int { return a.Day.Compare(b.Day) })
	return report, nil
}

func utcDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// InventoryValuation values current stock at list price, per category.
func (s *ReportService) InventoryValuation(ctx context.Context) (InventoryValuation, error) {
	byCategory := make(map[string]*CategoryValuation)
	err := s.exec.snapshot(ctx, "report.inventory_valuation", func(ctx context.Context, r port.Reader) error {
		after := ""
		for {
			page, err := r.ListProducts(ctx, after, s.exec.pageSize)
			if err != nil {
				return err
			}
			for _, p := range page {
				c, ok := byCategory[p.Category]
				if !ok {
					c = &CategoryValuation{Category: p.Category, TotalValue: decimal.Zero}
					byCategory[p.Category] = c
				}
				c.Products++
				c.Units += p.StockQuantity
				c.TotalValue = c.TotalValue.Add(p.StockValue())
			}
			if len(page) < s.exec.pageSize {
				return nil
			}
			after = page[len(page)-1].ID
		}
	})
	if err != nil {
		return InventoryValuation{}, err
	}

	v := InventoryValuation{
		Categories: make([]CategoryValuation, 0, len(byCategory)),
		TotalValue: decimal.Zero,
	}
	for _, c := range byCategory {
		v.Categories = append(v.Categories, *c)
		v.TotalValue = v.TotalValue.Add(c.TotalValue)
	}
	slices.SortFunc(v.Categories, func(a, b CategoryValuation) int {
		return cmp.Compare(a.Category, b.Category)
	})
	return v, nil
}

// FinancialReport totals the accounting ledger over [from, to). Profit is
// sales minus expenses; refunds are reported alongside.
func (s *ReportService) FinancialReport(ctx context.Context, from, to time.Time) (FinancialSummary, error) {
	summary := FinancialSummary{
		From:     from,
		To:       to,
		Sales:    decimal.Zero,
		Expenses: decimal.Zero,
		Refunds:  decimal.Zero,
		Profit:   decimal.Zero,
	}
	if !to.After(from) {
		return summary, nil
	}

	var entries []domain.FinancialTransaction
	err := s.exec.snapshot(ctx, "report.financial", func(ctx context.Context, r port.Reader) error {
		var err error
		entries, err = r.ListFinancialTransactions(ctx, from, to)
		return err
	})
	if err != nil {
		return FinancialSummary{}, err
	}

	for _, ft := range entries {
		switch ft.Kind {
		case domain.FinancialSale:
			summary.Sales = summary.Sales.Add(ft.Amount)
		case domain.FinancialExpense:
			summary.Expenses = summary.Expenses.Add(ft.Amount)
		case domain.FinancialRefund:
			summary.Refunds = summary.Refunds.Add(ft.Amount)
		}
	}
	summary.Profit = summary.Sales.Sub(summary.Expenses)
	return summary, nil
}
