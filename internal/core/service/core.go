// Package service holds the POS use cases: the inventory ledger, the product
// catalog, the order lifecycle, payments, accounting and reports. Every
// mutating call runs as one unit of work that takes keyed locks in a global
// order, commits in a single store transaction and publishes its events
// after commit.
package service

import (
	"github.com/rl1809/pos-core/internal/port"
)

// Core bundles the services that share one store, locker and publisher.
type Core struct {
	Ledger     *Ledger
	Catalog    *Catalog
	Orders     *OrderService
	Payments   *PaymentService
	Accounting *AccountingService
	Reports    *ReportService
}

func New(store port.Store, locker port.Locker, publisher port.EventPublisher, opts ...Option) *Core {
	exec := newExecutor(store, locker, publisher, opts...)
	ledger := &Ledger{exec: exec}
	return &Core{
		Ledger:     ledger,
		Catalog:    &Catalog{exec: exec, ledger: ledger},
		Orders:     &OrderService{exec: exec},
		Payments:   &PaymentService{exec: exec},
		Accounting: &AccountingService{exec: exec},
		Reports:    &ReportService{exec: exec},
	}
}
