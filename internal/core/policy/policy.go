// Package policy holds the pluggable tax and discount functions applied when
// an order's totals are recomputed.
package policy

import (
	"github.com/shopspring/decimal"

	"github.com/rl1809/pos-core/internal/core/domain"
)

// TaxPolicy maps an order subtotal to its tax amount.
type TaxPolicy func(subtotal decimal.Decimal) decimal.Decimal

// DiscountPolicy maps an order, with subtotal and tax already set, to its
// discount amount.
type DiscountPolicy func(order domain.Order) decimal.Decimal

type Policies struct {
	Tax      TaxPolicy
	Discount DiscountPolicy
}

func Default() Policies {
	return Policies{Tax: NoTax(), Discount: NoDiscount()}
}

func NoTax() TaxPolicy {
	return func(decimal.Decimal) decimal.Decimal { return decimal.Zero }
}

// FlatRate taxes the subtotal at rate (0.1 = 10%), rounded to cents.
func FlatRate(rate decimal.Decimal) TaxPolicy {
	return func(subtotal decimal.Decimal) decimal.Decimal {
		return subtotal.Mul(rate).Round(2)
	}
}

func NoDiscount() DiscountPolicy {
	return func(domain.Order) decimal.Decimal { return decimal.Zero }
}

// PercentOff discounts rate of the subtotal once it reaches minSubtotal.
func PercentOff(rate, minSubtotal decimal.Decimal) DiscountPolicy {
	return func(o domain.Order) decimal.Decimal {
		if o.Subtotal.LessThan(minSubtotal) {
			return decimal.Zero
		}
		return o.Subtotal.Mul(rate).Round(2)
	}
}

// Totals computes subtotal, tax and discount for items. Tax is floored at
// zero and the discount is clamped to [0, subtotal+tax] so the total never
// goes negative.
func (p Policies) Totals(order domain.Order, items []domain.OrderItem) (subtotal, tax, discount decimal.Decimal) {
	tp, dp := p.Tax, p.Discount
	if tp == nil {
		tp = NoTax()
	}
	if dp == nil {
		dp = NoDiscount()
	}

	subtotal = domain.Subtotal(items)
	tax = decimal.Max(tp(subtotal), decimal.Zero)

	order.Subtotal = subtotal
	order.TaxAmount = tax
	discount = dp(order)
	discount = decimal.Max(discount, decimal.Zero)
	discount = decimal.Min(discount, subtotal.Add(tax))
	return subtotal, tax, discount
}
