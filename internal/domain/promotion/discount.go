package promotion

import (
	"sort"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Calculate computes the discount the promotion yields against the cart.
// It is a pure function: the result is always non-negative and never exceeds
// the amount it discounts (the subtotal for subtotal-affecting kinds, the
// delivery fee for free delivery).
func Calculate(p *Promotion, cart Cart) decimal.Decimal {
	switch b := p.Benefit.(type) {
	case PercentOff:
		// Rounded half-up to currency precision before capping.
		amount := cart.Subtotal.Mul(b.Percent).Div(hundred).Round(2)
		return clampDiscount(amount, cart.Subtotal)
	case AmountOff:
		return clampDiscount(b.Amount, cart.Subtotal)
	case FreeDelivery:
		return clampDiscount(cart.DeliveryFee, cart.DeliveryFee)
	case BuyXGetY:
		return buyXGetY(b, cart)
	default:
		return decimal.Zero
	}
}

// buyXGetY expands line items into units sorted by unit price and makes the
// cheapest Get units free for every complete group of Buy units. Fewer than
// Buy eligible units yields no discount.
func buyXGetY(b BuyXGetY, cart Cart) decimal.Decimal {
	if b.Buy <= 0 {
		return decimal.Zero
	}
	get := b.Get
	if get <= 0 {
		get = 1
	}

	var prices []decimal.Decimal
	for _, item := range cart.Items {
		for range item.Quantity {
			prices = append(prices, item.UnitPrice)
		}
	}
	if len(prices) < b.Buy {
		return decimal.Zero
	}
	sort.Slice(prices, func(i, j int) bool {
		return prices[i].LessThan(prices[j])
	})

	free := (len(prices) / b.Buy) * get
	if free > len(prices) {
		free = len(prices)
	}

	discount := decimal.Zero
	for _, price := range prices[:free] {
		discount = discount.Add(price)
	}
	return clampDiscount(discount.Round(2), cart.Subtotal)
}

// clampDiscount bounds the discount to [0, limit].
func clampDiscount(d, limit decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	if limit.IsNegative() {
		return decimal.Zero
	}
	return decimal.Min(d, limit)
}
