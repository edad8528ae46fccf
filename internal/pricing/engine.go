package pricing

import "github.com/noah-isme/mamcung-storefront/internal/voucher"

// Money represents a monetary value in the smallest currency unit (VND has no minor unit).
type Money = int64

// Item describes a line item used for pricing calculation.
type Item struct {
	Qty       int
	UnitPrice Money
}

// Summary aggregates computed pricing components.
type Summary struct {
	Subtotal Money `json:"subtotal"`
	Discount Money `json:"discount"`
	Total    Money `json:"total"`
}

// Compute calculates cart totals. Lines with a non-positive quantity or price
// contribute nothing. When a voucher is bound, the discount and total are the
// amounts the validating authority returned, taken verbatim.
func Compute(items []Item, applied *voucher.Application) Summary {
	var subtotal Money
	for _, it := range items {
		if it.Qty <= 0 || it.UnitPrice <= 0 {
			continue
		}
		subtotal += Money(it.Qty) * it.UnitPrice
	}
	if applied == nil {
		return Summary{Subtotal: subtotal, Discount: 0, Total: subtotal}
	}
	return Summary{
		Subtotal: subtotal,
		Discount: applied.DiscountAmount,
		Total:    applied.FinalAmount,
	}
}
