// Package discount holds the pricing math applied to recharge orders. The
// group-membership lookup lives in the store; these functions are pure so the
// amount cross-check during reconciliation sees the exact same numbers as
// order creation.
package discount

import "math"

// NoDiscount is the rate meaning "pay full price".
const NoDiscount = 100

// Apply returns price scaled by rate percent, rounded to 2 decimal places.
// Discounts that would push the price below one cent are not applied and the
// rounded original price is returned instead, so near-zero-price orders
// cannot be created.
func Apply(price float64, rate int) float64 {
	discounted := round2(price * float64(rate) / 100)
	if discounted < 0.01 {
		return round2(price)
	}
	return discounted
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
