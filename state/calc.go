package state

import "github.com/shopspring/decimal"

// SellPerBuyRate is the displayed exchange rate: how much of the sell
// asset one unit of the buy asset costs. Nil when either side is missing
// or the buy amount is zero.
func SellPerBuyRate(sellAmount, buyAmount *decimal.Decimal) *decimal.Decimal {
	if sellAmount == nil || buyAmount == nil || buyAmount.IsZero() {
		return nil
	}
	rate := sellAmount.Div(*buyAmount)
	return &rate
}
