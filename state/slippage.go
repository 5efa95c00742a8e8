package state

import (
	"regexp"

	"github.com/shopspring/decimal"

	"github.com/maspnet/shieldswap/models"
)

// DefaultSlippage is the slippage fraction used when the user has not set
// an override (0.1%).
var DefaultSlippage = decimal.NewFromFloat(0.001)

// User slippage input is a percentage with at most one integer digit and
// one fractional digit, e.g. "0.5".
var slippageInputRe = regexp.MustCompile(`^\d(\.\d?)?$`)

// ParseSlippageInput converts a typed percentage string into a fraction
// override. Anything that does not match the allowed shape (including the
// empty string) yields nil, which reverts to the default.
func ParseSlippageInput(input string) *decimal.Decimal {
	if !slippageInputRe.MatchString(input) {
		return nil
	}
	pct, err := decimal.NewFromString(input)
	if err != nil {
		return nil
	}
	frac := pct.Div(decimal.NewFromInt(100))
	return &frac
}

// MinAmount computes the minimum acceptable output amount for a quote
// under the given slippage fraction: quote.amount * (1 - slippage).
// Undefined (nil) when there is no quote.
func MinAmount(q *models.Quote, slippage decimal.Decimal) *decimal.Decimal {
	if q == nil {
		return nil
	}
	v := q.Amount.Mul(decimal.NewFromInt(1).Sub(slippage))
	return &v
}
