package service

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// DiscountedPrice returns price * (1 - pct/100) rounded to two decimals.
func DiscountedPrice(price, pct decimal.Decimal) decimal.Decimal {
	return price.Mul(hundred.Sub(pct).Div(hundred)).Round(2)
}

// ValidateDiscount accepts percentages strictly between 0 and 100.
func ValidateDiscount(pct decimal.Decimal) error {
	if !pct.IsPositive() || !pct.LessThan(hundred) {
		return invalidf("discount must be between 0 and 100, got %s", pct.String())
	}
	return nil
}
