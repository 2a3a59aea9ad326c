package market

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// ApplySlippage models adverse execution against the quoted price:
// buys fill slippagePct percent higher, sells slippagePct percent lower.
func ApplySlippage(price decimal.Decimal, side Side, slippagePct decimal.Decimal) decimal.Decimal {
	s := slippagePct.Div(hundred)
	if side == SideBuy {
		return price.Mul(decimal.NewFromInt(1).Add(s))
	}
	return price.Mul(decimal.NewFromInt(1).Sub(s))
}

// Fee returns the fee charged on a fill of the given notional.
func Fee(notional decimal.Decimal, feePct decimal.Decimal) decimal.Decimal {
	return notional.Mul(feePct).Div(hundred)
}
