package trader

import (
	"fmt"

	"binance-futures-bot-go/internal/binance"
	"github.com/shopspring/decimal"
)

// ValidateQuantity checks qty against the LOT_SIZE filter.
// The step check is exact: (qty - minQty) must be an integer multiple of stepSize.
func ValidateQuantity(filters binance.SymbolFilters, qty decimal.Decimal) (bool, string) {
	lot := filters.LotSize
	if qty.LessThan(lot.MinQty) || qty.GreaterThan(lot.MaxQty) {
		return false, fmt.Sprintf("quantity %s outside [%s, %s]", qty, lot.MinQty, lot.MaxQty)
	}
	// A zero step means the exchange does not constrain granularity.
	if !lot.StepSize.IsZero() && !qty.Sub(lot.MinQty).Mod(lot.StepSize).IsZero() {
		return false, fmt.Sprintf("quantity %s not a multiple of step %s", qty, lot.StepSize)
	}
	return true, ""
}

// ValidatePrice checks price against the PRICE_FILTER filter.
func ValidatePrice(filters binance.SymbolFilters, price decimal.Decimal) (bool, string) {
	pf := filters.PriceFilter
	// maxPrice 0 disables the upper bound.
	if price.LessThan(pf.MinPrice) || (!pf.MaxPrice.IsZero() && price.GreaterThan(pf.MaxPrice)) {
		return false, fmt.Sprintf("price %s outside [%s, %s]", price, pf.MinPrice, pf.MaxPrice)
	}
	if !pf.TickSize.IsZero() && !price.Sub(pf.MinPrice).Mod(pf.TickSize).IsZero() {
		return false, fmt.Sprintf("price %s not aligned to tick %s", price, pf.TickSize)
	}
	return true, ""
}
