package market

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrInvalidGrid is returned for grid bounds or level counts that cannot form a ladder.
var ErrInvalidGrid = errors.New("invalid grid")

// GridLevels returns levels evenly spaced prices from lower to upper inclusive.
//
// Each price is computed as lower + (upper-lower)*i/(levels-1) so the last rung equals
// upper exactly instead of accumulating a rounded step. A single level sits at lower.
func GridLevels(lower, upper decimal.Decimal, levels int) ([]decimal.Decimal, error) {
	if levels < 1 {
		return nil, fmt.Errorf("%w: levels must be at least 1, got %d", ErrInvalidGrid, levels)
	}
	if upper.LessThan(lower) {
		return nil, fmt.Errorf("%w: upper %s below lower %s", ErrInvalidGrid, upper, lower)
	}

	prices := make([]decimal.Decimal, levels)
	if levels == 1 {
		prices[0] = lower
		return prices, nil
	}

	span := upper.Sub(lower)
	denom := decimal.NewFromInt(int64(levels - 1))
	for i := 0; i < levels; i++ {
		prices[i] = lower.Add(span.Mul(decimal.NewFromInt(int64(i))).Div(denom))
	}
	return prices, nil
}
