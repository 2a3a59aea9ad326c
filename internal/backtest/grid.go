package backtest

import (
	"fmt"
	"time"

	"binance-futures-bot-go/internal/market"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// GridParams describes a simulated buy grid.
type GridParams struct {
	Lower       decimal.Decimal
	Upper       decimal.Decimal
	Levels      int
	QtyPerLevel decimal.Decimal
	SlippagePct decimal.Decimal
	FeePct      decimal.Decimal
}

// GridFill is one grid level that was bought and then closed.
type GridFill struct {
	LevelPrice    decimal.Decimal
	BuyTimestamp  time.Time
	BuyPrice      decimal.Decimal
	SellTimestamp time.Time
	SellPrice     decimal.Decimal
	Fees          decimal.Decimal
	PnL           decimal.Decimal
	// ClosedAtEnd is set when no later tick traded above the entry and the
	// level was closed at the last tick.
	ClosedAtEnd bool
}

type GridResult struct {
	Params   GridParams
	Levels   []decimal.Decimal
	Fills    []GridFill
	TotalPnL decimal.Decimal
	Wins     int
	Losses   int
}

// SimulateGrid evaluates every level on its own against the whole tick sequence.
// A level buys at the first tick priced at or below it and sells at the first later
// tick priced strictly above that tick, or at the last tick. Levels that never
// fill produce no row.
func (s *Simulator) SimulateGrid(ticks []Tick, p GridParams) (*GridResult, error) {
	if len(ticks) == 0 {
		return nil, ErrNoTicks
	}
	if !p.QtyPerLevel.IsPositive() {
		return nil, fmt.Errorf("%w: quantity per level must be positive, got %s", ErrInvalidParams, p.QtyPerLevel)
	}
	if p.SlippagePct.IsNegative() || p.FeePct.IsNegative() {
		return nil, fmt.Errorf("%w: slippage and fee must not be negative", ErrInvalidParams)
	}
	levels, err := market.GridLevels(p.Lower, p.Upper, p.Levels)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}

	sorted := sortedCopy(ticks)
	last := sorted[len(sorted)-1]
	res := &GridResult{Params: p, Levels: levels}

	for _, level := range levels {
		entry := -1
		for i, tick := range sorted {
			if tick.Price.LessThanOrEqual(level) {
				entry = i
				break
			}
		}
		if entry < 0 {
			continue
		}
		bought := sorted[entry]

		exit, closedAtEnd := last, true
		for _, tick := range sorted[entry+1:] {
			if tick.Price.GreaterThan(bought.Price) {
				exit, closedAtEnd = tick, false
				break
			}
		}

		buyPrice := market.ApplySlippage(bought.Price, market.SideBuy, p.SlippagePct)
		sellPrice := market.ApplySlippage(exit.Price, market.SideSell, p.SlippagePct)
		fees := market.Fee(buyPrice.Mul(p.QtyPerLevel), p.FeePct).
			Add(market.Fee(sellPrice.Mul(p.QtyPerLevel), p.FeePct))
		pnl := sellPrice.Sub(buyPrice).Mul(p.QtyPerLevel).Sub(fees)

		res.Fills = append(res.Fills, GridFill{
			LevelPrice:    level,
			BuyTimestamp:  bought.Timestamp,
			BuyPrice:      buyPrice,
			SellTimestamp: exit.Timestamp,
			SellPrice:     sellPrice,
			Fees:          fees,
			PnL:           pnl,
			ClosedAtEnd:   closedAtEnd,
		})
		res.TotalPnL = res.TotalPnL.Add(pnl)
		if pnl.IsPositive() {
			res.Wins++
		} else {
			res.Losses++
		}
	}

	s.logger.Info("Grid simulation complete",
		zap.Int("levels", len(levels)),
		zap.Int("filled", len(res.Fills)),
		zap.Stringer("total_pnl", res.TotalPnL),
	)
	return res, nil
}
