package backtest

import (
	"fmt"
	"time"

	"binance-futures-bot-go/internal/market"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// TWAPParams describes a simulated TWAP execution.
type TWAPParams struct {
	TotalQty    decimal.Decimal
	Slices      int
	Side        market.Side
	SlippagePct decimal.Decimal
	FeePct      decimal.Decimal
}

// ExecutionSlice is one simulated TWAP child order with running totals.
type ExecutionSlice struct {
	Timestamp     time.Time
	MarketPrice   decimal.Decimal
	ExecPrice     decimal.Decimal
	Qty           decimal.Decimal
	Fee           decimal.Decimal
	CumulativeFee decimal.Decimal
	CumulativeQty decimal.Decimal
	AvgPriceSoFar decimal.Decimal
}

type TWAPResult struct {
	Params          TWAPParams
	RequestedSlices int
	Slices          []ExecutionSlice
	ExecutedQty     decimal.Decimal
	AvgPrice        decimal.Decimal
	TotalFees       decimal.Decimal
	// MarkPrice is the raw price of the last tick, used to value the position.
	MarkPrice decimal.Decimal
	PnL       decimal.Decimal
}

// Truncated reports whether the data held fewer ticks than requested slices.
func (r *TWAPResult) Truncated() bool {
	return len(r.Slices) < r.RequestedSlices
}

// SimulateTWAP executes TotalQty/Slices at each of the first Slices ticks in time
// order. The slices are not spread over the whole data window.
//
// PnL marks the executed quantity at the last tick:
// (mark - avg) * qty - fees for BUY, (avg - mark) * qty - fees for SELL.
func (s *Simulator) SimulateTWAP(ticks []Tick, p TWAPParams) (*TWAPResult, error) {
	if len(ticks) == 0 {
		return nil, ErrNoTicks
	}
	if p.Slices < 1 {
		return nil, fmt.Errorf("%w: slices must be at least 1, got %d", ErrInvalidParams, p.Slices)
	}
	if !p.TotalQty.IsPositive() {
		return nil, fmt.Errorf("%w: total quantity must be positive, got %s", ErrInvalidParams, p.TotalQty)
	}
	if p.SlippagePct.IsNegative() || p.FeePct.IsNegative() {
		return nil, fmt.Errorf("%w: slippage and fee must not be negative", ErrInvalidParams)
	}

	sorted := sortedCopy(ticks)

	n := p.Slices
	if n > len(sorted) {
		s.logger.Warn("Not enough ticks for every TWAP slice, truncating",
			zap.Int("requested", p.Slices),
			zap.Int("available", len(sorted)),
		)
		n = len(sorted)
	}

	res := &TWAPResult{
		Params:          p,
		RequestedSlices: p.Slices,
		Slices:          make([]ExecutionSlice, 0, n),
		MarkPrice:       sorted[len(sorted)-1].Price,
	}

	// Running totals use TotalQty*k/Slices and the sum of execution prices so that
	// ExecutedQty equals TotalQty once every slice has run.
	slices := decimal.NewFromInt(int64(p.Slices))
	execSum := decimal.Zero
	prevQty, prevFee := decimal.Zero, decimal.Zero
	for i, tick := range sorted[:n] {
		k := i + 1
		execPrice := market.ApplySlippage(tick.Price, p.Side, p.SlippagePct)
		execSum = execSum.Add(execPrice)

		cumQty := p.TotalQty
		if k < p.Slices {
			cumQty = p.TotalQty.Mul(decimal.NewFromInt(int64(k))).Div(slices)
		}
		cumFee := market.Fee(execSum.Mul(p.TotalQty).Div(slices), p.FeePct)

		res.Slices = append(res.Slices, ExecutionSlice{
			Timestamp:     tick.Timestamp,
			MarketPrice:   tick.Price,
			ExecPrice:     execPrice,
			Qty:           cumQty.Sub(prevQty),
			Fee:           cumFee.Sub(prevFee),
			CumulativeFee: cumFee,
			CumulativeQty: cumQty,
			AvgPriceSoFar: execSum.Div(decimal.NewFromInt(int64(k))),
		})
		prevQty, prevFee = cumQty, cumFee
	}

	res.ExecutedQty = prevQty
	res.TotalFees = prevFee
	res.AvgPrice = execSum.Div(decimal.NewFromInt(int64(n)))
	edge := res.MarkPrice.Sub(res.AvgPrice)
	if p.Side == market.SideSell {
		edge = edge.Neg()
	}
	res.PnL = edge.Mul(res.ExecutedQty).Sub(res.TotalFees)

	s.logger.Info("TWAP simulation complete",
		zap.Int("slices", len(res.Slices)),
		zap.Stringer("avg_price", res.AvgPrice),
		zap.Stringer("pnl", res.PnL),
	)
	return res, nil
}
