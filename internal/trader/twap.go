package trader

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"binance-futures-bot-go/internal/binance"
	"binance-futures-bot-go/internal/market"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// TWAPRequest slices TotalQty into Intervals market orders spaced Delay apart.
type TWAPRequest struct {
	Symbol    string
	Side      market.Side
	TotalQty  decimal.Decimal
	Intervals int
	Delay     time.Duration
}

// TWAPReport lists the slices that reached the exchange.
type TWAPReport struct {
	RunID     string
	SliceQty  decimal.Decimal
	Requested int
	Slices    []PlacedOrder
}

// Completed reports whether every requested slice was placed.
func (r *TWAPReport) Completed() bool {
	return len(r.Slices) == r.Requested
}

// ExecutedQty is the quantity sent so far.
func (r *TWAPReport) ExecutedQty() decimal.Decimal {
	return r.SliceQty.Mul(decimal.NewFromInt(int64(len(r.Slices))))
}

// TWAP issues one market order per interval, waiting Delay between all but the last.
// The first failed slice stops the run; slices already placed are kept and reported.
func (e *Engine) TWAP(ctx context.Context, req TWAPRequest) (*TWAPReport, error) {
	const op = "twap"

	report := &TWAPReport{RunID: e.newRunID(), Requested: req.Intervals}
	symbol := strings.ToUpper(req.Symbol)

	if !req.Side.Valid() {
		return report, validationErr(op, "side must be BUY or SELL, got %q", req.Side)
	}
	if req.Intervals < 1 {
		return report, validationErr(op, "intervals must be at least 1, got %d", req.Intervals)
	}
	if !req.TotalQty.IsPositive() {
		return report, validationErr(op, "total quantity must be positive, got %s", req.TotalQty)
	}

	report.SliceQty = req.TotalQty.Div(decimal.NewFromInt(int64(req.Intervals))).Round(e.cfg.QuantityPrecision)
	if !report.SliceQty.IsPositive() {
		return report, validationErr(op, "slice quantity %s/%d rounds to zero", req.TotalQty, req.Intervals)
	}

	l := e.logger.With(
		zap.String("strategy", op),
		zap.String("run_id", report.RunID),
		zap.String("symbol", symbol),
		zap.String("side", string(req.Side)),
	)

	if err := e.checkOrder(ctx, op, symbol, report.SliceQty); err != nil {
		l.Error("TWAP rejected before submission", zap.Error(err))
		return report, err
	}

	l.Info("Starting TWAP",
		zap.Stringer("total_qty", req.TotalQty),
		zap.Int("intervals", req.Intervals),
		zap.Stringer("slice_qty", report.SliceQty),
		zap.Duration("delay", req.Delay),
	)

	for i := 0; i < req.Intervals; i++ {
		placed, err := e.placeOrder(ctx, report.RunID, op, binance.OrderRequest{
			Symbol:        symbol,
			Side:          string(req.Side),
			Type:          binance.OrderTypeMarket,
			Quantity:      report.SliceQty,
			ClientOrderID: clientOrderID(report.RunID, op+"-"+strconv.Itoa(i+1)),
		})
		if err != nil {
			l.Error("TWAP slice failed, stopping", zap.Int("slice", i+1), zap.Error(err))
			return report, transportErr(op, fmt.Errorf("slice %d/%d: %w", i+1, req.Intervals, err))
		}
		report.Slices = append(report.Slices, placed)
		l.Info("TWAP progress",
			zap.Int("slice", i+1),
			zap.Int("of", req.Intervals),
			zap.Int64("order_id", placed.OrderID),
		)

		if i < req.Intervals-1 {
			if err := e.clock.Sleep(ctx, req.Delay); err != nil {
				l.Warn("TWAP interrupted", zap.Int("executed", len(report.Slices)), zap.Error(err))
				return report, fmt.Errorf("twap stopped after %d/%d slices: %w", len(report.Slices), req.Intervals, err)
			}
		}
	}

	l.Info("TWAP complete", zap.Stringer("executed_qty", report.ExecutedQty()))
	return report, nil
}
