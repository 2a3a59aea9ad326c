package trader

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"binance-futures-bot-go/internal/binance"
	"binance-futures-bot-go/internal/market"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// GridRequest describes a ladder of buy orders between Lower and Upper.
type GridRequest struct {
	Symbol      string
	Lower       decimal.Decimal
	Upper       decimal.Decimal
	Levels      int
	QtyPerLevel decimal.Decimal
}

// GridReport lists the ladder and the orders that are live on the exchange.
type GridReport struct {
	RunID  string
	Levels []decimal.Decimal
	Orders []PlacedOrder
}

// Grid places one BUY LIMIT GTC order per level, lowest level first.
// Exits are not placed; closing the rungs is left to the operator.
// When a placement fails the report still carries every order already accepted.
func (e *Engine) Grid(ctx context.Context, req GridRequest) (*GridReport, error) {
	const op = "grid"

	report := &GridReport{RunID: e.newRunID()}
	symbol := strings.ToUpper(req.Symbol)

	levels, err := market.GridLevels(req.Lower, req.Upper, req.Levels)
	if err != nil {
		return report, validationErr(op, "%v", err)
	}
	if !req.Lower.IsPositive() {
		return report, validationErr(op, "lower bound must be positive, got %s", req.Lower)
	}
	for i, lvl := range levels {
		levels[i] = lvl.Round(e.cfg.PricePrecision)
	}
	report.Levels = levels

	l := e.logger.With(
		zap.String("strategy", op),
		zap.String("run_id", report.RunID),
		zap.String("symbol", symbol),
	)

	if err := e.checkOrder(ctx, op, symbol, req.QtyPerLevel, levels...); err != nil {
		l.Error("Grid rejected before submission", zap.Error(err))
		return report, err
	}

	l.Info("Placing grid",
		zap.Stringer("lower", req.Lower),
		zap.Stringer("upper", req.Upper),
		zap.Int("levels", len(levels)),
		zap.Stringer("qty_per_level", req.QtyPerLevel),
	)

	for i, price := range levels {
		placed, err := e.placeOrder(ctx, report.RunID, op, binance.OrderRequest{
			Symbol:        symbol,
			Side:          binance.OrderSideBuy,
			Type:          binance.OrderTypeLimit,
			Quantity:      req.QtyPerLevel,
			Price:         price,
			TimeInForce:   binance.TimeInForceGTC,
			ClientOrderID: clientOrderID(report.RunID, op+"-"+strconv.Itoa(i+1)),
		})
		if err != nil {
			l.Error("Grid placement failed",
				zap.Int("level", i+1),
				zap.Stringer("price", price),
				zap.Int("live_orders", len(report.Orders)),
				zap.Error(err),
			)
			return report, transportErr(op, fmt.Errorf("level %d at %s failed with %d orders already live: %w", i+1, price, len(report.Orders), err))
		}
		report.Orders = append(report.Orders, placed)
		l.Debug("Grid level placed", zap.Int("level", i+1), zap.Stringer("price", price), zap.Int64("order_id", placed.OrderID))
	}

	l.Info("Grid placed", zap.Int("orders", len(report.Orders)))
	return report, nil
}
