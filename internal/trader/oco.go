package trader

import (
	"context"
	"fmt"
	"strings"
	"time"

	"binance-futures-bot-go/internal/binance"
	"binance-futures-bot-go/internal/market"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	defaultOCOPollInterval = 2 * time.Second
	defaultOCOTimeout      = 300 * time.Second
)

// OCOState is the lifecycle of a take-profit/stop-loss pair.
type OCOState string

const (
	OCOStatePlaced     OCOState = "PLACED"
	OCOStateMonitoring OCOState = "MONITORING"
	OCOStateResolvedTP OCOState = "RESOLVED_TP"
	OCOStateResolvedSL OCOState = "RESOLVED_SL"
	OCOStateTimedOut   OCOState = "TIMED_OUT"
	OCOStateFailed     OCOState = "FAILED"
)

// OCORequest protects a position opened on Side. Both legs are placed on the
// opposite side for Quantity. Zero PollInterval and Timeout use the configured values.
type OCORequest struct {
	Symbol       string
	Side         market.Side
	Quantity     decimal.Decimal
	TakeProfit   decimal.Decimal
	StopLoss     decimal.Decimal
	PollInterval time.Duration
	Timeout      time.Duration
}

// OCOOutcome is the terminal state of an OCO run.
type OCOOutcome struct {
	RunID      string
	State      OCOState
	TakeProfit *PlacedOrder
	StopLoss   *PlacedOrder
	// Filled is the last observed state of the winning leg.
	Filled *binance.OrderResponse
	Polls  int
}

// Indicator is "tp", "sl" or "none".
func (o *OCOOutcome) Indicator() string {
	switch o.State {
	case OCOStateResolvedTP:
		return "tp"
	case OCOStateResolvedSL:
		return "sl"
	default:
		return "none"
	}
}

// OCO places a take-profit LIMIT and a STOP_MARKET stop-loss, then polls both until one
// fills or the timeout elapses. The take-profit leg counts only when FILLED while the
// stop-loss leg also counts when PARTIALLY_FILLED; the take-profit is checked first.
// On timeout both legs are left open.
func (e *Engine) OCO(ctx context.Context, req OCORequest) (*OCOOutcome, error) {
	const op = "oco"

	outcome := &OCOOutcome{RunID: e.newRunID(), State: OCOStateFailed}
	symbol := strings.ToUpper(req.Symbol)
	exitSide := req.Side.Opposite()

	if !req.Side.Valid() {
		return outcome, validationErr(op, "side must be BUY or SELL, got %q", req.Side)
	}
	if !req.TakeProfit.IsPositive() || !req.StopLoss.IsPositive() {
		return outcome, validationErr(op, "take-profit and stop-loss must be positive, got %s and %s", req.TakeProfit, req.StopLoss)
	}

	l := e.logger.With(
		zap.String("strategy", op),
		zap.String("run_id", outcome.RunID),
		zap.String("symbol", symbol),
		zap.String("exit_side", string(exitSide)),
	)

	if err := e.checkOrder(ctx, op, symbol, req.Quantity, req.TakeProfit, req.StopLoss); err != nil {
		l.Error("OCO rejected before submission", zap.Error(err))
		return outcome, err
	}

	tp, err := e.placeOrder(ctx, outcome.RunID, op, binance.OrderRequest{
		Symbol:        symbol,
		Side:          string(exitSide),
		Type:          binance.OrderTypeLimit,
		Quantity:      req.Quantity,
		Price:         req.TakeProfit,
		TimeInForce:   binance.TimeInForceGTC,
		ClientOrderID: clientOrderID(outcome.RunID, "oco-tp"),
	})
	if err != nil {
		l.Error("Failed to place take-profit order", zap.Error(err))
		return outcome, transportErr(op, fmt.Errorf("take-profit: %w", err))
	}
	outcome.TakeProfit = &tp

	sl, err := e.placeOrder(ctx, outcome.RunID, op, binance.OrderRequest{
		Symbol:        symbol,
		Side:          string(exitSide),
		Type:          binance.OrderTypeStopMarket,
		Quantity:      req.Quantity,
		StopPrice:     req.StopLoss,
		ClientOrderID: clientOrderID(outcome.RunID, "oco-sl"),
	})
	if err != nil {
		l.Error("Failed to place stop-loss order, take-profit is still live",
			zap.Int64("tp_order_id", tp.OrderID),
			zap.Error(err),
		)
		return outcome, transportErr(op, fmt.Errorf("stop-loss: %w", err))
	}
	outcome.StopLoss = &sl
	outcome.State = OCOStatePlaced

	poll := durationOr(req.PollInterval, durationOr(e.cfg.OCOPollInterval, defaultOCOPollInterval))
	timeout := durationOr(req.Timeout, durationOr(e.cfg.OCOTimeout, defaultOCOTimeout))
	start := e.clock.Now()

	l.Info("OCO placed, monitoring",
		zap.Int64("tp_order_id", tp.OrderID),
		zap.Int64("sl_order_id", sl.OrderID),
		zap.Duration("poll_interval", poll),
		zap.Duration("timeout", timeout),
	)
	outcome.State = OCOStateMonitoring

	for e.clock.Now().Sub(start) < timeout {
		outcome.Polls++

		tpStatus, err := e.client.GetOrder(ctx, symbol, tp.OrderID)
		if err != nil {
			return e.ocoFailed(l, outcome, transportErr(op, fmt.Errorf("query take-profit: %w", err)))
		}
		if tpStatus.Status == binance.OrderStatusFilled {
			outcome.Filled = tpStatus
			return e.resolveOCO(ctx, l, outcome, OCOStateResolvedTP, sl.OrderID)
		}

		slStatus, err := e.client.GetOrder(ctx, symbol, sl.OrderID)
		if err != nil {
			return e.ocoFailed(l, outcome, transportErr(op, fmt.Errorf("query stop-loss: %w", err)))
		}
		if slStatus.Status == binance.OrderStatusFilled || slStatus.Status == binance.OrderStatusPartiallyFilled {
			outcome.Filled = slStatus
			return e.resolveOCO(ctx, l, outcome, OCOStateResolvedSL, tp.OrderID)
		}

		l.Debug("OCO still open", zap.Int("poll", outcome.Polls), zap.String("tp_status", tpStatus.Status), zap.String("sl_status", slStatus.Status))

		if err := e.clock.Sleep(ctx, poll); err != nil {
			return e.ocoFailed(l, outcome, fmt.Errorf("oco monitoring interrupted: %w", err))
		}
	}

	outcome.State = OCOStateTimedOut
	l.Warn("OCO timed out, both orders left open", zap.Int("polls", outcome.Polls))
	return outcome, nil
}

// resolveOCO cancels the losing leg.
func (e *Engine) resolveOCO(ctx context.Context, l *zap.Logger, outcome *OCOOutcome, state OCOState, loserID int64) (*OCOOutcome, error) {
	l.Info("OCO leg filled, cancelling the other", zap.String("state", string(state)), zap.Int64("cancel_order_id", loserID))

	if _, err := e.client.CancelOrder(ctx, outcome.TakeProfit.Symbol, loserID); err != nil {
		return e.ocoFailed(l, outcome, transportErr("oco", fmt.Errorf("cancel order %d after %s: %w", loserID, state, err)))
	}

	outcome.State = state
	l.Info("OCO resolved", zap.String("indicator", outcome.Indicator()), zap.Int("polls", outcome.Polls))
	return outcome, nil
}

func (e *Engine) ocoFailed(l *zap.Logger, outcome *OCOOutcome, err error) (*OCOOutcome, error) {
	outcome.State = OCOStateFailed
	l.Error("OCO failed", zap.Int("polls", outcome.Polls), zap.Error(err))
	return outcome, err
}
