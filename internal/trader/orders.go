package trader

import (
	"context"
	"strings"

	"binance-futures-bot-go/internal/binance"
	"binance-futures-bot-go/internal/market"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Market places a single MARKET order.
func (e *Engine) Market(ctx context.Context, symbol string, side market.Side, qty decimal.Decimal) (*PlacedOrder, error) {
	return e.single(ctx, "market", binance.OrderRequest{
		Symbol:   strings.ToUpper(symbol),
		Side:     string(side),
		Type:     binance.OrderTypeMarket,
		Quantity: qty,
	})
}

// Limit places a single GTC LIMIT order.
func (e *Engine) Limit(ctx context.Context, symbol string, side market.Side, qty, price decimal.Decimal) (*PlacedOrder, error) {
	if !price.IsPositive() {
		return nil, validationErr("limit", "price must be positive, got %s", price)
	}
	return e.single(ctx, "limit", binance.OrderRequest{
		Symbol:      strings.ToUpper(symbol),
		Side:        string(side),
		Type:        binance.OrderTypeLimit,
		Quantity:    qty,
		Price:       price,
		TimeInForce: binance.TimeInForceGTC,
	})
}

// StopLimit places a STOP order: once the stop price trades, a limit order at
// limitPrice is working on the book.
func (e *Engine) StopLimit(ctx context.Context, symbol string, side market.Side, qty, stopPrice, limitPrice decimal.Decimal) (*PlacedOrder, error) {
	if !stopPrice.IsPositive() || !limitPrice.IsPositive() {
		return nil, validationErr("stoplimit", "stop price and limit price must be positive, got %s and %s", stopPrice, limitPrice)
	}
	return e.single(ctx, "stoplimit", binance.OrderRequest{
		Symbol:      strings.ToUpper(symbol),
		Side:        string(side),
		Type:        binance.OrderTypeStop,
		Quantity:    qty,
		Price:       limitPrice,
		StopPrice:   stopPrice,
		TimeInForce: binance.TimeInForceGTC,
	})
}

func (e *Engine) single(ctx context.Context, op string, req binance.OrderRequest) (*PlacedOrder, error) {
	l := e.logger.With(
		zap.String("strategy", op),
		zap.String("symbol", req.Symbol),
		zap.String("side", req.Side),
		zap.Stringer("quantity", req.Quantity),
	)

	if !market.Side(req.Side).Valid() {
		return nil, validationErr(op, "side must be BUY or SELL, got %q", req.Side)
	}
	if err := e.checkOrder(ctx, op, req.Symbol, req.Quantity, req.Price, req.StopPrice); err != nil {
		l.Error("Order rejected before submission", zap.Error(err))
		return nil, err
	}

	runID := e.newRunID()
	req.ClientOrderID = clientOrderID(runID, op)

	l.Info("Placing order", zap.String("type", req.Type), zap.Stringer("price", req.Price), zap.Stringer("stop_price", req.StopPrice))
	placed, err := e.placeOrder(ctx, runID, op, req)
	if err != nil {
		l.Error("Order failed", zap.Error(err))
		return nil, transportErr(op, err)
	}

	l.Info("Order placed", zap.Int64("order_id", placed.OrderID), zap.String("status", placed.Status))
	return &placed, nil
}
