package trader

import (
	"context"
	"strings"
	"time"

	"binance-futures-bot-go/internal/binance"
	"binance-futures-bot-go/internal/config"
	"binance-futures-bot-go/internal/market"
	"binance-futures-bot-go/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Journal records every order the engine gets accepted by the exchange.
type Journal interface {
	RecordOrder(ctx context.Context, rec *models.OrderRecord) error
}

// PlacedOrder is an order the exchange accepted on behalf of a strategy.
type PlacedOrder struct {
	OrderID       int64
	ClientOrderID string
	Symbol        string
	Side          market.Side
	Type          string
	Quantity      decimal.Decimal
	Price         decimal.Decimal
	StopPrice     decimal.Decimal
	Status        string
}

// Engine executes the live strategies against a futures client, one call at a time.
// Orders of a single call are issued strictly in sequence.
type Engine struct {
	logger  *zap.Logger
	cfg     config.Strategy
	client  binance.FuturesClient
	journal Journal
	clock   Clock

	newRunID func() string
}

// NewEngine creates a new strategy engine. journal may be nil.
func NewEngine(logger *zap.Logger, cfg config.Strategy, client binance.FuturesClient, journal Journal) *Engine {
	return &Engine{
		logger:   logger.Named("trader"),
		cfg:      cfg,
		client:   client,
		journal:  journal,
		clock:    SystemClock{},
		newRunID: uuid.NewString,
	}
}

// WithClock replaces the clock used for pacing and timeouts.
func (e *Engine) WithClock(clock Clock) *Engine {
	e.clock = clock
	return e
}

// clientOrderID derives an exchange client order id (at most 36 characters) from a run id.
func clientOrderID(runID, tag string) string {
	compact := strings.ReplaceAll(runID, "-", "")
	if len(compact) > 16 {
		compact = compact[:16]
	}
	return compact + "-" + tag
}

// checkOrder validates quantity and the non-zero prices against the symbol filters
// when filter validation is enabled.
func (e *Engine) checkOrder(ctx context.Context, op, symbol string, qty decimal.Decimal, prices ...decimal.Decimal) error {
	if !qty.IsPositive() {
		return validationErr(op, "quantity must be positive, got %s", qty)
	}
	for _, p := range prices {
		if p.IsNegative() {
			return validationErr(op, "price must not be negative, got %s", p)
		}
	}
	if !e.cfg.ValidateFilters {
		return nil
	}

	filters, err := e.client.GetSymbolFilters(ctx, symbol)
	if err != nil {
		e.logger.Error("Failed to fetch symbol filters", zap.String("symbol", symbol), zap.Error(err))
		return transportErr(op, err)
	}
	if ok, reason := ValidateQuantity(filters, qty); !ok {
		return validationErr(op, "%s", reason)
	}
	for _, p := range prices {
		if p.IsZero() {
			continue
		}
		if ok, reason := ValidatePrice(filters, p); !ok {
			return validationErr(op, "%s", reason)
		}
	}
	return nil
}

// placeOrder sends one order and journals it once accepted.
func (e *Engine) placeOrder(ctx context.Context, runID, strategy string, req binance.OrderRequest) (PlacedOrder, error) {
	resp, err := e.client.CreateOrder(ctx, req)
	if err != nil {
		return PlacedOrder{}, err
	}

	placed := PlacedOrder{
		OrderID:       resp.OrderID,
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          market.Side(req.Side),
		Type:          req.Type,
		Quantity:      req.Quantity,
		Price:         req.Price,
		StopPrice:     req.StopPrice,
		Status:        resp.Status,
	}
	if resp.ClientOrderID != "" {
		placed.ClientOrderID = resp.ClientOrderID
	}

	if e.journal != nil {
		rec := &models.OrderRecord{
			RunID:         runID,
			Strategy:      strategy,
			Symbol:        placed.Symbol,
			Side:          string(placed.Side),
			Type:          placed.Type,
			Quantity:      placed.Quantity.String(),
			OrderID:       placed.OrderID,
			ClientOrderID: placed.ClientOrderID,
			Status:        placed.Status,
			Timestamp:     e.clock.Now().Unix(),
		}
		if !placed.Price.IsZero() {
			rec.Price = placed.Price.String()
		}
		if !placed.StopPrice.IsZero() {
			rec.StopPrice = placed.StopPrice.String()
		}
		// A journal failure never undoes an order that is already live.
		if err := e.journal.RecordOrder(ctx, rec); err != nil {
			e.logger.Error("Failed to save order record", zap.Int64("order_id", placed.OrderID), zap.Error(err))
		}
	}

	return placed, nil
}

func durationOr(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}
