package binance

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	OrderSideBuy  = "BUY"
	OrderSideSell = "SELL"

	OrderTypeMarket     = "MARKET"
	OrderTypeLimit      = "LIMIT"
	OrderTypeStop       = "STOP"
	OrderTypeStopMarket = "STOP_MARKET"

	TimeInForceGTC = "GTC"

	OrderStatusNew             = "NEW"
	OrderStatusPartiallyFilled = "PARTIALLY_FILLED"
	OrderStatusFilled          = "FILLED"
	OrderStatusCanceled        = "CANCELED"

	FilterTypeLotSize = "LOT_SIZE"
	FilterTypePrice   = "PRICE_FILTER"
)

// ErrSymbolNotFound is returned when the exchange does not list the requested symbol.
var ErrSymbolNotFound = errors.New("symbol not found")

// APIError is the error body Binance returns with a non-2xx status.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       int    `json:"code"`
	Msg        string `json:"msg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("request failed with status %d: code=%d msg=%s", e.StatusCode, e.Code, e.Msg)
}

// ExchangeInfoResponse represents the full response from the /exchangeInfo endpoint.
type ExchangeInfoResponse struct {
	ServerTime int64        `json:"serverTime"`
	Symbols    []SymbolInfo `json:"symbols"`
}

// SymbolInfo contains information about a specific trading symbol.
type SymbolInfo struct {
	Symbol  string   `json:"symbol"`
	Status  string   `json:"status"`
	Filters []Filter `json:"filters"`
}

// Filter represents a single filter for a symbol.
// Only LOT_SIZE and PRICE_FILTER are interpreted.
type Filter struct {
	FilterType string `json:"filterType"`
	MinQty     string `json:"minQty,omitempty"`
	MaxQty     string `json:"maxQty,omitempty"`
	StepSize   string `json:"stepSize,omitempty"`
	MinPrice   string `json:"minPrice,omitempty"`
	MaxPrice   string `json:"maxPrice,omitempty"`
	TickSize   string `json:"tickSize,omitempty"`
}

// LotSize bounds an order quantity.
type LotSize struct {
	MinQty   decimal.Decimal
	MaxQty   decimal.Decimal
	StepSize decimal.Decimal
}

// PriceFilter bounds an order price.
type PriceFilter struct {
	MinPrice decimal.Decimal
	MaxPrice decimal.Decimal
	TickSize decimal.Decimal
}

// SymbolFilters is a read-only snapshot of the quantity and price constraints of one symbol.
type SymbolFilters struct {
	Symbol      string
	LotSize     LotSize
	PriceFilter PriceFilter
}

// ParseSymbolFilters extracts the LOT_SIZE and PRICE_FILTER constraints of a symbol.
func ParseSymbolFilters(info SymbolInfo) (SymbolFilters, error) {
	out := SymbolFilters{Symbol: info.Symbol}
	var haveLot, havePrice bool

	for _, f := range info.Filters {
		var err error
		switch f.FilterType {
		case FilterTypeLotSize:
			out.LotSize, err = parseLotSize(f)
			haveLot = true
		case FilterTypePrice:
			out.PriceFilter, err = parsePriceFilter(f)
			havePrice = true
		}
		if err != nil {
			return SymbolFilters{}, fmt.Errorf("symbol %s: %w", info.Symbol, err)
		}
	}

	if !haveLot {
		return SymbolFilters{}, fmt.Errorf("symbol %s: %s filter not found", info.Symbol, FilterTypeLotSize)
	}
	if !havePrice {
		return SymbolFilters{}, fmt.Errorf("symbol %s: %s filter not found", info.Symbol, FilterTypePrice)
	}
	return out, nil
}

func parseLotSize(f Filter) (LotSize, error) {
	var (
		lot LotSize
		err error
	)
	if lot.MinQty, err = parseField(FilterTypeLotSize, "minQty", f.MinQty); err != nil {
		return LotSize{}, err
	}
	if lot.MaxQty, err = parseField(FilterTypeLotSize, "maxQty", f.MaxQty); err != nil {
		return LotSize{}, err
	}
	if lot.StepSize, err = parseField(FilterTypeLotSize, "stepSize", f.StepSize); err != nil {
		return LotSize{}, err
	}
	return lot, nil
}

func parsePriceFilter(f Filter) (PriceFilter, error) {
	var (
		pf  PriceFilter
		err error
	)
	if pf.MinPrice, err = parseField(FilterTypePrice, "minPrice", f.MinPrice); err != nil {
		return PriceFilter{}, err
	}
	if pf.MaxPrice, err = parseField(FilterTypePrice, "maxPrice", f.MaxPrice); err != nil {
		return PriceFilter{}, err
	}
	if pf.TickSize, err = parseField(FilterTypePrice, "tickSize", f.TickSize); err != nil {
		return PriceFilter{}, err
	}
	return pf, nil
}

func parseField(filter, field, value string) (decimal.Decimal, error) {
	v, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%s.%s %q: %w", filter, field, value, err)
	}
	return v, nil
}

// OrderRequest describes a new futures order. Zero decimals are omitted from the request.
type OrderRequest struct {
	Symbol        string
	Side          string
	Type          string
	Quantity      decimal.Decimal
	Price         decimal.Decimal
	StopPrice     decimal.Decimal
	TimeInForce   string
	ClientOrderID string
}

// OrderResponse is the order representation returned by create, query and cancel.
type OrderResponse struct {
	Symbol        string `json:"symbol"`
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	Price         string `json:"price"`
	AvgPrice      string `json:"avgPrice"`
	OrigQty       string `json:"origQty"`
	ExecutedQty   string `json:"executedQty"`
	StopPrice     string `json:"stopPrice"`
	Status        string `json:"status"`
	TimeInForce   string `json:"timeInForce"`
	Type          string `json:"type"`
	Side          string `json:"side"`
	UpdateTime    int64  `json:"updateTime"`
}

// Balance is one asset entry of the futures wallet.
type Balance struct {
	Asset            string `json:"asset"`
	Balance          string `json:"balance"`
	AvailableBalance string `json:"availableBalance"`
}
