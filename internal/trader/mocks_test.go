package trader

import (
	"context"
	"sync"
	"testing"
	"time"

	"binance-futures-bot-go/internal/binance"
	"binance-futures-bot-go/internal/config"
	"binance-futures-bot-go/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

// MockFuturesClient is a mock implementation of binance.FuturesClient.
type MockFuturesClient struct {
	mock.Mock
}

func (m *MockFuturesClient) GetServerTime(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockFuturesClient) GetExchangeInfo(ctx context.Context) (*binance.ExchangeInfoResponse, error) {
	args := m.Called(ctx)
	info, _ := args.Get(0).(*binance.ExchangeInfoResponse)
	return info, args.Error(1)
}

func (m *MockFuturesClient) GetSymbolFilters(ctx context.Context, symbol string) (binance.SymbolFilters, error) {
	args := m.Called(ctx, symbol)
	return args.Get(0).(binance.SymbolFilters), args.Error(1)
}

func (m *MockFuturesClient) GetBalances(ctx context.Context) ([]binance.Balance, error) {
	args := m.Called(ctx)
	balances, _ := args.Get(0).([]binance.Balance)
	return balances, args.Error(1)
}

func (m *MockFuturesClient) CreateOrder(ctx context.Context, order binance.OrderRequest) (*binance.OrderResponse, error) {
	args := m.Called(ctx, order)
	resp, _ := args.Get(0).(*binance.OrderResponse)
	return resp, args.Error(1)
}

func (m *MockFuturesClient) GetOrder(ctx context.Context, symbol string, orderID int64) (*binance.OrderResponse, error) {
	args := m.Called(ctx, symbol, orderID)
	resp, _ := args.Get(0).(*binance.OrderResponse)
	return resp, args.Error(1)
}

func (m *MockFuturesClient) CancelOrder(ctx context.Context, symbol string, orderID int64) (*binance.OrderResponse, error) {
	args := m.Called(ctx, symbol, orderID)
	resp, _ := args.Get(0).(*binance.OrderResponse)
	return resp, args.Error(1)
}

// fakeClock advances only when Sleep is called.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

// memoryJournal keeps recorded orders in a slice.
type memoryJournal struct {
	records []*models.OrderRecord
	err     error
}

func (j *memoryJournal) RecordOrder(_ context.Context, rec *models.OrderRecord) error {
	if j.err != nil {
		return j.err
	}
	j.records = append(j.records, rec)
	return nil
}

func testStrategyConfig() config.Strategy {
	return config.Strategy{
		QuantityPrecision: 3,
		PricePrecision:    5,
		OCOPollInterval:   2 * time.Second,
		OCOTimeout:        300 * time.Second,
	}
}

// setupEngine creates an engine with a mock client, a fake clock and an in-memory journal.
func setupEngine(t *testing.T, cfg config.Strategy) (*Engine, *MockFuturesClient, *fakeClock, *memoryJournal) {
	t.Helper()
	client := new(MockFuturesClient)
	clock := newFakeClock()
	journal := &memoryJournal{}

	engine := NewEngine(zap.NewNop(), cfg, client, journal).WithClock(clock)
	engine.newRunID = func() string { return "0f8fad5b-d9cb-469f-a165-70867728950e" }

	t.Cleanup(func() { client.AssertExpectations(t) })
	return engine, client, clock, journal
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// orderMatching matches a CreateOrder request by type, side, quantity and price.
func orderMatching(typ, side, qty, price string) interface{} {
	return mock.MatchedBy(func(o binance.OrderRequest) bool {
		if o.Type != typ || o.Side != side || !o.Quantity.Equal(dec(qty)) {
			return false
		}
		return price == "" || o.Price.Equal(dec(price))
	})
}

func btcFilters() binance.SymbolFilters {
	return binance.SymbolFilters{
		Symbol: "BTCUSDT",
		LotSize: binance.LotSize{
			MinQty:   dec("0.001"),
			MaxQty:   dec("1000"),
			StepSize: dec("0.001"),
		},
		PriceFilter: binance.PriceFilter{
			MinPrice: dec("0.01"),
			MaxPrice: dec("1000000"),
			TickSize: dec("0.01"),
		},
	}
}
