package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"binance-futures-bot-go/internal/config"
	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const testSecret = "test_secret_key"

// setupTestServer creates a new test server and a RestClient configured to use it.
func setupTestServer(handler http.Handler) (*RestClient, *httptest.Server) {
	server := httptest.NewServer(handler)

	client := resty.New().SetBaseURL(server.URL)
	logger := zap.NewNop() // Use a no-op logger for tests

	rc := &RestClient{
		client:     client,
		apiKey:     "test_api_key",
		secretKey:  testSecret,
		recvWindow: defaultRecvWindow,
		logger:     logger,
		limiter:    rate.NewLimiter(rate.Inf, 1), // Allow all requests in tests
		now:        func() time.Time { return time.UnixMilli(1700000000000) },
	}

	return rc, server
}

// verifySignature checks that the signature is the last parameter and covers everything before it.
func verifySignature(t *testing.T, raw string) url.Values {
	t.Helper()
	idx := strings.LastIndex(raw, "&signature=")
	require.NotEqual(t, -1, idx, "signature missing from %q", raw)

	payload, sig := raw[:idx], raw[idx+len("&signature="):]
	h := hmac.New(sha256.New, []byte(testSecret))
	h.Write([]byte(payload))
	assert.Equal(t, hex.EncodeToString(h.Sum(nil)), sig)

	values, err := url.ParseQuery(payload)
	require.NoError(t, err)
	return values
}

func TestGetServerTime(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		expectedTime := time.Now().UnixMilli()
		mockResponse := fmt.Sprintf(`{"serverTime": %d}`, expectedTime)

		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/fapi/v1/time", r.URL.Path)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(mockResponse))
		})

		rc, server := setupTestServer(handler)
		defer server.Close()

		serverTime, err := rc.GetServerTime(context.Background())

		assert.NoError(t, err)
		assert.Equal(t, expectedTime, serverTime)
	})

	t.Run("APIError", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"code": -1100, "msg": "Illegal characters found"}`))
		})

		rc, server := setupTestServer(handler)
		defer server.Close()

		serverTime, err := rc.GetServerTime(context.Background())

		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to get server time")
		assert.Contains(t, err.Error(), "request failed")

		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, -1100, apiErr.Code)
		assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
		assert.Equal(t, int64(0), serverTime)
	})

	t.Run("RetriesServerError", func(t *testing.T) {
		var calls int32
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&calls, 1) == 1 {
				w.Header().Set("Retry-After", "0")
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"serverTime": 42}`))
		})

		rc, server := setupTestServer(handler)
		defer server.Close()

		serverTime, err := rc.GetServerTime(context.Background())

		assert.NoError(t, err)
		assert.Equal(t, int64(42), serverTime)
		assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	})
}

func TestCreateOrder(t *testing.T) {
	t.Run("SignedFormBody", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/fapi/v1/order", r.URL.Path)
			assert.Equal(t, "test_api_key", r.Header.Get("X-MBX-APIKEY"))

			body, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			values := verifySignature(t, string(body))

			assert.Equal(t, "BTCUSDT", values.Get("symbol"))
			assert.Equal(t, "SELL", values.Get("side"))
			assert.Equal(t, "STOP", values.Get("type"))
			assert.Equal(t, "0.001", values.Get("quantity"))
			assert.Equal(t, "29900", values.Get("price"))
			assert.Equal(t, "30000", values.Get("stopPrice"))
			assert.Equal(t, "GTC", values.Get("timeInForce"))
			assert.Equal(t, "1700000000000", values.Get("timestamp"))
			assert.Equal(t, "5000", values.Get("recvWindow"))

			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"symbol":"BTCUSDT","orderId":55,"status":"NEW","type":"STOP","side":"SELL"}`))
		})

		rc, server := setupTestServer(handler)
		defer server.Close()

		order, err := rc.CreateOrder(context.Background(), OrderRequest{
			Symbol:      "btcusdt",
			Side:        OrderSideSell,
			Type:        OrderTypeStop,
			Quantity:    decimal.RequireFromString("0.001"),
			Price:       decimal.RequireFromString("29900"),
			StopPrice:   decimal.RequireFromString("30000"),
			TimeInForce: TimeInForceGTC,
		})

		require.NoError(t, err)
		assert.Equal(t, int64(55), order.OrderID)
		assert.Equal(t, OrderStatusNew, order.Status)
	})

	t.Run("MarketOmitsPrices", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			values := verifySignature(t, string(body))
			assert.Empty(t, values.Get("price"))
			assert.Empty(t, values.Get("stopPrice"))
			assert.Empty(t, values.Get("timeInForce"))
			assert.Equal(t, "run-1", values.Get("newClientOrderId"))

			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"orderId":7,"status":"FILLED"}`))
		})

		rc, server := setupTestServer(handler)
		defer server.Close()

		order, err := rc.CreateOrder(context.Background(), OrderRequest{
			Symbol:        "BTCUSDT",
			Side:          OrderSideBuy,
			Type:          OrderTypeMarket,
			Quantity:      decimal.RequireFromString("0.01"),
			ClientOrderID: "run-1",
		})

		require.NoError(t, err)
		assert.Equal(t, int64(7), order.OrderID)
	})

	t.Run("NotRetriedOnServerError", func(t *testing.T) {
		var calls int32
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusBadGateway)
		})

		rc, server := setupTestServer(handler)
		defer server.Close()

		_, err := rc.CreateOrder(context.Background(), OrderRequest{
			Symbol:   "BTCUSDT",
			Side:     OrderSideBuy,
			Type:     OrderTypeMarket,
			Quantity: decimal.RequireFromString("0.01"),
		})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to create order")
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})
}

func TestGetAndCancelOrder(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fapi/v1/order", r.URL.Path)
		values := verifySignature(t, r.URL.RawQuery)
		assert.Equal(t, "BTCUSDT", values.Get("symbol"))
		assert.Equal(t, "101", values.Get("orderId"))

		status := "FILLED"
		if r.Method == http.MethodDelete {
			status = "CANCELED"
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"orderId":101,"status":%q}`, status)
	})

	rc, server := setupTestServer(handler)
	defer server.Close()

	order, err := rc.GetOrder(context.Background(), "btcusdt", 101)
	require.NoError(t, err)
	assert.Equal(t, OrderStatusFilled, order.Status)

	cancelled, err := rc.CancelOrder(context.Background(), "BTCUSDT", 101)
	require.NoError(t, err)
	assert.Equal(t, OrderStatusCanceled, cancelled.Status)
}

func TestGetOrder_RetrySignsEachAttempt(t *testing.T) {
	var (
		calls      int32
		mu         sync.Mutex
		timestamps []string
	)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		values := verifySignature(t, r.URL.RawQuery)
		mu.Lock()
		timestamps = append(timestamps, values.Get("timestamp"))
		mu.Unlock()
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"orderId":101,"status":"NEW"}`))
	})

	rc, server := setupTestServer(handler)
	defer server.Close()
	var ticks int64
	rc.now = func() time.Time {
		return time.UnixMilli(1700000000000).Add(time.Duration(atomic.AddInt64(&ticks, 1)) * time.Minute)
	}

	order, err := rc.GetOrder(context.Background(), "BTCUSDT", 101)

	require.NoError(t, err)
	assert.Equal(t, OrderStatusNew, order.Status)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"1700000060000", "1700000120000"}, timestamps)
}

func TestGetBalances(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fapi/v2/balance", r.URL.Path)
		verifySignature(t, r.URL.RawQuery)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"asset":"USDT","balance":"1000.5","availableBalance":"900"}]`))
	})

	rc, server := setupTestServer(handler)
	defer server.Close()

	balances, err := rc.GetBalances(context.Background())
	require.NoError(t, err)
	require.Len(t, balances, 1)
	assert.Equal(t, "USDT", balances[0].Asset)
	assert.Equal(t, "1000.5", balances[0].Balance)
}

const exchangeInfoJSON = `{
	"serverTime": 1,
	"symbols": [
		{
			"symbol": "BTCUSDT",
			"status": "TRADING",
			"filters": [
				{"filterType": "PRICE_FILTER", "minPrice": "0.01", "maxPrice": "1000000", "tickSize": "0.01"},
				{"filterType": "LOT_SIZE", "minQty": "0.001", "maxQty": "1000", "stepSize": "0.001"},
				{"filterType": "MIN_NOTIONAL"}
			]
		}
	]
}`

func TestGetSymbolFilters(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fapi/v1/exchangeInfo", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(exchangeInfoJSON))
	})

	rc, server := setupTestServer(handler)
	defer server.Close()

	t.Run("Found", func(t *testing.T) {
		filters, err := rc.GetSymbolFilters(context.Background(), "btcusdt")
		require.NoError(t, err)
		assert.Equal(t, "BTCUSDT", filters.Symbol)
		assert.True(t, decimal.RequireFromString("0.001").Equal(filters.LotSize.StepSize))
		assert.True(t, decimal.RequireFromString("1000").Equal(filters.LotSize.MaxQty))
		assert.True(t, decimal.RequireFromString("0.01").Equal(filters.PriceFilter.TickSize))
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := rc.GetSymbolFilters(context.Background(), "ETHUSDT")
		assert.ErrorIs(t, err, ErrSymbolNotFound)
	})
}

func TestParseSymbolFilters_Errors(t *testing.T) {
	_, err := ParseSymbolFilters(SymbolInfo{
		Symbol:  "BTCUSDT",
		Filters: []Filter{{FilterType: FilterTypePrice, MinPrice: "0.01", MaxPrice: "10", TickSize: "0.01"}},
	})
	assert.ErrorContains(t, err, "LOT_SIZE filter not found")

	_, err = ParseSymbolFilters(SymbolInfo{
		Symbol: "BTCUSDT",
		Filters: []Filter{
			{FilterType: FilterTypeLotSize, MinQty: "abc", MaxQty: "1", StepSize: "0.1"},
		},
	})
	assert.ErrorContains(t, err, "LOT_SIZE.minQty")
}

func TestNewRestClient(t *testing.T) {
	t.Run("Testnet", func(t *testing.T) {
		cfg := &config.Binance{Testnet: true, ApiKey: "k", SecretKey: "s", RateLimit: 10, RateLimitBurst: 1}
		rc := NewRestClient(cfg, zap.NewNop())
		assert.NotNil(t, rc)
		assert.Equal(t, testnetBaseURL, rc.client.BaseURL)
		assert.Equal(t, cfg.ApiKey, rc.apiKey)
		assert.Equal(t, cfg.SecretKey, rc.secretKey)
		assert.Equal(t, defaultRecvWindow, rc.recvWindow)
	})

	t.Run("Production", func(t *testing.T) {
		cfg := &config.Binance{Testnet: false, RecvWindow: 10000}
		rc := NewRestClient(cfg, zap.NewNop())
		assert.NotNil(t, rc)
		assert.Equal(t, baseURL, rc.client.BaseURL)
		assert.Equal(t, 10000, rc.recvWindow)
	})
}
