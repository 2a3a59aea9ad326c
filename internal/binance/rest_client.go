package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"binance-futures-bot-go/internal/config"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	baseURL           = "https://fapi.binance.com"
	testnetBaseURL    = "https://testnet.binancefuture.com"
	defaultRecvWindow = 5000 // How long a request is valid in milliseconds
	maxRetries        = 3
)

// FuturesClient defines the exchange operations the strategies depend on.
type FuturesClient interface {
	GetServerTime(ctx context.Context) (int64, error)
	GetExchangeInfo(ctx context.Context) (*ExchangeInfoResponse, error)
	GetSymbolFilters(ctx context.Context, symbol string) (SymbolFilters, error)
	GetBalances(ctx context.Context) ([]Balance, error)
	CreateOrder(ctx context.Context, req OrderRequest) (*OrderResponse, error)
	GetOrder(ctx context.Context, symbol string, orderID int64) (*OrderResponse, error)
	CancelOrder(ctx context.Context, symbol string, orderID int64) (*OrderResponse, error)
}

// RestClient is a client for the Binance USDⓈ-M futures REST API.
// It implements the FuturesClient.
type RestClient struct {
	client     *resty.Client
	apiKey     string
	secretKey  string
	recvWindow int
	logger     *zap.Logger
	limiter    *rate.Limiter
	now        func() time.Time
}

// ensure RestClient implements the interface
var _ FuturesClient = (*RestClient)(nil)

// NewRestClient creates a new Binance futures REST API client.
func NewRestClient(cfg *config.Binance, logger *zap.Logger) *RestClient {
	var url string
	if cfg.Testnet {
		url = testnetBaseURL
		logger.Warn("Using Binance Futures Testnet")
	} else {
		url = baseURL
		logger.Info("Using Binance Futures Production API")
	}

	client := resty.New().SetBaseURL(url)

	// rate.Limit is requests per second.
	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst)

	recvWindow := cfg.RecvWindow
	if recvWindow <= 0 {
		recvWindow = defaultRecvWindow
	}

	return &RestClient{
		client:     client,
		apiKey:     cfg.ApiKey,
		secretKey:  cfg.SecretKey,
		recvWindow: recvWindow,
		logger:     logger.Named("binance"),
		limiter:    limiter,
		now:        time.Now,
	}
}

// sign creates a HMAC-SHA256 signature for the request.
func (c *RestClient) sign(data string) string {
	h := hmac.New(sha256.New, []byte(c.secretKey))
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}

// signedQuery adds timestamp and recvWindow to params and appends the signature.
// The signature has to cover the exact string that is sent, so signed GET and DELETE
// requests carry it in the raw path instead of resty's re-encoded query params.
func (c *RestClient) signedQuery(params url.Values) string {
	params.Set("timestamp", strconv.FormatInt(c.now().UnixMilli(), 10))
	params.Set("recvWindow", strconv.Itoa(c.recvWindow))
	query := params.Encode()
	return query + "&signature=" + c.sign(query)
}

// GetServerTime fetches the current server time from Binance.
// This is a good endpoint to test connectivity.
func (c *RestClient) GetServerTime(ctx context.Context) (int64, error) {
	type ServerTimeResponse struct {
		ServerTime int64 `json:"serverTime"`
	}

	req := c.client.R().
		SetResult(&ServerTimeResponse{})

	resp, err := c.doRequest(ctx, resty.MethodGet, "/fapi/v1/time", nil, req)
	if err != nil {
		c.logger.Error("Failed to get server time", zap.Error(err))
		return 0, fmt.Errorf("failed to get server time: %w", err)
	}

	result := resp.Result().(*ServerTimeResponse)
	return result.ServerTime, nil
}

// doRequest handles the actual request execution with rate limiting and retry logic.
// Only GET requests are retried: an order that timed out may still have been accepted,
// so mutating requests are sent exactly once.
//
// A non-nil signed is signed again on every attempt, so a retry never carries the
// timestamp of an earlier one. POST sends it as the body, other methods in the path.
func (c *RestClient) doRequest(ctx context.Context, method, path string, signed url.Values, req *resty.Request) (*resty.Response, error) {
	var resp *resty.Response
	var err error

	attempts := 1
	if method == resty.MethodGet {
		attempts = maxRetries
	}

	req.SetContext(ctx)

	for i := 0; i < attempts; i++ {
		// Wait for the rate limiter
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}

		target := path
		if signed != nil {
			query := c.signedQuery(signed)
			if method == resty.MethodPost {
				req.SetBody(query)
			} else {
				target = path + "?" + query
			}
		}

		c.logger.Debug("Executing request", zap.String("method", method), zap.String("url", c.client.BaseURL+path))
		resp, err = req.Execute(method, target)

		if err == nil && !resp.IsError() {
			return resp, nil // Success
		}

		// Analyze error and decide whether to retry
		shouldRetry := false
		var retryAfter time.Duration

		if err != nil {
			// Network or other client-side errors
			shouldRetry = true
		} else {
			statusCode := resp.StatusCode()
			if statusCode == http.StatusTooManyRequests || statusCode == http.StatusTeapot {
				shouldRetry = true
				retryAfterHeader := resp.Header().Get("Retry-After")
				if seconds, convErr := strconv.Atoi(retryAfterHeader); convErr == nil {
					retryAfter = time.Duration(seconds) * time.Second
				}
			} else if statusCode >= http.StatusInternalServerError {
				shouldRetry = true
			}
			err = decodeAPIError(resp)
		}

		if !shouldRetry {
			return nil, err
		}
		if i == attempts-1 {
			break
		}

		if retryAfter == 0 {
			// Exponential backoff: 1s, 2s, 4s
			retryAfter = time.Duration(math.Pow(2, float64(i))) * time.Second
		}

		c.logger.Warn("Request failed, retrying...",
			zap.Int("attempt", i+1),
			zap.Duration("retry_after", retryAfter),
			zap.Error(err),
		)

		select {
		case <-time.After(retryAfter):
			continue
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if attempts > 1 {
		return nil, fmt.Errorf("request failed after %d attempts: %w", attempts, err)
	}
	return nil, err
}

func decodeAPIError(resp *resty.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode()}
	if jsonErr := json.Unmarshal(resp.Body(), apiErr); jsonErr != nil || apiErr.Msg == "" {
		apiErr.Msg = strings.TrimSpace(resp.String())
	}
	return apiErr
}

// GetExchangeInfo fetches exchange trading rules and symbol information.
func (c *RestClient) GetExchangeInfo(ctx context.Context) (*ExchangeInfoResponse, error) {
	var exchangeInfo ExchangeInfoResponse

	req := c.client.R().
		SetResult(&exchangeInfo).
		SetHeader("Content-Type", "application/json")

	resp, err := c.doRequest(ctx, resty.MethodGet, "/fapi/v1/exchangeInfo", nil, req)
	if err != nil {
		return nil, fmt.Errorf("failed to get exchange info: %w", err)
	}

	return resp.Result().(*ExchangeInfoResponse), nil
}

// GetSymbolFilters fetches the exchange info and returns the filters of a single symbol.
func (c *RestClient) GetSymbolFilters(ctx context.Context, symbol string) (SymbolFilters, error) {
	info, err := c.GetExchangeInfo(ctx)
	if err != nil {
		return SymbolFilters{}, err
	}

	for _, s := range info.Symbols {
		if strings.EqualFold(s.Symbol, symbol) {
			return ParseSymbolFilters(s)
		}
	}
	return SymbolFilters{}, fmt.Errorf("%w: %s", ErrSymbolNotFound, symbol)
}

// GetBalances returns the futures wallet balances.
func (c *RestClient) GetBalances(ctx context.Context) ([]Balance, error) {
	var balances []Balance

	req := c.client.R().
		SetHeader("X-MBX-APIKEY", c.apiKey).
		SetResult(&balances)

	if _, err := c.doRequest(ctx, resty.MethodGet, "/fapi/v2/balance", url.Values{}, req); err != nil {
		return nil, fmt.Errorf("failed to get balances: %w", err)
	}
	return balances, nil
}

// CreateOrder places a new order on Binance futures.
func (c *RestClient) CreateOrder(ctx context.Context, order OrderRequest) (*OrderResponse, error) {
	params := url.Values{}
	params.Set("symbol", strings.ToUpper(order.Symbol))
	params.Set("side", order.Side)
	params.Set("type", order.Type)
	params.Set("quantity", order.Quantity.String())
	if !order.Price.IsZero() {
		params.Set("price", order.Price.String())
	}
	if !order.StopPrice.IsZero() {
		params.Set("stopPrice", order.StopPrice.String())
	}
	if order.TimeInForce != "" {
		params.Set("timeInForce", order.TimeInForce)
	}
	if order.ClientOrderID != "" {
		params.Set("newClientOrderId", order.ClientOrderID)
	}

	req := c.client.R().
		SetHeader("X-MBX-APIKEY", c.apiKey).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetResult(&OrderResponse{})

	resp, err := c.doRequest(ctx, resty.MethodPost, "/fapi/v1/order", params, req)
	if err != nil {
		c.logger.Error("Failed to create order",
			zap.Error(err),
			zap.String("symbol", order.Symbol),
			zap.String("type", order.Type),
		)
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	result := resp.Result().(*OrderResponse)
	c.logger.Info("Successfully created order", zap.Any("order", result))
	return result, nil
}

// GetOrder queries the current state of an order.
func (c *RestClient) GetOrder(ctx context.Context, symbol string, orderID int64) (*OrderResponse, error) {
	params := url.Values{}
	params.Set("symbol", strings.ToUpper(symbol))
	params.Set("orderId", strconv.FormatInt(orderID, 10))

	req := c.client.R().
		SetHeader("X-MBX-APIKEY", c.apiKey).
		SetResult(&OrderResponse{})

	resp, err := c.doRequest(ctx, resty.MethodGet, "/fapi/v1/order", params, req)
	if err != nil {
		return nil, fmt.Errorf("failed to get order %d: %w", orderID, err)
	}
	return resp.Result().(*OrderResponse), nil
}

// CancelOrder cancels an open order.
func (c *RestClient) CancelOrder(ctx context.Context, symbol string, orderID int64) (*OrderResponse, error) {
	params := url.Values{}
	params.Set("symbol", strings.ToUpper(symbol))
	params.Set("orderId", strconv.FormatInt(orderID, 10))

	req := c.client.R().
		SetHeader("X-MBX-APIKEY", c.apiKey).
		SetResult(&OrderResponse{})

	resp, err := c.doRequest(ctx, resty.MethodDelete, "/fapi/v1/order", params, req)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel order %d: %w", orderID, err)
	}

	result := resp.Result().(*OrderResponse)
	c.logger.Info("Cancelled order", zap.Int64("order_id", result.OrderID), zap.String("status", result.Status))
	return result, nil
}
