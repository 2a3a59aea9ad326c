package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"binance-futures-bot-go/internal/database"
	"binance-futures-bot-go/internal/models"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// store is the read side of the journal the dashboard needs.
type store interface {
	RecentOrders(ctx context.Context, limit int) ([]models.OrderRecord, error)
	RecentBacktests(ctx context.Context, limit int) ([]models.BacktestRun, error)
	OrderStats(ctx context.Context, since time.Time) (database.OrderStats, error)
	BacktestStats(ctx context.Context) (database.BacktestStats, error)
}

// APIHandler holds dependencies for the API endpoints.
type APIHandler struct {
	log   *zap.Logger
	store store
	now   func() time.Time
}

// NewAPIHandler creates a new APIHandler.
func NewAPIHandler(log *zap.Logger, store store) *APIHandler {
	return &APIHandler{log: log.Named("ui"), store: store, now: time.Now}
}

// NewRouter wires the API routes behind CORS for the given origins.
func NewRouter(h *APIHandler, allowedOrigins []string) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/health", h.HealthHandler).Methods(http.MethodGet)

	// Registered on the root router so a wrong method answers 405, not 404.
	r.HandleFunc("/api/orders", h.OrdersHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/backtests", h.BacktestsHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/statistics", h.StatisticsHandler).Methods(http.MethodGet)

	return cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
	}).Handler(r)
}

func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, map[string]string{"status": "ok"})
}

// OrdersHandler returns the journaled orders, most recent first.
func (h *APIHandler) OrdersHandler(w http.ResponseWriter, r *http.Request) {
	limit, ok := h.limit(w, r)
	if !ok {
		return
	}
	orders, err := h.store.RecentOrders(r.Context(), limit)
	if err != nil {
		h.log.Error("Failed to get orders from database", zap.Error(err))
		http.Error(w, "Failed to get orders", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, orders)
}

// BacktestsHandler returns the recorded backtest runs, most recent first.
func (h *APIHandler) BacktestsHandler(w http.ResponseWriter, r *http.Request) {
	limit, ok := h.limit(w, r)
	if !ok {
		return
	}
	runs, err := h.store.RecentBacktests(r.Context(), limit)
	if err != nil {
		h.log.Error("Failed to get backtest runs from database", zap.Error(err))
		http.Error(w, "Failed to get backtest runs", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, runs)
}

// StatisticsResponse is the structure for the /api/statistics endpoint.
type StatisticsResponse struct {
	Since24h  database.OrderStats    `json:"since_24h"`
	AllTime   database.OrderStats    `json:"all_time"`
	Backtests database.BacktestStats `json:"backtests"`
}

// StatisticsHandler aggregates order and backtest statistics.
func (h *APIHandler) StatisticsHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var (
		resp StatisticsResponse
		err  error
	)

	if resp.Since24h, err = h.store.OrderStats(ctx, h.now().Add(-24*time.Hour)); err != nil {
		h.statsFailed(w, err)
		return
	}
	if resp.AllTime, err = h.store.OrderStats(ctx, time.Time{}); err != nil {
		h.statsFailed(w, err)
		return
	}
	if resp.Backtests, err = h.store.BacktestStats(ctx); err != nil {
		h.statsFailed(w, err)
		return
	}

	h.writeJSON(w, resp)
}

func (h *APIHandler) statsFailed(w http.ResponseWriter, err error) {
	h.log.Error("Failed to calculate statistics", zap.Error(err))
	http.Error(w, "Failed to calculate statistics", http.StatusInternalServerError)
}

func (h *APIHandler) limit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
		return 0, false
	}
	return min(n, maxLimit), true
}

func (h *APIHandler) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("Failed to encode response", zap.Error(err))
	}
}
