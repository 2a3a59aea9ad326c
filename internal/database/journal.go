package database

import (
	"context"
	"fmt"
	"time"

	"binance-futures-bot-go/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Journal stores placed orders and backtest runs.
type Journal struct {
	db *gorm.DB
}

func NewJournal(db *gorm.DB) *Journal {
	return &Journal{db: db}
}

// RecordOrder saves one order accepted by the exchange.
func (j *Journal) RecordOrder(ctx context.Context, rec *models.OrderRecord) error {
	if err := j.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("failed to save order %d: %w", rec.OrderID, err)
	}
	return nil
}

// RecordBacktest saves the summary of a simulator run.
func (j *Journal) RecordBacktest(ctx context.Context, run *models.BacktestRun) error {
	if err := j.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("failed to save backtest run: %w", err)
	}
	return nil
}

// RecentOrders returns up to limit orders, most recent first.
func (j *Journal) RecentOrders(ctx context.Context, limit int) ([]models.OrderRecord, error) {
	var orders []models.OrderRecord
	if err := j.db.WithContext(ctx).Order("timestamp desc, id desc").Limit(limit).Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("failed to get orders: %w", err)
	}
	return orders, nil
}

// RecentBacktests returns up to limit backtest runs, most recent first.
func (j *Journal) RecentBacktests(ctx context.Context, limit int) ([]models.BacktestRun, error) {
	var runs []models.BacktestRun
	if err := j.db.WithContext(ctx).Order("timestamp desc, id desc").Limit(limit).Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("failed to get backtest runs: %w", err)
	}
	return runs, nil
}

// OrderStats counts journaled orders per strategy.
type OrderStats struct {
	TotalOrders int64            `json:"total_orders"`
	Runs        int64            `json:"runs"`
	ByStrategy  map[string]int64 `json:"by_strategy"`
}

// OrderStats aggregates the orders placed at or after since. A zero since covers all time.
func (j *Journal) OrderStats(ctx context.Context, since time.Time) (OrderStats, error) {
	stats := OrderStats{ByStrategy: map[string]int64{}}

	scope := func() *gorm.DB {
		q := j.db.WithContext(ctx).Model(&models.OrderRecord{})
		if !since.IsZero() {
			q = q.Where("timestamp >= ?", since.Unix())
		}
		return q
	}

	var rows []struct {
		Strategy string
		Count    int64
	}
	if err := scope().Select("strategy, count(*) as count").Group("strategy").Scan(&rows).Error; err != nil {
		return stats, fmt.Errorf("failed to count orders: %w", err)
	}
	for _, row := range rows {
		stats.ByStrategy[row.Strategy] = row.Count
		stats.TotalOrders += row.Count
	}

	if err := scope().Distinct("run_id").Count(&stats.Runs).Error; err != nil {
		return stats, fmt.Errorf("failed to count runs: %w", err)
	}
	return stats, nil
}

// BacktestStats summarises the recorded simulator runs.
type BacktestStats struct {
	TotalRuns      int64   `json:"total_runs"`
	ProfitableRuns int64   `json:"profitable_runs"`
	WinRate        float64 `json:"win_rate"`
	TotalPnL       string  `json:"total_pnl"`
}

func (j *Journal) BacktestStats(ctx context.Context) (BacktestStats, error) {
	var runs []models.BacktestRun
	if err := j.db.WithContext(ctx).Select("pnl").Find(&runs).Error; err != nil {
		return BacktestStats{}, fmt.Errorf("failed to get backtest runs for statistics: %w", err)
	}

	total := decimal.Zero
	stats := BacktestStats{}
	for _, run := range runs {
		pnl, err := decimal.NewFromString(run.PnL)
		if err != nil {
			continue
		}
		stats.TotalRuns++
		if pnl.IsPositive() {
			stats.ProfitableRuns++
		}
		total = total.Add(pnl)
	}
	if stats.TotalRuns > 0 {
		stats.WinRate = float64(stats.ProfitableRuns) / float64(stats.TotalRuns)
	}
	stats.TotalPnL = total.String()
	return stats, nil
}
