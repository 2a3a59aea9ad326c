package backtest

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const (
	TWAPTableName = "twap_executions.csv"
	GridTableName = "grid_fills.csv"
)

// ResultSink receives finished result tables, for example to chart them.
type ResultSink interface {
	WriteTWAP(res *TWAPResult) (string, error)
	WriteGrid(res *GridResult) (string, error)
}

// CSVSink writes result tables into Dir.
type CSVSink struct {
	Dir string
}

func NewCSVSink(dir string) *CSVSink {
	return &CSVSink{Dir: dir}
}

func (s *CSVSink) WriteTWAP(res *TWAPResult) (string, error) {
	rows := [][]string{{
		"ts", "market_price", "exec_price", "qty", "fee",
		"cumulative_fee", "cumulative_qty", "avg_price_so_far",
	}}
	for _, sl := range res.Slices {
		rows = append(rows, []string{
			sl.Timestamp.Format(time.RFC3339),
			sl.MarketPrice.String(),
			sl.ExecPrice.String(),
			sl.Qty.String(),
			sl.Fee.String(),
			sl.CumulativeFee.String(),
			sl.CumulativeQty.String(),
			sl.AvgPriceSoFar.String(),
		})
	}
	return s.write(TWAPTableName, rows)
}

func (s *CSVSink) WriteGrid(res *GridResult) (string, error) {
	rows := [][]string{{
		"level_price", "buy_ts", "buy_price", "sell_ts", "sell_price", "fees", "pnl", "closed_at_end",
	}}
	for _, f := range res.Fills {
		rows = append(rows, []string{
			f.LevelPrice.String(),
			f.BuyTimestamp.Format(time.RFC3339),
			f.BuyPrice.String(),
			f.SellTimestamp.Format(time.RFC3339),
			f.SellPrice.String(),
			f.Fees.String(),
			f.PnL.String(),
			strconv.FormatBool(f.ClosedAtEnd),
		})
	}
	return s.write(GridTableName, rows)
}

func (s *CSVSink) write(name string, rows [][]string) (string, error) {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	path := filepath.Join(s.Dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", name, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}
	return path, f.Close()
}
