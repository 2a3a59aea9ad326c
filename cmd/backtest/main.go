package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"binance-futures-bot-go/internal/backtest"
	"binance-futures-bot-go/internal/config"
	"binance-futures-bot-go/internal/database"
	"binance-futures-bot-go/internal/logger"
	"binance-futures-bot-go/internal/market"
	"binance-futures-bot-go/internal/models"
	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

const usage = `Backtester for TWAP and Grid using historical CSV

usage:
  backtest twap <total_qty> <intervals> [--side BUY|SELL] [--slippage pct] [--fee pct]
  backtest grid <lower> <upper> <levels> <qty> [--slippage pct] [--fee pct]

common flags: --config dir, --data file.csv, --out dir`

type flags struct {
	configDir string
	dataPath  string
	outDir    string
	side      string
	slippage  float64
	fee       float64
}

func main() {
	if len(os.Args) < 2 || (os.Args[1] != "twap" && os.Args[1] != "grid") {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	name := os.Args[1]

	f, args, err := parseFlags(name, os.Args[2:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}

	cfg, err := config.LoadConfig(f.configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not load config: %v\n", err)
		os.Exit(1)
	}
	applyFlags(&cfg.Backtest, f)

	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format, cfg.Logger.File)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	r := &runner{
		log:  log,
		cfg:  cfg.Backtest,
		sim:  backtest.NewSimulator(log),
		sink: backtest.NewCSVSink(cfg.Backtest.OutputDir),
	}
	// Run history is optional for the backtester.
	if db, err := database.NewDatabase(cfg.Database.DSN); err != nil {
		log.Warn("Backtest runs will not be recorded", zap.Error(err))
	} else {
		r.journal = database.NewJournal(db)
	}

	switch name {
	case "twap":
		err = r.twap(context.Background(), args, f.side)
	case "grid":
		err = r.grid(context.Background(), args)
	}
	if err != nil {
		log.Error("Backtest failed", zap.String("command", name), zap.Error(err))
		fmt.Fprintf(os.Stderr, "%s backtest failed: %v\n", name, err)
		log.Sync()
		os.Exit(1)
	}
}

// parseFlags parses the flags of the twap or grid subcommand and returns the
// remaining positional arguments. Negative slippage and fee mean "use config".
func parseFlags(name string, argv []string) (flags, []string, error) {
	var f flags
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.StringVarP(&f.configDir, "config", "c", "./configs", "directory holding config.yml")
	fs.StringVar(&f.dataPath, "data", "", "historical trades CSV (default from config)")
	fs.StringVar(&f.outDir, "out", "", "output directory for result tables (default from config)")
	fs.Float64Var(&f.slippage, "slippage", -1, "slippage percent (default from config)")
	fs.Float64Var(&f.fee, "fee", -1, "fee percent (default from config)")
	if name == "twap" {
		fs.StringVar(&f.side, "side", "BUY", "BUY or SELL")
	}
	fs.Usage = func() { fmt.Fprintln(os.Stderr, usage) }
	if err := fs.Parse(argv); err != nil {
		return f, nil, err
	}
	return f, fs.Args(), nil
}

func applyFlags(bt *config.Backtest, f flags) {
	if f.dataPath != "" {
		bt.DataPath = f.dataPath
	}
	if f.outDir != "" {
		bt.OutputDir = f.outDir
	}
	if f.slippage >= 0 {
		bt.SlippagePct = f.slippage
	}
	if f.fee >= 0 {
		bt.FeePct = f.fee
	}
}

type runner struct {
	log     *zap.Logger
	cfg     config.Backtest
	sim     *backtest.Simulator
	sink    backtest.ResultSink
	journal *database.Journal
}

func (r *runner) loadTicks() ([]backtest.Tick, error) {
	return backtest.LoadTicks(r.cfg.DataPath, backtest.CSVOptions{
		TimestampColumn:  r.cfg.TimestampColumn,
		PriceColumn:      r.cfg.PriceColumn,
		TimestampLayouts: r.cfg.TimestampLayouts,
	})
}

func (r *runner) twap(ctx context.Context, args []string, sideArg string) error {
	if len(args) != 2 {
		return fmt.Errorf("twap expects <total_qty> <intervals>, got %d arguments", len(args))
	}
	qty, err := decimal.NewFromString(args[0])
	if err != nil {
		return fmt.Errorf("invalid total_qty %q: %w", args[0], err)
	}
	intervals, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid intervals %q: %w", args[1], err)
	}
	side, err := market.ParseSide(sideArg)
	if err != nil {
		return err
	}

	ticks, err := r.loadTicks()
	if err != nil {
		return err
	}
	params := backtest.TWAPParams{
		TotalQty:    qty,
		Slices:      intervals,
		Side:        side,
		SlippagePct: decimal.NewFromFloat(r.cfg.SlippagePct),
		FeePct:      decimal.NewFromFloat(r.cfg.FeePct),
	}
	res, err := r.sim.SimulateTWAP(ticks, params)
	if err != nil {
		return err
	}
	path, err := r.sink.WriteTWAP(res)
	if err != nil {
		return err
	}

	fmt.Println("TWAP simulation complete. Executions saved to", path)
	if res.Truncated() {
		fmt.Printf("Only %d of %d slices had data\n", len(res.Slices), res.RequestedSlices)
	}
	fmt.Println("Avg price:", res.AvgPrice.StringFixed(8))
	fmt.Println("Pnl:", res.PnL.StringFixed(8))

	r.record(ctx, &models.BacktestRun{
		Kind:       "twap",
		Rows:       len(res.Slices),
		AvgPrice:   res.AvgPrice.String(),
		PnL:        res.PnL.String(),
		OutputPath: path,
	}, map[string]any{
		"total_qty":    params.TotalQty.String(),
		"slices":       params.Slices,
		"side":         params.Side,
		"slippage_pct": params.SlippagePct.String(),
		"fee_pct":      params.FeePct.String(),
		"data":         r.cfg.DataPath,
	})
	return nil
}

func (r *runner) grid(ctx context.Context, args []string) error {
	if len(args) != 4 {
		return fmt.Errorf("grid expects <lower> <upper> <levels> <qty>, got %d arguments", len(args))
	}
	var nums [3]decimal.Decimal
	for i, idx := range []int{0, 1, 3} {
		v, err := decimal.NewFromString(args[idx])
		if err != nil {
			return fmt.Errorf("invalid number %q: %w", args[idx], err)
		}
		nums[i] = v
	}
	levels, err := strconv.Atoi(args[2])
	if err != nil {
		return fmt.Errorf("invalid levels %q: %w", args[2], err)
	}

	ticks, err := r.loadTicks()
	if err != nil {
		return err
	}
	params := backtest.GridParams{
		Lower:       nums[0],
		Upper:       nums[1],
		Levels:      levels,
		QtyPerLevel: nums[2],
		SlippagePct: decimal.NewFromFloat(r.cfg.SlippagePct),
		FeePct:      decimal.NewFromFloat(r.cfg.FeePct),
	}
	res, err := r.sim.SimulateGrid(ticks, params)
	if err != nil {
		return err
	}
	path, err := r.sink.WriteGrid(res)
	if err != nil {
		return err
	}

	fmt.Println("Grid simulation complete. Fills saved to", path)
	fmt.Printf("Filled levels: %d of %d (wins %d, losses %d)\n", len(res.Fills), len(res.Levels), res.Wins, res.Losses)
	fmt.Println("Total PnL:", res.TotalPnL.StringFixed(8))

	r.record(ctx, &models.BacktestRun{
		Kind:       "grid",
		Rows:       len(res.Fills),
		PnL:        res.TotalPnL.String(),
		OutputPath: path,
	}, map[string]any{
		"lower":         params.Lower.String(),
		"upper":         params.Upper.String(),
		"levels":        params.Levels,
		"qty_per_level": params.QtyPerLevel.String(),
		"slippage_pct":  params.SlippagePct.String(),
		"fee_pct":       params.FeePct.String(),
		"data":          r.cfg.DataPath,
	})
	return nil
}

func (r *runner) record(ctx context.Context, run *models.BacktestRun, params map[string]any) {
	if r.journal == nil {
		return
	}
	raw, err := json.Marshal(params)
	if err != nil {
		r.log.Warn("Failed to encode backtest parameters", zap.Error(err))
	}
	run.Params = string(raw)
	run.Timestamp = time.Now().Unix()
	if err := r.journal.RecordBacktest(ctx, run); err != nil {
		r.log.Warn("Failed to record backtest run", zap.Error(err))
	}
}
