package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"binance-futures-bot-go/internal/binance"
	"binance-futures-bot-go/internal/market"
	"binance-futures-bot-go/internal/trader"
	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

type options struct {
	poll    time.Duration
	timeout time.Duration
}

type command struct {
	usage string
	nargs int
	flags func(fs *pflag.FlagSet, o *options)
	run   func(ctx context.Context, a *app, args []string) error
}

var commandOrder = []string{"check", "market", "limit", "stoplimit", "twap", "oco", "grid"}

var commands = map[string]command{
	"check":     {usage: "(connection and wallet balance)", nargs: 0, run: runCheck},
	"market":    {usage: "<symbol> <BUY|SELL> <quantity>", nargs: 3, run: runMarket},
	"limit":     {usage: "<symbol> <BUY|SELL> <quantity> <price>", nargs: 4, run: runLimit},
	"stoplimit": {usage: "<symbol> <BUY|SELL> <quantity> <stop_price> <limit_price>", nargs: 5, run: runStopLimit},
	"twap":      {usage: "<symbol> <BUY|SELL> <total_qty> <intervals> <delay_seconds>", nargs: 5, run: runTWAP},
	"oco": {
		usage: "<symbol> <BUY|SELL> <quantity> <tp_price> <sl_price> [--poll 2s] [--timeout 5m]",
		nargs: 5,
		flags: func(fs *pflag.FlagSet, o *options) {
			fs.DurationVar(&o.poll, "poll", 0, "status poll interval (default from config)")
			fs.DurationVar(&o.timeout, "timeout", 0, "monitoring timeout (default from config)")
		},
		run: runOCO,
	},
	"grid": {usage: "<symbol> <lower> <upper> <levels> <qty_per_level>", nargs: 5, run: runGrid},
}

func runCheck(ctx context.Context, a *app, _ []string) error {
	var (
		serverTime int64
		balances   []binance.Balance
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		serverTime, err = a.client.GetServerTime(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		balances, err = a.client.GetBalances(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		fmt.Println("CONNECTION FAILED:", err)
		return err
	}

	fmt.Println("CONNECTION SUCCESS!")
	fmt.Printf("Server time: %s\n", time.UnixMilli(serverTime).UTC().Format(time.RFC3339))
	for _, b := range balances {
		if b.Asset == "USDT" {
			fmt.Printf("Your Wallet Balance: %s USDT (available %s)\n", b.Balance, b.AvailableBalance)
			return nil
		}
	}
	fmt.Println("No USDT balance found")
	return nil
}

func runMarket(ctx context.Context, a *app, args []string) error {
	side, qty, err := parseSideQty(args[1], args[2])
	if err != nil {
		return err
	}
	placed, err := a.engine.Market(ctx, args[0], side, qty)
	if err != nil {
		return err
	}
	printOrder(placed)
	return nil
}

func runLimit(ctx context.Context, a *app, args []string) error {
	side, qty, err := parseSideQty(args[1], args[2])
	if err != nil {
		return err
	}
	price, err := parseDecimal("price", args[3])
	if err != nil {
		return err
	}
	placed, err := a.engine.Limit(ctx, args[0], side, qty, price)
	if err != nil {
		return err
	}
	printOrder(placed)
	return nil
}

func runStopLimit(ctx context.Context, a *app, args []string) error {
	side, qty, err := parseSideQty(args[1], args[2])
	if err != nil {
		return err
	}
	stop, err := parseDecimal("stop_price", args[3])
	if err != nil {
		return err
	}
	limit, err := parseDecimal("limit_price", args[4])
	if err != nil {
		return err
	}
	placed, err := a.engine.StopLimit(ctx, args[0], side, qty, stop, limit)
	if err != nil {
		return err
	}
	printOrder(placed)
	return nil
}

func runTWAP(ctx context.Context, a *app, args []string) error {
	side, qty, err := parseSideQty(args[1], args[2])
	if err != nil {
		return err
	}
	intervals, err := strconv.Atoi(args[3])
	if err != nil {
		return fmt.Errorf("invalid intervals %q: %w", args[3], err)
	}
	delay, err := strconv.Atoi(args[4])
	if err != nil || delay < 0 {
		return fmt.Errorf("invalid delay_seconds %q", args[4])
	}

	report, err := a.engine.TWAP(ctx, trader.TWAPRequest{
		Symbol:    args[0],
		Side:      side,
		TotalQty:  qty,
		Intervals: intervals,
		Delay:     time.Duration(delay) * time.Second,
	})
	fmt.Printf("TWAP %s: %d/%d slices of %s executed (%s total)\n",
		report.RunID, len(report.Slices), report.Requested, report.SliceQty, report.ExecutedQty())
	for i, s := range report.Slices {
		fmt.Printf("  slice %d: order %d %s\n", i+1, s.OrderID, s.Status)
	}
	return err
}

func runOCO(ctx context.Context, a *app, args []string) error {
	side, qty, err := parseSideQty(args[1], args[2])
	if err != nil {
		return err
	}
	tp, err := parseDecimal("tp_price", args[3])
	if err != nil {
		return err
	}
	sl, err := parseDecimal("sl_price", args[4])
	if err != nil {
		return err
	}

	outcome, err := a.engine.OCO(ctx, trader.OCORequest{
		Symbol:       args[0],
		Side:         side,
		Quantity:     qty,
		TakeProfit:   tp,
		StopLoss:     sl,
		PollInterval: a.opts.poll,
		Timeout:      a.opts.timeout,
	})
	if outcome.TakeProfit != nil {
		fmt.Printf("take-profit order %d at %s\n", outcome.TakeProfit.OrderID, outcome.TakeProfit.Price)
	}
	if outcome.StopLoss != nil {
		fmt.Printf("stop-loss order %d at %s\n", outcome.StopLoss.OrderID, outcome.StopLoss.StopPrice)
	}
	fmt.Printf("OCO %s finished: %s (filled: %s) after %d polls\n", outcome.RunID, outcome.State, outcome.Indicator(), outcome.Polls)
	return err
}

func runGrid(ctx context.Context, a *app, args []string) error {
	lower, err := parseDecimal("lower", args[1])
	if err != nil {
		return err
	}
	upper, err := parseDecimal("upper", args[2])
	if err != nil {
		return err
	}
	levels, err := strconv.Atoi(args[3])
	if err != nil {
		return fmt.Errorf("invalid levels %q: %w", args[3], err)
	}
	qty, err := parseDecimal("qty_per_level", args[4])
	if err != nil {
		return err
	}

	report, err := a.engine.Grid(ctx, trader.GridRequest{
		Symbol:      args[0],
		Lower:       lower,
		Upper:       upper,
		Levels:      levels,
		QtyPerLevel: qty,
	})
	fmt.Printf("Grid %s: %d of %d buy orders live\n", report.RunID, len(report.Orders), len(report.Levels))
	for _, o := range report.Orders {
		fmt.Printf("  order %d: BUY %s @ %s\n", o.OrderID, o.Quantity, o.Price)
	}
	return err
}

func parseSideQty(side, qty string) (market.Side, decimal.Decimal, error) {
	s, err := market.ParseSide(side)
	if err != nil {
		return "", decimal.Zero, err
	}
	q, err := parseDecimal("quantity", qty)
	return s, q, err
}

func parseDecimal(name, value string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s %q: %w", name, value, err)
	}
	return d, nil
}

func printOrder(o *trader.PlacedOrder) {
	fmt.Printf("Order %d (%s) %s %s %s qty=%s", o.OrderID, o.ClientOrderID, o.Symbol, o.Side, o.Type, o.Quantity)
	if !o.Price.IsZero() {
		fmt.Printf(" price=%s", o.Price)
	}
	if !o.StopPrice.IsZero() {
		fmt.Printf(" stop=%s", o.StopPrice)
	}
	fmt.Printf(" status=%s\n", o.Status)
}
