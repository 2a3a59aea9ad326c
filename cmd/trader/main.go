package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"binance-futures-bot-go/internal/binance"
	"binance-futures-bot-go/internal/config"
	"binance-futures-bot-go/internal/database"
	"binance-futures-bot-go/internal/logger"
	"binance-futures-bot-go/internal/trader"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

// app carries the collaborators shared by every subcommand.
type app struct {
	log    *zap.Logger
	cfg    config.Config
	client binance.FuturesClient
	engine *trader.Engine
	opts   options
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	name := os.Args[1]
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", name)
		printUsage()
		os.Exit(2)
	}

	a := &app{}
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	configDir := fs.StringP("config", "c", "./configs", "directory holding config.yml")
	testnet := fs.Bool("testnet", false, "use the futures testnet")
	if cmd.flags != nil {
		cmd.flags(fs, &a.opts)
	}
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: trader %s %s\n", name, cmd.usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(os.Args[2:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}
	if fs.NArg() != cmd.nargs {
		fs.Usage()
		os.Exit(2)
	}

	// Load application configuration
	cfg, err := config.LoadConfig(*configDir)
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		fmt.Fprintf(os.Stderr, "could not load config: %v\n", err)
		os.Exit(1)
	}
	if *testnet {
		cfg.Binance.Testnet = true
	}
	a.cfg = cfg

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format, cfg.Logger.File)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	a.log = log

	if err := cfg.Binance.RequireCredentials(); err != nil {
		log.Error("Cannot start", zap.Error(err))
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// Initialize database
	db, err := database.NewDatabase(cfg.Database.DSN)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}

	a.client = binance.NewRestClient(&cfg.Binance, log)
	a.engine = trader.NewEngine(log, cfg.Strategy, a.client, database.NewJournal(db))

	// Setup context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("Running command", zap.String("command", name), zap.Strings("args", fs.Args()), zap.Bool("testnet", cfg.Binance.Testnet))
	if err := cmd.run(ctx, a, fs.Args()); err != nil {
		log.Error("Command failed", zap.String("command", name), zap.Error(err))
		fmt.Fprintf(os.Stderr, "%s failed: %v\n", name, err)
		log.Sync()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "Binance USDⓈ-M futures order bot")
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "usage: trader <command> [args] [flags]")
	fmt.Fprintln(os.Stderr)
	for _, name := range commandOrder {
		fmt.Fprintf(os.Stderr, "  %-10s %s\n", name, commands[name].usage)
	}
}
