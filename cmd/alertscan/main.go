// alertscan runs one sellout-monitor scan and prints the decision as JSON.
// Usage: go run ./cmd/alertscan --config configs/aggregator.local.yaml
//
// Exit codes: 0 when the scan fired an alert, 1 when it did not, 2 on
// error. Logs go to stderr so stdout stays parseable.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mhollis/stagewatch/internal/catalog"
	"github.com/mhollis/stagewatch/internal/config"
	"github.com/mhollis/stagewatch/internal/database"
	"github.com/mhollis/stagewatch/internal/sellout"
	"github.com/mhollis/stagewatch/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/aggregator.local.yaml", "path to config file")
	lookback := flag.Duration("lookback", 0, "transition window to scan (default: config value)")
	pretty := flag.Bool("pretty", false, "indent the JSON output")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	logger.Info("starting alert scan",
		"version", version.Version,
		"config", *configPath,
	)

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(2)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(2)
	}
	defer pool.Close()

	store := catalog.New(pool, logger)
	monitor := sellout.NewMonitor(store, sellout.Config{
		Lookback:       cfg.Monitor.Lookback,
		MinSellingFast: cfg.Monitor.MinSellingFast,
		MinSoldOut:     cfg.Monitor.MinSoldOut,
	}, logger)

	window := cfg.Monitor.Lookback
	if *lookback > 0 {
		window = *lookback
	}

	scanCtx, scanCancel := context.WithTimeout(ctx, 30*time.Second)
	defer scanCancel()

	decision, err := monitor.ScanForAlerts(scanCtx, window)
	if err != nil {
		logger.Error("scan failed", "error", err)
		os.Exit(2)
	}

	enc := json.NewEncoder(os.Stdout)
	if *pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(decision); err != nil {
		logger.Error("failed to encode decision", "error", err)
		os.Exit(2)
	}

	if !decision.Alert {
		os.Exit(1)
	}
}
