package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mhollis/stagewatch/internal/aggregate"
	"github.com/mhollis/stagewatch/internal/catalog"
	"github.com/mhollis/stagewatch/internal/config"
	"github.com/mhollis/stagewatch/internal/database"
	"github.com/mhollis/stagewatch/internal/dedup"
	"github.com/mhollis/stagewatch/internal/metrics"
	"github.com/mhollis/stagewatch/internal/model"
	"github.com/mhollis/stagewatch/internal/sellout"
	"github.com/mhollis/stagewatch/internal/source"
	"github.com/mhollis/stagewatch/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/aggregator.local.yaml", "path to config file")
	once := flag.Bool("once", false, "run a single fetch cycle and exit")
	sources := flag.String("sources", "", "comma-separated source names to fetch (default: all enabled)")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting aggregator",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"city", cfg.Instance.City,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Connect to database
	logger.Info("connecting to database",
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"database", cfg.Database.Name,
	)

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := database.EnsureSchema(ctx, pool); err != nil {
		logger.Error("failed to apply schema", "error", err)
		os.Exit(1)
	}

	logger.Info("database connected")

	// Build the source registry. Sources without credentials register as
	// disabled and are skipped by cycles.
	registry := source.NewRegistry(
		source.NewTicketmaster(cfg.Sources.Ticketmaster, cfg.Instance.City, source.WithLogger(logger)),
		source.NewEventbrite(cfg.Sources.Eventbrite, cfg.Instance.City, source.WithLogger(logger)),
		source.NewSeatGeek(cfg.Sources.SeatGeek, cfg.Instance.City, source.WithLogger(logger)),
	)

	for _, src := range registry.All() {
		logger.Info("source registered",
			"source", src.Name(),
			"type", src.Type(),
			"enabled", src.Enabled(),
		)
	}

	store := catalog.New(pool, logger)
	merger := dedup.NewMerger(cfg.Dedup.TitleThreshold, cfg.Dedup.VenueThreshold)
	detector := sellout.NewDetector(cfg.Sellout.SellingFastPercent, cfg.Sellout.SellingFastRemaining)
	mets := metrics.New()

	agg := aggregate.New(
		aggregate.Config{
			Interval:      cfg.Fetch.Interval,
			Concurrency:   cfg.Fetch.Concurrency,
			SourceTimeout: cfg.Fetch.SourceTimeout,
			WindowDays:    cfg.Fetch.WindowDays,
		},
		registry, merger, detector, store, mets, logger,
	)

	if *once {
		os.Exit(runOnce(ctx, agg, store, cfg, splitSources(*sources), logger))
	}

	// Daemon mode: metrics/health server, cycle loop, monitor loop.
	mux := http.NewServeMux()
	mux.Handle(cfg.Metrics.Path, mets.Handler())
	mux.Handle("/health", healthHandler(pool, registry))

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler: mux,
	}

	go func() {
		logger.Info("starting metrics server",
			"port", cfg.Metrics.Port,
			"path", cfg.Metrics.Path,
		)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()

	if err := agg.Start(ctx); err != nil {
		logger.Error("failed to start aggregator", "error", err)
		os.Exit(1)
	}

	monitor := sellout.NewMonitor(store, sellout.Config{
		Lookback:       cfg.Monitor.Lookback,
		MinSellingFast: cfg.Monitor.MinSellingFast,
		MinSoldOut:     cfg.Monitor.MinSoldOut,
	}, logger)

	go runMonitorLoop(ctx, monitor, mets, cfg.Monitor.Interval, logger)

	logger.Info("aggregator running",
		"instance_id", cfg.Instance.ID,
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Metrics.Port),
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := agg.Stop(shutdownCtx); err != nil {
		logger.Error("aggregator shutdown error", "error", err)
	}
	server.Shutdown(shutdownCtx)

	logger.Info("aggregator stopped")
}

// runOnce executes a single fetch cycle and prints a scarcity summary.
// Used from cron or by hand; the daemon loop is not started.
func runOnce(ctx context.Context, agg *aggregate.Aggregator, store *catalog.Store, cfg *config.AggregatorConfig, only []string, logger *slog.Logger) int {
	start := time.Now().UTC()
	end := start.AddDate(0, 0, cfg.Fetch.WindowDays)

	report, err := agg.RunFetchCycle(ctx, start, end, only)
	if err != nil {
		logger.Error("fetch cycle failed", "error", err)
		return 1
	}

	for _, s := range report.Sources {
		if s.Err != nil {
			logger.Warn("source failed",
				"source", s.Source,
				"error", s.Err,
			)
			continue
		}
		logger.Info("source ok",
			"source", s.Source,
			"events", s.Events,
			"dropped", s.Dropped,
			"duration", s.Duration,
		)
	}

	logger.Info("cycle finished",
		"fetched", report.Fetched,
		"groups", report.Groups,
		"created", report.Created,
		"updated", report.Updated,
		"transitions", report.Transitions,
		"persist_failures", len(report.Failures),
		"duration", report.Duration,
	)

	// Scarcity summary: upcoming events already under pressure.
	scarce, err := store.ListEvents(ctx, catalog.Filter{
		Statuses: []model.AvailabilityStatus{model.StatusSellingFast, model.StatusSoldOut},
		From:     start,
		Limit:    20,
	})
	if err != nil {
		logger.Warn("scarcity summary unavailable", "error", err)
		return 0
	}
	for _, e := range scarce {
		logger.Info("scarce event",
			"title", e.Title,
			"venue", e.VenueName,
			"start", e.StartTime.Format("2006-01-02"),
			"status", e.Status,
			"sources", len(e.Sources),
		)
	}

	return 0
}

// runMonitorLoop scans for sellout alerts on the configured interval.
func runMonitorLoop(ctx context.Context, monitor *sellout.Monitor, mets *metrics.Metrics, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			decision, err := monitor.LatestDecision(ctx)
			if err != nil {
				logger.Error("alert scan failed", "error", err)
				continue
			}
			if !decision.Alert {
				continue
			}
			mets.Alerts.Inc()
			logger.Warn("sellout alert",
				"selling_fast", len(decision.SellingFast),
				"sold_out", len(decision.SoldOut),
				"window_start", decision.WindowStart,
			)
		}
	}
}

// healthHandler reports database reachability and source registry state.
func healthHandler(pool *pgxpool.Pool, registry *source.Registry) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string         `json:"status"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]any),
		}

		if err := pool.Ping(ctx); err != nil {
			health.Status = "unhealthy"
			health.Components["database"] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
		} else {
			health.Components["database"] = "connected"
		}

		enabled := registry.Enabled()
		health.Components["sources"] = map[string]any{
			"registered": len(registry.All()),
			"enabled":    len(enabled),
		}
		if len(enabled) == 0 {
			health.Status = "degraded"
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})
}

// splitSources parses the -sources flag into registry names.
func splitSources(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if name := strings.TrimSpace(part); name != "" {
			out = append(out, name)
		}
	}
	return out
}
