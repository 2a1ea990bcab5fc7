// sourcecheck lists the configured sources and optionally probes them live.
// Usage: go run ./cmd/sourcecheck --config configs/aggregator.local.yaml --probe
//
// Without --probe it prints the registry and any stored health rows.
// With --probe it fetches a short window from every enabled source and
// prints what came back, without writing anything to the catalog.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/mhollis/stagewatch/internal/catalog"
	"github.com/mhollis/stagewatch/internal/config"
	"github.com/mhollis/stagewatch/internal/database"
	"github.com/mhollis/stagewatch/internal/source"
)

func main() {
	configPath := flag.String("config", "configs/aggregator.local.yaml", "path to config file")
	probe := flag.Bool("probe", false, "fetch a sample window from every enabled source")
	days := flag.Int("days", 7, "probe window in days")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	// Defaults only, no validation: probing the APIs must not require a
	// database to be configured.
	cfg, err := config.LoadWithDefaults(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	registry := source.NewRegistry(
		source.NewTicketmaster(cfg.Sources.Ticketmaster, cfg.Instance.City, source.WithLogger(logger)),
		source.NewEventbrite(cfg.Sources.Eventbrite, cfg.Instance.City, source.WithLogger(logger)),
		source.NewSeatGeek(cfg.Sources.SeatGeek, cfg.Instance.City, source.WithLogger(logger)),
	)

	fmt.Printf("%-14s %-8s %s\n", "SOURCE", "TYPE", "ENABLED")
	for _, src := range registry.All() {
		fmt.Printf("%-14s %-8s %v\n", src.Name(), src.Type(), src.Enabled())
	}

	printHealth(ctx, cfg, logger)

	if *probe {
		probeSources(ctx, registry, *days)
	}
}

// printHealth shows stored per-source health, when a database is reachable.
func printHealth(ctx context.Context, cfg *config.AggregatorConfig, logger *slog.Logger) {
	if cfg.Database.Host == "" {
		return
	}

	dbCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := database.Connect(dbCtx, cfg.Database)
	if err != nil {
		fmt.Printf("\n(no health data: %v)\n", err)
		return
	}
	defer pool.Close()

	rows, err := catalog.New(pool, logger).ListSourceHealth(dbCtx)
	if err != nil {
		fmt.Printf("\n(no health data: %v)\n", err)
		return
	}
	if len(rows) == 0 {
		fmt.Printf("\n(no health rows yet: run a fetch cycle first)\n")
		return
	}

	fmt.Printf("\n%-14s %-20s %-20s %-10s %s\n", "SOURCE", "LAST ATTEMPT", "LAST SUCCESS", "FETCHED", "LAST ERROR")
	for _, h := range rows {
		fmt.Printf("%-14s %-20s %-20s %-10d %s\n",
			h.SourceName,
			timestamp(h.LastAttemptAt),
			timestamp(h.LastSuccessAt),
			h.EventsFetched,
			h.LastError,
		)
	}
}

// probeSources fetches a short upcoming window from every enabled source.
func probeSources(ctx context.Context, registry *source.Registry, days int) {
	start := time.Now().UTC()
	end := start.AddDate(0, 0, days)

	fmt.Printf("\nprobing %s to %s\n", start.Format("2006-01-02"), end.Format("2006-01-02"))

	for _, src := range registry.Enabled() {
		fetchCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
		began := time.Now()
		events, err := src.FetchEvents(fetchCtx, start, end)
		cancel()

		if err != nil {
			fmt.Printf("\n%s: FAILED after %s: %v\n", src.Name(), time.Since(began).Round(time.Millisecond), err)
			continue
		}

		fmt.Printf("\n%s: %d events in %s\n", src.Name(), len(events), time.Since(began).Round(time.Millisecond))
		for i, e := range events {
			if i == 3 {
				fmt.Printf("  ...\n")
				break
			}
			fmt.Printf("  %s | %s | %s\n", e.StartTime.Format("2006-01-02"), e.Title, e.VenueName)
		}
	}
}

func timestamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02 15:04:05")
}
