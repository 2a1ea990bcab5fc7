package aggregate

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mhollis/stagewatch/internal/catalog"
	"github.com/mhollis/stagewatch/internal/dedup"
	"github.com/mhollis/stagewatch/internal/metrics"
	"github.com/mhollis/stagewatch/internal/model"
	"github.com/mhollis/stagewatch/internal/sellout"
	"github.com/mhollis/stagewatch/internal/source"
)

// Catalog is the persistence surface a cycle writes through.
type Catalog interface {
	ApplyEvent(ctx context.Context, in catalog.UpsertInput) (catalog.UpsertOutcome, error)
	HeadsBetween(ctx context.Context, from, to time.Time) ([]model.EventHead, error)
	UpsertSourceHealth(ctx context.Context, h model.SourceHealth) error
}

// Config holds aggregator configuration.
type Config struct {
	Interval      time.Duration // Cycle period in daemon mode (default: 1h)
	Concurrency   int           // Max sources fetched in parallel (default: 4)
	SourceTimeout time.Duration // Per-source fetch deadline (default: 30s)
	WindowDays    int           // How far ahead each cycle looks (default: 90)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:      1 * time.Hour,
		Concurrency:   4,
		SourceTimeout: 30 * time.Second,
		WindowDays:    90,
	}
}

// Aggregator runs fetch cycles against the registered sources and writes
// the merged results through the catalog.
type Aggregator struct {
	cfg      Config
	registry *source.Registry
	merger   *dedup.Merger
	detector *sellout.Detector
	store    Catalog
	metrics  *metrics.Metrics // Optional; nil disables instrumentation
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Aggregator.
func New(cfg Config, registry *source.Registry, merger *dedup.Merger, detector *sellout.Detector, store Catalog, mets *metrics.Metrics, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		cfg:      cfg,
		registry: registry,
		merger:   merger,
		detector: detector,
		store:    store,
		metrics:  mets,
		logger:   logger,
	}
}

// Start begins the cycle loop.
func (a *Aggregator) Start(ctx context.Context) error {
	a.ctx, a.cancel = context.WithCancel(ctx)

	a.wg.Add(1)
	go a.run()

	a.logger.Info("aggregator started",
		"interval", a.cfg.Interval,
		"concurrency", a.cfg.Concurrency,
		"sources", len(a.registry.Enabled()),
	)

	return nil
}

// Stop gracefully shuts down the aggregator.
func (a *Aggregator) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		a.logger.Info("aggregator stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the main cycle loop.
func (a *Aggregator) run() {
	defer a.wg.Done()

	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	// Run a cycle immediately on start.
	a.cycle()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			a.cycle()
		}
	}
}

// cycle runs one fetch cycle over the configured window.
func (a *Aggregator) cycle() {
	start := time.Now().UTC()
	end := start.AddDate(0, 0, a.cfg.WindowDays)

	report, err := a.RunFetchCycle(a.ctx, start, end, nil)
	if err != nil {
		a.logger.Error("fetch cycle failed",
			"err", err,
		)
		return
	}

	a.logger.Info("fetch cycle complete",
		"sources", len(report.Sources),
		"fetched", report.Fetched,
		"dropped", report.Dropped,
		"groups", report.Groups,
		"created", report.Created,
		"updated", report.Updated,
		"transitions", report.Transitions,
		"persist_failures", len(report.Failures),
		"duration", report.Duration,
	)
}
