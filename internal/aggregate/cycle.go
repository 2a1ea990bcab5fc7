package aggregate

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mhollis/stagewatch/internal/catalog"
	"github.com/mhollis/stagewatch/internal/model"
	"github.com/mhollis/stagewatch/internal/source"
)

// ErrNoSourcesEnabled is returned when a cycle has no sources to fetch
// from. The cycle exits cleanly with an empty report.
var ErrNoSourcesEnabled = errors.New("no sources enabled")

// RunFetchCycle fetches events between start and end from every enabled
// source (restricted to only, when non-empty), merges duplicates, and
// upserts the result through the catalog. The returned report is populated
// even when sources fail; the error is non-nil only when the cycle could
// not run at all.
func (a *Aggregator) RunFetchCycle(ctx context.Context, start, end time.Time, only []string) (*CycleReport, error) {
	began := time.Now()
	report := &CycleReport{}

	sources := a.resolveSources(only)
	if len(sources) == 0 {
		report.Duration = time.Since(began)
		return report, ErrNoSourcesEnabled
	}

	// Fan-out: each source in its own goroutine, bounded by a semaphore.
	// Results land in per-index slots so no locking is needed.
	outcomes := make([]SourceOutcome, len(sources))
	batches := make([][]model.NormalizedEvent, len(sources))

	sem := make(chan struct{}, a.cfg.Concurrency)
	var wg sync.WaitGroup

	for i, src := range sources {
		wg.Add(1)
		go func(i int, src source.Source) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				outcomes[i] = SourceOutcome{Source: src.Name(), Err: ctx.Err()}
				return
			}

			batches[i], outcomes[i] = a.fetchOne(ctx, src, start, end)
		}(i, src)
	}

	wg.Wait()

	var all []model.NormalizedEvent
	for i, o := range outcomes {
		report.Sources = append(report.Sources, o)
		report.Fetched += o.Events
		report.Dropped += o.Dropped
		all = append(all, batches[i]...)

		if a.metrics != nil {
			outcome := "ok"
			if o.Err != nil {
				outcome = "error"
			}
			a.metrics.SourceFetches.WithLabelValues(o.Source, outcome).Inc()
			a.metrics.SourceEvents.WithLabelValues(o.Source).Add(float64(o.Events))
			if o.Dropped > 0 {
				a.metrics.ValidationDrops.WithLabelValues(o.Source).Add(float64(o.Dropped))
			}
		}
	}

	a.recordHealth(ctx, sources, outcomes)

	// Fan-in is single-threaded from here: merge, classify, upsert.
	groups := a.merger.Merge(all)
	report.Groups = len(groups)
	if a.metrics != nil {
		a.metrics.GroupsMerged.Add(float64(len(groups)))
	}

	heads, err := a.store.HeadsBetween(ctx, start, end)
	if err != nil {
		// Upserts still work through exact (source, id) refs; only fuzzy
		// attachment to stored events is lost for this cycle.
		a.logger.Warn("loading stored event heads failed",
			"err", err,
		)
		heads = nil
	}

	for _, g := range groups {
		in := catalog.UpsertInput{
			Canonical: g.Canonical,
			Refs:      g.Refs,
			Status:    a.detector.Classify(g.Canonical.Signal),
			AttachTo:  a.matchHead(g.Canonical, heads),
		}

		out, err := a.store.ApplyEvent(ctx, in)
		if err != nil {
			report.Failures = append(report.Failures, PersistFailure{Title: g.Canonical.Title, Err: err})
			a.logger.Warn("catalog upsert failed",
				"title", g.Canonical.Title,
				"err", err,
			)
			continue
		}

		if out.Created {
			report.Created++
		} else {
			report.Updated++
		}
		if out.Transitioned {
			report.Transitions++
		}

		if a.metrics != nil {
			if out.Created {
				a.metrics.EventsCreated.Inc()
			} else {
				a.metrics.EventsUpdated.Inc()
			}
			if out.Transitioned {
				a.metrics.Transitions.WithLabelValues(string(out.To)).Inc()
			}
		}
	}

	report.Duration = time.Since(began)
	if a.metrics != nil {
		a.metrics.CycleDuration.Observe(report.Duration.Seconds())
	}

	return report, nil
}

// resolveSources returns the sources this cycle covers: all enabled sources,
// or the enabled subset named by only.
func (a *Aggregator) resolveSources(only []string) []source.Source {
	if len(only) == 0 {
		return a.registry.Enabled()
	}

	var out []source.Source
	for _, name := range only {
		src := a.registry.ByName(name)
		if src == nil {
			a.logger.Warn("ignoring unknown source",
				"source", name,
			)
			continue
		}
		if !src.Enabled() {
			a.logger.Warn("ignoring disabled source",
				"source", name,
			)
			continue
		}
		out = append(out, src)
	}
	return out
}

// fetchOne fetches and validates a single source's events under its own
// timeout. On error the partial batch is discarded: the source contributes
// zero events to the cycle.
func (a *Aggregator) fetchOne(ctx context.Context, src source.Source, start, end time.Time) ([]model.NormalizedEvent, SourceOutcome) {
	out := SourceOutcome{Source: src.Name()}
	began := time.Now()

	fetchCtx, cancel := context.WithTimeout(ctx, a.cfg.SourceTimeout)
	defer cancel()

	events, err := src.FetchEvents(fetchCtx, start, end)
	out.Duration = time.Since(began)
	if err != nil {
		out.Err = &source.Failure{Source: src.Name(), Err: err}
		a.logger.Warn("source fetch failed",
			"source", src.Name(),
			"err", err,
		)
		return nil, out
	}

	var kept []model.NormalizedEvent
	for _, e := range events {
		if err := e.Validate(); err != nil {
			out.Dropped++
			a.logger.Debug("dropping invalid event",
				"source", src.Name(),
				"title", e.Title,
				"err", err,
			)
			continue
		}
		kept = append(kept, e)
	}
	out.Events = len(kept)

	return kept, out
}

// matchHead returns the id of the first stored event the canonical record
// matches, or uuid.Nil. Heads are ordered by start time, so the earliest
// qualifying event wins deterministically.
func (a *Aggregator) matchHead(e model.NormalizedEvent, heads []model.EventHead) uuid.UUID {
	for _, h := range heads {
		if a.merger.MatchHead(e, h) {
			return h.ID
		}
	}
	return uuid.Nil
}

// recordHealth upserts one health row per attempted source. Health write
// errors are logged and otherwise ignored; they never fail a cycle.
func (a *Aggregator) recordHealth(ctx context.Context, sources []source.Source, outcomes []SourceOutcome) {
	now := time.Now().UTC()

	for i, src := range sources {
		o := outcomes[i]
		h := model.SourceHealth{
			SourceName:       o.Source,
			SourceType:       src.Type(),
			Enabled:          true,
			LastAttemptAt:    now,
			EventsFetched:    int64(o.Events),
			LastFetchSeconds: o.Duration.Seconds(),
		}
		if o.Err != nil {
			h.LastError = o.Err.Error()
		} else {
			h.LastSuccessAt = now
		}

		if err := a.store.UpsertSourceHealth(ctx, h); err != nil {
			a.logger.Warn("source health upsert failed",
				"source", o.Source,
				"err", err,
			)
		}
	}
}
