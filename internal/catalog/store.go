package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mhollis/stagewatch/internal/model"
)

// Store reads and writes the event catalog tables.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New creates a Store backed by the given pool.
func New(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}
}

// UpsertInput is one merged event ready to persist. Refs carries every
// (source, id) pair that contributed to the canonical record. AttachTo,
// when non-nil, names an existing catalog event the caller matched by
// title/venue similarity; it is only consulted when no ref pair is
// already known.
type UpsertInput struct {
	Canonical model.NormalizedEvent
	Refs      []model.SourceRef
	Status    model.AvailabilityStatus
	AttachTo  uuid.UUID
}

// UpsertOutcome reports what ApplyEvent did.
type UpsertOutcome struct {
	EventID      uuid.UUID
	Created      bool
	Transitioned bool
	From         model.AvailabilityStatus
	To           model.AvailabilityStatus
}

// ApplyEvent creates or updates one catalog event inside a single
// transaction. Resolution order: an event already owning one of the
// provenance pairs wins, then the caller's AttachTo match, then a new
// row. On update the existing row is locked, the availability snapshot
// is overwritten from the incoming signal, and a history row is
// appended only when the classified status actually changed.
func (s *Store) ApplyEvent(ctx context.Context, in UpsertInput) (UpsertOutcome, error) {
	var out UpsertOutcome

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return out, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	id, found, err := findByRefs(ctx, tx, in.Refs)
	if err != nil {
		return out, err
	}
	if !found && in.AttachTo != uuid.Nil {
		id, found = in.AttachTo, true
	}

	now := time.Now().UTC()

	if found {
		out, err = updateEvent(ctx, tx, id, in, now)
	} else {
		id = uuid.New()
		out, err = insertEvent(ctx, tx, id, in, now)
	}
	if err != nil {
		return UpsertOutcome{}, err
	}

	if err := upsertRefs(ctx, tx, id, in.Refs); err != nil {
		return UpsertOutcome{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return UpsertOutcome{}, fmt.Errorf("commit: %w", err)
	}

	if out.Created {
		s.logger.Debug("catalog event created",
			"event_id", out.EventID,
			"title", in.Canonical.Title,
			"status", string(out.To),
		)
	} else if out.Transitioned {
		s.logger.Debug("availability transition",
			"event_id", out.EventID,
			"from", string(out.From),
			"to", string(out.To),
		)
	}
	return out, nil
}

// findByRefs returns the event that already owns any of the provenance
// pairs. Pairs are checked in order; the first hit wins. A pair that
// points at a different event than a later pair stays where it is —
// ownership of a (source, id) pair never moves between events.
func findByRefs(ctx context.Context, tx pgx.Tx, refs []model.SourceRef) (uuid.UUID, bool, error) {
	for _, ref := range refs {
		var idStr string
		err := tx.QueryRow(ctx, `
			SELECT event_id::text
			FROM event_sources
			WHERE source_name = $1 AND source_id = $2
		`, ref.SourceName, ref.SourceID).Scan(&idStr)
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return uuid.Nil, false, fmt.Errorf("look up source pair %s/%s: %w", ref.SourceName, ref.SourceID, err)
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			return uuid.Nil, false, fmt.Errorf("parse event id %q: %w", idStr, err)
		}
		return id, true, nil
	}
	return uuid.Nil, false, nil
}

func insertEvent(ctx context.Context, tx pgx.Tx, id uuid.UUID, in UpsertInput, now time.Time) (UpsertOutcome, error) {
	e := in.Canonical
	remaining, capacity, pct := signalSnapshot(e.Signal)

	_, err := tx.Exec(ctx, `
		INSERT INTO catalog_events (
			id, title, description, start_time, end_time,
			venue_name, venue_address,
			price_min, price_max, currency,
			status, previous_status,
			tickets_available, total_capacity, availability_percent,
			url, image_url, categories, on_sale_date,
			first_seen_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7,
			$8, $9, $10,
			$11, $12,
			$13, $14, $15,
			$16, $17, $18, $19,
			$20, $21
		)
	`, id.String(), e.Title, e.Description, e.StartTime.UTC(), timeOrNil(e.EndTime),
		e.VenueName, e.VenueAddress,
		e.PriceMin, e.PriceMax, e.Currency,
		string(in.Status), "",
		remaining, capacity, pct,
		e.URL, e.ImageURL, e.Categories, timeOrNil(e.OnSaleDate),
		now, now)
	if err != nil {
		return UpsertOutcome{}, fmt.Errorf("insert event %q: %w", e.Title, err)
	}

	// A brand new event has no prior status to transition from, so no
	// history row is written here.
	return UpsertOutcome{EventID: id, Created: true, To: in.Status}, nil
}

func updateEvent(ctx context.Context, tx pgx.Tx, id uuid.UUID, in UpsertInput, now time.Time) (UpsertOutcome, error) {
	var (
		oldStatusStr string
		oldPrevStr   string
		oldCats      []string
	)
	err := tx.QueryRow(ctx, `
		SELECT status, previous_status, categories
		FROM catalog_events
		WHERE id = $1
		FOR UPDATE
	`, id.String()).Scan(&oldStatusStr, &oldPrevStr, &oldCats)
	if err != nil {
		return UpsertOutcome{}, fmt.Errorf("lock event %s: %w", id, err)
	}

	oldStatus := model.AvailabilityStatus(oldStatusStr)
	out := UpsertOutcome{EventID: id, From: oldStatus, To: in.Status}

	e := in.Canonical
	remaining, capacity, pct := signalSnapshot(e.Signal)

	newPrev := oldPrevStr
	if in.Status != oldStatus {
		out.Transitioned = true
		newPrev = oldStatusStr
		rec := model.AvailabilityTransition{
			EventID:             id,
			PreviousStatus:      oldStatus,
			NewStatus:           in.Status,
			TicketsAvailable:    remaining,
			AvailabilityPercent: pct,
			RecordedAt:          now,
		}
		if err := RecordTransition(ctx, tx, rec); err != nil {
			return UpsertOutcome{}, err
		}
	}

	// Empty incoming strings keep the stored value; the snapshot columns
	// always reflect the latest fetch, even when the signal went away.
	_, err = tx.Exec(ctx, `
		UPDATE catalog_events SET
			title = $2,
			description = CASE WHEN $3 <> '' THEN $3 ELSE description END,
			start_time = $4,
			end_time = COALESCE($5, end_time),
			venue_name = CASE WHEN $6 <> '' THEN $6 ELSE venue_name END,
			venue_address = CASE WHEN $7 <> '' THEN $7 ELSE venue_address END,
			price_min = COALESCE($8, price_min),
			price_max = COALESCE($9, price_max),
			currency = CASE WHEN $10 <> '' THEN $10 ELSE currency END,
			status = $11,
			previous_status = $12,
			tickets_available = $13,
			total_capacity = $14,
			availability_percent = $15,
			url = CASE WHEN $16 <> '' THEN $16 ELSE url END,
			image_url = CASE WHEN $17 <> '' THEN $17 ELSE image_url END,
			categories = $18,
			on_sale_date = COALESCE($19, on_sale_date),
			updated_at = $20
		WHERE id = $1
	`, id.String(), e.Title, e.Description, e.StartTime.UTC(), timeOrNil(e.EndTime),
		e.VenueName, e.VenueAddress,
		e.PriceMin, e.PriceMax, e.Currency,
		string(in.Status), newPrev,
		remaining, capacity, pct,
		e.URL, e.ImageURL, mergeCategories(oldCats, e.Categories), timeOrNil(e.OnSaleDate),
		now)
	if err != nil {
		return UpsertOutcome{}, fmt.Errorf("update event %s: %w", id, err)
	}

	return out, nil
}

func upsertRefs(ctx context.Context, tx pgx.Tx, id uuid.UUID, refs []model.SourceRef) error {
	for _, ref := range refs {
		_, err := tx.Exec(ctx, `
			INSERT INTO event_sources (source_name, source_id, event_id)
			VALUES ($1, $2, $3)
			ON CONFLICT (source_name, source_id) DO NOTHING
		`, ref.SourceName, ref.SourceID, id.String())
		if err != nil {
			return fmt.Errorf("record source pair %s/%s: %w", ref.SourceName, ref.SourceID, err)
		}
	}
	return nil
}

// signalSnapshot extracts the availability snapshot columns from a
// ticket signal. The percentage is only present when both counts are.
func signalSnapshot(sig model.TicketSignal) (remaining, capacity *int, pct *float64) {
	remaining = sig.Remaining
	capacity = sig.Capacity
	if p, ok := sig.Percent(); ok {
		pct = &p
	}
	return remaining, capacity, pct
}

// mergeCategories unions the stored category slugs with the incoming
// ones, deduplicated and sorted. An empty incoming slice keeps the
// stored set; categories only ever grow.
func mergeCategories(existing, incoming []string) []string {
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	out := make([]string, 0, len(existing)+len(incoming))
	for _, c := range existing {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	for _, c := range incoming {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func timeOrNil(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func timeOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
