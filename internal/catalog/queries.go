package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mhollis/stagewatch/internal/model"
)

// Filter narrows ListEvents output. Zero values mean no constraint.
type Filter struct {
	Statuses []model.AvailabilityStatus
	From     time.Time
	To       time.Time
	Category string
	Limit    int
}

const eventColumns = `
	id::text, title, description, start_time, end_time,
	venue_name, venue_address,
	price_min, price_max, currency,
	status, previous_status,
	tickets_available, total_capacity, availability_percent,
	url, image_url, categories, on_sale_date,
	first_seen_at, updated_at`

// HeadsBetween returns the match heads for every catalog event starting
// inside [from, to]. The aggregator compares new arrivals against these
// to attach a re-listed event to its existing row.
func (s *Store) HeadsBetween(ctx context.Context, from, to time.Time) ([]model.EventHead, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id::text, title, venue_name, start_time
		FROM catalog_events
		WHERE start_time >= $1 AND start_time <= $2
	`, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("query heads: %w", err)
	}
	defer rows.Close()

	var heads []model.EventHead
	for rows.Next() {
		var (
			h     model.EventHead
			idStr string
		)
		if err := rows.Scan(&idStr, &h.Title, &h.VenueName, &h.StartTime); err != nil {
			return nil, fmt.Errorf("scan head: %w", err)
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("parse event id %q: %w", idStr, err)
		}
		h.ID = id
		heads = append(heads, h)
	}
	return heads, rows.Err()
}

// ListEvents returns catalog events matching the filter, ordered by
// start time, with their provenance pairs attached.
func (s *Store) ListEvents(ctx context.Context, f Filter) ([]model.CatalogEvent, error) {
	query, args := buildListQuery(f)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []model.CatalogEvent
	for rows.Next() {
		e, err := scanEvent(rows.Scan)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.attachSources(ctx, events); err != nil {
		return nil, err
	}
	return events, nil
}

// buildListQuery assembles the SELECT for a filter. Conditions are
// appended in a fixed order so the same filter always produces the same
// SQL and argument list.
func buildListQuery(f Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)

	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			statuses[i] = string(st)
		}
		args = append(args, statuses)
		conds = append(conds, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if !f.From.IsZero() {
		args = append(args, f.From.UTC())
		conds = append(conds, fmt.Sprintf("start_time >= $%d", len(args)))
	}
	if !f.To.IsZero() {
		args = append(args, f.To.UTC())
		conds = append(conds, fmt.Sprintf("start_time <= $%d", len(args)))
	}
	if f.Category != "" {
		args = append(args, f.Category)
		conds = append(conds, fmt.Sprintf("$%d = ANY(categories)", len(args)))
	}

	query := "SELECT" + eventColumns + "\n\tFROM catalog_events"
	if len(conds) > 0 {
		query += "\n\tWHERE " + strings.Join(conds, " AND ")
	}
	query += "\n\tORDER BY start_time ASC"
	if f.Limit > 0 {
		query += fmt.Sprintf("\n\tLIMIT %d", f.Limit)
	}
	return query, args
}

func scanEvent(scan func(dest ...any) error) (model.CatalogEvent, error) {
	var (
		e                  model.CatalogEvent
		idStr              string
		status, prevStatus string
		endTime, onSale    *time.Time
	)
	err := scan(&idStr, &e.Title, &e.Description, &e.StartTime, &endTime,
		&e.VenueName, &e.VenueAddress,
		&e.PriceMin, &e.PriceMax, &e.Currency,
		&status, &prevStatus,
		&e.TicketsAvailable, &e.TotalCapacity, &e.AvailabilityPercent,
		&e.URL, &e.ImageURL, &e.Categories, &onSale,
		&e.FirstSeenAt, &e.UpdatedAt)
	if err != nil {
		return model.CatalogEvent{}, fmt.Errorf("scan event: %w", err)
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return model.CatalogEvent{}, fmt.Errorf("parse event id %q: %w", idStr, err)
	}
	e.ID = id
	e.Status = model.AvailabilityStatus(status)
	e.PreviousStatus = model.AvailabilityStatus(prevStatus)
	e.EndTime = timeOrZero(endTime)
	e.OnSaleDate = timeOrZero(onSale)
	return e, nil
}

// attachSources fills Sources on each event from event_sources.
func (s *Store) attachSources(ctx context.Context, events []model.CatalogEvent) error {
	if len(events) == 0 {
		return nil
	}

	ids := make([]string, len(events))
	index := make(map[uuid.UUID]int, len(events))
	for i, e := range events {
		ids[i] = e.ID.String()
		index[e.ID] = i
	}

	rows, err := s.pool.Query(ctx, `
		SELECT event_id::text, source_name, source_id
		FROM event_sources
		WHERE event_id = ANY($1::uuid[])
		ORDER BY source_name, source_id
	`, ids)
	if err != nil {
		return fmt.Errorf("query source pairs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			idStr string
			ref   model.SourceRef
		)
		if err := rows.Scan(&idStr, &ref.SourceName, &ref.SourceID); err != nil {
			return fmt.Errorf("scan source pair: %w", err)
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			return fmt.Errorf("parse event id %q: %w", idStr, err)
		}
		if i, ok := index[id]; ok {
			events[i].Sources = append(events[i].Sources, ref)
		}
	}
	return rows.Err()
}

// TransitionsSince returns history rows recorded at or after the cutoff,
// newest first. Rows sharing a timestamp fall back to insertion order,
// so the first row seen for an event is always its latest transition.
func (s *Store) TransitionsSince(ctx context.Context, since time.Time) ([]model.AvailabilityTransition, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, event_id::text, previous_status, new_status,
		       tickets_available, availability_percent, recorded_at
		FROM availability_history
		WHERE recorded_at >= $1
		ORDER BY recorded_at DESC, id DESC
	`, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("query transitions: %w", err)
	}
	defer rows.Close()

	var recs []model.AvailabilityTransition
	for rows.Next() {
		var (
			rec        model.AvailabilityTransition
			idStr      string
			prev, next string
		)
		if err := rows.Scan(&rec.ID, &idStr, &prev, &next,
			&rec.TicketsAvailable, &rec.AvailabilityPercent, &rec.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		eventID, err := uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("parse event id %q: %w", idStr, err)
		}
		rec.EventID = eventID
		rec.PreviousStatus = model.AvailabilityStatus(prev)
		rec.NewStatus = model.AvailabilityStatus(next)
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// EventHeadsByID returns match heads for the given event ids, keyed by id.
// Unknown ids are simply absent from the result.
func (s *Store) EventHeadsByID(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]model.EventHead, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = id.String()
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id::text, title, venue_name, start_time
		FROM catalog_events
		WHERE id = ANY($1::uuid[])
	`, strs)
	if err != nil {
		return nil, fmt.Errorf("query heads by id: %w", err)
	}
	defer rows.Close()

	heads := make(map[uuid.UUID]model.EventHead, len(ids))
	for rows.Next() {
		var (
			h     model.EventHead
			idStr string
		)
		if err := rows.Scan(&idStr, &h.Title, &h.VenueName, &h.StartTime); err != nil {
			return nil, fmt.Errorf("scan head: %w", err)
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("parse event id %q: %w", idStr, err)
		}
		h.ID = id
		heads[id] = h
	}
	return heads, rows.Err()
}

// UpsertSourceHealth folds one fetch outcome into the per-source health
// row. The fetched-events counter accumulates across cycles, and a
// failed cycle (nil LastSuccessAt) keeps the previous success time.
func (s *Store) UpsertSourceHealth(ctx context.Context, h model.SourceHealth) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO source_health
			(source_name, source_type, enabled, last_attempt_at, last_success_at,
			 last_error, events_fetched, last_fetch_seconds)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (source_name) DO UPDATE SET
			source_type        = EXCLUDED.source_type,
			enabled            = EXCLUDED.enabled,
			last_attempt_at    = EXCLUDED.last_attempt_at,
			last_success_at    = COALESCE(EXCLUDED.last_success_at, source_health.last_success_at),
			last_error         = EXCLUDED.last_error,
			events_fetched     = source_health.events_fetched + EXCLUDED.events_fetched,
			last_fetch_seconds = EXCLUDED.last_fetch_seconds
	`, h.SourceName, string(h.SourceType), h.Enabled, timeOrNil(h.LastAttemptAt), timeOrNil(h.LastSuccessAt),
		h.LastError, h.EventsFetched, h.LastFetchSeconds)
	if err != nil {
		return fmt.Errorf("upsert source health %s: %w", h.SourceName, err)
	}
	return nil
}

// ListSourceHealth returns every source health row, ordered by name.
func (s *Store) ListSourceHealth(ctx context.Context) ([]model.SourceHealth, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT source_name, source_type, enabled, last_attempt_at, last_success_at,
		       last_error, events_fetched, last_fetch_seconds
		FROM source_health
		ORDER BY source_name
	`)
	if err != nil {
		return nil, fmt.Errorf("query source health: %w", err)
	}
	defer rows.Close()

	var out []model.SourceHealth
	for rows.Next() {
		var (
			h       model.SourceHealth
			srcType string
			attempt *time.Time
			success *time.Time
		)
		if err := rows.Scan(&h.SourceName, &srcType, &h.Enabled, &attempt, &success,
			&h.LastError, &h.EventsFetched, &h.LastFetchSeconds); err != nil {
			return nil, fmt.Errorf("scan source health: %w", err)
		}
		h.SourceType = model.SourceType(srcType)
		h.LastAttemptAt = timeOrZero(attempt)
		h.LastSuccessAt = timeOrZero(success)
		out = append(out, h)
	}
	return out, rows.Err()
}
