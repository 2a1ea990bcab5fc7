package sellout

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mhollis/stagewatch/internal/model"
)

// HistorySource provides persisted transitions and the events they refer to.
type HistorySource interface {
	// TransitionsSince returns transitions recorded at or after since,
	// ordered newest first.
	TransitionsSince(ctx context.Context, since time.Time) ([]model.AvailabilityTransition, error)
	// EventHeadsByID returns head fields for the given events. Missing ids
	// are simply absent from the result.
	EventHeadsByID(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]model.EventHead, error)
}

// Config holds alert-scan settings.
type Config struct {
	Lookback       time.Duration // Transition window examined per scan
	MinSellingFast int           // Alert when this many events newly selling fast
	MinSoldOut     int           // Alert when this many events newly sold out
}

// DefaultConfig returns the standard scan thresholds.
func DefaultConfig() Config {
	return Config{
		Lookback:       25 * time.Hour,
		MinSellingFast: 1,
		MinSoldOut:     3,
	}
}

// AlertEvent is one qualifying event in a decision.
type AlertEvent struct {
	EventID          uuid.UUID                `json:"event_id"`
	Title            string                   `json:"title"`
	VenueName        string                   `json:"venue_name"`
	StartTime        time.Time                `json:"start_time"`
	NewStatus        model.AvailabilityStatus `json:"new_status"`
	TicketsAvailable *int                     `json:"tickets_available,omitempty"`
	RecordedAt       time.Time                `json:"recorded_at"`
}

// AlertDecision is the outcome of one scan. A decision that does not meet
// the alert thresholds is a valid outcome, not an error.
type AlertDecision struct {
	Alert       bool         `json:"alert"`
	SellingFast []AlertEvent `json:"selling_fast"`
	SoldOut     []AlertEvent `json:"sold_out"`
	WindowStart time.Time    `json:"window_start"`
	CheckedAt   time.Time    `json:"checked_at"`
}

// Monitor scans recent availability transitions and decides whether they
// warrant an alert. It only reads persisted history; it never writes.
type Monitor struct {
	history HistorySource
	cfg     Config
	logger  *slog.Logger
}

// NewMonitor creates a Monitor.
func NewMonitor(history HistorySource, cfg Config, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		history: history,
		cfg:     cfg,
		logger:  logger,
	}
}

// LatestDecision scans over the configured lookback window.
func (m *Monitor) LatestDecision(ctx context.Context) (*AlertDecision, error) {
	return m.ScanForAlerts(ctx, m.cfg.Lookback)
}

// ScanForAlerts examines transitions recorded within the window, keeps each
// event's latest transition, partitions future events by the status they
// transitioned into, and applies the alert thresholds.
func (m *Monitor) ScanForAlerts(ctx context.Context, lookback time.Duration) (*AlertDecision, error) {
	now := time.Now().UTC()
	since := now.Add(-lookback)

	rows, err := m.history.TransitionsSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("scan transitions: %w", err)
	}

	// Rows arrive newest first, so the first row seen per event is its
	// latest transition in the window. An event that went selling-fast and
	// then sold out counts once, as sold out.
	latest := make(map[uuid.UUID]model.AvailabilityTransition)
	var candidateIDs []uuid.UUID
	for _, tr := range rows {
		if _, seen := latest[tr.EventID]; seen {
			continue
		}
		latest[tr.EventID] = tr
		if tr.NewStatus == model.StatusSellingFast || tr.NewStatus == model.StatusSoldOut {
			candidateIDs = append(candidateIDs, tr.EventID)
		}
	}

	decision := &AlertDecision{WindowStart: since, CheckedAt: now}

	if len(candidateIDs) > 0 {
		heads, err := m.history.EventHeadsByID(ctx, candidateIDs)
		if err != nil {
			return nil, fmt.Errorf("load events for scan: %w", err)
		}

		for _, id := range candidateIDs {
			head, ok := heads[id]
			if !ok {
				continue
			}
			// Future events only: a past event's sellout is stale news.
			if !head.StartTime.After(now) {
				continue
			}
			tr := latest[id]
			ae := AlertEvent{
				EventID:          id,
				Title:            head.Title,
				VenueName:        head.VenueName,
				StartTime:        head.StartTime,
				NewStatus:        tr.NewStatus,
				TicketsAvailable: tr.TicketsAvailable,
				RecordedAt:       tr.RecordedAt,
			}
			switch tr.NewStatus {
			case model.StatusSellingFast:
				decision.SellingFast = append(decision.SellingFast, ae)
			case model.StatusSoldOut:
				decision.SoldOut = append(decision.SoldOut, ae)
			}
		}
	}

	decision.Alert = len(decision.SellingFast) >= m.cfg.MinSellingFast ||
		len(decision.SoldOut) >= m.cfg.MinSoldOut

	m.logger.Info("alert scan complete",
		"transitions", len(rows),
		"selling_fast", len(decision.SellingFast),
		"sold_out", len(decision.SoldOut),
		"alert", decision.Alert,
	)

	return decision, nil
}
