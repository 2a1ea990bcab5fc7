package sellout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mhollis/stagewatch/internal/model"
)

// fakeHistory is an in-memory HistorySource. Transitions must be listed
// newest first, matching the store contract.
type fakeHistory struct {
	transitions []model.AvailabilityTransition
	heads       map[uuid.UUID]model.EventHead
	err         error
}

func (f *fakeHistory) TransitionsSince(ctx context.Context, since time.Time) ([]model.AvailabilityTransition, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []model.AvailabilityTransition
	for _, tr := range f.transitions {
		if !tr.RecordedAt.Before(since) {
			out = append(out, tr)
		}
	}
	return out, nil
}

func (f *fakeHistory) EventHeadsByID(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]model.EventHead, error) {
	out := make(map[uuid.UUID]model.EventHead)
	for _, id := range ids {
		if head, ok := f.heads[id]; ok {
			out[id] = head
		}
	}
	return out, nil
}

// futureEvent registers a head starting 30 days out and returns its id.
func futureEvent(f *fakeHistory, title string) uuid.UUID {
	id := uuid.New()
	if f.heads == nil {
		f.heads = make(map[uuid.UUID]model.EventHead)
	}
	f.heads[id] = model.EventHead{
		ID:        id,
		Title:     title,
		VenueName: "Roundhouse",
		StartTime: time.Now().UTC().AddDate(0, 0, 30),
	}
	return id
}

func transition(eventID uuid.UUID, into model.AvailabilityStatus, age time.Duration) model.AvailabilityTransition {
	return model.AvailabilityTransition{
		EventID:        eventID,
		PreviousStatus: model.StatusOnSale,
		NewStatus:      into,
		RecordedAt:     time.Now().UTC().Add(-age),
	}
}

func TestScanSellingFastThreshold(t *testing.T) {
	f := &fakeHistory{}
	id := futureEvent(f, "Radiohead Live")
	f.transitions = []model.AvailabilityTransition{
		transition(id, model.StatusSellingFast, time.Hour),
	}

	m := NewMonitor(f, DefaultConfig(), nil)
	decision, err := m.ScanForAlerts(context.Background(), 25*time.Hour)
	if err != nil {
		t.Fatalf("ScanForAlerts: %v", err)
	}

	if !decision.Alert {
		t.Error("Alert = false, want true (one newly selling-fast event)")
	}
	if len(decision.SellingFast) != 1 {
		t.Fatalf("len(SellingFast) = %d, want 1", len(decision.SellingFast))
	}
	if decision.SellingFast[0].Title != "Radiohead Live" {
		t.Errorf("SellingFast[0].Title = %q, want %q", decision.SellingFast[0].Title, "Radiohead Live")
	}
	if len(decision.SoldOut) != 0 {
		t.Errorf("len(SoldOut) = %d, want 0", len(decision.SoldOut))
	}
}

func TestScanSoldOutThreshold(t *testing.T) {
	t.Run("two sold out is below threshold", func(t *testing.T) {
		f := &fakeHistory{}
		f.transitions = []model.AvailabilityTransition{
			transition(futureEvent(f, "Show A"), model.StatusSoldOut, time.Hour),
			transition(futureEvent(f, "Show B"), model.StatusSoldOut, 2*time.Hour),
		}

		decision, err := NewMonitor(f, DefaultConfig(), nil).LatestDecision(context.Background())
		if err != nil {
			t.Fatalf("LatestDecision: %v", err)
		}
		if decision.Alert {
			t.Error("Alert = true with 2 sold out and 0 selling fast, want false")
		}
		if len(decision.SoldOut) != 2 {
			t.Errorf("len(SoldOut) = %d, want 2", len(decision.SoldOut))
		}
	})

	t.Run("three sold out meets threshold", func(t *testing.T) {
		f := &fakeHistory{}
		f.transitions = []model.AvailabilityTransition{
			transition(futureEvent(f, "Show A"), model.StatusSoldOut, time.Hour),
			transition(futureEvent(f, "Show B"), model.StatusSoldOut, 2*time.Hour),
			transition(futureEvent(f, "Show C"), model.StatusSoldOut, 3*time.Hour),
		}

		decision, err := NewMonitor(f, DefaultConfig(), nil).LatestDecision(context.Background())
		if err != nil {
			t.Fatalf("LatestDecision: %v", err)
		}
		if !decision.Alert {
			t.Error("Alert = false with 3 newly sold out, want true")
		}
	})
}

// TestScanLatestTransitionPerEvent verifies an event that moved twice in the
// window is counted once, by its newest transition.
func TestScanLatestTransitionPerEvent(t *testing.T) {
	f := &fakeHistory{}
	id := futureEvent(f, "Warehouse Party")
	f.transitions = []model.AvailabilityTransition{
		transition(id, model.StatusSoldOut, time.Hour),        // newest
		transition(id, model.StatusSellingFast, 3*time.Hour),  // superseded
	}

	decision, err := NewMonitor(f, DefaultConfig(), nil).LatestDecision(context.Background())
	if err != nil {
		t.Fatalf("LatestDecision: %v", err)
	}

	if len(decision.SellingFast) != 0 {
		t.Errorf("len(SellingFast) = %d, want 0 (superseded transition)", len(decision.SellingFast))
	}
	if len(decision.SoldOut) != 1 {
		t.Errorf("len(SoldOut) = %d, want 1", len(decision.SoldOut))
	}
	// One sold-out event is below the sold-out threshold and there are no
	// selling-fast events, so no alert.
	if decision.Alert {
		t.Error("Alert = true, want false")
	}
}

func TestScanIgnoresPastEvents(t *testing.T) {
	f := &fakeHistory{heads: make(map[uuid.UUID]model.EventHead)}
	id := uuid.New()
	f.heads[id] = model.EventHead{
		ID:        id,
		Title:     "Last Night's Show",
		StartTime: time.Now().UTC().Add(-24 * time.Hour),
	}
	f.transitions = []model.AvailabilityTransition{
		transition(id, model.StatusSellingFast, time.Hour),
	}

	decision, err := NewMonitor(f, DefaultConfig(), nil).LatestDecision(context.Background())
	if err != nil {
		t.Fatalf("LatestDecision: %v", err)
	}
	if decision.Alert {
		t.Error("Alert = true for a past event, want false")
	}
	if len(decision.SellingFast) != 0 {
		t.Errorf("len(SellingFast) = %d, want 0", len(decision.SellingFast))
	}
}

func TestScanIgnoresOtherTransitions(t *testing.T) {
	f := &fakeHistory{}
	id := futureEvent(f, "Restocked Show")
	f.transitions = []model.AvailabilityTransition{
		{
			EventID:        id,
			PreviousStatus: model.StatusSoldOut,
			NewStatus:      model.StatusOnSale, // restock: not alert material
			RecordedAt:     time.Now().UTC().Add(-time.Hour),
		},
	}

	decision, err := NewMonitor(f, DefaultConfig(), nil).LatestDecision(context.Background())
	if err != nil {
		t.Fatalf("LatestDecision: %v", err)
	}
	if decision.Alert || len(decision.SellingFast) != 0 || len(decision.SoldOut) != 0 {
		t.Error("restock transition produced alert material")
	}
}

func TestScanRespectsLookbackWindow(t *testing.T) {
	f := &fakeHistory{}
	id := futureEvent(f, "Old News")
	f.transitions = []model.AvailabilityTransition{
		transition(id, model.StatusSellingFast, 48*time.Hour), // outside 25h window
	}

	decision, err := NewMonitor(f, DefaultConfig(), nil).LatestDecision(context.Background())
	if err != nil {
		t.Fatalf("LatestDecision: %v", err)
	}
	if decision.Alert {
		t.Error("Alert = true for a transition outside the window, want false")
	}
}

func TestScanEmptyWindow(t *testing.T) {
	decision, err := NewMonitor(&fakeHistory{}, DefaultConfig(), nil).LatestDecision(context.Background())
	if err != nil {
		t.Fatalf("LatestDecision: %v", err)
	}
	if decision == nil {
		t.Fatal("decision = nil, want a no-alert decision")
	}
	if decision.Alert {
		t.Error("Alert = true on empty history, want false")
	}
}

func TestScanPropagatesReadError(t *testing.T) {
	f := &fakeHistory{err: errors.New("connection refused")}
	if _, err := NewMonitor(f, DefaultConfig(), nil).LatestDecision(context.Background()); err == nil {
		t.Error("LatestDecision error = nil, want propagated read error")
	}
}

func TestScanCustomThresholds(t *testing.T) {
	f := &fakeHistory{}
	f.transitions = []model.AvailabilityTransition{
		transition(futureEvent(f, "Show A"), model.StatusSellingFast, time.Hour),
	}

	cfg := Config{Lookback: 25 * time.Hour, MinSellingFast: 2, MinSoldOut: 3}
	decision, err := NewMonitor(f, cfg, nil).LatestDecision(context.Background())
	if err != nil {
		t.Fatalf("LatestDecision: %v", err)
	}
	if decision.Alert {
		t.Error("Alert = true with 1 selling fast under MinSellingFast=2, want false")
	}
}
