package aggregate

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mhollis/stagewatch/internal/catalog"
	"github.com/mhollis/stagewatch/internal/dedup"
	"github.com/mhollis/stagewatch/internal/metrics"
	"github.com/mhollis/stagewatch/internal/model"
	"github.com/mhollis/stagewatch/internal/sellout"
	"github.com/mhollis/stagewatch/internal/source"
)

// mockSource returns canned events or an error.
type mockSource struct {
	name    string
	enabled bool
	events  []model.NormalizedEvent
	err     error
	delay   time.Duration
	calls   atomic.Int32

	// Shared across sources in concurrency tests.
	inFlight    *atomic.Int32
	maxInFlight *atomic.Int32
}

func (m *mockSource) Name() string           { return m.name }
func (m *mockSource) Type() model.SourceType { return model.SourceTypeAPI }
func (m *mockSource) Enabled() bool          { return m.enabled }

func (m *mockSource) FetchEvents(ctx context.Context, start, end time.Time) ([]model.NormalizedEvent, error) {
	m.calls.Add(1)

	if m.inFlight != nil {
		current := m.inFlight.Add(1)
		defer m.inFlight.Add(-1)
		for {
			old := m.maxInFlight.Load()
			if current <= old || m.maxInFlight.CompareAndSwap(old, current) {
				break
			}
		}
	}

	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if m.err != nil {
		return nil, m.err
	}
	return m.events, nil
}

// mockCatalog applies upserts against an in-memory ref map, mimicking the
// real store's resolution order: known ref, then AttachTo, then insert.
type mockCatalog struct {
	mu       sync.Mutex
	known    map[model.SourceRef]uuid.UUID
	status   map[uuid.UUID]model.AvailabilityStatus
	applied  []catalog.UpsertInput
	heads    []model.EventHead
	headsErr error
	health   []model.SourceHealth
	failing  map[string]error // by canonical title
}

func newMockCatalog() *mockCatalog {
	return &mockCatalog{
		known:   make(map[model.SourceRef]uuid.UUID),
		status:  make(map[uuid.UUID]model.AvailabilityStatus),
		failing: make(map[string]error),
	}
}

func (c *mockCatalog) ApplyEvent(ctx context.Context, in catalog.UpsertInput) (catalog.UpsertOutcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.failing[in.Canonical.Title]; err != nil {
		return catalog.UpsertOutcome{}, err
	}
	c.applied = append(c.applied, in)

	var id uuid.UUID
	for _, ref := range in.Refs {
		if got, ok := c.known[ref]; ok {
			id = got
			break
		}
	}
	if id == uuid.Nil {
		id = in.AttachTo
	}

	out := catalog.UpsertOutcome{To: in.Status}
	if id == uuid.Nil {
		id = uuid.New()
		out.Created = true
	} else if prev := c.status[id]; prev != in.Status {
		out.Transitioned = true
		out.From = prev
	}
	out.EventID = id

	for _, ref := range in.Refs {
		c.known[ref] = id
	}
	c.status[id] = in.Status

	return out, nil
}

func (c *mockCatalog) HeadsBetween(ctx context.Context, from, to time.Time) ([]model.EventHead, error) {
	if c.headsErr != nil {
		return nil, c.headsErr
	}
	return c.heads, nil
}

func (c *mockCatalog) UpsertSourceHealth(ctx context.Context, h model.SourceHealth) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.health = append(c.health, h)
	return nil
}

func (c *mockCatalog) healthFor(name string) (model.SourceHealth, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, h := range c.health {
		if h.SourceName == name {
			return h, true
		}
	}
	return model.SourceHealth{}, false
}

func testAggregator(store Catalog, sources ...source.Source) *Aggregator {
	cfg := Config{
		Interval:      time.Hour,
		Concurrency:   4,
		SourceTimeout: 5 * time.Second,
		WindowDays:    90,
	}
	merger := dedup.NewMerger(0.85, 0.75)
	detector := sellout.NewDetector(10.0, 50)
	return New(cfg, source.NewRegistry(sources...), merger, detector, store, nil, nil)
}

func fetchWindow() (time.Time, time.Time) {
	start := time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 90)
}

func ev(src, id, title, venue string, start time.Time) model.NormalizedEvent {
	return model.NormalizedEvent{
		SourceName: src,
		SourceID:   id,
		Title:      title,
		VenueName:  venue,
		StartTime:  start,
		FetchedAt:  start.Add(-30 * 24 * time.Hour),
	}
}

func intp(v int) *int { return &v }

func TestAggregator_RunFetchCycle(t *testing.T) {
	start, end := fetchWindow()
	night := time.Date(2025, 11, 14, 20, 0, 0, 0, time.UTC)

	// Two providers report the same concert under slightly different
	// names; a third event is unrelated.
	radioheadX := ev("alpha", "x1", "Radiohead Live", "O2 Arena", night)
	radioheadX.Signal = model.TicketSignal{Remaining: intp(5)}
	radioheadY := ev("beta", "y1", "Radiohead — Live!", "The O2", night)
	radioheadY.Signal = model.TicketSignal{RawStatus: "selling fast"}
	other := ev("beta", "y2", "Berlin Philharmonic", "Royal Albert Hall", night.Add(24*time.Hour))

	store := newMockCatalog()
	agg := testAggregator(store,
		&mockSource{name: "alpha", enabled: true, events: []model.NormalizedEvent{radioheadX}},
		&mockSource{name: "beta", enabled: true, events: []model.NormalizedEvent{radioheadY, other}},
	)

	report, err := agg.RunFetchCycle(context.Background(), start, end, nil)
	if err != nil {
		t.Fatalf("RunFetchCycle failed: %v", err)
	}

	if report.Fetched != 3 {
		t.Errorf("Fetched = %d, want 3", report.Fetched)
	}
	if report.Groups != 2 {
		t.Errorf("Groups = %d, want 2", report.Groups)
	}
	if report.Created != 2 {
		t.Errorf("Created = %d, want 2", report.Created)
	}
	if len(report.Failures) != 0 {
		t.Errorf("Failures = %d, want 0", len(report.Failures))
	}

	var merged *catalog.UpsertInput
	for i := range store.applied {
		if len(store.applied[i].Refs) == 2 {
			merged = &store.applied[i]
		}
	}
	if merged == nil {
		t.Fatal("no upsert carried both provenance pairs")
	}
	if merged.Status != model.StatusSellingFast {
		t.Errorf("merged status = %q, want %q", merged.Status, model.StatusSellingFast)
	}

	for _, name := range []string{"alpha", "beta"} {
		h, ok := store.healthFor(name)
		if !ok {
			t.Fatalf("no health row for %s", name)
		}
		if h.LastSuccessAt.IsZero() {
			t.Errorf("%s: LastSuccessAt not set", name)
		}
		if h.LastError != "" {
			t.Errorf("%s: LastError = %q, want empty", name, h.LastError)
		}
	}
	if h, _ := store.healthFor("beta"); h.EventsFetched != 2 {
		t.Errorf("beta EventsFetched = %d, want 2", h.EventsFetched)
	}
}

func TestAggregator_NoSourcesEnabled(t *testing.T) {
	start, end := fetchWindow()

	store := newMockCatalog()
	agg := testAggregator(store,
		&mockSource{name: "alpha", enabled: false},
	)

	report, err := agg.RunFetchCycle(context.Background(), start, end, nil)
	if !errors.Is(err, ErrNoSourcesEnabled) {
		t.Fatalf("err = %v, want ErrNoSourcesEnabled", err)
	}
	if report == nil {
		t.Fatal("report is nil, want empty report")
	}
	if report.Fetched != 0 || report.Groups != 0 || len(report.Sources) != 0 {
		t.Errorf("report not empty: %+v", report)
	}
	if len(store.applied) != 0 {
		t.Errorf("applied %d upserts, want 0", len(store.applied))
	}
}

func TestAggregator_SourceFailureIsolated(t *testing.T) {
	start, end := fetchWindow()
	night := time.Date(2025, 11, 14, 20, 0, 0, 0, time.UTC)

	good := ev("beta", "y1", "Patti Smith", "Roundhouse", night)

	store := newMockCatalog()
	agg := testAggregator(store,
		&mockSource{name: "alpha", enabled: true, err: errors.New("upstream 503")},
		&mockSource{name: "beta", enabled: true, events: []model.NormalizedEvent{good}},
	)

	report, err := agg.RunFetchCycle(context.Background(), start, end, nil)
	if err != nil {
		t.Fatalf("RunFetchCycle failed: %v", err)
	}

	if report.Fetched != 1 {
		t.Errorf("Fetched = %d, want 1", report.Fetched)
	}
	if report.Created != 1 {
		t.Errorf("Created = %d, want 1", report.Created)
	}
	if !report.Failed() {
		t.Error("Failed() = false, want true")
	}

	var failed *SourceOutcome
	for i := range report.Sources {
		if report.Sources[i].Source == "alpha" {
			failed = &report.Sources[i]
		}
	}
	if failed == nil || failed.Err == nil {
		t.Fatal("alpha outcome missing or has no error")
	}
	var sf *source.Failure
	if !errors.As(failed.Err, &sf) {
		t.Errorf("alpha error = %T, want *source.Failure", failed.Err)
	}

	h, ok := store.healthFor("alpha")
	if !ok {
		t.Fatal("no health row for alpha")
	}
	if h.LastError == "" {
		t.Error("alpha LastError empty, want failure message")
	}
	if !h.LastSuccessAt.IsZero() {
		t.Error("alpha LastSuccessAt set on a failed fetch")
	}
}

func TestAggregator_ValidationDrops(t *testing.T) {
	start, end := fetchWindow()
	night := time.Date(2025, 11, 14, 20, 0, 0, 0, time.UTC)

	valid := ev("alpha", "x1", "Four Tet", "Fabric", night)
	invalid := ev("alpha", "x2", "", "Fabric", night) // no title

	store := newMockCatalog()
	agg := testAggregator(store,
		&mockSource{name: "alpha", enabled: true, events: []model.NormalizedEvent{valid, invalid}},
	)

	report, err := agg.RunFetchCycle(context.Background(), start, end, nil)
	if err != nil {
		t.Fatalf("RunFetchCycle failed: %v", err)
	}

	if report.Dropped != 1 {
		t.Errorf("Dropped = %d, want 1", report.Dropped)
	}
	if report.Fetched != 1 {
		t.Errorf("Fetched = %d, want 1", report.Fetched)
	}
	if report.Sources[0].Dropped != 1 {
		t.Errorf("source Dropped = %d, want 1", report.Sources[0].Dropped)
	}
	if len(store.applied) != 1 {
		t.Errorf("applied %d upserts, want 1", len(store.applied))
	}
}

func TestAggregator_IdempotentRerun(t *testing.T) {
	start, end := fetchWindow()
	night := time.Date(2025, 11, 14, 20, 0, 0, 0, time.UTC)

	e1 := ev("alpha", "x1", "Mitski", "Brixton Academy", night)
	e1.Signal = model.TicketSignal{RawStatus: "onsale"}
	e2 := ev("alpha", "x2", "Sleaford Mods", "Electric Ballroom", night)
	e2.Signal = model.TicketSignal{RawStatus: "onsale"}

	store := newMockCatalog()
	agg := testAggregator(store,
		&mockSource{name: "alpha", enabled: true, events: []model.NormalizedEvent{e1, e2}},
	)

	first, err := agg.RunFetchCycle(context.Background(), start, end, nil)
	if err != nil {
		t.Fatalf("first cycle failed: %v", err)
	}
	if first.Created != 2 || first.Transitions != 0 {
		t.Fatalf("first cycle: Created = %d, Transitions = %d, want 2, 0", first.Created, first.Transitions)
	}

	second, err := agg.RunFetchCycle(context.Background(), start, end, nil)
	if err != nil {
		t.Fatalf("second cycle failed: %v", err)
	}
	if second.Created != 0 {
		t.Errorf("second cycle Created = %d, want 0", second.Created)
	}
	if second.Updated != 2 {
		t.Errorf("second cycle Updated = %d, want 2", second.Updated)
	}
	if second.Transitions != 0 {
		t.Errorf("second cycle Transitions = %d, want 0", second.Transitions)
	}
}

func TestAggregator_AttachesToStoredHead(t *testing.T) {
	start, end := fetchWindow()
	night := time.Date(2025, 11, 14, 20, 0, 0, 0, time.UTC)

	// The stored event came from another provider, so no provenance pair
	// matches; only the fuzzy head match can attach.
	storedID := uuid.New()
	store := newMockCatalog()
	store.heads = []model.EventHead{
		{ID: storedID, Title: "Radiohead Live", VenueName: "O2 Arena", StartTime: night},
	}
	store.status[storedID] = model.StatusOnSale

	incoming := ev("beta", "y9", "Radiohead — Live!", "The O2", night)
	incoming.Signal = model.TicketSignal{RawStatus: "onsale"}

	agg := testAggregator(store,
		&mockSource{name: "beta", enabled: true, events: []model.NormalizedEvent{incoming}},
	)

	report, err := agg.RunFetchCycle(context.Background(), start, end, nil)
	if err != nil {
		t.Fatalf("RunFetchCycle failed: %v", err)
	}

	if report.Created != 0 {
		t.Errorf("Created = %d, want 0", report.Created)
	}
	if report.Updated != 1 {
		t.Errorf("Updated = %d, want 1", report.Updated)
	}
	if len(store.applied) != 1 {
		t.Fatalf("applied %d upserts, want 1", len(store.applied))
	}
	if store.applied[0].AttachTo != storedID {
		t.Errorf("AttachTo = %s, want %s", store.applied[0].AttachTo, storedID)
	}
}

func TestAggregator_HeadLoadFailureDegrades(t *testing.T) {
	start, end := fetchWindow()
	night := time.Date(2025, 11, 14, 20, 0, 0, 0, time.UTC)

	e := ev("alpha", "x1", "Caribou", "Troxy", night)

	store := newMockCatalog()
	store.headsErr = errors.New("connection reset")

	agg := testAggregator(store,
		&mockSource{name: "alpha", enabled: true, events: []model.NormalizedEvent{e}},
	)

	report, err := agg.RunFetchCycle(context.Background(), start, end, nil)
	if err != nil {
		t.Fatalf("RunFetchCycle failed: %v", err)
	}
	if report.Created != 1 {
		t.Errorf("Created = %d, want 1", report.Created)
	}
	if store.applied[0].AttachTo != uuid.Nil {
		t.Errorf("AttachTo = %s, want Nil", store.applied[0].AttachTo)
	}
}

func TestAggregator_RecordsTransition(t *testing.T) {
	start, end := fetchWindow()
	night := time.Date(2025, 11, 14, 20, 0, 0, 0, time.UTC)

	// Previously on sale, now reporting zero remaining.
	existingID := uuid.New()
	ref := model.SourceRef{SourceName: "alpha", SourceID: "x1"}

	store := newMockCatalog()
	store.known[ref] = existingID
	store.status[existingID] = model.StatusOnSale

	soldOut := ev("alpha", "x1", "Fontaines D.C.", "Alexandra Palace", night)
	soldOut.Signal = model.TicketSignal{Remaining: intp(0)}

	agg := testAggregator(store,
		&mockSource{name: "alpha", enabled: true, events: []model.NormalizedEvent{soldOut}},
	)

	report, err := agg.RunFetchCycle(context.Background(), start, end, nil)
	if err != nil {
		t.Fatalf("RunFetchCycle failed: %v", err)
	}

	if report.Updated != 1 {
		t.Errorf("Updated = %d, want 1", report.Updated)
	}
	if report.Transitions != 1 {
		t.Errorf("Transitions = %d, want 1", report.Transitions)
	}
	if got := store.status[existingID]; got != model.StatusSoldOut {
		t.Errorf("status = %q, want %q", got, model.StatusSoldOut)
	}
}

// TestAggregator_InventoryDropAcrossCycles walks the same event through two
// cycles: healthy inventory first, then scarce. Exactly one transition must
// be recorded, on the second cycle.
func TestAggregator_InventoryDropAcrossCycles(t *testing.T) {
	start, end := fetchWindow()
	night := time.Date(2025, 11, 14, 20, 0, 0, 0, time.UTC)

	healthy := ev("alpha", "x1", "Big Thief", "Eventim Apollo", night)
	healthy.Signal = model.TicketSignal{Remaining: intp(60), Capacity: intp(500)}

	store := newMockCatalog()
	src := &mockSource{name: "alpha", enabled: true, events: []model.NormalizedEvent{healthy}}
	agg := testAggregator(store, src)

	first, err := agg.RunFetchCycle(context.Background(), start, end, nil)
	if err != nil {
		t.Fatalf("first cycle failed: %v", err)
	}
	if first.Created != 1 || first.Transitions != 0 {
		t.Fatalf("first cycle: Created = %d, Transitions = %d, want 1, 0", first.Created, first.Transitions)
	}
	if got := store.status[store.known[healthy.Ref()]]; got != model.StatusOnSale {
		t.Fatalf("status after first cycle = %q, want %q", got, model.StatusOnSale)
	}

	scarce := healthy
	scarce.Signal = model.TicketSignal{Remaining: intp(3), Capacity: intp(500)}
	src.events = []model.NormalizedEvent{scarce}

	second, err := agg.RunFetchCycle(context.Background(), start, end, nil)
	if err != nil {
		t.Fatalf("second cycle failed: %v", err)
	}
	if second.Created != 0 || second.Updated != 1 {
		t.Errorf("second cycle: Created = %d, Updated = %d, want 0, 1", second.Created, second.Updated)
	}
	if second.Transitions != 1 {
		t.Errorf("second cycle Transitions = %d, want exactly 1", second.Transitions)
	}
	if got := store.status[store.known[scarce.Ref()]]; got != model.StatusSellingFast {
		t.Errorf("status after second cycle = %q, want %q", got, model.StatusSellingFast)
	}
}

func TestAggregator_PersistFailureIsolated(t *testing.T) {
	start, end := fetchWindow()
	night := time.Date(2025, 11, 14, 20, 0, 0, 0, time.UTC)

	bad := ev("alpha", "x1", "Cursed Gig", "The Garage", night)
	good := ev("alpha", "x2", "Fine Gig", "The Garage", night.Add(24*time.Hour))

	store := newMockCatalog()
	store.failing["Cursed Gig"] = errors.New("deadlock detected")

	agg := testAggregator(store,
		&mockSource{name: "alpha", enabled: true, events: []model.NormalizedEvent{bad, good}},
	)

	report, err := agg.RunFetchCycle(context.Background(), start, end, nil)
	if err != nil {
		t.Fatalf("RunFetchCycle failed: %v", err)
	}

	if len(report.Failures) != 1 {
		t.Fatalf("Failures = %d, want 1", len(report.Failures))
	}
	if report.Failures[0].Title != "Cursed Gig" {
		t.Errorf("failure title = %q, want %q", report.Failures[0].Title, "Cursed Gig")
	}
	if report.Created != 1 {
		t.Errorf("Created = %d, want 1", report.Created)
	}
}

func TestAggregator_OnlyFilter(t *testing.T) {
	start, end := fetchWindow()
	night := time.Date(2025, 11, 14, 20, 0, 0, 0, time.UTC)

	alpha := &mockSource{name: "alpha", enabled: true, events: []model.NormalizedEvent{
		ev("alpha", "x1", "Event A", "Venue A", night),
	}}
	beta := &mockSource{name: "beta", enabled: true, events: []model.NormalizedEvent{
		ev("beta", "y1", "Event B", "Venue B", night),
	}}

	store := newMockCatalog()
	agg := testAggregator(store, alpha, beta)

	report, err := agg.RunFetchCycle(context.Background(), start, end, []string{"beta", "nonsense"})
	if err != nil {
		t.Fatalf("RunFetchCycle failed: %v", err)
	}

	if len(report.Sources) != 1 || report.Sources[0].Source != "beta" {
		t.Fatalf("sources = %+v, want just beta", report.Sources)
	}
	if alpha.calls.Load() != 0 {
		t.Errorf("alpha fetched %d times, want 0", alpha.calls.Load())
	}
	if beta.calls.Load() != 1 {
		t.Errorf("beta fetched %d times, want 1", beta.calls.Load())
	}
}

func TestAggregator_Concurrency(t *testing.T) {
	start, end := fetchWindow()

	var inFlight, maxInFlight atomic.Int32
	var sources []source.Source
	for _, name := range []string{"s1", "s2", "s3", "s4", "s5", "s6"} {
		sources = append(sources, &mockSource{
			name:        name,
			enabled:     true,
			delay:       30 * time.Millisecond,
			inFlight:    &inFlight,
			maxInFlight: &maxInFlight,
		})
	}

	store := newMockCatalog()
	agg := testAggregator(store, sources...)
	agg.cfg.Concurrency = 2

	if _, err := agg.RunFetchCycle(context.Background(), start, end, nil); err != nil {
		t.Fatalf("RunFetchCycle failed: %v", err)
	}

	if got := maxInFlight.Load(); got > 2 {
		t.Errorf("maxInFlight = %d, want <= 2", got)
	}
}

func TestAggregator_SourceTimeout(t *testing.T) {
	start, end := fetchWindow()

	slow := &mockSource{name: "alpha", enabled: true, delay: 500 * time.Millisecond}

	store := newMockCatalog()
	agg := testAggregator(store, slow)
	agg.cfg.SourceTimeout = 20 * time.Millisecond

	report, err := agg.RunFetchCycle(context.Background(), start, end, nil)
	if err != nil {
		t.Fatalf("RunFetchCycle failed: %v", err)
	}

	if report.Sources[0].Err == nil {
		t.Fatal("slow source reported no error, want deadline exceeded")
	}
	if !errors.Is(report.Sources[0].Err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want context.DeadlineExceeded", report.Sources[0].Err)
	}
	if report.Fetched != 0 {
		t.Errorf("Fetched = %d, want 0", report.Fetched)
	}
}

func TestAggregator_StartStop(t *testing.T) {
	night := time.Date(2025, 11, 14, 20, 0, 0, 0, time.UTC)
	src := &mockSource{name: "alpha", enabled: true, events: []model.NormalizedEvent{
		ev("alpha", "x1", "Evening Show", "Union Chapel", night),
	}}

	store := newMockCatalog()
	agg := testAggregator(store, src)
	agg.cfg.Interval = 50 * time.Millisecond

	ctx := context.Background()
	if err := agg.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Wait for at least the immediate first cycle.
	time.Sleep(80 * time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := agg.Stop(stopCtx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if src.calls.Load() < 1 {
		t.Error("no cycle ran before Stop")
	}
}

func TestAggregator_MetricsRecorded(t *testing.T) {
	start, end := fetchWindow()
	night := time.Date(2025, 11, 14, 20, 0, 0, 0, time.UTC)

	e := ev("alpha", "x1", "LCD Soundsystem", "Printworks", night)

	store := newMockCatalog()
	agg := testAggregator(store,
		&mockSource{name: "alpha", enabled: true, events: []model.NormalizedEvent{e}},
		&mockSource{name: "beta", enabled: true, err: errors.New("boom")},
	)
	agg.metrics = metrics.New()

	if _, err := agg.RunFetchCycle(context.Background(), start, end, nil); err != nil {
		t.Fatalf("RunFetchCycle failed: %v", err)
	}
	// Nothing to assert beyond not panicking: collector wiring is covered
	// by the metrics package tests.
}
