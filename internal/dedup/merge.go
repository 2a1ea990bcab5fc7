package dedup

import (
	"sort"
	"time"

	"github.com/mhollis/stagewatch/internal/model"
)

// Merger groups duplicate event records and produces one canonical record
// per group.
type Merger struct {
	titleThreshold float64
	venueThreshold float64
}

// NewMerger builds a Merger with the given similarity thresholds.
func NewMerger(titleThreshold, venueThreshold float64) *Merger {
	return &Merger{
		titleThreshold: titleThreshold,
		venueThreshold: venueThreshold,
	}
}

// Group is one set of records judged to describe the same real-world event.
type Group struct {
	Canonical model.NormalizedEvent   // Merged field values
	Members   []model.NormalizedEvent // Contributing records, input order
	Refs      []model.SourceRef       // Distinct provenance pairs, sorted
}

// Match reports whether a and b describe the same event: both similarities
// meet their thresholds and the events start on the same UTC calendar date.
// The date gate keeps recurring events (same title, same venue, different
// nights) apart.
func (m *Merger) Match(a, b model.NormalizedEvent) bool {
	if !sameCalendarDate(a.StartTime, b.StartTime) {
		return false
	}
	if TitleSimilarity(a.Title, b.Title) < m.titleThreshold {
		return false
	}
	return VenueSimilarity(a.VenueName, b.VenueName) >= m.venueThreshold
}

// MatchHead applies the same test against a stored event's head fields.
func (m *Merger) MatchHead(e model.NormalizedEvent, h model.EventHead) bool {
	if !sameCalendarDate(e.StartTime, h.StartTime) {
		return false
	}
	if TitleSimilarity(e.Title, h.Title) < m.titleThreshold {
		return false
	}
	return VenueSimilarity(e.VenueName, h.VenueName) >= m.venueThreshold
}

// Merge partitions events into duplicate groups and merges each group into
// one canonical record. Grouping is transitive via union-find. Records are
// bucketed by calendar date before pairwise comparison; the date gate makes
// cross-date pairs non-matches, so no pair is missed.
func (m *Merger) Merge(events []model.NormalizedEvent) []Group {
	if len(events) == 0 {
		return nil
	}

	uf := newUnionFind(len(events))

	byDate := make(map[string][]int)
	for i, e := range events {
		key := e.StartTime.UTC().Format("2006-01-02")
		byDate[key] = append(byDate[key], i)
	}

	for _, idxs := range byDate {
		for x := 0; x < len(idxs); x++ {
			for y := x + 1; y < len(idxs); y++ {
				i, j := idxs[x], idxs[y]
				if uf.find(i) == uf.find(j) {
					continue
				}
				if m.Match(events[i], events[j]) {
					uf.union(i, j)
				}
			}
		}
	}

	// Collect groups ordered by each group's first member in the input.
	var order []int
	memberIdx := make(map[int][]int)
	for i := range events {
		root := uf.find(i)
		if _, seen := memberIdx[root]; !seen {
			order = append(order, root)
		}
		memberIdx[root] = append(memberIdx[root], i)
	}

	groups := make([]Group, 0, len(order))
	for _, root := range order {
		g := Group{Members: make([]model.NormalizedEvent, 0, len(memberIdx[root]))}
		for _, i := range memberIdx[root] {
			g.Members = append(g.Members, events[i])
		}
		g.Canonical, g.Refs = canonicalize(g.Members)
		groups = append(groups, g)
	}
	return groups
}

func sameCalendarDate(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// canonicalize merges group members into one record. Members rank by signal
// presence, then source name, then source id: the top-ranked member is the
// base record and supplies the ticket signal. Ranking never consults fetch
// timing, so the result is independent of input order.
func canonicalize(members []model.NormalizedEvent) (model.NormalizedEvent, []model.SourceRef) {
	ranked := make([]model.NormalizedEvent, len(members))
	copy(ranked, members)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Signal.Present() != b.Signal.Present() {
			return a.Signal.Present()
		}
		if a.SourceName != b.SourceName {
			return a.SourceName < b.SourceName
		}
		return a.SourceID < b.SourceID
	})

	canon := ranked[0]

	// Fill fields the base record left empty.
	for _, e := range ranked[1:] {
		if canon.Description == "" {
			canon.Description = e.Description
		}
		if canon.VenueName == "" {
			canon.VenueName = e.VenueName
		}
		if canon.VenueAddress == "" {
			canon.VenueAddress = e.VenueAddress
		}
		if canon.EndTime.IsZero() {
			canon.EndTime = e.EndTime
		}
		if canon.URL == "" {
			canon.URL = e.URL
		}
		if canon.ImageURL == "" {
			canon.ImageURL = e.ImageURL
		}
		if canon.OnSaleDate.IsZero() {
			canon.OnSaleDate = e.OnSaleDate
		}
		if canon.Currency == "" {
			canon.Currency = e.Currency
		}
	}

	applyPricePolicy(&canon, ranked)
	canon.Categories = unionCategories(members)

	return canon, collectRefs(members)
}

// applyPricePolicy picks the narrowest complete price span in rank order,
// falling back to filling partial bounds when no member reports both.
func applyPricePolicy(canon *model.NormalizedEvent, ranked []model.NormalizedEvent) {
	bestIdx := -1
	var bestSpan float64
	for i, e := range ranked {
		if e.PriceMin == nil || e.PriceMax == nil {
			continue
		}
		span := *e.PriceMax - *e.PriceMin
		if bestIdx == -1 || span < bestSpan {
			bestIdx = i
			bestSpan = span
		}
	}
	if bestIdx >= 0 {
		e := ranked[bestIdx]
		canon.PriceMin = e.PriceMin
		canon.PriceMax = e.PriceMax
		if e.Currency != "" {
			canon.Currency = e.Currency
		}
		return
	}
	for _, e := range ranked {
		if canon.PriceMin == nil && e.PriceMin != nil {
			canon.PriceMin = e.PriceMin
		}
		if canon.PriceMax == nil && e.PriceMax != nil {
			canon.PriceMax = e.PriceMax
		}
	}
}

func unionCategories(members []model.NormalizedEvent) []string {
	seen := make(map[string]struct{})
	var cats []string
	for _, e := range members {
		for _, hint := range e.Categories {
			c := model.CanonicalCategory(hint)
			if c == "" {
				continue
			}
			if _, dup := seen[c]; dup {
				continue
			}
			seen[c] = struct{}{}
			cats = append(cats, c)
		}
	}
	sort.Strings(cats)
	return cats
}

func collectRefs(members []model.NormalizedEvent) []model.SourceRef {
	seen := make(map[model.SourceRef]struct{})
	refs := make([]model.SourceRef, 0, len(members))
	for _, e := range members {
		ref := e.Ref()
		if _, dup := seen[ref]; dup {
			continue
		}
		seen[ref] = struct{}{}
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].SourceName != refs[j].SourceName {
			return refs[i].SourceName < refs[j].SourceName
		}
		return refs[i].SourceID < refs[j].SourceID
	})
	return refs
}
