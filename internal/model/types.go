package model

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// -----------------------------------------------------------------------------
// Source Provenance
// -----------------------------------------------------------------------------

// SourceType distinguishes how a source obtains its data.
type SourceType string

const (
	SourceTypeAPI     SourceType = "api"     // structured ticketing/listing API
	SourceTypeScraper SourceType = "scraper" // venue website scraper
)

// Valid reports whether t is a recognized source type.
func (t SourceType) Valid() bool {
	return t == SourceTypeAPI || t == SourceTypeScraper
}

// SourceRef identifies one source's copy of an event.
type SourceRef struct {
	SourceName string // Registry name (e.g., "ticketmaster")
	SourceID   string // Source-local identifier (API id or URL hash)
}

// -----------------------------------------------------------------------------
// Availability
// -----------------------------------------------------------------------------

// AvailabilityStatus is the classified ticket availability of an event.
// Statuses have no total order; changes are tracked as transitions.
type AvailabilityStatus string

const (
	StatusUpcoming    AvailabilityStatus = "upcoming"     // no signal yet, tickets not necessarily on sale
	StatusOnSale      AvailabilityStatus = "on_sale"      // tickets available, no scarcity
	StatusSellingFast AvailabilityStatus = "selling_fast" // low remaining inventory
	StatusSoldOut     AvailabilityStatus = "sold_out"     // no tickets remain
	StatusCancelled   AvailabilityStatus = "cancelled"    // event withdrawn
)

// Valid reports whether s is a recognized availability status.
func (s AvailabilityStatus) Valid() bool {
	switch s {
	case StatusUpcoming, StatusOnSale, StatusSellingFast, StatusSoldOut, StatusCancelled:
		return true
	}
	return false
}

// TicketSignal carries whatever availability evidence a source reported.
// All fields are optional; nil/empty means the source said nothing.
type TicketSignal struct {
	Remaining *int   // Tickets remaining, if reported
	Capacity  *int   // Total capacity, if reported
	RawStatus string // Source's own status string, verbatim (e.g., "onsale", "cancelled")
}

// Present reports whether the source provided any availability evidence at all.
func (s TicketSignal) Present() bool {
	return s.Remaining != nil || s.Capacity != nil || strings.TrimSpace(s.RawStatus) != ""
}

// Percent derives the remaining-availability percentage when both counts are
// known and capacity is positive.
func (s TicketSignal) Percent() (float64, bool) {
	if s.Remaining == nil || s.Capacity == nil || *s.Capacity <= 0 {
		return 0, false
	}
	return float64(*s.Remaining) / float64(*s.Capacity) * 100, true
}

// -----------------------------------------------------------------------------
// Normalized Feed Types
// -----------------------------------------------------------------------------

// NormalizedEvent is one event as reported by one source, mapped into the
// common shape. It is ephemeral: produced by an adapter, consumed by the
// merge pipeline, never persisted as-is.
type NormalizedEvent struct {
	Title        string
	Description  string
	StartTime    time.Time // Mandatory; UTC
	EndTime      time.Time // Zero if the source did not report one
	VenueName    string
	VenueAddress string

	PriceMin *float64 // In Currency units; nil if not reported
	PriceMax *float64
	Currency string // ISO 4217 (e.g., "GBP")

	Signal TicketSignal

	SourceName string // Registry name of the producing source
	SourceID   string // Source-local identifier
	URL        string // Listing page at the source
	ImageURL   string
	Categories []string  // Raw category hints from the source
	OnSaleDate time.Time // Zero if unknown
	FetchedAt  time.Time // Stamped by the fetch cycle
}

// Validate rejects records that cannot participate in merging. Title and
// start time are the identity fields; provenance must name its source.
func (e NormalizedEvent) Validate() error {
	if strings.TrimSpace(e.Title) == "" {
		return errors.New("event title is required")
	}
	if e.StartTime.IsZero() {
		return errors.New("event start time is required")
	}
	if e.SourceName == "" {
		return errors.New("source name is required")
	}
	if e.SourceID == "" {
		return errors.New("source id is required")
	}
	return nil
}

// Ref returns the provenance pair for this record.
func (e NormalizedEvent) Ref() SourceRef {
	return SourceRef{SourceName: e.SourceName, SourceID: e.SourceID}
}

// -----------------------------------------------------------------------------
// Catalog Types
// -----------------------------------------------------------------------------

// CatalogEvent is the canonical, persisted form of one real-world event.
// Exactly one exists per distinct event; Sources lists every contributing
// source and only ever grows.
type CatalogEvent struct {
	ID           uuid.UUID // Primary key
	Title        string
	Description  string
	StartTime    time.Time
	EndTime      time.Time
	VenueName    string
	VenueAddress string

	PriceMin *float64
	PriceMax *float64
	Currency string

	Status         AvailabilityStatus
	PreviousStatus AvailabilityStatus // Empty until the first transition

	// Latest availability snapshot, from the most recent classification input.
	TicketsAvailable    *int
	TotalCapacity       *int
	AvailabilityPercent *float64

	URL        string
	ImageURL   string
	Categories []string
	OnSaleDate time.Time

	Sources []SourceRef // Never empty

	FirstSeenAt time.Time // Immutable after insert
	UpdatedAt   time.Time
}

// HasSource reports whether ref already contributes to this event.
func (e *CatalogEvent) HasSource(ref SourceRef) bool {
	for _, s := range e.Sources {
		if s == ref {
			return true
		}
	}
	return false
}

// EventHead is the projection of a stored event used for duplicate
// attachment during upserts: just enough to run the match test.
type EventHead struct {
	ID        uuid.UUID
	Title     string
	VenueName string
	StartTime time.Time
}

// AvailabilityTransition is one append-only status change record.
type AvailabilityTransition struct {
	ID                  int64 // Assigned by the database
	EventID             uuid.UUID
	PreviousStatus      AvailabilityStatus
	NewStatus           AvailabilityStatus
	TicketsAvailable    *int     // Snapshot at transition time, if known
	AvailabilityPercent *float64 // Snapshot at transition time, if known
	RecordedAt          time.Time
}

// SourceHealth is the per-source operational record updated every cycle.
type SourceHealth struct {
	SourceName       string
	SourceType       SourceType
	Enabled          bool
	LastAttemptAt    time.Time
	LastSuccessAt    time.Time // Zero until the first successful fetch
	LastError        string    // Empty after a successful fetch
	EventsFetched    int64     // Lifetime count of events returned
	LastFetchSeconds float64
}

// -----------------------------------------------------------------------------
// Categories
// -----------------------------------------------------------------------------

// KnownCategories is the reference set seeded into the catalog. Hints
// outside this set pass through lowercased.
var KnownCategories = []string{
	"music", "theatre", "comedy", "dance", "classical",
	"film", "sports", "family", "arts", "other",
}

var categoryAliases = map[string]string{
	"concert":  "music",
	"concerts": "music",
	"gig":      "music",
	"gigs":     "music",
	"theater":  "theatre",
	"plays":    "theatre",
	"standup":  "comedy",
	"stand-up": "comedy",
	"cinema":   "film",
	"movies":   "film",
	"kids":     "family",
}

// CanonicalCategory maps a source's category hint onto the reference set
// where an alias is known, otherwise returns the hint lowercased.
func CanonicalCategory(hint string) string {
	c := strings.ToLower(strings.TrimSpace(hint))
	if mapped, ok := categoryAliases[c]; ok {
		return mapped
	}
	return c
}
