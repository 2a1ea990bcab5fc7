package source

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/mhollis/stagewatch/internal/config"
	"github.com/mhollis/stagewatch/internal/model"
)

const (
	sgName          = "seatgeek"
	sgCountryCode   = "GB"
	sgDateFormat    = "2006-01-02"
	sgMaxCategories = 5
)

var sgCategories = map[string]string{
	"concert":   "music",
	"theater":   "theatre",
	"broadway":  "theatre",
	"comedy":    "comedy",
	"classical": "classical",
	"family":    "family",
	"sports":    "sports",
	"nba":       "sports",
	"nfl":       "sports",
	"mlb":       "sports",
	"nhl":       "sports",
	"soccer":    "sports",
	"mls":       "sports",
	"festival":  "music",
}

// SeatGeek adapts the platform API. The client_id travels as a query
// parameter; listing counts come from the resale stats block.
type SeatGeek struct {
	cfg    config.APISourceConfig
	city   string
	client *Client
}

// NewSeatGeek builds the adapter for one city.
func NewSeatGeek(cfg config.APISourceConfig, city string, opts ...ClientOption) *SeatGeek {
	clientOpts := append([]ClientOption{WithRateLimit(cfg.RateLimit)}, opts...)
	return &SeatGeek{
		cfg:    cfg,
		city:   city,
		client: NewClient(cfg.BaseURL, "", clientOpts...),
	}
}

func (s *SeatGeek) Name() string { return sgName }

func (s *SeatGeek) Type() model.SourceType { return model.SourceTypeAPI }

func (s *SeatGeek) Enabled() bool { return s.cfg.Enabled() }

// FetchEvents walks the one-based page/per_page pagination, stopping on
// an empty page or once page*per_page covers meta.total.
func (s *SeatGeek) FetchEvents(ctx context.Context, start, end time.Time) ([]model.NormalizedEvent, error) {
	var events []model.NormalizedEvent
	fetchedAt := time.Now().UTC()

	for page := 1; ; page++ {
		query := url.Values{}
		query.Set("client_id", s.cfg.APIKey)
		query.Set("venue.city", s.city)
		query.Set("venue.country", sgCountryCode)
		query.Set("datetime_local.gte", start.UTC().Format(sgDateFormat))
		query.Set("datetime_local.lte", end.UTC().Format(sgDateFormat))
		query.Set("per_page", strconv.Itoa(s.cfg.PageSize))
		query.Set("page", strconv.Itoa(page))

		var resp sgEventsResponse
		if err := s.client.get(ctx, "/events", query, &resp); err != nil {
			return events, fmt.Errorf("events page %d: %w", page, err)
		}

		if len(resp.Events) == 0 {
			break
		}

		for _, raw := range resp.Events {
			if raw.ID == 0 || raw.Title == "" {
				continue
			}
			events = append(events, raw.toNormalized(fetchedAt))
		}

		if page*s.cfg.PageSize >= resp.Meta.Total {
			break
		}
	}

	return events, nil
}

type sgEventsResponse struct {
	Events []sgEvent `json:"events"`
	Meta   struct {
		Total   int `json:"total"`
		Page    int `json:"page"`
		PerPage int `json:"per_page"`
	} `json:"meta"`
}

type sgEvent struct {
	ID            int64         `json:"id"`
	Title         string        `json:"title"`
	URL           string        `json:"url"`
	DatetimeUTC   string        `json:"datetime_utc"`
	DatetimeLocal string        `json:"datetime_local"`
	AnnounceDate  string        `json:"announce_date"`
	Type          string        `json:"type"`
	Venue         sgVenue       `json:"venue"`
	Stats         sgStats       `json:"stats"`
	Performers    []sgPerformer `json:"performers"`
	Taxonomies    []sgTaxonomy  `json:"taxonomies"`
}

type sgVenue struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	City    string `json:"city"`
}

type sgStats struct {
	LowestPrice  *float64 `json:"lowest_price"`
	HighestPrice *float64 `json:"highest_price"`
	ListingCount *int     `json:"listing_count"`
}

type sgPerformer struct {
	Image string `json:"image"`
}

type sgTaxonomy struct {
	Name string `json:"name"`
}

func (e sgEvent) toNormalized(fetchedAt time.Time) model.NormalizedEvent {
	out := model.NormalizedEvent{
		Title:        e.Title,
		StartTime:    parseEventTime(firstNonEmpty(e.DatetimeUTC, e.DatetimeLocal)),
		VenueName:    e.Venue.Name,
		VenueAddress: joinAddress(e.Venue.Address, e.Venue.City),
		SourceName:   sgName,
		SourceID:     strconv.FormatInt(e.ID, 10),
		URL:          e.URL,
		OnSaleDate:   parseEventTime(e.AnnounceDate),
		FetchedAt:    fetchedAt,
		Signal: model.TicketSignal{
			Remaining: e.Stats.ListingCount,
		},
	}

	out.PriceMin = e.Stats.LowestPrice
	out.PriceMax = e.Stats.HighestPrice
	if out.PriceMin != nil || out.PriceMax != nil {
		// The platform reports prices without a currency; London
		// listings are in pounds.
		out.Currency = "GBP"
	}

	if len(e.Performers) > 0 {
		out.ImageURL = e.Performers[0].Image
	}

	hints := make([]string, 0, 1+len(e.Taxonomies))
	if e.Type != "" {
		hints = append(hints, e.Type)
	}
	for _, t := range e.Taxonomies {
		hints = append(hints, t.Name)
	}
	out.Categories = mapCategories(sgCategories, hints...)
	if len(out.Categories) > sgMaxCategories {
		out.Categories = out.Categories[:sgMaxCategories]
	}

	return out
}
