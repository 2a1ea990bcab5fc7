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
	ebName       = "eventbrite"
	ebTimeFormat = "2006-01-02T15:04:05Z"
	ebRadius     = "25mi"
)

var ebCategories = map[string]string{
	"music":                       "music",
	"performing & visual arts":    "arts",
	"film, media & entertainment": "film",
	"sports & fitness":            "sports",
	"family & education":          "family",
	"seasonal & holiday":          "other",
	"business & professional":     "other",
	"food & drink":                "other",
	"community & culture":         "other",
}

// Eventbrite adapts the v3 search API. The token travels as a bearer
// header, handled by the shared client.
type Eventbrite struct {
	cfg    config.APISourceConfig
	city   string
	client *Client
}

// NewEventbrite builds the adapter for one city.
func NewEventbrite(cfg config.APISourceConfig, city string, opts ...ClientOption) *Eventbrite {
	clientOpts := append([]ClientOption{WithRateLimit(cfg.RateLimit)}, opts...)
	return &Eventbrite{
		cfg:    cfg,
		city:   city,
		client: NewClient(cfg.BaseURL, cfg.APIKey, clientOpts...),
	}
}

func (e *Eventbrite) Name() string { return ebName }

func (e *Eventbrite) Type() model.SourceType { return model.SourceTypeAPI }

func (e *Eventbrite) Enabled() bool { return e.cfg.Enabled() }

// FetchEvents walks the continuation-token pagination until the API
// reports no more items or stops handing out tokens.
func (e *Eventbrite) FetchEvents(ctx context.Context, start, end time.Time) ([]model.NormalizedEvent, error) {
	var events []model.NormalizedEvent
	fetchedAt := time.Now().UTC()

	continuation := ""
	for {
		query := url.Values{}
		query.Set("location.address", e.city)
		query.Set("location.within", ebRadius)
		query.Set("start_date.range_start", start.UTC().Format(ebTimeFormat))
		query.Set("start_date.range_end", end.UTC().Format(ebTimeFormat))
		query.Set("expand", "venue,ticket_availability,category")
		if continuation != "" {
			query.Set("continuation", continuation)
		}

		var resp ebSearchResponse
		if err := e.client.get(ctx, "/events/search/", query, &resp); err != nil {
			return events, fmt.Errorf("events search: %w", err)
		}

		for _, raw := range resp.Events {
			if raw.ID == "" || raw.Name.Text == "" {
				continue
			}
			events = append(events, raw.toNormalized(fetchedAt))
		}

		if !resp.Pagination.HasMoreItems || resp.Pagination.Continuation == "" {
			break
		}
		continuation = resp.Pagination.Continuation
	}

	return events, nil
}

type ebSearchResponse struct {
	Events     []ebEvent `json:"events"`
	Pagination struct {
		HasMoreItems bool   `json:"has_more_items"`
		Continuation string `json:"continuation"`
	} `json:"pagination"`
}

type ebEvent struct {
	ID   string `json:"id"`
	Name struct {
		Text string `json:"text"`
	} `json:"name"`
	Description struct {
		Text string `json:"text"`
	} `json:"description"`
	URL   string `json:"url"`
	Start struct {
		UTC string `json:"utc"`
	} `json:"start"`
	End struct {
		UTC string `json:"utc"`
	} `json:"end"`
	Venue              *ebVenue        `json:"venue"`
	IsFree             bool            `json:"is_free"`
	TicketAvailability *ebAvailability `json:"ticket_availability"`
	Logo               *struct {
		URL string `json:"url"`
	} `json:"logo"`
	Category *struct {
		Name string `json:"name"`
	} `json:"category"`
}

type ebVenue struct {
	Name    string `json:"name"`
	Address struct {
		Address1   string `json:"address_1"`
		City       string `json:"city"`
		PostalCode string `json:"postal_code"`
	} `json:"address"`
}

type ebAvailability struct {
	IsSoldOut          bool     `json:"is_sold_out"`
	MinimumTicketPrice *ebPrice `json:"minimum_ticket_price"`
	MaximumTicketPrice *ebPrice `json:"maximum_ticket_price"`
}

type ebPrice struct {
	MajorValue string `json:"major_value"`
	Currency   string `json:"currency"`
}

func (e ebEvent) toNormalized(fetchedAt time.Time) model.NormalizedEvent {
	out := model.NormalizedEvent{
		Title:       e.Name.Text,
		Description: e.Description.Text,
		StartTime:   parseEventTime(e.Start.UTC),
		EndTime:     parseEventTime(e.End.UTC),
		SourceName:  ebName,
		SourceID:    e.ID,
		URL:         e.URL,
		FetchedAt:   fetchedAt,
	}

	if e.Venue != nil {
		out.VenueName = e.Venue.Name
		out.VenueAddress = joinAddress(e.Venue.Address.Address1, e.Venue.Address.City, e.Venue.Address.PostalCode)
	}

	if avail := e.TicketAvailability; avail != nil {
		if avail.IsSoldOut {
			zero := 0
			out.Signal.Remaining = &zero
			out.Signal.RawStatus = "sold out"
		} else {
			out.Signal.RawStatus = "onsale"
		}
		out.PriceMin, out.Currency = ebPriceValue(avail.MinimumTicketPrice, out.Currency)
		out.PriceMax, out.Currency = ebPriceValue(avail.MaximumTicketPrice, out.Currency)
	}

	if e.IsFree {
		zero := 0.0
		out.PriceMin, out.PriceMax = &zero, &zero
	}

	if e.Logo != nil {
		out.ImageURL = e.Logo.URL
	}

	if e.Category != nil {
		out.Categories = mapCategories(ebCategories, e.Category.Name)
	}

	return out
}

// ebPriceValue parses a ticket price block, keeping the already-known
// currency when the block is absent.
func ebPriceValue(p *ebPrice, currency string) (*float64, string) {
	if p == nil || p.MajorValue == "" {
		return nil, currency
	}
	v, err := strconv.ParseFloat(p.MajorValue, 64)
	if err != nil {
		return nil, currency
	}
	if p.Currency != "" {
		currency = p.Currency
	}
	return &v, currency
}
