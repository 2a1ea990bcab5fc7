package source

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mhollis/stagewatch/internal/config"
	"github.com/mhollis/stagewatch/internal/model"
)

const (
	tmName        = "ticketmaster"
	tmCountryCode = "GB"
	tmTimeFormat  = "2006-01-02T15:04:05Z"
)

var tmCategories = map[string]string{
	"music":          "music",
	"sports":         "sports",
	"arts & theatre": "theatre",
	"film":           "film",
	"miscellaneous":  "other",
	"family":         "family",
}

// Ticketmaster adapts the Discovery API. The key travels as the apikey
// query parameter, so the shared client is built without a bearer token.
type Ticketmaster struct {
	cfg    config.APISourceConfig
	city   string
	client *Client
}

// NewTicketmaster builds the adapter for one city. Extra options reach
// the underlying client; tests inject an HTTP client this way.
func NewTicketmaster(cfg config.APISourceConfig, city string, opts ...ClientOption) *Ticketmaster {
	clientOpts := append([]ClientOption{WithRateLimit(cfg.RateLimit)}, opts...)
	return &Ticketmaster{
		cfg:    cfg,
		city:   city,
		client: NewClient(cfg.BaseURL, "", clientOpts...),
	}
}

func (t *Ticketmaster) Name() string { return tmName }

func (t *Ticketmaster) Type() model.SourceType { return model.SourceTypeAPI }

func (t *Ticketmaster) Enabled() bool { return t.cfg.Enabled() }

// FetchEvents walks the page/totalPages pagination. Items that lack an
// id or name are skipped; everything else is handed back for the
// caller to validate.
func (t *Ticketmaster) FetchEvents(ctx context.Context, start, end time.Time) ([]model.NormalizedEvent, error) {
	var events []model.NormalizedEvent
	fetchedAt := time.Now().UTC()

	page := 0
	totalPages := 1
	for page < totalPages {
		query := url.Values{}
		query.Set("apikey", t.cfg.APIKey)
		query.Set("city", t.city)
		query.Set("countryCode", tmCountryCode)
		query.Set("startDateTime", start.UTC().Format(tmTimeFormat))
		query.Set("endDateTime", end.UTC().Format(tmTimeFormat))
		query.Set("size", strconv.Itoa(t.cfg.PageSize))
		query.Set("page", strconv.Itoa(page))
		query.Set("sort", "date,asc")

		var resp tmEventsResponse
		if err := t.client.get(ctx, "/events.json", query, &resp); err != nil {
			return events, fmt.Errorf("events page %d: %w", page, err)
		}

		for _, raw := range resp.Embedded.Events {
			if raw.ID == "" || raw.Name == "" {
				continue
			}
			events = append(events, raw.toNormalized(fetchedAt))
		}

		totalPages = resp.Page.TotalPages
		page++
	}

	return events, nil
}

type tmEventsResponse struct {
	Embedded struct {
		Events []tmEvent `json:"events"`
	} `json:"_embedded"`
	Page struct {
		TotalPages int `json:"totalPages"`
		Number     int `json:"number"`
	} `json:"page"`
}

type tmEvent struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	URL   string `json:"url"`
	Dates struct {
		Start struct {
			DateTime  string `json:"dateTime"`
			LocalDate string `json:"localDate"`
		} `json:"start"`
		Status struct {
			Code string `json:"code"`
		} `json:"status"`
	} `json:"dates"`
	Sales struct {
		Public struct {
			StartDateTime string `json:"startDateTime"`
		} `json:"public"`
	} `json:"sales"`
	Embedded struct {
		Venues []tmVenue `json:"venues"`
	} `json:"_embedded"`
	PriceRanges     []tmPriceRange     `json:"priceRanges"`
	Images          []tmImage          `json:"images"`
	Classifications []tmClassification `json:"classifications"`
}

type tmVenue struct {
	Name    string `json:"name"`
	Address struct {
		Line1 string `json:"line1"`
	} `json:"address"`
	City struct {
		Name string `json:"name"`
	} `json:"city"`
	PostalCode string `json:"postalCode"`
}

type tmPriceRange struct {
	Min      *float64 `json:"min"`
	Max      *float64 `json:"max"`
	Currency string   `json:"currency"`
}

type tmImage struct {
	URL string `json:"url"`
}

type tmClassification struct {
	Segment struct {
		Name string `json:"name"`
	} `json:"segment"`
	Genre struct {
		Name string `json:"name"`
	} `json:"genre"`
}

func (e tmEvent) toNormalized(fetchedAt time.Time) model.NormalizedEvent {
	out := model.NormalizedEvent{
		Title:      e.Name,
		StartTime:  parseEventTime(firstNonEmpty(e.Dates.Start.DateTime, e.Dates.Start.LocalDate)),
		SourceName: tmName,
		SourceID:   e.ID,
		URL:        e.URL,
		OnSaleDate: parseEventTime(e.Sales.Public.StartDateTime),
		FetchedAt:  fetchedAt,
		Signal: model.TicketSignal{
			RawStatus: strings.ToLower(e.Dates.Status.Code),
		},
	}

	if len(e.Embedded.Venues) > 0 {
		v := e.Embedded.Venues[0]
		out.VenueName = v.Name
		out.VenueAddress = joinAddress(v.Address.Line1, v.City.Name, v.PostalCode)
	}

	if len(e.PriceRanges) > 0 {
		pr := e.PriceRanges[0]
		out.PriceMin = pr.Min
		out.PriceMax = pr.Max
		out.Currency = pr.Currency
		if out.Currency == "" {
			out.Currency = "GBP"
		}
	}

	if len(e.Images) > 0 {
		out.ImageURL = e.Images[0].URL
	}

	if len(e.Classifications) > 0 {
		c := e.Classifications[0]
		out.Categories = mapCategories(tmCategories, c.Segment.Name, c.Genre.Name)
	}

	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
