package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultCity     = "London"
	DefaultCurrency = "GBP"

	DefaultDBPort    = 5432
	DefaultDBSSLMode = "prefer"
	DefaultMaxConns  = 10
	DefaultMinConns  = 2

	DefaultFetchInterval    = 1 * time.Hour
	DefaultFetchConcurrency = 4
	DefaultSourceTimeout    = 30 * time.Second
	DefaultWindowDays       = 90

	DefaultTicketmasterURL = "https://app.ticketmaster.com/discovery/v2"
	DefaultEventbriteURL   = "https://www.eventbriteapi.com/v3"
	DefaultSeatGeekURL     = "https://api.seatgeek.com/2"
	DefaultSourceRateLimit = 0.5 // requests per second
	DefaultSourcePageSize  = 100

	DefaultTitleThreshold = 0.85
	DefaultVenueThreshold = 0.75

	DefaultSellingFastPercent   = 10.0
	DefaultSellingFastRemaining = 50

	DefaultMonitorInterval = 1 * time.Hour
	DefaultMonitorLookback = 25 * time.Hour
	DefaultMinSellingFast  = 1
	DefaultMinSoldOut      = 3

	DefaultMetricsPort = 9090
	DefaultMetricsPath = "/metrics"
)

func (c *AggregatorConfig) applyDefaults() {
	// Instance defaults
	if c.Instance.City == "" {
		c.Instance.City = DefaultCity
	}
	if c.Instance.Currency == "" {
		c.Instance.Currency = DefaultCurrency
	}

	// Database defaults
	if c.Database.Port == 0 {
		c.Database.Port = DefaultDBPort
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = DefaultDBSSLMode
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = DefaultMaxConns
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = DefaultMinConns
	}

	// Fetch defaults
	if c.Fetch.Interval == 0 {
		c.Fetch.Interval = DefaultFetchInterval
	}
	if c.Fetch.Concurrency == 0 {
		c.Fetch.Concurrency = DefaultFetchConcurrency
	}
	if c.Fetch.SourceTimeout == 0 {
		c.Fetch.SourceTimeout = DefaultSourceTimeout
	}
	if c.Fetch.WindowDays == 0 {
		c.Fetch.WindowDays = DefaultWindowDays
	}

	// Source defaults
	applySourceDefaults(&c.Sources.Ticketmaster, DefaultTicketmasterURL)
	applySourceDefaults(&c.Sources.Eventbrite, DefaultEventbriteURL)
	applySourceDefaults(&c.Sources.SeatGeek, DefaultSeatGeekURL)

	// Dedup defaults
	if c.Dedup.TitleThreshold == 0 {
		c.Dedup.TitleThreshold = DefaultTitleThreshold
	}
	if c.Dedup.VenueThreshold == 0 {
		c.Dedup.VenueThreshold = DefaultVenueThreshold
	}

	// Sellout defaults
	if c.Sellout.SellingFastPercent == 0 {
		c.Sellout.SellingFastPercent = DefaultSellingFastPercent
	}
	if c.Sellout.SellingFastRemaining == 0 {
		c.Sellout.SellingFastRemaining = DefaultSellingFastRemaining
	}

	// Monitor defaults
	if c.Monitor.Interval == 0 {
		c.Monitor.Interval = DefaultMonitorInterval
	}
	if c.Monitor.Lookback == 0 {
		c.Monitor.Lookback = DefaultMonitorLookback
	}
	if c.Monitor.MinSellingFast == 0 {
		c.Monitor.MinSellingFast = DefaultMinSellingFast
	}
	if c.Monitor.MinSoldOut == 0 {
		c.Monitor.MinSoldOut = DefaultMinSoldOut
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

func applySourceDefaults(s *APISourceConfig, baseURL string) {
	if s.BaseURL == "" {
		s.BaseURL = baseURL
	}
	if s.RateLimit == 0 {
		s.RateLimit = DefaultSourceRateLimit
	}
	if s.PageSize == 0 {
		s.PageSize = DefaultSourcePageSize
	}
}
