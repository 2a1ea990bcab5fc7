package config

import "time"

// AggregatorConfig is the root configuration for an aggregator instance.
type AggregatorConfig struct {
	Instance InstanceConfig `yaml:"instance"`
	Database DBConfig       `yaml:"database"`
	Fetch    FetchConfig    `yaml:"fetch"`
	Sources  SourcesConfig  `yaml:"sources"`
	Dedup    DedupConfig    `yaml:"dedup"`
	Sellout  SelloutConfig  `yaml:"sellout"`
	Monitor  MonitorConfig  `yaml:"monitor"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// InstanceConfig identifies this aggregator and the market it covers.
type InstanceConfig struct {
	ID       string `yaml:"id"`
	City     string `yaml:"city"`     // Geographic focus passed to sources that filter by city
	Currency string `yaml:"currency"` // Default currency assumed when a source omits one
}

// DBConfig holds the catalog database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// FetchConfig holds fetch-cycle settings.
type FetchConfig struct {
	Interval      time.Duration `yaml:"interval"`       // Daemon-mode cycle period
	Concurrency   int           `yaml:"concurrency"`    // Max sources fetched in parallel
	SourceTimeout time.Duration `yaml:"source_timeout"` // Per-source fetch deadline
	WindowDays    int           `yaml:"window_days"`    // How far ahead each cycle looks
}

// SourcesConfig holds per-source settings. A source is enabled when its
// credential is present.
type SourcesConfig struct {
	Ticketmaster APISourceConfig `yaml:"ticketmaster"`
	Eventbrite   APISourceConfig `yaml:"eventbrite"`
	SeatGeek     APISourceConfig `yaml:"seatgeek"`
}

// APISourceConfig holds settings shared by API-backed sources. APIKey is the
// source's credential: Ticketmaster API key, Eventbrite OAuth token, or
// SeatGeek client id.
type APISourceConfig struct {
	BaseURL   string  `yaml:"base_url"`
	APIKey    string  `yaml:"api_key"`
	RateLimit float64 `yaml:"rate_limit"` // Requests per second
	PageSize  int     `yaml:"page_size"`  // Results requested per page
}

// Enabled reports whether the source has a credential configured.
func (s APISourceConfig) Enabled() bool {
	return s.APIKey != ""
}

// DedupConfig holds fuzzy-matching thresholds. Two records merge when both
// similarities meet their thresholds and the events fall on the same date.
type DedupConfig struct {
	TitleThreshold float64 `yaml:"title_threshold"`
	VenueThreshold float64 `yaml:"venue_threshold"`
}

// SelloutConfig holds classification thresholds. An event with a count
// signal is selling fast when remaining percentage is below
// SellingFastPercent or remaining count is below SellingFastRemaining.
type SelloutConfig struct {
	SellingFastPercent   float64 `yaml:"selling_fast_percent"`
	SellingFastRemaining int     `yaml:"selling_fast_remaining"`
}

// MonitorConfig holds alert-scan settings.
type MonitorConfig struct {
	Interval       time.Duration `yaml:"interval"`         // Daemon-mode scan period
	Lookback       time.Duration `yaml:"lookback"`         // Transition window examined per scan
	MinSellingFast int           `yaml:"min_selling_fast"` // Alert when this many events newly selling fast
	MinSoldOut     int           `yaml:"min_sold_out"`     // Alert when this many events newly sold out
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}
