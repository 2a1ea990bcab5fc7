package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *AggregatorConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if err := c.Database.validate("database"); err != nil {
		return err
	}

	if c.Fetch.Concurrency < 1 {
		return errors.New("fetch.concurrency must be >= 1")
	}
	if c.Fetch.SourceTimeout <= 0 {
		return errors.New("fetch.source_timeout must be > 0")
	}
	if c.Fetch.WindowDays < 1 {
		return errors.New("fetch.window_days must be >= 1")
	}

	if err := c.Sources.Ticketmaster.validate("sources.ticketmaster"); err != nil {
		return err
	}
	if err := c.Sources.Eventbrite.validate("sources.eventbrite"); err != nil {
		return err
	}
	if err := c.Sources.SeatGeek.validate("sources.seatgeek"); err != nil {
		return err
	}

	if c.Dedup.TitleThreshold <= 0 || c.Dedup.TitleThreshold > 1 {
		return fmt.Errorf("dedup.title_threshold must be in (0, 1], got %v", c.Dedup.TitleThreshold)
	}
	if c.Dedup.VenueThreshold <= 0 || c.Dedup.VenueThreshold > 1 {
		return fmt.Errorf("dedup.venue_threshold must be in (0, 1], got %v", c.Dedup.VenueThreshold)
	}

	if c.Sellout.SellingFastPercent <= 0 || c.Sellout.SellingFastPercent >= 100 {
		return fmt.Errorf("sellout.selling_fast_percent must be in (0, 100), got %v", c.Sellout.SellingFastPercent)
	}
	if c.Sellout.SellingFastRemaining < 0 {
		return errors.New("sellout.selling_fast_remaining must be >= 0")
	}

	if c.Monitor.Lookback <= 0 {
		return errors.New("monitor.lookback must be > 0")
	}
	if c.Monitor.MinSellingFast < 1 {
		return errors.New("monitor.min_selling_fast must be >= 1")
	}
	if c.Monitor.MinSoldOut < 1 {
		return errors.New("monitor.min_sold_out must be >= 1")
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}

// validate checks source settings. Credentials are optional; a source
// without one is simply disabled.
func (s *APISourceConfig) validate(prefix string) error {
	if s.BaseURL == "" {
		return fmt.Errorf("%s.base_url is required", prefix)
	}
	if s.RateLimit <= 0 {
		return fmt.Errorf("%s.rate_limit must be > 0", prefix)
	}
	if s.PageSize < 1 {
		return fmt.Errorf("%s.page_size must be >= 1", prefix)
	}
	return nil
}
