// Package database provides connection pool management for the catalog
// PostgreSQL database.
//
// The schema is embedded and applied at startup (EnsureSchema), so a fresh
// database bootstraps itself:
//   - catalog_events, event_sources: canonical events and their provenance
//   - availability_history: append-only status transitions
//   - source_health: per-source operational records
//   - categories: reference category set
package database
