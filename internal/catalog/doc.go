// Package catalog persists canonical events and everything derived from
// them: provenance pairs in event_sources, the append-only
// availability_history log, and per-source health counters.
//
// Writes are scoped per event. ApplyEvent wraps one event's
// create-or-update, its provenance growth, and its history append in a
// single transaction, so a failure while persisting one event never
// touches the others in the same cycle.
package catalog
