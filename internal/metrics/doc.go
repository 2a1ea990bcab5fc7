// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Source fetch attempts, outcomes, and event counts
//   - Validation drops per source
//   - Deduplication group counts
//   - Catalog creates, updates, and availability transitions
//   - Sellout alert counts and cycle durations
package metrics
