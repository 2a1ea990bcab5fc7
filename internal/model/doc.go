// Package model defines shared data types used across the stagewatch pipeline.
//
// Conventions:
//   - Timestamps: time.Time in UTC; the zero time means "not reported"
//   - Prices: float64 in the source's currency (Currency field, ISO 4217)
//   - Optional counts: *int / *float64, nil means "not reported by the source"
//   - IDs: uuid.UUID for catalog events, source-scoped strings for provenance
package model
