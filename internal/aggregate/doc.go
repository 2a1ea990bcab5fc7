// Package aggregate orchestrates fetch cycles: fan-out to the enabled
// sources, validation, deduplication, availability classification, and the
// catalog upsert path.
//
// A cycle never aborts on a partial failure. A failed source contributes
// zero events, a record failing validation is dropped and counted, and a
// persistence error on one event is recorded without touching the others.
// Every cycle produces a CycleReport regardless of outcome.
package aggregate
