package aggregate

import "time"

// SourceOutcome is one source's result within a cycle.
type SourceOutcome struct {
	Source   string
	Events   int // Events surviving validation
	Dropped  int // Events rejected by validation
	Err      error
	Duration time.Duration
}

// PersistFailure records one merged event the catalog rejected. The rest of
// the cycle proceeds without it.
type PersistFailure struct {
	Title string
	Err   error
}

// CycleReport summarizes one fetch cycle. It is always produced, including
// on partial failure.
type CycleReport struct {
	Sources     []SourceOutcome
	Fetched     int // Valid events across all sources
	Dropped     int // Validation drops across all sources
	Groups      int // Canonical groups after deduplication
	Created     int // Catalog events inserted
	Updated     int // Catalog events refreshed in place
	Transitions int // Availability transitions recorded
	Failures    []PersistFailure
	Duration    time.Duration
}

// Failed reports whether any source failed during the cycle.
func (r *CycleReport) Failed() bool {
	for _, s := range r.Sources {
		if s.Err != nil {
			return true
		}
	}
	return false
}
