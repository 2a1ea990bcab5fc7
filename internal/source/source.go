package source

import (
	"context"
	"fmt"
	"time"

	"github.com/mhollis/stagewatch/internal/model"
)

// Source is one upstream provider of event listings.
type Source interface {
	// Name returns the stable identifier used in provenance pairs,
	// health rows, and logs. Unique across the registry.
	Name() string

	// Type reports how the provider is accessed.
	Type() model.SourceType

	// Enabled reports whether the provider has credentials configured.
	// Disabled sources are registered but never fetched.
	Enabled() bool

	// FetchEvents returns every listing starting inside [start, end].
	// Partial results with an error mean the fetch broke mid-way; the
	// caller decides whether to keep them.
	FetchEvents(ctx context.Context, start, end time.Time) ([]model.NormalizedEvent, error)
}

// Failure wraps an adapter error with the source that produced it, so
// one provider's outage stays attributable after fan-in.
type Failure struct {
	Source string
	Err    error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("source %s: %v", f.Source, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Registry holds the statically-constructed set of sources. There is
// no discovery mechanism: adding a provider means adding it to the
// registry at startup.
type Registry struct {
	sources []Source
	byName  map[string]Source
}

// NewRegistry builds a registry from the given sources, preserving
// order. Duplicate names are a programming error and panic.
func NewRegistry(sources ...Source) *Registry {
	r := &Registry{
		sources: sources,
		byName:  make(map[string]Source, len(sources)),
	}
	for _, s := range sources {
		if _, dup := r.byName[s.Name()]; dup {
			panic("duplicate source name: " + s.Name())
		}
		r.byName[s.Name()] = s
	}
	return r
}

// All returns every registered source in registration order.
func (r *Registry) All() []Source {
	return r.sources
}

// Enabled returns the sources with credentials configured, in
// registration order.
func (r *Registry) Enabled() []Source {
	var out []Source
	for _, s := range r.sources {
		if s.Enabled() {
			out = append(out, s)
		}
	}
	return out
}

// ByName returns the named source, or nil if unknown.
func (r *Registry) ByName(name string) Source {
	return r.byName[name]
}
