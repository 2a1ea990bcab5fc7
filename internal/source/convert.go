package source

import (
	"strings"
	"time"

	"github.com/mhollis/stagewatch/internal/model"
)

// parseEventTime handles the timestamp shapes providers emit: RFC 3339,
// naive datetime, and bare date. Naive values are taken as UTC.
// Returns the zero time for anything else.
func parseEventTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// joinAddress assembles an address line from the parts a provider
// supplies, skipping the ones it left empty.
func joinAddress(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ", ")
}

// mapCategories canonicalizes raw hints through the provider's own
// vocabulary first, then the shared alias table. Order-preserving,
// deduplicated, empties dropped.
func mapCategories(vocab map[string]string, hints ...string) []string {
	var out []string
	seen := make(map[string]struct{}, len(hints))
	for _, hint := range hints {
		c := strings.ToLower(strings.TrimSpace(hint))
		if c == "" {
			continue
		}
		if mapped, ok := vocab[c]; ok {
			c = mapped
		} else {
			c = model.CanonicalCategory(c)
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
