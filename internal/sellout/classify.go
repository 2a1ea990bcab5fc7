package sellout

import (
	"strings"

	"github.com/mhollis/stagewatch/internal/model"
)

// Raw-status lexicons. Matching is case-insensitive and tolerant of space,
// hyphen, and underscore variants; foldStatus collapses those before lookup.
var (
	cancelledTerms = map[string]struct{}{
		"cancelled": {},
		"canceled":  {},
	}
	soldOutTerms = map[string]struct{}{
		"soldout": {},
	}
)

// Detector classifies ticket signals into availability statuses. It holds
// thresholds only; classification is stateless.
type Detector struct {
	sellingFastPercent   float64
	sellingFastRemaining int
}

// NewDetector builds a Detector. An event with a count signal classifies as
// selling fast when its remaining percentage is below sellingFastPercent or
// its remaining count is below sellingFastRemaining. Both comparisons are
// strict.
func NewDetector(sellingFastPercent float64, sellingFastRemaining int) *Detector {
	return &Detector{
		sellingFastPercent:   sellingFastPercent,
		sellingFastRemaining: sellingFastRemaining,
	}
}

// Classify maps a signal to a status. Rules apply in priority order:
// cancelled lexicon, sold-out lexicon, zero remaining, selling-fast
// thresholds, any other signal means on sale, no signal means upcoming.
func (d *Detector) Classify(sig model.TicketSignal) model.AvailabilityStatus {
	folded := foldStatus(sig.RawStatus)

	if _, ok := cancelledTerms[folded]; ok {
		return model.StatusCancelled
	}
	if _, ok := soldOutTerms[folded]; ok {
		return model.StatusSoldOut
	}
	if sig.Remaining != nil && *sig.Remaining == 0 {
		return model.StatusSoldOut
	}
	if pct, ok := sig.Percent(); ok && pct < d.sellingFastPercent {
		return model.StatusSellingFast
	}
	if sig.Remaining != nil && *sig.Remaining < d.sellingFastRemaining {
		return model.StatusSellingFast
	}
	if sig.Present() {
		return model.StatusOnSale
	}
	return model.StatusUpcoming
}

var statusFolder = strings.NewReplacer(" ", "", "-", "", "_", "")

func foldStatus(raw string) string {
	return statusFolder.Replace(strings.ToLower(strings.TrimSpace(raw)))
}
