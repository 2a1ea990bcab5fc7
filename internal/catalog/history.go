package catalog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mhollis/stagewatch/internal/model"
)

// RecordTransition appends one availability change to the history log
// inside the caller's transaction. The previous and new statuses must
// differ: an equal pair is a caller bug, not a row to silently skip,
// so it is rejected before anything is written.
func RecordTransition(ctx context.Context, tx pgx.Tx, rec model.AvailabilityTransition) error {
	if rec.PreviousStatus == rec.NewStatus {
		return fmt.Errorf("transition for event %s repeats status %q", rec.EventID, rec.NewStatus)
	}

	_, err := tx.Exec(ctx, `
		INSERT INTO availability_history
			(event_id, previous_status, new_status, tickets_available, availability_percent, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, rec.EventID.String(), string(rec.PreviousStatus), string(rec.NewStatus),
		rec.TicketsAvailable, rec.AvailabilityPercent, rec.RecordedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert transition: %w", err)
	}
	return nil
}
