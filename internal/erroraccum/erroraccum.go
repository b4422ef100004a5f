// Package erroraccum implements the per-(event,status,message) dedup retry
// log: repeated identical failures against the same record escalate to a
// fatal, non-retryable error once they exceed a threshold.
package erroraccum

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/fluxgate/correlator/internal/model"
)

// MaxRepeatCount is the threshold after which Report escalates to fatal.
const MaxRepeatCount = 10

// ErrThresholdExceeded is returned once an identical (record, status,
// message) failure has repeated more than MaxRepeatCount times.
var ErrThresholdExceeded = errors.New("erroraccum: repeat threshold exceeded")

// Accumulator records and deduplicates retryable failures.
type Accumulator struct {
	db *sqlx.DB
}

// New constructs an Accumulator.
func New(db *sqlx.DB) *Accumulator {
	return &Accumulator{db: db}
}

// Report upserts an error-log row keyed on (eventRecordID, status, desc),
// incrementing its repeat_count. If checkRepeatCount is true and the count
// now exceeds MaxRepeatCount, it returns ErrThresholdExceeded so the caller
// can mark the record as permanently failed instead of retrying again.
func (a *Accumulator) Report(ctx context.Context, tx *sqlx.Tx, eventRecordID int64, status model.EventStatus, desc string, checkRepeatCount bool) error {
	var repeatCount int
	err := tx.GetContext(ctx, &repeatCount, `
		INSERT INTO error_logs (event_record_id, event_status, error_desc, repeat_count, created_at, updated_at)
		VALUES ($1, $2, $3, 1, now(), now())
		ON CONFLICT (event_record_id, event_status, error_desc) DO UPDATE
		SET repeat_count = error_logs.repeat_count + 1, updated_at = now()
		RETURNING repeat_count
	`, eventRecordID, string(status), desc)
	if err != nil {
		return fmt.Errorf("report error: %w", err)
	}

	if checkRepeatCount && repeatCount > MaxRepeatCount {
		return fmt.Errorf("%w: record %d status %s (%d repeats): %s", ErrThresholdExceeded, eventRecordID, status, repeatCount, desc)
	}
	return nil
}
