package correlator

import (
	"context"
	"fmt"
	"time"

	"github.com/fluxgate/correlator/internal/model"
)

// ManualResolve handles an inbound "resolve by ticket" webhook request. It
// intentionally never takes the EventRecord row lock: the only way to
// communicate with an event whose relational row we are not locking is to
// write directly to its document, exactly as the resolve_event task in the
// system this was distilled from does, with the same comment: since we are
// not locking the row, we cannot update the EventRecord directly. This is a
// deliberate race with whatever Alerted-status dispatch pass is concurrently
// running against the same record. handleAlerted checks the manual flag
// before a linked up event, so the next pass that sees the flag moves the
// record to resolving(manual); a pass that already moved the record to
// resolving(close_ticket) before the flag landed is not undone, and the flag
// is then ignored. See DESIGN.md.
func (s *Service) ManualResolve(ctx context.Context, ticketID int) error {
	rec, err := s.records.FindAlertedByTicket(ctx, ticketID)
	if err != nil {
		return fmt.Errorf("manual resolve: locate record for ticket %d: %w", ticketID, err)
	}

	return s.docs.Update(ctx, rec.DocIndex, rec.DocID, map[string]any{
		"manual_resolve":     true,
		fieldResolvingAction: string(model.ResolvingActionManual),
		"manual_resolve_ts":  time.Now().UTC().Format(time.RFC3339),
	})
}
