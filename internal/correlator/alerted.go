package correlator

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/fluxgate/correlator/internal/dispatcher"
	"github.com/fluxgate/correlator/internal/model"
)

// handleAlerted implements the alerted-status branch: a manual resolve
// request moves to resolving(manual); a linked up event moves to
// resolving(close_ticket); otherwise the event just waits for either.
func (s *Service) handleAlerted(ctx context.Context, tx *sqlx.Tx, rec *model.EventRecord) (dispatcher.FollowOn, error) {
	doc, err := s.document(ctx, rec)
	if err != nil {
		return dispatcher.FollowOn{}, err
	}
	if doc == nil {
		return dispatcher.FollowOn{}, nil
	}

	manualResolve, _ := doc.Src["manual_resolve"].(bool)
	if action, _ := doc.Src[fieldResolvingAction].(string); action == string(model.ResolvingActionManual) {
		manualResolve = true
	}
	if manualResolve {
		rec.Status = model.StatusResolving
		rec.Extras[fieldResolvingAction] = string(model.ResolvingActionManual)
		if ts, ok := doc.Src[fieldManualResolveTS].(string); ok {
			rec.Extras[fieldManualResolveTS] = ts
		}
		return dispatcher.FollowOn{TaskName: TaskResolving, Countdown: countdownLong}, nil
	}

	if linked, ok := doc.Src[fieldLinkedEvent]; ok && linked != nil {
		rec.Status = model.StatusResolving
		rec.Extras[fieldResolvingAction] = string(model.ResolvingActionCloseTicket)
		return dispatcher.FollowOn{TaskName: TaskResolving, Countdown: countdownLong}, nil
	}

	return dispatcher.FollowOn{TaskName: TaskAlerted, Countdown: countdownLong}, nil
}
