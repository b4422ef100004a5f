package correlator

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/fluxgate/correlator/internal/dispatcher"
	"github.com/fluxgate/correlator/internal/model"
)

// handleSuppressed implements the suppressed-status branch: an
// administrator's supp_to_new override returns the event to new status; a
// manual resolve request moves straight to resolving; a parent event that
// has since linked to this one moves to resolving(supp); otherwise the
// shared ITSM activity runs (to keep the parent's ticket comment current)
// and the event retries.
func (s *Service) handleSuppressed(ctx context.Context, tx *sqlx.Tx, rec *model.EventRecord) (dispatcher.FollowOn, error) {
	doc, err := s.document(ctx, rec)
	if err != nil {
		return dispatcher.FollowOn{}, err
	}
	if doc == nil {
		return dispatcher.FollowOn{}, nil
	}

	if suppToNew, _ := doc.Src[fieldSuppToNew].(bool); suppToNew {
		rec.Status = model.StatusNew
		delete(rec.Extras, string(model.ExtrasTicketID))
		if err := s.docs.Update(ctx, rec.DocIndex, rec.DocID, map[string]any{
			fieldSuppToNew:      false,
			fieldParentEventID:  nil,
			fieldParentEventIdx: nil,
		}); err != nil {
			return dispatcher.FollowOn{}, err
		}
		return dispatcher.FollowOn{TaskName: TaskNew, Countdown: countdownShort}, nil
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
		rec.Extras[fieldResolvingAction] = string(model.ResolvingActionSupp)
		return dispatcher.FollowOn{TaskName: TaskResolving, Countdown: countdownLong}, nil
	}

	if err := s.itsmActivity(ctx, rec); err != nil {
		s.log.WithError(err).WithFields(map[string]interface{}{"record_id": rec.ID}).Warn("itsm activity failed, will retry")
	}

	countdown := countdownShort
	if _, ok := doc.Src[string(model.ExtrasAssetDownComment)]; ok {
		countdown = countdownLong
	}
	return dispatcher.FollowOn{TaskName: TaskSuppressed, Countdown: countdown}, nil
}
