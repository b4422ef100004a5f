package correlator

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/fluxgate/correlator/internal/dispatcher"
	"github.com/fluxgate/correlator/internal/model"
)

// handleNewUp implements process_new_up_event: look for the active DOWN
// events this UP event resolves; if none exist yet, retry once and then
// escalate to error on the second pass. This two-pass escalation is a
// preserved, deliberate behavior: see DESIGN.md.
func (s *Service) handleNewUp(ctx context.Context, tx *sqlx.Tx, rec *model.EventRecord) (dispatcher.FollowOn, error) {
	matches, err := s.findActiveDownMatches(ctx, rec)
	if err != nil {
		return dispatcher.FollowOn{}, err
	}

	if len(matches) > 0 {
		if err := s.linkMatches(ctx, rec, matches); err != nil {
			return dispatcher.FollowOn{}, err
		}
		rec.Status = model.StatusResolved
		return dispatcher.FollowOn{Skip: true}, nil
	}

	if rec.RetryCount == 0 {
		rec.RetryCount++
		return dispatcher.FollowOn{TaskName: TaskNew, Countdown: countdownShort}, nil
	}

	if err := s.errs.Report(ctx, tx, rec.ID, rec.Status, "Missing Down Event", false); err != nil {
		return dispatcher.FollowOn{}, err
	}
	rec.Status = model.StatusError
	return dispatcher.FollowOn{Skip: true}, nil
}

// handleNewDown implements process_new_down_event: already-linked check,
// dedup, parent/child suppression, then the wait-time gate before ticket
// creation.
func (s *Service) handleNewDown(ctx context.Context, tx *sqlx.Tx, rec *model.EventRecord) (dispatcher.FollowOn, error) {
	doc, err := s.document(ctx, rec)
	if err != nil {
		return dispatcher.FollowOn{}, err
	}
	if doc != nil {
		if linked, ok := doc.Src[fieldLinkedEvent]; ok && linked != nil {
			rec.Status = model.StatusResolving
			rec.Extras[fieldResolvingAction] = string(model.ResolvingActionNew)
			return dispatcher.FollowOn{TaskName: TaskResolving, Countdown: countdownLong}, nil
		}
	}

	if rec.RetryCount < 3 {
		dup, err := s.findDuplicateActiveDown(ctx, rec)
		if err != nil {
			return dispatcher.FollowOn{}, err
		}
		if dup {
			rec.Status = model.StatusDeduped
			return dispatcher.FollowOn{Skip: true}, nil
		}
	}

	toolID, err := s.resolveToolID(ctx, rec)
	if err != nil {
		return dispatcher.FollowOn{}, err
	}
	rule, err := s.rules.CorrelationRule(ctx, toolID, rec.Title)
	if err != nil {
		return dispatcher.FollowOn{}, err
	}

	if rule.ParentChildLookupRequired {
		ticketID, found, parentIndex, parentID, err := s.findParentActiveTicket(ctx, rec)
		if err != nil {
			return dispatcher.FollowOn{}, err
		}
		if found {
			rec.Status = model.StatusSuppressed
			patch := map[string]any{
				fieldParentEventID:  parentID,
				fieldParentEventIdx: parentIndex,
			}
			if ticketID != 0 {
				rec.Extras[string(model.ExtrasTicketID)] = ticketID
				patch[string(model.ExtrasTicketID)] = ticketID
			}
			if err := s.docs.Update(ctx, rec.DocIndex, rec.DocID, patch); err != nil {
				return dispatcher.FollowOn{}, err
			}
			return dispatcher.FollowOn{TaskName: TaskSuppressed, Countdown: countdownShort}, nil
		}
	}

	elapsed := time.Since(rec.EventTS)
	wait := time.Duration(rule.WaitTimeInSeconds) * time.Second
	if elapsed >= wait {
		rec.Status = model.StatusCreatingTicket
		if rule.DoNotCreateTicketFlag {
			rec.Extras[string(model.ExtrasTicketID)] = model.NoTicketSentinel
		}
		return dispatcher.FollowOn{TaskName: TaskCreatingTicket, Countdown: countdownShort}, nil
	}

	rec.RetryCount++
	return dispatcher.FollowOn{TaskName: TaskNew, Countdown: wait - elapsed}, nil
}
