package correlator

import (
	"context"
	"fmt"
	"time"

	"github.com/fluxgate/correlator/internal/eventstore"
	"github.com/fluxgate/correlator/internal/model"
	"github.com/fluxgate/correlator/internal/ticketclient"
)

// itsmActivity is the shared ITSM propagation step run from several
// statuses: it ensures the ticket ID is present (inheriting from the parent
// when suppressed), writes it back to the document if missing, and posts at
// most one down comment and one up comment per event, matching
// itsm_activity's exactly-once comment bookkeeping in the system this was
// distilled from.
func (s *Service) itsmActivity(ctx context.Context, rec *model.EventRecord) error {
	ticketID, hasTicket := rec.TicketID()
	if !hasTicket {
		parentTicket, found, _, _, err := s.findParentActiveTicket(ctx, rec)
		if err != nil {
			return err
		}
		if !found {
			return nil
		}
		ticketID = parentTicket
		rec.Extras[string(model.ExtrasTicketID)] = ticketID
		if err := s.docs.Update(ctx, rec.DocIndex, rec.DocID, map[string]any{string(model.ExtrasTicketID): ticketID}); err != nil {
			return err
		}
	}

	if ticketID == model.NoTicketSentinel {
		return s.markCommentsDone(ctx, rec)
	}

	comment := s.composeComment(rec)
	if comment == "" {
		return nil
	}

	tok, err := s.tickets.OpenSession(ctx)
	if err != nil {
		return err
	}
	defer s.tickets.CloseSession(ctx, tok)

	if err := s.tickets.Comment(ctx, tok, ticketclient.TicketID(ticketID), comment); err != nil {
		return err
	}
	return s.markCommentsDone(ctx, rec)
}

// markCommentsDone flips the down (and, while resolving, up) comment flags
// on both rec's in-memory Extras and its document, so a retried Suppressed
// or Resolving pass never re-adds a comment already posted.
func (s *Service) markCommentsDone(ctx context.Context, rec *model.EventRecord) error {
	rec.Extras[string(model.ExtrasAssetDownComment)] = true
	patch := map[string]any{string(model.ExtrasAssetDownComment): true}
	if rec.Status == model.StatusResolving {
		rec.Extras[string(model.ExtrasAssetUpComment)] = true
		patch[string(model.ExtrasAssetUpComment)] = true
	}
	return s.docs.Update(ctx, rec.DocIndex, rec.DocID, patch)
}

// composeComment builds the ticket comment text due for rec's current pass,
// or "" if nothing is due. It reproduces itsm_activity's phrasing: a plain
// down notice, that notice appended with a resolved suffix, a standalone
// child-resolved notice, or (when resolving_action is close_ticket) the
// topmost asset's own resolved notice.
func (s *Service) composeComment(rec *model.EventRecord) string {
	asset := rec.AssetUniqueID
	downPosted, _ := rec.Extras[string(model.ExtrasAssetDownComment)].(bool)

	var comment string
	if !downPosted {
		comment = fmt.Sprintf("Child Asset `%s` has reported similar issue at %s.", asset, rec.EventTS.UTC().Format(time.RFC3339))
	}

	if rec.Status == model.StatusResolving {
		upPosted, _ := rec.Extras[string(model.ExtrasAssetUpComment)].(bool)
		if !upPosted {
			action := model.ResolvingAction(stringOr(rec.Extras[fieldResolvingAction], string(model.ResolvingActionCloseTicket)))
			switch {
			case action == model.ResolvingActionCloseTicket:
				comment = fmt.Sprintf("Asset `%s` which reported this issue is now Resolved.", asset)
			case !downPosted:
				comment += " but it is now Resolved."
			default:
				comment = fmt.Sprintf("Child Asset `%s` which had reported similar issue is now Resolved.", asset)
			}
		}
	}
	return comment
}

// findImmediateChildren returns the down events still suppressed or
// resolving under rec as their parent, matching the query shared by
// all_immediate_child_events_are_resolved, ..._resolved_manually, and
// ..._active_child_events_are_set_as_new: event_type=down and
// parent_event_id equal to rec's own document id.
func (s *Service) findImmediateChildren(ctx context.Context, rec *model.EventRecord) ([]eventstore.Document, error) {
	res, err := s.docs.Search(ctx, eventstore.Query{
		Index: rec.DocIndex,
		Must: []eventstore.Clause{
			{Field: fieldEventType, Op: eventstore.OpTerm, Value: string(model.EventTypeDown)},
			{Field: fieldParentEventID, Op: eventstore.OpTerm, Value: rec.DocID},
			{Field: fieldStatus, Op: eventstore.OpTerms, Values: []any{string(model.StatusSuppressed), string(model.StatusResolving)}},
		},
		Size:     1000,
		Response: eventstore.ResponseList,
	})
	if err != nil {
		return nil, err
	}
	return res.Hits, nil
}

// allImmediateChildrenResolved reports whether no immediate child of rec is
// still suppressed or resolving. Used by Resolving (Supp/CloseTicket).
func (s *Service) allImmediateChildrenResolved(ctx context.Context, rec *model.EventRecord) (bool, error) {
	children, err := s.findImmediateChildren(ctx, rec)
	if err != nil {
		return false, err
	}
	return len(children) == 0, nil
}

// allImmediateChildrenResolvedManually forces every still-active immediate
// child of rec onto the manual resolve path (resolving_action=manual,
// manual_resolve_ts propagated), matching
// all_immediate_child_events_are_resolved_manually. It reports true unless a
// child write itself fails, trusting each child's own next scheduled pass to
// complete its transition.
func (s *Service) allImmediateChildrenResolvedManually(ctx context.Context, rec *model.EventRecord, manualResolveTS string) (bool, error) {
	children, err := s.findImmediateChildren(ctx, rec)
	if err != nil {
		return false, err
	}
	ok := true
	for _, c := range children {
		if action, _ := c.Src[fieldResolvingAction].(string); action == string(model.ResolvingActionManual) {
			continue
		}
		patch := map[string]any{
			fieldResolvingAction: string(model.ResolvingActionManual),
			fieldManualResolveTS: manualResolveTS,
		}
		if err := s.docs.Update(ctx, c.Index, c.ID, patch); err != nil {
			ok = false
		}
	}
	return ok, nil
}

// allImmediateActiveChildrenSetAsNew un-suppresses every immediate
// suppressed child of rec (supp_to_new=true) and resets every immediate
// resolving child's resolving_action to new, matching
// all_immediate_active_child_events_are_set_as_new. It reports true unless a
// child write itself fails.
func (s *Service) allImmediateActiveChildrenSetAsNew(ctx context.Context, rec *model.EventRecord) (bool, error) {
	children, err := s.findImmediateChildren(ctx, rec)
	if err != nil {
		return false, err
	}
	ok := true
	for _, c := range children {
		status, _ := c.Src[fieldStatus].(string)
		var patch map[string]any
		switch model.EventStatus(status) {
		case model.StatusSuppressed:
			patch = map[string]any{fieldSuppToNew: true}
		case model.StatusResolving:
			patch = map[string]any{fieldResolvingAction: string(model.ResolvingActionNew)}
		default:
			continue
		}
		if err := s.docs.Update(ctx, c.Index, c.ID, patch); err != nil {
			ok = false
		}
	}
	return ok, nil
}
