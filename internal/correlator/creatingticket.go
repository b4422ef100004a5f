package correlator

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/fluxgate/correlator/internal/dispatcher"
	"github.com/fluxgate/correlator/internal/model"
	"github.com/fluxgate/correlator/internal/ticketclient"
)

// defaultNA renders a template string using values from src, substituting
// "N/A" for any referenced field that is absent, matching the DefaultNA
// dict helper in the system this was distilled from.
func defaultNA(template string, src map[string]any) string {
	out := template
	for strings.Contains(out, "{") {
		start := strings.Index(out, "{")
		end := strings.Index(out[start:], "}")
		if end == -1 {
			break
		}
		end += start
		key := out[start+1 : end]
		val, ok := src[key]
		rendered := "N/A"
		if ok && val != nil {
			rendered = toString(val)
		}
		out = out[:start] + rendered + out[end+1:]
	}
	return out
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

// handleCreatingTicket implements create_ticket: a since-linked event moves
// straight to resolving(new); a ticket already assigned (including the
// do-not-create sentinel) skips straight to alerted; otherwise a real
// ticket is opened using the rule's templated title/description.
func (s *Service) handleCreatingTicket(ctx context.Context, tx *sqlx.Tx, rec *model.EventRecord) (dispatcher.FollowOn, error) {
	doc, err := s.document(ctx, rec)
	if err != nil {
		return dispatcher.FollowOn{}, err
	}
	if doc == nil {
		return dispatcher.FollowOn{}, nil
	}

	if linked, ok := doc.Src[fieldLinkedEvent]; ok && linked != nil {
		rec.Status = model.StatusResolving
		rec.Extras[fieldResolvingAction] = string(model.ResolvingActionNew)
		return dispatcher.FollowOn{TaskName: TaskResolving, Countdown: countdownLong}, nil
	}

	if _, hasTicket := rec.TicketID(); hasTicket {
		rec.Status = model.StatusAlerted
		return dispatcher.FollowOn{TaskName: TaskAlerted, Countdown: countdownLong}, nil
	}

	toolID, err := s.resolveToolID(ctx, rec)
	if err != nil {
		return dispatcher.FollowOn{}, err
	}
	rule, err := s.rules.CorrelationRule(ctx, toolID, rec.Title)
	if err != nil {
		return dispatcher.FollowOn{}, err
	}
	settings := rule.ItsmSettingsForLevel(rec.Level)

	if settings.DoNotCreateTicket {
		rec.Extras[string(model.ExtrasTicketID)] = model.NoTicketSentinel
		rec.Extras[string(model.ExtrasAssetDownComment)] = true
		if err := s.docs.Update(ctx, rec.DocIndex, rec.DocID, map[string]any{
			string(model.ExtrasAssetDownComment): true,
		}); err != nil {
			return dispatcher.FollowOn{}, err
		}
		rec.Status = model.StatusAlerted
		return dispatcher.FollowOn{TaskName: TaskAlerted, Countdown: countdownLong}, nil
	}

	title := defaultNA(settings.Title, doc.Src)
	desc := defaultNA(settings.Desc, doc.Src)

	tok, err := s.tickets.OpenSession(ctx)
	if err != nil {
		return dispatcher.FollowOn{}, err
	}
	defer s.tickets.CloseSession(ctx, tok)

	ticketID, err := s.tickets.Create(ctx, tok, ticketclient.CreateTicketRequest{
		Title:               title,
		Description:         desc,
		Severity:             settings.Severity,
		AssignmentGroupUID:  settings.AssignmentGroupUID,
	})
	if err != nil {
		return dispatcher.FollowOn{}, err
	}

	rec.Extras[string(model.ExtrasTicketID)] = int(ticketID)
	rec.Extras[string(model.ExtrasAssetDownComment)] = true
	if err := s.docs.Update(ctx, rec.DocIndex, rec.DocID, map[string]any{
		string(model.ExtrasTicketID):         int(ticketID),
		string(model.ExtrasAssetDownComment): true,
	}); err != nil {
		return dispatcher.FollowOn{}, err
	}
	rec.Status = model.StatusAlerted
	return dispatcher.FollowOn{TaskName: TaskAlerted, Countdown: countdownLong}, nil
}
