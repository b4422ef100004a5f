package correlator

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/fluxgate/correlator/internal/dispatcher"
	"github.com/fluxgate/correlator/internal/model"
	"github.com/fluxgate/correlator/internal/ticketclient"
)

// handleResolving implements the resolving-status branch. It gates on
// resolving_action: close_ticket/supp wait for all children to resolve and
// run the shared ITSM activity; new waits for all children to reset to new;
// manual waits for all children to be manually resolved and skips ITSM
// entirely. Once its gate passes, a close_ticket event posts a final
// comment and closes the ticket before the record is marked resolved.
func (s *Service) handleResolving(ctx context.Context, tx *sqlx.Tx, rec *model.EventRecord) (dispatcher.FollowOn, error) {
	action := model.ResolvingAction(stringOr(rec.Extras[fieldResolvingAction], string(model.ResolvingActionCloseTicket)))

	var err error
	var gatePassed bool
	switch action {
	case model.ResolvingActionNew:
		gatePassed, err = s.allImmediateActiveChildrenSetAsNew(ctx, rec)
	case model.ResolvingActionManual:
		manualResolveTS := stringOr(rec.Extras[fieldManualResolveTS], time.Now().UTC().Format(time.RFC3339))
		gatePassed, err = s.allImmediateChildrenResolvedManually(ctx, rec, manualResolveTS)
	default: // supp, close_ticket
		gatePassed, err = s.allImmediateChildrenResolved(ctx, rec)
	}
	if err != nil {
		return dispatcher.FollowOn{}, err
	}
	if !gatePassed {
		return dispatcher.FollowOn{TaskName: TaskResolving, Countdown: countdownLong}, nil
	}

	if action != model.ResolvingActionManual {
		if err := s.itsmActivity(ctx, rec); err != nil {
			s.log.WithError(err).WithFields(map[string]interface{}{"record_id": rec.ID}).Warn("itsm activity failed during resolving")
		}
	}

	if action == model.ResolvingActionCloseTicket {
		if ticketID, ok := rec.TicketID(); ok && ticketID != model.NoTicketSentinel {
			if err := s.closeTicket(ctx, ticketID); err != nil {
				return dispatcher.FollowOn{}, err
			}
		}
	}

	rec.Status = model.StatusResolved
	return dispatcher.FollowOn{Skip: true}, nil
}

func (s *Service) closeTicket(ctx context.Context, ticketID int) error {
	tok, err := s.tickets.OpenSession(ctx)
	if err != nil {
		return err
	}
	defer s.tickets.CloseSession(ctx, tok)

	if err := s.tickets.Comment(ctx, tok, ticketclient.TicketID(ticketID), "Resolved: all conditions cleared"); err != nil {
		return err
	}
	return s.tickets.Close(ctx, tok, ticketclient.TicketID(ticketID))
}

func stringOr(v any, def string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return def
}
