// Package correlator implements the event correlation state machine: the
// handlers that move an EventRecord through new -> suppressed/creating_ticket
// -> alerted -> resolving -> resolved (or deduped, or error), including
// dedup, parent/child suppression, delayed ticket creation, and propagated
// resolution.
package correlator

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/fluxgate/correlator/internal/dispatcher"
	"github.com/fluxgate/correlator/internal/erroraccum"
	"github.com/fluxgate/correlator/internal/eventrecord"
	"github.com/fluxgate/correlator/internal/eventstore"
	"github.com/fluxgate/correlator/internal/ingresslog"
	"github.com/fluxgate/correlator/internal/logging"
	"github.com/fluxgate/correlator/internal/model"
	"github.com/fluxgate/correlator/internal/rules"
	"github.com/fluxgate/correlator/internal/ticketclient"
)

// Task names the dispatcher's follow-on queue uses. These are the Go analog
// of the distinct Celery task names in the system this was distilled from.
const (
	TaskNew            = "correlator.new"
	TaskSuppressed     = "correlator.suppressed"
	TaskCreatingTicket = "correlator.creating_ticket"
	TaskAlerted        = "correlator.alerted"
	TaskResolving      = "correlator.resolving"
)

// countdown values, unchanged from the system this was distilled from.
const (
	countdownShort = 10 * time.Second
	countdownLong  = 30 * time.Second
)

// TicketClient is the subset of ticketclient.Client the state machine uses.
type TicketClient interface {
	OpenSession(ctx context.Context) (ticketclient.Token, error)
	CloseSession(ctx context.Context, tok ticketclient.Token) error
	Create(ctx context.Context, tok ticketclient.Token, req ticketclient.CreateTicketRequest) (ticketclient.TicketID, error)
	Comment(ctx context.Context, tok ticketclient.Token, id ticketclient.TicketID, text string) error
	Close(ctx context.Context, tok ticketclient.Token, id ticketclient.TicketID) error
}

// Service bundles the dependencies every state-machine handler needs.
type Service struct {
	docs        eventstore.Store
	rules       *rules.Resolver
	tickets     TicketClient
	records     *eventrecord.Store
	ingressLogs *ingresslog.Store
	errs        *erroraccum.Accumulator
	queue       dispatcher.TaskQueue
	log         *logging.Logger
	environment string
}

// New constructs a Service.
func New(
	docs eventstore.Store,
	resolver *rules.Resolver,
	tickets TicketClient,
	records *eventrecord.Store,
	ingressLogs *ingresslog.Store,
	errs *erroraccum.Accumulator,
	queue dispatcher.TaskQueue,
	log *logging.Logger,
	environment string,
) *Service {
	return &Service{
		docs: docs, rules: resolver, tickets: tickets, records: records,
		ingressLogs: ingressLogs, errs: errs, queue: queue, log: log, environment: environment,
	}
}

// HandlerFor resolves a dispatcher.Handler + RunOpts for a named task.
func (s *Service) HandlerFor(task string) (dispatcher.RunOpts, dispatcher.Handler, bool) {
	switch task {
	case TaskNew:
		return dispatcher.RunOpts{ValidStartStatuses: []model.EventStatus{model.StatusNew}}, s.handleNew, true
	case TaskSuppressed:
		return dispatcher.RunOpts{ValidStartStatuses: []model.EventStatus{model.StatusSuppressed}}, s.handleSuppressed, true
	case TaskCreatingTicket:
		return dispatcher.RunOpts{ValidStartStatuses: []model.EventStatus{model.StatusCreatingTicket}}, s.handleCreatingTicket, true
	case TaskAlerted:
		return dispatcher.RunOpts{ValidStartStatuses: []model.EventStatus{model.StatusAlerted}}, s.handleAlerted, true
	case TaskResolving:
		return dispatcher.RunOpts{ValidStartStatuses: []model.EventStatus{model.StatusResolving}}, s.handleResolving, true
	default:
		return dispatcher.RunOpts{}, nil, false
	}
}

// handleNew dispatches to the up/down handler by event type, matching
// process_new_up_event/process_new_down_event in the system this was
// distilled from.
func (s *Service) handleNew(ctx context.Context, tx *sqlx.Tx, rec *model.EventRecord) (dispatcher.FollowOn, error) {
	switch rec.EventType {
	case model.EventTypeUp:
		return s.handleNewUp(ctx, tx, rec)
	case model.EventTypeDown:
		return s.handleNewDown(ctx, tx, rec)
	default:
		rec.Status = model.StatusError
		return dispatcher.FollowOn{Skip: true}, nil
	}
}

func (s *Service) document(ctx context.Context, rec *model.EventRecord) (*eventstore.Document, error) {
	return s.docs.Get(ctx, rec.DocIndex, rec.DocID)
}
