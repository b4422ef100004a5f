// Package model holds the correlator's core domain types: the shapes shared
// by the document store, the relational mirror, and every state-machine
// handler. Nothing in this package talks to a database or HTTP client.
package model

import "time"

// EventType classifies what an event document represents.
type EventType string

const (
	EventTypeUp      EventType = "up"
	EventTypeDown    EventType = "down"
	EventTypeNeutral EventType = "neutral"
	EventTypeMissing EventType = "<<missing>>"
)

// EventStatus is the correlator state machine's current phase for a record.
type EventStatus string

const (
	StatusNew            EventStatus = "new"
	StatusSuppressed     EventStatus = "suppressed"
	StatusCreatingTicket EventStatus = "creating_ticket"
	StatusAlerted        EventStatus = "alerted"
	StatusResolving      EventStatus = "resolving"
	StatusResolved       EventStatus = "resolved"
	StatusDeduped        EventStatus = "deduped"
	StatusError          EventStatus = "error"
)

// ActiveStatuses are statuses in which an event is still being worked.
var ActiveStatuses = map[EventStatus]bool{
	StatusNew:            true,
	StatusSuppressed:     true,
	StatusCreatingTicket: true,
	StatusAlerted:        true,
	StatusResolving:      true,
}

// CompleteStatuses are terminal statuses the dispatcher never re-enqueues.
var CompleteStatuses = map[EventStatus]bool{
	StatusResolved: true,
	StatusDeduped:  true,
	StatusError:    true,
}

// NonActive reports whether s is outside ActiveStatuses.
func NonActive(s EventStatus) bool { return !ActiveStatuses[s] }

// ResolvingAction records why a Resolving-status event is being closed out.
type ResolvingAction string

const (
	ResolvingActionNew         ResolvingAction = "new"
	ResolvingActionSupp        ResolvingAction = "supp"
	ResolvingActionManual      ResolvingAction = "manual"
	ResolvingActionCloseTicket ResolvingAction = "close_ticket"
)

// ExtrasKey enumerates the well-known keys stored in an event's Extras map.
type ExtrasKey string

const (
	ExtrasTicketID         ExtrasKey = "ticket_id"
	ExtrasAssetDownComment ExtrasKey = "asset_down_comment"
	ExtrasAssetUpComment   ExtrasKey = "asset_up_comment"
)

// NoTicketSentinel is the ticket_id value that means "do not create a ticket
// for this event", distinct from zero-value "no ticket assigned yet".
const NoTicketSentinel = 0

// MonitorTool identifies a class of monitoring source (e.g. "nagios", "snmp-trap").
type MonitorTool struct {
	ID            int64
	Name          string
	WebhookSecret string
}

// MonitorToolIP maps a source IP to a MonitorTool. ToolID is nil until an
// administrator assigns an unmapped IP to a tool.
type MonitorToolIP struct {
	ID        int64
	ToolID    *int64
	IPAddress string
	CreatedAt time.Time
}

// EventLevelSubRule overrides a CorrelationRule's ITSM behavior for one
// event severity level.
type EventLevelSubRule struct {
	ID                    int64
	CorrelationRuleID     int64
	EventLevel            string
	ITSMSeverity          *int
	DoNotCreateTicketFlag *bool
}

// ItsmSettings is the resolved (level-aware) ticket-creation configuration
// for a single event.
type ItsmSettings struct {
	AssignmentGroupUID string
	Severity            int
	Title               string
	Desc                string
	DoNotCreateTicket   bool
}

// CorrelationRule governs how events of a given (tool, title) pair move
// through the state machine.
type CorrelationRule struct {
	ID                        int64
	MonitorToolID             int64
	EventTitle                string
	ParentChildLookupRequired bool
	WaitTimeInSeconds         int
	UpEventFlag               bool
	DoNotCreateTicketFlag     bool
	ITSMAssignmentGroupUID    string
	ITSMSeverity              int
	ITSMTitle                 string
	ITSMDesc                  string
	LevelSubRules             []EventLevelSubRule
}

// DefaultCorrelationRule is returned by the RuleRepository when neither an
// exact (tool,title) nor a (tool,"*") rule is configured.
func DefaultCorrelationRule(toolID int64, title string) CorrelationRule {
	return CorrelationRule{
		MonitorToolID:             toolID,
		EventTitle:                title,
		ParentChildLookupRequired: true,
		WaitTimeInSeconds:         150,
		DoNotCreateTicketFlag:     true,
	}
}

// LevelSubRule returns the sub-rule for a level, if one is configured.
func (r CorrelationRule) LevelSubRule(level string) (EventLevelSubRule, bool) {
	for _, sr := range r.LevelSubRules {
		if sr.EventLevel == level {
			return sr, true
		}
	}
	return EventLevelSubRule{}, false
}

// ItsmSettingsForLevel resolves the effective ITSM settings for level,
// applying any matching EventLevelSubRule override.
func (r CorrelationRule) ItsmSettingsForLevel(level string) ItsmSettings {
	settings := ItsmSettings{
		AssignmentGroupUID: r.ITSMAssignmentGroupUID,
		Severity:            r.ITSMSeverity,
		Title:               r.ITSMTitle,
		Desc:                r.ITSMDesc,
		DoNotCreateTicket:   r.DoNotCreateTicketFlag,
	}
	if sr, ok := r.LevelSubRule(level); ok {
		if sr.ITSMSeverity != nil {
			settings.Severity = *sr.ITSMSeverity
		}
		if sr.DoNotCreateTicketFlag != nil {
			settings.DoNotCreateTicket = *sr.DoNotCreateTicketFlag
		}
	}
	return settings
}

// IngressLog is the relational record of one inbound ingest request (the
// "ApiLog" of the system this was distilled from).
type IngressLog struct {
	ID              int64
	Method          string
	TaskType        string
	Status          string
	MonitorToolIPID *int64
	EventDocID      string
	EventDocIndex   string
	RawBody         string
	TaskData        map[string]any
	CreatedAt       time.Time
	CompletedAt     *time.Time
}

// EventRecord is the relational mirror of an event document: the row the
// Dispatcher locks and the state machine advances.
type EventRecord struct {
	ID              int64
	IngressLogID    *int64
	MonitorToolIPID *int64
	DocID           string
	DocIndex        string
	Status          EventStatus
	Level           string
	Title           string
	EventTS         time.Time
	EventType       EventType
	AssetUniqueID   string
	AssetType       string
	RetryCount      int
	Extras          map[string]any
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// TicketID returns the event's assigned ticket number, if any has been set.
func (e EventRecord) TicketID() (int, bool) {
	v, ok := e.Extras[string(ExtrasTicketID)]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	}
	return 0, false
}

// DoNotCreateTicket reports whether this event's ticket_id sentinel marks it
// as intentionally ticketless.
func (e EventRecord) DoNotCreateTicket() bool {
	id, ok := e.TicketID()
	return ok && id == NoTicketSentinel
}
