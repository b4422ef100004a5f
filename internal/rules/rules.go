// Package rules is the single resolver for monitor-tool identity and
// correlation-rule lookup. No other package queries these tables directly.
package rules

import (
	"context"
	"database/sql"
	"errors"
	"reflect"

	"github.com/jmoiron/sqlx"

	"github.com/fluxgate/correlator/internal/model"
)

// ErrUnresolvable is returned when no tool mapping exists for an IP and the
// caller asked not to auto-register one.
var ErrUnresolvable = errors.New("rules: no monitor tool mapping")

// Resolver is the single entry point for tool/rule lookups.
type Resolver struct {
	db *sqlx.DB
}

// New constructs a Resolver.
func New(db *sqlx.DB) *Resolver {
	return &Resolver{db: db}
}

type toolIPRow struct {
	ID        int64         `db:"id"`
	ToolID    sql.NullInt64 `db:"monitor_tool_id"`
	IPAddress string        `db:"ip_address"`
}

// MonitorToolIP resolves a source IP to its MonitorToolIP mapping, creating
// an unmapped row automatically if the IP has never been seen before.
func (r *Resolver) MonitorToolIP(ctx context.Context, ip string) (model.MonitorToolIP, error) {
	var row toolIPRow
	err := r.db.GetContext(ctx, &row, `
		SELECT id, monitor_tool_id, ip_address FROM monitor_tool_ips WHERE ip_address = $1
	`, ip)
	if errors.Is(err, sql.ErrNoRows) {
		var id int64
		if err := r.db.GetContext(ctx, &id, `
			INSERT INTO monitor_tool_ips (ip_address) VALUES ($1)
			ON CONFLICT (ip_address) DO UPDATE SET ip_address = EXCLUDED.ip_address
			RETURNING id
		`, ip); err != nil {
			return model.MonitorToolIP{}, err
		}
		return model.MonitorToolIP{ID: id, IPAddress: ip}, nil
	}
	if err != nil {
		return model.MonitorToolIP{}, err
	}
	out := model.MonitorToolIP{ID: row.ID, IPAddress: row.IPAddress}
	if row.ToolID.Valid {
		id := row.ToolID.Int64
		out.ToolID = &id
	}
	return out, nil
}

// MonitorToolIPByID looks up a monitor_tool_ips row by its primary key.
func (r *Resolver) MonitorToolIPByID(ctx context.Context, id int64) (model.MonitorToolIP, error) {
	var row toolIPRow
	if err := r.db.GetContext(ctx, &row, `
		SELECT id, monitor_tool_id, ip_address FROM monitor_tool_ips WHERE id = $1
	`, id); err != nil {
		return model.MonitorToolIP{}, err
	}
	out := model.MonitorToolIP{ID: row.ID, IPAddress: row.IPAddress}
	if row.ToolID.Valid {
		v := row.ToolID.Int64
		out.ToolID = &v
	}
	return out, nil
}

type toolRow struct {
	ID            int64          `db:"id"`
	Name          string         `db:"name"`
	WebhookSecret sql.NullString `db:"webhook_secret"`
}

// MonitorTool looks up a tool by ID.
func (r *Resolver) MonitorTool(ctx context.Context, id int64) (model.MonitorTool, error) {
	var row toolRow
	if err := r.db.GetContext(ctx, &row, `SELECT id, name, webhook_secret FROM monitor_tools WHERE id = $1`, id); err != nil {
		return model.MonitorTool{}, err
	}
	return model.MonitorTool{ID: row.ID, Name: row.Name, WebhookSecret: row.WebhookSecret.String}, nil
}

type ruleRow struct {
	ID                        int64          `db:"id"`
	MonitorToolID             int64          `db:"monitor_tool_id"`
	EventTitle                string         `db:"event_title"`
	ParentChildLookupRequired bool           `db:"parent_child_lookup_required"`
	WaitTimeInSeconds         int            `db:"wait_time_in_seconds"`
	UpEventFlag               bool           `db:"up_event_flag"`
	DoNotCreateTicketFlag     bool           `db:"do_not_create_ticket_flag"`
	ITSMAssignmentGroupUID    sql.NullString `db:"itsm_assignment_group_uid"`
	ITSMSeverity              sql.NullInt64  `db:"itsm_severity"`
	ITSMTitle                 sql.NullString `db:"itsm_title"`
	ITSMDesc                  sql.NullString `db:"itsm_desc"`
}

// CorrelationRule resolves the rule for (toolID, eventTitle), falling back
// to the tool's wildcard rule ("*") and then to the hardcoded default.
func (r *Resolver) CorrelationRule(ctx context.Context, toolID int64, eventTitle string) (model.CorrelationRule, error) {
	rule, err := r.lookupRule(ctx, toolID, eventTitle)
	if err == nil {
		return rule, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return model.CorrelationRule{}, err
	}
	rule, err = r.lookupRule(ctx, toolID, "*")
	if err == nil {
		return rule, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return model.CorrelationRule{}, err
	}
	return model.DefaultCorrelationRule(toolID, eventTitle), nil
}

func (r *Resolver) lookupRule(ctx context.Context, toolID int64, title string) (model.CorrelationRule, error) {
	var row ruleRow
	err := r.db.GetContext(ctx, &row, `
		SELECT id, monitor_tool_id, event_title, parent_child_lookup_required,
		       wait_time_in_seconds, up_event_flag, do_not_create_ticket_flag,
		       itsm_assignment_group_uid, itsm_severity, itsm_title, itsm_desc
		FROM correlation_rules WHERE monitor_tool_id = $1 AND event_title = $2
	`, toolID, title)
	if err != nil {
		return model.CorrelationRule{}, err
	}

	rule := model.CorrelationRule{
		ID:                        row.ID,
		MonitorToolID:             row.MonitorToolID,
		EventTitle:                row.EventTitle,
		ParentChildLookupRequired: row.ParentChildLookupRequired,
		WaitTimeInSeconds:         row.WaitTimeInSeconds,
		UpEventFlag:               row.UpEventFlag,
		DoNotCreateTicketFlag:     row.DoNotCreateTicketFlag,
		ITSMAssignmentGroupUID:    row.ITSMAssignmentGroupUID.String,
		ITSMSeverity:              int(row.ITSMSeverity.Int64),
		ITSMTitle:                 row.ITSMTitle.String,
		ITSMDesc:                  row.ITSMDesc.String,
	}

	var subRows []struct {
		ID                    int64          `db:"id"`
		EventLevel            string         `db:"event_level"`
		ITSMSeverity          sql.NullInt64  `db:"itsm_severity"`
		DoNotCreateTicketFlag sql.NullBool   `db:"do_not_create_ticket_flag"`
	}
	if err := r.db.SelectContext(ctx, &subRows, `
		SELECT id, event_level, itsm_severity, do_not_create_ticket_flag
		FROM event_level_sub_rules WHERE correlation_rule_id = $1
	`, row.ID); err != nil {
		return model.CorrelationRule{}, err
	}
	for _, sr := range subRows {
		lsr := model.EventLevelSubRule{ID: sr.ID, CorrelationRuleID: row.ID, EventLevel: sr.EventLevel}
		if sr.ITSMSeverity.Valid {
			v := int(sr.ITSMSeverity.Int64)
			lsr.ITSMSeverity = &v
		}
		if sr.DoNotCreateTicketFlag.Valid {
			v := sr.DoNotCreateTicketFlag.Bool
			lsr.DoNotCreateTicketFlag = &v
		}
		rule.LevelSubRules = append(rule.LevelSubRules, lsr)
	}
	return rule, nil
}

// RuleSet is a snapshot of all correlation rules, used by Diff.
type RuleSet map[string]model.CorrelationRule // keyed by "toolID/eventTitle"

// RuleDiff reports what changed between two RuleSet snapshots.
type RuleDiff struct {
	Added   []string
	Changed []string
	Removed []string
}

// Diff compares two rule snapshots, the Go analog of the rule-comparison
// tooling admins use before syncing configuration changes.
func Diff(old, new RuleSet) RuleDiff {
	var d RuleDiff
	for key, n := range new {
		o, ok := old[key]
		if !ok {
			d.Added = append(d.Added, key)
			continue
		}
		if !reflect.DeepEqual(o, n) {
			d.Changed = append(d.Changed, key)
		}
	}
	for key := range old {
		if _, ok := new[key]; !ok {
			d.Removed = append(d.Removed, key)
		}
	}
	return d
}
