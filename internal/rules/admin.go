package rules

import (
	"context"

	"github.com/fluxgate/correlator/internal/model"
)

// EnsureMonitorTool returns the id of the monitor tool named name, creating
// it (with no webhook secret configured) if it doesn't already exist.
func (r *Resolver) EnsureMonitorTool(ctx context.Context, name string) (int64, error) {
	var id int64
	err := r.db.GetContext(ctx, &id, `
		INSERT INTO monitor_tools (name) VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id
	`, name)
	return id, err
}

// AssignToolToIP upserts the ip_address -> monitor_tool mapping, the
// relational side of `correlator-admin load-asset-mapping`.
func (r *Resolver) AssignToolToIP(ctx context.Context, ip string, toolID int64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO monitor_tool_ips (monitor_tool_id, ip_address) VALUES ($1, $2)
		ON CONFLICT (ip_address) DO UPDATE SET monitor_tool_id = EXCLUDED.monitor_tool_id
	`, toolID, ip)
	return err
}

// PutCorrelationRule upserts the (toolID, rule.EventTitle) correlation rule,
// the relational side of `correlator-admin load-rules`.
func (r *Resolver) PutCorrelationRule(ctx context.Context, toolID int64, rule model.CorrelationRule) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO correlation_rules (
			monitor_tool_id, event_title, parent_child_lookup_required,
			wait_time_in_seconds, up_event_flag, do_not_create_ticket_flag,
			itsm_assignment_group_uid, itsm_severity, itsm_title, itsm_desc
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (monitor_tool_id, event_title) DO UPDATE SET
			parent_child_lookup_required = EXCLUDED.parent_child_lookup_required,
			wait_time_in_seconds         = EXCLUDED.wait_time_in_seconds,
			up_event_flag                = EXCLUDED.up_event_flag,
			do_not_create_ticket_flag    = EXCLUDED.do_not_create_ticket_flag,
			itsm_assignment_group_uid    = EXCLUDED.itsm_assignment_group_uid,
			itsm_severity                = EXCLUDED.itsm_severity,
			itsm_title                   = EXCLUDED.itsm_title,
			itsm_desc                    = EXCLUDED.itsm_desc
	`, toolID, rule.EventTitle, rule.ParentChildLookupRequired,
		rule.WaitTimeInSeconds, rule.UpEventFlag, rule.DoNotCreateTicketFlag,
		rule.ITSMAssignmentGroupUID, rule.ITSMSeverity, rule.ITSMTitle, rule.ITSMDesc)
	return err
}
