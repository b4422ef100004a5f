package rules

import (
	"context"
	"encoding/json"

	"github.com/fluxgate/correlator/internal/eventstore"
)

// pipelineDoc is the on-disk shape of a monitor_tool_pipeline_rules.rule
// column: an ordered list of extraction ops, admin-authored and compiled
// once into the ingest handler's extraction step (see SPEC_FULL.md §9).
type pipelineDoc struct {
	Ops []eventstore.PipelineOp `json:"ops"`
}

// Pipeline resolves the extraction pipeline configured for a monitor tool.
// A tool with no configured rows gets an empty pipeline (identity
// extraction: the ingest handler falls back to its own defaults).
func (r *Resolver) Pipeline(ctx context.Context, toolID int64) (eventstore.Pipeline, error) {
	var rows []struct {
		Rule json.RawMessage `db:"rule"`
	}
	if err := r.db.SelectContext(ctx, &rows, `
		SELECT rule FROM monitor_tool_pipeline_rules WHERE monitor_tool_id = $1 ORDER BY id
	`, toolID); err != nil {
		return eventstore.Pipeline{}, err
	}

	p := eventstore.Pipeline{ToolName: ""}
	for _, row := range rows {
		var doc pipelineDoc
		if err := json.Unmarshal(row.Rule, &doc); err != nil {
			return eventstore.Pipeline{}, err
		}
		p.Ops = append(p.Ops, doc.Ops...)
	}
	return p, nil
}

// PutPipeline replaces a tool's pipeline rule set with a single compiled
// row, the admin-time operation driven by `correlator-admin
// update-ingest-pipelines`.
func (r *Resolver) PutPipeline(ctx context.Context, toolID int64, ops []eventstore.PipelineOp) error {
	raw, err := json.Marshal(pipelineDoc{Ops: ops})
	if err != nil {
		return err
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM monitor_tool_pipeline_rules WHERE monitor_tool_id = $1`, toolID); err != nil {
		_ = tx.Rollback()
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO monitor_tool_pipeline_rules (monitor_tool_id, rule) VALUES ($1, $2)
	`, toolID, raw); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
