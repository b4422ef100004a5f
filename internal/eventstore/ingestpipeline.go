package eventstore

import (
	"fmt"

	"github.com/PaesslerAG/jsonpath"
	"github.com/tidwall/gjson"
)

// PipelineOp is one field-extraction step of a MonitorToolPipelineRule,
// the Go-native replacement for a literal search-engine ingest pipeline
// (see SPEC_FULL.md §9 for why there is no external pipeline to compile
// into here).
type PipelineOp struct {
	Kind  string // "set", "copy_from", "remove", "event_type", "asset_unique_id"
	Field string
	From  string // jsonpath source expression, for copy_from/event_type/asset_unique_id
	Value string // literal value, for set
}

// Pipeline is an ordered set of extraction operations for one monitor tool.
type Pipeline struct {
	ToolName string
	Ops      []PipelineOp
}

// Apply runs the pipeline's operations over a raw JSON payload, returning
// the normalized field set the ingest handler writes into the event
// document and EventRecord.
func (p Pipeline) Apply(rawJSON string) (map[string]any, error) {
	out := map[string]any{}

	for _, op := range p.Ops {
		switch op.Kind {
		case "set":
			out[op.Field] = op.Value
		case "remove":
			delete(out, op.Field)
		case "copy_from":
			v := gjson.Get(rawJSON, op.From)
			if v.Exists() {
				out[op.Field] = v.Value()
			}
		case "event_type", "asset_unique_id":
			v, err := evalJSONPath(rawJSON, op.From)
			if err != nil {
				continue // best effort: missing field falls back to caller defaults
			}
			out[op.Field] = v
		default:
			return nil, fmt.Errorf("ingestpipeline: unknown op %q", op.Kind)
		}
	}
	return out, nil
}

// evalJSONPath evaluates a jsonpath expression against a raw JSON document,
// returning the match as a string. A list result must hold exactly one
// element; an empty or multi-element list is an error.
func evalJSONPath(rawJSON, expr string) (string, error) {
	var doc any
	if err := jsonpathUnmarshal(rawJSON, &doc); err != nil {
		return "", err
	}
	result, err := jsonpath.Get(expr, doc)
	if err != nil {
		return "", err
	}
	switch v := result.(type) {
	case string:
		return v, nil
	case []any:
		if len(v) == 1 {
			return fmt.Sprintf("%v", v[0]), nil
		}
		return "", fmt.Errorf("ingestpipeline: jsonpath %q returned %d results", expr, len(v))
	default:
		return fmt.Sprintf("%v", v), nil
	}
}

func jsonpathUnmarshal(rawJSON string, out *any) error {
	parsed := gjson.Parse(rawJSON)
	*out = parsed.Value()
	return nil
}
