package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/fluxgate/correlator/internal/bootstrap"
	"github.com/fluxgate/correlator/internal/eventstore"
	"github.com/fluxgate/correlator/internal/model"
)

// testCaseFixture is the on-disk shape of a scripted scenario: an asset
// mapping, per-tool ingest pipelines, and correlation rules to install
// before the run, followed by a sequence of HTTP event bodies and the
// terminal status each is expected to converge to.
type testCaseFixture struct {
	AssetMapping  []assetMappingEntry      `json:"asset_mapping"`
	ToolPipelines []toolPipelineFixture    `json:"tool_pipelines"`
	Rules         []correlationRuleFixture `json:"rules"`
	Steps         []testCaseStep           `json:"steps"`
}

type toolPipelineFixture struct {
	Tool string                  `json:"tool"`
	Ops  []eventstore.PipelineOp `json:"ops"`
}

// correlationRuleFixture is the fixture-file shape of one correlation_rules
// row, keyed by the tool name already registered via asset_mapping.
type correlationRuleFixture struct {
	Tool                      string `json:"tool"`
	EventTitle                string `json:"event_title"`
	ParentChildLookupRequired bool   `json:"parent_child_lookup_required"`
	WaitTimeInSeconds         int    `json:"wait_time_in_seconds"`
	UpEventFlag               bool   `json:"up_event_flag"`
	DoNotCreateTicketFlag     bool   `json:"do_not_create_ticket_flag"`
	ITSMAssignmentGroupUID    string `json:"itsm_assignment_group_uid"`
	ITSMSeverity              int    `json:"itsm_severity"`
	ITSMTitle                 string `json:"itsm_title"`
	ITSMDesc                  string `json:"itsm_desc"`
}

type testCaseStep struct {
	Body          map[string]any `json:"body"`
	AssetUniqueID string         `json:"asset_unique_id"`
	ExpectStatus  string         `json:"expect_status"`
	WaitSeconds   int            `json:"wait_seconds"`

	// Resolve, when set, POSTs to /resolve/ instead of /event/: the
	// manual-resolve webhook path rather than an ingested event.
	Resolve *resolveStepBody `json:"resolve"`
}

type resolveStepBody struct {
	ITSMTicket int `json:"itsm_ticket"`

	// FromAsset, when set instead of a literal ITSMTicket, looks up the
	// ticket number live from the named asset's current document: a
	// fixture author rarely knows the ticket ID a prior step's ticket
	// client call assigned ahead of time.
	FromAsset string `json:"from_asset"`
}

// cmdRunTestCase drives a scripted fixture through a live deployment's HTTP
// ingress and polls the document store until each step's asset converges to
// its expected terminal status (or the poll budget is exhausted).
func cmdRunTestCase(ctx context.Context, args []string) error {
	fs := newFlagSet("run-test-case")
	file := fs.String("file", "", "path to a JSON test-case fixture")
	apiBase := fs.String("api-base", "http://localhost:8080", "base URL of a running correlator-api")
	pollSeconds := fs.Int("poll-seconds", 2, "interval between document-store polls")
	maxPolls := fs.Int("max-polls", 15, "maximum number of polls before declaring a step failed")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return fmt.Errorf("-file is required")
	}

	var fixture testCaseFixture
	if err := readJSONFile(*file, &fixture); err != nil {
		return err
	}

	app, err := bootstrap.New(ctx, "correlator-admin")
	if err != nil {
		return err
	}
	defer app.Close()

	for _, e := range fixture.AssetMapping {
		toolID, err := app.Rules.EnsureMonitorTool(ctx, e.Tool)
		if err != nil {
			return fmt.Errorf("ensure tool %q: %w", e.Tool, err)
		}
		if err := app.Rules.AssignToolToIP(ctx, e.IP, toolID); err != nil {
			return fmt.Errorf("assign %s -> %q: %w", e.IP, e.Tool, err)
		}
	}

	for _, tp := range fixture.ToolPipelines {
		toolID, err := app.Rules.EnsureMonitorTool(ctx, tp.Tool)
		if err != nil {
			return fmt.Errorf("ensure tool %q: %w", tp.Tool, err)
		}
		if err := app.Rules.PutPipeline(ctx, toolID, tp.Ops); err != nil {
			return fmt.Errorf("put pipeline for %q: %w", tp.Tool, err)
		}
	}

	for _, rf := range fixture.Rules {
		toolID, err := app.Rules.EnsureMonitorTool(ctx, rf.Tool)
		if err != nil {
			return fmt.Errorf("ensure tool %q: %w", rf.Tool, err)
		}
		rule := model.CorrelationRule{
			MonitorToolID:             toolID,
			EventTitle:                rf.EventTitle,
			ParentChildLookupRequired: rf.ParentChildLookupRequired,
			WaitTimeInSeconds:         rf.WaitTimeInSeconds,
			UpEventFlag:               rf.UpEventFlag,
			DoNotCreateTicketFlag:     rf.DoNotCreateTicketFlag,
			ITSMAssignmentGroupUID:    rf.ITSMAssignmentGroupUID,
			ITSMSeverity:              rf.ITSMSeverity,
			ITSMTitle:                 rf.ITSMTitle,
			ITSMDesc:                  rf.ITSMDesc,
		}
		if err := app.Rules.PutCorrelationRule(ctx, toolID, rule); err != nil {
			return fmt.Errorf("put rule %q/%q: %w", rf.Tool, rf.EventTitle, err)
		}
	}

	httpClient := &http.Client{Timeout: 10 * time.Second}
	index := fmt.Sprintf("events-%s", time.Now().UTC().Format("20060102"))

	passed := 0
	for i, step := range fixture.Steps {
		endpoint := "/event/"
		body := step.Body
		if step.Resolve != nil {
			endpoint = "/resolve/"
			ticket := step.Resolve.ITSMTicket
			if step.Resolve.FromAsset != "" {
				doc, err := currentDocument(ctx, app.Docs, index, step.Resolve.FromAsset)
				if err != nil {
					return fmt.Errorf("step %d: resolve ticket lookup: %w", i, err)
				}
				id, ok := doc[string(model.ExtrasTicketID)].(float64)
				if !ok {
					return fmt.Errorf("step %d: asset %q has no %s on its current document", i, step.Resolve.FromAsset, model.ExtrasTicketID)
				}
				ticket = int(id)
			}
			body = map[string]any{"itsm_ticket": ticket}
		}

		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("step %d: marshal body: %w", i, err)
		}
		resp, err := httpClient.Post(*apiBase+endpoint, "application/json", bytes.NewReader(raw))
		if err != nil {
			return fmt.Errorf("step %d: post %s: %w", i, endpoint, err)
		}
		resp.Body.Close()
		if resp.StatusCode >= 300 {
			return fmt.Errorf("step %d: ingress returned %d", i, resp.StatusCode)
		}

		if step.WaitSeconds > 0 {
			time.Sleep(time.Duration(step.WaitSeconds) * time.Second)
		}
		status, err := pollForStatus(ctx, app.Docs, index, step.AssetUniqueID, step.ExpectStatus, *pollSeconds, *maxPolls)
		if err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
		if status != step.ExpectStatus {
			return fmt.Errorf("step %d: asset %q converged to %q, expected %q", i, step.AssetUniqueID, status, step.ExpectStatus)
		}
		passed++
		fmt.Printf("step %d: asset %q reached %q\n", i, step.AssetUniqueID, status)
	}
	fmt.Printf("%d/%d steps passed\n", passed, len(fixture.Steps))
	return nil
}

func pollForStatus(ctx context.Context, docs eventstore.Store, index, assetUniqueID, want string, pollSeconds, maxPolls int) (string, error) {
	last := ""
	for attempt := 0; attempt < maxPolls; attempt++ {
		result, err := docs.Search(ctx, eventstore.Query{
			Index: index,
			Must: []eventstore.Clause{
				{Field: "asset_unique_id", Op: eventstore.OpTerm, Value: assetUniqueID},
			},
			Sort:     []eventstore.SortField{{Field: "received_ts", Descending: true}},
			Size:     1,
			Response: eventstore.ResponseFirst,
		})
		if err != nil {
			return "", fmt.Errorf("search: %w", err)
		}
		if len(result.Hits) == 1 {
			if status, ok := result.Hits[0].Src["status"].(string); ok {
				if status == want {
					return status, nil
				}
				last = status
			}
		}
		time.Sleep(time.Duration(pollSeconds) * time.Second)
	}
	if last != "" {
		return last, nil
	}
	return "", fmt.Errorf("asset %q did not converge within %d polls", assetUniqueID, maxPolls)
}

// currentDocument returns the most recently received document for
// assetUniqueID, regardless of status.
func currentDocument(ctx context.Context, docs eventstore.Store, index, assetUniqueID string) (map[string]any, error) {
	result, err := docs.Search(ctx, eventstore.Query{
		Index: index,
		Must: []eventstore.Clause{
			{Field: "asset_unique_id", Op: eventstore.OpTerm, Value: assetUniqueID},
		},
		Sort:     []eventstore.SortField{{Field: "received_ts", Descending: true}},
		Size:     1,
		Response: eventstore.ResponseFirst,
	})
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	if len(result.Hits) != 1 {
		return nil, fmt.Errorf("asset %q has no document", assetUniqueID)
	}
	return result.Hits[0].Src, nil
}
