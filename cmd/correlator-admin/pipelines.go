package main

import (
	"context"
	"fmt"
	"reflect"

	"github.com/fluxgate/correlator/internal/bootstrap"
	"github.com/fluxgate/correlator/internal/eventstore"
)

type pipelineFile struct {
	Ops []eventstore.PipelineOp `json:"ops"`
}

// cmdUpdateIngestPipelines replaces a monitor tool's ingest extraction
// pipeline, logging what changed before committing it (the Go analog of
// update_elk_pipelines/update_index_template; see SPEC_FULL.md §9).
func cmdUpdateIngestPipelines(ctx context.Context, args []string) error {
	fs := newFlagSet("update-ingest-pipelines")
	tool := fs.String("tool", "", "monitor tool name")
	file := fs.String("file", "", "path to a JSON {ops: [...]} pipeline file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *tool == "" || *file == "" {
		return fmt.Errorf("-tool and -file are required")
	}

	var doc pipelineFile
	if err := readJSONFile(*file, &doc); err != nil {
		return err
	}

	app, err := bootstrap.New(ctx, "correlator-admin")
	if err != nil {
		return err
	}
	defer app.Close()

	toolID, err := app.Rules.EnsureMonitorTool(ctx, *tool)
	if err != nil {
		return fmt.Errorf("ensure tool %q: %w", *tool, err)
	}

	existing, err := app.Rules.Pipeline(ctx, toolID)
	if err != nil {
		return fmt.Errorf("load existing pipeline: %w", err)
	}
	if reflect.DeepEqual(existing.Ops, doc.Ops) {
		fmt.Printf("pipeline for %q unchanged (%d ops)\n", *tool, len(doc.Ops))
		return nil
	}

	app.Log.WithFields(map[string]interface{}{
		"tool": *tool, "old_ops": len(existing.Ops), "new_ops": len(doc.Ops),
	}).Info("ingest pipeline changed, applying")

	if err := app.Rules.PutPipeline(ctx, toolID, doc.Ops); err != nil {
		return fmt.Errorf("put pipeline: %w", err)
	}
	fmt.Printf("pipeline for %q updated: %d -> %d ops\n", *tool, len(existing.Ops), len(doc.Ops))
	return nil
}
