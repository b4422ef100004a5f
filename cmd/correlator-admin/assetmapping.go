package main

import (
	"context"
	"fmt"

	"github.com/fluxgate/correlator/internal/bootstrap"
)

type assetMappingEntry struct {
	IP   string `json:"ip"`
	Tool string `json:"tool"`
}

// cmdLoadAssetMapping reconciles ip_address -> monitor_tool rows from a
// JSON file of {"ip": "...", "tool": "..."} entries, creating tools that
// don't yet exist.
func cmdLoadAssetMapping(ctx context.Context, args []string) error {
	fs := newFlagSet("load-asset-mapping")
	file := fs.String("file", "", "path to a JSON array of {ip, tool} entries")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return fmt.Errorf("-file is required")
	}

	var entries []assetMappingEntry
	if err := readJSONFile(*file, &entries); err != nil {
		return err
	}

	app, err := bootstrap.New(ctx, "correlator-admin")
	if err != nil {
		return err
	}
	defer app.Close()

	for _, e := range entries {
		toolID, err := app.Rules.EnsureMonitorTool(ctx, e.Tool)
		if err != nil {
			return fmt.Errorf("ensure tool %q: %w", e.Tool, err)
		}
		if err := app.Rules.AssignToolToIP(ctx, e.IP, toolID); err != nil {
			return fmt.Errorf("assign %s -> %q: %w", e.IP, e.Tool, err)
		}
		app.Log.WithFields(map[string]interface{}{"ip": e.IP, "tool": e.Tool}).Info("asset mapping applied")
	}
	fmt.Printf("applied %d asset mappings\n", len(entries))
	return nil
}
