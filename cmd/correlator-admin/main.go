// Command correlator-admin is the flag-based operator CLI: it loads
// monitoring-tool IP mappings, compiles per-tool ingest extraction
// pipelines, and drives scripted test-case fixtures through a running
// correlator deployment.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx := context.Background()
	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "load-asset-mapping":
		err = cmdLoadAssetMapping(ctx, args)
	case "update-ingest-pipelines":
		err = cmdUpdateIngestPipelines(ctx, args)
	case "run-test-case":
		err = cmdRunTestCase(ctx, args)
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", cmd, err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`correlator-admin - operator CLI

Usage:
  correlator-admin <command> [arguments]

Commands:
  load-asset-mapping -file <path>         Upsert ip_address -> monitor_tool mappings from a JSON file
  update-ingest-pipelines -tool <name> -file <path>
                                           Replace a tool's ingest extraction pipeline from a JSON file
  run-test-case -file <path> [-api-base <url>]
                                           Drive a scripted fixture through a running deployment`)
}

func readJSONFile(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func newFlagSet(name string) *flag.FlagSet {
	return flag.NewFlagSet(name, flag.ExitOnError)
}
