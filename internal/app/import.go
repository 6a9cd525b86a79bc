package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"horse.fit/stagehand/internal/cli"
	"horse.fit/stagehand/internal/staging"
)

func runImport(args []string) int {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 2*time.Minute, "Command timeout")
	policy := fs.String("policy", "", "Import policy: replace or shadow (defaults to SH_IMPORT_POLICY)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: stagehand import [flags] <batch_uuid>")
		return 2
	}
	batchUUID := strings.TrimSpace(fs.Arg(0))

	ctx, cancel, pool, svc, cfg, err := connectService(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	importPolicy := staging.ImportPolicy(strings.TrimSpace(strings.ToLower(*policy)))
	if importPolicy == "" {
		importPolicy = staging.ImportPolicy(cfg.ImportPolicy)
	}

	result, err := svc.ImportApproved(ctx, batchUUID, importPolicy)
	if err != nil {
		var partial *staging.PartialFailureError
		if errors.As(err, &partial) {
			fmt.Fprintf(os.Stderr, "Import aborted, identifier collisions: %s\n", strings.Join(partial.RecordIDs, ", "))
			return 1
		}
		fmt.Fprintf(os.Stderr, "Import failed: %v\n", err)
		return 1
	}

	fmt.Printf("batch_uuid=%s imported=%d replaced=%d batch_status=%s\n",
		result.BatchUUID, len(result.Imported), len(result.Replaced), result.BatchStatus)
	for _, id := range result.Imported {
		fmt.Printf("imported %s\n", id)
	}
	return 0
}

func runCancel(args []string) int {
	fs := flag.NewFlagSet("cancel", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	actor := fs.String("by", "", "Operator recorded on the cancellation")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: stagehand cancel [flags] <batch_uuid>")
		return 2
	}
	if strings.TrimSpace(*actor) == "" {
		fmt.Fprintln(os.Stderr, "--by is required")
		return 2
	}
	batchUUID := strings.TrimSpace(fs.Arg(0))

	ctx, cancel, pool, svc, _, err := connectService(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	batch, err := svc.Cancel(ctx, batchUUID, strings.TrimSpace(*actor))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cancel failed: %v\n", err)
		return 1
	}

	fmt.Printf("batch_uuid=%s status=%s\n", batch.BatchUUID, batch.Status)
	return 0
}
