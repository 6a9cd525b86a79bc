package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"horse.fit/stagehand/internal/cli"
	"horse.fit/stagehand/internal/staging"
)

func runStats(args []string) int {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "stats does not accept positional arguments")
		return 2
	}

	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return 2
	}

	ctx, cancel, pool, svc, _, err := connectService(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	stats, err := svc.Stats(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to query stats: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(stats); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	batchRows := make([][]string, 0, 4)
	for _, status := range []staging.BatchStatus{staging.BatchPending, staging.BatchReviewing, staging.BatchCompleted, staging.BatchCancelled} {
		batchRows = append(batchRows, []string{string(status), fmt.Sprintf("%d", stats.BatchesByStatus[status])})
	}
	if err := writeTable([]string{"batch_status", "count"}, batchRows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render batch table: %v\n", err)
		return 1
	}
	fmt.Println()

	recordRows := make([][]string, 0, 5)
	for _, status := range []staging.RecordStatus{staging.RecordPending, staging.RecordApproved, staging.RecordRejected, staging.RecordDuplicate, staging.RecordImported} {
		recordRows = append(recordRows, []string{string(status), fmt.Sprintf("%d", stats.RecordsByStatus[status])})
	}
	if err := writeTable([]string{"question_status", "count"}, recordRows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render question table: %v\n", err)
		return 1
	}
	fmt.Println()

	matchRows := make([][]string, 0, 5)
	for _, res := range []staging.Resolution{staging.ResolutionPending, staging.ResolutionKeepBoth, staging.ResolutionUseExisting, staging.ResolutionUseNew, staging.ResolutionMerge} {
		matchRows = append(matchRows, []string{string(res), fmt.Sprintf("%d", stats.MatchesByResolution[res])})
	}
	if err := writeTable([]string{"match_resolution", "count"}, matchRows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render match table: %v\n", err)
		return 1
	}

	fmt.Printf("\npending_matches=%d production_questions=%d\n", stats.PendingMatches, stats.ProductionTotal)
	return 0
}
