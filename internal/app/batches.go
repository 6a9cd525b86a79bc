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

func runBatches(args []string) int {
	fs := flag.NewFlagSet("batches", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	status := fs.String("status", "", "Filter by batch status (pending, reviewing, completed, cancelled)")
	limit := fs.Int("limit", 50, "Maximum batches to return")
	offset := fs.Int("offset", 0, "Batches to skip")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "batches does not accept positional arguments")
		return 2
	}
	if *limit <= 0 {
		fmt.Fprintln(os.Stderr, "--limit must be > 0")
		return 2
	}
	if *offset < 0 {
		fmt.Fprintln(os.Stderr, "--offset must be >= 0")
		return 2
	}

	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return 2
	}

	batchStatus := staging.BatchStatus(strings.TrimSpace(strings.ToLower(*status)))
	switch batchStatus {
	case "", staging.BatchPending, staging.BatchReviewing, staging.BatchCompleted, staging.BatchCancelled:
	default:
		fmt.Fprintf(os.Stderr, "Unknown batch status: %s\n", *status)
		return 2
	}

	ctx, cancel, pool, svc, _, err := connectService(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	batches, err := svc.ListBatches(ctx, batchStatus, *limit, *offset)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list batches: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(batches); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	rows := make([][]string, 0, len(batches))
	for _, b := range batches {
		rows = append(rows, []string{
			b.BatchUUID,
			string(b.Status),
			truncateForTable(b.FileName, 32),
			b.UploadedBy,
			fmt.Sprintf("%d", b.TotalQuestions),
			fmt.Sprintf("%d", b.QuestionsPending),
			fmt.Sprintf("%d", b.QuestionsApproved),
			fmt.Sprintf("%d", b.QuestionsRejected),
			fmt.Sprintf("%d", b.QuestionsDuplicate),
			b.UploadedAt.UTC().Format(time.RFC3339),
		})
	}

	if err := writeTable([]string{"batch_uuid", "status", "file", "uploaded_by", "total", "pending", "approved", "rejected", "duplicate", "uploaded_at"}, rows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render table: %v\n", err)
		return 1
	}
	return 0
}

func runShow(args []string) int {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	status := fs.String("status", "", "Filter questions by status (pending, approved, rejected, duplicate, imported)")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: stagehand show [flags] <batch_uuid>")
		return 2
	}
	batchUUID := strings.TrimSpace(fs.Arg(0))

	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return 2
	}

	recordStatus := staging.RecordStatus(strings.TrimSpace(strings.ToLower(*status)))
	switch recordStatus {
	case "", staging.RecordPending, staging.RecordApproved, staging.RecordRejected, staging.RecordDuplicate, staging.RecordImported:
	default:
		fmt.Fprintf(os.Stderr, "Unknown question status: %s\n", *status)
		return 2
	}

	ctx, cancel, pool, svc, _, err := connectService(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	batch, err := svc.GetBatch(ctx, batchUUID)
	if err != nil {
		if errors.Is(err, staging.ErrNotFound) {
			fmt.Fprintf(os.Stderr, "Batch not found: %s\n", batchUUID)
			return 1
		}
		fmt.Fprintf(os.Stderr, "Failed to load batch: %v\n", err)
		return 1
	}

	records, err := svc.ListRecords(ctx, batchUUID, recordStatus)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list questions: %v\n", err)
		return 1
	}

	matches, err := svc.ListBatchMatches(ctx, batchUUID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list duplicate matches: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(map[string]any{"batch": batch, "questions": records, "duplicates": matches}); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	fmt.Printf("batch %s  status=%s  uploaded_by=%s  file=%s\n", batch.BatchUUID, batch.Status, batch.UploadedBy, batch.FileName)
	fmt.Printf("total=%d pending=%d approved=%d rejected=%d duplicate=%d\n\n",
		batch.TotalQuestions, batch.QuestionsPending, batch.QuestionsApproved, batch.QuestionsRejected, batch.QuestionsDuplicate)

	rows := make([][]string, 0, len(records))
	for _, r := range records {
		score := ""
		if r.SimilarityScore != nil {
			score = fmt.Sprintf("%.3f", *r.SimilarityScore)
		}
		rows = append(rows, []string{
			r.QuestionID,
			string(r.Status),
			truncateForTable(r.Content.Question, 60),
			pointerStringOrEmpty(r.DuplicateOf),
			score,
		})
	}

	if err := writeTable([]string{"question_id", "status", "question", "duplicate_of", "score"}, rows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render table: %v\n", err)
		return 1
	}

	if len(matches) > 0 {
		fmt.Println()
		matchRows := make([][]string, 0, len(matches))
		for _, m := range matches {
			matchRows = append(matchRows, []string{
				m.MatchUUID,
				m.StagedQuestionID,
				m.ExistingQuestionID,
				fmt.Sprintf("%.3f", m.SimilarityScore),
				string(m.Resolution),
				pointerStringOrEmpty(m.ResolvedBy),
			})
		}
		if err := writeTable([]string{"match_uuid", "staged", "existing", "score", "resolution", "resolved_by"}, matchRows); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render duplicates table: %v\n", err)
			return 1
		}
	}
	return 0
}
