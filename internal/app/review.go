package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"horse.fit/stagehand/internal/cli"
	"horse.fit/stagehand/internal/staging"
)

func runApprove(args []string) int {
	return runReview("approve", args, func(ctx context.Context, svc *staging.Service, questionID, reviewer string, notes *string) (*staging.Record, error) {
		return svc.Approve(ctx, questionID, reviewer, notes)
	})
}

func runReject(args []string) int {
	return runReview("reject", args, func(ctx context.Context, svc *staging.Service, questionID, reviewer string, notes *string) (*staging.Record, error) {
		return svc.Reject(ctx, questionID, reviewer, notes)
	})
}

func runReview(name string, args []string, review func(ctx context.Context, svc *staging.Service, questionID, reviewer string, notes *string) (*staging.Record, error)) int {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	reviewer := fs.String("by", "", "Reviewer recorded on the decision")
	notes := fs.String("notes", "", "Review notes")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: stagehand %s [flags] <question_id>\n", name)
		return 2
	}
	if strings.TrimSpace(*reviewer) == "" {
		fmt.Fprintln(os.Stderr, "--by is required")
		return 2
	}
	questionID := strings.TrimSpace(fs.Arg(0))

	ctx, cancel, pool, svc, _, err := connectService(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	record, err := review(ctx, svc, questionID, strings.TrimSpace(*reviewer), optionalNotes(*notes))
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s failed: %v\n", name, err)
		return 1
	}

	fmt.Printf("question_id=%s status=%s batch_uuid=%s\n", record.QuestionID, record.Status, record.BatchUUID)
	return 0
}

func runResolve(args []string) int {
	fs := flag.NewFlagSet("resolve", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	resolution := fs.String("resolution", "", "Resolution: keep_both, use_existing, use_new or merge")
	resolver := fs.String("by", "", "Reviewer recorded on the resolution")
	notes := fs.String("notes", "", "Resolution notes")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: stagehand resolve [flags] <match_uuid>")
		return 2
	}
	if strings.TrimSpace(*resolver) == "" {
		fmt.Fprintln(os.Stderr, "--by is required")
		return 2
	}

	res := staging.Resolution(strings.TrimSpace(strings.ToLower(*resolution)))
	switch res {
	case staging.ResolutionKeepBoth, staging.ResolutionUseExisting, staging.ResolutionUseNew, staging.ResolutionMerge:
	default:
		fmt.Fprintln(os.Stderr, "--resolution must be keep_both, use_existing, use_new or merge")
		return 2
	}
	matchUUID := strings.TrimSpace(fs.Arg(0))

	ctx, cancel, pool, svc, _, err := connectService(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	match, err := svc.ResolveMatch(ctx, matchUUID, res, strings.TrimSpace(*resolver), optionalNotes(*notes))
	if err != nil {
		fmt.Fprintf(os.Stderr, "resolve failed: %v\n", err)
		return 1
	}

	fmt.Printf("match_uuid=%s resolution=%s staged=%s existing=%s\n",
		match.MatchUUID, match.Resolution, match.StagedQuestionID, match.ExistingQuestionID)
	return 0
}
