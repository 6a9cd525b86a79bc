package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"horse.fit/stagehand/internal/cli"
)

func runDetect(args []string) int {
	fs := flag.NewFlagSet("detect", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 2*time.Minute, "Command timeout")
	threshold := fs.Float64("threshold", 0, "Similarity floor in (0,1] (defaults to SH_SIMILARITY_THRESHOLD)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: stagehand detect [flags] <batch_uuid>")
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

	floor := *threshold
	if floor == 0 {
		floor = cfg.SimilarityThreshold
	}

	result, err := svc.DetectDuplicates(ctx, batchUUID, floor)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Detection failed: %v\n", err)
		return 1
	}

	fmt.Printf("batch_uuid=%s threshold=%.2f scanned=%d flagged=%d matches=%d corpus=%d\n",
		result.BatchUUID, result.Threshold, result.Scanned, result.Flagged, result.MatchesFound, result.CorpusSize)
	return 0
}
