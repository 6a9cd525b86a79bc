package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"horse.fit/stagehand/internal/cli"
	"horse.fit/stagehand/internal/staging"
	payloadschema "horse.fit/stagehand/schema"
)

func runUpload(args []string) int {
	fs := flag.NewFlagSet("upload", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	file := fs.String("file", "", "Path to the question batch JSON file")
	uploadedBy := fs.String("uploaded-by", "", "Uploader recorded on the batch (defaults to payload uploaded_by)")
	validateOnly := fs.Bool("validate-only", false, "Validate the payload without staging anything")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if strings.TrimSpace(*file) == "" {
		fmt.Fprintln(os.Stderr, "--file is required")
		return 2
	}

	raw, err := os.ReadFile(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read %s: %v\n", *file, err)
		return 2
	}

	upload, err := payloadschema.ValidateBatchUploadPayload(raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid payload: %v\n", err)
		return 2
	}

	if *validateOnly {
		fmt.Printf("valid: %d questions\n", len(upload.Questions))
		return 0
	}

	req := staging.CreateBatchRequest{
		UploadedBy: strings.TrimSpace(upload.UploadedBy),
		FileName:   strings.TrimSpace(upload.FileName),
		Notes:      upload.Notes,
	}
	if req.FileName == "" {
		req.FileName = filepath.Base(*file)
	}
	if by := strings.TrimSpace(*uploadedBy); by != "" {
		req.UploadedBy = by
	}
	for _, q := range upload.Questions {
		req.Questions = append(req.Questions, staging.QuestionInput{
			Content: staging.QuestionContent{
				Topic:         q.Topic,
				Subtopic:      q.Subtopic,
				Difficulty:    q.Difficulty,
				Type:          q.Type,
				Question:      q.Question,
				Answer:        q.Answer,
				NotesForTutor: q.NotesForTutor,
			},
			Notes: q.UploadNotes,
		})
	}

	ctx, cancel, pool, svc, _, err := connectService(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	batch, err := svc.CreateBatch(ctx, req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Upload failed: %v\n", err)
		return 1
	}

	fmt.Printf("batch_uuid=%s questions=%d status=%s\n", batch.BatchUUID, batch.TotalQuestions, batch.Status)
	return 0
}
