package staging

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

func newTestService(t *testing.T) (*Service, *memStore) {
	t.Helper()
	store := newMemStore()
	return NewService(store, zerolog.Nop()), store
}

func makeQuestion(topic, subtopic, question string) QuestionInput {
	return QuestionInput{Content: QuestionContent{
		Topic:      topic,
		Subtopic:   subtopic,
		Difficulty: "Basic",
		Type:       "Definition",
		Question:   question,
		Answer:     "A model answer.",
	}}
}

func seedProduction(t *testing.T, store *memStore, id, topic, subtopic, question string) {
	t.Helper()
	err := store.InsertProduction(context.Background(), &ProductionQuestion{
		QuestionID: id,
		Content: QuestionContent{
			Topic:      topic,
			Subtopic:   subtopic,
			Difficulty: "Basic",
			Type:       "Definition",
			Question:   question,
			Answer:     "A model answer.",
		},
		UploadedBy: "seed",
	})
	if err != nil {
		t.Fatalf("seed production %s: %v", id, err)
	}
}

func TestCreateBatchAssignsSequentialIDs(t *testing.T) {
	t.Parallel()
	svc, store := newTestService(t)
	ctx := context.Background()

	batch, err := svc.CreateBatch(ctx, CreateBatchRequest{
		UploadedBy: "alice",
		FileName:   "upload.json",
		Questions: []QuestionInput{
			makeQuestion("Valuation", "WACC", "What is the weighted average cost of capital?"),
			makeQuestion("Valuation", "WACC", "How do you compute the cost of equity?"),
		},
	})
	if err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}
	if batch.Status != BatchPending {
		t.Fatalf("batch status = %s, want pending", batch.Status)
	}
	if batch.TotalQuestions != 2 || batch.QuestionsPending != 2 {
		t.Fatalf("counts = %d total / %d pending, want 2/2", batch.TotalQuestions, batch.QuestionsPending)
	}

	records, err := store.ListRecords(ctx, batch.BatchUUID, "")
	if err != nil {
		t.Fatalf("ListRecords: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].QuestionID != "VALUATION-WACC-B-D-001" || records[1].QuestionID != "VALUATION-WACC-B-D-002" {
		t.Fatalf("unexpected ids %q, %q", records[0].QuestionID, records[1].QuestionID)
	}
	for _, r := range records {
		if r.Status != RecordPending {
			t.Fatalf("record %s status = %s, want pending", r.QuestionID, r.Status)
		}
	}
}

func TestCreateBatchContinuesSequenceFromCorpus(t *testing.T) {
	t.Parallel()
	svc, store := newTestService(t)
	ctx := context.Background()
	seedProduction(t, store, "VALUATION-WACC-B-D-003", "Valuation", "WACC", "What is WACC?")

	batch, err := svc.CreateBatch(ctx, CreateBatchRequest{
		UploadedBy: "alice",
		FileName:   "upload.json",
		Questions:  []QuestionInput{makeQuestion("Valuation", "WACC", "Why does WACC matter?")},
	})
	if err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}
	records, _ := store.ListRecords(ctx, batch.BatchUUID, "")
	if records[0].QuestionID != "VALUATION-WACC-B-D-004" {
		t.Fatalf("id = %q, want VALUATION-WACC-B-D-004", records[0].QuestionID)
	}
}

func TestCreateBatchValidation(t *testing.T) {
	t.Parallel()
	svc, store := newTestService(t)
	ctx := context.Background()

	bad := makeQuestion("Valuation", "WACC", "What is WACC?")
	bad.Content.Answer = "  "
	_, err := svc.CreateBatch(ctx, CreateBatchRequest{
		UploadedBy: "",
		FileName:   "upload.json",
		Questions:  []QuestionInput{bad},
	})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("want ValidationError, got %v", err)
	}
	if _, ok := verr.Fields["uploaded_by"]; !ok {
		t.Errorf("missing uploaded_by violation: %v", verr.Fields)
	}
	if _, ok := verr.Fields["questions[0].answer"]; !ok {
		t.Errorf("missing answer violation: %v", verr.Fields)
	}

	batches, _ := store.ListBatches(ctx, "", 10, 0)
	if len(batches) != 0 {
		t.Fatalf("rejected upload must not persist, got %d batches", len(batches))
	}
}

func TestApproveMovesBatchToReviewing(t *testing.T) {
	t.Parallel()
	svc, store := newTestService(t)
	ctx := context.Background()

	batch, err := svc.CreateBatch(ctx, CreateBatchRequest{
		UploadedBy: "alice",
		FileName:   "upload.json",
		Questions: []QuestionInput{
			makeQuestion("Valuation", "WACC", "What is the weighted average cost of capital?"),
			makeQuestion("Valuation", "DCF", "Walk me through a discounted cash flow analysis."),
		},
	})
	if err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}
	records, _ := store.ListRecords(ctx, batch.BatchUUID, "")

	note := "looks good"
	record, err := svc.Approve(ctx, records[0].QuestionID, "bob", &note)
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if record.Status != RecordApproved {
		t.Fatalf("record status = %s, want approved", record.Status)
	}
	if record.ReviewedBy == nil || *record.ReviewedBy != "bob" || record.ReviewedAt == nil {
		t.Fatalf("review audit fields not set: %+v", record)
	}

	batch, _ = svc.GetBatch(ctx, batch.BatchUUID)
	if batch.Status != BatchReviewing {
		t.Fatalf("batch status = %s, want reviewing", batch.Status)
	}
	if batch.ReviewStartedAt == nil {
		t.Fatal("review_started_at not stamped")
	}
	if batch.QuestionsApproved != 1 || batch.QuestionsPending != 1 {
		t.Fatalf("counts = %d approved / %d pending, want 1/1", batch.QuestionsApproved, batch.QuestionsPending)
	}

	// Approving the same record again is a no-op.
	if _, err := svc.Approve(ctx, records[0].QuestionID, "bob", nil); err != nil {
		t.Fatalf("re-approve: %v", err)
	}
	batch, _ = svc.GetBatch(ctx, batch.BatchUUID)
	if batch.QuestionsApproved != 1 {
		t.Fatalf("re-approve changed counts: %d approved", batch.QuestionsApproved)
	}
}

func TestCancelledBatchRejectsFurtherReview(t *testing.T) {
	t.Parallel()
	svc, store := newTestService(t)
	ctx := context.Background()

	batch, err := svc.CreateBatch(ctx, CreateBatchRequest{
		UploadedBy: "alice",
		FileName:   "upload.json",
		Questions:  []QuestionInput{makeQuestion("Valuation", "WACC", "What is WACC?")},
	})
	if err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}
	if _, err := svc.Cancel(ctx, batch.BatchUUID, "alice"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	records, _ := store.ListRecords(ctx, batch.BatchUUID, "")
	_, err = svc.Approve(ctx, records[0].QuestionID, "bob", nil)
	var serr *StateError
	if !errors.As(err, &serr) {
		t.Fatalf("want StateError, got %v", err)
	}

	record, _ := store.GetRecord(ctx, records[0].QuestionID)
	if record.Status != RecordPending {
		t.Fatalf("record status changed to %s after rejected approve", record.Status)
	}

	// Cancel is terminal.
	if _, err := svc.Cancel(ctx, batch.BatchUUID, "alice"); !errors.As(err, &serr) {
		t.Fatalf("re-cancel: want StateError, got %v", err)
	}
}

func TestRejectIgnoresUnresolvedMatches(t *testing.T) {
	t.Parallel()
	svc, store := newTestService(t)
	ctx := context.Background()
	seedProduction(t, store, "VALUATION-WACC-B-D-001", "Valuation", "WACC",
		"What is the weighted average cost of capital (WACC)?")

	batch, err := svc.CreateBatch(ctx, CreateBatchRequest{
		UploadedBy: "alice",
		FileName:   "upload.json",
		Questions:  []QuestionInput{makeQuestion("Valuation", "WACC", "What is the weighted average cost of capital?")},
	})
	if err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}
	if _, err := svc.DetectDuplicates(ctx, batch.BatchUUID, 0.8); err != nil {
		t.Fatalf("DetectDuplicates: %v", err)
	}

	records, _ := store.ListRecords(ctx, batch.BatchUUID, "")
	if records[0].Status != RecordDuplicate {
		t.Fatalf("record status = %s, want duplicate", records[0].Status)
	}

	record, err := svc.Reject(ctx, records[0].QuestionID, "bob", nil)
	if err != nil {
		t.Fatalf("Reject with unresolved match: %v", err)
	}
	if record.Status != RecordRejected {
		t.Fatalf("record status = %s, want rejected", record.Status)
	}
}

func TestResolveMatchIsFinal(t *testing.T) {
	t.Parallel()
	svc, store := newTestService(t)
	ctx := context.Background()
	seedProduction(t, store, "VALUATION-WACC-B-D-001", "Valuation", "WACC",
		"What is the weighted average cost of capital (WACC)?")

	batch, err := svc.CreateBatch(ctx, CreateBatchRequest{
		UploadedBy: "alice",
		FileName:   "upload.json",
		Questions:  []QuestionInput{makeQuestion("Valuation", "WACC", "What is the weighted average cost of capital?")},
	})
	if err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}
	if _, err := svc.DetectDuplicates(ctx, batch.BatchUUID, 0.8); err != nil {
		t.Fatalf("DetectDuplicates: %v", err)
	}

	records, _ := store.ListRecords(ctx, batch.BatchUUID, "")
	stagedID := records[0].QuestionID

	// Approval is blocked while the match is unresolved.
	_, err = svc.Approve(ctx, stagedID, "bob", nil)
	var serr *StateError
	if !errors.As(err, &serr) {
		t.Fatalf("approve with pending match: want StateError, got %v", err)
	}

	matches, _ := store.ListMatchesByRecord(ctx, stagedID)
	if len(matches) != 1 {
		t.Fatalf("got %d matches, want 1", len(matches))
	}
	resolved, err := svc.ResolveMatch(ctx, matches[0].MatchUUID, ResolutionKeepBoth, "bob", nil)
	if err != nil {
		t.Fatalf("ResolveMatch: %v", err)
	}
	if resolved.ResolvedBy == nil || *resolved.ResolvedBy != "bob" || resolved.ResolvedAt == nil {
		t.Fatalf("resolution audit fields not set: %+v", resolved)
	}

	// A resolved match cannot be re-resolved.
	if _, err := svc.ResolveMatch(ctx, matches[0].MatchUUID, ResolutionUseNew, "carol", nil); !errors.As(err, &serr) {
		t.Fatalf("re-resolve: want StateError, got %v", err)
	}

	// The staged record's status did not change on resolution.
	record, _ := store.GetRecord(ctx, stagedID)
	if record.Status != RecordDuplicate {
		t.Fatalf("record status = %s after resolve, want duplicate", record.Status)
	}

	// keep_both unblocks approval.
	if _, err := svc.Approve(ctx, stagedID, "bob", nil); err != nil {
		t.Fatalf("approve after keep_both: %v", err)
	}
}

func TestUseExistingBlocksApproval(t *testing.T) {
	t.Parallel()
	svc, store := newTestService(t)
	ctx := context.Background()
	seedProduction(t, store, "VALUATION-WACC-B-D-001", "Valuation", "WACC",
		"What is the weighted average cost of capital (WACC)?")

	batch, _ := svc.CreateBatch(ctx, CreateBatchRequest{
		UploadedBy: "alice",
		FileName:   "upload.json",
		Questions:  []QuestionInput{makeQuestion("Valuation", "WACC", "What is the weighted average cost of capital?")},
	})
	if _, err := svc.DetectDuplicates(ctx, batch.BatchUUID, 0.8); err != nil {
		t.Fatalf("DetectDuplicates: %v", err)
	}
	records, _ := store.ListRecords(ctx, batch.BatchUUID, "")
	matches, _ := store.ListMatchesByRecord(ctx, records[0].QuestionID)
	if _, err := svc.ResolveMatch(ctx, matches[0].MatchUUID, ResolutionUseExisting, "bob", nil); err != nil {
		t.Fatalf("ResolveMatch: %v", err)
	}

	_, err := svc.Approve(ctx, records[0].QuestionID, "bob", nil)
	var serr *StateError
	if !errors.As(err, &serr) {
		t.Fatalf("approve after use_existing: want StateError, got %v", err)
	}
	// Rejection remains the reviewer's explicit call.
	if _, err := svc.Reject(ctx, records[0].QuestionID, "bob", nil); err != nil {
		t.Fatalf("reject after use_existing: %v", err)
	}
}

func TestReplaceContentReopensMergeDecision(t *testing.T) {
	t.Parallel()
	svc, store := newTestService(t)
	ctx := context.Background()
	seedProduction(t, store, "VALUATION-WACC-B-D-001", "Valuation", "WACC",
		"What is the weighted average cost of capital (WACC)?")

	batch, _ := svc.CreateBatch(ctx, CreateBatchRequest{
		UploadedBy: "alice",
		FileName:   "upload.json",
		Questions:  []QuestionInput{makeQuestion("Valuation", "WACC", "What is the weighted average cost of capital?")},
	})
	if _, err := svc.DetectDuplicates(ctx, batch.BatchUUID, 0.8); err != nil {
		t.Fatalf("DetectDuplicates: %v", err)
	}
	records, _ := store.ListRecords(ctx, batch.BatchUUID, "")
	stagedID := records[0].QuestionID
	matches, _ := store.ListMatchesByRecord(ctx, stagedID)
	if _, err := svc.ResolveMatch(ctx, matches[0].MatchUUID, ResolutionMerge, "bob", nil); err != nil {
		t.Fatalf("ResolveMatch: %v", err)
	}

	// Merge keeps the record blocked until the merged content arrives.
	var serr *StateError
	if _, err := svc.Approve(ctx, stagedID, "bob", nil); !errors.As(err, &serr) {
		t.Fatalf("approve before merge content: want StateError, got %v", err)
	}

	merged := makeQuestion("Valuation", "WACC",
		"How is the weighted average cost of capital defined and when is it used?").Content
	record, err := svc.ReplaceContent(ctx, stagedID, merged, "bob")
	if err != nil {
		t.Fatalf("ReplaceContent: %v", err)
	}
	if record.Status != RecordPending {
		t.Fatalf("record status = %s after replace, want pending", record.Status)
	}
	if record.DuplicateOf != nil || record.SimilarityScore != nil {
		t.Fatalf("duplicate pointer not cleared: %+v", record)
	}

	matches, _ = store.ListMatchesByRecord(ctx, stagedID)
	if matches[0].Resolution != ResolutionPending {
		t.Fatalf("merge match resolution = %s after replace, want pending", matches[0].Resolution)
	}

	batch, _ = svc.GetBatch(ctx, batch.BatchUUID)
	if batch.QuestionsPending != 1 || batch.QuestionsDuplicate != 0 {
		t.Fatalf("counts = %d pending / %d duplicate, want 1/0", batch.QuestionsPending, batch.QuestionsDuplicate)
	}
}

func TestAnnotateMatchAfterResolution(t *testing.T) {
	t.Parallel()
	svc, store := newTestService(t)
	ctx := context.Background()
	seedProduction(t, store, "VALUATION-WACC-B-D-001", "Valuation", "WACC",
		"What is the weighted average cost of capital (WACC)?")

	batch, _ := svc.CreateBatch(ctx, CreateBatchRequest{
		UploadedBy: "alice",
		FileName:   "upload.json",
		Questions:  []QuestionInput{makeQuestion("Valuation", "WACC", "What is the weighted average cost of capital?")},
	})
	if _, err := svc.DetectDuplicates(ctx, batch.BatchUUID, 0.8); err != nil {
		t.Fatalf("DetectDuplicates: %v", err)
	}
	records, _ := store.ListRecords(ctx, batch.BatchUUID, "")
	matches, _ := store.ListMatchesByRecord(ctx, records[0].QuestionID)
	if _, err := svc.ResolveMatch(ctx, matches[0].MatchUUID, ResolutionKeepBoth, "bob", nil); err != nil {
		t.Fatalf("ResolveMatch: %v", err)
	}

	annotated, err := svc.AnnotateMatch(ctx, matches[0].MatchUUID, "carol", "verified against the 2024 syllabus")
	if err != nil {
		t.Fatalf("AnnotateMatch: %v", err)
	}
	if annotated.ResolutionNotes == nil || annotated.Resolution != ResolutionKeepBoth {
		t.Fatalf("annotation lost resolution state: %+v", annotated)
	}
}

func TestListBatchesFiltersByStatus(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := context.Background()

	first, _ := svc.CreateBatch(ctx, CreateBatchRequest{
		UploadedBy: "alice", FileName: "a.json",
		Questions: []QuestionInput{makeQuestion("Valuation", "WACC", "What is WACC?")},
	})
	second, _ := svc.CreateBatch(ctx, CreateBatchRequest{
		UploadedBy: "alice", FileName: "b.json",
		Questions: []QuestionInput{makeQuestion("Valuation", "DCF", "What is a DCF?")},
	})
	if _, err := svc.Cancel(ctx, second.BatchUUID, "alice"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	pending, err := svc.ListBatches(ctx, BatchPending, 10, 0)
	if err != nil {
		t.Fatalf("ListBatches: %v", err)
	}
	if len(pending) != 1 || pending[0].BatchUUID != first.BatchUUID {
		t.Fatalf("pending filter returned %+v", pending)
	}
	all, _ := svc.ListBatches(ctx, "", 10, 0)
	if len(all) != 2 {
		t.Fatalf("got %d batches, want 2", len(all))
	}
}
