package staging

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"horse.fit/stagehand/internal/globaltime"
	"horse.fit/stagehand/internal/idgen"
)

// DefaultThreshold is the similarity floor used when a detection request
// does not supply one.
const DefaultThreshold = 0.80

// Service orchestrates the staging workflow over a Store. All mutations of
// one batch are serialized through a per-batch lock, so reviewers racing on
// the same batch observe each other's writes in order.
type Service struct {
	store  Store
	logger zerolog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewService(store Store, logger zerolog.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger.With().Str("component", "staging").Logger(),
		locks:  make(map[string]*sync.Mutex),
	}
}

// lockBatch acquires the serialization lock for one batch and returns the
// release func.
func (s *Service) lockBatch(batchUUID string) func() {
	s.mu.Lock()
	l, ok := s.locks[batchUUID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[batchUUID] = l
	}
	s.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// QuestionInput is one candidate question inside a batch upload.
type QuestionInput struct {
	Content QuestionContent
	Notes   *string
}

// CreateBatchRequest is the payload for staging a new batch.
type CreateBatchRequest struct {
	UploadedBy string
	FileName   string
	Notes      *string
	Questions  []QuestionInput
}

func validateContent(prefix string, c QuestionContent, fields map[string]string) {
	required := map[string]string{
		"topic":      c.Topic,
		"subtopic":   c.Subtopic,
		"difficulty": c.Difficulty,
		"type":       c.Type,
		"question":   c.Question,
		"answer":     c.Answer,
	}
	for name, value := range required {
		if strings.TrimSpace(value) == "" {
			fields[prefix+name] = "must not be empty"
		}
	}
}

// CreateBatch validates the upload, assigns semantic question identifiers
// and inserts the batch with every record in status pending. The insert is
// atomic: a bad record rejects the whole upload.
func (s *Service) CreateBatch(ctx context.Context, req CreateBatchRequest) (*Batch, error) {
	fields := make(map[string]string)
	if strings.TrimSpace(req.UploadedBy) == "" {
		fields["uploaded_by"] = "must not be empty"
	}
	if strings.TrimSpace(req.FileName) == "" {
		fields["file_name"] = "must not be empty"
	}
	if len(req.Questions) == 0 {
		fields["questions"] = "must contain at least one question"
	}
	for i, q := range req.Questions {
		validateContent(fmt.Sprintf("questions[%d].", i), q.Content, fields)
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	now := globaltime.UTC()
	batch := &Batch{
		BatchUUID:      uuid.NewString(),
		UploadedBy:     req.UploadedBy,
		FileName:       req.FileName,
		TotalQuestions: len(req.Questions),
		Status:         BatchPending,
		Notes:          req.Notes,
		UploadedAt:     now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	// Sequence tracker per base id, so several questions sharing a base
	// within one upload get consecutive numbers without re-querying.
	seqs := make(map[string]int)
	records := make([]Record, 0, len(req.Questions))
	for _, q := range req.Questions {
		base := idgen.BaseID(q.Content.Topic, q.Content.Subtopic, q.Content.Difficulty, q.Content.Type)
		seq, tracked := seqs[base]
		if !tracked {
			max, err := s.store.MaxSequence(ctx, base)
			if err != nil {
				return nil, fmt.Errorf("next sequence for %s: %w", base, err)
			}
			seq = max
		}
		seq++
		seqs[base] = seq

		records = append(records, Record{
			QuestionID:  idgen.FormatID(base, seq),
			BatchUUID:   batch.BatchUUID,
			Content:     q.Content,
			Status:      RecordPending,
			UploadedBy:  req.UploadedBy,
			UploadNotes: q.Notes,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}
	batch.QuestionsPending = len(records)

	err := s.store.WithTx(ctx, func(tx Store) error {
		if err := tx.InsertBatch(ctx, batch); err != nil {
			return fmt.Errorf("insert batch: %w", err)
		}
		if err := tx.InsertRecords(ctx, records); err != nil {
			return fmt.Errorf("insert records: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("batch_uuid", batch.BatchUUID).
		Str("uploaded_by", batch.UploadedBy).
		Int("questions", len(records)).
		Msg("batch staged")
	return batch, nil
}

func (s *Service) GetBatch(ctx context.Context, batchUUID string) (*Batch, error) {
	return s.store.GetBatch(ctx, batchUUID)
}

func (s *Service) ListBatches(ctx context.Context, status BatchStatus, limit, offset int) ([]Batch, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.ListBatches(ctx, status, limit, offset)
}

func (s *Service) ListRecords(ctx context.Context, batchUUID string, status RecordStatus) ([]Record, error) {
	if _, err := s.store.GetBatch(ctx, batchUUID); err != nil {
		return nil, err
	}
	return s.store.ListRecords(ctx, batchUUID, status)
}

func (s *Service) GetRecord(ctx context.Context, questionID string) (*Record, error) {
	return s.store.GetRecord(ctx, questionID)
}

func (s *Service) ListMatches(ctx context.Context, questionID string) ([]Match, error) {
	if _, err := s.store.GetRecord(ctx, questionID); err != nil {
		return nil, err
	}
	return s.store.ListMatchesByRecord(ctx, questionID)
}

// ListBatchMatches returns every duplicate match across a batch's records,
// the reviewer's batch-level worklist.
func (s *Service) ListBatchMatches(ctx context.Context, batchUUID string) ([]Match, error) {
	if _, err := s.store.GetBatch(ctx, batchUUID); err != nil {
		return nil, err
	}
	return s.store.ListMatchesByBatch(ctx, batchUUID)
}

func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	return s.store.Stats(ctx)
}

// recountBatch recomputes the batch tallies from record statuses and writes
// them back. Callers hold the batch lock.
func recountBatch(ctx context.Context, tx Store, batch *Batch) error {
	records, err := tx.ListRecords(ctx, batch.BatchUUID, "")
	if err != nil {
		return fmt.Errorf("list records for recount: %w", err)
	}
	counts := countRecords(records)
	batch.TotalQuestions = counts.Total
	batch.QuestionsPending = counts.Pending
	batch.QuestionsApproved = counts.Approved
	batch.QuestionsRejected = counts.Rejected
	batch.QuestionsDuplicate = counts.Duplicate
	batch.UpdatedAt = globaltime.UTC()
	return tx.UpdateBatch(ctx, batch)
}

// RecountBatch re-derives the batch counters from record statuses. Exposed
// for repair after out-of-band writes.
func (s *Service) RecountBatch(ctx context.Context, batchUUID string) (*Batch, error) {
	defer s.lockBatch(batchUUID)()
	batch, err := s.store.GetBatch(ctx, batchUUID)
	if err != nil {
		return nil, err
	}
	if err := recountBatch(ctx, s.store, batch); err != nil {
		return nil, err
	}
	return batch, nil
}

// Approve moves a staged question to approved. A record carrying duplicate
// matches can only be approved once every match is resolved and none of the
// resolutions keep the existing question or await merged content.
func (s *Service) Approve(ctx context.Context, questionID, reviewer string, notes *string) (*Record, error) {
	return s.review(ctx, questionID, reviewer, notes, RecordApproved)
}

// Reject moves a staged question to rejected. Rejection is always allowed
// while the batch is live, duplicate matches notwithstanding.
func (s *Service) Reject(ctx context.Context, questionID, reviewer string, notes *string) (*Record, error) {
	return s.review(ctx, questionID, reviewer, notes, RecordRejected)
}

func (s *Service) review(ctx context.Context, questionID, reviewer string, notes *string, target RecordStatus) (*Record, error) {
	if strings.TrimSpace(reviewer) == "" {
		return nil, newValidationError("reviewed_by", "must not be empty")
	}
	record, err := s.store.GetRecord(ctx, questionID)
	if err != nil {
		return nil, err
	}
	defer s.lockBatch(record.BatchUUID)()

	// Reload under the lock; another reviewer may have moved it.
	record, err = s.store.GetRecord(ctx, questionID)
	if err != nil {
		return nil, err
	}
	batch, err := s.store.GetBatch(ctx, record.BatchUUID)
	if err != nil {
		return nil, err
	}

	op := "approve"
	if target == RecordRejected {
		op = "reject"
	}
	if batch.Status.Terminal() {
		return nil, &StateError{Op: op, Reason: fmt.Sprintf("batch %s is %s", batch.BatchUUID, batch.Status)}
	}
	if record.Status == target {
		return record, nil
	}
	if record.Status == RecordImported {
		return nil, &StateError{Op: op, Reason: fmt.Sprintf("record %s is already imported", questionID)}
	}
	if target == RecordApproved {
		if record.Status == RecordRejected {
			return nil, &StateError{Op: op, Reason: fmt.Sprintf("record %s is rejected", questionID)}
		}
		matches, err := s.store.ListMatchesByRecord(ctx, questionID)
		if err != nil {
			return nil, err
		}
		if reason := approvalBlocker(matches); reason != "" {
			return nil, &StateError{Op: op, Reason: reason}
		}
	}

	now := globaltime.UTC()
	record.Status = target
	record.ReviewedBy = &reviewer
	record.ReviewedAt = &now
	record.ReviewNotes = notes
	record.UpdatedAt = now

	err = s.store.WithTx(ctx, func(tx Store) error {
		if err := tx.UpdateRecord(ctx, record); err != nil {
			return fmt.Errorf("update record: %w", err)
		}
		if batch.Status == BatchPending {
			batch.Status = BatchReviewing
			batch.ReviewStartedAt = &now
			batch.ReviewedBy = &reviewer
		}
		return recountBatch(ctx, tx, batch)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("question_id", questionID).
		Str("batch_uuid", batch.BatchUUID).
		Str("status", string(target)).
		Str("reviewed_by", reviewer).
		Msg("record reviewed")
	return record, nil
}

// ResolveMatch records a reviewer decision on one duplicate match. A match
// resolves exactly once; later attempts fail with a StateError. Resolving a
// match never flips the staged record's status, that stays an explicit
// approve or reject.
func (s *Service) ResolveMatch(ctx context.Context, matchUUID string, resolution Resolution, resolver string, notes *string) (*Match, error) {
	if !validResolution(resolution) {
		return nil, newValidationError("resolution", fmt.Sprintf("unknown resolution %q", resolution))
	}
	if strings.TrimSpace(resolver) == "" {
		return nil, newValidationError("resolved_by", "must not be empty")
	}
	match, err := s.store.GetMatch(ctx, matchUUID)
	if err != nil {
		return nil, err
	}
	record, err := s.store.GetRecord(ctx, match.StagedQuestionID)
	if err != nil {
		return nil, err
	}
	defer s.lockBatch(record.BatchUUID)()

	match, err = s.store.GetMatch(ctx, matchUUID)
	if err != nil {
		return nil, err
	}
	batch, err := s.store.GetBatch(ctx, record.BatchUUID)
	if err != nil {
		return nil, err
	}
	if batch.Status.Terminal() {
		return nil, &StateError{Op: "resolve", Reason: fmt.Sprintf("batch %s is %s", batch.BatchUUID, batch.Status)}
	}
	if match.Resolution != ResolutionPending {
		return nil, &StateError{Op: "resolve", Reason: fmt.Sprintf("match %s already resolved as %s", matchUUID, match.Resolution)}
	}

	now := globaltime.UTC()
	match.Resolution = resolution
	match.ResolutionNotes = notes
	match.ResolvedBy = &resolver
	match.ResolvedAt = &now
	match.UpdatedAt = now
	if err := s.store.UpdateMatch(ctx, match); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("match_uuid", matchUUID).
		Str("staged", match.StagedQuestionID).
		Str("existing", match.ExistingQuestionID).
		Str("resolution", string(resolution)).
		Msg("match resolved")
	return match, nil
}

// AnnotateMatch appends an audit note to a match. Notes stay writable after
// resolution; the decision itself does not.
func (s *Service) AnnotateMatch(ctx context.Context, matchUUID, author, note string) (*Match, error) {
	if strings.TrimSpace(note) == "" {
		return nil, newValidationError("note", "must not be empty")
	}
	match, err := s.store.GetMatch(ctx, matchUUID)
	if err != nil {
		return nil, err
	}
	stamped := fmt.Sprintf("[%s %s] %s", globaltime.UTC().Format("2006-01-02 15:04"), author, note)
	if match.ResolutionNotes != nil && *match.ResolutionNotes != "" {
		stamped = *match.ResolutionNotes + "\n" + stamped
	}
	match.ResolutionNotes = &stamped
	match.UpdatedAt = globaltime.UTC()
	if err := s.store.UpdateMatch(ctx, match); err != nil {
		return nil, err
	}
	return match, nil
}

// ReplaceContent swaps a staged question's content for reviewer-merged
// content and sends the record back through detection: status returns to
// pending, the duplicate pointer clears, and any merge resolutions on its
// matches reopen so the merged text gets a fresh decision.
func (s *Service) ReplaceContent(ctx context.Context, questionID string, content QuestionContent, editor string) (*Record, error) {
	fields := make(map[string]string)
	validateContent("", content, fields)
	if strings.TrimSpace(editor) == "" {
		fields["edited_by"] = "must not be empty"
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	record, err := s.store.GetRecord(ctx, questionID)
	if err != nil {
		return nil, err
	}
	defer s.lockBatch(record.BatchUUID)()

	record, err = s.store.GetRecord(ctx, questionID)
	if err != nil {
		return nil, err
	}
	batch, err := s.store.GetBatch(ctx, record.BatchUUID)
	if err != nil {
		return nil, err
	}
	if batch.Status.Terminal() {
		return nil, &StateError{Op: "replace", Reason: fmt.Sprintf("batch %s is %s", batch.BatchUUID, batch.Status)}
	}
	if record.Status == RecordImported {
		return nil, &StateError{Op: "replace", Reason: fmt.Sprintf("record %s is already imported", questionID)}
	}

	now := globaltime.UTC()
	record.Content = content
	record.Status = RecordPending
	record.DuplicateOf = nil
	record.SimilarityScore = nil
	record.ReviewedBy = &editor
	record.ReviewedAt = &now
	record.UpdatedAt = now

	err = s.store.WithTx(ctx, func(tx Store) error {
		if err := tx.UpdateRecord(ctx, record); err != nil {
			return fmt.Errorf("update record: %w", err)
		}
		matches, err := tx.ListMatchesByRecord(ctx, questionID)
		if err != nil {
			return err
		}
		for i := range matches {
			if matches[i].Resolution != ResolutionMerge {
				continue
			}
			matches[i].Resolution = ResolutionPending
			matches[i].ResolvedBy = nil
			matches[i].ResolvedAt = nil
			matches[i].UpdatedAt = now
			if err := tx.UpdateMatch(ctx, &matches[i]); err != nil {
				return err
			}
		}
		return recountBatch(ctx, tx, batch)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("question_id", questionID).
		Str("edited_by", editor).
		Msg("record content replaced, returned to pending")
	return record, nil
}

// Cancel abandons a live batch. Staged records keep their statuses for
// audit, but every later mutation of the batch fails with a StateError.
func (s *Service) Cancel(ctx context.Context, batchUUID, actor string) (*Batch, error) {
	defer s.lockBatch(batchUUID)()
	batch, err := s.store.GetBatch(ctx, batchUUID)
	if err != nil {
		return nil, err
	}
	if !canTransitionBatch(batch.Status, BatchCancelled) {
		return nil, &StateError{Op: "cancel", Reason: fmt.Sprintf("batch %s is %s", batchUUID, batch.Status)}
	}
	now := globaltime.UTC()
	batch.Status = BatchCancelled
	if actor != "" {
		batch.ReviewedBy = &actor
	}
	batch.UpdatedAt = now
	if err := s.store.UpdateBatch(ctx, batch); err != nil {
		return nil, err
	}
	s.logger.Info().Str("batch_uuid", batchUUID).Str("cancelled_by", actor).Msg("batch cancelled")
	return batch, nil
}
