package db

import (
	"context"
	"fmt"

	"horse.fit/stagehand/internal/staging"
)

const batchColumns = `
	batch_uuid::text,
	uploaded_by,
	file_name,
	total_questions,
	questions_pending,
	questions_approved,
	questions_rejected,
	questions_duplicate,
	status::text,
	notes,
	uploaded_at,
	review_started_at,
	review_completed_at,
	reviewed_by,
	import_started_at,
	import_completed_at,
	created_at,
	updated_at`

func scanBatch(row rowScanner) (*staging.Batch, error) {
	var b staging.Batch
	var status string
	err := row.Scan(
		&b.BatchUUID,
		&b.UploadedBy,
		&b.FileName,
		&b.TotalQuestions,
		&b.QuestionsPending,
		&b.QuestionsApproved,
		&b.QuestionsRejected,
		&b.QuestionsDuplicate,
		&status,
		&b.Notes,
		&b.UploadedAt,
		&b.ReviewStartedAt,
		&b.ReviewCompletedAt,
		&b.ReviewedBy,
		&b.ImportStartedAt,
		&b.ImportCompletedAt,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	b.Status = staging.BatchStatus(status)
	return &b, nil
}

func (s *Store) InsertBatch(ctx context.Context, batch *staging.Batch) error {
	const q = `
INSERT INTO qb.upload_batches (
	batch_uuid, uploaded_by, file_name,
	total_questions, questions_pending, questions_approved,
	questions_rejected, questions_duplicate,
	status, notes, uploaded_at,
	review_started_at, review_completed_at, reviewed_by,
	import_started_at, import_completed_at,
	created_at, updated_at
) VALUES (
	$1::uuid, $2, $3,
	$4, $5, $6,
	$7, $8,
	$9::qb.batch_status, $10, $11,
	$12, $13, $14,
	$15, $16,
	$17, $18
)
`
	_, err := s.q.Exec(ctx, q,
		batch.BatchUUID, batch.UploadedBy, batch.FileName,
		batch.TotalQuestions, batch.QuestionsPending, batch.QuestionsApproved,
		batch.QuestionsRejected, batch.QuestionsDuplicate,
		string(batch.Status), batch.Notes, batch.UploadedAt,
		batch.ReviewStartedAt, batch.ReviewCompletedAt, batch.ReviewedBy,
		batch.ImportStartedAt, batch.ImportCompletedAt,
		batch.CreatedAt, batch.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert upload batch: %w", err)
	}
	return nil
}

func (s *Store) GetBatch(ctx context.Context, batchUUID string) (*staging.Batch, error) {
	q := `SELECT` + batchColumns + `
FROM qb.upload_batches
WHERE batch_uuid = $1::uuid
`
	batch, err := scanBatch(s.q.QueryRow(ctx, q, batchUUID))
	if err != nil {
		if IsNoRows(err) {
			return nil, staging.ErrNotFound
		}
		return nil, fmt.Errorf("query upload batch: %w", err)
	}
	return batch, nil
}

func (s *Store) ListBatches(ctx context.Context, status staging.BatchStatus, limit, offset int) ([]staging.Batch, error) {
	q := `SELECT` + batchColumns + `
FROM qb.upload_batches
WHERE ($1::text = '' OR status::text = $1::text)
ORDER BY created_at DESC, batch_id DESC
LIMIT $2 OFFSET $3
`
	rows, err := s.q.Query(ctx, q, string(status), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query upload batches: %w", err)
	}
	defer rows.Close()

	var batches []staging.Batch
	for rows.Next() {
		batch, err := scanBatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan upload batch: %w", err)
		}
		batches = append(batches, *batch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate upload batches: %w", err)
	}
	return batches, nil
}

func (s *Store) UpdateBatch(ctx context.Context, batch *staging.Batch) error {
	const q = `
UPDATE qb.upload_batches SET
	total_questions = $2,
	questions_pending = $3,
	questions_approved = $4,
	questions_rejected = $5,
	questions_duplicate = $6,
	status = $7::qb.batch_status,
	notes = $8,
	review_started_at = $9,
	review_completed_at = $10,
	reviewed_by = $11,
	import_started_at = $12,
	import_completed_at = $13,
	updated_at = $14
WHERE batch_uuid = $1::uuid
`
	tag, err := s.q.Exec(ctx, q,
		batch.BatchUUID,
		batch.TotalQuestions, batch.QuestionsPending, batch.QuestionsApproved,
		batch.QuestionsRejected, batch.QuestionsDuplicate,
		string(batch.Status), batch.Notes,
		batch.ReviewStartedAt, batch.ReviewCompletedAt, batch.ReviewedBy,
		batch.ImportStartedAt, batch.ImportCompletedAt,
		batch.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update upload batch: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return staging.ErrNotFound
	}
	return nil
}
