package db

import (
	"context"
	"fmt"

	"horse.fit/stagehand/internal/staging"
)

const recordColumns = `
	question_id,
	batch_uuid::text,
	topic,
	subtopic,
	difficulty,
	question_type,
	question_text,
	answer_text,
	notes_for_tutor,
	status::text,
	duplicate_of,
	similarity_score,
	review_notes,
	reviewed_by,
	reviewed_at,
	uploaded_by,
	upload_notes,
	created_at,
	updated_at`

func scanRecord(row rowScanner) (*staging.Record, error) {
	var r staging.Record
	var status string
	err := row.Scan(
		&r.QuestionID,
		&r.BatchUUID,
		&r.Content.Topic,
		&r.Content.Subtopic,
		&r.Content.Difficulty,
		&r.Content.Type,
		&r.Content.Question,
		&r.Content.Answer,
		&r.Content.NotesForTutor,
		&status,
		&r.DuplicateOf,
		&r.SimilarityScore,
		&r.ReviewNotes,
		&r.ReviewedBy,
		&r.ReviewedAt,
		&r.UploadedBy,
		&r.UploadNotes,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Status = staging.RecordStatus(status)
	return &r, nil
}

func (s *Store) InsertRecords(ctx context.Context, records []staging.Record) error {
	const q = `
INSERT INTO qb.staged_questions (
	question_id, batch_uuid,
	topic, subtopic, difficulty, question_type,
	question_text, answer_text, notes_for_tutor,
	status, duplicate_of, similarity_score,
	review_notes, reviewed_by, reviewed_at,
	uploaded_by, upload_notes,
	created_at, updated_at
) VALUES (
	$1, $2::uuid,
	$3, $4, $5, $6,
	$7, $8, $9,
	$10::qb.staged_status, $11, $12,
	$13, $14, $15,
	$16, $17,
	$18, $19
)
`
	for _, r := range records {
		_, err := s.q.Exec(ctx, q,
			r.QuestionID, r.BatchUUID,
			r.Content.Topic, r.Content.Subtopic, r.Content.Difficulty, r.Content.Type,
			r.Content.Question, r.Content.Answer, r.Content.NotesForTutor,
			string(r.Status), r.DuplicateOf, r.SimilarityScore,
			r.ReviewNotes, r.ReviewedBy, r.ReviewedAt,
			r.UploadedBy, r.UploadNotes,
			r.CreatedAt, r.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert staged question %s: %w", r.QuestionID, err)
		}
	}
	return nil
}

func (s *Store) GetRecord(ctx context.Context, questionID string) (*staging.Record, error) {
	q := `SELECT` + recordColumns + `
FROM qb.staged_questions
WHERE question_id = $1
`
	record, err := scanRecord(s.q.QueryRow(ctx, q, questionID))
	if err != nil {
		if IsNoRows(err) {
			return nil, staging.ErrNotFound
		}
		return nil, fmt.Errorf("query staged question: %w", err)
	}
	return record, nil
}

func (s *Store) ListRecords(ctx context.Context, batchUUID string, status staging.RecordStatus) ([]staging.Record, error) {
	q := `SELECT` + recordColumns + `
FROM qb.staged_questions
WHERE batch_uuid = $1::uuid
  AND ($2::text = '' OR status::text = $2::text)
ORDER BY question_id
`
	rows, err := s.q.Query(ctx, q, batchUUID, string(status))
	if err != nil {
		return nil, fmt.Errorf("query staged questions: %w", err)
	}
	defer rows.Close()

	var records []staging.Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan staged question: %w", err)
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate staged questions: %w", err)
	}
	return records, nil
}

func (s *Store) UpdateRecord(ctx context.Context, record *staging.Record) error {
	const q = `
UPDATE qb.staged_questions SET
	topic = $2,
	subtopic = $3,
	difficulty = $4,
	question_type = $5,
	question_text = $6,
	answer_text = $7,
	notes_for_tutor = $8,
	status = $9::qb.staged_status,
	duplicate_of = $10,
	similarity_score = $11,
	review_notes = $12,
	reviewed_by = $13,
	reviewed_at = $14,
	upload_notes = $15,
	updated_at = $16
WHERE question_id = $1
`
	tag, err := s.q.Exec(ctx, q,
		record.QuestionID,
		record.Content.Topic, record.Content.Subtopic, record.Content.Difficulty,
		record.Content.Type, record.Content.Question, record.Content.Answer,
		record.Content.NotesForTutor,
		string(record.Status), record.DuplicateOf, record.SimilarityScore,
		record.ReviewNotes, record.ReviewedBy, record.ReviewedAt,
		record.UploadNotes, record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update staged question: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return staging.ErrNotFound
	}
	return nil
}
