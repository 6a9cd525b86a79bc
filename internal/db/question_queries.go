package db

import (
	"context"
	"fmt"

	"horse.fit/stagehand/internal/staging"
)

const questionColumns = `
	question_id,
	topic,
	subtopic,
	difficulty,
	question_type,
	question_text,
	answer_text,
	notes_for_tutor,
	uploaded_by,
	created_at,
	updated_at`

func scanQuestion(row rowScanner) (*staging.ProductionQuestion, error) {
	var q staging.ProductionQuestion
	err := row.Scan(
		&q.QuestionID,
		&q.Content.Topic,
		&q.Content.Subtopic,
		&q.Content.Difficulty,
		&q.Content.Type,
		&q.Content.Question,
		&q.Content.Answer,
		&q.Content.NotesForTutor,
		&q.UploadedBy,
		&q.CreatedAt,
		&q.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// LoadCorpus streams every production question as similarity index input.
func (s *Store) LoadCorpus(ctx context.Context) ([]staging.CorpusEntry, error) {
	const q = `
SELECT
	question_id,
	topic || ' ' || subtopic || ' ' || question_text
FROM qb.all_questions
ORDER BY question_id
`
	rows, err := s.q.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query corpus: %w", err)
	}
	defer rows.Close()

	var entries []staging.CorpusEntry
	for rows.Next() {
		var entry staging.CorpusEntry
		if err := rows.Scan(&entry.QuestionID, &entry.SearchText); err != nil {
			return nil, fmt.Errorf("scan corpus entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate corpus: %w", err)
	}
	return entries, nil
}

func (s *Store) GetProduction(ctx context.Context, questionID string) (*staging.ProductionQuestion, error) {
	q := `SELECT` + questionColumns + `
FROM qb.all_questions
WHERE question_id = $1
`
	question, err := scanQuestion(s.q.QueryRow(ctx, q, questionID))
	if err != nil {
		if IsNoRows(err) {
			return nil, staging.ErrNotFound
		}
		return nil, fmt.Errorf("query production question: %w", err)
	}
	return question, nil
}

func (s *Store) InsertProduction(ctx context.Context, question *staging.ProductionQuestion) error {
	const q = `
INSERT INTO qb.all_questions (
	question_id, topic, subtopic, difficulty, question_type,
	question_text, answer_text, notes_for_tutor,
	uploaded_by, created_at, updated_at
) VALUES (
	$1, $2, $3, $4, $5,
	$6, $7, $8,
	$9, $10, $11
)
`
	_, err := s.q.Exec(ctx, q,
		question.QuestionID,
		question.Content.Topic, question.Content.Subtopic,
		question.Content.Difficulty, question.Content.Type,
		question.Content.Question, question.Content.Answer, question.Content.NotesForTutor,
		question.UploadedBy, question.CreatedAt, question.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return staging.ErrDuplicateID
		}
		return fmt.Errorf("insert production question: %w", err)
	}
	return nil
}

func (s *Store) UpdateProduction(ctx context.Context, question *staging.ProductionQuestion) error {
	const q = `
UPDATE qb.all_questions SET
	topic = $2,
	subtopic = $3,
	difficulty = $4,
	question_type = $5,
	question_text = $6,
	answer_text = $7,
	notes_for_tutor = $8,
	updated_at = $9
WHERE question_id = $1
`
	tag, err := s.q.Exec(ctx, q,
		question.QuestionID,
		question.Content.Topic, question.Content.Subtopic,
		question.Content.Difficulty, question.Content.Type,
		question.Content.Question, question.Content.Answer, question.Content.NotesForTutor,
		question.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update production question: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return staging.ErrNotFound
	}
	return nil
}

// MaxSequence scans both staged and production identifiers so a new upload
// never reuses a sequence number that is still in review.
func (s *Store) MaxSequence(ctx context.Context, baseID string) (int, error) {
	const q = `
SELECT COALESCE(MAX(substring(question_id FROM '([0-9]+)$')::integer), 0)
FROM (
	SELECT question_id FROM qb.staged_questions WHERE question_id LIKE $1 || '-%'
	UNION ALL
	SELECT question_id FROM qb.all_questions WHERE question_id LIKE $1 || '-%'
) AS ids
`
	var max int
	if err := s.q.QueryRow(ctx, q, baseID).Scan(&max); err != nil {
		return 0, fmt.Errorf("query max sequence: %w", err)
	}
	return max, nil
}

func (s *Store) Stats(ctx context.Context) (*staging.Stats, error) {
	stats := &staging.Stats{
		BatchesByStatus:     make(map[staging.BatchStatus]int),
		RecordsByStatus:     make(map[staging.RecordStatus]int),
		MatchesByResolution: make(map[staging.Resolution]int),
	}

	rows, err := s.q.Query(ctx, `SELECT status::text, COUNT(*) FROM qb.upload_batches GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("query batch stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan batch stats: %w", err)
		}
		stats.BatchesByStatus[staging.BatchStatus(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate batch stats: %w", err)
	}

	recordRows, err := s.q.Query(ctx, `SELECT status::text, COUNT(*) FROM qb.staged_questions GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("query record stats: %w", err)
	}
	defer recordRows.Close()
	for recordRows.Next() {
		var status string
		var count int
		if err := recordRows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan record stats: %w", err)
		}
		stats.RecordsByStatus[staging.RecordStatus(status)] = count
	}
	if err := recordRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate record stats: %w", err)
	}

	matchRows, err := s.q.Query(ctx, `SELECT resolution::text, COUNT(*) FROM qb.staging_duplicates GROUP BY resolution`)
	if err != nil {
		return nil, fmt.Errorf("query match stats: %w", err)
	}
	defer matchRows.Close()
	for matchRows.Next() {
		var resolution string
		var count int
		if err := matchRows.Scan(&resolution, &count); err != nil {
			return nil, fmt.Errorf("scan match stats: %w", err)
		}
		stats.MatchesByResolution[staging.Resolution(resolution)] = count
	}
	if err := matchRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate match stats: %w", err)
	}
	stats.PendingMatches = stats.MatchesByResolution[staging.ResolutionPending]

	err = s.q.QueryRow(ctx, `SELECT COUNT(*) FROM qb.all_questions`).Scan(&stats.ProductionTotal)
	if err != nil {
		return nil, fmt.Errorf("query production total: %w", err)
	}
	return stats, nil
}
