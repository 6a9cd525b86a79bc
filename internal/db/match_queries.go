package db

import (
	"context"
	"fmt"

	"horse.fit/stagehand/internal/staging"
)

const matchColumns = `
	d.match_uuid::text,
	d.staged_question_id,
	d.existing_question_id,
	d.similarity_score,
	d.resolution::text,
	d.resolution_notes,
	d.resolved_by,
	d.resolved_at,
	d.created_at,
	d.updated_at`

func scanMatch(row rowScanner) (*staging.Match, error) {
	var m staging.Match
	var resolution string
	err := row.Scan(
		&m.MatchUUID,
		&m.StagedQuestionID,
		&m.ExistingQuestionID,
		&m.SimilarityScore,
		&resolution,
		&m.ResolutionNotes,
		&m.ResolvedBy,
		&m.ResolvedAt,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.Resolution = staging.Resolution(resolution)
	return &m, nil
}

func (s *Store) InsertMatch(ctx context.Context, match *staging.Match) error {
	const q = `
INSERT INTO qb.staging_duplicates (
	match_uuid, staged_question_id, existing_question_id,
	similarity_score, resolution, resolution_notes,
	resolved_by, resolved_at, created_at, updated_at
) VALUES (
	$1::uuid, $2, $3,
	$4, $5::qb.match_resolution, $6,
	$7, $8, $9, $10
)
`
	_, err := s.q.Exec(ctx, q,
		match.MatchUUID, match.StagedQuestionID, match.ExistingQuestionID,
		match.SimilarityScore, string(match.Resolution), match.ResolutionNotes,
		match.ResolvedBy, match.ResolvedAt, match.CreatedAt, match.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert duplicate match: %w", err)
	}
	return nil
}

func (s *Store) GetMatch(ctx context.Context, matchUUID string) (*staging.Match, error) {
	q := `SELECT` + matchColumns + `
FROM qb.staging_duplicates d
WHERE d.match_uuid = $1::uuid
`
	match, err := scanMatch(s.q.QueryRow(ctx, q, matchUUID))
	if err != nil {
		if IsNoRows(err) {
			return nil, staging.ErrNotFound
		}
		return nil, fmt.Errorf("query duplicate match: %w", err)
	}
	return match, nil
}

func (s *Store) FindMatchPair(ctx context.Context, stagedID, existingID string) (*staging.Match, error) {
	q := `SELECT` + matchColumns + `
FROM qb.staging_duplicates d
WHERE d.staged_question_id = $1
  AND d.existing_question_id = $2
`
	match, err := scanMatch(s.q.QueryRow(ctx, q, stagedID, existingID))
	if err != nil {
		if IsNoRows(err) {
			return nil, staging.ErrNotFound
		}
		return nil, fmt.Errorf("query duplicate pair: %w", err)
	}
	return match, nil
}

func (s *Store) ListMatchesByRecord(ctx context.Context, questionID string) ([]staging.Match, error) {
	q := `SELECT` + matchColumns + `
FROM qb.staging_duplicates d
WHERE d.staged_question_id = $1
ORDER BY d.similarity_score DESC, d.existing_question_id
`
	return s.listMatches(ctx, q, questionID)
}

func (s *Store) ListMatchesByBatch(ctx context.Context, batchUUID string) ([]staging.Match, error) {
	q := `SELECT` + matchColumns + `
FROM qb.staging_duplicates d
JOIN qb.staged_questions sq
	ON sq.question_id = d.staged_question_id
WHERE sq.batch_uuid = $1::uuid
ORDER BY d.staged_question_id, d.similarity_score DESC
`
	return s.listMatches(ctx, q, batchUUID)
}

func (s *Store) listMatches(ctx context.Context, q string, args ...any) ([]staging.Match, error) {
	rows, err := s.q.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query duplicate matches: %w", err)
	}
	defer rows.Close()

	var matches []staging.Match
	for rows.Next() {
		match, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan duplicate match: %w", err)
		}
		matches = append(matches, *match)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate duplicate matches: %w", err)
	}
	return matches, nil
}

func (s *Store) UpdateMatch(ctx context.Context, match *staging.Match) error {
	const q = `
UPDATE qb.staging_duplicates SET
	similarity_score = $2,
	resolution = $3::qb.match_resolution,
	resolution_notes = $4,
	resolved_by = $5,
	resolved_at = $6,
	updated_at = $7
WHERE match_uuid = $1::uuid
`
	tag, err := s.q.Exec(ctx, q,
		match.MatchUUID,
		match.SimilarityScore, string(match.Resolution), match.ResolutionNotes,
		match.ResolvedBy, match.ResolvedAt, match.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update duplicate match: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return staging.ErrNotFound
	}
	return nil
}
