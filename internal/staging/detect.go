package staging

import (
	"context"
	"fmt"
	"runtime"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"horse.fit/stagehand/internal/globaltime"
	"horse.fit/stagehand/internal/similarity"
)

// DetectionResult summarizes one detection pass over a batch.
type DetectionResult struct {
	BatchUUID    string
	Threshold    float64
	Scanned      int
	Flagged      int
	CorpusSize   int
	MatchesFound int
}

type recordCandidates struct {
	record     Record
	candidates []similarity.Candidate
}

// DetectDuplicates scores every live record of a batch against the current
// production corpus and persists the above-threshold matches. Records with
// at least one match move to status duplicate with duplicate_of pointing at
// the closest existing question. Re-running refreshes scores on existing
// match rows without discarding their resolutions, so detection is safe to
// repeat after corpus growth or content edits.
func (s *Service) DetectDuplicates(ctx context.Context, batchUUID string, threshold float64) (*DetectionResult, error) {
	if threshold == 0 {
		threshold = DefaultThreshold
	}
	if threshold < 0 || threshold > 1 {
		return nil, newValidationError("threshold", "must be within [0, 1]")
	}

	defer s.lockBatch(batchUUID)()

	batch, err := s.store.GetBatch(ctx, batchUUID)
	if err != nil {
		return nil, err
	}
	if batch.Status.Terminal() {
		return nil, &StateError{Op: "detect", Reason: fmt.Sprintf("batch %s is %s", batchUUID, batch.Status)}
	}

	corpus, err := s.store.LoadCorpus(ctx)
	if err != nil {
		return nil, &DetectionFailure{Err: fmt.Errorf("load corpus: %w", err)}
	}
	index := similarity.NewIndex()
	for _, entry := range corpus {
		index.Add(entry.QuestionID, entry.SearchText)
	}

	records, err := s.store.ListRecords(ctx, batchUUID, "")
	if err != nil {
		return nil, &DetectionFailure{Err: fmt.Errorf("list records: %w", err)}
	}
	live := records[:0]
	for _, r := range records {
		// Reviewed records keep their decision; only pending records and
		// records already flagged as duplicates are rescored.
		if r.Status == RecordPending || r.Status == RecordDuplicate {
			live = append(live, r)
		}
	}

	// Scoring is pure and read-only against the index, so it fans out;
	// persistence below stays on one goroutine inside the transaction.
	results := make([]recordCandidates, len(live))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, record := range live {
		i, record := i, record
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = recordCandidates{
				record:     record,
				candidates: index.FindCandidates(record.Content.SearchText(), threshold),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, &DetectionFailure{Err: err}
	}

	result := &DetectionResult{
		BatchUUID:  batchUUID,
		Threshold:  threshold,
		Scanned:    len(live),
		CorpusSize: index.Len(),
	}
	now := globaltime.UTC()

	err = s.store.WithTx(ctx, func(tx Store) error {
		for _, rc := range results {
			if len(rc.candidates) == 0 {
				continue
			}
			result.Flagged++
			for _, cand := range rc.candidates {
				existing, err := tx.FindMatchPair(ctx, rc.record.QuestionID, cand.RecordID)
				switch {
				case err == nil:
					existing.SimilarityScore = cand.Score
					existing.UpdatedAt = now
					if err := tx.UpdateMatch(ctx, existing); err != nil {
						return fmt.Errorf("refresh match: %w", err)
					}
				case err == ErrNotFound:
					match := &Match{
						MatchUUID:          uuid.NewString(),
						StagedQuestionID:   rc.record.QuestionID,
						ExistingQuestionID: cand.RecordID,
						SimilarityScore:    cand.Score,
						Resolution:         ResolutionPending,
						CreatedAt:          now,
						UpdatedAt:          now,
					}
					if err := tx.InsertMatch(ctx, match); err != nil {
						return fmt.Errorf("insert match: %w", err)
					}
					result.MatchesFound++
				default:
					return fmt.Errorf("find match pair: %w", err)
				}
			}

			record := rc.record
			best := rc.candidates[0]
			record.Status = RecordDuplicate
			record.DuplicateOf = &best.RecordID
			record.SimilarityScore = &best.Score
			record.UpdatedAt = now
			if err := tx.UpdateRecord(ctx, &record); err != nil {
				return fmt.Errorf("flag record: %w", err)
			}
		}
		return recountBatch(ctx, tx, batch)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("batch_uuid", batchUUID).
		Float64("threshold", threshold).
		Int("scanned", result.Scanned).
		Int("flagged", result.Flagged).
		Int("new_matches", result.MatchesFound).
		Int("corpus_size", result.CorpusSize).
		Msg("duplicate detection completed")
	return result, nil
}
