package staging

import (
	"context"
	"errors"
	"fmt"

	"horse.fit/stagehand/internal/globaltime"
)

// ImportResult summarizes one import commit.
type ImportResult struct {
	BatchUUID   string
	Imported    []string
	Replaced    []string
	BatchStatus BatchStatus
}

// ImportApproved promotes every approved record of a batch into production
// in one transaction. Records whose use_new resolutions target an existing
// question follow the policy: replace overwrites the existing row in place,
// shadow inserts the new question alongside it. Any identifier collision
// aborts the whole commit with a PartialFailureError and the batch is left
// exactly as before. Once every record has reached a terminal status the
// batch completes; importing a completed batch again is a no-op.
func (s *Service) ImportApproved(ctx context.Context, batchUUID string, policy ImportPolicy) (*ImportResult, error) {
	switch policy {
	case "":
		policy = PolicyReplace
	case PolicyReplace, PolicyShadow:
	default:
		return nil, newValidationError("policy", fmt.Sprintf("unknown import policy %q", policy))
	}

	defer s.lockBatch(batchUUID)()

	batch, err := s.store.GetBatch(ctx, batchUUID)
	if err != nil {
		return nil, err
	}
	if batch.Status == BatchCancelled {
		return nil, &StateError{Op: "import", Reason: fmt.Sprintf("batch %s is cancelled", batchUUID)}
	}
	result := &ImportResult{BatchUUID: batchUUID, BatchStatus: batch.Status}
	if batch.Status == BatchCompleted {
		return result, nil
	}

	now := globaltime.UTC()
	err = s.store.WithTx(ctx, func(tx Store) error {
		approved, err := tx.ListRecords(ctx, batchUUID, RecordApproved)
		if err != nil {
			return fmt.Errorf("list approved: %w", err)
		}
		if len(approved) > 0 {
			batch.ImportStartedAt = &now
		}

		var collisions []string
		for _, record := range approved {
			matches, err := tx.ListMatchesByRecord(ctx, record.QuestionID)
			if err != nil {
				return err
			}
			if reason := approvalBlocker(matches); reason != "" {
				return &StateError{Op: "import", Reason: fmt.Sprintf("record %s: %s", record.QuestionID, reason)}
			}

			replaced := false
			if policy == PolicyReplace {
				for _, m := range matches {
					if m.Resolution != ResolutionUseNew {
						continue
					}
					target, err := tx.GetProduction(ctx, m.ExistingQuestionID)
					if err != nil {
						if errors.Is(err, ErrNotFound) {
							// Existing question vanished since detection;
							// fall through to a plain insert.
							continue
						}
						return fmt.Errorf("load replace target: %w", err)
					}
					target.Content = record.Content
					target.UpdatedAt = now
					if err := tx.UpdateProduction(ctx, target); err != nil {
						return fmt.Errorf("replace %s: %w", target.QuestionID, err)
					}
					result.Replaced = append(result.Replaced, target.QuestionID)
					replaced = true
				}
			}

			if !replaced {
				q := &ProductionQuestion{
					QuestionID: record.QuestionID,
					Content:    record.Content,
					UploadedBy: record.UploadedBy,
					CreatedAt:  now,
					UpdatedAt:  now,
				}
				if err := tx.InsertProduction(ctx, q); err != nil {
					if errors.Is(err, ErrDuplicateID) {
						collisions = append(collisions, record.QuestionID)
						continue
					}
					return fmt.Errorf("insert %s: %w", record.QuestionID, err)
				}
			}

			record.Status = RecordImported
			record.UpdatedAt = now
			if err := tx.UpdateRecord(ctx, &record); err != nil {
				return fmt.Errorf("mark imported: %w", err)
			}
			result.Imported = append(result.Imported, record.QuestionID)
		}
		if len(collisions) > 0 {
			return &PartialFailureError{RecordIDs: collisions}
		}

		if err := recountBatch(ctx, tx, batch); err != nil {
			return err
		}
		if len(approved) > 0 {
			batch.ImportCompletedAt = &now
		}
		if batch.QuestionsPending == 0 && batch.QuestionsDuplicate == 0 && canTransitionBatch(batch.Status, BatchCompleted) {
			batch.Status = BatchCompleted
			batch.ReviewCompletedAt = &now
			// Completion always stamps the import timestamp, even when the
			// commit had nothing to promote (every record rejected).
			batch.ImportCompletedAt = &now
			batch.UpdatedAt = now
		}
		return tx.UpdateBatch(ctx, batch)
	})
	if err != nil {
		return nil, err
	}
	result.BatchStatus = batch.Status

	s.logger.Info().
		Str("batch_uuid", batchUUID).
		Int("imported", len(result.Imported)).
		Int("replaced", len(result.Replaced)).
		Str("batch_status", string(batch.Status)).
		Msg("approved records imported")
	return result, nil
}
