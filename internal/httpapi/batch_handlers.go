package httpapi

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	payloadschema "horse.fit/stagehand/schema"
	"horse.fit/stagehand/internal/staging"
)

type batchView struct {
	BatchUUID          string     `json:"batch_uuid"`
	UploadedBy         string     `json:"uploaded_by"`
	FileName           string     `json:"file_name"`
	TotalQuestions     int        `json:"total_questions"`
	QuestionsPending   int        `json:"questions_pending"`
	QuestionsApproved  int        `json:"questions_approved"`
	QuestionsRejected  int        `json:"questions_rejected"`
	QuestionsDuplicate int        `json:"questions_duplicate"`
	Status             string     `json:"status"`
	Notes              *string    `json:"notes,omitempty"`
	UploadedAt         time.Time  `json:"uploaded_at"`
	ReviewStartedAt    *time.Time `json:"review_started_at,omitempty"`
	ReviewCompletedAt  *time.Time `json:"review_completed_at,omitempty"`
	ReviewedBy         *string    `json:"reviewed_by,omitempty"`
	ImportStartedAt    *time.Time `json:"import_started_at,omitempty"`
	ImportCompletedAt  *time.Time `json:"import_completed_at,omitempty"`
}

func newBatchView(b *staging.Batch) batchView {
	return batchView{
		BatchUUID:          b.BatchUUID,
		UploadedBy:         b.UploadedBy,
		FileName:           b.FileName,
		TotalQuestions:     b.TotalQuestions,
		QuestionsPending:   b.QuestionsPending,
		QuestionsApproved:  b.QuestionsApproved,
		QuestionsRejected:  b.QuestionsRejected,
		QuestionsDuplicate: b.QuestionsDuplicate,
		Status:             string(b.Status),
		Notes:              b.Notes,
		UploadedAt:         b.UploadedAt,
		ReviewStartedAt:    b.ReviewStartedAt,
		ReviewCompletedAt:  b.ReviewCompletedAt,
		ReviewedBy:         b.ReviewedBy,
		ImportStartedAt:    b.ImportStartedAt,
		ImportCompletedAt:  b.ImportCompletedAt,
	}
}

type recordView struct {
	QuestionID      string     `json:"question_id"`
	BatchUUID       string     `json:"batch_uuid"`
	Topic           string     `json:"topic"`
	Subtopic        string     `json:"subtopic"`
	Difficulty      string     `json:"difficulty"`
	Type            string     `json:"type"`
	Question        string     `json:"question"`
	Answer          string     `json:"answer"`
	NotesForTutor   *string    `json:"notes_for_tutor,omitempty"`
	Status          string     `json:"status"`
	DuplicateOf     *string    `json:"duplicate_of,omitempty"`
	SimilarityScore *float64   `json:"similarity_score,omitempty"`
	ReviewNotes     *string    `json:"review_notes,omitempty"`
	ReviewedBy      *string    `json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time `json:"reviewed_at,omitempty"`
	UploadedBy      string     `json:"uploaded_by"`
	UploadNotes     *string    `json:"upload_notes,omitempty"`
}

func newRecordView(r *staging.Record) recordView {
	return recordView{
		QuestionID:      r.QuestionID,
		BatchUUID:       r.BatchUUID,
		Topic:           r.Content.Topic,
		Subtopic:        r.Content.Subtopic,
		Difficulty:      r.Content.Difficulty,
		Type:            r.Content.Type,
		Question:        r.Content.Question,
		Answer:          r.Content.Answer,
		NotesForTutor:   r.Content.NotesForTutor,
		Status:          string(r.Status),
		DuplicateOf:     r.DuplicateOf,
		SimilarityScore: r.SimilarityScore,
		ReviewNotes:     r.ReviewNotes,
		ReviewedBy:      r.ReviewedBy,
		ReviewedAt:      r.ReviewedAt,
		UploadedBy:      r.UploadedBy,
		UploadNotes:     r.UploadNotes,
	}
}

func (s *Server) handleCreateBatch(c echo.Context) error {
	raw, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return failValidation(c, map[string]string{"payload": "could not read request body"})
	}
	upload, err := payloadschema.ValidateBatchUploadPayload(raw)
	if err != nil {
		return failValidation(c, map[string]string{"payload": err.Error()})
	}

	req := staging.CreateBatchRequest{
		UploadedBy: upload.UploadedBy,
		FileName:   upload.FileName,
		Notes:      upload.Notes,
		Questions:  make([]staging.QuestionInput, 0, len(upload.Questions)),
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

	batch, err := s.svc.CreateBatch(c.Request().Context(), req)
	if err != nil {
		return s.respondServiceError(c, err)
	}
	return successWithStatus(c, http.StatusCreated, map[string]any{
		"batch": newBatchView(batch),
	})
}

func (s *Server) handleListBatches(c echo.Context) error {
	page, err := parsePositiveInt(c.QueryParam("page"), 1, 1, 1_000_000)
	if err != nil {
		return failValidation(c, map[string]string{"page": err.Error()})
	}
	pageSize, err := parsePositiveInt(c.QueryParam("page_size"), defaultPageSize, 1, maxPageSize)
	if err != nil {
		return failValidation(c, map[string]string{"page_size": err.Error()})
	}
	status := staging.BatchStatus(strings.TrimSpace(strings.ToLower(c.QueryParam("status"))))
	switch status {
	case "", staging.BatchPending, staging.BatchReviewing, staging.BatchCompleted, staging.BatchCancelled:
	default:
		return failValidation(c, map[string]string{"status": "unknown batch status"})
	}

	batches, err := s.svc.ListBatches(c.Request().Context(), status, pageSize, (page-1)*pageSize)
	if err != nil {
		return s.respondServiceError(c, err)
	}

	items := make([]batchView, 0, len(batches))
	for i := range batches {
		items = append(items, newBatchView(&batches[i]))
	}
	return success(c, map[string]any{
		"items": items,
		"pagination": map[string]any{
			"page":      page,
			"page_size": pageSize,
		},
	})
}

func (s *Server) handleBatchDetail(c echo.Context) error {
	batch, err := s.svc.GetBatch(c.Request().Context(), c.Param("batch_uuid"))
	if err != nil {
		return s.respondServiceError(c, err)
	}
	return success(c, map[string]any{
		"batch": newBatchView(batch),
	})
}

func (s *Server) handleBatchQuestions(c echo.Context) error {
	status := staging.RecordStatus(strings.TrimSpace(strings.ToLower(c.QueryParam("status"))))
	switch status {
	case "", staging.RecordPending, staging.RecordApproved, staging.RecordRejected,
		staging.RecordDuplicate, staging.RecordImported:
	default:
		return failValidation(c, map[string]string{"status": "unknown question status"})
	}

	records, err := s.svc.ListRecords(c.Request().Context(), c.Param("batch_uuid"), status)
	if err != nil {
		return s.respondServiceError(c, err)
	}
	items := make([]recordView, 0, len(records))
	for i := range records {
		items = append(items, newRecordView(&records[i]))
	}
	return success(c, map[string]any{
		"items": items,
	})
}

type detectRequest struct {
	Threshold *float64 `json:"threshold"`
}

func (s *Server) handleDetect(c echo.Context) error {
	var req detectRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		return failValidation(c, map[string]string{"payload": err.Error()})
	}
	threshold := s.opts.DefaultThreshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}

	result, err := s.svc.DetectDuplicates(c.Request().Context(), c.Param("batch_uuid"), threshold)
	if err != nil {
		return s.respondServiceError(c, err)
	}
	return success(c, map[string]any{
		"batch_uuid":    result.BatchUUID,
		"threshold":     result.Threshold,
		"scanned":       result.Scanned,
		"flagged":       result.Flagged,
		"new_matches":   result.MatchesFound,
		"corpus_size":   result.CorpusSize,
	})
}

type importRequest struct {
	Policy string `json:"policy"`
}

func (s *Server) handleImport(c echo.Context) error {
	var req importRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		return failValidation(c, map[string]string{"payload": err.Error()})
	}
	policy := s.opts.DefaultPolicy
	if strings.TrimSpace(req.Policy) != "" {
		policy = staging.ImportPolicy(req.Policy)
	}

	result, err := s.svc.ImportApproved(c.Request().Context(), c.Param("batch_uuid"), policy)
	if err != nil {
		return s.respondServiceError(c, err)
	}
	return success(c, map[string]any{
		"batch_uuid":   result.BatchUUID,
		"imported":     result.Imported,
		"replaced":     result.Replaced,
		"batch_status": string(result.BatchStatus),
	})
}

type cancelRequest struct {
	CancelledBy string `json:"cancelled_by"`
}

func (s *Server) handleCancel(c echo.Context) error {
	var req cancelRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		return failValidation(c, map[string]string{"payload": err.Error()})
	}

	batch, err := s.svc.Cancel(c.Request().Context(), c.Param("batch_uuid"), strings.TrimSpace(req.CancelledBy))
	if err != nil {
		return s.respondServiceError(c, err)
	}
	return success(c, map[string]any{
		"batch": newBatchView(batch),
	})
}

// bindOptionalJSON decodes a JSON body when one is present; an empty body
// leaves the target at its zero value.
func bindOptionalJSON(c echo.Context, target any) error {
	if c.Request().Body == nil || c.Request().ContentLength == 0 {
		return nil
	}
	return c.Bind(target)
}
