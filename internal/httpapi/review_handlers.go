package httpapi

import (
	"context"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"horse.fit/stagehand/internal/staging"
)

type matchView struct {
	MatchUUID          string     `json:"match_uuid"`
	StagedQuestionID   string     `json:"staged_question_id"`
	ExistingQuestionID string     `json:"existing_question_id"`
	SimilarityScore    float64    `json:"similarity_score"`
	Resolution         string     `json:"resolution"`
	ResolutionNotes    *string    `json:"resolution_notes,omitempty"`
	ResolvedBy         *string    `json:"resolved_by,omitempty"`
	ResolvedAt         *time.Time `json:"resolved_at,omitempty"`
}

func newMatchView(m *staging.Match) matchView {
	return matchView{
		MatchUUID:          m.MatchUUID,
		StagedQuestionID:   m.StagedQuestionID,
		ExistingQuestionID: m.ExistingQuestionID,
		SimilarityScore:    m.SimilarityScore,
		Resolution:         string(m.Resolution),
		ResolutionNotes:    m.ResolutionNotes,
		ResolvedBy:         m.ResolvedBy,
		ResolvedAt:         m.ResolvedAt,
	}
}

func (s *Server) handleQuestionDetail(c echo.Context) error {
	record, err := s.svc.GetRecord(c.Request().Context(), c.Param("question_id"))
	if err != nil {
		return s.respondServiceError(c, err)
	}
	return success(c, map[string]any{
		"question": newRecordView(record),
	})
}

func (s *Server) handleQuestionMatches(c echo.Context) error {
	matches, err := s.svc.ListMatches(c.Request().Context(), c.Param("question_id"))
	if err != nil {
		return s.respondServiceError(c, err)
	}
	items := make([]matchView, 0, len(matches))
	for i := range matches {
		items = append(items, newMatchView(&matches[i]))
	}
	return success(c, map[string]any{
		"items": items,
	})
}

func (s *Server) handleBatchDuplicates(c echo.Context) error {
	matches, err := s.svc.ListBatchMatches(c.Request().Context(), c.Param("batch_uuid"))
	if err != nil {
		return s.respondServiceError(c, err)
	}
	items := make([]matchView, 0, len(matches))
	for i := range matches {
		items = append(items, newMatchView(&matches[i]))
	}
	return success(c, map[string]any{
		"items": items,
	})
}

type reviewRequest struct {
	ReviewedBy string  `json:"reviewed_by"`
	Notes      *string `json:"notes"`
}

func (s *Server) handleApprove(c echo.Context) error {
	return s.handleReview(c, s.svc.Approve)
}

func (s *Server) handleReject(c echo.Context) error {
	return s.handleReview(c, s.svc.Reject)
}

func (s *Server) handleReview(c echo.Context, review func(ctx context.Context, questionID, reviewer string, notes *string) (*staging.Record, error)) error {
	var req reviewRequest
	if err := c.Bind(&req); err != nil {
		return failValidation(c, map[string]string{"payload": err.Error()})
	}

	record, err := review(c.Request().Context(), c.Param("question_id"), strings.TrimSpace(req.ReviewedBy), req.Notes)
	if err != nil {
		return s.respondServiceError(c, err)
	}
	return success(c, map[string]any{
		"question": newRecordView(record),
	})
}

type bulkReviewRequest struct {
	Action      string   `json:"action"`
	QuestionIDs []string `json:"question_ids"`
	ReviewedBy  string   `json:"reviewed_by"`
	Notes       *string  `json:"notes"`
}

type bulkReviewItem struct {
	QuestionID string `json:"question_id"`
	Status     string `json:"status,omitempty"`
	Error      string `json:"error,omitempty"`
}

// handleBulkReview applies one approve/reject decision to several staged
// questions. Each question is reviewed independently, so one blocked record
// does not abort the rest; failures come back per item.
func (s *Server) handleBulkReview(c echo.Context) error {
	var req bulkReviewRequest
	if err := c.Bind(&req); err != nil {
		return failValidation(c, map[string]string{"payload": err.Error()})
	}

	var review func(ctx context.Context, questionID, reviewer string, notes *string) (*staging.Record, error)
	switch strings.TrimSpace(strings.ToLower(req.Action)) {
	case "approve":
		review = s.svc.Approve
	case "reject":
		review = s.svc.Reject
	default:
		return failValidation(c, map[string]string{"action": "must be approve or reject"})
	}
	if len(req.QuestionIDs) == 0 {
		return failValidation(c, map[string]string{"question_ids": "must not be empty"})
	}

	batchUUID := c.Param("batch_uuid")
	reviewer := strings.TrimSpace(req.ReviewedBy)
	items := make([]bulkReviewItem, 0, len(req.QuestionIDs))
	failed := 0
	for _, questionID := range req.QuestionIDs {
		existing, err := s.svc.GetRecord(c.Request().Context(), questionID)
		if err != nil {
			items = append(items, bulkReviewItem{QuestionID: questionID, Error: err.Error()})
			failed++
			continue
		}
		if existing.BatchUUID != batchUUID {
			items = append(items, bulkReviewItem{QuestionID: questionID, Error: "question belongs to a different batch"})
			failed++
			continue
		}
		record, err := review(c.Request().Context(), questionID, reviewer, req.Notes)
		if err != nil {
			items = append(items, bulkReviewItem{QuestionID: questionID, Error: err.Error()})
			failed++
			continue
		}
		items = append(items, bulkReviewItem{QuestionID: questionID, Status: string(record.Status)})
	}

	return success(c, map[string]any{
		"reviewed": len(items) - failed,
		"failed":   failed,
		"items":    items,
	})
}

type replaceContentRequest struct {
	Topic         string  `json:"topic"`
	Subtopic      string  `json:"subtopic"`
	Difficulty    string  `json:"difficulty"`
	Type          string  `json:"type"`
	Question      string  `json:"question"`
	Answer        string  `json:"answer"`
	NotesForTutor *string `json:"notes_for_tutor"`
	EditedBy      string  `json:"edited_by"`
}

func (s *Server) handleReplaceContent(c echo.Context) error {
	var req replaceContentRequest
	if err := c.Bind(&req); err != nil {
		return failValidation(c, map[string]string{"payload": err.Error()})
	}

	content := staging.QuestionContent{
		Topic:         req.Topic,
		Subtopic:      req.Subtopic,
		Difficulty:    req.Difficulty,
		Type:          req.Type,
		Question:      req.Question,
		Answer:        req.Answer,
		NotesForTutor: req.NotesForTutor,
	}
	record, err := s.svc.ReplaceContent(c.Request().Context(), c.Param("question_id"), content, strings.TrimSpace(req.EditedBy))
	if err != nil {
		return s.respondServiceError(c, err)
	}
	return success(c, map[string]any{
		"question": newRecordView(record),
	})
}

type resolveRequest struct {
	Resolution string  `json:"resolution"`
	ResolvedBy string  `json:"resolved_by"`
	Notes      *string `json:"notes"`
}

func (s *Server) handleResolveMatch(c echo.Context) error {
	var req resolveRequest
	if err := c.Bind(&req); err != nil {
		return failValidation(c, map[string]string{"payload": err.Error()})
	}

	match, err := s.svc.ResolveMatch(
		c.Request().Context(),
		c.Param("match_uuid"),
		staging.Resolution(strings.TrimSpace(strings.ToLower(req.Resolution))),
		strings.TrimSpace(req.ResolvedBy),
		req.Notes,
	)
	if err != nil {
		return s.respondServiceError(c, err)
	}
	return success(c, map[string]any{
		"match": newMatchView(match),
	})
}

type annotateRequest struct {
	Author string `json:"author"`
	Note   string `json:"note"`
}

func (s *Server) handleAnnotateMatch(c echo.Context) error {
	var req annotateRequest
	if err := c.Bind(&req); err != nil {
		return failValidation(c, map[string]string{"payload": err.Error()})
	}

	match, err := s.svc.AnnotateMatch(c.Request().Context(), c.Param("match_uuid"), strings.TrimSpace(req.Author), req.Note)
	if err != nil {
		return s.respondServiceError(c, err)
	}
	return success(c, map[string]any{
		"match": newMatchView(match),
	})
}
