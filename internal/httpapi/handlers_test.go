package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"horse.fit/stagehand/internal/staging"
)

type fakeStagingService struct {
	createBatchFn      func(ctx context.Context, req staging.CreateBatchRequest) (*staging.Batch, error)
	getBatchFn         func(ctx context.Context, batchUUID string) (*staging.Batch, error)
	getRecordFn        func(ctx context.Context, questionID string) (*staging.Record, error)
	listBatchMatchesFn func(ctx context.Context, batchUUID string) ([]staging.Match, error)
	detectFn           func(ctx context.Context, batchUUID string, threshold float64) (*staging.DetectionResult, error)
	approveFn          func(ctx context.Context, questionID, reviewer string, notes *string) (*staging.Record, error)
	resolveFn          func(ctx context.Context, matchUUID string, resolution staging.Resolution, resolver string, notes *string) (*staging.Match, error)
	importApprovedFn   func(ctx context.Context, batchUUID string, policy staging.ImportPolicy) (*staging.ImportResult, error)
}

func (f *fakeStagingService) CreateBatch(ctx context.Context, req staging.CreateBatchRequest) (*staging.Batch, error) {
	return f.createBatchFn(ctx, req)
}

func (f *fakeStagingService) GetBatch(ctx context.Context, batchUUID string) (*staging.Batch, error) {
	if f.getBatchFn == nil {
		return nil, staging.ErrNotFound
	}
	return f.getBatchFn(ctx, batchUUID)
}

func (f *fakeStagingService) ListBatches(context.Context, staging.BatchStatus, int, int) ([]staging.Batch, error) {
	return nil, nil
}

func (f *fakeStagingService) ListRecords(context.Context, string, staging.RecordStatus) ([]staging.Record, error) {
	return nil, nil
}

func (f *fakeStagingService) GetRecord(ctx context.Context, questionID string) (*staging.Record, error) {
	if f.getRecordFn == nil {
		return nil, staging.ErrNotFound
	}
	return f.getRecordFn(ctx, questionID)
}

func (f *fakeStagingService) ListMatches(context.Context, string) ([]staging.Match, error) {
	return nil, staging.ErrNotFound
}

func (f *fakeStagingService) ListBatchMatches(ctx context.Context, batchUUID string) ([]staging.Match, error) {
	if f.listBatchMatchesFn == nil {
		return nil, staging.ErrNotFound
	}
	return f.listBatchMatchesFn(ctx, batchUUID)
}

func (f *fakeStagingService) DetectDuplicates(ctx context.Context, batchUUID string, threshold float64) (*staging.DetectionResult, error) {
	return f.detectFn(ctx, batchUUID, threshold)
}

func (f *fakeStagingService) Approve(ctx context.Context, questionID, reviewer string, notes *string) (*staging.Record, error) {
	return f.approveFn(ctx, questionID, reviewer, notes)
}

func (f *fakeStagingService) Reject(ctx context.Context, questionID, reviewer string, notes *string) (*staging.Record, error) {
	return nil, staging.ErrNotFound
}

func (f *fakeStagingService) ResolveMatch(ctx context.Context, matchUUID string, resolution staging.Resolution, resolver string, notes *string) (*staging.Match, error) {
	return f.resolveFn(ctx, matchUUID, resolution, resolver, notes)
}

func (f *fakeStagingService) AnnotateMatch(context.Context, string, string, string) (*staging.Match, error) {
	return nil, staging.ErrNotFound
}

func (f *fakeStagingService) ReplaceContent(context.Context, string, staging.QuestionContent, string) (*staging.Record, error) {
	return nil, staging.ErrNotFound
}

func (f *fakeStagingService) ImportApproved(ctx context.Context, batchUUID string, policy staging.ImportPolicy) (*staging.ImportResult, error) {
	return f.importApprovedFn(ctx, batchUUID, policy)
}

func (f *fakeStagingService) Cancel(context.Context, string, string) (*staging.Batch, error) {
	return nil, staging.ErrNotFound
}

func (f *fakeStagingService) Stats(context.Context) (*staging.Stats, error) {
	return &staging.Stats{}, nil
}

func newTestServer(svc StagingService) *Server {
	return NewServer(svc, zerolog.Nop(), Options{})
}

func doRequest(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echoHeaderContentType, "application/json")
	}
	rec := httptest.NewRecorder()
	s.newEcho().ServeHTTP(rec, req)
	return rec
}

const echoHeaderContentType = "Content-Type"

func decodeJSend(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return resp
}

func TestCreateBatchEndpoint(t *testing.T) {
	svc := &fakeStagingService{
		createBatchFn: func(_ context.Context, req staging.CreateBatchRequest) (*staging.Batch, error) {
			if req.UploadedBy != "alice" || len(req.Questions) != 1 {
				t.Fatalf("unexpected request: %+v", req)
			}
			return &staging.Batch{
				BatchUUID:        "b-1",
				UploadedBy:       req.UploadedBy,
				FileName:         req.FileName,
				TotalQuestions:   1,
				QuestionsPending: 1,
				Status:           staging.BatchPending,
			}, nil
		},
	}

	body := `{
		"payload_version":"v1",
		"uploaded_by":"alice",
		"file_name":"upload.json",
		"questions":[{
			"topic":"Valuation","subtopic":"WACC","difficulty":"Basic","type":"Definition",
			"question":"What is WACC?","answer":"The blended cost of capital."
		}]
	}`
	rec := doRequest(t, newTestServer(svc), http.MethodPost, "/api/v1/batches", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	resp := decodeJSend(t, rec)
	if resp["status"] != "success" {
		t.Fatalf("jsend status = %v", resp["status"])
	}
}

func TestCreateBatchEndpointRejectsBadPayload(t *testing.T) {
	svc := &fakeStagingService{
		createBatchFn: func(context.Context, staging.CreateBatchRequest) (*staging.Batch, error) {
			t.Fatal("service must not be called for an invalid payload")
			return nil, nil
		},
	}

	rec := doRequest(t, newTestServer(svc), http.MethodPost, "/api/v1/batches",
		`{"payload_version":"v1","uploaded_by":"alice","file_name":"f","questions":[]}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body.String())
	}
	resp := decodeJSend(t, rec)
	if resp["status"] != "fail" {
		t.Fatalf("jsend status = %v", resp["status"])
	}
}

func TestApproveEndpointMapsStateError(t *testing.T) {
	svc := &fakeStagingService{
		approveFn: func(context.Context, string, string, *string) (*staging.Record, error) {
			return nil, &staging.StateError{Op: "approve", Reason: "batch is cancelled"}
		},
	}

	rec := doRequest(t, newTestServer(svc), http.MethodPost,
		"/api/v1/questions/VALUATION-WACC-B-D-001/approve", `{"reviewed_by":"bob"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409: %s", rec.Code, rec.Body.String())
	}
}

func TestResolveEndpointMapsNotFound(t *testing.T) {
	svc := &fakeStagingService{
		resolveFn: func(context.Context, string, staging.Resolution, string, *string) (*staging.Match, error) {
			return nil, staging.ErrNotFound
		},
	}

	rec := doRequest(t, newTestServer(svc), http.MethodPost,
		"/api/v1/matches/nope/resolve", `{"resolution":"keep_both","resolved_by":"bob"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404: %s", rec.Code, rec.Body.String())
	}
}

func TestDetectEndpointMapsDetectionFailure(t *testing.T) {
	svc := &fakeStagingService{
		detectFn: func(context.Context, string, float64) (*staging.DetectionResult, error) {
			return nil, &staging.DetectionFailure{Err: context.DeadlineExceeded}
		},
	}

	rec := doRequest(t, newTestServer(svc), http.MethodPost, "/api/v1/batches/b-1/detect", "")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502: %s", rec.Code, rec.Body.String())
	}
}

func TestDetectEndpointUsesConfiguredDefaultThreshold(t *testing.T) {
	var got float64
	svc := &fakeStagingService{
		detectFn: func(_ context.Context, _ string, threshold float64) (*staging.DetectionResult, error) {
			got = threshold
			return &staging.DetectionResult{BatchUUID: "b-1", Threshold: threshold}, nil
		},
	}
	s := NewServer(svc, zerolog.Nop(), Options{DefaultThreshold: 0.9})

	rec := doRequest(t, s, http.MethodPost, "/api/v1/batches/b-1/detect", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if got != 0.9 {
		t.Fatalf("threshold = %v, want configured default 0.9", got)
	}
}

func TestImportEndpointMapsPartialFailure(t *testing.T) {
	svc := &fakeStagingService{
		importApprovedFn: func(context.Context, string, staging.ImportPolicy) (*staging.ImportResult, error) {
			return nil, &staging.PartialFailureError{RecordIDs: []string{"VALUATION-WACC-B-D-002"}}
		},
	}

	rec := doRequest(t, newTestServer(svc), http.MethodPost, "/api/v1/batches/b-1/import", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409: %s", rec.Code, rec.Body.String())
	}
	resp := decodeJSend(t, rec)
	data, _ := resp["data"].(map[string]any)
	if data == nil || data["colliding_ids"] == nil {
		t.Fatalf("missing colliding_ids in response: %s", rec.Body.String())
	}
}

func TestBatchDuplicatesEndpoint(t *testing.T) {
	svc := &fakeStagingService{
		listBatchMatchesFn: func(_ context.Context, batchUUID string) ([]staging.Match, error) {
			if batchUUID != "b-1" {
				return nil, staging.ErrNotFound
			}
			return []staging.Match{
				{MatchUUID: "m-1", StagedQuestionID: "VALUATION-WACC-B-D-002", ExistingQuestionID: "VALUATION-WACC-B-D-001", SimilarityScore: 0.95, Resolution: staging.ResolutionPending},
				{MatchUUID: "m-2", StagedQuestionID: "ACCOUNTING-FS-B-G-001", ExistingQuestionID: "ACCOUNTING-FS-B-D-001", SimilarityScore: 0.88, Resolution: staging.ResolutionKeepBoth},
			}, nil
		},
	}

	rec := doRequest(t, newTestServer(svc), http.MethodGet, "/api/v1/batches/b-1/duplicates", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	resp := decodeJSend(t, rec)
	data, _ := resp["data"].(map[string]any)
	items, _ := data["items"].([]any)
	if len(items) != 2 {
		t.Fatalf("items = %v, want 2 matches", data["items"])
	}

	rec = doRequest(t, newTestServer(svc), http.MethodGet, "/api/v1/batches/missing/duplicates", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404: %s", rec.Code, rec.Body.String())
	}
}

func TestBulkReviewEndpointReportsPerItemOutcomes(t *testing.T) {
	svc := &fakeStagingService{
		getRecordFn: func(_ context.Context, questionID string) (*staging.Record, error) {
			if questionID == "VALUATION-WACC-B-D-009" {
				return nil, staging.ErrNotFound
			}
			return &staging.Record{QuestionID: questionID, BatchUUID: "b-1", Status: staging.RecordPending}, nil
		},
		approveFn: func(_ context.Context, questionID, reviewer string, _ *string) (*staging.Record, error) {
			if reviewer != "bob" {
				t.Fatalf("reviewer = %q, want bob", reviewer)
			}
			return &staging.Record{QuestionID: questionID, BatchUUID: "b-1", Status: staging.RecordApproved}, nil
		},
	}

	body := `{"action":"approve","reviewed_by":"bob","question_ids":["VALUATION-WACC-B-D-001","VALUATION-WACC-B-D-009"]}`
	rec := doRequest(t, newTestServer(svc), http.MethodPost, "/api/v1/batches/b-1/review", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	resp := decodeJSend(t, rec)
	data, _ := resp["data"].(map[string]any)
	if data == nil {
		t.Fatalf("missing data: %s", rec.Body.String())
	}
	if data["reviewed"] != float64(1) || data["failed"] != float64(1) {
		t.Fatalf("reviewed/failed = %v/%v, want 1/1", data["reviewed"], data["failed"])
	}
}

func TestBulkReviewEndpointRejectsUnknownAction(t *testing.T) {
	rec := doRequest(t, newTestServer(&fakeStagingService{}), http.MethodPost,
		"/api/v1/batches/b-1/review", `{"action":"merge","reviewed_by":"bob","question_ids":["X-Y-B-D-001"]}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body.String())
	}
}

func TestListBatchesEndpointRejectsUnknownStatus(t *testing.T) {
	rec := doRequest(t, newTestServer(&fakeStagingService{}), http.MethodGet,
		"/api/v1/batches?status=draft", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body.String())
	}
}

func TestHealthEndpoint(t *testing.T) {
	rec := doRequest(t, newTestServer(&fakeStagingService{}), http.MethodGet, "/api/v1/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	resp := decodeJSend(t, rec)
	data, _ := resp["data"].(map[string]any)
	if data == nil || data["service"] != "stagehand" {
		t.Fatalf("unexpected health payload: %s", rec.Body.String())
	}
}
