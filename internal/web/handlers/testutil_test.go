package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/face-service/internal/database"
	"github.com/kozaktomas/face-service/internal/pipeline"
)

// stubService records the inputs it was called with and returns canned results.
type stubService struct {
	outcome   pipeline.Outcome
	enroll    pipeline.EnrollResult
	health    pipeline.HealthStatus
	report    database.LegacyReport
	reportErr error

	recognizeIn *pipeline.RecognizeInput
	enrollIn    *pipeline.EnrollInput
}

func (s *stubService) Recognize(_ context.Context, in pipeline.RecognizeInput) pipeline.Outcome {
	s.recognizeIn = &in
	return s.outcome
}

func (s *stubService) Enroll(_ context.Context, in pipeline.EnrollInput) pipeline.EnrollResult {
	s.enrollIn = &in
	return s.enroll
}

func (s *stubService) Health() pipeline.HealthStatus {
	return s.health
}

func (s *stubService) LegacyReport(context.Context) (database.LegacyReport, error) {
	return s.report, s.reportErr
}

// postJSON sends a JSON body to handler and returns the recorder
func postJSON(t *testing.T, handler http.HandlerFunc, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

// decodeResponse unmarshals the recorder body into v
func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to unmarshal response %q: %v", rec.Body.String(), err)
	}
}
