package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRespondJSON_SetsContentTypeAndStatus(t *testing.T) {
	recorder := httptest.NewRecorder()

	respondJSON(recorder, http.StatusCreated, map[string]string{"status": "ok"})

	if ct := recorder.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type 'application/json', got '%s'", ct)
	}
	if recorder.Code != http.StatusCreated {
		t.Errorf("expected status 201, got %d", recorder.Code)
	}
}

func TestRespondError_Format(t *testing.T) {
	recorder := httptest.NewRecorder()

	respondError(recorder, http.StatusBadRequest, errInvalidRequestBody)

	var result map[string]string
	decodeResponse(t, recorder, &result)
	if result["error"] != "invalid request body" {
		t.Errorf("expected error 'invalid request body', got '%s'", result["error"])
	}
}

func TestSanitizeForLog(t *testing.T) {
	if got := sanitizeForLog("line1\nline2\r"); got != "line1line2" {
		t.Errorf("sanitizeForLog() = %q", got)
	}
}
