package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/kozaktomas/face-service/internal/constants"
	"github.com/kozaktomas/face-service/internal/database"
	"github.com/kozaktomas/face-service/internal/pipeline"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// FaceService is what the handlers need from the pipeline.
type FaceService interface {
	Recognize(ctx context.Context, in pipeline.RecognizeInput) pipeline.Outcome
	Enroll(ctx context.Context, in pipeline.EnrollInput) pipeline.EnrollResult
	Health() pipeline.HealthStatus
	LegacyReport(ctx context.Context) (database.LegacyReport, error)
}

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondValidation sends a 422 with a detail message.
func respondValidation(w http.ResponseWriter, detail string) {
	respondJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": detail})
}

// decodeBody parses a bounded JSON request body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding request body: %w", err)
	}
	return nil
}

// FaceHandler serves recognition, registration, health and migration endpoints.
type FaceHandler struct {
	svc FaceService
}

// NewFaceHandler creates a new face handler.
func NewFaceHandler(svc FaceService) *FaceHandler {
	return &FaceHandler{svc: svc}
}
