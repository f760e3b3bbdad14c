package handlers

import (
	"net/http"

	"github.com/kozaktomas/face-service/internal/logging"
	"github.com/kozaktomas/face-service/internal/pipeline"
)

// RecognizeRequest represents a recognition request.
type RecognizeRequest struct {
	Image     *string `json:"image"`
	StationID *int64  `json:"station_id"`
}

// RecognizeResponse represents the outcome of a recognition request.
type RecognizeResponse struct {
	Success     bool    `json:"success"`
	PersonnelID *int64  `json:"personnel_id"`
	Confidence  float64 `json:"confidence"`
	Message     string  `json:"message"`
}

func newRecognizeResponse(o pipeline.Outcome) RecognizeResponse {
	resp := RecognizeResponse{Success: o.Success(), Message: o.Message}
	if o.Success() {
		id := o.PersonnelID
		resp.PersonnelID = &id
		resp.Confidence = o.Confidence
	}
	return resp
}

// Recognize identifies the face in the image among the station's personnel.
// Pipeline outcomes are always returned with status 200.
func (h *FaceHandler) Recognize(w http.ResponseWriter, r *http.Request) {
	var req RecognizeRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.Image == nil {
		respondValidation(w, "image is required")
		return
	}
	if req.StationID == nil {
		respondValidation(w, "station_id is required")
		return
	}

	outcome := h.svc.Recognize(r.Context(), pipeline.RecognizeInput{
		Image:     *req.Image,
		StationID: *req.StationID,
	})
	logging.Component("recognize").Debugf("Station %d: %s", *req.StationID, sanitizeForLog(outcome.Message))

	respondJSON(w, http.StatusOK, newRecognizeResponse(outcome))
}
