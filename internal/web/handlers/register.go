package handlers

import (
	"fmt"
	"net/http"

	"github.com/kozaktomas/face-service/internal/constants"
	"github.com/kozaktomas/face-service/internal/pipeline"
)

// RegisterRequest represents an enrollment request.
type RegisterRequest struct {
	PersonnelID *int64   `json:"personnel_id"`
	Images      []string `json:"images"`
}

// RegisterResponse carries the stored embeddings; empty on failure.
type RegisterResponse struct {
	Success    bool        `json:"success"`
	Embeddings [][]float32 `json:"embeddings"`
}

// Register enrolls face images for a person.
func (h *FaceHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.PersonnelID == nil {
		respondValidation(w, "personnel_id is required")
		return
	}
	if len(req.Images) == 0 {
		respondValidation(w, "images must not be empty")
		return
	}
	if len(req.Images) > constants.MaxEnrollImages {
		respondValidation(w, fmt.Sprintf("at most %d images are accepted", constants.MaxEnrollImages))
		return
	}

	result := h.svc.Enroll(r.Context(), pipeline.EnrollInput{
		PersonnelID: *req.PersonnelID,
		Images:      req.Images,
	})

	resp := RegisterResponse{Success: result.Success, Embeddings: result.Embeddings}
	if resp.Embeddings == nil {
		resp.Embeddings = [][]float32{}
	}
	respondJSON(w, http.StatusOK, resp)
}
