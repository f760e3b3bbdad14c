package handlers

import (
	"net/http"

	"github.com/kozaktomas/face-service/internal/logging"
	"github.com/kozaktomas/face-service/internal/pipeline"
)

// MigrationStats is kept for response compatibility; nothing is re-processed server side.
type MigrationStats struct {
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// MigrateResponse lists personnel that must re-enroll.
type MigrateResponse struct {
	Success      bool           `json:"success"`
	Message      string         `json:"message"`
	PersonnelIDs []int64        `json:"personnel_ids,omitempty"`
	Stats        MigrationStats `json:"stats"`
}

// MigrateEmbeddings reports personnel that only have legacy embeddings.
func (h *FaceHandler) MigrateEmbeddings(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.LegacyReport(r.Context())
	if err != nil {
		logging.Component("migrate").Errorf("Legacy embedding report failed: %v", err)
		respondError(w, http.StatusInternalServerError, "database error")
		return
	}

	respondJSON(w, http.StatusOK, MigrateResponse{
		Success:      true,
		Message:      pipeline.LegacyMessage(report.PersonnelIDs),
		PersonnelIDs: report.PersonnelIDs,
	})
}
