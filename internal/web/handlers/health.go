package handlers

import "net/http"

// HealthResponse reports model availability.
type HealthResponse struct {
	Status          string `json:"status"`
	FaceDetection   string `json:"face_detection"`
	FaceRecognition string `json:"face_recognition"`
	AntiSpoofing    string `json:"anti_spoofing"`
}

// Health handles the health check endpoint.
func (h *FaceHandler) Health(w http.ResponseWriter, r *http.Request) {
	status := h.svc.Health()
	respondJSON(w, http.StatusOK, HealthResponse{
		Status:          status.Status,
		FaceDetection:   status.FaceDetection,
		FaceRecognition: status.FaceRecognition,
		AntiSpoofing:    status.AntiSpoofing,
	})
}
