package pipeline

// Component states reported by Health.
const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
	StateLoaded    = "loaded"
	StateNotLoaded = "not_loaded"
	StateDisabled  = "disabled"
)

// HealthStatus describes which models are usable.
type HealthStatus struct {
	Status          string
	FaceDetection   string
	FaceRecognition string
	AntiSpoofing    string
}

// Health reports model availability. It never touches the store.
func (s *Service) Health() HealthStatus {
	h := HealthStatus{
		Status:          StatusDegraded,
		FaceDetection:   StateNotLoaded,
		FaceRecognition: StateNotLoaded,
		AntiSpoofing:    StateNotLoaded,
	}
	if s.detector.Loaded() {
		h.Status = StatusHealthy
		h.FaceDetection = StateLoaded
		h.FaceRecognition = StateLoaded
	}
	switch {
	case s.liveness.Available():
		h.AntiSpoofing = StateLoaded
	case !s.opts.AntiSpoofEnabled:
		h.AntiSpoofing = StateDisabled
	}
	return h
}
