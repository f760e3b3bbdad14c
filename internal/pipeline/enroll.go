package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/face-service/internal/imagecodec"
	"github.com/kozaktomas/face-service/internal/liveness"
	"github.com/kozaktomas/face-service/internal/metrics"
)

// Enrollment results and per-image skip reasons, as reported to the Recorder.
const (
	EnrollSuccess      = "success"
	EnrollRejected     = "liveness_unavailable"
	EnrollInvalidImage = "invalid_image"
	EnrollNoEmbeddings = "no_embeddings"
	EnrollStoreError   = "store_error"

	SkipNoFace           = "no_face"
	SkipSpoof            = "spoof"
	SkipExtractionFailed = "extraction_failed"
)

// EnrollInput is a single enrollment request.
type EnrollInput struct {
	PersonnelID int64
	Images      []string // base64, optionally data URIs
}

// EnrollResult carries the stored embeddings on success, in image order.
type EnrollResult struct {
	Success    bool
	Embeddings [][]float32
}

// Enroll turns the images into embeddings, stores them in one write and
// invalidates the person's station cache. Images without a usable live face are skipped.
func (s *Service) Enroll(ctx context.Context, in EnrollInput) EnrollResult {
	result, reason := s.enroll(ctx, in)
	s.metrics.RecordEnrollment(reason)
	return result
}

func (s *Service) enroll(ctx context.Context, in EnrollInput) (EnrollResult, string) {
	entry := log.WithFields(logrus.Fields{
		"batch":        uuid.NewString(),
		"personnel_id": in.PersonnelID,
	})

	// Fails closed when liveness is required but no model is loaded.
	if s.opts.AntiSpoofEnabled && !s.liveness.Available() {
		entry.Error("Registration blocked: anti-spoofing is enabled but model is unavailable")
		return EnrollResult{}, EnrollRejected
	}

	var embeddings [][]float32
	for idx, encoded := range in.Images {
		imgLog := entry.WithField("image", idx)

		start := time.Now()
		img, err := imagecodec.DecodeBase64(encoded)
		s.observe(metrics.StageDecode, start)
		if err != nil {
			imgLog.Errorf("Image decode failed: %v", err)
			return EnrollResult{}, EnrollInvalidImage
		}

		face, ok := s.detect(ctx, img)
		if !ok {
			imgLog.Warn("No face in image, skipping")
			s.metrics.RecordEnrollmentSkip(SkipNoFace)
			continue
		}

		if s.opts.AntiSpoofEnabled {
			var res liveness.Result
			err := s.infer(ctx, metrics.StageLiveness, func() error {
				res = s.liveness.Check(ctx, img, face.BBox)
				return nil
			})
			if err != nil {
				imgLog.Warnf("Liveness check could not run: %v; skipping image", err)
				s.metrics.RecordEnrollmentSkip(SkipSpoof)
				continue
			}
			if !res.Live {
				imgLog.Warnf("Spoof detected (confidence=%.3f); skipping image", res.Confidence)
				s.metrics.RecordEnrollmentSkip(SkipSpoof)
				continue
			}
		}

		embedding, err := s.extract(ctx, face)
		if err != nil {
			imgLog.Warnf("Embedding extraction failed: %v; skipping image", err)
			s.metrics.RecordEnrollmentSkip(SkipExtractionFailed)
			continue
		}
		embeddings = append(embeddings, embedding)
	}

	if len(embeddings) == 0 {
		entry.Warn("No usable face in any image")
		return EnrollResult{}, EnrollNoEmbeddings
	}

	start := time.Now()
	err := s.store.AppendEmbeddings(ctx, in.PersonnelID, embeddings)
	s.observe(metrics.StageStore, start)
	if err != nil {
		entry.Errorf("Failed to save embeddings: %v", err)
		return EnrollResult{}, EnrollStoreError
	}

	s.invalidateStationOf(ctx, in.PersonnelID)

	entry.Infof("Registered %d embeddings", len(embeddings))
	return EnrollResult{Success: true, Embeddings: embeddings}, EnrollSuccess
}

// invalidateStationOf drops the cache entry of the person's station.
// Failures are logged only; the entry still expires after the TTL.
func (s *Service) invalidateStationOf(ctx context.Context, personnelID int64) {
	stationID, found, err := s.store.FetchStationOf(ctx, personnelID)
	if err != nil {
		log.Warnf("Failed to invalidate cache after registration: %v", err)
		return
	}
	if !found {
		log.Warnf("Personnel %d has no station; cache not invalidated", personnelID)
		return
	}
	s.cache.Invalidate(stationID)
}
