// Package pipeline composes decoding, detection, liveness, extraction, storage
// and matching into the recognition and enrollment flows.
package pipeline

import (
	"context"
	"errors"
	"image"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/kozaktomas/face-service/internal/cache"
	"github.com/kozaktomas/face-service/internal/constants"
	"github.com/kozaktomas/face-service/internal/database"
	"github.com/kozaktomas/face-service/internal/facematch"
	"github.com/kozaktomas/face-service/internal/liveness"
	"github.com/kozaktomas/face-service/internal/logging"
	"github.com/kozaktomas/face-service/internal/recognition"
)

var log = logging.Component("pipeline")

// Store is the persistence the pipelines need.
type Store interface {
	database.EmbeddingReader
	database.EmbeddingWriter
	database.PersonnelReader
}

// Recorder receives pipeline metrics.
type Recorder interface {
	RecordRecognition(outcome string)
	RecordEnrollment(result string)
	RecordEnrollmentSkip(reason string)
	ObserveStage(stage string, d time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) RecordRecognition(string) {}
func (nopRecorder) RecordEnrollment(string) {}
func (nopRecorder) RecordEnrollmentSkip(string) {}
func (nopRecorder) ObserveStage(string, time.Duration) {}

// Deps are the collaborators a Service is built from.
type Deps struct {
	Store     Store
	Detector  recognition.Detector
	Extractor recognition.Extractor
	Liveness  liveness.Checker // nil behaves as an unavailable classifier
	Cache     *cache.StationCache
	Metrics   Recorder
}

// Options tune pipeline behavior.
type Options struct {
	AntiSpoofEnabled bool
	MinDetScore      float64
	Workers          int // concurrent inference calls
}

// Service runs recognition and enrollment. It is safe for concurrent use.
type Service struct {
	store     Store
	detector  recognition.Detector
	extractor recognition.Extractor
	liveness  liveness.Checker
	cache     *cache.StationCache
	metrics   Recorder
	sem       *semaphore.Weighted
	opts      Options
}

// New validates the dependencies and builds a Service.
func New(deps Deps, opts Options) (*Service, error) {
	if deps.Store == nil {
		return nil, errors.New("pipeline: store is required")
	}
	if deps.Detector == nil || deps.Extractor == nil {
		return nil, errors.New("pipeline: detector and extractor are required")
	}
	if deps.Liveness == nil {
		deps.Liveness = unavailableChecker{}
	}
	if deps.Cache == nil {
		deps.Cache = cache.NewStationCache(constants.DefaultCacheTTL)
	}
	if deps.Metrics == nil {
		deps.Metrics = nopRecorder{}
	}
	if opts.Workers <= 0 {
		opts.Workers = constants.DefaultInferenceWorkers
	}

	return &Service{
		store:     deps.Store,
		detector:  deps.Detector,
		extractor: deps.Extractor,
		liveness:  deps.Liveness,
		cache:     deps.Cache,
		metrics:   deps.Metrics,
		sem:       semaphore.NewWeighted(int64(opts.Workers)),
		opts:      opts,
	}, nil
}

// Cache exposes the station cache.
func (s *Service) Cache() *cache.StationCache {
	return s.cache
}

// livenessActive reports whether the liveness stage runs during recognition.
func (s *Service) livenessActive() bool {
	return s.opts.AntiSpoofEnabled && s.liveness.Available()
}

// infer runs fn under the inference semaphore and records its latency.
func (s *Service) infer(ctx context.Context, stage string, fn func() error) error {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return err //nolint:wrapcheck // context error
	}
	defer s.sem.Release(1)

	start := time.Now()
	err := fn()
	s.metrics.ObserveStage(stage, time.Since(start))
	return err
}

// observe records the latency of a stage that does not take the semaphore.
func (s *Service) observe(stage string, start time.Time) {
	s.metrics.ObserveStage(stage, time.Since(start))
}

type unavailableChecker struct{}

func (unavailableChecker) Check(context.Context, image.Image, facematch.BBox) liveness.Result {
	return liveness.Result{Live: true, Confidence: constants.LivenessFailOpenConfidence}
}

func (unavailableChecker) Available() bool { return false }
