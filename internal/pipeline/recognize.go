package pipeline

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/kozaktomas/face-service/internal/database"
	"github.com/kozaktomas/face-service/internal/facematch"
	"github.com/kozaktomas/face-service/internal/imagecodec"
	"github.com/kozaktomas/face-service/internal/liveness"
	"github.com/kozaktomas/face-service/internal/metrics"
	"github.com/kozaktomas/face-service/internal/recognition"
)

// OutcomeKind is the terminal stage a recognition request reached.
type OutcomeKind int

const (
	OutcomeRecognized OutcomeKind = iota
	OutcomeInvalidImage
	OutcomeNoFace
	OutcomeSpoof
	OutcomeExtractionFailed
	OutcomeDatabaseError
	OutcomeNoCandidates
	OutcomeNotRecognized
)

var outcomeNames = map[OutcomeKind]string{
	OutcomeRecognized:       "recognized",
	OutcomeInvalidImage:     "invalid_image",
	OutcomeNoFace:           "no_face",
	OutcomeSpoof:            "spoof",
	OutcomeExtractionFailed: "extraction_failed",
	OutcomeDatabaseError:    "database_error",
	OutcomeNoCandidates:     "no_candidates",
	OutcomeNotRecognized:    "not_recognized",
}

// String returns the metrics label of the kind.
func (k OutcomeKind) String() string {
	if name, ok := outcomeNames[k]; ok {
		return name
	}
	return "unknown"
}

// Outcome is the result of a recognition request.
type Outcome struct {
	Kind        OutcomeKind
	PersonnelID int64   // set only when Kind is OutcomeRecognized
	Confidence  float64 // match confidence; 0 unless recognized
	Liveness    float64 // classifier confidence, set for OutcomeSpoof
	Message     string
}

// Success reports whether a person was identified.
func (o Outcome) Success() bool {
	return o.Kind == OutcomeRecognized
}

func newOutcome(kind OutcomeKind) Outcome {
	o := Outcome{Kind: kind}
	switch kind {
	case OutcomeInvalidImage:
		o.Message = "Invalid image data"
	case OutcomeNoFace:
		o.Message = "No face detected"
	case OutcomeExtractionFailed:
		o.Message = "Embedding extraction failed"
	case OutcomeDatabaseError:
		o.Message = "Database error"
	case OutcomeNoCandidates:
		o.Message = "No registered faces for this station"
	case OutcomeNotRecognized:
		o.Message = "Face not recognized"
	case OutcomeRecognized:
		o.Message = "Face recognized"
	}
	return o
}

func spoofOutcome(confidence float64) Outcome {
	return Outcome{
		Kind:     OutcomeSpoof,
		Liveness: confidence,
		Message:  fmt.Sprintf("Spoofing detected (confidence: %.2f). Please use a live face.", confidence),
	}
}

// RecognizeInput is a single recognition request.
type RecognizeInput struct {
	Image     string // base64, optionally a data URI
	StationID int64
}

// Recognize identifies the person in the image among those enrolled at the station.
// Every failure maps to a terminal outcome; it never returns an error.
func (s *Service) Recognize(ctx context.Context, in RecognizeInput) Outcome {
	outcome := s.recognize(ctx, in)
	s.metrics.RecordRecognition(outcome.Kind.String())
	return outcome
}

func (s *Service) recognize(ctx context.Context, in RecognizeInput) Outcome {
	start := time.Now()
	img, err := imagecodec.DecodeBase64(in.Image)
	s.observe(metrics.StageDecode, start)
	if err != nil {
		log.Errorf("Image decode failed: %v", err)
		return newOutcome(OutcomeInvalidImage)
	}

	face, ok := s.detect(ctx, img)
	if !ok {
		return newOutcome(OutcomeNoFace)
	}

	if s.livenessActive() {
		var res liveness.Result
		err := s.infer(ctx, metrics.StageLiveness, func() error {
			res = s.liveness.Check(ctx, img, face.BBox)
			return nil
		})
		if err != nil {
			log.Warnf("Liveness check skipped: %v", err)
		} else if !res.Live {
			return spoofOutcome(res.Confidence)
		}
	}

	embedding, err := s.extract(ctx, face)
	if err != nil {
		log.Errorf("Embedding extraction failed: %v", err)
		return newOutcome(OutcomeExtractionFailed)
	}

	candidates, err := s.candidates(ctx, in.StationID)
	if err != nil {
		log.Errorf("Database query failed: %v", err)
		return newOutcome(OutcomeDatabaseError)
	}
	if len(candidates) == 0 {
		return newOutcome(OutcomeNoCandidates)
	}

	start = time.Now()
	match, found := facematch.FindBestMatch(embedding, candidates)
	s.observe(metrics.StageMatch, start)
	if !found {
		return newOutcome(OutcomeNotRecognized)
	}

	outcome := newOutcome(OutcomeRecognized)
	outcome.PersonnelID = match.PersonnelID
	outcome.Confidence = match.Confidence
	log.Debugf("Station %d: matched personnel %d (confidence %.4f)", in.StationID, match.PersonnelID, match.Confidence)
	return outcome
}

// detect returns the largest face meeting the minimum detection score.
// Detector failures are logged and reported as no face.
func (s *Service) detect(ctx context.Context, img image.Image) (recognition.Face, bool) {
	var faces []recognition.Face
	err := s.infer(ctx, metrics.StageDetect, func() error {
		var err error
		faces, err = s.detector.Detect(ctx, img)
		return err
	})
	if err != nil {
		log.Warnf("Face detection failed: %v", err)
		return recognition.Face{}, false
	}
	return recognition.SelectFace(faces, s.opts.MinDetScore)
}

func (s *Service) extract(ctx context.Context, face recognition.Face) ([]float32, error) {
	var embedding []float32
	err := s.infer(ctx, metrics.StageExtract, func() error {
		var err error
		embedding, err = s.extractor.Extract(ctx, face)
		return err
	})
	return embedding, err
}

// candidates returns the station's embedding set, from the cache when fresh.
func (s *Service) candidates(ctx context.Context, stationID int64) ([]database.Candidate, error) {
	if cached, ok := s.cache.Get(stationID); ok {
		return cached, nil
	}

	start := time.Now()
	candidates, err := s.store.FetchByStation(ctx, stationID)
	s.observe(metrics.StageFetch, start)
	if err != nil {
		return nil, fmt.Errorf("fetch embeddings for station %d: %w", stationID, err)
	}
	log.Debugf("Loaded %d embeddings for station %d (dims %v)", len(candidates), stationID, database.Dims(candidates))
	s.cache.Put(stationID, candidates)
	return candidates, nil
}
