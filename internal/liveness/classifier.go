// Package liveness decides whether a detected face comes from a live person
// or from a printed photo or screen replay.
package liveness

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/kozaktomas/face-service/internal/config"
	"github.com/kozaktomas/face-service/internal/constants"
	"github.com/kozaktomas/face-service/internal/facematch"
	"github.com/kozaktomas/face-service/internal/inference"
	"github.com/kozaktomas/face-service/internal/logging"
)

// ErrModelUnavailable means no anti-spoofing model could be loaded.
var ErrModelUnavailable = errors.New("anti-spoofing model unavailable")

// Result is a liveness decision. Confidence is the probability the face is real.
type Result struct {
	Live       bool
	Confidence float64
}

// failOpen is reported whenever the check cannot run.
var failOpen = Result{Live: true, Confidence: constants.LivenessFailOpenConfidence}

// Checker is the contract the pipelines depend on. Check never fails: when the
// model is missing or inference errors, it reports a live face with confidence 1.
type Checker interface {
	Check(ctx context.Context, img image.Image, box facematch.BBox) Result
	Available() bool
}

// SpoofRunner is the subset of the inference client used by the classifier.
type SpoofRunner interface {
	SpoofModelInfo(ctx context.Context, path string) (*inference.SpoofModelInfo, error)
	SpoofInfer(ctx context.Context, model string, shape []int, data []float32) ([]float32, error)
}

// Classifier runs a MiniFASNet-style model through the inference sidecar.
// All fields are set by Load and read-only afterwards.
type Classifier struct {
	runner    SpoofRunner
	prep      Preprocessing
	threshold float64
	realIndex int
	modelPath string
	contract  OutputContract
	available bool
}

// NewClassifier builds an unloaded classifier from the anti-spoof settings.
func NewClassifier(runner SpoofRunner, cfg config.AntiSpoofConfig) *Classifier {
	m := cfg.Manifest
	return &Classifier{
		runner: runner,
		prep: Preprocessing{
			Width:      m.Input.Width,
			Height:     m.Input.Height,
			CropScale:  m.Crop.Scale,
			PixelScale: m.Input.Scale,
			BGR:        strings.EqualFold(m.Input.Channels, "bgr"),
		},
		threshold: cfg.Threshold,
		realIndex: cfg.RealClassIndex,
	}
}

// Load tries each candidate model path in order and resolves the output
// contract of the first one the sidecar can open.
func (c *Classifier) Load(ctx context.Context, paths []string) error {
	log := logging.Component("liveness")
	var errs []error
	for _, path := range paths {
		info, err := c.runner.SpoofModelInfo(ctx, path)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		contract, err := ResolveContract(info.Output, c.realIndex)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		c.modelPath = path
		c.contract = contract
		c.available = true
		log.Infof("Anti-spoofing model loaded from %s (%s, %d classes)", path, contract.Kind, contract.Classes)
		return nil
	}
	if len(paths) == 0 {
		errs = append(errs, errors.New("no model path configured"))
	}
	return fmt.Errorf("%w: %w", ErrModelUnavailable, errors.Join(errs...))
}

// Available reports whether a model was loaded.
func (c *Classifier) Available() bool {
	return c.available
}

// Contract returns the resolved output contract.
func (c *Classifier) Contract() OutputContract {
	return c.contract
}

// Check classifies the face region. It fails open.
func (c *Classifier) Check(ctx context.Context, img image.Image, box facematch.BBox) Result {
	if !c.available {
		return failOpen
	}
	log := logging.Component("liveness")

	tensor, err := c.prep.Tensor(img, box)
	if errors.Is(err, ErrEmptyCrop) {
		return failOpen
	}
	if err != nil {
		log.Warnf("Anti-spoof preprocessing failed: %v. Allowing through.", err)
		return failOpen
	}

	output, err := c.runner.SpoofInfer(ctx, c.modelPath, c.prep.Shape(), tensor)
	if err != nil {
		log.Warnf("Anti-spoof check failed: %v. Allowing through.", err)
		return failOpen
	}
	score, err := c.contract.RealScore(output)
	if err != nil {
		log.Warnf("Anti-spoof output rejected: %v. Allowing through.", err)
		return failOpen
	}

	res := Result{Live: score >= c.threshold, Confidence: score}
	log.Infof("Anti-spoof check: is_real=%t, confidence=%.3f, threshold=%.3f", res.Live, score, c.threshold)
	return res
}
