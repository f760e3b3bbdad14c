// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

import "time"

// Matching constants
const (
	// CentroidEpsilon is added to the centroid norm before dividing, so an
	// all-zero centroid never divides by zero
	CentroidEpsilon = 1e-10

	// ConfidencePrecision is the number of decimal places a match confidence is rounded to
	ConfidencePrecision = 4

	// LegacyEmbeddingDim is the dimension of embeddings in the legacy face_data table
	LegacyEmbeddingDim = 128

	// EmbeddingDim is the dimension of embeddings produced by the current model pack
	EmbeddingDim = 512
)

// Cache constants
const (
	// DefaultCacheTTL is how long a station's embedding set stays fresh
	DefaultCacheTTL = 60 * time.Second
)

// Processing constants
const (
	// DefaultInferenceWorkers is the default number of concurrent inference calls
	DefaultInferenceWorkers = 4

	// MaxImageSize is the maximum dimension (width or height) sent to the inference sidecar
	MaxImageSize = 1920

	// UploadJPEGQuality is the JPEG quality used when re-encoding images for the sidecar
	UploadJPEGQuality = 90

	// DefaultEnrollConcurrency is the number of personnel enrolled in parallel by the CLI
	DefaultEnrollConcurrency = 4
)

// Liveness constants
const (
	// LivenessFailOpenConfidence is reported when the liveness check cannot run
	LivenessFailOpenConfidence = 1.0
)
