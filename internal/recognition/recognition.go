// Package recognition provides face detection and embedding extraction backed
// by the inference sidecar.
package recognition

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sort"
	"sync/atomic"

	"github.com/kozaktomas/face-service/internal/constants"
	"github.com/kozaktomas/face-service/internal/facematch"
	"github.com/kozaktomas/face-service/internal/imagecodec"
	"github.com/kozaktomas/face-service/internal/inference"
	"github.com/kozaktomas/face-service/internal/logging"
)

var (
	// ErrNoEmbedding means the detector produced a face without an embedding.
	ErrNoEmbedding = errors.New("face has no embedding")
	// ErrModelNotLoaded means the detector has not passed its startup probe.
	ErrModelNotLoaded = errors.New("face model not loaded")
)

// Face is one detection: its box in original raster pixels, the detector
// confidence and the raw embedding computed alongside it.
type Face struct {
	BBox      facematch.BBox
	DetScore  float64
	Embedding []float32
}

// Detector finds faces, largest first.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]Face, error)
	Loaded() bool
}

// Extractor turns a detected face into an L2-normalized embedding.
type Extractor interface {
	Extract(ctx context.Context, face Face) ([]float32, error)
}

// FaceClient is the subset of the inference client the sidecar model needs.
type FaceClient interface {
	ComputeFaceEmbeddings(ctx context.Context, imageData []byte) (*inference.FaceResponse, error)
	Health(ctx context.Context) (*inference.HealthResponse, error)
}

// SortByAreaDesc orders faces by bounding-box area, largest first; equal areas keep their order.
func SortByAreaDesc(faces []Face) {
	sort.SliceStable(faces, func(i, j int) bool {
		return faces[i].BBox.Area() > faces[j].BBox.Area()
	})
}

// SelectFace returns the first face with DetScore >= minScore. faces must already be sorted.
func SelectFace(faces []Face, minScore float64) (Face, bool) {
	for _, f := range faces {
		if f.DetScore >= minScore {
			return f, true
		}
	}
	return Face{}, false
}

// SidecarModel implements Detector and Extractor on top of the inference sidecar.
type SidecarModel struct {
	client    FaceClient
	maxSize   int
	quality   int
	loaded    atomic.Bool
	modelName string
}

// NewSidecarModel creates a detector/extractor. Call Load before serving.
func NewSidecarModel(client FaceClient, maxSize int) *SidecarModel {
	if maxSize <= 0 {
		maxSize = constants.MaxImageSize
	}
	return &SidecarModel{client: client, maxSize: maxSize, quality: constants.UploadJPEGQuality}
}

// Load probes the sidecar once. A failed probe leaves the model unloaded.
func (m *SidecarModel) Load(ctx context.Context) error {
	h, err := m.client.Health(ctx)
	if err != nil {
		m.loaded.Store(false)
		return fmt.Errorf("probing face model: %w", err)
	}
	m.modelName = h.Model
	m.loaded.Store(true)
	logging.Component("recognition").Infof("Face model %q loaded", h.Model)
	return nil
}

// Loaded reports whether the startup probe succeeded.
func (m *SidecarModel) Loaded() bool {
	return m.loaded.Load()
}

// ModelName returns the model reported by the sidecar.
func (m *SidecarModel) ModelName() string {
	return m.modelName
}

// Detect uploads the image and returns the faces sorted by area, with boxes
// mapped back to the original raster.
func (m *SidecarModel) Detect(ctx context.Context, img image.Image) ([]Face, error) {
	if !m.Loaded() {
		return nil, ErrModelNotLoaded
	}
	upload, err := imagecodec.EncodeForUpload(img, m.maxSize, m.quality)
	if err != nil {
		return nil, err
	}
	resp, err := m.client.ComputeFaceEmbeddings(ctx, upload.Data)
	if err != nil {
		return nil, fmt.Errorf("detecting faces: %w", err)
	}

	origin := img.Bounds().Min
	faces := make([]Face, 0, len(resp.Faces))
	for _, d := range resp.Faces {
		box, ok := facematch.BBoxFromSlice(d.BBox)
		if !ok {
			logging.Component("recognition").Warnf("Ignoring face %d with malformed bbox %v", d.FaceIndex, d.BBox)
			continue
		}
		box = box.Scale(upload.Scale)
		box = facematch.BBox{box[0] + float64(origin.X), box[1] + float64(origin.Y), box[2] + float64(origin.X), box[3] + float64(origin.Y)}
		faces = append(faces, Face{BBox: box, DetScore: d.DetScore, Embedding: d.Embedding})
	}
	SortByAreaDesc(faces)
	return faces, nil
}

// Extract returns the face's embedding, L2-normalized.
func (m *SidecarModel) Extract(_ context.Context, face Face) ([]float32, error) {
	if len(face.Embedding) == 0 {
		return nil, ErrNoEmbedding
	}
	return facematch.L2Normalize(face.Embedding), nil
}
