package pipeline

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/png"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kozaktomas/face-service/internal/cache"
	"github.com/kozaktomas/face-service/internal/database"
	"github.com/kozaktomas/face-service/internal/database/mock"
	"github.com/kozaktomas/face-service/internal/facematch"
	"github.com/kozaktomas/face-service/internal/liveness"
	"github.com/kozaktomas/face-service/internal/recognition"
)

type stubDetector struct {
	mu        sync.Mutex
	responses [][]recognition.Face // one per call; the last one repeats
	err       error
	unloaded  bool
	calls     int
	delay     time.Duration
	inFlight  atomic.Int32
	maxFlight atomic.Int32
}

func (d *stubDetector) Detect(_ context.Context, _ image.Image) ([]recognition.Face, error) {
	n := d.inFlight.Add(1)
	defer d.inFlight.Add(-1)
	for {
		cur := d.maxFlight.Load()
		if n <= cur || d.maxFlight.CompareAndSwap(cur, n) {
			break
		}
	}
	if d.delay > 0 {
		time.Sleep(d.delay)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	idx := d.calls
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	if len(d.responses) == 0 {
		return nil, nil
	}
	if idx >= len(d.responses) {
		idx = len(d.responses) - 1
	}
	return d.responses[idx], nil
}

func (d *stubDetector) Loaded() bool { return !d.unloaded }

func (d *stubDetector) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

type stubExtractor struct {
	mu    sync.Mutex
	calls int
}

func (e *stubExtractor) Extract(_ context.Context, face recognition.Face) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if len(face.Embedding) == 0 {
		return nil, recognition.ErrNoEmbedding
	}
	return facematch.L2Normalize(face.Embedding), nil
}

func (e *stubExtractor) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

type stubLiveness struct {
	mu        sync.Mutex
	available bool
	results   []liveness.Result // one per call; exhausted means live
	calls     int
}

func (l *stubLiveness) Check(_ context.Context, _ image.Image, _ facematch.BBox) liveness.Result {
	l.mu.Lock()
	defer l.mu.Unlock()
	idx := l.calls
	l.calls++
	if idx < len(l.results) {
		return l.results[idx]
	}
	return liveness.Result{Live: true, Confidence: 0.99}
}

func (l *stubLiveness) Available() bool { return l.available }

type stubRecorder struct {
	mu          sync.Mutex
	recognition []string
	enrollment  []string
	skips       []string
	stages      map[string]int
}

func (r *stubRecorder) RecordRecognition(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recognition = append(r.recognition, outcome)
}

func (r *stubRecorder) RecordEnrollment(result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enrollment = append(r.enrollment, result)
}

func (r *stubRecorder) RecordEnrollmentSkip(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skips = append(r.skips, reason)
}

func (r *stubRecorder) ObserveStage(stage string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stages == nil {
		r.stages = map[string]int{}
	}
	r.stages[stage]++
}

type fixture struct {
	svc      *Service
	store    *mock.MockStore
	detector *stubDetector
	extract  *stubExtractor
	live     *stubLiveness
	recorder *stubRecorder
}

func newFixture(t *testing.T, antiSpoof bool) *fixture {
	t.Helper()
	f := &fixture{
		store:    mock.NewMockStore(),
		detector: &stubDetector{},
		extract:  &stubExtractor{},
		live:     &stubLiveness{available: true},
		recorder: &stubRecorder{},
	}
	svc, err := New(Deps{
		Store:     f.store,
		Detector:  f.detector,
		Extractor: f.extract,
		Liveness:  f.live,
		Cache:     cache.NewStationCache(time.Minute),
		Metrics:   f.recorder,
	}, Options{AntiSpoofEnabled: antiSpoof, MinDetScore: 0.5, Workers: 2})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func encodedImage(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func face(score float64, embedding ...float32) recognition.Face {
	return recognition.Face{
		BBox:      facematch.BBox{2, 2, 12, 12},
		DetScore:  score,
		Embedding: embedding,
	}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Deps{Detector: &stubDetector{}, Extractor: &stubExtractor{}}, Options{})
	assert.Error(t, err)

	_, err = New(Deps{Store: mock.NewMockStore()}, Options{})
	assert.Error(t, err)

	svc, err := New(Deps{Store: mock.NewMockStore(), Detector: &stubDetector{}, Extractor: &stubExtractor{}}, Options{})
	require.NoError(t, err)
	assert.NotNil(t, svc.Cache())
	assert.False(t, svc.liveness.Available())
}

func TestRecognize_InvalidImage(t *testing.T) {
	f := newFixture(t, true)

	out := f.svc.Recognize(context.Background(), RecognizeInput{Image: "%%%not-base64%%%", StationID: 1})

	assert.Equal(t, OutcomeInvalidImage, out.Kind)
	assert.Equal(t, "Invalid image data", out.Message)
	assert.False(t, out.Success())
	assert.Zero(t, out.Confidence)
	assert.Equal(t, 0, f.detector.Calls())
	assert.Equal(t, []string{"invalid_image"}, f.recorder.recognition)
}

func TestRecognize_NoFaceAboveMinScore(t *testing.T) {
	f := newFixture(t, true)
	f.detector.responses = [][]recognition.Face{{face(0.3, 1, 0)}}

	out := f.svc.Recognize(context.Background(), RecognizeInput{Image: encodedImage(t), StationID: 1})

	assert.Equal(t, OutcomeNoFace, out.Kind)
	assert.Equal(t, "No face detected", out.Message)
	assert.Equal(t, 0, f.live.calls)
	assert.Equal(t, 0, f.extract.Calls())
}

func TestRecognize_DetectorErrorIsNoFace(t *testing.T) {
	f := newFixture(t, false)
	f.detector.err = errors.New("sidecar down")

	out := f.svc.Recognize(context.Background(), RecognizeInput{Image: encodedImage(t), StationID: 1})

	assert.Equal(t, OutcomeNoFace, out.Kind)
}

func TestRecognize_SpoofShortCircuits(t *testing.T) {
	f := newFixture(t, true)
	f.detector.responses = [][]recognition.Face{{face(0.9, 1, 0)}}
	f.live.results = []liveness.Result{{Live: false, Confidence: 0.12}}

	out := f.svc.Recognize(context.Background(), RecognizeInput{Image: encodedImage(t), StationID: 1})

	assert.Equal(t, OutcomeSpoof, out.Kind)
	assert.Equal(t, "Spoofing detected (confidence: 0.12). Please use a live face.", out.Message)
	assert.InDelta(t, 0.12, out.Liveness, 1e-9)
	assert.Zero(t, out.Confidence)
	assert.Equal(t, 0, f.extract.Calls())
	assert.Equal(t, 0, f.store.FetchCalls())
}

func TestRecognize_LivenessSkippedWhenUnavailableOrDisabled(t *testing.T) {
	for _, tc := range []struct {
		name      string
		enabled   bool
		available bool
	}{
		{"unavailable", true, false},
		{"disabled", false, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, tc.enabled)
			f.live.available = tc.available
			f.live.results = []liveness.Result{{Live: false, Confidence: 0.01}}
			f.detector.responses = [][]recognition.Face{{face(0.9, 1, 0)}}
			f.store.AddPersonnel(7, 1)
			require.NoError(t, f.store.AppendEmbeddings(context.Background(), 7, [][]float32{{1, 0}}))

			out := f.svc.Recognize(context.Background(), RecognizeInput{Image: encodedImage(t), StationID: 1})

			assert.Equal(t, OutcomeRecognized, out.Kind)
			assert.Equal(t, 0, f.live.calls)
		})
	}
}

func TestRecognize_ExtractionFailed(t *testing.T) {
	f := newFixture(t, false)
	f.detector.responses = [][]recognition.Face{{face(0.9)}}

	out := f.svc.Recognize(context.Background(), RecognizeInput{Image: encodedImage(t), StationID: 1})

	assert.Equal(t, OutcomeExtractionFailed, out.Kind)
	assert.Equal(t, "Embedding extraction failed", out.Message)
	assert.Equal(t, 0, f.store.FetchCalls())
}

func TestRecognize_DatabaseError(t *testing.T) {
	f := newFixture(t, false)
	f.detector.responses = [][]recognition.Face{{face(0.9, 1, 0)}}
	f.store.FetchError = errors.New("connection refused")

	out := f.svc.Recognize(context.Background(), RecognizeInput{Image: encodedImage(t), StationID: 1})

	assert.Equal(t, OutcomeDatabaseError, out.Kind)
	assert.Equal(t, "Database error", out.Message)
	assert.Equal(t, 0, f.svc.Cache().Len())
}

func TestRecognize_NoCandidates(t *testing.T) {
	f := newFixture(t, false)
	f.detector.responses = [][]recognition.Face{{face(0.9, 1, 0)}}

	out := f.svc.Recognize(context.Background(), RecognizeInput{Image: encodedImage(t), StationID: 1})

	assert.Equal(t, OutcomeNoCandidates, out.Kind)
	assert.Equal(t, "No registered faces for this station", out.Message)
}

func TestRecognize_MatchAndCache(t *testing.T) {
	f := newFixture(t, true)
	f.detector.responses = [][]recognition.Face{{face(0.9, 3, 0)}}
	f.store.AddPersonnel(1, 10)
	f.store.AddPersonnel(2, 10)
	f.store.AddPersonnel(3, 20)
	ctx := context.Background()
	require.NoError(t, f.store.AppendEmbeddings(ctx, 1, [][]float32{{1, 0}}))
	require.NoError(t, f.store.AppendEmbeddings(ctx, 2, [][]float32{{0, 1}}))
	require.NoError(t, f.store.AppendEmbeddings(ctx, 3, [][]float32{{1, 0}}))

	out := f.svc.Recognize(ctx, RecognizeInput{Image: encodedImage(t), StationID: 10})
	require.True(t, out.Success())
	assert.Equal(t, int64(1), out.PersonnelID)
	assert.InDelta(t, 1.0, out.Confidence, 1e-9)
	assert.Equal(t, "Face recognized", out.Message)

	again := f.svc.Recognize(ctx, RecognizeInput{Image: encodedImage(t), StationID: 10})
	assert.Equal(t, out, again)
	assert.Equal(t, 1, f.store.FetchCalls(), "second request should be served from cache")
	assert.Equal(t, []string{"recognized", "recognized"}, f.recorder.recognition)
	assert.Equal(t, 2, f.recorder.stages["detect"])
	assert.Equal(t, 1, f.recorder.stages["fetch"])
}

func TestRecognize_NotRecognizedWhenAllScoresMinimal(t *testing.T) {
	f := newFixture(t, false)
	f.detector.responses = [][]recognition.Face{{face(0.9, 1, 0)}}
	f.store.AddPersonnel(1, 10)
	require.NoError(t, f.store.AppendEmbeddings(context.Background(), 1, [][]float32{{-1, 0, 0}}))

	out := f.svc.Recognize(context.Background(), RecognizeInput{Image: encodedImage(t), StationID: 10})

	assert.Equal(t, OutcomeNotRecognized, out.Kind)
	assert.Equal(t, "Face not recognized", out.Message)
}

func TestRecognize_InferenceIsBounded(t *testing.T) {
	f := newFixture(t, false)
	f.detector.delay = 20 * time.Millisecond

	var wg sync.WaitGroup
	for range 6 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.svc.Recognize(context.Background(), RecognizeInput{Image: encodedImage(t), StationID: 1})
		}()
	}
	wg.Wait()

	assert.Equal(t, 6, f.detector.Calls())
	assert.LessOrEqual(t, f.detector.maxFlight.Load(), int32(2))
}

func TestEnroll_FailsClosedWithoutLivenessModel(t *testing.T) {
	f := newFixture(t, true)
	f.live.available = false
	f.detector.responses = [][]recognition.Face{{face(0.9, 1, 0)}}

	res := f.svc.Enroll(context.Background(), EnrollInput{PersonnelID: 1, Images: []string{encodedImage(t)}})

	assert.False(t, res.Success)
	assert.Empty(t, res.Embeddings)
	assert.Equal(t, 0, f.detector.Calls())
	assert.Equal(t, 0, f.store.AppendCalls())
	assert.Equal(t, []string{EnrollRejected}, f.recorder.enrollment)
}

func TestEnroll_PartialSuccess(t *testing.T) {
	f := newFixture(t, true)
	f.store.AddPersonnel(5, 10)
	f.detector.responses = [][]recognition.Face{
		{},
		{face(0.9, 0, 1)},
		{face(0.9, 2, 0)},
	}
	f.live.results = []liveness.Result{
		{Live: false, Confidence: 0.2},
		{Live: true, Confidence: 0.97},
	}
	img := encodedImage(t)

	res := f.svc.Enroll(context.Background(), EnrollInput{PersonnelID: 5, Images: []string{img, img, img}})

	require.True(t, res.Success)
	require.Len(t, res.Embeddings, 1)
	assert.InDelta(t, 1.0, res.Embeddings[0][0], 1e-6)
	assert.Equal(t, 1, f.store.AppendCalls())
	assert.Len(t, f.store.Embeddings(5), 1)
	assert.Equal(t, []string{SkipNoFace, SkipSpoof}, f.recorder.skips)
	assert.Equal(t, []string{EnrollSuccess}, f.recorder.enrollment)
}

func TestEnroll_DecodeFailureAbortsRequest(t *testing.T) {
	f := newFixture(t, false)
	f.detector.responses = [][]recognition.Face{{face(0.9, 1, 0)}}

	res := f.svc.Enroll(context.Background(), EnrollInput{
		PersonnelID: 1,
		Images:      []string{encodedImage(t), "not an image"},
	})

	assert.False(t, res.Success)
	assert.Empty(t, res.Embeddings)
	assert.Equal(t, 0, f.store.AppendCalls())
}

func TestEnroll_ExtractionFailureSkipsImage(t *testing.T) {
	f := newFixture(t, false)
	f.detector.responses = [][]recognition.Face{{face(0.9)}, {face(0.9, 0, 4)}}
	img := encodedImage(t)

	res := f.svc.Enroll(context.Background(), EnrollInput{PersonnelID: 1, Images: []string{img, img}})

	require.True(t, res.Success)
	assert.Equal(t, [][]float32{{0, 1}}, res.Embeddings)
	assert.Equal(t, []string{SkipExtractionFailed}, f.recorder.skips)
}

func TestEnroll_NoUsableImages(t *testing.T) {
	f := newFixture(t, false)
	img := encodedImage(t)

	res := f.svc.Enroll(context.Background(), EnrollInput{PersonnelID: 1, Images: []string{img, img}})

	assert.False(t, res.Success)
	assert.Equal(t, 0, f.store.AppendCalls())
	assert.Equal(t, []string{EnrollNoEmbeddings}, f.recorder.enrollment)
}

func TestEnroll_StoreError(t *testing.T) {
	f := newFixture(t, false)
	f.detector.responses = [][]recognition.Face{{face(0.9, 1, 0)}}
	f.store.AppendError = errors.New("deadlock")

	res := f.svc.Enroll(context.Background(), EnrollInput{PersonnelID: 1, Images: []string{encodedImage(t)}})

	assert.False(t, res.Success)
	assert.Empty(t, res.Embeddings)
	assert.Equal(t, []string{EnrollStoreError}, f.recorder.enrollment)
}

func TestEnroll_InvalidatesStationCache(t *testing.T) {
	f := newFixture(t, false)
	f.store.AddPersonnel(5, 10)
	f.svc.Cache().Put(10, []database.Candidate{{PersonnelID: 9, Embedding: []float32{1, 0}}})
	f.svc.Cache().Put(20, []database.Candidate{{PersonnelID: 8, Embedding: []float32{1, 0}}})
	f.detector.responses = [][]recognition.Face{{face(0.9, 1, 0)}}

	res := f.svc.Enroll(context.Background(), EnrollInput{PersonnelID: 5, Images: []string{encodedImage(t)}})

	require.True(t, res.Success)
	_, ok := f.svc.Cache().Get(10)
	assert.False(t, ok, "station 10 should be invalidated")
	_, ok = f.svc.Cache().Get(20)
	assert.True(t, ok, "other stations stay cached")
}

func TestEnroll_StationLookupFailureIsNonFatal(t *testing.T) {
	f := newFixture(t, false)
	f.detector.responses = [][]recognition.Face{{face(0.9, 1, 0)}}
	f.store.StationError = errors.New("timeout")

	res := f.svc.Enroll(context.Background(), EnrollInput{PersonnelID: 5, Images: []string{encodedImage(t)}})

	assert.True(t, res.Success)
	assert.Len(t, res.Embeddings, 1)
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name      string
		unloaded  bool
		enabled   bool
		available bool
		want      HealthStatus
	}{
		{"all loaded", false, true, true, HealthStatus{"healthy", "loaded", "loaded", "loaded"}},
		{"anti-spoof disabled", false, false, false, HealthStatus{"healthy", "loaded", "loaded", "disabled"}},
		{"anti-spoof missing", false, true, false, HealthStatus{"healthy", "loaded", "loaded", "not_loaded"}},
		{"face model missing", true, true, true, HealthStatus{"degraded", "not_loaded", "not_loaded", "loaded"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, tc.enabled)
			f.detector.unloaded = tc.unloaded
			f.live.available = tc.available
			assert.Equal(t, tc.want, f.svc.Health())
		})
	}
}

func TestLegacyReport(t *testing.T) {
	f := newFixture(t, false)
	f.store.AddPersonnel(1, 10)
	f.store.AddPersonnel(2, 20)
	f.store.AddPersonnel(3, 20)
	f.store.AddLegacyEmbedding(1, []float32{1, 0})
	f.store.AddLegacyEmbedding(2, []float32{0, 1})
	f.store.AddLegacyEmbedding(3, []float32{0, 1})
	require.NoError(t, f.store.AppendEmbeddings(context.Background(), 3, [][]float32{{1, 1}}))

	report, err := f.svc.LegacyReport(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, report.PersonnelIDs)
	assert.Equal(t, map[int64]int64{1: 10, 2: 20}, report.Stations)

	f.store.LegacyError = errors.New("boom")
	_, err = f.svc.LegacyReport(context.Background())
	assert.Error(t, err)
}

func TestLegacyMessage(t *testing.T) {
	assert.Equal(t, "No personnel need migration", LegacyMessage(nil))
	assert.Equal(t,
		"Found 2 personnel with only legacy embeddings. They need to be re-registered via the /register endpoint with new face photos. Personnel IDs: 1, 2",
		LegacyMessage([]int64{1, 2}))
}
