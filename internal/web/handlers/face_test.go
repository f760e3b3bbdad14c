package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kozaktomas/face-service/internal/database"
	"github.com/kozaktomas/face-service/internal/pipeline"
)

func TestRecognize_Matched(t *testing.T) {
	svc := &stubService{outcome: pipeline.Outcome{
		Kind:        pipeline.OutcomeRecognized,
		PersonnelID: 42,
		Confidence:  0.8731,
		Message:     "Face recognized",
	}}
	h := NewFaceHandler(svc)

	rec := postJSON(t, h.Recognize, "/recognize", `{"image":"abc","station_id":3}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp RecognizeResponse
	decodeResponse(t, rec, &resp)
	if !resp.Success || resp.PersonnelID == nil || *resp.PersonnelID != 42 {
		t.Errorf("unexpected response %+v", resp)
	}
	if resp.Confidence != 0.8731 {
		t.Errorf("expected confidence 0.8731, got %v", resp.Confidence)
	}
	if svc.recognizeIn.Image != "abc" || svc.recognizeIn.StationID != 3 {
		t.Errorf("unexpected pipeline input %+v", svc.recognizeIn)
	}
}

func TestRecognize_FailureOutcomeIsNullPersonnel(t *testing.T) {
	svc := &stubService{outcome: pipeline.Outcome{
		Kind:     pipeline.OutcomeSpoof,
		Liveness: 0.1,
		Message:  "Spoofing detected (confidence: 0.10). Please use a live face.",
	}}
	h := NewFaceHandler(svc)

	rec := postJSON(t, h.Recognize, "/recognize", `{"image":"abc","station_id":3}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"personnel_id":null`) {
		t.Errorf("expected null personnel_id, got %s", rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"confidence":0`) {
		t.Errorf("expected zero confidence, got %s", rec.Body.String())
	}
}

func TestRecognize_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed json", `{"image":`, http.StatusBadRequest},
		{"missing image", `{"station_id":1}`, http.StatusUnprocessableEntity},
		{"missing station", `{"image":"abc"}`, http.StatusUnprocessableEntity},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubService{}
			rec := postJSON(t, NewFaceHandler(svc).Recognize, "/recognize", tc.body)

			if rec.Code != tc.want {
				t.Errorf("expected %d, got %d", tc.want, rec.Code)
			}
			if svc.recognizeIn != nil {
				t.Error("pipeline must not run for invalid requests")
			}
		})
	}
}

func TestRegister_Success(t *testing.T) {
	svc := &stubService{enroll: pipeline.EnrollResult{Success: true, Embeddings: [][]float32{{0.6, 0.8}}}}

	rec := postJSON(t, NewFaceHandler(svc).Register, "/register", `{"personnel_id":7,"images":["a","b"]}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp RegisterResponse
	decodeResponse(t, rec, &resp)
	if !resp.Success || len(resp.Embeddings) != 1 {
		t.Errorf("unexpected response %+v", resp)
	}
	if svc.enrollIn.PersonnelID != 7 || len(svc.enrollIn.Images) != 2 {
		t.Errorf("unexpected pipeline input %+v", svc.enrollIn)
	}
}

func TestRegister_FailureHasEmptyEmbeddings(t *testing.T) {
	svc := &stubService{enroll: pipeline.EnrollResult{}}

	rec := postJSON(t, NewFaceHandler(svc).Register, "/register", `{"personnel_id":7,"images":["a"]}`)

	if body := strings.TrimSpace(rec.Body.String()); body != `{"success":false,"embeddings":[]}` {
		t.Errorf("unexpected body %s", body)
	}
}

func TestRegister_Validation(t *testing.T) {
	many := `"x"` + strings.Repeat(`,"x"`, 20)
	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed json", `nope`, http.StatusBadRequest},
		{"missing personnel", `{"images":["a"]}`, http.StatusUnprocessableEntity},
		{"empty images", `{"personnel_id":1,"images":[]}`, http.StatusUnprocessableEntity},
		{"too many images", `{"personnel_id":1,"images":[` + many + `]}`, http.StatusUnprocessableEntity},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubService{}
			rec := postJSON(t, NewFaceHandler(svc).Register, "/register", tc.body)

			if rec.Code != tc.want {
				t.Errorf("expected %d, got %d", tc.want, rec.Code)
			}
			if svc.enrollIn != nil {
				t.Error("pipeline must not run for invalid requests")
			}
		})
	}
}

func TestHealth(t *testing.T) {
	svc := &stubService{health: pipeline.HealthStatus{
		Status:          "degraded",
		FaceDetection:   "not_loaded",
		FaceRecognition: "not_loaded",
		AntiSpoofing:    "disabled",
	}}
	rec := httptest.NewRecorder()

	NewFaceHandler(svc).Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	want := `{"status":"degraded","face_detection":"not_loaded","face_recognition":"not_loaded","anti_spoofing":"disabled"}`
	if got := strings.TrimSpace(rec.Body.String()); got != want {
		t.Errorf("body = %s, want %s", got, want)
	}
}

func TestMigrateEmbeddings(t *testing.T) {
	t.Run("nothing to migrate", func(t *testing.T) {
		rec := postJSON(t, NewFaceHandler(&stubService{}).MigrateEmbeddings, "/migrate-embeddings", "")

		var resp MigrateResponse
		decodeResponse(t, rec, &resp)
		if !resp.Success || resp.Message != "No personnel need migration" || resp.PersonnelIDs != nil {
			t.Errorf("unexpected response %+v", resp)
		}
		if strings.Contains(rec.Body.String(), "personnel_ids") {
			t.Errorf("personnel_ids should be omitted, got %s", rec.Body.String())
		}
	})

	t.Run("legacy personnel", func(t *testing.T) {
		svc := &stubService{report: database.LegacyReport{PersonnelIDs: []int64{4, 9}}}
		rec := postJSON(t, NewFaceHandler(svc).MigrateEmbeddings, "/migrate-embeddings", "")

		var resp MigrateResponse
		decodeResponse(t, rec, &resp)
		if len(resp.PersonnelIDs) != 2 || !strings.HasSuffix(resp.Message, "Personnel IDs: 4, 9") {
			t.Errorf("unexpected response %+v", resp)
		}
	})

	t.Run("store error", func(t *testing.T) {
		svc := &stubService{reportErr: errors.New("down")}
		rec := postJSON(t, NewFaceHandler(svc).MigrateEmbeddings, "/migrate-embeddings", "")

		if rec.Code != http.StatusInternalServerError {
			t.Errorf("expected 500, got %d", rec.Code)
		}
	})
}
