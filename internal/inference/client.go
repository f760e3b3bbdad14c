// Package inference talks to the model-serving sidecar that runs face
// detection, embedding extraction and anti-spoofing inference.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"
)

const (
	defaultInferenceURL = "http://localhost:8000"
	defaultFaceModel    = "buffalo_l"
	defaultTimeout      = 30 * time.Second
)

// ErrUnavailable wraps transport failures, so callers can tell "sidecar down"
// apart from "sidecar answered with an error".
var ErrUnavailable = errors.New("inference sidecar unavailable")

// Client calls the inference sidecar over HTTP.
type Client struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewClient creates a new inference client
func NewClient(baseURL, model string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultInferenceURL
	}
	if model == "" {
		model = defaultFaceModel
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

// Model returns the face model pack name requested from the sidecar
func (c *Client) Model() string {
	return c.model
}

// FaceDetection represents a single detected face
type FaceDetection struct {
	FaceIndex int       `json:"face_index"`
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
	BBox      []float64 `json:"bbox"` // [x1, y1, x2, y2]
	DetScore  float64   `json:"det_score"`
}

// FaceResponse represents the response from the face embedding endpoint
type FaceResponse struct {
	FacesCount int             `json:"faces_count"`
	Faces      []FaceDetection `json:"faces"`
	Model      string          `json:"model"`
}

// HealthResponse is the sidecar's readiness report
type HealthResponse struct {
	Status         string `json:"status"`
	Model          string `json:"model"`
	AntiSpoofModel string `json:"antispoof_model"`
}

// SpoofModelInfo describes an anti-spoofing model's tensor shapes
type SpoofModelInfo struct {
	Model  string `json:"model"`
	Input  []int  `json:"input"`
	Output []int  `json:"output"`
}

type spoofInferRequest struct {
	Model string    `json:"model"`
	Shape []int     `json:"shape"`
	Data  []float32 `json:"data"`
}

type spoofInferResponse struct {
	Output []float32 `json:"output"`
}

// do sends req and returns the body of a 200 response.
func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

// postMultipartImage posts the image as the multipart "file" part with an explicit Content-Type.
func (c *Client) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="image.jpg"`)
	h.Set("Content-Type", detectMIMEType(imageData))
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.WriteField("model", c.model); err != nil {
		return nil, fmt.Errorf("failed to write model field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return c.do(req)
}

// postJSON marshals payload and posts it to endpoint.
func (c *Client) postJSON(ctx context.Context, endpoint string, payload any) ([]byte, error) {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req)
}

// detectMIMEType detects the MIME type from image data
func detectMIMEType(data []byte) string {
	if len(data) < 8 {
		return "application/octet-stream"
	}
	// JPEG: FF D8 FF
	if data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return "image/jpeg"
	}
	// PNG: 89 50 4E 47 0D 0A 1A 0A
	if data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 {
		return "image/png"
	}
	return "application/octet-stream"
}

// ComputeFaceEmbeddings detects faces and computes their embeddings
func (c *Client) ComputeFaceEmbeddings(ctx context.Context, imageData []byte) (*FaceResponse, error) {
	body, err := c.postMultipartImage(ctx, "/embed/face", imageData)
	if err != nil {
		return nil, err
	}

	var faceResp FaceResponse
	if err := json.Unmarshal(body, &faceResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &faceResp, nil
}

// Health probes the sidecar's readiness
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	body, err := c.get(ctx, "/health")
	if err != nil {
		return nil, err
	}
	var h HealthResponse
	if err := json.Unmarshal(body, &h); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &h, nil
}

// SpoofModelInfo loads (if needed) the anti-spoofing model at path and reports its shapes
func (c *Client) SpoofModelInfo(ctx context.Context, path string) (*SpoofModelInfo, error) {
	body, err := c.get(ctx, "/antispoof/info?model="+url.QueryEscape(path))
	if err != nil {
		return nil, err
	}
	var info SpoofModelInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(info.Output) == 0 {
		return nil, errors.New("model info has no output shape")
	}
	return &info, nil
}

// SpoofInfer runs the anti-spoofing model on a preprocessed tensor and returns the raw output row
func (c *Client) SpoofInfer(ctx context.Context, model string, shape []int, data []float32) ([]float32, error) {
	body, err := c.postJSON(ctx, "/antispoof/infer", spoofInferRequest{Model: model, Shape: shape, Data: data})
	if err != nil {
		return nil, err
	}
	var resp spoofInferResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(resp.Output) == 0 {
		return nil, errors.New("empty model output")
	}
	return resp.Output, nil
}
