package faceclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrNoImage is returned when a frame carries no image reference.
	ErrNoImage = errors.New("faceclient: image url required")
	// ErrUnavailable wraps transport failures and non-2xx answers.
	ErrUnavailable = errors.New("faceclient: face service unavailable")
)

// EmbedResult is the face service's answer for one frame. Embedding is the
// first detected face; it is empty when FacesDetected is zero.
type EmbedResult struct {
	Embedding     []float32
	Score         float64
	FacesDetected int
}

// Client talks to the embedding service over JSON/HTTP. In Skip mode no
// requests are made and every frame yields SkipEmbedding.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Skip    bool

	SkipEmbedding []float32
}

func New(baseURL string, skip bool) *Client {
	return &Client{
		BaseURL:       strings.TrimRight(baseURL, "/"),
		Skip:          skip,
		SkipEmbedding: []float32{0.1, 0.2, 0.3},
		// embedding a full frame can take several seconds on CPU
		HTTP: &http.Client{Timeout: 30 * time.Second},
	}
}

type embedRequest struct {
	ImageURL string `json:"image_url"`
}

type embedResponse struct {
	Embedding     []float32 `json:"embedding"`
	Score         float64   `json:"score"`
	FacesDetected int       `json:"faces_detected"`
}

// EmbedWithScore extracts the signature of the first face in the image.
// A frame without faces is not an error.
func (c *Client) EmbedWithScore(ctx context.Context, imageURL string) (*EmbedResult, error) {
	if c.Skip {
		return &EmbedResult{Embedding: append([]float32(nil), c.SkipEmbedding...), Score: 1, FacesDetected: 1}, nil
	}
	if imageURL == "" {
		return nil, ErrNoImage
	}

	var out embedResponse
	if err := c.call(ctx, http.MethodPost, "/embed", embedRequest{ImageURL: imageURL}, &out); err != nil {
		return nil, err
	}
	res := &EmbedResult{Embedding: out.Embedding, Score: out.Score, FacesDetected: out.FacesDetected}
	if len(res.Embedding) == 0 {
		res.FacesDetected = 0
	}
	return res, nil
}

// Health calls GET /health.
func (c *Client) Health(ctx context.Context) error {
	if c.Skip {
		return nil
	}
	return c.call(ctx, http.MethodGet, "/health", nil, nil)
}

// call sends in as JSON (when non-nil) and decodes the reply into out
// (when non-nil).
func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("faceclient: encode %s: %w", path, err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: %s %s: %s: %s", ErrUnavailable, method, path, resp.Status, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("faceclient: decode %s: %w", path, err)
	}
	return nil
}
