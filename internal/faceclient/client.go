package faceclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"attendly/internal/errs"
)

// MockScheme marks image URLs that Skip mode resolves to a regNo, as in mock://REG001.
const MockScheme = "mock://"

// Match is the best gallery hit for an image.
type Match struct {
	RegNo      string  `json:"regNo"`
	Similarity float64 `json:"similarity"`
}

// Client calls the face recognition service. Its responses are treated as untrusted input.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Skip    bool
}

// New creates a client with configurable timeout.
func New(baseURL string, skip bool) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Skip:    skip,
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// RegisterInput identifies the user whose face is being enrolled.
type RegisterInput struct {
	RegNo    string `json:"regNo"`
	Email    string `json:"email"`
	Token    string `json:"token"`
	ImageURL string `json:"image_url"`
}

// Register enrolls a face and returns its embedding.
func (c *Client) Register(ctx context.Context, in RegisterInput) ([]float64, error) {
	if c.Skip {
		return []float64{0.1, 0.2, 0.3}, nil
	}
	if in.ImageURL == "" {
		return nil, errs.ErrImageRequired
	}
	var out struct {
		Embedding []float64 `json:"embedding"`
	}
	if err := c.post(ctx, "/register", in, &out); err != nil {
		return nil, err
	}
	if len(out.Embedding) == 0 {
		return nil, fmt.Errorf("%w: no face detected in image", errs.ErrFaceService)
	}
	return out.Embedding, nil
}

// Identify returns the best match at or above threshold, or nil when nobody matches.
func (c *Client) Identify(ctx context.Context, imageURL string, threshold float64) (*Match, error) {
	if c.Skip {
		if regNo := strings.TrimPrefix(imageURL, MockScheme); regNo != imageURL && regNo != "" {
			return &Match{RegNo: regNo, Similarity: 0.92}, nil
		}
		return nil, nil
	}
	if imageURL == "" {
		return nil, errs.ErrImageRequired
	}
	payload := map[string]any{"image_url": imageURL, "top_k": 1}
	if threshold > 0 {
		payload["threshold"] = threshold
	}
	var out struct {
		Matches []struct {
			UserID     string  `json:"user_id"`
			Similarity float64 `json:"similarity"`
		} `json:"matches"`
	}
	if err := c.post(ctx, "/search", payload, &out); err != nil {
		return nil, err
	}
	var best *Match
	for _, m := range out.Matches {
		if m.UserID == "" || m.Similarity < threshold {
			continue
		}
		if best == nil || m.Similarity > best.Similarity {
			best = &Match{RegNo: m.UserID, Similarity: m.Similarity}
		}
	}
	return best, nil
}

// Health checks if the face service is available.
func (c *Client) Health(ctx context.Context) error {
	if c.Skip {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrFaceService, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: unhealthy: %s", errs.ErrFaceService, resp.Status)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrFaceService, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("%w: %s: %s", errs.ErrFaceService, resp.Status, strings.TrimSpace(string(bodyBytes)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", errs.ErrFaceService, err)
	}
	return nil
}
