// Package recognition talks to the external face recognition service that
// owns the camera and the face trackers.
package recognition

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/noah-isme/attendease-api/pkg/config"
)

// ErrUnavailable is returned when the recognition service cannot be reached.
var ErrUnavailable = errors.New("recognition service unavailable")

// UpstreamError carries a non-2xx answer from the recognition service.
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("recognition service %d: %s", e.StatusCode, e.Message)
}

// Location is a face bounding box in frame pixels.
type Location struct {
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
	Left   int `json:"left"`
}

// DetectedFace is a single face returned for a processed frame.
type DetectedFace struct {
	ID          int      `json:"id"`
	Name        string   `json:"name"`
	Confidence  float64  `json:"confidence"`
	IsConfirmed bool     `json:"is_confirmed"`
	Location    Location `json:"location"`
}

// FrameResult is the recognition outcome for one uploaded frame.
type FrameResult struct {
	Status        string         `json:"status"`
	Message       string         `json:"message"`
	DetectedFaces []DetectedFace `json:"detected_faces"`
	TotalFaces    int            `json:"total_faces"`
}

// Client is a thin HTTP client for the recognition service.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client from configuration.
func New(cfg config.RecognitionConfig) *Client {
	return NewWithHTTPClient(cfg.BaseURL, &http.Client{Timeout: cfg.Timeout})
}

// NewWithHTTPClient creates a client with a caller supplied HTTP client.
func NewWithHTTPClient(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: hc}
}

// Forward relays a JSON call to the service and returns its raw body.
func (c *Client) Forward(ctx context.Context, method, path string, payload interface{}) (json.RawMessage, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode recognition payload: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/api/"+strings.TrimLeft(path, "/"), body)
	if err != nil {
		return nil, fmt.Errorf("build recognition request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if isDialError(err) {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return nil, fmt.Errorf("call recognition service: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("read recognition response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		upstream := &UpstreamError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var payload struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(data, &payload) == nil && payload.Message != "" {
			upstream.Message = payload.Message
		}
		return nil, upstream
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return json.RawMessage("{}"), nil
	}
	return json.RawMessage(data), nil
}

// ProcessFrame submits a base64 encoded frame for detection and recognition.
func (c *Client) ProcessFrame(ctx context.Context, frame string) (*FrameResult, error) {
	raw, err := c.Forward(ctx, http.MethodPost, "process-frame", map[string]string{"frame": frame})
	if err != nil {
		return nil, err
	}
	var result FrameResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode frame result: %w", err)
	}
	// frame failures come back as 200 with an error status
	if strings.EqualFold(result.Status, "error") {
		msg := result.Message
		if msg == "" {
			msg = "frame processing failed"
		}
		return nil, &UpstreamError{StatusCode: http.StatusUnprocessableEntity, Message: msg}
	}
	if result.DetectedFaces == nil {
		result.DetectedFaces = []DetectedFace{}
	}
	return &result, nil
}

func isDialError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}
