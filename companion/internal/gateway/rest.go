package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Gasparello10/MonitorParkinsonApp/pkg/wire"
)

const defaultTimeout = 10 * time.Second

// Client is the REST half of the server gateway.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// Option customizes a Client.
type Option func(*Client)

// WithAPIKey attaches an X-API-Key header to every request. An empty key
// disables it.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// NewClient creates a Client for the server at baseURL
// (e.g. "http://monitor.example.org:5000"). A timeout of 0 uses the default.
func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// UploadBatch posts one batch (or several merged batches) of samples for a
// session. The returned error is nil on 2xx, a *RejectedError on 4xx, and
// wraps ErrUnavailable otherwise.
func (c *Client) UploadBatch(ctx context.Context, subjectID string, sessionID int64, samples []wire.Sample) error {
	body := wire.UploadRequest{
		PatientID: subjectID,
		SessionID: sessionID,
		Data:      samples,
	}
	return c.postJSON(ctx, "/data", body)
}

// StartSession asks the server to open a session for the subject. The
// assigned session id arrives asynchronously as a start_monitoring event on
// the duplex channel, not in this response.
func (c *Client) StartSession(ctx context.Context, subjectID string) error {
	return c.postJSON(ctx, "/api/start_session", wire.RegisterPatient{PatientID: subjectID})
}

func (c *Client) postJSON(ctx context.Context, path string, body any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s body: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %v: %w", path, err, ErrUnavailable)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		resp.Body.Close()
	}()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return &RejectedError{Status: resp.StatusCode}
	default:
		return fmt.Errorf("post %s: status %d: %w", path, resp.StatusCode, ErrUnavailable)
	}
}
