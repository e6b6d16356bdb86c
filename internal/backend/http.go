package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Config holds configuration for creating an HTTP backend client.
type Config struct {
	URL           string
	APIKey        string
	AllowInsecure bool
	Timeout       time.Duration
}

// HTTPClient talks JSON over HTTP to the backend process.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a backend client for the given base URL.
func NewHTTPClient(cfg Config) (*HTTPClient, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("backend URL is required")
	}

	parsedURL, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	// Enforce HTTPS unless AllowInsecure is set (loopback backends run plain HTTP)
	if parsedURL.Scheme == "http" && !cfg.AllowInsecure {
		return nil, fmt.Errorf("HTTPS required for backend connections; set allow_insecure = true under [backend] for trusted networks")
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("URL scheme must be http or https, got: %s", parsedURL.Scheme)
	}
	if parsedURL.Host == "" {
		return nil, fmt.Errorf("backend URL must include a host (e.g., http://127.0.0.1:8765)")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &HTTPClient{
		baseURL: strings.TrimSuffix(cfg.URL, "/"),
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// Close is a no-op for the HTTP client.
func (c *HTTPClient) Close() error {
	return nil
}

// doRequest performs an authenticated HTTP request with a per-request ID.
func (c *HTTPClient) doRequest(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	reqURL := c.baseURL + path

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	return resp, nil
}

// postJSON marshals v and POSTs it to path.
func (c *HTTPClient) postJSON(ctx context.Context, path string, v interface{}) (*http.Response, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	return c.doRequest(ctx, "POST", path, bytes.NewReader(payload))
}

// apiError represents an error response from the backend.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// handleErrorResponse reads an error response and returns an appropriate error.
func handleErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Message != "" {
		return fmt.Errorf("backend error (%d): %s", resp.StatusCode, apiErr.Message)
	}

	return fmt.Errorf("backend error (%d): %s", resp.StatusCode, string(body))
}

// syncRequest is the body for all sync operations.
type syncRequest struct {
	Provider     string `json:"provider"`
	Email        string `json:"email"`
	ChunkSize    int    `json:"chunk_size"`
	StartEpochMs int64  `json:"start_epoch_ms,omitempty"`
	EndEpochMs   int64  `json:"end_epoch_ms,omitempty"`
}

// decodeSyncReport reads a SyncReport response body.
func decodeSyncReport(resp *http.Response) (*SyncReport, error) {
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, handleErrorResponse(resp)
	}
	var report SyncReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return nil, fmt.Errorf("decode sync report: %w", err)
	}
	return &report, nil
}

// SyncIncremental requests an incremental sync.
func (c *HTTPClient) SyncIncremental(ctx context.Context, provider, email string, chunkSize int) (*SyncReport, error) {
	resp, err := c.postJSON(ctx, "/api/v1/sync/incremental", syncRequest{
		Provider: provider, Email: email, ChunkSize: chunkSize,
	})
	if err != nil {
		return nil, err
	}
	return decodeSyncReport(resp)
}

// SyncFull requests a full sync. Progress events arrive on the event stream.
func (c *HTTPClient) SyncFull(ctx context.Context, provider, email string, chunkSize int) (*SyncReport, error) {
	resp, err := c.postJSON(ctx, "/api/v1/sync/full", syncRequest{
		Provider: provider, Email: email, ChunkSize: chunkSize,
	})
	if err != nil {
		return nil, err
	}
	return decodeSyncReport(resp)
}

// SyncWindow requests a date-window sync.
func (c *HTTPClient) SyncWindow(ctx context.Context, provider, email string, chunkSize int, start, end time.Time) (*SyncReport, error) {
	req := syncRequest{
		Provider: provider, Email: email, ChunkSize: chunkSize,
		StartEpochMs: start.UnixMilli(),
	}
	if !end.IsZero() {
		req.EndEpochMs = end.UnixMilli()
	}
	resp, err := c.postJSON(ctx, "/api/v1/sync/window", req)
	if err != nil {
		return nil, err
	}
	return decodeSyncReport(resp)
}

// ListRecentMessages fetches up to limit cached messages, newest first.
func (c *HTTPClient) ListRecentMessages(ctx context.Context, email string, limit int) ([]EmailSummary, error) {
	path := fmt.Sprintf("/api/v1/accounts/%s/messages?limit=%d", url.PathEscape(email), limit)
	resp, err := c.doRequest(ctx, "GET", path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, handleErrorResponse(resp)
	}

	var out struct {
		Messages []EmailSummary `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode messages response: %w", err)
	}
	return out.Messages, nil
}

// ListSenderGroups fetches the grouped-by-sender view for an account.
func (c *HTTPClient) ListSenderGroups(ctx context.Context, email string) ([]SenderGroup, error) {
	path := "/api/v1/accounts/" + url.PathEscape(email) + "/groups"
	resp, err := c.doRequest(ctx, "GET", path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, handleErrorResponse(resp)
	}

	var out struct {
		Groups []SenderGroup `json:"groups"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode groups response: %w", err)
	}
	return out.Groups, nil
}

// CachedMessageCount fetches how many messages the backend has cached.
func (c *HTTPClient) CachedMessageCount(ctx context.Context, email string) (int, error) {
	path := "/api/v1/accounts/" + url.PathEscape(email) + "/count"
	resp, err := c.doRequest(ctx, "GET", path, nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, handleErrorResponse(resp)
	}

	var out struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("decode count response: %w", err)
	}
	return out.Count, nil
}

// deleteRequest is the body for DeleteMessage.
type deleteRequest struct {
	Provider string `json:"provider"`
	Email    string `json:"email"`
	UID      string `json:"uid"`
}

// DeleteMessage archives a message locally and queues its remote delete.
func (c *HTTPClient) DeleteMessage(ctx context.Context, provider, email, uid string) (*DeletedEmail, error) {
	resp, err := c.postJSON(ctx, "/api/v1/messages/delete", deleteRequest{
		Provider: provider, Email: email, UID: uid,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, handleErrorResponse(resp)
	}

	var deleted DeletedEmail
	if err := json.NewDecoder(resp.Body).Decode(&deleted); err != nil {
		return nil, fmt.Errorf("decode delete response: %w", err)
	}
	return &deleted, nil
}

// FetchRemoteDeleteMetrics asks the backend to push a metrics snapshot.
func (c *HTTPClient) FetchRemoteDeleteMetrics(ctx context.Context, email string) error {
	path := "/api/v1/accounts/" + url.PathEscape(email) + "/delete-metrics/fetch"
	resp, err := c.doRequest(ctx, "POST", path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return handleErrorResponse(resp)
	}
	return nil
}

// overrideRequest is the body for UpdateRemoteDeleteOverride.
type overrideRequest struct {
	Email string `json:"email"`
	Mode  string `json:"mode"`
}

// UpdateRemoteDeleteOverride switches the backend's delete processing mode.
func (c *HTTPClient) UpdateRemoteDeleteOverride(ctx context.Context, email string, mode OverrideMode) error {
	resp, err := c.postJSON(ctx, "/api/v1/delete-override", overrideRequest{
		Email: email, Mode: string(mode),
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return handleErrorResponse(resp)
	}
	return nil
}

// parseRetryAfter returns the Retry-After header as a duration, or def.
func parseRetryAfter(resp *http.Response, def time.Duration) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return def
}
