// Package api is the REST client for the subtitle backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/baronglock/Site-legendas/internal/domain"
)

// ErrUnauthorized marks a 401 response; the session is no longer valid.
var ErrUnauthorized = errors.New("unauthorized")

// ErrNotFound marks a 404 response.
var ErrNotFound = errors.New("not found")

// StatusError is a non-2xx backend response.
type StatusError struct {
	Code   int
	Detail string
}

// Error formats the status code and backend detail.
func (e *StatusError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("backend returned %d", e.Code)
	}
	return fmt.Sprintf("backend returned %d: %s", e.Code, e.Detail)
}

// Unwrap maps well-known codes onto sentinel errors.
func (e *StatusError) Unwrap() error {
	switch e.Code {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrNotFound
	default:
		return nil
	}
}

// Client talks to the backend with a bearer token on every request.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	token          func() string
	onUnauthorized func()
	userAgent      string
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithToken sets the bearer token source, read on every request.
func WithToken(token func() string) Option {
	return func(c *Client) { c.token = token }
}

// WithUnauthorizedHandler registers a hook run on every 401 response.
func WithUnauthorizedHandler(fn func()) Option {
	return func(c *Client) { c.onUnauthorized = fn }
}

// NewClient creates a client for baseURL (for example http://host/api/v1).
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 0},
		token:      func() string { return "" },
		userAgent:  "legendas-client",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the configured API root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// DownloadPath returns the artifact path of a job relative to the API root.
func DownloadPath(jobID string, format domain.Format) string {
	return "/download/" + url.PathEscape(jobID) + "/" + string(format)
}

// DownloadURL returns the absolute artifact URL of a job.
func (c *Client) DownloadURL(jobID string, format domain.Format) string {
	return c.baseURL + DownloadPath(jobID, format)
}

// SubmitURL asks the backend to ingest a remote video and returns the job id.
func (c *Client) SubmitURL(ctx context.Context, req URLRequest) (string, error) {
	var resp submitResponse
	if err := c.doJSON(ctx, http.MethodPost, "/subtitle/url", req, &resp); err != nil {
		return "", err
	}
	return resp.JobID, nil
}

// CancelJob asks the backend to drop a job that is still queued.
func (c *Client) CancelJob(ctx context.Context, jobID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/subtitle/job/"+url.PathEscape(jobID), nil, nil)
}

// JobStatus fetches the current status of one job.
func (c *Client) JobStatus(ctx context.Context, jobID string) (domain.StatusReport, error) {
	var resp statusResponse
	if err := c.doJSON(ctx, http.MethodGet, "/subtitle/job/"+url.PathEscape(jobID), nil, &resp); err != nil {
		return domain.StatusReport{}, err
	}
	return resp.report(), nil
}

// ListJobs fetches the most recent jobs of the user.
func (c *Client) ListJobs(ctx context.Context, limit int) ([]domain.JobSummary, error) {
	path := "/user/jobs"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}

	var resp listResponse
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}

	out := make([]domain.JobSummary, 0, len(resp.Jobs))
	for _, job := range resp.Jobs {
		out = append(out, job.summary())
	}
	return out, nil
}

// Translate triggers translation of an existing transcript. The outcome is
// only visible through later job listings.
func (c *Client) Translate(ctx context.Context, jobID, targetLanguage string) error {
	path := "/subtitle/translate/" + url.PathEscape(jobID)
	if targetLanguage != "" {
		path += "?target_language=" + url.QueryEscape(targetLanguage)
	}
	return c.doJSON(ctx, http.MethodPost, path, nil, nil)
}

// Download streams one artifact into w.
func (c *Client) Download(ctx context.Context, jobID string, format domain.Format, w io.Writer) error {
	if !format.Valid() {
		return fmt.Errorf("unsupported format: %s", format)
	}

	resp, err := c.do(ctx, http.MethodGet, DownloadPath(jobID, format), nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("read artifact: %w", err)
	}
	return nil
}

// Me fetches the authenticated profile and balance.
func (c *Client) Me(ctx context.Context) (domain.Profile, error) {
	var resp meResponse
	if err := c.doJSON(ctx, http.MethodGet, "/auth/me", nil, &resp); err != nil {
		return domain.Profile{}, err
	}
	return resp.profile(), nil
}

// Ping checks that the backend origin answers at all.
func (c *Client) Ping(ctx context.Context) error {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return fmt.Errorf("parse base url: %w", err)
	}
	u.Path = "/"
	u.RawQuery = ""

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("reach backend: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}

// doJSON sends an optional JSON body and decodes an optional JSON response.
func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	contentType := ""
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
		contentType = "application/json"
	}

	resp, err := c.do(ctx, method, path, reader, contentType)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// do sends one authenticated request and converts non-2xx responses to errors.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", uuid.NewString())
	if token := c.token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		statusErr := &StatusError{Code: resp.StatusCode, Detail: readDetail(resp.Body)}
		if resp.StatusCode == http.StatusUnauthorized && c.onUnauthorized != nil {
			c.onUnauthorized()
		}
		return nil, statusErr
	}
	return resp, nil
}

// readDetail extracts a human message from FastAPI, echo or plain bodies.
func readDetail(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(data) == 0 {
		return ""
	}

	var payload struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
		Error   string          `json:"error"`
	}
	if json.Unmarshal(data, &payload) == nil {
		var detail string
		if len(payload.Detail) > 0 && json.Unmarshal(payload.Detail, &detail) == nil && detail != "" {
			return detail
		}
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
		if len(payload.Detail) > 0 {
			return string(payload.Detail)
		}
	}
	return strings.TrimSpace(string(data))
}
