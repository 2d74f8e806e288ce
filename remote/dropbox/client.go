// Package dropbox provides a remote.Store backed by the Dropbox content API.
package dropbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/jrsteele09/go-rollcall/internal/errors"
	"github.com/jrsteele09/go-rollcall/remote"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	DefaultContentURL = "https://content.dropboxapi.com"
	DefaultTimeout    = 30 * time.Second
	DefaultRateLimit  = 5 // requests per second

	downloadEndpoint = "/2/files/download"
	uploadEndpoint   = "/2/files/upload"
)

var _ remote.Store = (*Client)(nil)

// Client implements remote.Store against Dropbox.
type Client struct {
	contentURL string
	httpClient *http.Client
	logger     zerolog.Logger
	limiter    *rate.Limiter
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithContentURL sets the content API base URL
func WithContentURL(contentURL string) ClientOption {
	return func(c *Client) {
		c.contentURL = strings.TrimSuffix(contentURL, "/")
	}
}

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets the rate limit
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		if requestsPerSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
		}
	}
}

// WithHTTPClient sets the HTTP client
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// NewClient creates a new Dropbox client
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		contentURL: DefaultContentURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:  zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError represents a non-200 response from Dropbox. It unwraps to the
// matching remote store sentinel.
type APIError struct {
	StatusCode int
	Summary    string
	Endpoint   string
	kind       error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Dropbox API error: %s (status: %d, endpoint: %s)", e.Summary, e.StatusCode, e.Endpoint)
}

func (e *APIError) Unwrap() error {
	return e.kind
}

type downloadArg struct {
	Path string `json:"path"`
}

type uploadArg struct {
	Path       string `json:"path"`
	Mode       string `json:"mode"`
	Autorename bool   `json:"autorename"`
	Mute       bool   `json:"mute"`
}

// Download returns the content of the file at path.
func (c *Client) Download(ctx context.Context, accessToken, path string) ([]byte, error) {
	resp, err := c.post(ctx, downloadEndpoint, accessToken, downloadArg{Path: path}, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrRemoteTransient, "failed to read %s: %v", path, err)
	}

	c.logger.Debug().Str("path", path).Int("bytes", len(data)).Msg("Downloaded")
	return data, nil
}

// Upload overwrites the file at path. Change notifications are muted.
func (c *Client) Upload(ctx context.Context, accessToken, path string, data []byte) error {
	arg := uploadArg{Path: path, Mode: "overwrite", Autorename: false, Mute: true}
	resp, err := c.post(ctx, uploadEndpoint, accessToken, arg, data)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	c.logger.Debug().Str("path", path).Int("bytes", len(data)).Msg("Uploaded")
	return nil
}

// post performs a rate-limited content endpoint call. The caller closes the
// body of a successful response.
func (c *Client) post(ctx context.Context, endpoint, accessToken string, arg any, body []byte) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrapf(errors.ErrRemoteTransient, "rate limit wait: %v", err)
	}

	argHeader, err := headerSafeJSON(arg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode API arg: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.contentURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Dropbox-API-Arg", argHeader)
	if body != nil {
		req.Header.Set("Content-Type", "application/octet-stream")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrRemoteTransient, "failed to execute request: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, newAPIError(resp, endpoint)
	}
	return resp, nil
}

type errorResponse struct {
	ErrorSummary string `json:"error_summary"`
}

func newAPIError(resp *http.Response, endpoint string) *APIError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	summary := strings.TrimSpace(string(raw))
	var parsed errorResponse
	if json.Unmarshal(raw, &parsed) == nil && parsed.ErrorSummary != "" {
		summary = parsed.ErrorSummary
	}

	apiErr := &APIError{StatusCode: resp.StatusCode, Summary: summary, Endpoint: endpoint, kind: errors.ErrRemoteTransient}
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		apiErr.kind = errors.ErrRemoteAuth
	case resp.StatusCode == http.StatusConflict && strings.Contains(summary, "not_found"):
		apiErr.kind = errors.ErrRemoteNotFound
	}
	return apiErr
}

// headerSafeJSON encodes v for an HTTP header, escaping every non-ASCII
// character as \uXXXX (surrogate pairs above the BMP).
func headerSafeJSON(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, r := range string(raw) {
		switch {
		case r < 0x7f:
			sb.WriteRune(r)
		case r > 0xffff:
			hi, lo := utf16.EncodeRune(r)
			fmt.Fprintf(&sb, "\\u%04x\\u%04x", hi, lo)
		default:
			fmt.Fprintf(&sb, "\\u%04x", r)
		}
	}
	return sb.String(), nil
}
