// Package garnix is the client for the Garnix CI API. It is the only place
// that talks to the remote service and the only place that classifies
// failures: callers receive *failure.Error values and never see raw HTTP.
package garnix

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"garnix-insights/src/failure"
	"garnix-insights/src/logger"
	"garnix-insights/src/report"
)

const (
	// DefaultTimeout bounds a single HTTP attempt.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxConcurrent caps in-flight requests per client.
	DefaultMaxConcurrent = 16

	// MaxLogLines is the most log lines kept per build.
	MaxLogLines = 10000

	// maxBodyBytes bounds how much of a response is read.
	maxBodyBytes = 32 << 20

	// CookieName is the cookie Garnix reads the JWT from.
	CookieName = "JWT-Cookie"

	userAgent = "garnix-insights"
)

// Client is a Garnix API client. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	retry      RetryPolicy
	sem        *semaphore.Weighted
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL, e.g. for a local fake.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the per-attempt timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithRetryPolicy replaces the default retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) {
		c.retry = p.normalized()
	}
}

// WithMaxConcurrent caps the number of requests in flight at once.
func WithMaxConcurrent(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithLogger sets the logger used for retry and failure records.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger.OrSilent(l)
	}
}

// NewClient creates a client for the Garnix API at DefaultBaseURL unless
// overridden.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		retry:  DefaultRetryPolicy,
		sem:    semaphore.NewWeighted(DefaultMaxConcurrent),
		logger: logger.NewSilent(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DefaultBaseURL is the public Garnix API.
const DefaultBaseURL = "https://garnix.io/api"

// BaseURL returns the API base URL the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// FetchBuildStatus returns the build report for a commit.
func (c *Client) FetchBuildStatus(ctx context.Context, commitID, token string) (*report.BuildReport, error) {
	commitID = strings.TrimSpace(commitID)
	if commitID == "" {
		return nil, failure.New(failure.InvalidRequest, "commit id must not be empty")
	}

	body, err := c.call(ctx, "fetch build status", http.MethodPost, "/build-status", token,
		buildStatusRequest{CommitID: commitID})
	if err != nil {
		return nil, err
	}

	if err := validate(buildStatusSchema, body, "build status"); err != nil {
		return nil, err
	}
	var resp buildStatusResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, classifyDecode(err, "build status")
	}

	return assemble(commitID, &resp, c.logger)
}

// FetchLog returns the log of one package build.
func (c *Client) FetchLog(ctx context.Context, buildID, token string) (*report.LogEntry, error) {
	buildID = strings.TrimSpace(buildID)
	if buildID == "" {
		return nil, failure.New(failure.InvalidRequest, "build id must not be empty")
	}

	body, err := c.call(ctx, "fetch build log", http.MethodPost, "/build-logs", token,
		buildLogsRequest{BuildID: buildID})
	if err != nil {
		return nil, err
	}

	if err := validate(buildLogsSchema, body, "build log"); err != nil {
		return nil, err
	}
	var resp buildLogsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, classifyDecode(err, "build log")
	}

	return assembleLog(buildID, &resp), nil
}

// ValidateToken reports whether Garnix accepts token. A rejected token is a
// (false, nil) answer; any other failure is returned as an error.
func (c *Client) ValidateToken(ctx context.Context, token string) (bool, error) {
	_, err := c.call(ctx, "validate token", http.MethodGet, "/user", token, nil)
	switch failure.ClassOf(err) {
	case "":
		return true, nil
	case failure.AuthRejected:
		return false, nil
	default:
		return false, err
	}
}

// call issues one logical request, retrying transient failures, and returns
// the body of the successful response.
func (c *Client) call(ctx context.Context, operation, method, path, token string, payload any) ([]byte, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, failure.New(failure.MissingCredential, "no Garnix token provided")
	}

	var encoded []byte
	if payload != nil {
		var err error
		encoded, err = json.Marshal(payload)
		if err != nil {
			return nil, failure.Wrap(failure.Internal, err, "failed to encode request")
		}
	}

	return c.withRetry(ctx, operation, func(ctx context.Context) ([]byte, time.Duration, error) {
		return c.attempt(ctx, method, c.baseURL+path, token, encoded)
	})
}

// attempt performs a single HTTP exchange while holding a concurrency slot.
func (c *Client) attempt(ctx context.Context, method, url, token string, payload []byte) ([]byte, time.Duration, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, 0, classifyTransport(err)
	}
	defer c.sem.Release(1)

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, 0, failure.Wrap(failure.Internal, err, "failed to build request")
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.AddCookie(&http.Cookie{Name: CookieName, Value: token})

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, classifyTransport(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, 0, classifyTransport(fmt.Errorf("reading response body: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, retryAfter(resp.Header, c.now()), classifyStatus(resp.StatusCode, body)
	}
	return body, 0, nil
}
