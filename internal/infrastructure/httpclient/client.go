// Package httpclient provides the loopback HTTP client used to reach sibling
// integrations. Every call funnels into one retry engine that classifies
// failures and applies a fixed retry/backoff policy per failure kind.
package httpclient

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

	"go.uber.org/zap"
)

const (
	// DefaultTimeout bounds a single attempt when the caller sets none
	DefaultTimeout = 30 * time.Second
	// DefaultMaxRetries is the caller retry budget when none is set
	DefaultMaxRetries = 0
	// DefaultMaxResponseSize caps the bytes read from a response body
	DefaultMaxResponseSize int64 = 10 * 1024 * 1024
)

// Doer executes one HTTP round trip
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// DoerFunc adapts a function to the Doer interface
type DoerFunc func(req *http.Request) (*http.Response, error)

// Do calls f(req)
func (f DoerFunc) Do(req *http.Request) (*http.Response, error) {
	return f(req)
}

// Recorder receives call telemetry
type Recorder interface {
	RecordRetry(ctx context.Context, method, kind string)
	RecordCall(ctx context.Context, method, outcome string, attempts int, elapsed time.Duration)
}

type noopRecorder struct{}

func (noopRecorder) RecordRetry(context.Context, string, string) {}

func (noopRecorder) RecordCall(context.Context, string, string, int, time.Duration) {}

// Response is a completed transport round trip.
// It says nothing about whether the remote operation itself succeeded.
type Response struct {
	StatusCode int
	StatusText string
	Body       []byte
}

// IsSuccess reports whether the status is 2xx
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// JSON decodes the body into v
func (r *Response) JSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to decode response body: %w", err)
	}
	return nil
}

// Client executes GET and POST calls with classified retries
type Client struct {
	doer    Doer
	sleep   func(time.Duration)
	logger  *zap.Logger
	metrics Recorder
	maxBody int64
}

// Option configures a Client
type Option func(*Client)

// WithDoer replaces the transport
func WithDoer(d Doer) Option {
	return func(c *Client) {
		c.doer = d
	}
}

// WithSleeper replaces the function used to wait between attempts
func WithSleeper(fn func(time.Duration)) Option {
	return func(c *Client) {
		c.sleep = fn
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithMaxResponseSize overrides DefaultMaxResponseSize
func WithMaxResponseSize(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxBody = n
		}
	}
}

// WithRecorder sets the telemetry recorder
func WithRecorder(r Recorder) Option {
	return func(c *Client) {
		c.metrics = r
	}
}

// New creates a Client. Without options it uses a plain http.Client and
// time.Sleep; per-attempt timeouts are applied through the request context.
func New(opts ...Option) *Client {
	c := &Client{
		doer:    &http.Client{},
		sleep:   time.Sleep,
		logger:  zap.NewNop(),
		metrics: noopRecorder{},
		maxBody: DefaultMaxResponseSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type callOptions struct {
	timeout    time.Duration
	maxRetries int
	params     url.Values
	headers    http.Header
}

// CallOption configures a single call
type CallOption func(*callOptions)

// WithTimeout bounds each attempt of the call
func WithTimeout(d time.Duration) CallOption {
	return func(o *callOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithMaxRetries sets the caller retry budget
func WithMaxRetries(n int) CallOption {
	return func(o *callOptions) {
		if n >= 0 {
			o.maxRetries = n
		}
	}
}

// WithParams adds query parameters to the URL
func WithParams(params url.Values) CallOption {
	return func(o *callOptions) {
		o.params = params
	}
}

// WithHeader sets a request header
func WithHeader(key, value string) CallOption {
	return func(o *callOptions) {
		o.headers.Set(key, value)
	}
}

func resolveOptions(opts []CallOption) callOptions {
	o := callOptions{
		timeout:    DefaultTimeout,
		maxRetries: DefaultMaxRetries,
		headers:    make(http.Header),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Get performs a GET request
func (c *Client) Get(ctx context.Context, rawURL string, opts ...CallOption) (*Response, error) {
	o := resolveOptions(opts)
	target, err := withQuery(rawURL, o.params)
	if err != nil {
		return nil, err
	}
	return c.execute(ctx, http.MethodGet, target, nil, o)
}

// Post performs a POST request with body encoded as JSON.
// A []byte or json.RawMessage body is sent as is.
func (c *Client) Post(ctx context.Context, rawURL string, body any, opts ...CallOption) (*Response, error) {
	o := resolveOptions(opts)
	payload, err := encodeBody(body)
	if err != nil {
		return nil, err
	}
	target, err := withQuery(rawURL, o.params)
	if err != nil {
		return nil, err
	}
	o.headers.Set("Content-Type", "application/json")
	return c.execute(ctx, http.MethodPost, target, payload, o)
}

// execute is the retry engine shared by every method
func (c *Client) execute(ctx context.Context, method, target string, body []byte, o callOptions) (*Response, error) {
	start := time.Now()
	attempt := 0

	for {
		resp, err := c.do(ctx, method, target, body, o)
		if err == nil {
			c.logger.Info(fmt.Sprintf("%s %s -> %d %s", method, target, resp.StatusCode, resp.StatusText),
				zap.Int("attempts", attempt+1),
			)
			c.metrics.RecordCall(ctx, method, "success", attempt+1, time.Since(start))
			return resp, nil
		}

		class := Classify(err)
		budget := min(o.maxRetries, class.MaxRetries)
		if ctx.Err() == nil && attempt < budget && class.ShouldRetry(err, attempt) {
			backoff := class.Backoff(attempt)
			c.logger.Warn("Retrying request",
				zap.String("method", method),
				zap.String("url", target),
				zap.Int("attempt", attempt+1),
				zap.Int("max_retries", budget),
				zap.Duration("backoff", backoff),
				zap.String("classification", class.Kind.String()),
				zap.Error(err),
			)
			c.metrics.RecordRetry(ctx, method, class.Kind.String())
			if backoff > 0 {
				c.sleep(backoff)
			}
			attempt++
			continue
		}

		c.logger.Error("Request failed",
			zap.String("method", method),
			zap.String("url", target),
			zap.Int("attempts", attempt+1),
			zap.String("classification", class.Kind.String()),
			zap.Error(err),
		)
		c.metrics.RecordCall(ctx, method, class.Kind.String(), attempt+1, time.Since(start))
		return nil, err
	}
}

// do runs a single attempt under its own timeout
func (c *Client) do(ctx context.Context, method, target string, body []byte, o callOptions) (*Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(attemptCtx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for key, values := range o.headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	req.Header.Set("Accept", "application/json")

	aborted := func() bool {
		return errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil
	}

	resp, err := c.doer.Do(req)
	if err != nil {
		if aborted() {
			return nil, &AbortedError{Method: method, URL: target, Timeout: o.timeout}
		}
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		if aborted() {
			return nil, &AbortedError{Method: method, URL: target, Timeout: o.timeout}
		}
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(data)) > c.maxBody {
		return nil, &ResponseTooLargeError{Method: method, URL: target, Limit: c.maxBody}
	}

	text := statusText(resp)
	if resp.StatusCode >= 500 {
		return nil, &StatusError{
			Method:     method,
			URL:        target,
			StatusCode: resp.StatusCode,
			Status:     fmt.Sprintf("%d %s", resp.StatusCode, text),
			Body:       data,
		}
	}

	return &Response{
		StatusCode: resp.StatusCode,
		StatusText: text,
		Body:       data,
	}, nil
}

func statusText(resp *http.Response) string {
	text := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	return text
}

func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return []byte("null"), nil
	case []byte:
		return b, nil
	case json.RawMessage:
		return b, nil
	default:
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		return data, nil
	}
}

func withQuery(rawURL string, params url.Values) (string, error) {
	if len(params) == 0 {
		return rawURL, nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", rawURL, err)
	}
	q := u.Query()
	for key, values := range params {
		for _, v := range values {
			q.Add(key, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
