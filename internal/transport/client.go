package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"grantify-client/internal/cancellation"
	"grantify-client/internal/config"
	"grantify-client/internal/interfaces"
	"grantify-client/internal/metrics"
	"grantify-client/internal/utils"
)

const maxResponseSize = 10 << 20

// Header names set on every outbound request
const (
	HeaderAPIKey    = "X-API-Key"
	HeaderRequestID = "X-Request-ID"
	HeaderCSRFToken = "X-CSRF-Token"
)

// Request is one fetch-style call relative to the service base URL
type Request struct {
	Method string
	Path   string
	Query  url.Values
	// Body is JSON encoded when not nil
	Body interface{}
	// Resource identifies the target of a write; a new write to the same
	// resource cancels the previous one. Defaults to Path.
	Resource string
}

// Response is a successful (2xx) response
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode parses the JSON body into v
func (r *Response) Decode(v interface{}) error {
	return utils.DecodeJSONBody(r.Body, v)
}

// Client executes requests with bounded exponential backoff. Every request is
// registered with the cancellation registry while it is outstanding.
type Client struct {
	httpClient  *http.Client
	baseURL     *url.URL
	apiKey      string
	retry       config.RetryConfig
	cancels     *cancellation.Registry
	credentials interfaces.CredentialProvider
	csrf        interfaces.TokenProvider
	logger      *zap.Logger
}

// Option configures a Client
type Option func(*Client)

// WithCredentials attaches the bearer credential of the current user
func WithCredentials(credentials interfaces.CredentialProvider) Option {
	return func(c *Client) {
		c.credentials = credentials
	}
}

// WithCSRF attaches anti-forgery tokens to state-changing requests
func WithCSRF(csrf interfaces.TokenProvider) Option {
	return func(c *Client) {
		c.csrf = csrf
	}
}

// NewClient creates a transport client for the service at cfg.BaseURL
func NewClient(cfg *config.Config, httpClient *http.Client, cancels *cancellation.Registry, logger *zap.Logger, opts ...Option) (*Client, error) {
	baseURL, err := url.Parse(strings.TrimRight(cfg.Service.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Service.RequestTimeout}
	}

	c := &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		apiKey:     cfg.Service.APIKey,
		retry:      cfg.Retry,
		cancels:    cancels,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Execute sends req, retrying 5xx, 429 and network failures up to the
// configured number of attempts. A cancelled ctx stops the request and any
// further retries; the returned error then satisfies IsCancelled.
func (c *Client) Execute(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}
	endpoint := strings.Trim(req.Path, "/")
	defer func() { metrics.ObserveTransportDuration(method, endpoint, time.Since(start)) }()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	handle := c.register(method, req, cancel)
	defer c.cancels.Release(handle)

	body, err := encodeBody(req.Body)
	if err != nil {
		return nil, err
	}

	requestID := uuid.NewString()
	csrfRefreshed := false

	var resp *Response
	operation := func() error {
		r, err := c.attempt(ctx, method, req, body, requestID)
		if err == nil && r.StatusCode == http.StatusForbidden && isWrite(method) && c.csrf != nil && !csrfRefreshed {
			// The anti-forgery token may have been rotated server-side
			csrfRefreshed = true
			c.csrf.Invalidate()
			c.logger.Debug("Retrying write with a fresh CSRF token",
				zap.String("method", method), zap.String("path", req.Path), zap.String("request_id", requestID))
			r, err = c.attempt(ctx, method, req, body, requestID)
		}

		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				metrics.RecordTransportAttempt(method, endpoint, "cancelled")
				return backoff.Permanent(ctxErr)
			}
			metrics.RecordTransportAttempt(method, endpoint, "network")
			return err
		}

		if r.StatusCode >= 200 && r.StatusCode < 300 {
			metrics.RecordTransportAttempt(method, endpoint, "success")
			resp = r
			return nil
		}

		statusErr := &StatusError{Method: method, Path: req.Path, StatusCode: r.StatusCode, Body: r.Body}
		metrics.RecordTransportAttempt(method, endpoint, outcomeOf(r.StatusCode))
		if IsRetryable(r.StatusCode) {
			return statusErr
		}
		return backoff.Permanent(statusErr)
	}

	notify := func(err error, next time.Duration) {
		metrics.RecordTransportRetry(method, endpoint)
		c.logger.Debug("Retrying request after transient failure",
			zap.String("method", method),
			zap.String("path", req.Path),
			zap.String("request_id", requestID),
			zap.Duration("backoff", next),
			zap.Error(err))
	}

	maxRetries := c.retry.MaxAttempts - 1
	if maxRetries < 0 {
		maxRetries = 0
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(newExponentialPolicy(c.retry.BaseDelay, c.retry.MaxDelay), uint64(maxRetries)),
		ctx,
	)

	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		if IsCancelled(err) {
			return nil, fmt.Errorf("%s %s cancelled: %w", method, req.Path, err)
		}
		return nil, err
	}
	return resp, nil
}

// attempt performs a single HTTP exchange. Non-2xx statuses are not errors here.
func (c *Client) attempt(ctx context.Context, method string, req Request, body []byte, requestID string) (*Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.resolve(req), reader)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to build request: %w", err))
	}

	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set(HeaderRequestID, requestID)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		httpReq.Header.Set(HeaderAPIKey, c.apiKey)
	}
	if c.credentials != nil {
		token, ok, err := c.credentials.AccessToken(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to obtain access token: %w", err)
		}
		if ok {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
	}
	if isWrite(method) && c.csrf != nil {
		token, err := c.csrf.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to obtain CSRF token: %w", err)
		}
		httpReq.Header.Set(HeaderCSRFToken, token)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer func() { _ = httpResp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       data,
	}, nil
}

// register records the request for cancellation. Writes supersede any
// outstanding write to the same resource.
func (c *Client) register(method string, req Request, cancel context.CancelFunc) cancellation.Handle {
	if isWrite(method) {
		resource := req.Resource
		if resource == "" {
			resource = strings.Trim(req.Path, "/")
		}
		return c.cancels.Supersede(WriteKey(resource), cancel)
	}
	return c.cancels.Register(ReadKey(req.Path), cancel)
}

// resolve joins the escaped request path to the base URL
func (c *Client) resolve(req Request) string {
	u := c.baseURL.JoinPath(strings.TrimLeft(req.Path, "/"))
	if len(req.Query) > 0 {
		u.RawQuery = req.Query.Encode()
	}
	return u.String()
}

// ReadKey returns the cancellation key of a read, unique per request
func ReadKey(path string) string {
	return "read:" + path + ":" + uuid.NewString()
}

// WriteKey returns the cancellation key shared by writes to a resource
func WriteKey(resource string) string {
	return "write:" + resource
}

func isWrite(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	default:
		return true
	}
}

func encodeBody(body interface{}) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request body: %w", err)
	}
	return data, nil
}

func outcomeOf(status int) string {
	switch {
	case status == http.StatusTooManyRequests:
		return "rate_limited"
	case status >= 500:
		return "server_error"
	default:
		return "client_error"
	}
}

// IsNetworkError reports whether err is a transport level failure rather
// than an HTTP status
func IsNetworkError(err error) bool {
	var se *StatusError
	return err != nil && !errors.As(err, &se) && !IsCancelled(err)
}
