package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/logger"
)

const maxResponseBytes = 4 << 20 // 4MB

var errServerFault = errors.New("server fault")

// Authenticator supplies the bearer token and is told when the backend
// rejected it.
type Authenticator interface {
	Token() string
	Invalidate(ctx context.Context)
}

type Options struct {
	BaseURL         string
	Timeout         time.Duration
	HTTPClient      *http.Client
	BreakerFailures uint32
	BreakerTimeout  time.Duration
	Logger          *slog.Logger
}

type Client struct {
	baseURL *url.URL
	http    *http.Client
	auth    Authenticator
	breaker *gobreaker.CircuitBreaker[*rawResponse]
	logger  *slog.Logger
}

type rawResponse struct {
	status int
	body   []byte
}

func NewClient(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", opts.BaseURL)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = 5
	}
	if opts.BreakerTimeout <= 0 {
		opts.BreakerTimeout = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   opts.Timeout,
		}
	}

	c := &Client{
		baseURL: base,
		http:    httpClient,
		logger:  opts.Logger,
	}
	failures := opts.BreakerFailures
	c.breaker = gobreaker.NewCircuitBreaker[*rawResponse](gobreaker.Settings{
		Name:    "storefront-api",
		Timeout: opts.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return c, nil
}

// SetAuthenticator wires the session in after construction; the session
// itself needs the client to log in.
func (c *Client) SetAuthenticator(a Authenticator) {
	c.auth = a
}

// BaseURL returns the configured backend root.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

type requestConfig struct {
	query   url.Values
	headers http.Header
	noAuth  bool
}

type RequestOption func(*requestConfig)

func WithQuery(q url.Values) RequestOption {
	return func(rc *requestConfig) { rc.query = q }
}

func WithHeader(key, value string) RequestOption {
	return func(rc *requestConfig) { rc.headers.Set(key, value) }
}

// WithoutAuth sends the request without a bearer token. A 401 answer is then
// reported as a rejection instead of ending the session.
func WithoutAuth() RequestOption {
	return func(rc *requestConfig) { rc.noAuth = true }
}

func (c *Client) Get(ctx context.Context, path string, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodGet, path, nil, out, opts...)
}

func (c *Client) Post(ctx context.Context, path string, body, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodPost, path, body, out, opts...)
}

func (c *Client) Put(ctx context.Context, path string, body, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodPut, path, body, out, opts...)
}

func (c *Client) Patch(ctx context.Context, path string, body, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodPatch, path, body, out, opts...)
}

func (c *Client) Delete(ctx context.Context, path string, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodDelete, path, nil, out, opts...)
}

// Do sends one request and decodes the normalized envelope data into out.
func (c *Client) Do(ctx context.Context, method, path string, body, out any, opts ...RequestOption) error {
	env, err := c.DoEnvelope(ctx, method, path, body, opts...)
	if err != nil {
		return err
	}
	return env.DecodeInto(out)
}

// DoEnvelope is Do without decoding, for callers that need the raw data.
func (c *Client) DoEnvelope(ctx context.Context, method, path string, body any, opts ...RequestOption) (Envelope, error) {
	rc := &requestConfig{headers: http.Header{}}
	for _, o := range opts {
		o(rc)
	}
	op := method + " " + path

	req, err := c.newRequest(ctx, method, path, body, rc)
	if err != nil {
		return Envelope{}, err
	}
	authed := req.Header.Get("Authorization") != ""

	var raw *rawResponse
	_, err = c.breaker.Execute(func() (*rawResponse, error) {
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return nil, err
		}
		raw = &rawResponse{status: resp.StatusCode, body: data}
		if resp.StatusCode >= http.StatusInternalServerError {
			return raw, errServerFault
		}
		return raw, nil
	})
	if raw == nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return Envelope{}, &domain.TransportError{Op: op, Err: err}
	}

	env := normalize(raw.status, raw.body)
	ok := raw.status >= 200 && raw.status < 300
	if ok && env.Success {
		return env, nil
	}

	if raw.status == http.StatusUnauthorized && authed {
		log := logger.FromContext(ctx, c.logger)
		log.WarnContext(ctx, "access token rejected, ending session", "op", op)
		if c.auth != nil {
			c.auth.Invalidate(ctx)
		}
		return Envelope{}, fmt.Errorf("%s: %w", op, domain.ErrUnauthenticated)
	}
	if env.Message != "" {
		status := raw.status
		if ok {
			status = http.StatusUnprocessableEntity
		}
		return Envelope{}, &domain.ServerRejectedError{StatusCode: status, Code: env.Code, Message: env.Message}
	}
	return Envelope{}, &domain.TransportError{Op: op, StatusCode: raw.status}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any, rc *requestConfig) (*http.Request, error) {
	u, err := c.resolve(path, rc.query)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	requestID := RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	req.Header.Set("X-Request-ID", requestID)
	for k, vs := range rc.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if !rc.noAuth && c.auth != nil {
		if token := c.auth.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	return req, nil
}

// resolve joins path onto the base URL. path is in escaped form, so callers
// pass ids through url.PathEscape.
func (c *Client) resolve(path string, query url.Values) (string, error) {
	u := *c.baseURL
	raw := c.baseURL.EscapedPath() + "/" + strings.TrimLeft(path, "/")
	unescaped, err := url.PathUnescape(raw)
	if err != nil {
		return "", fmt.Errorf("build request: invalid path %q: %w", path, err)
	}
	u.Path, u.RawPath = unescaped, raw
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String(), nil
}

type requestIDKey struct{}

// WithRequestID makes outgoing calls reuse an inbound request id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}
