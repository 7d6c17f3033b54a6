package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/backoffice/internal/logger"
	"github.com/wolfeidau/backoffice/internal/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	HeaderAuthorization = "Authorization"
	HeaderRestaurantID  = "X-Restaurant-ID"
	HeaderRequestID     = "X-Request-ID"
)

// Config holds common client configuration
type Config struct {
	BaseURL string
	Timeout time.Duration

	// Cache enables the HTTP caching transport; CacheDir selects disk over memory.
	Cache    bool
	CacheDir string

	// Transport overrides the base round tripper, mainly for tests.
	Transport http.RoundTripper
}

// DefaultConfig returns a default client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL: "https://localhost:8000",
		Timeout: 30 * time.Second,
	}
}

// ExpiredFunc is called when a request is rejected with a session-expired status.
// bearer is the access token the rejected request carried.
type ExpiredFunc func(ctx context.Context, bearer string)

// AuthenticatedClient issues JSON API calls carrying the current session credentials.
// Credentials are attached per call; only the session manager sets them.
type AuthenticatedClient struct {
	baseURL    *url.URL
	httpClient *http.Client
	anonymous  bool

	mu        sync.RWMutex
	bearer    string
	tenant    string
	onExpired ExpiredFunc
}

// New creates an authenticated client with the given configuration
func New(config Config) (*AuthenticatedClient, error) {
	base, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: scheme and host are required", config.BaseURL)
	}

	transport := config.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	if config.Cache {
		transport = NewCachingTransport(config.CacheDir, transport)
	}
	transport = logger.NewHTTPRequests(log.Logger, transport)

	return &AuthenticatedClient{
		baseURL: base,
		httpClient: &http.Client{
			Timeout:   config.Timeout,
			Transport: transport,
		},
	}, nil
}

// NewUnauthenticated returns a sibling client that never carries credentials and never
// triggers the session-expired hook. Used for login and token refresh.
func (c *AuthenticatedClient) NewUnauthenticated() *AuthenticatedClient {
	return &AuthenticatedClient{
		baseURL:    c.baseURL,
		httpClient: c.httpClient,
		anonymous:  true,
	}
}

// SetCredentials replaces the bearer token and tenant attached to subsequent calls.
// Empty values remove the corresponding header.
func (c *AuthenticatedClient) SetCredentials(bearer, tenant string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bearer = bearer
	c.tenant = tenant
}

// SetTenant replaces only the tenant attached to subsequent calls.
func (c *AuthenticatedClient) SetTenant(tenant string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tenant = tenant
}

// ClearCredentials removes both the bearer token and tenant.
func (c *AuthenticatedClient) ClearCredentials() {
	c.SetCredentials("", "")
}

// OnSessionExpired registers the hook invoked on 401/411 responses.
func (c *AuthenticatedClient) OnSessionExpired(fn ExpiredFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onExpired = fn
}

// Headers returns the headers the next call would carry.
func (c *AuthenticatedClient) Headers() http.Header {
	h, _ := c.headers()
	return h
}

func (c *AuthenticatedClient) headers() (http.Header, string) {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("Accept", "application/json")

	if c.anonymous {
		return h, ""
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.bearer != "" {
		h.Set(HeaderAuthorization, "Bearer "+c.bearer)
	}
	if c.tenant != "" {
		h.Set(HeaderRestaurantID, c.tenant)
	}
	return h, c.bearer
}

// Get issues a GET request and decodes the JSON response into out.
func (c *AuthenticatedClient) Get(ctx context.Context, path string, query url.Values, out any) error {
	if len(query) > 0 {
		path = path + "?" + query.Encode()
	}
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

// Post issues a POST request with a JSON body.
func (c *AuthenticatedClient) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPost, path, body, out)
}

// Delete issues a DELETE request, optionally with a JSON body.
func (c *AuthenticatedClient) Delete(ctx context.Context, path string, body any) error {
	return c.Do(ctx, http.MethodDelete, path, body, nil)
}

// Do issues a JSON request. Paths are resolved against the base URL unless absolute.
// Non-2xx responses are returned as *APIError; 401 and 411 additionally wrap
// ErrSessionExpired and fire the session-expired hook once for the request.
func (c *AuthenticatedClient) Do(ctx context.Context, method, path string, body, out any) error {
	r := &request{method: method, path: path, body: body, retried: isRetried(ctx)}
	return c.do(ctx, r, out)
}

type request struct {
	method  string
	path    string
	body    any
	bearer  string
	retried bool
}

func (c *AuthenticatedClient) do(ctx context.Context, r *request, out any) (err error) {
	target, err := c.resolve(r.path)
	if err != nil {
		return err
	}

	ctx, span := telemetry.StartSpan(ctx, "HTTP "+r.method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", r.method),
			attribute.String("url.full", target),
			attribute.Bool("backoffice.anonymous", c.anonymous),
		),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	var reader io.Reader
	if r.body != nil {
		data, err := json.Marshal(r.body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, target, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	headers, bearer := c.headers()
	for k, v := range headers {
		req.Header[k] = v
	}
	r.bearer = bearer
	req.Header.Set(HeaderRequestID, uuid.NewString())
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", r.method, r.path, err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{
			Method:     r.method,
			Path:       r.path,
			StatusCode: resp.StatusCode,
			Body:       data,
		}

		if !c.anonymous && isSessionExpiredStatus(resp.StatusCode) {
			c.handleExpired(ctx, r)
			return fmt.Errorf("%w: %w", ErrSessionExpired, apiErr)
		}

		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w from %s: %v", ErrInvalidResponse, r.path, err)
	}

	return nil
}

// handleExpired fires the hook at most once per request.
func (c *AuthenticatedClient) handleExpired(ctx context.Context, r *request) {
	if r.retried {
		log.Debug().Str("path", r.path).Msg("session expired on already retried request")
		return
	}
	r.retried = true

	c.mu.RLock()
	fn := c.onExpired
	c.mu.RUnlock()

	log.Warn().Str("path", r.path).Msg("session expired, clearing credentials")

	if fn != nil {
		fn(withRetried(ctx), r.bearer)
	}
}

func (c *AuthenticatedClient) resolve(path string) (string, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("invalid path %q: %w", path, err)
	}
	if ref.IsAbs() {
		return ref.String(), nil
	}

	base := *c.baseURL
	base.Path = strings.TrimSuffix(base.Path, "/")
	return base.ResolveReference(&url.URL{
		Path:     base.Path + "/" + strings.TrimPrefix(ref.Path, "/"),
		RawQuery: ref.RawQuery,
	}).String(), nil
}

type contextKey string

const retriedContextKey contextKey = "retried"

// withRetried marks calls made with ctx as already retried so a session-expired
// response does not fire the hook again.
func withRetried(ctx context.Context) context.Context {
	return context.WithValue(ctx, retriedContextKey, true)
}

func isRetried(ctx context.Context) bool {
	v, _ := ctx.Value(retriedContextKey).(bool)
	return v
}
