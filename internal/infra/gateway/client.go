// Package gateway is the HTTP client for the Engage messaging API, a
// Chatwoot-compatible conversation platform that delivers WhatsApp template
// messages.
//
// A send resolves the contact, binds it to the WhatsApp inbox, reuses an
// existing conversation when possible and otherwise opens a new one with the
// template as the first message. Every request passes through a circuit
// breaker, and idempotent reads are retried with backoff.
package gateway

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
	"strconv"
	"strings"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"engage-notify/internal/config"
	"engage-notify/internal/domain/entity"
	"engage-notify/internal/observability/tracing"
	"engage-notify/internal/resilience/circuitbreaker"
	"engage-notify/internal/resilience/retry"
)

// Version is reported in the User-Agent header. Overridden at build time.
var Version = "1.0.0"

const (
	maxResponseBytes = 4 << 20
	rawPreviewLength = 200
)

// Client talks to one Engage account and inbox.
type Client struct {
	cfg       config.GatewayConfig
	settings  *config.Settings
	http      *http.Client
	limiter   *rate.Limiter
	breaker   *circuitbreaker.CircuitBreaker
	readRetry retry.Config
	logger    *slog.Logger
	userAgent string
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithLogger sets the logger used for fallthrough warnings.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithReadRetry overrides the backoff used for GET requests.
func WithReadRetry(cfg retry.Config) Option {
	return func(c *Client) { c.readRetry = cfg }
}

// New builds a client. settings supplies the template language, category,
// default country code and template bodies; nil means defaults.
func New(cfg config.GatewayConfig, settings *config.Settings, opts ...Option) *Client {
	if settings == nil {
		settings = config.Defaults()
	}
	readRetry := retry.GatewayReadConfig()
	readRetry.MaxAttempts = cfg.GETRetries + 1

	cb := circuitbreaker.GatewayConfig()
	if cfg.CircuitBreaker.MaxRequests > 0 {
		cb.MaxRequests = cfg.CircuitBreaker.MaxRequests
		cb.Interval = cfg.CircuitBreaker.Interval
		cb.Timeout = cfg.CircuitBreaker.Timeout
		cb.FailureThreshold = cfg.CircuitBreaker.FailureThreshold
		cb.MinRequests = cfg.CircuitBreaker.MinRequests
	}
	cb.IsSuccessful = countsAsHealthy

	c := &Client{
		cfg:       cfg,
		settings:  settings,
		http:      &http.Client{Timeout: cfg.Timeout},
		breaker:   circuitbreaker.New(cb),
		readRetry: readRetry,
		logger:    slog.Default(),
		userAgent: "engage-notify/" + Version,
	}
	if cfg.RateLimitRPS > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.readRetry.MaxAttempts < 1 {
		c.readRetry.MaxAttempts = 1
	}
	return c
}

// BreakerOpen reports whether the gateway circuit breaker is open.
func (c *Client) BreakerOpen() bool {
	return c.breaker.IsOpen()
}

// countsAsHealthy keeps client-side rejections (bad parameters, unknown
// template, missing contact) from tripping the breaker. Only transport
// failures, 5xx, 408 and 429 count.
func countsAsHealthy(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	var te *entity.TransportError
	if errors.As(err, &te) {
		code := te.StatusCode
		return code >= 400 && code < 500 &&
			code != http.StatusRequestTimeout && code != http.StatusTooManyRequests
	}
	return true
}

// reserve takes one token for a gateway operation. It never waits: an empty
// bucket is reported as a rate limit so the caller's retry schedule takes
// over.
func (c *Client) reserve() error {
	if c.limiter == nil || c.limiter.Allow() {
		return nil
	}
	requestsTotal.WithLabelValues("limiter", "429").Inc()
	return &entity.TransportError{
		StatusCode: http.StatusTooManyRequests,
		Message:    "Rate limit exceeded: gateway request budget exhausted.",
	}
}

func (c *Client) accountPath(suffix string) string {
	return "/api/v1/accounts/" + strconv.FormatInt(c.cfg.AccountID, 10) + suffix
}

type call struct {
	method   string
	endpoint string // metric and span label
	path     string
	query    url.Values
	body     any
}

type response struct {
	status int
	raw    []byte
	data   any
}

// object returns the decoded body as a JSON object, or an empty one.
func (r *response) object() map[string]any {
	if m, ok := r.data.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

// get performs an idempotent read, retrying transient failures. The error
// returned is the last attempt's, unwrapped.
func (c *Client) get(ctx context.Context, endpoint, path string, query url.Values) (*response, error) {
	var resp *response
	var lastErr error
	err := retry.WithBackoff(ctx, c.readRetry, func() error {
		resp, lastErr = c.do(ctx, call{method: http.MethodGet, endpoint: endpoint, path: path, query: query})
		return lastErr
	})
	if err == nil {
		return resp, nil
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, err
}

func (c *Client) post(ctx context.Context, endpoint, path string, body any) (*response, error) {
	return c.do(ctx, call{method: http.MethodPost, endpoint: endpoint, path: path, body: body})
}

func (c *Client) do(ctx context.Context, cl call) (*response, error) {
	ctx, span := tracing.GetTracer().Start(ctx, "gateway."+cl.endpoint,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", cl.method),
			attribute.String("gateway.endpoint", cl.endpoint),
		),
	)
	defer span.End()

	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.roundTrip(ctx, cl)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			requestsTotal.WithLabelValues(cl.endpoint, "breaker_open").Inc()
			err = &entity.TransportError{
				Message: "Gateway circuit breaker is open, request not sent.",
				Err:     err,
			}
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	resp := out.(*response)
	span.SetAttributes(attribute.Int("http.status_code", resp.status))
	return resp, nil
}

func (c *Client) roundTrip(ctx context.Context, cl call) (*response, error) {
	target := strings.TrimRight(c.cfg.BaseURL, "/") + cl.path
	if len(cl.query) > 0 {
		target += "?" + cl.query.Encode()
	}

	var body io.Reader
	if cl.body != nil && (cl.method == http.MethodPost || cl.method == http.MethodPut || cl.method == http.MethodPatch) {
		buf, err := json.Marshal(cl.body)
		if err != nil {
			return nil, fmt.Errorf("marshal %s request: %w", cl.endpoint, err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, target, body)
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", cl.endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api_access_token", c.cfg.APIToken)
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		requestsTotal.WithLabelValues(cl.endpoint, "error").Inc()
		return nil, &entity.TransportError{
			Message: fmt.Sprintf("HTTP request failed: %s", err.Error()),
			Err:     err,
		}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		requestsTotal.WithLabelValues(cl.endpoint, "error").Inc()
		return nil, &entity.TransportError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("HTTP request failed: %s", err.Error()),
			Err:        err,
		}
	}
	requestsTotal.WithLabelValues(cl.endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &entity.TransportError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("API request failed with status %d: %s", resp.StatusCode, preview(raw)),
		}
	}

	out := &response{status: resp.StatusCode, raw: raw}
	if len(bytes.TrimSpace(raw)) == 0 {
		out.data = map[string]any{}
		out.raw = []byte("{}")
		return out, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&out.data); err != nil || out.data == nil {
		return nil, &entity.TransportError{
			StatusCode: resp.StatusCode,
			Message:    "Invalid JSON response from API. Raw response: " + preview(raw),
			Err:        err,
		}
	}
	return out, nil
}

func preview(raw []byte) string {
	if len(raw) <= rawPreviewLength {
		return string(raw)
	}
	return string(raw[:rawPreviewLength]) + "..."
}
