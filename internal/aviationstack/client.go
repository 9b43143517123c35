// Package aviationstack is a small client for the aviationstack REST API,
// covering the airports and live flights endpoints.
//
// The vendor reports some failures as HTTP 200 with an "error" object in the
// body, so every response is checked for one before decoding data. All
// failures are returned as *upstream.Error.
package aviationstack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/manaspathak2335-git/TripPilot/internal/logging"
	"github.com/manaspathak2335-git/TripPilot/internal/metrics"
	"github.com/manaspathak2335-git/TripPilot/internal/upstream"
)

const (
	// DefaultBaseURL is the public API root.
	DefaultBaseURL = "http://api.aviationstack.com/v1"

	// ProviderName labels errors, logs and metrics.
	ProviderName = "aviationstack"

	defaultTimeout = 10 * time.Second
)

// ErrMissingKey is wrapped when no access key is configured.
var ErrMissingKey = errors.New("access key not configured")

// Option configures the Client.
type Option func(*Client)

// WithBaseURL overrides the API root (useful for testing).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Client) { c.metrics = m }
}

// Client talks to the aviationstack API.
type Client struct {
	baseURL    string
	accessKey  string
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Collector
}

// NewClient creates a client. An empty accessKey is allowed; every call then
// fails fast without touching the network.
func NewClient(accessKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		accessKey:  accessKey,
		httpClient: upstream.NewHTTPClient(defaultTimeout),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.Default(c.logger).With("component", "aviationstack")
	return c
}

// HasKey reports whether an access key is configured.
func (c *Client) HasKey() bool { return c.accessKey != "" }

// envelope is the common response shape: either data or error is set.
type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *apiError       `json:"error"`
}

type apiError struct {
	Code    any    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
	Info    string `json:"info"`
}

func (e *apiError) code() string {
	if e.Code != nil {
		switch v := e.Code.(type) {
		case float64:
			return fmt.Sprintf("%d", int(v))
		default:
			return fmt.Sprint(v)
		}
	}
	return e.Type
}

func (e *apiError) text() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Info
}

// get performs one GET against endpoint and decodes the "data" array into out.
func (c *Client) get(ctx context.Context, op, endpoint string, params url.Values, out any) (err error) {
	if c.accessKey == "" {
		return &upstream.Error{Provider: ProviderName, Op: op, Kind: upstream.KindUnavailable, Err: ErrMissingKey}
	}

	ctx, span := otel.Tracer("trippilot/aviationstack").Start(ctx, "aviationstack."+op)
	defer span.End()

	start := time.Now()
	defer func() {
		outcome := metrics.OutcomeOK
		if k, ok := upstream.KindOf(err); ok {
			outcome = k.String()
			span.SetStatus(codes.Error, outcome)
		}
		span.SetAttributes(attribute.String("outcome", outcome))
		c.metrics.ObserveUpstream(ProviderName, op, outcome, time.Since(start))
	}()

	params.Set("access_key", c.accessKey)
	reqURL := fmt.Sprintf("%s/%s?%s", c.baseURL, endpoint, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return &upstream.Error{Provider: ProviderName, Op: op, Kind: upstream.KindUnavailable, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return upstream.TransportError(ProviderName, op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return upstream.TransportError(ProviderName, op, err)
	}

	var env envelope
	decodeErr := json.Unmarshal(body, &env)

	if env.Error != nil {
		return vendorError(op, resp.StatusCode, env.Error)
	}
	if resp.StatusCode != http.StatusOK {
		return upstream.StatusError(ProviderName, op, resp.StatusCode, truncate(string(body)))
	}
	if decodeErr != nil {
		return upstream.MalformedError(ProviderName, op, decodeErr)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return upstream.MalformedError(ProviderName, op, errors.New(`response has no "data" field`))
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return upstream.MalformedError(ProviderName, op, err)
	}
	return nil
}

// vendorError classifies an error object from the response body.
func vendorError(op string, status int, e *apiError) *upstream.Error {
	code := e.code()
	kind := upstream.KindUnavailable
	switch code {
	case "usage_limit_reached", "104":
		kind = upstream.KindQuotaExceeded
	case "rate_limit_reached":
		kind = upstream.KindRateLimited
	case "function_access_restricted", "https_access_restricted", "103":
		kind = upstream.KindUnavailable
	default:
		if status != http.StatusOK {
			kind = upstream.ClassifyStatus(status)
			// An invalid key cannot be refreshed; keep it out of the auth-retry path.
			if kind == upstream.KindAuthExpired {
				kind = upstream.KindUnavailable
			}
		}
	}
	return &upstream.Error{
		Provider: ProviderName,
		Op:       op,
		Kind:     kind,
		Status:   status,
		Err:      fmt.Errorf("vendor error %s: %s", code, e.text()),
	}
}

func truncate(s string) string {
	const max = 512
	if len(s) > max {
		return s[:max]
	}
	return s
}
