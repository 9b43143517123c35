// Package credentials manages the OAuth2 bearer token used by the telemetry
// provider.
//
// The token is acquired lazily and replaced wholesale on every exchange.
// No expiry is tracked: callers detect expiry when the provider rejects the
// token and then call Acquire again.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/singleflight"

	"github.com/manaspathak2335-git/TripPilot/internal/logging"
	"github.com/manaspathak2335-git/TripPilot/internal/metrics"
	"github.com/manaspathak2335-git/TripPilot/internal/upstream"
)

const (
	// DefaultTokenURL is the OpenSky OAuth2 token endpoint.
	DefaultTokenURL = "https://auth.opensky-network.org/auth/realms/opensky-network/protocol/openid-connect/token"

	defaultTimeout = 10 * time.Second
	providerName   = "opensky"
	opToken        = "token"
)

// Option configures the Manager.
type Option func(*Manager)

// WithTokenURL overrides the token endpoint (useful for testing).
func WithTokenURL(u string) Option {
	return func(m *Manager) { m.oauth.TokenURL = u }
}

// WithHTTPClient sets the HTTP client used for the exchange.
func WithHTTPClient(hc *http.Client) Option {
	return func(m *Manager) { m.httpClient = hc }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithMetrics sets the metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(m *Manager) { m.metrics = c }
}

// Manager performs client-credentials exchanges and holds the current token.
type Manager struct {
	oauth      clientcredentials.Config
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Collector

	group singleflight.Group

	mu    sync.RWMutex
	token string
}

// NewManager creates a token manager for the OAuth2 client credentials flow.
func NewManager(clientID, clientSecret string, opts ...Option) *Manager {
	m := &Manager{
		oauth: clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     DefaultTokenURL,
			AuthStyle:    oauth2.AuthStyleInParams,
		},
		httpClient: upstream.NewHTTPClient(defaultTimeout),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logging.Default(m.logger).With("component", "credentials")
	return m
}

// Token returns the cached token, or "" if none has been acquired.
func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token
}

// Acquire performs one client-credentials exchange and stores the result.
//
// On failure the previously stored token, if any, is left in place. There is
// no retry here. Concurrent callers share a single in-flight exchange, which
// is detached from any one caller's cancellation and bounded by the HTTP
// client timeout instead.
func (m *Manager) Acquire(ctx context.Context) (string, error) {
	v, err, shared := m.group.Do(opToken, func() (any, error) {
		return m.exchange(context.WithoutCancel(ctx))
	})
	if err != nil {
		return "", err
	}
	if shared {
		m.logger.Debug("joined in-flight token exchange")
	}
	return v.(string), nil
}

func (m *Manager) exchange(ctx context.Context) (string, error) {
	start := time.Now()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)

	tok, err := m.oauth.Token(ctx)
	if err != nil {
		uerr := classify(err)
		m.metrics.ObserveUpstream(providerName, opToken, uerr.Kind.String(), time.Since(start))
		m.metrics.TokenRefresh(uerr.Kind.String())
		m.logger.Warn("token exchange failed", "kind", uerr.Kind.String(), "status", uerr.Status, "error", uerr.Err)
		return "", uerr
	}

	m.mu.Lock()
	m.token = tok.AccessToken
	m.mu.Unlock()

	m.metrics.ObserveUpstream(providerName, opToken, metrics.OutcomeOK, time.Since(start))
	m.metrics.TokenRefresh(metrics.OutcomeOK)
	m.logger.Info("token acquired", "latency", time.Since(start))
	return tok.AccessToken, nil
}

// classify converts an oauth2 error into the upstream taxonomy.
func classify(err error) *upstream.Error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		status := 0
		if re.Response != nil {
			status = re.Response.StatusCode
		}
		return upstream.StatusError(providerName, opToken, status, string(re.Body))
	}
	var ue *url.Error
	if errors.As(err, &ue) || upstream.IsTimeout(err) || errors.Is(err, context.Canceled) {
		return upstream.TransportError(providerName, opToken, err)
	}
	return upstream.MalformedError(providerName, opToken, err)
}

// Credentials holds OAuth2 client credentials loaded from credentials.json.
type Credentials struct {
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
}

// LoadCredentials reads OAuth2 credentials from a JSON file.
func LoadCredentials(path string) (*Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading credentials file: %w", err)
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("parsing credentials file: %w", err)
	}

	if creds.ClientID == "" || creds.ClientSecret == "" {
		return nil, fmt.Errorf("credentials file missing clientId or clientSecret")
	}

	return &creds, nil
}
