// Package config loads service configuration: built-in defaults, then an
// optional YAML file, then environment overrides. Secrets come only from the
// environment or the credentials file, never from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/manaspathak2335-git/TripPilot/internal/airports"
	"github.com/manaspathak2335-git/TripPilot/internal/assistant"
	"github.com/manaspathak2335-git/TripPilot/internal/aviationstack"
	"github.com/manaspathak2335-git/TripPilot/internal/credentials"
	"github.com/manaspathak2335-git/TripPilot/internal/ingestion"
	"github.com/manaspathak2335-git/TripPilot/internal/logging"
	"github.com/manaspathak2335-git/TripPilot/internal/ranking"
	"github.com/manaspathak2335-git/TripPilot/internal/simulation"
	"github.com/manaspathak2335-git/TripPilot/internal/tracing"
	"github.com/manaspathak2335-git/TripPilot/pkg/models"
)

// PathEnv names the variable holding the config file path.
const PathEnv = "TRIPPILOT_CONFIG"

// Config holds all service configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Flights   FlightsConfig   `yaml:"flights"`
	Ranking   RankingConfig   `yaml:"ranking"`
	Airports  AirportsConfig  `yaml:"airports"`
	Assistant AssistantConfig `yaml:"assistant"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Log       logging.Config  `yaml:"log"`
	Tracing   tracing.Config  `yaml:"tracing"`
	Runtime   RuntimeConfig   `yaml:"runtime"`
	Providers ProvidersConfig `yaml:"providers"`

	Secrets Secrets `yaml:"-"`
}

// HTTPConfig is the listener.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
	Port int    `yaml:"port"`
}

// ListenAddr returns host:port.
func (h HTTPConfig) ListenAddr() string {
	return fmt.Sprintf("%s:%d", h.Addr, h.Port)
}

// FlightsConfig selects and bounds the live-position source.
type FlightsConfig struct {
	Provider       string             `yaml:"provider"`
	Timeout        time.Duration      `yaml:"timeout"`
	SimulatedCount int                `yaml:"simulated_count"`
	Bounds         models.BoundingBox `yaml:"bounds"`
}

// RankingConfig controls route scoring.
type RankingConfig struct {
	Enabled bool `yaml:"enabled"`
	Limit   int  `yaml:"limit"`
}

// AirportsConfig controls the reference data cache.
type AirportsConfig struct {
	TTL             time.Duration `yaml:"ttl"`
	Timeout         time.Duration `yaml:"timeout"`
	CountryCode     string        `yaml:"country_code"`
	CountryName     string        `yaml:"country_name"`
	PrewarmInterval time.Duration `yaml:"prewarm_interval"`
}

// AssistantConfig controls the language-model proxy.
type AssistantConfig struct {
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// RateLimitConfig is the per-client limit on language-model routes.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// ProvidersConfig holds upstream base URLs.
type ProvidersConfig struct {
	OpenSkyURL       string `yaml:"opensky_url"`
	OpenSkyTokenURL  string `yaml:"opensky_token_url"`
	FR24URL          string `yaml:"fr24_url"`
	AviationStackURL string `yaml:"aviationstack_url"`
}

// Secrets are never read from or written to YAML.
type Secrets struct {
	GeminiAPIKey        string
	AviationStackAPIKey string
	OpenSkyClientID     string
	OpenSkyClientSecret string
	CredentialsFile     string

	// CredentialsSource records where the OpenSky client credentials came from:
	// "env", the credentials file path, or "" when absent.
	CredentialsSource string
}

// HasOpenSkyCredentials reports whether both client id and secret are set.
func (s Secrets) HasOpenSkyCredentials() bool {
	return s.OpenSkyClientID != "" && s.OpenSkyClientSecret != ""
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		HTTP: HTTPConfig{Addr: "0.0.0.0", Port: 8000},
		Flights: FlightsConfig{
			Provider:       ingestion.ProviderOpenSky,
			Timeout:        10 * time.Second,
			SimulatedCount: simulation.DefaultCount,
			Bounds:         models.IndiaBounds,
		},
		Ranking: RankingConfig{Enabled: true, Limit: ranking.DefaultLimit},
		Airports: AirportsConfig{
			TTL:         airports.DefaultTTL,
			Timeout:     10 * time.Second,
			CountryCode: airports.DefaultCountryCode,
			CountryName: airports.DefaultCountryName,
		},
		Assistant: AssistantConfig{Model: assistant.DefaultModel, Timeout: assistant.DefaultTimeout},
		RateLimit: RateLimitConfig{RPS: 1, Burst: 5},
		Log:       logging.Config{Level: "info", Format: "text"},
		Tracing:   tracing.DefaultConfig(),
		Providers: ProvidersConfig{
			OpenSkyURL:       ingestion.DefaultOpenSkyURL,
			OpenSkyTokenURL:  credentials.DefaultTokenURL,
			FR24URL:          ingestion.DefaultFR24URL,
			AviationStackURL: aviationstack.DefaultBaseURL,
		},
		Secrets: Secrets{CredentialsFile: "credentials.json"},
	}
}

// Load builds the effective configuration. An empty path falls back to
// $TRIPPILOT_CONFIG; with neither set only defaults and env apply.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(PathEnv)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := cfg.decode(data); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.loadSecrets()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// decode overlays YAML onto cfg. Unknown keys are rejected.
func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// applyEnv overrides non-secret settings from the environment.
func (c *Config) applyEnv() {
	c.HTTP.Addr = getEnv("HTTP_ADDR", c.HTTP.Addr)
	c.HTTP.Port = getEnvInt("HTTP_PORT", c.HTTP.Port)

	c.Flights.Provider = getEnv("FLIGHTS_PROVIDER", c.Flights.Provider)
	c.Flights.Timeout = getEnvDuration("FLIGHTS_TIMEOUT", c.Flights.Timeout)
	c.Flights.SimulatedCount = getEnvInt("FLIGHTS_SIMULATED_COUNT", c.Flights.SimulatedCount)

	c.Ranking.Enabled = getEnvBool("RANKING_ENABLED", c.Ranking.Enabled)
	c.Ranking.Limit = getEnvInt("RANKING_LIMIT", c.Ranking.Limit)

	c.Airports.TTL = getEnvDuration("AIRPORTS_TTL", c.Airports.TTL)
	c.Airports.Timeout = getEnvDuration("AIRPORTS_TIMEOUT", c.Airports.Timeout)
	c.Airports.PrewarmInterval = getEnvDuration("AIRPORTS_PREWARM_INTERVAL", c.Airports.PrewarmInterval)

	c.Assistant.Model = getEnv("GEMINI_MODEL", c.Assistant.Model)
	c.Assistant.Timeout = getEnvDuration("ASSISTANT_TIMEOUT", c.Assistant.Timeout)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)

	c.Tracing.Enabled = getEnvBool("TRACING_ENABLED", c.Tracing.Enabled)
	c.Tracing.Exporter = getEnv("TRACING_EXPORTER", c.Tracing.Exporter)
	c.Tracing.Endpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", c.Tracing.Endpoint)

	c.Runtime.MaxProcs = getEnvInt("GOMAXPROCS", c.Runtime.MaxProcs)
	c.Runtime.MemoryLimitMB = getEnvInt("MEMORY_LIMIT_MB", c.Runtime.MemoryLimitMB)
	c.Runtime.GCPercent = getEnvInt("GC_PERCENT", c.Runtime.GCPercent)

	c.Providers.OpenSkyURL = getEnv("OPENSKY_URL", c.Providers.OpenSkyURL)
	c.Providers.OpenSkyTokenURL = getEnv("OPENSKY_TOKEN_URL", c.Providers.OpenSkyTokenURL)
	c.Providers.FR24URL = getEnv("FR24_URL", c.Providers.FR24URL)
	c.Providers.AviationStackURL = getEnv("AVIATIONSTACK_URL", c.Providers.AviationStackURL)
}

// loadSecrets reads keys from the environment, falling back to the
// credentials file for OpenSky client credentials. A missing file is not an
// error; anonymous access is allowed.
func (c *Config) loadSecrets() {
	s := &c.Secrets
	s.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	s.AviationStackAPIKey = os.Getenv("AVIATIONSTACK_API_KEY")
	s.OpenSkyClientID = os.Getenv("OPENSKY_CLIENT_ID")
	s.OpenSkyClientSecret = os.Getenv("OPENSKY_CLIENT_SECRET")
	s.CredentialsFile = getEnv("CREDENTIALS_FILE", s.CredentialsFile)

	if s.HasOpenSkyCredentials() {
		s.CredentialsSource = "env"
		return
	}
	if s.CredentialsFile == "" {
		return
	}
	if creds, err := credentials.LoadCredentials(s.CredentialsFile); err == nil {
		s.OpenSkyClientID = creds.ClientID
		s.OpenSkyClientSecret = creds.ClientSecret
		s.CredentialsSource = s.CredentialsFile
	}
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.HTTP.Port > 0 && c.HTTP.Port < 65536, "http.port out of range: %d", c.HTTP.Port)
	check(ingestion.ValidProvider(c.Flights.Provider), "flights.provider %q is not one of %v", c.Flights.Provider, ingestion.Providers())
	check(c.Flights.Timeout > 0, "flights.timeout must be positive")
	check(c.Flights.SimulatedCount > 0, "flights.simulated_count must be positive")
	b := c.Flights.Bounds
	check(b.MinLat < b.MaxLat && b.MinLon < b.MaxLon, "flights.bounds is empty: %+v", b)
	check(c.Ranking.Limit >= 0, "ranking.limit must not be negative")
	check(c.Airports.TTL > 0, "airports.ttl must be positive")
	check(c.Airports.Timeout > 0, "airports.timeout must be positive")
	check(c.Airports.CountryCode != "", "airports.country_code is required")
	check(c.Airports.PrewarmInterval >= 0, "airports.prewarm_interval must not be negative")
	check(c.Assistant.Timeout > 0, "assistant.timeout must be positive")
	check(c.RateLimit.RPS > 0, "ratelimit.rps must be positive")
	check(c.RateLimit.Burst > 0, "ratelimit.burst must be positive")
	check(c.Log.Format == "text" || c.Log.Format == "json", "log.format %q must be text or json", c.Log.Format)
	check(c.Tracing.Exporter == "stdout" || c.Tracing.Exporter == "otlp", "tracing.exporter %q must be stdout or otlp", c.Tracing.Exporter)
	check(c.Tracing.SampleRatio >= 0 && c.Tracing.SampleRatio <= 1, "tracing.sample_ratio must be within [0,1]")

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// MaskedSecrets returns secrets with all but the last four characters hidden.
func (c Config) MaskedSecrets() map[string]string {
	s := c.Secrets
	return map[string]string{
		"GEMINI_API_KEY":        mask(s.GeminiAPIKey),
		"AVIATIONSTACK_API_KEY": mask(s.AviationStackAPIKey),
		"OPENSKY_CLIENT_ID":     mask(s.OpenSkyClientID),
		"OPENSKY_CLIENT_SECRET": mask(s.OpenSkyClientSecret),
		"CREDENTIALS_FILE":      s.CredentialsFile,
	}
}

func mask(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) <= 8:
		return "****"
	default:
		return "****" + s[len(s)-4:]
	}
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
