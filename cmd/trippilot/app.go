package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/manaspathak2335-git/TripPilot/internal/airports"
	"github.com/manaspathak2335-git/TripPilot/internal/assistant"
	"github.com/manaspathak2335-git/TripPilot/internal/aviationstack"
	"github.com/manaspathak2335-git/TripPilot/internal/config"
	"github.com/manaspathak2335-git/TripPilot/internal/credentials"
	"github.com/manaspathak2335-git/TripPilot/internal/ingestion"
	"github.com/manaspathak2335-git/TripPilot/internal/metrics"
	"github.com/manaspathak2335-git/TripPilot/internal/server"
	"github.com/manaspathak2335-git/TripPilot/internal/simulation"
	"github.com/manaspathak2335-git/TripPilot/internal/tracing"
	"github.com/manaspathak2335-git/TripPilot/internal/upstream"
)

// App wires the services behind the HTTP server.
type App struct {
	cfg     config.Config
	logger  *slog.Logger
	server  *server.Server
	fetcher *ingestion.Fetcher
	cache   *airports.Cache
	warmer  *airports.Warmer

	shutdownTracing func(context.Context) error
}

// NewApp builds every component from cfg.
func NewApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	cfg.Runtime.Apply()

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing, logger)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	m, err := metrics.NewCollector(nil)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	app := &App{
		cfg:             cfg,
		logger:          logger.With("component", "app"),
		shutdownTracing: shutdownTracing,
	}

	avs := aviationstack.NewClient(cfg.Secrets.AviationStackAPIKey,
		aviationstack.WithBaseURL(cfg.Providers.AviationStackURL),
		aviationstack.WithHTTPClient(upstream.NewHTTPClient(cfg.Airports.Timeout)),
		aviationstack.WithLogger(logger),
		aviationstack.WithMetrics(m),
	)
	if !avs.HasKey() {
		logger.Warn("AVIATIONSTACK_API_KEY not set, airport list will be empty")
	}

	app.fetcher = newFetcher(cfg, avs, logger, m)

	app.cache = airports.NewCache(avs,
		airports.WithTTL(cfg.Airports.TTL),
		airports.WithCountry(cfg.Airports.CountryCode, cfg.Airports.CountryName),
		airports.WithFetchTimeout(cfg.Airports.Timeout),
		airports.WithLogger(logger),
		airports.WithMetrics(m),
	)

	var completer assistant.Completer
	if cfg.Secrets.GeminiAPIKey != "" {
		gc, err := assistant.NewGeminiCompleter(ctx, cfg.Secrets.GeminiAPIKey, cfg.Assistant.Model)
		if err != nil {
			logger.Error("gemini client unavailable, assistant offline", "error", err)
		} else {
			completer = gc
		}
	} else {
		logger.Warn("GEMINI_API_KEY not set, assistant offline")
	}
	chat := assistant.New(completer,
		assistant.WithTimeout(cfg.Assistant.Timeout),
		assistant.WithLogger(logger),
		assistant.WithMetrics(m),
	)

	app.server = server.New(app.fetcher, app.cache, chat, server.Options{
		Addr:      cfg.HTTP.ListenAddr(),
		Version:   version,
		RateLimit: rate.Limit(cfg.RateLimit.RPS),
		Burst:     cfg.RateLimit.Burst,
		Logger:    logger,
		Metrics:   m,
	})
	return app, nil
}

// newFetcher selects the live source. Only the tabular provider uses client
// credentials; without them it runs anonymously.
func newFetcher(cfg config.Config, avs *aviationstack.Client, logger *slog.Logger, m *metrics.Collector) *ingestion.Fetcher {
	hc := upstream.NewHTTPClient(cfg.Flights.Timeout)
	opts := []ingestion.Option{
		ingestion.WithSimulator(simulation.New()),
		ingestion.WithSimulatedCount(cfg.Flights.SimulatedCount),
		ingestion.WithBounds(cfg.Flights.Bounds),
		ingestion.WithTimeout(cfg.Flights.Timeout),
		ingestion.WithLogger(logger),
		ingestion.WithMetrics(m),
	}
	if cfg.Ranking.Enabled {
		opts = append(opts, ingestion.WithRanking(cfg.Ranking.Limit))
	}

	var src ingestion.LiveFlightSource
	switch cfg.Flights.Provider {
	case ingestion.ProviderFR24:
		src = ingestion.NewFR24Source(
			ingestion.WithBaseURL(cfg.Providers.FR24URL),
			ingestion.WithHTTPClient(hc))
	case ingestion.ProviderAviationStack:
		src = ingestion.NewAviationStackSource(avs)
	default:
		src = ingestion.NewOpenSkySource(
			ingestion.WithBaseURL(cfg.Providers.OpenSkyURL),
			ingestion.WithHTTPClient(hc))

		s := cfg.Secrets
		if s.HasOpenSkyCredentials() {
			mgr := credentials.NewManager(s.OpenSkyClientID, s.OpenSkyClientSecret,
				credentials.WithTokenURL(cfg.Providers.OpenSkyTokenURL),
				credentials.WithLogger(logger),
				credentials.WithMetrics(m))
			opts = append(opts, ingestion.WithTokens(mgr))
			logger.Info("OpenSky auth: OAuth2 client credentials",
				"client_id", s.OpenSkyClientID, "source", s.CredentialsSource)
		} else {
			logger.Info("OpenSky auth: anonymous (rate limited)")
		}
	}
	return ingestion.NewFetcher(src, opts...)
}

// Run starts background work and serves until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("TripPilot starting",
		"version", version,
		"addr", a.cfg.HTTP.ListenAddr(),
		"provider", a.cfg.Flights.Provider,
		"ranking", a.cfg.Ranking.Enabled)

	if a.cfg.Airports.PrewarmInterval > 0 {
		w, err := airports.StartWarmer(a.cache, a.cfg.Airports.PrewarmInterval, a.logger)
		if err != nil {
			return err
		}
		a.warmer = w
	}

	a.server.SetReady(true)
	err := a.server.Run(ctx)
	return errors.Join(err, a.Shutdown())
}

// Shutdown stops background work and flushes telemetry.
func (a *App) Shutdown() error {
	var errs []error
	if err := a.warmer.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stop warmer: %w", err))
	}
	tracing.ShutdownWithTimeout(context.Background(), a.shutdownTracing, a.logger)
	a.logger.Info("TripPilot stopped")
	return errors.Join(errs...)
}
