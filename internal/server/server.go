// Package server exposes the flight, airport and assistant services over
// HTTP JSON.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/manaspathak2335-git/TripPilot/internal/airports"
	"github.com/manaspathak2335-git/TripPilot/internal/logging"
	"github.com/manaspathak2335-git/TripPilot/internal/metrics"
	"github.com/manaspathak2335-git/TripPilot/pkg/models"
)

const (
	readTimeout     = 15 * time.Second
	writeTimeout    = 15 * time.Second
	idleTimeout     = 60 * time.Second
	shutdownTimeout = 10 * time.Second

	limiterCleanupInterval = time.Minute
	limiterStaleAfter      = 10 * time.Minute
)

// FlightService supplies active flights. FetchActiveFlights never fails.
type FlightService interface {
	FetchActiveFlights(ctx context.Context) []models.FlightRecord
	Lookup(ctx context.Context, icao24 string) (models.FlightRecord, bool)
	LastOutcome() models.FetchOutcome
}

// AirportService supplies the regional airport list.
type AirportService interface {
	Airports(ctx context.Context) []models.AirportRecord
	State() airports.State
}

// AssistantService answers free-text questions.
type AssistantService interface {
	Chat(ctx context.Context, message, chatContext string) string
	AnalyzeFlight(ctx context.Context, f models.FlightRecord) string
	Online() bool
}

// Options configures the Server.
type Options struct {
	Addr    string
	Version string

	// Per-client limit applied to the language-model routes.
	RateLimit rate.Limit
	Burst     int

	Logger  *slog.Logger
	Metrics *metrics.Collector
}

// Server is the HTTP surface.
type Server struct {
	flights   FlightService
	airports  AirportService
	assistant AssistantService

	opts      Options
	logger    *slog.Logger
	metrics   *metrics.Collector
	limiter   *rateLimiter
	mux       *http.ServeMux
	handler   http.Handler
	startTime time.Time
	ready     atomic.Bool

	httpServer *http.Server
}

// New builds the server and its routes.
func New(flights FlightService, airportSvc AirportService, assistant AssistantService, opts Options) *Server {
	if opts.RateLimit <= 0 {
		opts.RateLimit = 1
	}
	if opts.Burst <= 0 {
		opts.Burst = 5
	}
	s := &Server{
		flights:   flights,
		airports:  airportSvc,
		assistant: assistant,
		opts:      opts,
		logger:    logging.Default(opts.Logger).With("component", "server"),
		metrics:   opts.Metrics,
		limiter:   newRateLimiter(opts.RateLimit, opts.Burst),
		mux:       http.NewServeMux(),
		startTime: time.Now(),
	}
	s.routes()
	s.handler = chain(s.mux,
		s.metricsMiddleware,
		s.recoverMiddleware,
		requestIDMiddleware,
		corsMiddleware,
	)
	return s
}

func (s *Server) routes() {
	// Health endpoints
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /ready", s.handleReady)
	s.mux.HandleFunc("GET /live", s.handleLive)

	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics.Handler())
	}

	// API endpoints
	s.mux.HandleFunc("GET /api/flights/active", s.handleActiveFlights)
	s.mux.HandleFunc("GET /api/airports", s.handleAirports)
	s.mux.HandleFunc("GET /api/status", s.handleStatus)
	s.mux.Handle("POST /api/track-flight", s.limited(http.HandlerFunc(s.handleTrackFlight)))
	s.mux.Handle("POST /api/chat", s.limited(http.HandlerFunc(s.handleChat)))
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler { return s.handler }

// SetReady flips the readiness probe.
func (s *Server) SetReady(ready bool) { s.ready.Store(ready) }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.opts.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.httpServer = &http.Server{
		Handler:      s.handler,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
		ErrorLog:     slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}

	var wg sync.WaitGroup
	cleanupCtx, stopCleanup := context.WithCancel(ctx)
	defer func() {
		stopCleanup()
		wg.Wait()
	}()
	s.limiter.startCleanup(cleanupCtx, &wg, limiterCleanupInterval, limiterStaleAfter)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", ln.Addr().String())
		errCh <- s.httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	s.SetReady(false)
	s.logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}
