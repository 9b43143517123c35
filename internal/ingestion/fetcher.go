package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/manaspathak2335-git/TripPilot/internal/logging"
	"github.com/manaspathak2335-git/TripPilot/internal/metrics"
	"github.com/manaspathak2335-git/TripPilot/internal/ranking"
	"github.com/manaspathak2335-git/TripPilot/internal/simulation"
	"github.com/manaspathak2335-git/TripPilot/internal/upstream"
	"github.com/manaspathak2335-git/TripPilot/pkg/models"
)

// Fallback reasons that are not upstream error kinds.
const (
	reasonNoUsableRecords = "no_usable_records"
	reasonUnknown         = "unknown"
)

// TokenSource is the credential manager as seen by the fetcher.
type TokenSource interface {
	Token() string
	Acquire(ctx context.Context) (string, error)
}

// Option configures the Fetcher.
type Option func(*Fetcher)

// WithTokens sets the credential manager used by token-based sources.
// Without one, such sources are called anonymously.
func WithTokens(ts TokenSource) Option {
	return func(f *Fetcher) { f.tokens = ts }
}

// WithSimulator sets the fallback generator.
func WithSimulator(g *simulation.Generator) Option {
	return func(f *Fetcher) { f.sim = g }
}

// WithSimulatedCount sets how many records the fallback produces.
func WithSimulatedCount(n int) Option {
	return func(f *Fetcher) { f.simCount = n }
}

// WithRanking enables route scoring and truncation to limit.
func WithRanking(limit int) Option {
	return func(f *Fetcher) {
		f.rank = true
		f.limit = limit
	}
}

// WithBounds sets the query region.
func WithBounds(b models.BoundingBox) Option {
	return func(f *Fetcher) { f.bbox = b }
}

// WithTimeout bounds each upstream call.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) { f.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Fetcher) { f.logger = l }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(f *Fetcher) { f.metrics = m }
}

// WithClock overrides time.Now for outcome timestamps.
func WithClock(now func() time.Time) Option {
	return func(f *Fetcher) { f.now = now }
}

// Fetcher produces the active-flight list. It never fails: every live-path
// problem degrades to simulated traffic.
type Fetcher struct {
	source   LiveFlightSource
	tokens   TokenSource
	sim      *simulation.Generator
	simCount int
	rank     bool
	limit    int
	bbox     models.BoundingBox
	timeout  time.Duration
	logger   *slog.Logger
	metrics  *metrics.Collector
	tracer   trace.Tracer
	now      func() time.Time

	mu      sync.RWMutex
	last    models.FetchOutcome
	current []models.FlightRecord // live records of the latest fetch
}

// NewFetcher creates a fetcher over source.
func NewFetcher(source LiveFlightSource, opts ...Option) *Fetcher {
	f := &Fetcher{
		source:   source,
		simCount: simulation.DefaultCount,
		bbox:     models.IndiaBounds,
		timeout:  defaultSourceTimeout,
		tracer:   otel.Tracer("trippilot/ingestion"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.sim == nil {
		f.sim = simulation.New()
	}
	f.logger = logging.Default(f.logger).With("component", "ingestion", "provider", source.Name())
	return f
}

// FetchActiveFlights returns live flights for the configured region, or
// simulated flights when the live path fails or yields nothing.
func (f *Fetcher) FetchActiveFlights(ctx context.Context) []models.FlightRecord {
	flights, err := f.fetchLive(ctx)
	if err == nil {
		flights = normalize(flights, f.source.Name())
		if f.rank {
			flights = ranking.Rank(flights, f.limit)
		}
	}

	if err != nil || len(flights) == 0 {
		reason := reasonNoUsableRecords
		if err != nil {
			reason = failureReason(err)
			f.logger.Warn("live fetch failed, serving simulated flights", "reason", reason, "error", err)
		} else {
			f.logger.Info("no usable live flights, serving simulated flights")
		}
		f.metrics.Fallback(reason)

		sim := f.sim.Generate(f.simCount)
		f.record(models.FetchOutcome{Live: false, Count: len(sim), Failure: reason}, nil)
		f.metrics.FlightsReturned(true, len(sim))
		return sim
	}

	f.logger.Debug("live flights fetched", "count", len(flights))
	f.record(models.FetchOutcome{Live: true, Count: len(flights)}, flights)
	f.metrics.FlightsReturned(false, len(flights))
	return flights
}

// Lookup returns the record for an aircraft from the latest live fetch,
// matched by ICAO24 address or record id. It never calls the upstream, and
// finds nothing while simulated traffic is being served.
func (f *Fetcher) Lookup(_ context.Context, icao24 string) (models.FlightRecord, bool) {
	want := strings.ToLower(strings.TrimSpace(icao24))
	if want == "" {
		return models.FlightRecord{}, false
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, r := range f.current {
		if r.Simulated {
			continue
		}
		if r.ICAO24 == want || strings.EqualFold(r.ID, want) {
			return r, true
		}
	}
	return models.FlightRecord{}, false
}

// LastOutcome returns a summary of the most recent fetch.
func (f *Fetcher) LastOutcome() models.FetchOutcome {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.last
}

// Provider returns the configured source name.
func (f *Fetcher) Provider() string { return f.source.Name() }

func (f *Fetcher) record(o models.FetchOutcome, live []models.FlightRecord) {
	o.Provider = f.source.Name()
	o.FetchedAt = f.now()
	f.mu.Lock()
	f.last = o
	f.current = slices.Clone(live)
	f.mu.Unlock()
}

// fetchLive runs the token and retry policy: at most one refresh, and only
// after an auth failure. Every other failure is final.
func (f *Fetcher) fetchLive(ctx context.Context) ([]models.FlightRecord, error) {
	useTokens := f.source.NeedsToken() && f.tokens != nil

	var token string
	if useTokens {
		token = f.tokens.Token()
		if token == "" {
			t, err := f.tokens.Acquire(ctx)
			if err != nil {
				return nil, fmt.Errorf("acquiring token: %w", err)
			}
			token = t
		}
	}

	flights, err := f.call(ctx, token)
	if err == nil || !useTokens || !upstream.IsKind(err, upstream.KindAuthExpired) {
		return flights, err
	}

	f.logger.Info("token rejected, refreshing once")
	token, aerr := f.tokens.Acquire(ctx)
	if aerr != nil {
		return nil, fmt.Errorf("refreshing token: %w", aerr)
	}
	return f.call(ctx, token)
}

// call performs exactly one upstream request under the per-call timeout.
func (f *Fetcher) call(ctx context.Context, token string) (flights []models.FlightRecord, err error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	ctx, span := f.tracer.Start(ctx, "ingestion.fetch", trace.WithAttributes(
		attribute.String("provider", f.source.Name()),
		attribute.Bool("authenticated", token != ""),
	))
	defer span.End()

	start := time.Now()
	flights, err = f.source.Fetch(ctx, f.bbox, token)
	if err != nil && !isTyped(err) {
		err = upstream.TransportError(f.source.Name(), "fetch", err)
	}

	outcome := metrics.OutcomeOK
	if err != nil {
		outcome = failureReason(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	span.SetAttributes(attribute.Int("records", len(flights)))
	f.metrics.ObserveUpstream(f.source.Name(), "fetch", outcome, time.Since(start))
	return flights, err
}

func isTyped(err error) bool {
	var ue *upstream.Error
	return errors.As(err, &ue)
}

// failureReason names err for logs, metrics and the status endpoint.
func failureReason(err error) string {
	if k, ok := upstream.KindOf(err); ok {
		return k.String()
	}
	if upstream.IsTimeout(err) || errors.Is(err, context.Canceled) {
		return upstream.KindNetworkFailure.String()
	}
	return reasonUnknown
}
