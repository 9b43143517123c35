package ingestion

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manaspathak2335-git/TripPilot/internal/metrics"
	"github.com/manaspathak2335-git/TripPilot/internal/simulation"
	"github.com/manaspathak2335-git/TripPilot/internal/upstream"
	"github.com/manaspathak2335-git/TripPilot/pkg/models"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type scriptedSource struct {
	mu         sync.Mutex
	needsToken bool
	results    []sourceResult
	tokens     []string
	ctxHasDL   bool
}

type sourceResult struct {
	flights []models.FlightRecord
	err     error
}

func (s *scriptedSource) Name() string     { return "fake" }
func (s *scriptedSource) NeedsToken() bool { return s.needsToken }

func (s *scriptedSource) Fetch(ctx context.Context, _ models.BoundingBox, token string) ([]models.FlightRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, s.ctxHasDL = ctx.Deadline()
	s.tokens = append(s.tokens, token)
	if len(s.results) == 0 {
		return nil, errors.New("unexpected call")
	}
	r := s.results[0]
	s.results = s.results[1:]
	return r.flights, r.err
}

func (s *scriptedSource) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}

type fakeTokens struct {
	mu       sync.Mutex
	token    string
	next     []string
	err      error
	acquires int
}

func (f *fakeTokens) Token() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token
}

func (f *fakeTokens) Acquire(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acquires++
	if f.err != nil {
		return "", f.err
	}
	f.token = f.next[0]
	f.next = f.next[1:]
	return f.token, nil
}

func authErr() error {
	return &upstream.Error{Provider: "fake", Op: "fetch", Kind: upstream.KindAuthExpired, Status: 401}
}

func liveRecord(id, origin, dest string, alt float64) models.FlightRecord {
	return models.FlightRecord{
		ID: id, ICAO24: id, FlightNumber: strings.ToUpper(id),
		Origin: origin, Destination: dest,
		Latitude: 20, Longitude: 78, Altitude: alt,
	}
}

func seededSim() *simulation.Generator {
	return simulation.New(simulation.WithRand(rand.New(rand.NewPCG(1, 2))))
}

func assertSimulated(t *testing.T, flights []models.FlightRecord) {
	t.Helper()
	require.Len(t, flights, simulation.DefaultCount)
	for _, f := range flights {
		assert.True(t, f.Simulated)
		assert.True(t, strings.HasPrefix(f.ID, models.SimulatedIDPrefix))
	}
}

// ---------------------------------------------------------------------------
// Token and retry policy
// ---------------------------------------------------------------------------

func TestFetchAcquiresTokenWhenNoneCached(t *testing.T) {
	src := &scriptedSource{needsToken: true, results: []sourceResult{
		{flights: []models.FlightRecord{liveRecord("a1", "DEL", "BOM", 30000)}},
	}}
	tokens := &fakeTokens{next: []string{"t1"}}

	f := NewFetcher(src, WithTokens(tokens), WithSimulator(seededSim()))
	flights := f.FetchActiveFlights(context.Background())

	require.Len(t, flights, 1)
	assert.Equal(t, 1, tokens.acquires)
	assert.Equal(t, []string{"t1"}, src.tokens)
	assert.True(t, src.ctxHasDL, "upstream call must carry a deadline")
}

func TestFetchAuthExpiredRefreshesAndRetriesOnce(t *testing.T) {
	src := &scriptedSource{needsToken: true, results: []sourceResult{
		{err: authErr()},
		{flights: []models.FlightRecord{liveRecord("a1", "DEL", "BOM", 30000)}},
	}}
	tokens := &fakeTokens{token: "stale", next: []string{"fresh"}}

	f := NewFetcher(src, WithTokens(tokens), WithSimulator(seededSim()))
	flights := f.FetchActiveFlights(context.Background())

	require.Len(t, flights, 1)
	assert.False(t, flights[0].Simulated)
	assert.Equal(t, 2, src.calls(), "exactly two upstream calls")
	assert.Equal(t, []string{"stale", "fresh"}, src.tokens)
	assert.Equal(t, "fresh", tokens.Token())
	assert.Equal(t, 1, tokens.acquires)
	assert.True(t, f.LastOutcome().Live)
}

func TestFetchSecondAuthFailureFallsBack(t *testing.T) {
	src := &scriptedSource{needsToken: true, results: []sourceResult{
		{err: authErr()},
		{err: authErr()},
	}}
	tokens := &fakeTokens{token: "stale", next: []string{"fresh"}}

	f := NewFetcher(src, WithTokens(tokens), WithSimulator(seededSim()))
	flights := f.FetchActiveFlights(context.Background())

	assertSimulated(t, flights)
	assert.Equal(t, 2, src.calls())
	assert.Equal(t, 1, tokens.acquires)

	out := f.LastOutcome()
	assert.False(t, out.Live)
	assert.Equal(t, "auth_expired", out.Failure)
	assert.Equal(t, "fake", out.Provider)
}

func TestFetchNoRetryOnOtherFailures(t *testing.T) {
	kinds := []upstream.Kind{
		upstream.KindRateLimited,
		upstream.KindQuotaExceeded,
		upstream.KindNetworkFailure,
		upstream.KindMalformedResponse,
		upstream.KindUnavailable,
	}
	for _, k := range kinds {
		t.Run(k.String(), func(t *testing.T) {
			src := &scriptedSource{needsToken: true, results: []sourceResult{
				{err: &upstream.Error{Provider: "fake", Op: "fetch", Kind: k}},
			}}
			tokens := &fakeTokens{token: "t"}

			f := NewFetcher(src, WithTokens(tokens), WithSimulator(seededSim()))
			assertSimulated(t, f.FetchActiveFlights(context.Background()))
			assert.Equal(t, 1, src.calls())
			assert.Zero(t, tokens.acquires)
			assert.Equal(t, k.String(), f.LastOutcome().Failure)
		})
	}
}

func TestFetchTokenAcquireFailureFallsBack(t *testing.T) {
	src := &scriptedSource{needsToken: true}
	tokens := &fakeTokens{err: &upstream.Error{Provider: "opensky", Op: "token", Kind: upstream.KindNetworkFailure}}

	f := NewFetcher(src, WithTokens(tokens), WithSimulator(seededSim()))
	assertSimulated(t, f.FetchActiveFlights(context.Background()))
	assert.Zero(t, src.calls())
	assert.Equal(t, "network_failure", f.LastOutcome().Failure)
}

func TestFetchWithoutTokensCallsAnonymously(t *testing.T) {
	src := &scriptedSource{needsToken: true, results: []sourceResult{
		{err: authErr()},
	}}

	f := NewFetcher(src, WithSimulator(seededSim()))
	assertSimulated(t, f.FetchActiveFlights(context.Background()))
	assert.Equal(t, []string{""}, src.tokens, "no refresh path without a credential manager")
}

func TestFetchUntypedErrorIsNetworkFailure(t *testing.T) {
	src := &scriptedSource{results: []sourceResult{{err: context.DeadlineExceeded}}}

	f := NewFetcher(src, WithSimulator(seededSim()))
	assertSimulated(t, f.FetchActiveFlights(context.Background()))
	assert.Equal(t, "network_failure", f.LastOutcome().Failure)
}

// ---------------------------------------------------------------------------
// Normalization, ranking and fallback
// ---------------------------------------------------------------------------

func TestFetchDropsInvalidPositions(t *testing.T) {
	bad := liveRecord("nan", "", "", 1000)
	bad.Latitude = math.NaN()
	outOfRange := liveRecord("oor", "", "", 1000)
	outOfRange.Longitude = 200

	src := &scriptedSource{results: []sourceResult{{flights: []models.FlightRecord{
		bad, outOfRange, liveRecord("ok", "", "", 1000),
	}}}}

	f := NewFetcher(src, WithSimulator(seededSim()))
	flights := f.FetchActiveFlights(context.Background())
	require.Len(t, flights, 1)
	assert.Equal(t, "ok", flights[0].ID)
	assert.Equal(t, models.UnknownAirport, flights[0].Origin)
	assert.Nil(t, flights[0].Priority)
}

func TestFetchAllRecordsInvalidFallsBack(t *testing.T) {
	bad := liveRecord("nan", "", "", 1000)
	bad.Longitude = math.Inf(1)
	src := &scriptedSource{results: []sourceResult{{flights: []models.FlightRecord{bad}}}}

	f := NewFetcher(src, WithSimulator(seededSim()))
	assertSimulated(t, f.FetchActiveFlights(context.Background()))
	assert.Equal(t, "no_usable_records", f.LastOutcome().Failure)
}

func TestFetchEmptyUpstreamFallsBack(t *testing.T) {
	src := &scriptedSource{results: []sourceResult{{flights: nil}}}

	f := NewFetcher(src, WithSimulator(seededSim()), WithSimulatedCount(10))
	flights := f.FetchActiveFlights(context.Background())
	assert.Len(t, flights, 10)
}

func TestFetchRanksAndTruncates(t *testing.T) {
	src := &scriptedSource{results: []sourceResult{{flights: []models.FlightRecord{
		liveRecord("low", "", "", 39000),
		liveRecord("busy", "BOM", "DEL", 20000),
		liveRecord("hub", "DEL", "PNQ", 25000),
	}}}}

	f := NewFetcher(src, WithSimulator(seededSim()), WithRanking(2))
	flights := f.FetchActiveFlights(context.Background())
	require.Len(t, flights, 2)
	assert.Equal(t, "busy", flights[0].ID)
	assert.Equal(t, "hub", flights[1].ID)
	require.NotNil(t, flights[0].Priority)
	assert.Equal(t, 3, *flights[0].Priority)
}

func TestFetchRecordsMetricsAndOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := metrics.NewCollector(reg)
	require.NoError(t, err)

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	src := &scriptedSource{results: []sourceResult{
		{err: &upstream.Error{Kind: upstream.KindRateLimited}},
	}}
	f := NewFetcher(src, WithSimulator(seededSim()), WithMetrics(m), WithClock(func() time.Time { return now }))
	f.FetchActiveFlights(context.Background())

	assert.Equal(t, 1.0, testutil.ToFloat64(m.FlightFallback.WithLabelValues("rate_limited")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UpstreamRequests.WithLabelValues("fake", "fetch", "rate_limited")))
	assert.Equal(t, now, f.LastOutcome().FetchedAt)
}

func TestLookupUsesLatestLiveFetch(t *testing.T) {
	src := &scriptedSource{results: []sourceResult{
		{flights: []models.FlightRecord{liveRecord("800abc", "DEL", "BOM", 30000)}},
		{err: &upstream.Error{Kind: upstream.KindUnavailable}},
	}}
	f := NewFetcher(src, WithSimulator(seededSim()))

	_, ok := f.Lookup(context.Background(), "800abc")
	assert.False(t, ok, "nothing fetched yet")
	assert.Equal(t, 0, src.calls())

	f.FetchActiveFlights(context.Background())
	require.Equal(t, 1, src.calls())
	outcome := f.LastOutcome()

	got, ok := f.Lookup(context.Background(), "800ABC")
	require.True(t, ok)
	assert.Equal(t, "800abc", got.ICAO24)

	_, ok = f.Lookup(context.Background(), "ffffff")
	assert.False(t, ok)

	_, ok = f.Lookup(context.Background(), "")
	assert.False(t, ok)

	assert.Equal(t, 1, src.calls(), "lookups never reach the upstream")
	assert.Equal(t, outcome, f.LastOutcome())
}

func TestLookupFindsNothingWhileSimulated(t *testing.T) {
	src := &scriptedSource{results: []sourceResult{
		{flights: []models.FlightRecord{liveRecord("800abc", "DEL", "BOM", 30000)}},
		{err: &upstream.Error{Kind: upstream.KindUnavailable}},
	}}
	f := NewFetcher(src, WithSimulator(seededSim()))

	f.FetchActiveFlights(context.Background())
	_, ok := f.Lookup(context.Background(), "800abc")
	require.True(t, ok)

	sim := f.FetchActiveFlights(context.Background())
	require.NotEmpty(t, sim)
	assert.True(t, sim[0].Simulated)

	_, ok = f.Lookup(context.Background(), "800abc")
	assert.False(t, ok)
	_, ok = f.Lookup(context.Background(), sim[0].ID)
	assert.False(t, ok, "simulated records are never tracked")
	assert.Equal(t, 2, src.calls())
}
