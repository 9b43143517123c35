package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manaspathak2335-git/TripPilot/internal/airports"
	"github.com/manaspathak2335-git/TripPilot/internal/assistant"
	"github.com/manaspathak2335-git/TripPilot/internal/metrics"
	"github.com/manaspathak2335-git/TripPilot/pkg/models"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeFlights struct {
	flights []models.FlightRecord
	panics  bool
}

func (f *fakeFlights) FetchActiveFlights(context.Context) []models.FlightRecord {
	if f.panics {
		panic("boom")
	}
	return f.flights
}

func (f *fakeFlights) Lookup(_ context.Context, icao24 string) (models.FlightRecord, bool) {
	for _, r := range f.flights {
		if r.ICAO24 == strings.ToLower(icao24) {
			return r, true
		}
	}
	return models.FlightRecord{}, false
}

func (f *fakeFlights) LastOutcome() models.FetchOutcome {
	return models.FetchOutcome{Provider: "opensky", Live: true, Count: len(f.flights)}
}

type fakeAirports struct {
	list []models.AirportRecord
}

func (f *fakeAirports) Airports(context.Context) []models.AirportRecord { return f.list }
func (f *fakeAirports) State() airports.State {
	return airports.State{Status: airports.StateFresh, Count: len(f.list)}
}

type fakeAssistant struct {
	mu       sync.Mutex
	message  string
	context  string
	analyzed []string
}

func (f *fakeAssistant) Chat(_ context.Context, message, chatContext string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.message, f.context = message, chatContext
	return "Roger that."
}

func (f *fakeAssistant) AnalyzeFlight(_ context.Context, r models.FlightRecord) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.analyzed = append(f.analyzed, r.ID)
	return "**Analysis:** cruising."
}

func (f *fakeAssistant) Online() bool { return true }

type fixture struct {
	srv       *Server
	flights   *fakeFlights
	airports  *fakeAirports
	assistant *fakeAssistant
	metrics   *metrics.Collector
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	m, err := metrics.NewCollector(prometheus.NewRegistry())
	require.NoError(t, err)
	opts.Metrics = m

	fx := &fixture{
		flights: &fakeFlights{flights: []models.FlightRecord{{
			ID: "800abc", ICAO24: "800abc", FlightNumber: "IGO202", Airline: "IndiGo",
			Origin: "DEL", Destination: "BOM", Latitude: 24, Longitude: 76,
			Heading: 200, Altitude: 35000, Speed: 460, Status: models.StatusInAir,
		}}},
		airports:  &fakeAirports{},
		assistant: &fakeAssistant{},
		metrics:   m,
	}
	fx.srv = New(fx.flights, fx.airports, fx.assistant, opts)
	return fx
}

func (fx *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	fx.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

// ---------------------------------------------------------------------------
// API
// ---------------------------------------------------------------------------

func TestActiveFlights(t *testing.T) {
	fx := newFixture(t, Options{})
	rec := fx.do(http.MethodGet, "/api/flights/active", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body struct {
		Flights []models.FlightRecord `json:"flights"`
	}
	decode(t, rec, &body)
	require.Len(t, body.Flights, 1)
	assert.Equal(t, "IGO202", body.Flights[0].FlightNumber)
	assert.Contains(t, rec.Body.String(), `"flightNumber":"IGO202"`)
	assert.Contains(t, rec.Body.String(), `"lat":24`)
}

func TestAirportsEmptyListIsArray(t *testing.T) {
	fx := newFixture(t, Options{})
	rec := fx.do(http.MethodGet, "/api/airports", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"airports":[]}`, rec.Body.String())
}

func TestAirportsList(t *testing.T) {
	fx := newFixture(t, Options{})
	fx.airports.list = []models.AirportRecord{{Code: "DEL", Name: "Indira Gandhi International", Latitude: 28.56, Longitude: 77.1}}
	rec := fx.do(http.MethodGet, "/api/airports", "")

	assert.Contains(t, rec.Body.String(), `"lng":77.1`)
	assert.Contains(t, rec.Body.String(), `"code":"DEL"`)
}

func TestTrackFlightLive(t *testing.T) {
	fx := newFixture(t, Options{})
	rec := fx.do(http.MethodPost, "/api/track-flight", `{"icao24":"800ABC"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var body trackFlightResponse
	decode(t, rec, &body)
	assert.True(t, body.FlightInfo.Live)
	assert.InDelta(t, 35000.0, body.FlightInfo.Altitude, 1e-9)
	assert.InDelta(t, 460.0, body.FlightInfo.Velocity, 1e-9)
	assert.Equal(t, "IGO202", body.FlightInfo.FlightNumber)
	assert.Equal(t, "**Analysis:** cruising.", body.AIAnalysis)
	assert.Equal(t, []string{"800abc"}, fx.assistant.analyzed)
}

func TestTrackFlightUnknownReturnsCannedSnapshot(t *testing.T) {
	fx := newFixture(t, Options{})
	rec := fx.do(http.MethodPost, "/api/track-flight", `{"icao24":"ffffff"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.JSONEq(t, `{
		"flight_info": {"live": true, "altitude": 32000, "velocity": 450},
		"ai_analysis": "`+assistant.ReplyAnalysis+`"
	}`, rec.Body.String())
	assert.Empty(t, fx.assistant.analyzed)
}

func TestTrackFlightBadRequests(t *testing.T) {
	fx := newFixture(t, Options{Burst: 10})
	for _, body := range []string{`{"icao24":`, `{}`, `{"icao24":"  "}`} {
		rec := fx.do(http.MethodPost, "/api/track-flight", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestChat(t *testing.T) {
	fx := newFixture(t, Options{})
	rec := fx.do(http.MethodPost, "/api/chat", `{"message":"Where is IGO202?","context":"Origin DEL"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.JSONEq(t, `{"response":"Roger that."}`, rec.Body.String())
	assert.Equal(t, "Where is IGO202?", fx.assistant.message)
	assert.Equal(t, "Origin DEL", fx.assistant.context)
}

func TestChatBadRequests(t *testing.T) {
	fx := newFixture(t, Options{Burst: 10})
	tests := map[string]string{
		"malformed":     `{"message": nope}`,
		"empty body":    ``,
		"empty message": `{"message":"   "}`,
		"missing":       `{"context":"x"}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
			rec := httptest.NewRecorder()
			fx.srv.Handler().ServeHTTP(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}
}

func TestMethodNotAllowed(t *testing.T) {
	fx := newFixture(t, Options{})
	rec := fx.do(http.MethodGet, "/api/chat", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestStatus(t *testing.T) {
	fx := newFixture(t, Options{Version: "1.2.3"})
	rec := fx.do(http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body statusResponse
	decode(t, rec, &body)
	assert.Equal(t, "opensky", body.Flights.Provider)
	assert.Equal(t, airports.StateFresh, body.Airports.Status)
	assert.True(t, body.Assistant.Online)
	assert.Equal(t, "1.2.3", body.Version)
}

// ---------------------------------------------------------------------------
// Middleware
// ---------------------------------------------------------------------------

func TestCORSPreflight(t *testing.T) {
	fx := newFixture(t, Options{})
	req := httptest.NewRequest(http.MethodOptions, "/api/chat", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "content-type")
	rec := httptest.NewRecorder()
	fx.srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
	assert.Equal(t, "content-type", rec.Header().Get("Access-Control-Allow-Headers"))
}

func TestCORSHeadersOnResponses(t *testing.T) {
	fx := newFixture(t, Options{})
	rec := fx.do(http.MethodGet, "/api/flights/active", "")
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestID(t *testing.T) {
	fx := newFixture(t, Options{})

	rec := fx.do(http.MethodGet, "/live", "")
	assert.Len(t, rec.Header().Get(RequestIDHeader), 36)

	req := httptest.NewRequest(http.MethodGet, "/live", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	fx.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
}

func TestPanicRecovery(t *testing.T) {
	fx := newFixture(t, Options{})
	fx.flights.panics = true

	rec := fx.do(http.MethodGet, "/api/flights/active", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	fx.flights.panics = false
	rec = fx.do(http.MethodGet, "/api/flights/active", "")
	assert.Equal(t, http.StatusOK, rec.Code, "server keeps serving after a panic")
}

func TestRateLimitOnAssistantRoutes(t *testing.T) {
	fx := newFixture(t, Options{RateLimit: 0.001, Burst: 2})

	codes := make([]int, 0, 3)
	for range 3 {
		codes = append(codes, fx.do(http.MethodPost, "/api/chat", `{"message":"hi"}`).Code)
	}
	assert.Equal(t, []int{200, 200, 429}, codes)

	// Unlimited routes are unaffected.
	for range 5 {
		assert.Equal(t, http.StatusOK, fx.do(http.MethodGet, "/api/flights/active", "").Code)
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := newRateLimiter(1, 1)
	rl.getLimiter("10.0.0.1")
	rl.getLimiter("10.0.0.2")
	assert.Equal(t, 2, rl.size())

	rl.cleanup(time.Hour)
	assert.Equal(t, 2, rl.size())
	rl.cleanup(-time.Second)
	assert.Equal(t, 0, rl.size())
}

func TestRequestMetrics(t *testing.T) {
	fx := newFixture(t, Options{})
	fx.do(http.MethodGet, "/api/airports", "")
	fx.do(http.MethodGet, "/nope", "")

	assert.Equal(t, 1.0, testutil.ToFloat64(fx.metrics.HTTPRequests.WithLabelValues("GET /api/airports", "GET", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(fx.metrics.HTTPRequests.WithLabelValues("unmatched", "GET", "404")))

	rec := fx.do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "trippilot_http_requests_total")
}

// ---------------------------------------------------------------------------
// Health and lifecycle
// ---------------------------------------------------------------------------

func TestHealthAndReadiness(t *testing.T) {
	fx := newFixture(t, Options{})

	assert.Equal(t, http.StatusServiceUnavailable, fx.do(http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, fx.do(http.MethodGet, "/ready", "").Code)
	assert.Equal(t, http.StatusOK, fx.do(http.MethodGet, "/live", "").Code)

	fx.srv.SetReady(true)
	rec := fx.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)
	assert.Equal(t, http.StatusOK, fx.do(http.MethodGet, "/ready", "").Code)
}

func TestServeShutsDownOnCancel(t *testing.T) {
	fx := newFixture(t, Options{})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- fx.srv.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/live")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
