package ingestion

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manaspathak2335-git/TripPilot/internal/upstream"
	"github.com/manaspathak2335-git/TripPilot/pkg/models"
)

// stateVector builds a 17-field OpenSky row.
func stateVector(icao, callsign string, lon, lat, baroAlt, velocity, track interface{}) []interface{} {
	return []interface{}{
		icao,       // 0  icao24
		callsign,   // 1  callsign
		"India",    // 2  origin_country
		1700000000, // 3  time_position
		1700000000, // 4  last_contact
		lon,        // 5  longitude
		lat,        // 6  latitude
		baroAlt,    // 7  baro_altitude
		false,      // 8  on_ground
		velocity,   // 9  velocity
		track,      // 10 true_track
		0.0,        // 11 vertical_rate
		nil,        // 12 sensors
		nil,        // 13 geo_altitude
		"1234",     // 14 squawk
		false,      // 15 spi
		0,          // 16 position_source
	}
}

// ---------------------------------------------------------------------------
// OpenSky Source Tests
// ---------------------------------------------------------------------------

func TestOpenSkyFetchConvertsUnits(t *testing.T) {
	payload := map[string]interface{}{
		"time": 1700000000,
		"states": [][]interface{}{
			stateVector("800ABC", "IGO202  ", 77.1, 28.5, 10000.0, 250.0, 180.0),
		},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/states/all", r.URL.Path)
		assert.Equal(t, "6", r.URL.Query().Get("lamin"))
		assert.Equal(t, "68", r.URL.Query().Get("lomin"))
		assert.Equal(t, "37", r.URL.Query().Get("lamax"))
		assert.Equal(t, "97", r.URL.Query().Get("lomax"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(payload)
	}))
	defer srv.Close()

	src := NewOpenSkySource(WithBaseURL(srv.URL))
	flights, err := src.Fetch(context.Background(), models.IndiaBounds, "tok")
	require.NoError(t, err)
	require.Len(t, flights, 1)

	f := flights[0]
	assert.Equal(t, "800abc", f.ICAO24)
	assert.Equal(t, "IGO202", f.FlightNumber)
	assert.Equal(t, "IndiGo", f.Airline)
	assert.InDelta(t, 28.5, f.Latitude, 1e-9)
	assert.InDelta(t, 77.1, f.Longitude, 1e-9)
	assert.InDelta(t, 32808.4, f.Altitude, 0.1)
	assert.InDelta(t, 485.96, f.Speed, 0.01)
	assert.InDelta(t, 180.0, f.Heading, 1e-9)
	assert.Empty(t, f.Origin)
}

func TestOpenSkyAnonymousRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"time":1,"states":null}`))
	}))
	defer srv.Close()

	flights, err := NewOpenSkySource(WithBaseURL(srv.URL)).Fetch(context.Background(), models.IndiaBounds, "")
	require.NoError(t, err)
	assert.Empty(t, flights)
}

func TestOpenSkySkipsNullPosition(t *testing.T) {
	payload := map[string]interface{}{
		"time": 1,
		"states": [][]interface{}{
			stateVector("a1", "AIC101", 77.0, nil, 9000.0, 200.0, 90.0),
			stateVector("a2", "AIC102", 77.0, 20.0, 9000.0, 200.0, 90.0),
			{"short"},
		},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(payload)
	}))
	defer srv.Close()

	flights, err := NewOpenSkySource(WithBaseURL(srv.URL)).Fetch(context.Background(), models.IndiaBounds, "")
	require.NoError(t, err)
	require.Len(t, flights, 1)
	assert.Equal(t, "a2", flights[0].ICAO24)
}

func TestOpenSkyStatusClassification(t *testing.T) {
	tests := []struct {
		status int
		want   upstream.Kind
	}{
		{http.StatusUnauthorized, upstream.KindAuthExpired},
		{http.StatusForbidden, upstream.KindAuthExpired},
		{http.StatusTooManyRequests, upstream.KindRateLimited},
		{http.StatusInternalServerError, upstream.KindUnavailable},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))
		_, err := NewOpenSkySource(WithBaseURL(srv.URL)).Fetch(context.Background(), models.IndiaBounds, "")
		srv.Close()
		assert.True(t, upstream.IsKind(err, tt.want), "status %d: %v", tt.status, err)
	}
}

func TestOpenSkyMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"states": "nope"`))
	}))
	defer srv.Close()

	_, err := NewOpenSkySource(WithBaseURL(srv.URL)).Fetch(context.Background(), models.IndiaBounds, "")
	assert.True(t, upstream.IsKind(err, upstream.KindMalformedResponse))
}

func TestAirlineFromCallsign(t *testing.T) {
	assert.Equal(t, "Air India", airlineFromCallsign("AIC405"))
	assert.Equal(t, "XYZ", airlineFromCallsign("XYZ12"))
	assert.Empty(t, airlineFromCallsign("VT"))
	assert.Empty(t, airlineFromCallsign("12345"))
}

// ---------------------------------------------------------------------------
// Normalization Tests
// ---------------------------------------------------------------------------

func TestNormalizeFillsSentinels(t *testing.T) {
	in := []models.FlightRecord{{Latitude: 20, Longitude: 78, Heading: -90}}
	out := normalize(in, "opensky")
	require.Len(t, out, 1)

	f := out[0]
	assert.Equal(t, "opensky_0", f.ID)
	assert.Equal(t, models.UnknownCallsign, f.FlightNumber)
	assert.Equal(t, models.UnknownAirline, f.Airline)
	assert.Equal(t, models.UnknownAirport, f.Origin)
	assert.Equal(t, models.UnknownAirport, f.Destination)
	assert.Equal(t, models.StatusInAir, f.Status)
	assert.Equal(t, "opensky", f.Source)
	assert.InDelta(t, 270.0, f.Heading, 1e-9)
	assert.False(t, f.Simulated)
}
