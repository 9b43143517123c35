package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/manaspathak2335-git/TripPilot/internal/upstream"
	"github.com/manaspathak2335-git/TripPilot/pkg/models"
)

const (
	// DefaultOpenSkyURL is the public OpenSky REST root.
	DefaultOpenSkyURL = "https://opensky-network.org/api"

	defaultSourceTimeout = 10 * time.Second
)

// SourceOption configures a source's HTTP plumbing.
type SourceOption func(*sourceConfig)

type sourceConfig struct {
	baseURL    string
	httpClient *http.Client
}

// WithBaseURL overrides the provider endpoint (useful for testing).
func WithBaseURL(u string) SourceOption {
	return func(c *sourceConfig) { c.baseURL = u }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) SourceOption {
	return func(c *sourceConfig) { c.httpClient = hc }
}

func newSourceConfig(defaultURL string, opts []SourceOption) sourceConfig {
	c := sourceConfig{
		baseURL:    defaultURL,
		httpClient: upstream.NewHTTPClient(defaultSourceTimeout),
	}
	for _, opt := range opts {
		opt(&c)
	}
	c.baseURL = strings.TrimRight(c.baseURL, "/")
	return c
}

// OpenSkySource reads tabular state vectors from /states/all.
type OpenSkySource struct {
	cfg sourceConfig
}

// NewOpenSkySource creates an OpenSky source.
func NewOpenSkySource(opts ...SourceOption) *OpenSkySource {
	return &OpenSkySource{cfg: newSourceConfig(DefaultOpenSkyURL, opts)}
}

// Name implements LiveFlightSource.
func (s *OpenSkySource) Name() string { return ProviderOpenSky }

// NeedsToken implements LiveFlightSource.
func (s *OpenSkySource) NeedsToken() bool { return true }

// openSkyResponse mirrors the JSON shape returned by /states/all.
// States is null when nothing is airborne in the box.
type openSkyResponse struct {
	Time   int64           `json:"time"`
	States [][]interface{} `json:"states"`
}

// Fetch implements LiveFlightSource. An empty token sends an anonymous request.
func (s *OpenSkySource) Fetch(ctx context.Context, bbox models.BoundingBox, token string) ([]models.FlightRecord, error) {
	const op = "states"

	q := url.Values{}
	q.Set("lamin", formatCoord(bbox.MinLat))
	q.Set("lomin", formatCoord(bbox.MinLon))
	q.Set("lamax", formatCoord(bbox.MaxLat))
	q.Set("lomax", formatCoord(bbox.MaxLon))
	reqURL := fmt.Sprintf("%s/states/all?%s", s.cfg.baseURL, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &upstream.Error{Provider: ProviderOpenSky, Op: op, Kind: upstream.KindUnavailable, Err: err}
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.cfg.httpClient.Do(req)
	if err != nil {
		return nil, upstream.TransportError(ProviderOpenSky, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, upstream.StatusError(ProviderOpenSky, op, resp.StatusCode, upstream.ReadErrorBody(resp.Body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, upstream.TransportError(ProviderOpenSky, op, err)
	}

	var raw openSkyResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, upstream.MalformedError(ProviderOpenSky, op, err)
	}

	return parseStates(raw), nil
}

// parseStates converts state vectors. Index layout:
// 0 icao24, 1 callsign, 5 lon, 6 lat, 7 baro alt (m), 8 on ground,
// 9 velocity (m/s), 10 true track, 13 geo alt (m).
func parseStates(raw openSkyResponse) []models.FlightRecord {
	flights := make([]models.FlightRecord, 0, len(raw.States))
	for _, s := range raw.States {
		if len(s) < 14 {
			continue
		}
		lat, latOK := floatVal(s[6])
		lon, lonOK := floatVal(s[5])
		if !latOK || !lonOK {
			continue
		}
		if boolVal(s[8]) {
			continue
		}

		icao := strings.ToLower(strings.TrimSpace(stringVal(s[0])))
		callsign := strings.TrimSpace(stringVal(s[1]))

		f := models.FlightRecord{
			ID:           icao,
			ICAO24:       icao,
			FlightNumber: callsign,
			Airline:      airlineFromCallsign(callsign),
			Latitude:     lat,
			Longitude:    lon,
			Source:       ProviderOpenSky,
		}
		if alt, ok := floatVal(s[7]); ok {
			f.Altitude = alt * metresToFeet
		} else if alt, ok := floatVal(s[13]); ok {
			f.Altitude = alt * metresToFeet
		}
		if v, ok := floatVal(s[9]); ok {
			f.Speed = v * msToKnots
		}
		if v, ok := floatVal(s[10]); ok {
			f.Heading = v
		}
		flights = append(flights, f)
	}
	return flights
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func stringVal(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func boolVal(v interface{}) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	return false
}

func floatVal(v interface{}) (float64, bool) {
	f, ok := v.(float64)
	return f, ok
}
