package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/manaspathak2335-git/TripPilot/internal/upstream"
	"github.com/manaspathak2335-git/TripPilot/pkg/models"
)

// DefaultFR24URL is the crowd-sourced feed host.
const DefaultFR24URL = "https://data-cloud.flightradar24.com"

// Positional layout of a feed entry.
const (
	fr24ICAO24 = iota
	fr24Lat
	fr24Lon
	fr24Track
	fr24AltitudeFt
	fr24SpeedKt
	_ // squawk
	_ // radar
	_ // aircraft type
	_ // registration
	_ // timestamp
	fr24Origin
	fr24Destination
	fr24FlightNumber
	fr24OnGround
	_ // vertical speed
	fr24Callsign
	_ // glider flag
	fr24AirlineICAO
)

// fr24MetaKeys are top-level keys that are not flights.
var fr24MetaKeys = map[string]bool{
	"full_count": true,
	"version":    true,
	"stats":      true,
}

// FR24Source reads the feed.js endpoint, which keys flights by id and
// encodes each as a positional array. No authentication is needed.
type FR24Source struct {
	cfg sourceConfig
}

// NewFR24Source creates a feed source.
func NewFR24Source(opts ...SourceOption) *FR24Source {
	return &FR24Source{cfg: newSourceConfig(DefaultFR24URL, opts)}
}

// Name implements LiveFlightSource.
func (s *FR24Source) Name() string { return ProviderFR24 }

// NeedsToken implements LiveFlightSource.
func (s *FR24Source) NeedsToken() bool { return false }

// Fetch implements LiveFlightSource.
func (s *FR24Source) Fetch(ctx context.Context, bbox models.BoundingBox, _ string) ([]models.FlightRecord, error) {
	const op = "feed"

	q := url.Values{}
	// north,south,west,east
	q.Set("bounds", fmt.Sprintf("%s,%s,%s,%s",
		formatCoord(bbox.MaxLat), formatCoord(bbox.MinLat),
		formatCoord(bbox.MinLon), formatCoord(bbox.MaxLon)))
	q.Set("air", "1")
	q.Set("gnd", "0")
	q.Set("vehicles", "0")
	q.Set("gliders", "0")
	q.Set("stats", "0")
	reqURL := fmt.Sprintf("%s/zones/fcgi/feed.js?%s", s.cfg.baseURL, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &upstream.Error{Provider: ProviderFR24, Op: op, Kind: upstream.KindUnavailable, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; trippilot)")

	resp, err := s.cfg.httpClient.Do(req)
	if err != nil {
		return nil, upstream.TransportError(ProviderFR24, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, upstream.StatusError(ProviderFR24, op, resp.StatusCode, upstream.ReadErrorBody(resp.Body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, upstream.TransportError(ProviderFR24, op, err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, upstream.MalformedError(ProviderFR24, op, err)
	}
	return parseFeed(raw), nil
}

// parseFeed converts feed entries in key order so output is deterministic.
func parseFeed(raw map[string]json.RawMessage) []models.FlightRecord {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		if !fr24MetaKeys[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	flights := make([]models.FlightRecord, 0, len(keys))
	for _, id := range keys {
		var entry []interface{}
		if err := json.Unmarshal(raw[id], &entry); err != nil {
			continue
		}
		if len(entry) <= fr24FlightNumber {
			continue
		}
		lat, latOK := floatVal(entry[fr24Lat])
		lon, lonOK := floatVal(entry[fr24Lon])
		if !latOK || !lonOK {
			continue
		}
		if len(entry) > fr24OnGround {
			if g, ok := floatVal(entry[fr24OnGround]); ok && g != 0 {
				continue
			}
		}

		icao := strings.ToLower(stringVal(entry[fr24ICAO24]))
		number := stringVal(entry[fr24FlightNumber])
		var callsign, airlineICAO string
		if len(entry) > fr24Callsign {
			callsign = strings.TrimSpace(stringVal(entry[fr24Callsign]))
		}
		if len(entry) > fr24AirlineICAO {
			airlineICAO = stringVal(entry[fr24AirlineICAO])
		}
		if number == "" {
			number = callsign
		}
		airline := airlineName(airlineICAO)
		if airline == "" {
			airline = airlineFromCallsign(callsign)
		}

		f := models.FlightRecord{
			ID:           id,
			ICAO24:       icao,
			FlightNumber: number,
			Airline:      airline,
			Origin:       strings.ToUpper(stringVal(entry[fr24Origin])),
			Destination:  strings.ToUpper(stringVal(entry[fr24Destination])),
			Latitude:     lat,
			Longitude:    lon,
			Source:       ProviderFR24,
		}
		if v, ok := floatVal(entry[fr24Track]); ok {
			f.Heading = v
		}
		if v, ok := floatVal(entry[fr24AltitudeFt]); ok {
			f.Altitude = v
		}
		if v, ok := floatVal(entry[fr24SpeedKt]); ok {
			f.Speed = v
		}
		flights = append(flights, f)
	}
	return flights
}
