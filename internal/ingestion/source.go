// Package ingestion fetches live aircraft positions from a configured
// provider, normalizes them into models.FlightRecord, and falls back to
// simulated traffic whenever the live path yields nothing.
package ingestion

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/manaspathak2335-git/TripPilot/pkg/models"
)

const (
	metresToFeet = 3.28084
	msToKnots    = 1.943844
	kmhToKnots   = 1 / 1.852
)

// Provider names accepted by NewSource.
const (
	ProviderOpenSky       = "opensky"
	ProviderFR24          = "fr24"
	ProviderAviationStack = "aviationstack"
)

// LiveFlightSource is one upstream position provider.
//
// Fetch returns records already converted to canonical units. It returns an
// *upstream.Error on failure so the caller can decide on refresh or fallback.
type LiveFlightSource interface {
	Name() string
	NeedsToken() bool
	Fetch(ctx context.Context, bbox models.BoundingBox, token string) ([]models.FlightRecord, error)
}

// Providers lists the accepted provider names.
func Providers() []string {
	return []string{ProviderOpenSky, ProviderFR24, ProviderAviationStack}
}

// ValidProvider reports whether name selects a known source.
func ValidProvider(name string) bool {
	for _, p := range Providers() {
		if p == name {
			return true
		}
	}
	return false
}

// airlineNames maps ICAO operator designators seen over India to display names.
var airlineNames = map[string]string{
	"IGO": "IndiGo",
	"AIC": "Air India",
	"AXB": "Air India Express",
	"VTI": "Vistara",
	"SEJ": "SpiceJet",
	"AKJ": "Akasa Air",
	"IAD": "AirAsia India",
	"GOW": "Go First",
	"LLR": "Alliance Air",
	"BDA": "Blue Dart Aviation",
	"UAE": "Emirates",
	"QTR": "Qatar Airways",
	"ETD": "Etihad Airways",
	"SIA": "Singapore Airlines",
	"THA": "Thai Airways",
	"BAW": "British Airways",
	"DLH": "Lufthansa",
	"FDB": "flydubai",
	"ABY": "Air Arabia",
	"SVA": "Saudia",
}

// airlineFromCallsign derives an operator from the ICAO prefix of a callsign.
// Unknown designators are returned as-is so the UI still shows something.
func airlineFromCallsign(callsign string) string {
	if len(callsign) < 3 {
		return ""
	}
	prefix := strings.ToUpper(callsign[:3])
	for _, r := range prefix {
		if r < 'A' || r > 'Z' {
			return ""
		}
	}
	return airlineName(prefix)
}

func airlineName(icao string) string {
	if icao == "" {
		return ""
	}
	if name, ok := airlineNames[strings.ToUpper(icao)]; ok {
		return name
	}
	return strings.ToUpper(icao)
}

func validCoordinate(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

func finiteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func normalizeHeading(h float64) float64 {
	h = finiteOrZero(h)
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	return h
}

// normalize drops records without a usable position and fills sentinels.
// It reuses the backing array of in.
func normalize(in []models.FlightRecord, source string) []models.FlightRecord {
	out := in[:0]
	for i, r := range in {
		if !validCoordinate(r.Latitude, r.Longitude) {
			continue
		}
		r.FlightNumber = strings.TrimSpace(r.FlightNumber)
		if r.FlightNumber == "" {
			r.FlightNumber = models.UnknownCallsign
		}
		if r.Airline == "" {
			r.Airline = models.UnknownAirline
		}
		if r.Origin == "" {
			r.Origin = models.UnknownAirport
		}
		if r.Destination == "" {
			r.Destination = models.UnknownAirport
		}
		if r.ID == "" {
			if r.ICAO24 != "" {
				r.ID = r.ICAO24
			} else {
				r.ID = fmt.Sprintf("%s_%d", source, i)
			}
		}
		r.Heading = normalizeHeading(r.Heading)
		r.Altitude = math.Max(finiteOrZero(r.Altitude), 0)
		r.Speed = math.Max(finiteOrZero(r.Speed), 0)
		r.Status = models.StatusInAir
		r.Simulated = false
		r.Priority = nil
		if r.Source == "" {
			r.Source = source
		}
		out = append(out, r)
	}
	return out
}
