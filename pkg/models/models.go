package models

import "time"

const (
	// StatusInAir is the only status emitted; ground state is not modelled.
	StatusInAir = "In Air"

	UnknownAirport  = "N/A"
	UnknownCallsign = "Unknown"
	UnknownAirline  = "Unknown Airline"

	// SimulatedIDPrefix marks identifiers produced by the simulation generator.
	SimulatedIDPrefix = "sim_"
)

// FlightRecord is a normalized live-position snapshot (response DTO).
//
// Units are canonical across providers: altitude in feet, speed in knots,
// heading in degrees clockwise from true north.
type FlightRecord struct {
	ID           string  `json:"id"`
	ICAO24       string  `json:"icao24,omitempty"`
	FlightNumber string  `json:"flightNumber"`
	Airline      string  `json:"airline"`
	Origin       string  `json:"origin"`
	Destination  string  `json:"destination"`
	Latitude     float64 `json:"lat"`
	Longitude    float64 `json:"lon"`
	Heading      float64 `json:"heading"`
	Altitude     float64 `json:"altitude"`
	Speed        float64 `json:"speed"`
	Status       string  `json:"status"`
	Priority     *int    `json:"priority,omitempty"`
	Simulated    bool    `json:"simulated"`
	Source       string  `json:"source,omitempty"`
}

// HasRoute reports whether both endpoints are known.
func (f *FlightRecord) HasRoute() bool {
	return f.Origin != "" && f.Origin != UnknownAirport &&
		f.Destination != "" && f.Destination != UnknownAirport
}

// AirportRecord is a static regional airport entry.
type AirportRecord struct {
	Code      string  `json:"code"`
	Name      string  `json:"name"`
	City      string  `json:"city"`
	Country   string  `json:"country"`
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
	Timezone  string  `json:"timezone"`
}

// BoundingBox is a rectangular lat/lon region used to scope live queries.
type BoundingBox struct {
	MinLat float64 `json:"min_lat" yaml:"min_lat"`
	MaxLat float64 `json:"max_lat" yaml:"max_lat"`
	MinLon float64 `json:"min_lon" yaml:"min_lon"`
	MaxLon float64 `json:"max_lon" yaml:"max_lon"`
}

// IndiaBounds covers the Indian subcontinent.
var IndiaBounds = BoundingBox{MinLat: 6, MaxLat: 37, MinLon: 68, MaxLon: 97}

// Contains reports whether the point lies inside the box (edges inclusive).
func (b BoundingBox) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

// FetchOutcome summarises the most recent live-flight fetch.
type FetchOutcome struct {
	Provider  string    `json:"provider"`
	Live      bool      `json:"live"`
	Count     int       `json:"count"`
	Failure   string    `json:"failure,omitempty"`
	FetchedAt time.Time `json:"fetched_at"`
}
