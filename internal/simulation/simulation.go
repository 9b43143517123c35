// Package simulation fabricates plausible regional flights for when no live
// data is available, so the map is never empty.
//
// Every record is an independent fabrication: IDs carry the "sim_" prefix
// and Simulated is set, so consumers can tell them apart from live data.
package simulation

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/manaspathak2335-git/TripPilot/pkg/models"
)

// DefaultCount is the number of flights generated per fallback.
const DefaultCount = 25

// SourceName tags simulated records.
const SourceName = "simulation"

const (
	centreLat   = 20.59
	centreLon   = 78.96
	maxOffset   = 8.0
	minAltitude = 15000
	maxAltitude = 38000
	minSpeed    = 250
	maxSpeed    = 480
)

// Route is one representative regional service.
type Route struct {
	Origin       string
	Destination  string
	FlightNumber string
	Airline      string
}

// DefaultRoutes is the sample table used for fabrication.
var DefaultRoutes = []Route{
	{"DEL", "BOM", "IGO202", "IndiGo"},
	{"BOM", "BLR", "AIC405", "Air India"},
	{"CCU", "DEL", "VTI707", "Vistara"},
	{"BLR", "GOI", "IGO55", "IndiGo"},
	{"HYD", "MAA", "SEJ332", "SpiceJet"},
}

// Generator produces synthetic flight records. It is safe for concurrent use.
type Generator struct {
	routes []Route

	mu  sync.Mutex
	rng *rand.Rand
}

// Option configures the Generator.
type Option func(*Generator)

// WithRand sets the random source (tests use a fixed seed).
func WithRand(r *rand.Rand) Option {
	return func(g *Generator) { g.rng = r }
}

// WithRoutes replaces the route table.
func WithRoutes(routes []Route) Option {
	return func(g *Generator) { g.routes = routes }
}

// New creates a generator seeded from the clock.
func New(opts ...Option) *Generator {
	seed := uint64(time.Now().UnixNano())
	g := &Generator{
		routes: DefaultRoutes,
		rng:    rand.New(rand.NewPCG(seed, seed>>1)),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate returns count fabricated flights. count <= 0 yields DefaultCount.
func (g *Generator) Generate(count int) []models.FlightRecord {
	if count <= 0 {
		count = DefaultCount
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	flights := make([]models.FlightRecord, 0, count)
	for i := 0; i < count; i++ {
		r := g.routes[g.rng.IntN(len(g.routes))]
		flights = append(flights, models.FlightRecord{
			ID:           fmt.Sprintf("%s%d", models.SimulatedIDPrefix, i),
			FlightNumber: r.FlightNumber,
			Airline:      r.Airline,
			Origin:       r.Origin,
			Destination:  r.Destination,
			Latitude:     centreLat + g.uniform(-maxOffset, maxOffset),
			Longitude:    centreLon + g.uniform(-maxOffset, maxOffset),
			Heading:      float64(g.rng.IntN(361)),
			Altitude:     float64(minAltitude + g.rng.IntN(maxAltitude-minAltitude+1)),
			Speed:        float64(minSpeed + g.rng.IntN(maxSpeed-minSpeed+1)),
			Status:       models.StatusInAir,
			Simulated:    true,
			Source:       SourceName,
		})
	}
	return flights
}

func (g *Generator) uniform(lo, hi float64) float64 {
	return lo + g.rng.Float64()*(hi-lo)
}
