package ingestion

import (
	"context"
	"strings"

	"github.com/manaspathak2335-git/TripPilot/internal/aviationstack"
	"github.com/manaspathak2335-git/TripPilot/pkg/models"
)

const aviationStackPageSize = 100

// FlightLister is the slice of the aviationstack client used here.
type FlightLister interface {
	Flights(ctx context.Context, q aviationstack.FlightQuery) ([]aviationstack.Flight, error)
}

// AviationStackSource reads attribute-object flight records and keeps those
// with a live position inside the box.
type AviationStackSource struct {
	client FlightLister
}

// NewAviationStackSource wraps an aviationstack client.
func NewAviationStackSource(client FlightLister) *AviationStackSource {
	return &AviationStackSource{client: client}
}

// Name implements LiveFlightSource.
func (s *AviationStackSource) Name() string { return ProviderAviationStack }

// NeedsToken implements LiveFlightSource. The access key travels with the client.
func (s *AviationStackSource) NeedsToken() bool { return false }

// Fetch implements LiveFlightSource.
func (s *AviationStackSource) Fetch(ctx context.Context, bbox models.BoundingBox, _ string) ([]models.FlightRecord, error) {
	raw, err := s.client.Flights(ctx, aviationstack.FlightQuery{Status: "active", Limit: aviationStackPageSize})
	if err != nil {
		return nil, err
	}

	flights := make([]models.FlightRecord, 0, len(raw))
	for _, r := range raw {
		live := r.Live
		if live == nil || live.Latitude == nil || live.Longitude == nil || live.IsGround {
			continue
		}
		if !bbox.Contains(*live.Latitude, *live.Longitude) {
			continue
		}

		number := r.Flight.IATA
		if number == "" {
			number = r.Flight.ICAO
		}
		var icao string
		if r.Aircraft != nil {
			icao = strings.ToLower(r.Aircraft.ICAO24)
		}
		airline := r.Airline.Name
		if airline == "" {
			airline = airlineName(r.Airline.ICAO)
		}

		f := models.FlightRecord{
			ICAO24:       icao,
			FlightNumber: number,
			Airline:      airline,
			Origin:       strings.ToUpper(r.Departure.IATA),
			Destination:  strings.ToUpper(r.Arrival.IATA),
			Latitude:     *live.Latitude,
			Longitude:    *live.Longitude,
			Source:       ProviderAviationStack,
		}
		if icao != "" {
			f.ID = icao
		} else if number != "" {
			f.ID = strings.ToLower(number)
		}
		if live.Altitude != nil {
			f.Altitude = *live.Altitude * metresToFeet
		}
		if live.SpeedHorizontal != nil {
			f.Speed = *live.SpeedHorizontal * kmhToKnots
		}
		if live.Direction != nil {
			f.Heading = *live.Direction
		}
		flights = append(flights, f)
	}
	return flights, nil
}
