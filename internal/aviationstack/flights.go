package aviationstack

import (
	"context"
	"net/url"
	"strconv"
)

// Flight is one entry of the /flights endpoint. Only the fields needed for a
// live position are decoded.
type Flight struct {
	FlightStatus string `json:"flight_status"`
	Departure    struct {
		IATA string `json:"iata"`
	} `json:"departure"`
	Arrival struct {
		IATA string `json:"iata"`
	} `json:"arrival"`
	Airline struct {
		Name string `json:"name"`
		IATA string `json:"iata"`
		ICAO string `json:"icao"`
	} `json:"airline"`
	Flight struct {
		Number string `json:"number"`
		IATA   string `json:"iata"`
		ICAO   string `json:"icao"`
	} `json:"flight"`
	Aircraft *struct {
		ICAO24 string `json:"icao24"`
	} `json:"aircraft"`
	Live *Live `json:"live"`
}

// Live is the real-time block. Altitude is metres, horizontal speed km/h.
type Live struct {
	Updated         string   `json:"updated"`
	Latitude        *float64 `json:"latitude"`
	Longitude       *float64 `json:"longitude"`
	Altitude        *float64 `json:"altitude"`
	Direction       *float64 `json:"direction"`
	SpeedHorizontal *float64 `json:"speed_horizontal"`
	IsGround        bool     `json:"is_ground"`
}

// FlightQuery narrows a flights request.
type FlightQuery struct {
	Status string
	Limit  int
}

// Flights lists flights matching q.
func (c *Client) Flights(ctx context.Context, q FlightQuery) ([]Flight, error) {
	params := url.Values{}
	if q.Status != "" {
		params.Set("flight_status", q.Status)
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}

	var out []Flight
	if err := c.get(ctx, "flights", "flights", params, &out); err != nil {
		return nil, err
	}
	return out, nil
}
