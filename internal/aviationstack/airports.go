package aviationstack

import (
	"context"
	"net/url"
	"strconv"
)

// Airport is one entry of the /airports endpoint. Coordinates arrive as
// strings on some plans and numbers on others.
type Airport struct {
	AirportName string    `json:"airport_name"`
	IATACode    string    `json:"iata_code"`
	ICAOCode    string    `json:"icao_code"`
	Latitude    FlexFloat `json:"latitude"`
	Longitude   FlexFloat `json:"longitude"`
	Timezone    string    `json:"timezone"`
	CountryName string    `json:"country_name"`
	CountryISO2 string    `json:"country_iso2"`
	CountryCode string    `json:"country_code"`
	CityIATA    string    `json:"city_iata_code"`
	CityName    string    `json:"city_name"`
	City        string    `json:"city"`
}

// AirportQuery narrows an airports request. Zero values are omitted.
type AirportQuery struct {
	CountryCode string
	Limit       int
}

// Airports lists airports matching q.
func (c *Client) Airports(ctx context.Context, q AirportQuery) ([]Airport, error) {
	params := url.Values{}
	if q.CountryCode != "" {
		params.Set("country_code", q.CountryCode)
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}

	var out []Airport
	if err := c.get(ctx, "airports", "airports", params, &out); err != nil {
		return nil, err
	}
	return out, nil
}
