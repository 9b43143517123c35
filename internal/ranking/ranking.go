// Package ranking orders flights by business priority: busy domestic routes
// first, then hub traffic, with altitude as the tie-break.
package ranking

import (
	"slices"

	"github.com/manaspathak2335-git/TripPilot/pkg/models"
)

// DefaultLimit is the result-set size after ranking.
const DefaultLimit = 50

const (
	ScoreBusyRoute = 3
	ScoreHubPair   = 2
	ScoreOneHub    = 1
	ScoreNone      = 0
)

type routeKey struct{ a, b string }

// key normalizes an unordered airport pair.
func key(x, y string) routeKey {
	if x > y {
		x, y = y, x
	}
	return routeKey{x, y}
}

var busyRoutes = map[routeKey]struct{}{
	key("DEL", "BOM"): {},
	key("DEL", "BLR"): {},
	key("BOM", "BLR"): {},
	key("DEL", "CCU"): {},
	key("DEL", "HYD"): {},
	key("BOM", "GOI"): {},
	key("MAA", "DEL"): {},
}

var majorHubs = map[string]struct{}{
	"DEL": {}, "BOM": {}, "BLR": {}, "HYD": {}, "MAA": {},
	"CCU": {}, "GOI": {}, "PNQ": {}, "AMD": {}, "COK": {},
}

// IsMajorHub reports whether code is in the curated hub set.
func IsMajorHub(code string) bool {
	_, ok := majorHubs[code]
	return ok
}

// IsBusyRoute reports whether the unordered pair is a curated busy route.
func IsBusyRoute(origin, destination string) bool {
	_, ok := busyRoutes[key(origin, destination)]
	return ok
}

// Score rates a route. Unknown endpoints never match a hub or busy route.
func Score(origin, destination string) int {
	switch {
	case IsBusyRoute(origin, destination):
		return ScoreBusyRoute
	case IsMajorHub(origin) && IsMajorHub(destination):
		return ScoreHubPair
	case IsMajorHub(origin) || IsMajorHub(destination):
		return ScoreOneHub
	default:
		return ScoreNone
	}
}

// Rank assigns a priority to every flight, sorts descending by
// (priority, altitude) and truncates to limit. limit <= 0 keeps everything.
// Equal keys keep their upstream order. The input slice is reordered in place.
func Rank(flights []models.FlightRecord, limit int) []models.FlightRecord {
	for i := range flights {
		p := ScoreNone
		if flights[i].HasRoute() {
			p = Score(flights[i].Origin, flights[i].Destination)
		}
		flights[i].Priority = &p
	}

	slices.SortStableFunc(flights, func(a, b models.FlightRecord) int {
		if *a.Priority != *b.Priority {
			return *b.Priority - *a.Priority
		}
		switch {
		case a.Altitude > b.Altitude:
			return -1
		case a.Altitude < b.Altitude:
			return 1
		default:
			return 0
		}
	})

	if limit > 0 && len(flights) > limit {
		flights = flights[:limit]
	}
	return flights
}
