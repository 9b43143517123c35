// Package airports keeps a time-boxed copy of the regional airport list.
//
// Reads never fail. A fresh slot is served without network access; an
// expired or empty slot triggers one refresh, and any refresh failure serves
// whatever was cached before, however old.
package airports

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/manaspathak2335-git/TripPilot/internal/aviationstack"
	"github.com/manaspathak2335-git/TripPilot/internal/logging"
	"github.com/manaspathak2335-git/TripPilot/internal/metrics"
	"github.com/manaspathak2335-git/TripPilot/internal/upstream"
	"github.com/manaspathak2335-git/TripPilot/pkg/models"
)

const (
	// DefaultTTL is how long a populated slot stays fresh.
	DefaultTTL = 2400 * time.Second

	DefaultCountryCode = "IN"
	DefaultCountryName = "India"

	primaryLimit   = 100
	secondaryLimit = 1000

	defaultFetchTimeout = 10 * time.Second
)

// Defaults for missing vendor fields.
const (
	defaultName     = "Unknown Airport"
	defaultCity     = "Unknown City"
	defaultTimezone = "Asia/Kolkata"
)

// Cache results reported to metrics.
const (
	resultFresh   = "fresh"
	resultRefresh = "refresh"
	resultStale   = "stale"
	resultEmpty   = "empty"
)

// VendorClient fetches raw airport rows.
type VendorClient interface {
	Airports(ctx context.Context, q aviationstack.AirportQuery) ([]aviationstack.Airport, error)
}

// Option configures the Cache.
type Option func(*Cache)

// WithTTL sets the freshness window.
func WithTTL(d time.Duration) Option {
	return func(c *Cache) { c.ttl = d }
}

// WithCountry sets the country filter.
func WithCountry(code, name string) Option {
	return func(c *Cache) {
		c.countryCode = code
		c.countryName = name
	}
}

// WithFetchTimeout bounds each vendor call.
func WithFetchTimeout(d time.Duration) Option {
	return func(c *Cache) { c.fetchTimeout = d }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Cache) { c.metrics = m }
}

// Cache holds a single slot of airport records.
type Cache struct {
	client       VendorClient
	ttl          time.Duration
	countryCode  string
	countryName  string
	fetchTimeout time.Duration
	now          func() time.Time
	logger       *slog.Logger
	metrics      *metrics.Collector

	group singleflight.Group

	mu        sync.RWMutex
	records   []models.AirportRecord
	fetchedAt time.Time
}

// NewCache creates an empty cache over client.
func NewCache(client VendorClient, opts ...Option) *Cache {
	c := &Cache{
		client:       client,
		ttl:          DefaultTTL,
		countryCode:  DefaultCountryCode,
		countryName:  DefaultCountryName,
		fetchTimeout: defaultFetchTimeout,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.Default(c.logger).With("component", "airports")
	return c
}

// Airports returns the cached list, refreshing it first when expired.
// The result may be empty but never nil.
func (c *Cache) Airports(ctx context.Context) []models.AirportRecord {
	if recs, ok := c.fresh(); ok {
		c.metrics.AirportLookup(resultFresh)
		return recs
	}

	// Refreshes run detached from the caller so one cancelled request does
	// not fail the others sharing the flight.
	v, _, _ := c.group.Do("refresh", func() (interface{}, error) {
		if recs, ok := c.fresh(); ok {
			return recs, nil
		}
		return c.refresh(context.WithoutCancel(ctx)), nil
	})
	return v.([]models.AirportRecord)
}

// Refresh forces a refresh regardless of age. Used by the warm-up job.
func (c *Cache) Refresh(ctx context.Context) []models.AirportRecord {
	v, _, _ := c.group.Do("refresh", func() (interface{}, error) {
		return c.refresh(ctx), nil
	})
	return v.([]models.AirportRecord)
}

func (c *Cache) fresh() ([]models.AirportRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.fetchedAt.IsZero() || c.now().Sub(c.fetchedAt) >= c.ttl {
		return nil, false
	}
	return c.records, true
}

// snapshot returns the current slot contents regardless of age.
func (c *Cache) snapshot() []models.AirportRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.records == nil {
		return []models.AirportRecord{}
	}
	return c.records
}

func (c *Cache) refresh(ctx context.Context) []models.AirportRecord {
	recs, err := c.load(ctx)
	if err != nil {
		prev := c.snapshot()
		result := resultStale
		if len(prev) == 0 {
			result = resultEmpty
		}
		c.logger.Warn("airport refresh failed, serving cached list",
			"error", err, "cached", len(prev))
		c.metrics.AirportLookup(result)
		return prev
	}

	if len(recs) == 0 {
		prev := c.snapshot()
		c.logger.Warn("no usable airports after filtering", "country", c.countryCode, "cached", len(prev))
		c.metrics.AirportLookup(resultEmpty)
		return prev
	}

	c.mu.Lock()
	c.records = recs
	c.fetchedAt = c.now()
	c.mu.Unlock()

	c.logger.Info("airport list refreshed", "count", len(recs))
	c.metrics.AirportLookup(resultRefresh)
	return recs
}

// load runs the primary filtered query, then a wide unfiltered query when
// no primary row matches the country. Rows that match but are unusable do
// not trigger the second query. Errors at either step abort the refresh.
func (c *Cache) load(ctx context.Context) ([]models.AirportRecord, error) {
	rows, err := c.fetch(ctx, aviationstack.AirportQuery{CountryCode: c.countryCode, Limit: primaryLimit})
	if err != nil {
		return nil, err
	}
	if slices.ContainsFunc(rows, c.matchesCountry) {
		return c.convert(rows), nil
	}

	c.logger.Info("primary airport query matched nothing, trying unfiltered query")
	rows, err = c.fetch(ctx, aviationstack.AirportQuery{Limit: secondaryLimit})
	if err != nil {
		return nil, err
	}
	return c.convert(rows), nil
}

func (c *Cache) fetch(ctx context.Context, q aviationstack.AirportQuery) ([]aviationstack.Airport, error) {
	ctx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()
	rows, err := c.client.Airports(ctx, q)
	if err != nil {
		if _, ok := upstream.KindOf(err); !ok {
			err = upstream.TransportError(aviationstack.ProviderName, "airports", err)
		}
		return nil, err
	}
	return rows, nil
}

func (c *Cache) convert(rows []aviationstack.Airport) []models.AirportRecord {
	out := make([]models.AirportRecord, 0, len(rows))
	for _, r := range rows {
		if !c.matchesCountry(r) {
			continue
		}
		lat, latOK := r.Latitude.Float()
		lon, lonOK := r.Longitude.Float()
		if !latOK || !lonOK || lat == 0 || lon == 0 {
			continue
		}
		code := strings.TrimSpace(r.IATACode)
		if code == "" {
			code = strings.TrimSpace(r.ICAOCode)
		}
		if code == "" {
			continue
		}

		rec := models.AirportRecord{
			Code:      strings.ToUpper(code),
			Name:      orDefault(r.AirportName, defaultName),
			City:      orDefault(r.CityName, orDefault(r.City, defaultCity)),
			Country:   orDefault(r.CountryName, c.countryName),
			Latitude:  lat,
			Longitude: lon,
			Timezone:  orDefault(r.Timezone, defaultTimezone),
		}
		out = append(out, rec)
	}
	return out
}

// matchesCountry accepts a row whose name contains the country name, or
// whose code fields equal the country code.
func (c *Cache) matchesCountry(r aviationstack.Airport) bool {
	if c.countryName != "" && strings.Contains(strings.ToLower(r.CountryName), strings.ToLower(c.countryName)) {
		return true
	}
	return strings.EqualFold(r.CountryCode, c.countryCode) || strings.EqualFold(r.CountryISO2, c.countryCode)
}

func orDefault(s, def string) string {
	if s = strings.TrimSpace(s); s != "" {
		return s
	}
	return def
}
