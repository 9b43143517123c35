package airports

import "time"

// Slot states reported by State.
const (
	StateEmpty = "empty"
	StateFresh = "fresh"
	StateStale = "stale"
)

// State describes the cache slot for the status endpoint.
type State struct {
	Status     string    `json:"status"`
	Count      int       `json:"count"`
	AgeSeconds float64   `json:"age_seconds"`
	FetchedAt  time.Time `json:"fetched_at,omitzero"`
}

// State reports the slot without touching the network.
func (c *Cache) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.fetchedAt.IsZero() {
		return State{Status: StateEmpty}
	}
	age := c.now().Sub(c.fetchedAt)
	s := State{
		Status:     StateFresh,
		Count:      len(c.records),
		AgeSeconds: age.Seconds(),
		FetchedAt:  c.fetchedAt,
	}
	if age >= c.ttl {
		s.Status = StateStale
	}
	return s
}
