package airports

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/manaspathak2335-git/TripPilot/internal/logging"
)

const warmJobName = "airports-prewarm"

// Warmer refreshes a Cache on a fixed interval so the first request after
// expiry does not wait on the vendor.
type Warmer struct {
	scheduler gocron.Scheduler
	logger    *slog.Logger
}

// StartWarmer schedules cache refreshes every interval, starting now.
func StartWarmer(cache *Cache, interval time.Duration, logger *slog.Logger) (*Warmer, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("prewarm interval must be positive, got %s", interval)
	}
	logger = logging.Default(logger).With("component", "airports-warmer")

	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			recs := cache.Refresh(context.Background())
			logger.Debug("prewarm finished", "count", len(recs))
		}),
		gocron.WithName(warmJobName),
		gocron.WithStartAt(gocron.WithStartImmediately()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, fmt.Errorf("create job %s: %w", warmJobName, err)
	}

	s.Start()
	logger.Info("airport prewarm scheduled", "interval", interval)
	return &Warmer{scheduler: s, logger: logger}, nil
}

// Stop shuts down the scheduler and waits for a running refresh to finish.
func (w *Warmer) Stop() error {
	if w == nil {
		return nil
	}
	return w.scheduler.Shutdown()
}
