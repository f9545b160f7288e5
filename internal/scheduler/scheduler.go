package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/i474232898/air-quality-gateway/internal/aqi"
	"github.com/i474232898/air-quality-gateway/internal/config"
)

// NearestStationRefresher is the part of the gateway the warm-up job needs.
type NearestStationRefresher interface {
	RefreshNearestStation(ctx context.Context, latitude, longitude float64) (aqi.Reading, error)
}

// DefaultInterval is used when no positive interval is configured.
const DefaultInterval = 4 * time.Minute

// Scheduler periodically refreshes the readings of configured locations so
// dashboard requests for them are served from cache. The interval should be
// shorter than the cache TTL or entries go stale between runs.
type Scheduler struct {
	scheduler *gocron.Scheduler
	gateway   NearestStationRefresher
	locations []config.NamedLocation
	interval  time.Duration
	log       *slog.Logger
}

// New creates a new Scheduler.
func New(locations []config.NamedLocation, interval time.Duration, gateway NearestStationRefresher, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		gateway:   gateway,
		locations: locations,
		interval:  interval,
		log:       logger.With("component", "scheduler"),
	}
}

// Start schedules the warm-up job and starts the underlying scheduler.
// The first run happens immediately.
func (s *Scheduler) Start() error {
	if len(s.locations) == 0 {
		s.log.Info("no locations configured; nothing to warm")
		return nil
	}

	interval := s.interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	_, err := s.scheduler.Every(interval).Do(s.Warm)
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

// Warm refetches every configured location once, concurrently. Failures are
// logged and do not stop the other locations.
func (s *Scheduler) Warm() {
	s.log.Debug("running cache warm-up", "locations", len(s.locations))

	var wg sync.WaitGroup
	for _, loc := range s.locations {
		wg.Add(1)
		go func(loc config.NamedLocation) {
			defer wg.Done()

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			if _, err := s.gateway.RefreshNearestStation(ctx, loc.Latitude, loc.Longitude); err != nil {
				s.log.Warn("warm-up fetch failed", "location", loc.Name, "error", err)
			}
		}(loc)
	}
	wg.Wait()
	s.log.Debug("cache warm-up completed")
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
