package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"

	"github.com/i474232898/environmental-data-aggregation/internal/region"
)

// Refresher is the part of the engine the scheduler drives.
type Refresher interface {
	HotRegions() []region.Region
	Refresh(ctx context.Context, r region.Region) error
}

// Scheduler periodically refreshes the regions users recently asked for.
// It is best-effort: failures are logged and never surface to callers.
type Scheduler struct {
	scheduler *gocron.Scheduler
	refresher Refresher
	interval  time.Duration
	timeout   time.Duration
	logger    zerolog.Logger
}

// New creates a new Scheduler. timeout bounds the refresh of one region.
func New(refresher Refresher, interval, timeout time.Duration, logger zerolog.Logger) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{
		scheduler: s,
		refresher: refresher,
		interval:  interval,
		timeout:   timeout,
		logger:    logger,
	}
}

// Start schedules the periodic job and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	interval := s.interval
	if interval <= 0 {
		interval = 45 * time.Second
	}

	_, err := s.scheduler.Every(interval).WaitForSchedule().Do(func() {
		s.RunOnce(context.Background())
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	s.logger.Info().Dur("interval", interval).Msg("background refresh scheduled")
	return nil
}

// RunOnce refreshes every hot region concurrently and returns when all are done.
func (s *Scheduler) RunOnce(ctx context.Context) {
	regions := s.refresher.HotRegions()
	if len(regions) == 0 {
		s.logger.Debug().Msg("no hot regions; nothing to refresh")
		return
	}

	s.logger.Debug().Int("regions", len(regions)).Msg("running refresh job")

	var wg sync.WaitGroup
	for _, r := range regions {
		r := r
		wg.Add(1)
		go func() {
			defer wg.Done()

			ctx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()

			if err := s.refresher.Refresh(ctx, r); err != nil {
				s.logger.Warn().Err(err).Str("region", r.Key()).Msg("background refresh failed")
			}
		}()
	}
	wg.Wait()
	s.logger.Debug().Msg("refresh job completed")
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
