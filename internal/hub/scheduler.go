package hub

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
)

// Purger deletes expired task records
type Purger interface {
	PurgeExpired(ctx context.Context) (int, error)
}

// Scheduler purges expired task records on a cron schedule
type Scheduler struct {
	purger Purger
	cron   *cron.Cron
	logger arbor.ILogger
}

// NewScheduler creates a purge scheduler
func NewScheduler(purger Purger, logger arbor.ILogger) *Scheduler {
	return &Scheduler{
		purger: purger,
		cron:   cron.New(),
		logger: logger,
	}
}

// Start begins the scheduled purge
func (s *Scheduler) Start(schedule string) error {
	if schedule == "" {
		schedule = "@every 1m"
	}

	_, err := s.cron.AddFunc(schedule, func() {
		s.RunNow()
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info().
		Str("schedule", schedule).
		Msg("Task purge scheduler started")

	return nil
}

// Stop stops the scheduler and waits for a running purge
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info().Msg("Task purge scheduler stopped")
}

// RunNow purges expired records synchronously
func (s *Scheduler) RunNow() int {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	purged, err := s.purger.PurgeExpired(ctx)
	if err != nil {
		s.logger.Error().
			Err(err).
			Msg("Task purge failed")
		return purged
	}

	if purged > 0 {
		s.logger.Info().
			Int("purged", purged).
			Msg("Expired tasks purged")
	}
	return purged
}
