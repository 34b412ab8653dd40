// Package scheduler triggers periodic coordinator refreshes.
package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/sirupsen/logrus"

	"github.com/hweber/emax-station/internal/coordinator"
)

// Scheduler periodically refreshes the station snapshot. It never issues
// overlapping refreshes: the coordinator's single-flight contract makes a
// tick that fires during a slow fetch join it instead.
type Scheduler struct {
	scheduler   *gocron.Scheduler
	coordinator *coordinator.Coordinator
	interval    time.Duration
	timeout     time.Duration
	log         *logrus.Entry
}

// New creates a Scheduler refreshing every interval, with each refresh
// bounded by timeout.
func New(coord *coordinator.Coordinator, interval, timeout time.Duration) *Scheduler {
	return &Scheduler{
		scheduler:   gocron.NewScheduler(time.UTC),
		coordinator: coord,
		interval:    interval,
		timeout:     timeout,
		log:         logrus.WithField("component", "scheduler"),
	}
}

// Start schedules the periodic job and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	minutes := int(s.interval.Minutes())
	if minutes <= 0 {
		minutes = 10
	}

	_, err := s.scheduler.Every(minutes).Minutes().Do(func() {
		s.log.Debug("running scheduled refresh")

		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		if _, err := s.coordinator.Refresh(ctx); err != nil {
			s.log.WithError(err).Warn("scheduled refresh failed")
			return
		}
		s.log.Debug("scheduled refresh completed")
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler and cancels any future jobs. In-flight work is
// allowed to finish or time out on its own.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
