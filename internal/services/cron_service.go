package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// CronService manages scheduled background jobs
type CronService struct {
	cron      *cron.Cron
	lifecycle *BookingLifecycleService
	schedule  string
	timeout   time.Duration
	logger    *logrus.Logger
}

// NewCronService creates a new CronService. schedule uses the robfig format
// with an optional seconds field, or a descriptor such as "@every 30s".
func NewCronService(lifecycle *BookingLifecycleService, schedule string, logger *logrus.Logger) *CronService {
	return &CronService{
		cron:      cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		lifecycle: lifecycle,
		schedule:  schedule,
		timeout:   time.Minute,
		logger:    logger,
	}
}

// Start schedules the pending-booking expiry sweep
func (s *CronService) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.expirePendingJob); err != nil {
		return fmt.Errorf("failed to schedule expiry sweep %q: %w", s.schedule, err)
	}

	s.cron.Start()
	s.logger.WithField("schedule", s.schedule).Info("Cron service started")
	return nil
}

// Stop stops the scheduler and waits for a running sweep to finish
func (s *CronService) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Cron service stopped")
}

// RunOnce runs the expiry sweep immediately
func (s *CronService) RunOnce(ctx context.Context) (int, error) {
	return s.lifecycle.ExpirePending(ctx)
}

func (s *CronService) expirePendingJob() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	expired, err := s.RunOnce(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Expiry sweep failed")
		return
	}
	if expired > 0 {
		s.logger.WithFields(logrus.Fields{
			"expired":  expired,
			"duration": time.Since(start).String(),
		}).Info("Expiry sweep released pending bookings")
	}
}

// GetJobStatus returns the status of scheduled jobs
func (s *CronService) GetJobStatus() map[string]interface{} {
	entries := s.cron.Entries()

	jobs := make([]map[string]interface{}, 0, len(entries))
	for _, entry := range entries {
		jobs = append(jobs, map[string]interface{}{
			"id":       entry.ID,
			"next_run": entry.Next,
			"prev_run": entry.Prev,
		})
	}

	return map[string]interface{}{
		"running":   len(entries) > 0,
		"job_count": len(entries),
		"schedule":  s.schedule,
		"jobs":      jobs,
	}
}
