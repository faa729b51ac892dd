package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"carsensor-mirror/models"
	"carsensor-mirror/utils"
)

// trigger is the part of Runner the scheduler drives.
type trigger interface {
	RunScheduled(ctx context.Context, kind models.RunKind) (*models.ScrapingRun, error)
}

// Scheduler fires upsert runs on a cron expression and optionally once
// shortly after startup.
type Scheduler struct {
	runner     trigger
	spec       string
	runOnStart bool
	startDelay time.Duration
	logger     *utils.Logger

	cron *cron.Cron
	wg   sync.WaitGroup
}

// NewScheduler creates a Scheduler for a standard five-field cron spec.
func NewScheduler(runner trigger, spec string, logger *utils.Logger) *Scheduler {
	return &Scheduler{runner: runner, spec: spec, logger: logger}
}

// WithStartupRun schedules one extra run delay after Start.
func (s *Scheduler) WithStartupRun(delay time.Duration) *Scheduler {
	s.runOnStart = true
	s.startDelay = delay
	return s
}

// Start registers the cron job and returns. Jobs run with ctx, so
// cancelling it aborts a run in flight.
func (s *Scheduler) Start(ctx context.Context) error {
	s.cron = cron.New()
	if _, err := s.cron.AddFunc(s.spec, func() { s.fire(ctx, models.KindScheduled) }); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("[scheduler] Scrape scheduled with %q", s.spec)

	if s.runOnStart {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			timer := time.NewTimer(s.startDelay)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			}
			s.fire(ctx, models.KindStartup)
		}()
	}
	return nil
}

// Stop prevents new runs and waits for a job in flight to return.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	s.wg.Wait()
	s.logger.Info("[scheduler] Stopped")
}

func (s *Scheduler) fire(ctx context.Context, kind models.RunKind) {
	if ctx.Err() != nil {
		return
	}
	_, err := s.runner.RunScheduled(ctx, kind)
	switch {
	case err == nil, errors.Is(err, ErrRunInProgress):
	default:
		s.logger.Error("[scheduler] %s run failed: %v", kind, err)
	}
}
