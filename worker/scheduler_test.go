package worker

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"carsensor-mirror/models"
	"carsensor-mirror/utils"
)

type recordingTrigger struct {
	mu    sync.Mutex
	kinds []models.RunKind
	fired chan struct{}
}

func (r *recordingTrigger) RunScheduled(_ context.Context, kind models.RunKind) (*models.ScrapingRun, error) {
	r.mu.Lock()
	r.kinds = append(r.kinds, kind)
	r.mu.Unlock()
	r.fired <- struct{}{}
	return &models.ScrapingRun{Kind: kind, Status: models.RunCompleted}, nil
}

func TestSchedulerRunsOnStart(t *testing.T) {
	rec := &recordingTrigger{fired: make(chan struct{}, 1)}
	s := NewScheduler(rec, "0 0 1 1 *", utils.NewLoggerTo(io.Discard)).WithStartupRun(10 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case <-rec.fired:
	case <-time.After(time.Second):
		t.Fatal("startup run never fired")
	}
	s.Stop()

	if len(rec.kinds) != 1 || rec.kinds[0] != models.KindStartup {
		t.Errorf("kinds = %v", rec.kinds)
	}
}

func TestSchedulerStartupRunCancelled(t *testing.T) {
	rec := &recordingTrigger{fired: make(chan struct{}, 1)}
	s := NewScheduler(rec, "0 0 1 1 *", utils.NewLoggerTo(io.Discard)).WithStartupRun(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	cancel()
	s.Stop()

	if len(rec.kinds) != 0 {
		t.Errorf("cancelled startup run fired: %v", rec.kinds)
	}
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	s := NewScheduler(&recordingTrigger{}, "every now and then", utils.NewLoggerTo(io.Discard))
	if err := s.Start(context.Background()); err == nil {
		t.Fatal("expected an error for an invalid cron spec")
	}
}
