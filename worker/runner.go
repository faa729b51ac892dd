package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"carsensor-mirror/models"
	"carsensor-mirror/scraper/carsensor"
	"carsensor-mirror/services"
	"carsensor-mirror/storage"
	"carsensor-mirror/telemetry"
	"carsensor-mirror/utils"
)

var (
	// ErrRunInProgress is returned when a trigger arrives while a run is executing.
	ErrRunInProgress = errors.New("worker: run already in progress")
	// ErrNoCandidates stops a refresh that scraped nothing, so an outage
	// upstream never empties the store.
	ErrNoCandidates = errors.New("worker: scrape produced no candidates")
)

// State is the runner's execution state.
type State int

const (
	Idle State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "idle"
}

// sink decides what happens to the scraped candidates.
type sink int

const (
	sinkUpsert sink = iota
	sinkRefresh
)

// Deps are the collaborators of a Runner. Raw and Lock are optional.
type Deps struct {
	Runs     storage.RunStore
	Scraper  *carsensor.Scraper
	Cleaner  *services.Cleaner
	Upserter *services.Upserter
	Cache    *services.CacheManager
	Raw      storage.RawListingWriter
	Lock     Locker
}

// Options shape a pipeline run.
type Options struct {
	BaseURL    string
	Pages      int
	BrandCode  string
	WithImages bool
	// LockPoll is how often a refresh re-tries a lock held by another process.
	LockPoll time.Duration
	// LockRenew is how often a held lock's lease is extended during a run.
	LockRenew time.Duration
}

// Runner executes the scrape pipeline. One Runner is shared by every
// trigger in the process and at most one run executes at a time.
type Runner struct {
	deps   Deps
	opts   Options
	logger *utils.Logger
	now    func() time.Time

	mu    sync.Mutex
	state State
	done  chan struct{}

	group singleflight.Group
	wg    sync.WaitGroup
}

// NewRunner creates an idle Runner.
func NewRunner(deps Deps, opts Options, logger *utils.Logger) *Runner {
	if opts.LockPoll <= 0 {
		opts.LockPoll = 500 * time.Millisecond
	}
	if opts.LockRenew <= 0 {
		opts.LockRenew = time.Minute
	}
	return &Runner{deps: deps, opts: opts, logger: logger, now: time.Now}
}

// WithClock replaces the clock used for run timestamps.
func (r *Runner) WithClock(now func() time.Time) *Runner {
	r.now = now
	return r
}

// State reports whether a run is executing.
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Runner) tryAcquire() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == Running {
		return false
	}
	r.state = Running
	r.done = make(chan struct{})
	return true
}

func (r *Runner) releaseLocal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = Idle
	close(r.done)
}

// RunScheduled executes one upsert run. It is a no-op returning
// ErrRunInProgress if a run is already executing here or, with a
// distributed lock configured, in another process.
func (r *Runner) RunScheduled(ctx context.Context, kind models.RunKind) (*models.ScrapingRun, error) {
	if !r.tryAcquire() {
		r.skipped(kind)
		return nil, ErrRunInProgress
	}
	defer r.releaseLocal()
	return r.runLocked(ctx, kind)
}

// Start runs an upsert pipeline in the background. The in-progress check is
// synchronous so the caller learns immediately whether the run was accepted.
func (r *Runner) Start(ctx context.Context, kind models.RunKind) error {
	if !r.tryAcquire() {
		r.skipped(kind)
		return ErrRunInProgress
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.releaseLocal()
		if _, err := r.runLocked(ctx, kind); err != nil && !errors.Is(err, ErrRunInProgress) {
			r.logger.Error("[worker] %s run failed: %v", kind, err)
		}
	}()
	return nil
}

// Wait blocks until runs started with Start have finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) skipped(kind models.RunKind) {
	telemetry.TriggersSkipped.Inc()
	r.logger.Info("[worker] %s trigger ignored: a run is already in progress", kind)
}

func (r *Runner) runLocked(ctx context.Context, kind models.RunKind) (*models.ScrapingRun, error) {
	if r.deps.Lock != nil {
		token, ok, err := r.deps.Lock.Acquire(ctx)
		if err != nil {
			return nil, fmt.Errorf("acquire run lock: %w", err)
		}
		if !ok {
			r.skipped(kind)
			return nil, ErrRunInProgress
		}
		defer r.hold(ctx, token)()
	}
	return r.execute(ctx, kind, sinkUpsert)
}

// hold keeps the lease on token alive until the returned func is called,
// which also releases the lock.
func (r *Runner) hold(ctx context.Context, token string) func() {
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.keepAlive(ctx, token, stop)
	}()

	return func() {
		close(stop)
		wg.Wait()
		if err := r.deps.Lock.Release(context.WithoutCancel(ctx), token); err != nil {
			r.logger.Warn("[worker] Releasing run lock failed: %v", err)
		}
	}
}

func (r *Runner) keepAlive(ctx context.Context, token string, stop <-chan struct{}) {
	ticker := time.NewTicker(r.opts.LockRenew)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		ok, err := r.deps.Lock.Extend(ctx, token)
		switch {
		case err != nil:
			r.logger.Warn("[worker] Extending run lock failed: %v", err)
		case !ok:
			telemetry.LockLeaseLost.Inc()
			r.logger.Warn("[worker] Run lock lease expired mid-run; another process may start a run")
			return
		}
	}
}

// EnsureFresh returns at once if the dataset is within ttl. Otherwise it
// runs a full refresh. Concurrent callers share a single refresh, and a
// refresh waits for any run already executing before deciding whether it
// is still needed.
func (r *Runner) EnsureFresh(ctx context.Context, ttl time.Duration) error {
	ok, err := r.deps.Cache.IsValid(ctx, ttl)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	_, err, shared := r.group.Do("refresh", func() (any, error) {
		return nil, r.refresh(ctx, ttl)
	})
	if shared {
		r.logger.Debug("[worker] Joined an in-flight refresh")
	}
	return err
}

func (r *Runner) refresh(ctx context.Context, ttl time.Duration) error {
	for !r.tryAcquire() {
		r.mu.Lock()
		done := r.done
		r.mu.Unlock()

		r.logger.Info("[worker] Stale read waiting for the running scrape to finish")
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
		if ok, err := r.deps.Cache.IsValid(ctx, ttl); err != nil || ok {
			return err
		}
	}
	defer r.releaseLocal()

	if ok, err := r.deps.Cache.IsValid(ctx, ttl); err != nil || ok {
		return err
	}

	if r.deps.Lock != nil {
		token, err := r.waitForLock(ctx, ttl)
		if err != nil || token == "" {
			return err
		}
		defer r.hold(ctx, token)()
	}

	_, err := r.execute(ctx, models.KindRefresh, sinkRefresh)
	return err
}

// waitForLock polls the distributed lock. It returns an empty token and no
// error if another process refreshed the data in the meantime.
func (r *Runner) waitForLock(ctx context.Context, ttl time.Duration) (string, error) {
	ticker := time.NewTicker(r.opts.LockPoll)
	defer ticker.Stop()

	for {
		token, ok, err := r.deps.Lock.Acquire(ctx)
		if err != nil {
			return "", fmt.Errorf("acquire run lock: %w", err)
		}
		if ok {
			return token, nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
		if valid, err := r.deps.Cache.IsValid(ctx, ttl); err != nil || valid {
			return "", err
		}
	}
}

// execute runs the pipeline under a run log entry. Any error or panic ends
// in a failed run; the run log is finalized even if ctx was cancelled.
func (r *Runner) execute(ctx context.Context, kind models.RunKind, s sink) (run *models.ScrapingRun, err error) {
	run = &models.ScrapingRun{
		ID:        uuid.NewString(),
		Kind:      kind,
		Status:    models.RunRunning,
		StartedAt: r.now(),
	}
	if err := r.deps.Runs.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create run log: %w", err)
	}

	r.logger.Info("[worker] Run %s started (%s)", run.ID, kind)
	telemetry.RunningGauge.Set(1)
	finalCtx := context.WithoutCancel(ctx)

	defer func() {
		telemetry.RunningGauge.Set(0)
		if p := recover(); p != nil {
			err = fmt.Errorf("panic during run: %v", p)
			r.fail(finalCtx, run, err)
		}
		telemetry.RunsTotal.WithLabelValues(string(kind), string(run.Status)).Inc()
		telemetry.RunDuration.Observe(r.now().Sub(run.StartedAt).Seconds())
	}()

	counts, payload, err := r.pipeline(ctx, run.ID, s)
	run.RunCounts = counts
	if err != nil {
		r.fail(finalCtx, run, err)
		return run, err
	}

	at := r.now()
	if err := r.deps.Runs.CompleteRun(finalCtx, run.ID, counts, payload, at); err != nil {
		err = fmt.Errorf("complete run log: %w", err)
		r.fail(finalCtx, run, err)
		return run, err
	}
	run.Status, run.ErrorMessage, run.CompletedAt = models.RunCompleted, payload, &at

	r.logger.Info("[worker] Run %s completed: found %d, added %d, updated %d, unchanged %d, errors %d",
		run.ID, counts.Found, counts.Added, counts.Updated, counts.Unchanged, counts.Errored)
	return run, nil
}

func (r *Runner) fail(ctx context.Context, run *models.ScrapingRun, cause error) {
	at := r.now()
	msg := cause.Error()
	run.Status, run.ErrorMessage, run.CompletedAt = models.RunFailed, &msg, &at

	r.logger.Error("[worker] Run %s failed: %v", run.ID, cause)
	if err := r.deps.Runs.FailRun(ctx, run.ID, msg, at); err != nil {
		r.logger.Error("[worker] Recording failure of run %s failed: %v", run.ID, err)
	}
}

func (r *Runner) pipeline(ctx context.Context, runID string, s sink) (models.RunCounts, *string, error) {
	var counts models.RunCounts

	urls := carsensor.SearchURLs(r.opts.BaseURL, r.opts.Pages, r.opts.BrandCode)
	scraped, stats, err := r.deps.Scraper.Scrape(ctx, runID, urls)
	if err != nil {
		return counts, nil, err
	}
	if stats.PagesFailed > 0 {
		r.logger.Warn("[worker] %d of %d pages could not be fetched", stats.PagesFailed, stats.Pages)
	}

	candidates := r.deps.Cleaner.Clean(scraped)
	counts.Found = len(candidates)

	if r.opts.WithImages && len(candidates) > 0 {
		if _, err := r.deps.Scraper.EnrichImages(ctx, candidates); err != nil {
			return counts, nil, err
		}
	}

	if r.deps.Raw != nil && len(candidates) > 0 {
		if err := r.deps.Raw.WriteRaw(runID, candidates); err != nil {
			r.logger.Warn("[worker] Raw CSV export failed: %v", err)
		}
	}

	switch s {
	case sinkRefresh:
		if len(candidates) == 0 {
			return counts, nil, ErrNoCandidates
		}
		n, err := r.deps.Cache.Refresh(ctx, candidates)
		if err != nil {
			return counts, nil, err
		}
		counts.Added = n
		telemetry.ListingsProcessed.WithLabelValues("refreshed").Add(float64(n))
		return counts, nil, nil

	default:
		res := r.deps.Upserter.UpsertBatch(ctx, candidates)
		counts.Added, counts.Updated, counts.Unchanged = res.Added, res.Updated, res.Unchanged
		counts.Errored = len(res.Errors)

		telemetry.ListingsProcessed.WithLabelValues("created").Add(float64(res.Added))
		telemetry.ListingsProcessed.WithLabelValues("updated").Add(float64(res.Updated))
		telemetry.ListingsProcessed.WithLabelValues("unchanged").Add(float64(res.Unchanged))
		telemetry.ListingsProcessed.WithLabelValues("error").Add(float64(len(res.Errors)))

		if len(res.Errors) == 0 {
			return counts, nil, nil
		}
		b, err := json.Marshal(res.Errors)
		if err != nil {
			return counts, nil, fmt.Errorf("encode record errors: %w", err)
		}
		payload := string(b)
		return counts, &payload, nil
	}
}
