package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"github.com/nextlevelbuilder/goclaw/internal/clock"
	"github.com/nextlevelbuilder/goclaw/internal/cronerr"
	"github.com/nextlevelbuilder/goclaw/internal/cronjob"
	"github.com/nextlevelbuilder/goclaw/internal/cronstore"
	"github.com/nextlevelbuilder/goclaw/internal/executor"
	"github.com/nextlevelbuilder/goclaw/internal/schedule"
)

var tracer = otel.Tracer("goclaw/cron")

// TickInterval is how often the scheduler wakes to check for due jobs.
var TickInterval = 1 * time.Second

// shutdownGrace bounds how long Stop waits for in-flight executions.
const shutdownGrace = 10 * time.Second

// Service is the scheduler: it holds the live job set, runs the single
// polling loop, owns the single-flight guard, and emits lifecycle
// events. Persistence and execution are delegated to
// cronstore.Store and executor.Executor rather than handled inline.
type Service struct {
	clock    clock.Clock
	store    cronstore.Store
	exec     *executor.Executor
	onEvent  EventHandler
	runLog   *runLog

	mu       sync.Mutex
	jobs     []cronjob.Job
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup

	leaseMu sync.Mutex
	leased  map[string]struct{}
}

// NewService builds a scheduler over store, dispatching due jobs to
// exec. onEvent may be nil.
func NewService(store cronstore.Store, exec *executor.Executor, onEvent EventHandler) *Service {
	return &Service{
		clock:   clock.System{},
		store:   store,
		exec:    exec,
		onEvent: onEvent,
		runLog:  newRunLog(),
		leased:  make(map[string]struct{}),
	}
}

// SetClock overrides the clock, for tests.
func (s *Service) SetClock(c clock.Clock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = c
}

// Start loads the persisted job set and begins the tick loop.
// Startup recovery: every enabled job whose nextRunAtMs is nil or in
// the past is recomputed from now, so a crash or long downtime never
// produces a catch-up burst.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	jobs, err := s.store.Load()
	if err != nil {
		return fmt.Errorf("cron: load store: %w", err)
	}
	s.jobs = jobs

	now := s.clock.NowMS()
	for i := range s.jobs {
		job := &s.jobs[i]
		if job.Enabled && (job.State.NextRunAtMS == nil || *job.State.NextRunAtMS <= now) {
			next, err := schedule.NextRunAtMS(job.Schedule, job.State.LastRunAtMS, now)
			if err != nil {
				slog.Warn("cron: startup recovery could not compute next run", "job", job.ID, "error", err)
				continue
			}
			job.State.NextRunAtMS = next
		}
	}
	if err := s.persistLocked(); err != nil {
		return err
	}

	s.stopChan = make(chan struct{})
	s.running = true
	s.wg.Add(1)
	go s.runLoop()

	slog.Info("cron: scheduler started", "jobs", len(s.jobs))
	return nil
}

// Stop cancels the tick loop, waits (with a bounded grace period) for
// in-flight executions started by the tick loop to finish, and persists
// one final snapshot. Executions started through Run are not waited for.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	close(s.stopChan)
	s.running = false
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownGrace):
		slog.Warn("cron: stop grace period elapsed with executions still in flight")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.persistLocked(); err != nil {
		slog.Error("cron: final persist on stop failed", "error", err)
	}
	slog.Info("cron: scheduler stopped")
}

// Add creates a new job, computes its initial nextRunAtMs, persists,
// and emits job.added.
func (s *Service) Add(create cronjob.Create) (cronjob.Job, error) {
	if err := schedule.Validate(create.Schedule); err != nil {
		return cronjob.Job{}, err
	}
	if err := cronjob.ValidatePayload(create.Payload); err != nil {
		return cronjob.Job{}, err
	}

	s.mu.Lock()
	now := s.clock.NowMS()
	if create.Schedule.Kind == schedule.KindAt && *create.Schedule.AtMS <= now {
		s.mu.Unlock()
		return cronjob.Job{}, fmt.Errorf("%w: at instant %d is not in the future", cronerr.ErrInvalidSchedule, *create.Schedule.AtMS)
	}
	enabled := true
	if create.Enabled != nil {
		enabled = *create.Enabled
	}

	job := cronjob.Job{
		ID:          uuid.NewString(),
		Name:        create.Name,
		Enabled:     enabled,
		Schedule:    create.Schedule,
		Payload:     create.Payload,
		CreatedAtMS: now,
		UpdatedAtMS: now,
		CreatedBy:   create.CreatedBy,
	}
	if enabled {
		next, err := schedule.NextRunAtMS(job.Schedule, nil, now)
		if err != nil {
			s.mu.Unlock()
			return cronjob.Job{}, err
		}
		job.State.NextRunAtMS = next
	}

	s.jobs = append(s.jobs, job)
	err := s.persistLocked()
	s.mu.Unlock()
	if err != nil {
		return cronjob.Job{}, err
	}

	s.emit(Event{Kind: EventJobAdded, Job: job})
	return job, nil
}

// Remove deletes a job by ID, returning false if it did not exist.
func (s *Service) Remove(id string) (bool, error) {
	s.mu.Lock()
	idx := s.indexOfLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return false, nil
	}
	removed := s.jobs[idx]
	s.jobs = append(s.jobs[:idx], s.jobs[idx+1:]...)
	err := s.persistLocked()
	s.mu.Unlock()
	if err != nil {
		return false, err
	}

	s.emit(Event{Kind: EventJobRemoved, Job: removed})
	return true, nil
}

// Update patches name/enabled/schedule/payload on an existing job and
// recomputes nextRunAtMs. Returns (nil, nil) if the job doesn't exist.
func (s *Service) Update(id string, patch cronjob.Patch) (*cronjob.Job, error) {
	s.mu.Lock()
	idx := s.indexOfLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return nil, nil
	}
	job := &s.jobs[idx]

	if patch.Name != nil {
		job.Name = *patch.Name
	}
	if patch.Enabled != nil {
		job.Enabled = *patch.Enabled
	}
	if patch.Schedule != nil {
		if err := schedule.Validate(*patch.Schedule); err != nil {
			s.mu.Unlock()
			return nil, err
		}
		job.Schedule = *patch.Schedule
	}
	if patch.Payload != nil {
		if err := cronjob.ValidatePayload(*patch.Payload); err != nil {
			s.mu.Unlock()
			return nil, err
		}
		job.Payload = *patch.Payload
	}

	now := s.clock.NowMS()
	job.UpdatedAtMS = now
	if job.Enabled {
		next, err := schedule.NextRunAtMS(job.Schedule, job.State.LastRunAtMS, now)
		if err != nil {
			s.mu.Unlock()
			return nil, err
		}
		job.State.NextRunAtMS = next
	} else {
		job.State.NextRunAtMS = nil
	}

	result := job.Clone()
	err := s.persistLocked()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	s.emit(Event{Kind: EventJobUpdated, Job: result})
	return &result, nil
}

// List returns all jobs, optionally including disabled ones.
func (s *Service) List(includeDisabled bool) []cronjob.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]cronjob.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		if includeDisabled || j.Enabled {
			out = append(out, j.Clone())
		}
	}
	return out
}

// Get returns a copy of a job by ID.
func (s *Service) Get(id string) (cronjob.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexOfLocked(id)
	if idx < 0 {
		return cronjob.Job{}, false
	}
	return s.jobs[idx].Clone(), true
}

// Run forces (or, with force=false, attempts only if due) an immediate
// execution of a job through the Executor, updating its state exactly
// as a regular tick would, including recomputing nextRunAtMs from this
// run. It does not cancel the regular tick loop.
func (s *Service) Run(ctx context.Context, id string, force bool) (RunResult, error) {
	s.mu.Lock()
	idx := s.indexOfLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return RunResult{}, fmt.Errorf("%w: %s", cronerr.ErrJobNotFound, id)
	}
	job := s.jobs[idx].Clone()
	now := s.clock.NowMS()
	s.mu.Unlock()

	if !force && (job.State.NextRunAtMS == nil || *job.State.NextRunAtMS > now) {
		return RunResult{Status: cronjob.StatusSkipped, Summary: "not due"}, nil
	}

	if !s.acquireLease(job.ID) {
		return RunResult{Status: cronjob.StatusSkipped, Summary: "already running"}, nil
	}
	defer s.releaseLease(job.ID)

	result := s.runOnce(ctx, job)
	return result, nil
}

// GetRunLog returns recent run log entries for jobID (or all jobs if
// jobID is empty), most recent first.
func (s *Service) GetRunLog(jobID string, limit int) []RunLogEntry {
	return s.runLog.recent(jobID, limit)
}

// --- tick loop ---

func (s *Service) runLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

// tick collects due jobs, then fans out a goroutine per job so
// executor invocations within a tick run concurrently.
func (s *Service) tick() {
	ctx, span := tracer.Start(context.Background(), "cron.tick")
	defer span.End()

	s.mu.Lock()
	now := s.clock.NowMS()
	var due []cronjob.Job
	for _, j := range s.jobs {
		if j.Enabled && j.State.NextRunAtMS != nil && *j.State.NextRunAtMS <= now {
			due = append(due, j.Clone())
		}
	}
	s.mu.Unlock()

	for _, job := range due {
		if !s.acquireLease(job.ID) {
			continue
		}
		s.wg.Add(1)
		go func(job cronjob.Job) {
			defer s.wg.Done()
			defer s.releaseLease(job.ID)
			s.runOnce(ctx, job)
		}(job)
	}
}

// runOnce executes job through the Executor, updates its persisted
// state under the store lock, and emits job.ran. job is a snapshot
// taken before acquiring the lease; the canonical record is re-read
// from the live slice before mutating, so a concurrent Update/Remove
// always wins over stale pre-run state.
func (s *Service) runOnce(ctx context.Context, job cronjob.Job) RunResult {
	ctx, span := tracer.Start(ctx, "cron.execute")
	defer span.End()

	outcome := s.exec.ExecuteJob(ctx, job)
	now := s.clock.NowMS()

	s.mu.Lock()
	idx := s.indexOfLocked(job.ID)
	if idx < 0 {
		s.mu.Unlock()
		// Job was removed mid-execution; nothing to update or persist.
		result := RunResult{Status: outcome.Status, Summary: outcome.Summary, Error: outcome.Error}
		s.recordRun(job.ID, result)
		return result
	}

	live := &s.jobs[idx]
	live.State.LastRunAtMS = &now
	live.State.RunCount++
	live.State.LastStatus = outcome.Status
	live.State.LastError = outcome.Error

	if live.Schedule.Kind == schedule.KindAt {
		live.Enabled = false
		live.State.NextRunAtMS = nil
	} else {
		next, err := schedule.NextRunAtMS(live.Schedule, live.State.LastRunAtMS, now)
		if err != nil {
			slog.Error("cron: failed to compute next run after execution", "job", job.ID, "error", err)
			next = nil
		}
		live.State.NextRunAtMS = next
		if next == nil {
			live.Enabled = false
		}
	}
	updated := live.Clone()
	persistErr := s.persistLocked()
	s.mu.Unlock()

	if persistErr != nil {
		slog.Error("cron: failed to persist after execution", "job", job.ID, "error", persistErr)
	}

	result := RunResult{Status: outcome.Status, Summary: outcome.Summary, Error: outcome.Error}
	s.recordRun(job.ID, result)
	s.emit(Event{Kind: EventJobRan, Job: updated, Result: &result})
	return result
}

func (s *Service) recordRun(jobID string, result RunResult) {
	s.runLog.record(RunLogEntry{
		Ts:      s.clock.NowMS(),
		JobID:   jobID,
		Status:  result.Status,
		Error:   result.Error,
		Summary: truncateSummary(result.Summary),
	})
}

// --- single-flight lease ---

func (s *Service) acquireLease(jobID string) bool {
	s.leaseMu.Lock()
	defer s.leaseMu.Unlock()
	if _, leased := s.leased[jobID]; leased {
		return false
	}
	s.leased[jobID] = struct{}{}
	return true
}

func (s *Service) releaseLease(jobID string) {
	s.leaseMu.Lock()
	defer s.leaseMu.Unlock()
	delete(s.leased, jobID)
}

// --- helpers ---

func (s *Service) indexOfLocked(id string) int {
	for i := range s.jobs {
		if s.jobs[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Service) persistLocked() error {
	return s.store.Save(s.jobs)
}

// emit calls onEvent through a recover wrapper: event emission is
// best-effort, and a handler panic must not affect the tick.
func (s *Service) emit(evt Event) {
	if s.onEvent == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("cron: onEvent handler panicked", "event", evt.Kind, "recovered", r)
		}
	}()
	s.onEvent(evt)
}
