package cron

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/clock"
	"github.com/nextlevelbuilder/goclaw/internal/cronjob"
	"github.com/nextlevelbuilder/goclaw/internal/executor"
	"github.com/nextlevelbuilder/goclaw/internal/schedule"
)

// memStore is an in-memory cronstore.Store stub so scheduler tests
// don't touch the filesystem.
type memStore struct {
	mu   sync.Mutex
	jobs []cronjob.Job
}

func (m *memStore) Load() ([]cronjob.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]cronjob.Job, len(m.jobs))
	copy(out, m.jobs)
	return out, nil
}

func (m *memStore) Save(jobs []cronjob.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs = make([]cronjob.Job, len(jobs))
	copy(m.jobs, jobs)
	return nil
}

func noopExecutor() *executor.Executor {
	return executor.New(nil, nil, nil)
}

func everySchedule(everyMS int64) schedule.Schedule {
	return schedule.Schedule{Kind: schedule.KindEvery, EveryMS: &everyMS}
}

func TestScenarioS1_Every60sSystemEvent(t *testing.T) {
	fc := clock.NewFake(1_000_000)
	s := NewService(&memStore{}, noopExecutor(), nil)
	s.SetClock(fc)

	job, err := s.Add(cronjob.Create{
		Name:     "ping",
		Schedule: everySchedule(60_000),
		Payload:  cronjob.Payload{Kind: cronjob.PayloadSystemEvent, Message: "hello"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if job.State.NextRunAtMS == nil || *job.State.NextRunAtMS != 1_060_000 {
		t.Fatalf("want initial nextRunAtMs=1060000, got %v", job.State.NextRunAtMS)
	}

	fc.Set(1_060_000)
	s.tick()
	s.wg.Wait()

	got, ok := s.Get(job.ID)
	if !ok {
		t.Fatal("job missing after tick")
	}
	if got.State.RunCount != 1 {
		t.Fatalf("want runCount=1, got %d", got.State.RunCount)
	}
	if got.State.LastStatus != cronjob.StatusOK {
		t.Fatalf("want lastStatus=ok, got %s", got.State.LastStatus)
	}
	if got.State.NextRunAtMS == nil || *got.State.NextRunAtMS != 1_120_000 {
		t.Fatalf("want nextRunAtMs=1120000, got %v", got.State.NextRunAtMS)
	}
}

func TestProperty1_MonotoneRunCount(t *testing.T) {
	fc := clock.NewFake(1_000_000)
	s := NewService(&memStore{}, noopExecutor(), nil)
	s.SetClock(fc)

	job, _ := s.Add(cronjob.Create{
		Name:     "ping",
		Schedule: everySchedule(1000),
		Payload:  cronjob.Payload{Kind: cronjob.PayloadSystemEvent},
	})

	var last int64
	for i := 0; i < 5; i++ {
		fc.Advance(1000)
		s.tick()
		s.wg.Wait()
		got, _ := s.Get(job.ID)
		if got.State.RunCount < last {
			t.Fatalf("runCount decreased: %d -> %d", last, got.State.RunCount)
		}
		if got.State.RunCount != int64(i+1) {
			t.Fatalf("want runCount=%d, got %d", i+1, got.State.RunCount)
		}
		last = got.State.RunCount
	}
}

func TestProperty2_SingleShotAutoDisable(t *testing.T) {
	fc := clock.NewFake(1_000_000)
	s := NewService(&memStore{}, noopExecutor(), nil)
	s.SetClock(fc)

	at := int64(1_000_500)
	job, err := s.Add(cronjob.Create{
		Name:     "once",
		Schedule: schedule.Schedule{Kind: schedule.KindAt, AtMS: &at},
		Payload:  cronjob.Payload{Kind: cronjob.PayloadSystemEvent},
	})
	if err != nil {
		t.Fatal(err)
	}

	fc.Set(1_000_500)
	s.tick()
	s.wg.Wait()

	got, _ := s.Get(job.ID)
	if got.Enabled {
		t.Fatal("want disabled after at-job fires")
	}
	if got.State.NextRunAtMS != nil {
		t.Fatalf("want nextRunAtMs=nil, got %v", got.State.NextRunAtMS)
	}

	// Subsequent ticks must not re-fire it.
	fc.Advance(10_000)
	s.tick()
	s.wg.Wait()
	got, _ = s.Get(job.ID)
	if got.State.RunCount != 1 {
		t.Fatalf("want runCount still 1, got %d", got.State.RunCount)
	}
}

func TestProperty3_NoCatchUpBurstOnResume(t *testing.T) {
	// At the scheduler level: a store already holding a job whose
	// nextRunAtMs is long overdue must, after Start(), land in
	// (T, T+every] and fire exactly once.
	every := int64(60_000)
	lastRun := int64(1_800_000)
	overdueNext := int64(1_860_000)
	store := &memStore{jobs: []cronjob.Job{{
		ID:       "j1",
		Name:     "periodic",
		Enabled:  true,
		Schedule: schedule.Schedule{Kind: schedule.KindEvery, EveryMS: &every},
		Payload:  cronjob.Payload{Kind: cronjob.PayloadSystemEvent},
		State:    cronjob.State{LastRunAtMS: &lastRun, NextRunAtMS: &overdueNext},
	}}}

	T := int64(2_000_000)
	fc := clock.NewFake(T)
	s := NewService(store, noopExecutor(), nil)
	s.SetClock(fc)

	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	got, _ := s.Get("j1")
	if got.State.NextRunAtMS == nil || *got.State.NextRunAtMS <= T || *got.State.NextRunAtMS > T+every {
		t.Fatalf("want nextRunAtMs in (%d, %d], got %v", T, T+every, got.State.NextRunAtMS)
	}

	fc.Set(*got.State.NextRunAtMS)
	s.tick()
	s.wg.Wait()

	got, _ = s.Get("j1")
	if got.State.RunCount != 1 {
		t.Fatalf("want exactly one fire on resumption, got runCount=%d", got.State.RunCount)
	}
}

func TestProperty5_SingleFlight(t *testing.T) {
	fc := clock.NewFake(1_000_000)
	started := make(chan struct{}, 10)
	release := make(chan struct{})

	ex := executor.New(func(ctx context.Context, req executor.AgentTurnRequest) (executor.AgentTurnResult, error) {
		started <- struct{}{}
		<-release
		return executor.AgentTurnResult{Success: true, Output: "done"}, nil
	}, nil, nil)

	s := NewService(&memStore{}, ex, nil)
	s.SetClock(fc)

	job, _ := s.Add(cronjob.Create{
		Name:     "slow",
		Schedule: everySchedule(1000),
		Payload:  cronjob.Payload{Kind: cronjob.PayloadAgentTurn, Message: "go"},
	})

	fc.Set(*mustNextRun(t, s, job.ID))
	s.tick()

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("first execution never started")
	}

	// A second tick while the first execution is still in flight must
	// not start a concurrent execution for the same job.
	s.tick()

	select {
	case <-started:
		t.Fatal("second concurrent execution started for the same job")
	case <-time.After(100 * time.Millisecond):
	}

	close(release)
	s.wg.Wait()
}

func mustNextRun(t *testing.T, s *Service, jobID string) *int64 {
	t.Helper()
	job, ok := s.Get(jobID)
	if !ok || job.State.NextRunAtMS == nil {
		t.Fatalf("job %s has no nextRunAtMs", jobID)
	}
	return job.State.NextRunAtMS
}
