// Package cronjob defines the persistent Job entity shared by the job
// store, executor, and scheduler service — the root data model of the
// cron subsystem (spec data model §3).
package cronjob

import "github.com/nextlevelbuilder/goclaw/internal/schedule"

const (
	PayloadSystemEvent = "systemEvent"
	PayloadAgentTurn   = "agentTurn"
)

const (
	StatusOK      = "ok"
	StatusError   = "error"
	StatusSkipped = "skipped"
)

// Payload describes what a job does when triggered. Kind discriminates
// between a side-effect-free system event and a full model turn.
type Payload struct {
	Kind           string `json:"kind"`
	Message        string `json:"message"`
	Model          string `json:"model,omitempty"`
	TimeoutSeconds int    `json:"timeoutSeconds,omitempty"`
	Deliver        bool   `json:"deliver,omitempty"`
	Channel        string `json:"channel,omitempty"`
	To             string `json:"to,omitempty"`
}

// State tracks runtime state for a job; this is the only part of a Job
// the executor/scheduler mutate after creation.
type State struct {
	LastRunAtMS *int64 `json:"lastRunAtMs,omitempty"`
	NextRunAtMS *int64 `json:"nextRunAtMs,omitempty"`
	RunCount    int64  `json:"runCount"`
	LastError   string `json:"lastError,omitempty"`
	LastStatus  string `json:"lastStatus,omitempty"`
}

// Job is the persistent root entity. ID is assigned at creation and
// never reused; Name need not be unique.
type Job struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Enabled     bool              `json:"enabled"`
	Schedule    schedule.Schedule `json:"schedule"`
	Payload     Payload           `json:"payload"`
	CreatedAtMS int64             `json:"createdAtMs"`
	UpdatedAtMS int64             `json:"updatedAtMs"`
	CreatedBy   string            `json:"createdBy,omitempty"`
	State       State             `json:"state"`
}

// Clone returns a deep-enough copy for safe concurrent read while the
// original is mutated under the store lock (Schedule/Payload carry no
// pointers that the scheduler mutates after construction; State's
// pointer fields are copied by value).
func (j Job) Clone() Job {
	out := j
	if j.State.LastRunAtMS != nil {
		v := *j.State.LastRunAtMS
		out.State.LastRunAtMS = &v
	}
	if j.State.NextRunAtMS != nil {
		v := *j.State.NextRunAtMS
		out.State.NextRunAtMS = &v
	}
	if j.Schedule.AtMS != nil {
		v := *j.Schedule.AtMS
		out.Schedule.AtMS = &v
	}
	if j.Schedule.EveryMS != nil {
		v := *j.Schedule.EveryMS
		out.Schedule.EveryMS = &v
	}
	return out
}

// Create holds the fields accepted when adding a new job.
type Create struct {
	Name      string
	Enabled   *bool
	Schedule  schedule.Schedule
	Payload   Payload
	CreatedBy string
}

// Patch holds optional fields for updating an existing job. Only
// non-nil fields are applied.
type Patch struct {
	Name     *string
	Enabled  *bool
	Schedule *schedule.Schedule
	Payload  *Payload
}

// RunLogEntry is an in-memory record of a single job execution. Not
// part of the persisted store file — only last-run metadata survives
// a restart.
type RunLogEntry struct {
	Ts      int64  `json:"ts"`
	JobID   string `json:"jobId"`
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
	Summary string `json:"summary,omitempty"`
}

// StoreFile is the versioned persisted document.
type StoreFile struct {
	Version int   `json:"version"`
	Jobs    []Job `json:"jobs"`
}
