// Package cron is the scheduler service: it holds the live job set,
// runs the single polling loop, enforces the per-job single-flight
// guard, and emits job lifecycle events. Job data, schedule math,
// persistence, execution, and channel delivery all live in their own
// packages (cronjob, schedule, cronstore, executor, channels); this
// package wires them together.
package cron

import "github.com/nextlevelbuilder/goclaw/internal/cronjob"

// EventKind enumerates the lifecycle events the scheduler emits.
type EventKind string

const (
	EventJobAdded   EventKind = "job.added"
	EventJobUpdated EventKind = "job.updated"
	EventJobRemoved EventKind = "job.removed"
	EventJobRan     EventKind = "job.ran"
)

// Event is what onEvent receives. Result is only populated for
// EventJobRan.
type Event struct {
	Kind   EventKind
	Job    cronjob.Job
	Result *RunResult
}

// RunResult is the outcome the scheduler records after executing a job.
type RunResult struct {
	Status  string
	Summary string
	Error   string
}

// EventHandler receives scheduler lifecycle events. Emission is
// best-effort: a panicking handler must not bring down the tick loop,
// so the scheduler always calls it through a recover wrapper.
type EventHandler func(Event)
