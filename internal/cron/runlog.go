package cron

import (
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"
)

// maxRunLogEntriesPerJob bounds the per-job history kept in memory,
// applied per job so one noisy job can't evict another's history.
const maxRunLogEntriesPerJob = 50

// maxTrackedJobs bounds how many distinct job IDs the run log tracks
// at once. Least-recently-touched jobs are evicted first.
const maxTrackedJobs = 1000

// runLog is an in-memory, non-persisted history of job executions;
// only last-run metadata survives a restart. Bounded with
// hashicorp/golang-lru/v2 so memory stays bounded even with many
// distinct jobs each producing their own history.
type runLog struct {
	cache *lru.Cache[string, []RunLogEntry]
}

func newRunLog() *runLog {
	cache, _ := lru.New[string, []RunLogEntry](maxTrackedJobs)
	return &runLog{cache: cache}
}

func (r *runLog) record(entry RunLogEntry) {
	entries, _ := r.cache.Get(entry.JobID)
	entries = append(entries, entry)
	if len(entries) > maxRunLogEntriesPerJob {
		entries = entries[len(entries)-maxRunLogEntriesPerJob:]
	}
	r.cache.Add(entry.JobID, entries)
}

// recent returns up to limit entries for jobID (or, if jobID is
// empty, across all tracked jobs), most recent first.
func (r *runLog) recent(jobID string, limit int) []RunLogEntry {
	if limit <= 0 {
		limit = 20
	}

	var pool []RunLogEntry
	if jobID != "" {
		entries, _ := r.cache.Get(jobID)
		pool = entries
	} else {
		for _, key := range r.cache.Keys() {
			entries, _ := r.cache.Peek(key)
			pool = append(pool, entries...)
		}
		sort.SliceStable(pool, func(i, j int) bool { return pool[i].Ts < pool[j].Ts })
	}

	out := make([]RunLogEntry, 0, limit)
	for i := len(pool) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, pool[i])
	}
	return out
}

// RunLogEntry is an in-memory record of a single job execution.
type RunLogEntry struct {
	Ts      int64  `json:"ts"`
	JobID   string `json:"jobId"`
	Status  string `json:"status,omitempty"`
	Error   string `json:"error,omitempty"`
	Summary string `json:"summary,omitempty"`
}

const maxSummaryBytes = 16 * 1024

// truncateSummary keeps run-log summaries bounded even for a verbose
// agent turn.
func truncateSummary(s string) string {
	if len(s) <= maxSummaryBytes {
		return s
	}
	return s[:maxSummaryBytes] + "...[truncated]"
}
