// Package cronstore durably persists the cron job set. The default
// backend is a JSON file with atomic replace-on-save; an alternate
// Postgres backend lives in the pg subpackage. Both implement the
// same Store contract so the scheduler service is agnostic to which
// one it's given.
package cronstore

import "github.com/nextlevelbuilder/goclaw/internal/cronjob"

// Store durably persists the full job set. Save always writes a
// complete, self-consistent snapshot — readers never observe a
// partial write.
type Store interface {
	Load() ([]cronjob.Job, error)
	Save(jobs []cronjob.Job) error
}
