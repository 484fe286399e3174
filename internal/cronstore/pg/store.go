// Package pg is a Postgres-backed cronstore.Store. Jobs are stored
// whole, as a JSONB blob per row, so the on-disk shape never drifts
// from the file-store's StoreFile encoding — only the persistence
// medium changes. Save runs as a single transaction that replaces the
// whole table, since Store's contract is load-all/save-all rather
// than row-level mutation.
package pg

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/nextlevelbuilder/goclaw/internal/cronerr"
	"github.com/nextlevelbuilder/goclaw/internal/cronjob"
)

// OpenDB opens a Postgres connection using the pgx stdlib driver.
func OpenDB(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("cronstore/pg: open: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("cronstore/pg: ping: %w", err)
	}
	return db, nil
}

// Store implements cronstore.Store against a cron_jobs table of
// (id text primary key, job jsonb not null, updated_at timestamptz).
type Store struct {
	db *sqlx.DB
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

type jobRow struct {
	ID  string `db:"id"`
	Job []byte `db:"job"`
}

func (s *Store) Load() ([]cronjob.Job, error) {
	var rows []jobRow
	if err := s.db.Select(&rows, `SELECT id, job FROM cron_jobs ORDER BY id`); err != nil {
		return nil, fmt.Errorf("cronstore/pg: load: %w", err)
	}
	jobs := make([]cronjob.Job, 0, len(rows))
	for _, r := range rows {
		var job cronjob.Job
		if err := json.Unmarshal(r.Job, &job); err != nil {
			return nil, fmt.Errorf("%w: row %s: %v", cronerr.ErrStoreCorrupt, r.ID, err)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// Save replaces the entire job set inside one transaction: every
// existing row is deleted and the new set re-inserted, so a reader
// never observes a mix of old and new jobs, the same whole-snapshot
// guarantee FileStore.Save gives.
func (s *Store) Save(jobs []cronjob.Job) error {
	ctx := context.Background()
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("cronstore/pg: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM cron_jobs`); err != nil {
		return fmt.Errorf("cronstore/pg: clear: %w", err)
	}

	for _, job := range jobs {
		blob, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("cronstore/pg: marshal job %s: %w", job.ID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO cron_jobs (id, job, updated_at) VALUES ($1, $2, now())`,
			job.ID, blob,
		); err != nil {
			return fmt.Errorf("cronstore/pg: insert job %s: %w", job.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("cronstore/pg: commit: %w", err)
	}
	return nil
}
