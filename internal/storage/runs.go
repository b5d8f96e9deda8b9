package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SaveRun inserts or updates a run record. CreatedAt is kept from the first
// insert.
func (s *Store) SaveRun(r Run) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = time.Now()
	}
	if r.ProfileRefs == "" {
		r.ProfileRefs = "[]"
	}
	_, err := s.db.Exec(s.rebind(`
		INSERT INTO runs (id, job_id, profile_refs, state, error_kind, error, insight, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			job_id = excluded.job_id,
			profile_refs = excluded.profile_refs,
			state = excluded.state,
			error_kind = excluded.error_kind,
			error = excluded.error,
			insight = excluded.insight,
			updated_at = excluded.updated_at`),
		r.ID, r.JobID, r.ProfileRefs, r.State, r.ErrorKind, r.Error, r.Insight,
		r.CreatedAt.UTC().Format(timeFormat), r.UpdatedAt.UTC().Format(timeFormat),
	)
	return err
}

const runColumns = `id, job_id, profile_refs, state, error_kind, error, insight, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var r Run
	var createdAt, updatedAt string
	if err := row.Scan(&r.ID, &r.JobID, &r.ProfileRefs, &r.State, &r.ErrorKind, &r.Error, &r.Insight, &createdAt, &updatedAt); err != nil {
		return Run{}, err
	}
	var err error
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return Run{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if r.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return Run{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return r, nil
}

func (s *Store) GetRun(id string) (Run, error) {
	r, err := scanRun(s.db.QueryRow(s.rebind(`SELECT `+runColumns+` FROM runs WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	return r, err
}

// ListRuns returns runs newest first.
func (s *Store) ListRuns(limit, offset int) ([]Run, error) {
	rows, err := s.db.Query(s.rebind(`SELECT `+runColumns+` FROM runs ORDER BY created_at DESC LIMIT ? OFFSET ?`), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
