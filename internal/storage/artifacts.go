package storage

import (
	"database/sql"
	"errors"
)

// PutArtifact stages payload under jobID, replacing any previous value.
func (s *Store) PutArtifact(jobID string, payload []byte) error {
	_, err := s.db.Exec(s.rebind(`
		INSERT INTO staged_artifacts (job_id, payload, created_at) VALUES (?, ?, ?)
		ON CONFLICT (job_id) DO UPDATE SET payload = excluded.payload, created_at = excluded.created_at`),
		jobID, string(payload), now(),
	)
	return err
}

func (s *Store) GetArtifact(jobID string) ([]byte, error) {
	var payload string
	err := s.db.QueryRow(s.rebind(`SELECT payload FROM staged_artifacts WHERE job_id = ?`), jobID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return []byte(payload), nil
}

// DeleteArtifact removes the staged payload; a missing row is not an error.
func (s *Store) DeleteArtifact(jobID string) error {
	_, err := s.db.Exec(s.rebind(`DELETE FROM staged_artifacts WHERE job_id = ?`), jobID)
	return err
}
