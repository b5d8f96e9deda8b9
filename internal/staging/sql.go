package staging

import (
	"context"
	"errors"
	"fmt"

	"github.com/kalambet/icebreaker/internal/apperr"
	"github.com/kalambet/icebreaker/internal/storage"
)

// SQLStore stages artifacts in the staged_artifacts table.
type SQLStore struct {
	db *storage.Store
}

func NewSQLStore(db *storage.Store) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Put(_ context.Context, jobID string, payload []byte) error {
	if err := validateKey("staging.put", jobID); err != nil {
		return err
	}
	if err := s.db.PutArtifact(jobID, payload); err != nil {
		return fmt.Errorf("staging artifact: %w", err)
	}
	return nil
}

func (s *SQLStore) Get(_ context.Context, jobID string) ([]byte, error) {
	data, err := s.db.GetArtifact(jobID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.NotFound("staging.get", "no staged artifact for job %q", jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("loading staged artifact: %w", err)
	}
	return data, nil
}

func (s *SQLStore) Delete(_ context.Context, jobID string) error {
	if err := s.db.DeleteArtifact(jobID); err != nil {
		return fmt.Errorf("deleting staged artifact: %w", err)
	}
	return nil
}
