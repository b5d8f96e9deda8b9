package staging

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kalambet/icebreaker/internal/apperr"
)

// FileStore keeps one <jobID>.json file per staged artifact.
type FileStore struct {
	dir string
}

// NewFileStore creates dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "icebreaker-staging")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating staging directory %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(jobID string) string {
	return filepath.Join(s.dir, jobID+".json")
}

func (s *FileStore) Put(_ context.Context, jobID string, payload []byte) error {
	if err := validateKey("staging.put", jobID); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, jobID+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating staging file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing staging file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing staging file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path(jobID)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming staging file: %w", err)
	}
	return nil
}

func (s *FileStore) Get(_ context.Context, jobID string) ([]byte, error) {
	if err := validateKey("staging.get", jobID); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(jobID))
	if os.IsNotExist(err) {
		return nil, apperr.NotFound("staging.get", "no staged artifact for job %q", jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("reading staging file: %w", err)
	}
	return data, nil
}

func (s *FileStore) Delete(_ context.Context, jobID string) error {
	if err := validateKey("staging.delete", jobID); err != nil {
		return err
	}
	if err := os.Remove(s.path(jobID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing staging file: %w", err)
	}
	return nil
}
