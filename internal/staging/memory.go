package staging

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kalambet/icebreaker/internal/apperr"
)

// MemoryStore is a process-local staging area bounded to a fixed number of
// entries. When full, the least recently used artifact is evicted.
type MemoryStore struct {
	cache *lru.Cache[string, []byte]
}

func NewMemoryStore(entries int) (*MemoryStore, error) {
	if entries <= 0 {
		entries = 256
	}
	cache, err := lru.New[string, []byte](entries)
	if err != nil {
		return nil, fmt.Errorf("creating staging cache: %w", err)
	}
	return &MemoryStore{cache: cache}, nil
}

func (s *MemoryStore) Put(_ context.Context, jobID string, payload []byte) error {
	if err := validateKey("staging.put", jobID); err != nil {
		return err
	}
	s.cache.Add(jobID, append([]byte(nil), payload...))
	return nil
}

func (s *MemoryStore) Get(_ context.Context, jobID string) ([]byte, error) {
	v, ok := s.cache.Get(jobID)
	if !ok {
		return nil, apperr.NotFound("staging.get", "no staged artifact for job %q", jobID)
	}
	return append([]byte(nil), v...), nil
}

func (s *MemoryStore) Delete(_ context.Context, jobID string) error {
	s.cache.Remove(jobID)
	return nil
}

// Len reports the number of staged artifacts.
func (s *MemoryStore) Len() int {
	return s.cache.Len()
}
