// Package staging holds the transient artifact that bridges collection and
// analysis: one raw payload per job ID, written once when the collection
// job is ready, read once by analysis, then deleted.
package staging

import (
	"context"
	"fmt"
	"strings"

	"github.com/kalambet/icebreaker/internal/apperr"
	"github.com/kalambet/icebreaker/internal/storage"
)

// Store is a key-value staging area keyed by job ID.
type Store interface {
	// Put stores payload under jobID, overwriting any previous value.
	Put(ctx context.Context, jobID string, payload []byte) error
	// Get returns the staged payload or an apperr.ErrNotFound error.
	Get(ctx context.Context, jobID string) ([]byte, error)
	// Delete removes the payload. Deleting a missing key is not an error.
	Delete(ctx context.Context, jobID string) error
}

// Options selects and configures a backend.
type Options struct {
	Backend       string // file, memory, sql, s3
	Dir           string
	MemoryEntries int
	SQL           *storage.Store
	S3            S3Config
}

// Open builds the configured backend.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case "", "file":
		return NewFileStore(opts.Dir)
	case "memory":
		return NewMemoryStore(opts.MemoryEntries)
	case "sql":
		if opts.SQL == nil {
			return nil, fmt.Errorf("staging backend %q requires a SQL store", opts.Backend)
		}
		return NewSQLStore(opts.SQL), nil
	case "s3":
		return NewS3Store(opts.S3)
	default:
		return nil, fmt.Errorf("unknown staging backend %q", opts.Backend)
	}
}

// validateKey rejects IDs that cannot safely name a file or object.
func validateKey(op, jobID string) error {
	if strings.TrimSpace(jobID) == "" {
		return apperr.InvalidInput(op, "job id is required")
	}
	if strings.ContainsAny(jobID, `/\`) || strings.Contains(jobID, "..") {
		return apperr.InvalidInput(op, "invalid job id %q", jobID)
	}
	return nil
}
