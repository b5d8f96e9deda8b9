package collect

import "encoding/json"

// ProfileRef identifies one profile to collect.
type ProfileRef struct {
	URL string `json:"url"`
}

// Status is the provider-side state of a collection job, recomputed on
// every poll.
type Status string

const (
	StatusRunning Status = "running"
	StatusReady   Status = "ready"
	StatusFailed  Status = "failed"
)

// Snapshot is the result of a single status poll.
type Snapshot struct {
	Status  Status
	Message string
	Payload json.RawMessage
}

type triggerResponse struct {
	SnapshotID string `json:"snapshot_id"`
	Error      string `json:"error,omitempty"`
}

type statusBody struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Error   string `json:"error"`
}
