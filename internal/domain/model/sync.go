package model

import (
	"encoding/json"
	"math"
	"time"
)

// SyncPhase is the state of an account's sync run.
type SyncPhase string

const (
	SyncIdle            SyncPhase = "idle"
	SyncingRepositories SyncPhase = "syncing_repositories"
	SyncingCommits      SyncPhase = "syncing_commits"
	SyncingPullRequests SyncPhase = "syncing_pull_requests"
)

// ReconcileCounts tallies the outcome of one reconciliation pass.
type ReconcileCounts struct {
	Added   int `json:"added"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
}

// Add accumulates other into c.
func (c *ReconcileCounts) Add(other ReconcileCounts) {
	c.Added += other.Added
	c.Updated += other.Updated
	c.Skipped += other.Skipped
}

// Total returns the number of records written.
func (c ReconcileCounts) Total() int {
	return c.Added + c.Updated
}

// RepositoryFailure records one repository that failed inside a multi-repository run.
type RepositoryFailure struct {
	RepositoryID int64     `json:"repository_id"`
	FullName     string    `json:"full_name"`
	Phase        SyncPhase `json:"phase"`
	ErrorKind    ErrorKind `json:"error_kind"`
	Error        string    `json:"error"`
}

// SyncResult is the summary returned by every sync entry point.
// Success is false only when the run as a whole failed; Partial marks runs
// where some repositories failed.
type SyncResult struct {
	RunID              string              `json:"run_id"`
	AccountID          int64               `json:"account_id,omitempty"`
	RepositoryID       int64               `json:"repository_id,omitempty"`
	Success            bool                `json:"success"`
	Partial            bool                `json:"partial"`
	Repositories       ReconcileCounts     `json:"repositories"`
	Commits            ReconcileCounts     `json:"commits"`
	PullRequests       ReconcileCounts     `json:"pull_requests"`
	RepositoriesSynced int                 `json:"repositories_synced"`
	FailedRepositories []RepositoryFailure `json:"failed_repositories,omitempty"`
	ErrorKind          ErrorKind           `json:"error_kind,omitempty"`
	Error              string              `json:"error,omitempty"`
	RetryAfter         time.Duration       `json:"-"`
	StartedAt          time.Time           `json:"started_at"`
	FinishedAt         time.Time           `json:"finished_at"`
}

type syncResultJSON SyncResult

// MarshalJSON reports RetryAfter as whole seconds, rounded up, matching the
// Retry-After header.
func (r SyncResult) MarshalJSON() ([]byte, error) {
	var secs int64
	if r.RetryAfter > 0 {
		secs = int64(math.Ceil(r.RetryAfter.Seconds()))
	}
	return json.Marshal(struct {
		syncResultJSON
		RetryAfterSeconds int64 `json:"retry_after_seconds,omitempty"`
	}{syncResultJSON(r), secs})
}

// UnmarshalJSON reads the form written by MarshalJSON.
func (r *SyncResult) UnmarshalJSON(data []byte) error {
	var v struct {
		syncResultJSON
		RetryAfterSeconds int64 `json:"retry_after_seconds"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*r = SyncResult(v.syncResultJSON)
	r.RetryAfter = time.Duration(v.RetryAfterSeconds) * time.Second
	return nil
}

// Fail marks the whole run as failed with err.
func (r *SyncResult) Fail(err error) {
	r.Success = false
	r.ErrorKind = KindOf(err)
	r.Error = err.Error()
	r.RetryAfter = RetryAfterOf(err)
}

// SyncStatus is the observable state of an account's sync.
type SyncStatus struct {
	AccountID  int64       `json:"account_id"`
	Phase      SyncPhase   `json:"phase"`
	RunID      string      `json:"run_id,omitempty"`
	Repository string      `json:"repository,omitempty"`
	StartedAt  *time.Time  `json:"started_at,omitempty"`
	LastResult *SyncResult `json:"last_result,omitempty"`
}

// MetricsRunResult is the tally of a metrics recomputation over many developers.
type MetricsRunResult struct {
	RunID     string    `json:"run_id"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	FailedIDs []int64   `json:"failed_developer_ids,omitempty"`
	Success   bool      `json:"success"`
	ErrorKind ErrorKind `json:"error_kind,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// EventType names a notification sent to the real-time layer.
type EventType string

const (
	EventSyncStarted    EventType = "sync_started"
	EventSyncCompleted  EventType = "sync_completed"
	EventMetricsUpdated EventType = "metrics_updated"
)

// Event is a best-effort notification. AccountID zero addresses every subscriber.
type Event struct {
	Type      EventType `json:"type"`
	AccountID int64     `json:"account_id,omitempty"`
	Payload   any       `json:"payload,omitempty"`
	At        time.Time `json:"at"`
}
