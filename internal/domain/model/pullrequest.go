package model

import "time"

// PullRequest is a persisted pull request. (Number, RepositoryID) is the natural key.
type PullRequest struct {
	ID           int64
	RepositoryID int64
	AuthorID     int64
	Number       int
	Title        string
	Description  string
	URL          string
	Status       PRStatus
	Additions    int
	Deletions    int
	ChangedFiles int
	CreatedAt    time.Time // Opened on the platform.
	UpdatedAt    time.Time // Last updated on the platform.
	ClosedAt     *time.Time
	MergedAt     *time.Time
}

// IsMerged reports whether the pull request is merged with a known merge time.
func (pr PullRequest) IsMerged() bool {
	return pr.Status == PRStatusMerged && pr.MergedAt != nil
}

// TimeToMerge returns the duration between opening and merging.
// ok is false when the pull request is not merged.
func (pr PullRequest) TimeToMerge() (d time.Duration, ok bool) {
	if !pr.IsMerged() {
		return 0, false
	}
	return pr.MergedAt.Sub(pr.CreatedAt), true
}
