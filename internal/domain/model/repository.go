package model

import "time"

// Repository represents one tracked external project.
// (ExternalID, Platform) is the natural key.
type Repository struct {
	ID              int64
	AccountID       int64 // Account whose repository listing last included this repository.
	Platform        Platform
	ExternalID      string
	Name            string
	FullName        string // "owner/name"
	Description     string
	URL             string
	DefaultBranch   string
	Language        string
	IsPrivate       bool
	IsFork          bool
	IsActive        bool
	StargazersCount int
	ForksCount      int
	OpenIssuesCount int
	PushedAt        *time.Time
	LastSyncedAt    *time.Time // nil means never synced.
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Owner returns the owner segment of FullName.
func (r Repository) Owner() string {
	owner, _, _ := SplitFullName(r.FullName)
	return owner
}

// Project returns the project segment of FullName.
func (r Repository) Project() string {
	_, project, _ := SplitFullName(r.FullName)
	return project
}
