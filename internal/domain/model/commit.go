package model

import "time"

// Commit is a persisted commit. (SHA, RepositoryID) is the natural key.
type Commit struct {
	ID           int64
	RepositoryID int64
	DeveloperID  int64
	SHA          string
	Message      string
	LinesAdded   int
	LinesRemoved int
	FilesChanged int
	CommittedAt  time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// LinesChanged returns added plus removed lines.
func (c Commit) LinesChanged() int {
	return c.LinesAdded + c.LinesRemoved
}
