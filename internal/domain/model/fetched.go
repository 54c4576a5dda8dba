package model

import "time"

// The Fetched* types are the flattened, platform-neutral records produced by
// fetch clients. Timestamps are UTC and missing counts are zero.

// FetchedRepository is one entry of an account's repository listing.
type FetchedRepository struct {
	ExternalID      string
	Platform        Platform
	Name            string
	FullName        string
	Description     string
	URL             string
	DefaultBranch   string
	Language        string
	IsPrivate       bool
	IsFork          bool
	StargazersCount int
	ForksCount      int
	OpenIssuesCount int
	PushedAt        *time.Time
}

// FetchedCommit is one commit with optional change statistics.
type FetchedCommit struct {
	SHA            string
	Message        string
	AuthorName     string
	AuthorEmail    string
	AuthorLogin    string // Empty when the platform has not linked the email to an account.
	AuthorAvatar   string
	CommitterName  string
	CommitterEmail string
	AuthoredAt     time.Time
	CommittedAt    time.Time
	LinesAdded     int
	LinesRemoved   int
	FilesChanged   int
}

// FetchedPullRequest is one pull request in its latest platform state.
type FetchedPullRequest struct {
	Number       int
	Title        string
	Description  string
	URL          string
	State        string
	Draft        bool
	Merged       bool
	AuthorLogin  string
	AuthorAvatar string
	Additions    int
	Deletions    int
	ChangedFiles int
	CreatedAt    time.Time
	UpdatedAt    time.Time
	ClosedAt     *time.Time
	MergedAt     *time.Time
}

// Status derives the domain status from the platform state flags.
func (p FetchedPullRequest) Status() PRStatus {
	return ParsePRStatus(p.State, p.Merged || p.MergedAt != nil, p.Draft)
}
