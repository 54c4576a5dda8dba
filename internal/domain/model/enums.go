package model

import "strings"

// Platform identifies the external source-control system a record came from.
type Platform string

const (
	PlatformGitHub Platform = "github"
	PlatformGitLab Platform = "gitlab"
	PlatformAzure  Platform = "azure"
)

// PRStatus represents the state of a pull request.
type PRStatus string

const (
	PRStatusOpen   PRStatus = "open"
	PRStatusClosed PRStatus = "closed"
	PRStatusMerged PRStatus = "merged"
	PRStatusDraft  PRStatus = "draft"
)

// ParsePRStatus maps a platform state string plus merge/draft flags to a PRStatus.
// A merged pull request is always PRStatusMerged regardless of the reported state.
func ParsePRStatus(state string, merged, draft bool) PRStatus {
	switch strings.ToLower(state) {
	case "closed":
		if merged {
			return PRStatusMerged
		}
		return PRStatusClosed
	case "open":
		if draft {
			return PRStatusDraft
		}
		return PRStatusOpen
	default:
		if merged {
			return PRStatusMerged
		}
		return PRStatusOpen
	}
}

// MetricKind names a cached per-developer statistic.
type MetricKind string

const (
	MetricCommits             MetricKind = "commits"
	MetricPullRequests        MetricKind = "pull_requests"
	MetricCodeReviews         MetricKind = "code_reviews"
	MetricIssuesClosed        MetricKind = "issues_closed"
	MetricLinesAdded          MetricKind = "lines_added"
	MetricLinesRemoved        MetricKind = "lines_removed"
	MetricActiveDays          MetricKind = "active_days"
	MetricAverageResponseTime MetricKind = "average_response_time"
)

// LeaderboardMetric selects the ranking dimension of a leaderboard.
type LeaderboardMetric string

const (
	LeaderboardCommits      LeaderboardMetric = "commits"
	LeaderboardPullRequests LeaderboardMetric = "pull_requests"
	LeaderboardLinesChanged LeaderboardMetric = "lines_changed"
	LeaderboardActiveDays   LeaderboardMetric = "active_days"
)

// Valid reports whether m is one of the known leaderboard metrics.
func (m LeaderboardMetric) Valid() bool {
	switch m {
	case LeaderboardCommits, LeaderboardPullRequests, LeaderboardLinesChanged, LeaderboardActiveDays:
		return true
	default:
		return false
	}
}
