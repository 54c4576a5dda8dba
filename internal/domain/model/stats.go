package model

import (
	"fmt"
	"time"
)

// Trend is the direction of commit activity between the two halves of a range.
type Trend int

const (
	TrendDown   Trend = -1
	TrendStable Trend = 0
	TrendUp     Trend = 1
)

// VelocityWeek is one Monday-aligned week bucket.
type VelocityWeek struct {
	WeekStart    time.Time `json:"week_start"`
	Commits      int       `json:"commits"`
	LinesAdded   int       `json:"lines_added"`
	LinesRemoved int       `json:"lines_removed"`
	PRsMerged    int       `json:"prs_merged"`
	ActiveDays   int       `json:"active_days"`
}

// Velocity summarizes commit and merge activity per week over [Start, End).
type Velocity struct {
	Start                 time.Time      `json:"start"`
	End                   time.Time      `json:"end"`
	Weeks                 []VelocityWeek `json:"weeks"`
	TotalCommits          int            `json:"total_commits"`
	TotalLinesAdded       int            `json:"total_lines_added"`
	TotalLinesRemoved     int            `json:"total_lines_removed"`
	TotalLinesChanged     int            `json:"total_lines_changed"`
	TotalPRsMerged        int            `json:"total_prs_merged"`
	AverageCommitsPerWeek float64        `json:"average_commits_per_week"`
	AverageLinesPerWeek   float64        `json:"average_lines_per_week"`
	AveragePRsPerWeek     float64        `json:"average_prs_per_week"`
	WeeksAnalyzed         int            `json:"weeks_analyzed"`
	Trend                 Trend          `json:"trend"`
	TrendPercent          float64        `json:"trend_percent"`
}

// ReviewOutcome distinguishes the three shapes of a review-time result.
type ReviewOutcome string

const (
	// ReviewEmpty means no pull requests were in range.
	ReviewEmpty ReviewOutcome = "empty"
	// ReviewNoMerges means pull requests exist but none merged.
	ReviewNoMerges ReviewOutcome = "no_merges"
	ReviewComputed ReviewOutcome = "computed"
)

// ReviewTime reports hours-to-merge statistics over merged pull requests.
type ReviewTime struct {
	Outcome          ReviewOutcome `json:"outcome"`
	TotalPRsAnalyzed int           `json:"total_prs_analyzed"`
	MergedPRs        int           `json:"merged_prs"`
	MergeRatePercent float64       `json:"merge_rate_percent"`
	AverageHours     float64       `json:"average_hours"`
	MedianHours      float64       `json:"median_hours"`
	MinHours         float64       `json:"min_hours"`
	MaxHours         float64       `json:"max_hours"`
}

// HeatLevel is the discrete intensity of one heatmap day.
type HeatLevel int

const (
	HeatNone HeatLevel = iota
	HeatLow
	HeatMedium
	HeatHigh
	HeatMax
)

func (l HeatLevel) String() string {
	switch l {
	case HeatLow:
		return "low"
	case HeatMedium:
		return "medium"
	case HeatHigh:
		return "high"
	case HeatMax:
		return "max"
	default:
		return "none"
	}
}

// MarshalText renders the level by name in JSON payloads.
func (l HeatLevel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText parses a level name written by MarshalText.
func (l *HeatLevel) UnmarshalText(text []byte) error {
	switch string(text) {
	case "none":
		*l = HeatNone
	case "low":
		*l = HeatLow
	case "medium":
		*l = HeatMedium
	case "high":
		*l = HeatHigh
	case "max":
		*l = HeatMax
	default:
		return fmt.Errorf("unknown heat level %q", text)
	}
	return nil
}

// HeatmapDay is one calendar day of a contribution heatmap.
type HeatmapDay struct {
	Date  time.Time `json:"date"`
	Count int       `json:"count"`
	Level HeatLevel `json:"level"`
}

// Heatmap covers every day of [Start, End] inclusive.
type Heatmap struct {
	Start        time.Time    `json:"start"`
	End          time.Time    `json:"end"`
	Days         []HeatmapDay `json:"days"`
	MaxCount     int          `json:"max_count"`
	TotalCommits int          `json:"total_commits"`
}

// LeaderboardEntry is one ranked developer.
type LeaderboardEntry struct {
	Rank         int     `json:"rank"`
	DeveloperID  int64   `json:"developer_id"`
	Name         string  `json:"name"`
	AvatarURL    string  `json:"avatar_url,omitempty"`
	Value        float64 `json:"value"`
	Commits      int     `json:"commits"`
	PullRequests int     `json:"pull_requests"`
	LinesChanged int     `json:"lines_changed"`
	ActiveDays   int     `json:"active_days"`
}

// CommitActivityDay is one day of a commit activity series.
type CommitActivityDay struct {
	Date         time.Time `json:"date"`
	Commits      int       `json:"commits"`
	LinesAdded   int       `json:"lines_added"`
	LinesRemoved int       `json:"lines_removed"`
}

// CommitActivity is a gap-free daily commit series over [Start, End].
type CommitActivity struct {
	Start         time.Time           `json:"start"`
	End           time.Time           `json:"end"`
	Days          []CommitActivityDay `json:"days"`
	TotalCommits  int                 `json:"total_commits"`
	AveragePerDay float64             `json:"average_per_day"`
}

// PRStatusBreakdown counts pull requests per status.
// AverageReviewHours is nil when no merged pull request has a positive duration.
type PRStatusBreakdown struct {
	Open               int      `json:"open"`
	Closed             int      `json:"closed"`
	Merged             int      `json:"merged"`
	Draft              int      `json:"draft"`
	Total              int      `json:"total"`
	AverageReviewHours *float64 `json:"average_review_hours,omitempty"`
}

// DeveloperSummary is the set of per-developer figures persisted as Metric rows.
type DeveloperSummary struct {
	Commits             int
	LinesAdded          int
	LinesRemoved        int
	PullRequests        int
	ActiveDays          int
	AverageResponseTime float64 // Mean hours-to-merge of merged pull requests.
}
