package metrics

import (
	"time"

	"github.com/ericfisherdev/devmetrics/internal/domain/model"
)

// CommitActivity returns one entry per UTC day of [start, end], including
// days without commits.
func CommitActivity(commits []model.Commit, start, end time.Time) model.CommitActivity {
	first, last := dayOf(start), dayOf(end)
	ca := model.CommitActivity{Start: first, End: last, Days: []model.CommitActivityDay{}}
	if last.Before(first) {
		return ca
	}

	index := make(map[time.Time]int)
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		index[d] = len(ca.Days)
		ca.Days = append(ca.Days, model.CommitActivityDay{Date: d})
	}

	for _, c := range commits {
		i, ok := index[dayOf(c.CommittedAt)]
		if !ok {
			continue
		}
		ca.Days[i].Commits++
		ca.Days[i].LinesAdded += c.LinesAdded
		ca.Days[i].LinesRemoved += c.LinesRemoved
		ca.TotalCommits++
	}

	ca.AveragePerDay = round2(float64(ca.TotalCommits) / float64(len(ca.Days)))
	return ca
}

// PullRequestBreakdown counts prs per status. The average review time covers
// merged pull requests with a positive hours-to-merge only.
func PullRequestBreakdown(prs []model.PullRequest) model.PRStatusBreakdown {
	var b model.PRStatusBreakdown
	for _, pr := range prs {
		switch pr.Status {
		case model.PRStatusOpen:
			b.Open++
		case model.PRStatusClosed:
			b.Closed++
		case model.PRStatusMerged:
			b.Merged++
		case model.PRStatusDraft:
			b.Draft++
		}
	}
	b.Total = len(prs)

	if avg, ok := averageMergeHours(prs); ok {
		avg = round2(avg)
		b.AverageReviewHours = &avg
	}
	return b
}

// Summarize computes the per-developer figures persisted as metric rows.
// commits and prs must already be scoped to one developer and one range.
func Summarize(commits []model.Commit, prs []model.PullRequest) model.DeveloperSummary {
	s := model.DeveloperSummary{PullRequests: len(prs), Commits: len(commits)}

	days := make(map[time.Time]struct{})
	for _, c := range commits {
		s.LinesAdded += c.LinesAdded
		s.LinesRemoved += c.LinesRemoved
		days[dayOf(c.CommittedAt)] = struct{}{}
	}
	s.ActiveDays = len(days)
	s.AverageResponseTime, _ = averageMergeHours(prs)
	return s
}

// Metrics expands a summary into one metric row per kind, all stamped with at.
func Metrics(developerID int64, s model.DeveloperSummary, at time.Time, metadata string) []model.Metric {
	values := []struct {
		kind  model.MetricKind
		value float64
	}{
		{model.MetricCommits, float64(s.Commits)},
		{model.MetricLinesAdded, float64(s.LinesAdded)},
		{model.MetricLinesRemoved, float64(s.LinesRemoved)},
		{model.MetricPullRequests, float64(s.PullRequests)},
		{model.MetricActiveDays, float64(s.ActiveDays)},
		{model.MetricAverageResponseTime, s.AverageResponseTime},
	}

	out := make([]model.Metric, 0, len(values))
	for _, v := range values {
		out = append(out, model.Metric{
			DeveloperID: developerID,
			Kind:        v.kind,
			Value:       v.value,
			Timestamp:   at.UTC(),
			Metadata:    metadata,
		})
	}
	return out
}
