package metrics

import (
	"time"

	"github.com/ericfisherdev/devmetrics/internal/domain/model"
)

// trendWeeks is the minimum number of week buckets needed to report a trend.
const trendWeeks = 4

// trendThreshold is the percent change between halves that counts as a trend.
const trendThreshold = 5.0

// Velocity buckets commits and merged pull requests into Monday-aligned weeks
// covering [start, end). Records outside the range are ignored.
func Velocity(commits []model.Commit, prs []model.PullRequest, start, end time.Time) model.Velocity {
	start, end = start.UTC(), end.UTC()
	v := model.Velocity{Start: start, End: end, Weeks: []model.VelocityWeek{}}

	first := weekStart(start)
	for ws := first; ws.Before(end); ws = ws.AddDate(0, 0, 7) {
		v.Weeks = append(v.Weeks, model.VelocityWeek{WeekStart: ws})
	}

	activeDays := make(map[int]map[time.Time]struct{})
	for _, c := range commits {
		if !within(c.CommittedAt, start, end) {
			continue
		}
		v.TotalCommits++
		v.TotalLinesAdded += c.LinesAdded
		v.TotalLinesRemoved += c.LinesRemoved

		i := weekIndex(first, c.CommittedAt)
		if i < 0 || i >= len(v.Weeks) {
			continue
		}
		w := &v.Weeks[i]
		w.Commits++
		w.LinesAdded += c.LinesAdded
		w.LinesRemoved += c.LinesRemoved
		if activeDays[i] == nil {
			activeDays[i] = make(map[time.Time]struct{})
		}
		activeDays[i][dayOf(c.CommittedAt)] = struct{}{}
	}
	for i, days := range activeDays {
		v.Weeks[i].ActiveDays = len(days)
	}

	for _, pr := range prs {
		if !pr.IsMerged() || !within(*pr.MergedAt, start, end) {
			continue
		}
		v.TotalPRsMerged++
		if i := weekIndex(first, *pr.MergedAt); i >= 0 && i < len(v.Weeks) {
			v.Weeks[i].PRsMerged++
		}
	}

	v.TotalLinesChanged = v.TotalLinesAdded + v.TotalLinesRemoved
	v.WeeksAnalyzed = len(v.Weeks)

	commitsPerWeek := make([]float64, len(v.Weeks))
	linesPerWeek := make([]float64, len(v.Weeks))
	prsPerWeek := make([]float64, len(v.Weeks))
	for i, w := range v.Weeks {
		commitsPerWeek[i] = float64(w.Commits)
		linesPerWeek[i] = float64(w.LinesAdded + w.LinesRemoved)
		prsPerWeek[i] = float64(w.PRsMerged)
	}
	v.AverageCommitsPerWeek = mean(commitsPerWeek)
	v.AverageLinesPerWeek = mean(linesPerWeek)
	v.AveragePRsPerWeek = mean(prsPerWeek)
	v.Trend, v.TrendPercent = commitTrend(commitsPerWeek)

	return v
}

func weekIndex(first, t time.Time) int {
	return int(weekStart(t).Sub(first) / (7 * day))
}

// commitTrend compares the mean weekly commits of the first half of the
// buckets with the second half. Fewer than trendWeeks buckets is always stable.
func commitTrend(weekly []float64) (model.Trend, float64) {
	if len(weekly) < trendWeeks {
		return model.TrendStable, 0
	}

	half := len(weekly) / 2
	firstHalf := mean(weekly[:half])
	secondHalf := mean(weekly[half:])

	if firstHalf == 0 {
		if secondHalf > 0 {
			return model.TrendUp, 0
		}
		return model.TrendStable, 0
	}

	change := (secondHalf - firstHalf) / firstHalf * 100
	switch {
	case change > trendThreshold:
		return model.TrendUp, change
	case change < -trendThreshold:
		return model.TrendDown, change
	default:
		return model.TrendStable, change
	}
}
