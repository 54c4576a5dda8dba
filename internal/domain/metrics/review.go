package metrics

import (
	"slices"

	"github.com/ericfisherdev/devmetrics/internal/domain/model"
)

// ReviewTime computes hours-to-merge statistics over prs, which the caller
// has already bounded to a date range. Merges with a non-positive duration
// count toward the merge rate but not toward timing.
//
// No pull requests yields ReviewEmpty. Pull requests without any merge yield
// ReviewNoMerges, with TotalPRsAnalyzed set and all timing fields zero.
func ReviewTime(prs []model.PullRequest) model.ReviewTime {
	if len(prs) == 0 {
		return model.ReviewTime{Outcome: model.ReviewEmpty}
	}

	res := model.ReviewTime{TotalPRsAnalyzed: len(prs)}
	hours := make([]float64, 0, len(prs))
	for _, pr := range prs {
		d, ok := pr.TimeToMerge()
		if !ok {
			continue
		}
		res.MergedPRs++
		if d > 0 {
			hours = append(hours, d.Hours())
		}
	}

	if res.MergedPRs == 0 {
		res.Outcome = model.ReviewNoMerges
		return res
	}

	res.Outcome = model.ReviewComputed
	res.MergeRatePercent = float64(res.MergedPRs) / float64(res.TotalPRsAnalyzed) * 100
	if len(hours) == 0 {
		return res
	}

	slices.Sort(hours)
	res.AverageHours = mean(hours)
	res.MedianHours = median(hours)
	res.MinHours = hours[0]
	res.MaxHours = hours[len(hours)-1]
	return res
}

// median expects sorted input.
func median(sorted []float64) float64 {
	n := len(sorted)
	switch {
	case n == 0:
		return 0
	case n%2 == 0:
		return (sorted[n/2-1] + sorted[n/2]) / 2
	default:
		return sorted[n/2]
	}
}

// averageMergeHours is the mean positive hours-to-merge of prs, and false
// when no merged pull request has a positive duration.
func averageMergeHours(prs []model.PullRequest) (float64, bool) {
	var hours []float64
	for _, pr := range prs {
		if d, ok := pr.TimeToMerge(); ok && d > 0 {
			hours = append(hours, d.Hours())
		}
	}
	if len(hours) == 0 {
		return 0, false
	}
	return mean(hours), true
}
