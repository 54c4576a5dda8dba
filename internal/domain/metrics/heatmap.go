package metrics

import (
	"time"

	"github.com/ericfisherdev/devmetrics/internal/domain/model"
)

// Level buckets a day's count as a percentage of the period maximum.
// Zero counts and an empty period are always HeatNone.
func Level(count, maxCount int) model.HeatLevel {
	if count <= 0 || maxCount <= 0 {
		return model.HeatNone
	}

	pct := float64(count) / float64(maxCount) * 100
	switch {
	case pct <= 25:
		return model.HeatLow
	case pct <= 50:
		return model.HeatMedium
	case pct <= 75:
		return model.HeatHigh
	default:
		return model.HeatMax
	}
}

// Heatmap counts commits for every calendar day of [start, end], both ends
// inclusive and truncated to UTC days.
func Heatmap(commits []model.Commit, start, end time.Time) model.Heatmap {
	first, last := dayOf(start), dayOf(end)
	hm := model.Heatmap{Start: first, End: last, Days: []model.HeatmapDay{}}
	if last.Before(first) {
		return hm
	}

	counts := make(map[time.Time]int)
	for _, c := range commits {
		d := dayOf(c.CommittedAt)
		if d.Before(first) || d.After(last) {
			continue
		}
		counts[d]++
		hm.TotalCommits++
	}

	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		n := counts[d]
		hm.MaxCount = max(hm.MaxCount, n)
		hm.Days = append(hm.Days, model.HeatmapDay{Date: d, Count: n})
	}
	for i := range hm.Days {
		hm.Days[i].Level = Level(hm.Days[i].Count, hm.MaxCount)
	}
	return hm
}
