package metrics

import (
	"slices"
	"time"

	"github.com/ericfisherdev/devmetrics/internal/domain/model"
)

type contribution struct {
	developerID  int64
	commits      int
	pullRequests int
	linesChanged int
	days         map[time.Time]struct{}
}

func (c *contribution) value(metric model.LeaderboardMetric) int {
	switch metric {
	case model.LeaderboardPullRequests:
		return c.pullRequests
	case model.LeaderboardLinesChanged:
		return c.linesChanged
	case model.LeaderboardActiveDays:
		return len(c.days)
	default:
		return c.commits
	}
}

// Leaderboard ranks developers by metric over records the caller already
// bounded to a date range, and keeps the first topN (all when topN <= 0).
//
// Only developers with at least one record of the ranked kind appear: pull
// requests for LeaderboardPullRequests, commits otherwise. Ties keep the
// order in which developers first appear in the input.
func Leaderboard(
	metric model.LeaderboardMetric,
	commits []model.Commit,
	prs []model.PullRequest,
	developers map[int64]model.Developer,
	topN int,
) []model.LeaderboardEntry {
	byDev := make(map[int64]*contribution)
	var order []*contribution
	get := func(id int64) *contribution {
		c, ok := byDev[id]
		if !ok {
			c = &contribution{developerID: id, days: make(map[time.Time]struct{})}
			byDev[id] = c
			order = append(order, c)
		}
		return c
	}

	// The ranked kind is walked first so it decides group order.
	addCommits := func() {
		for _, cm := range commits {
			c := get(cm.DeveloperID)
			c.commits++
			c.linesChanged += cm.LinesChanged()
			c.days[dayOf(cm.CommittedAt)] = struct{}{}
		}
	}
	addPRs := func() {
		for _, pr := range prs {
			get(pr.AuthorID).pullRequests++
		}
	}
	if metric == model.LeaderboardPullRequests {
		addPRs()
		addCommits()
	} else {
		addCommits()
		addPRs()
	}

	ranked := slices.DeleteFunc(order, func(c *contribution) bool {
		if metric == model.LeaderboardPullRequests {
			return c.pullRequests == 0
		}
		return c.commits == 0
	})
	slices.SortStableFunc(ranked, func(a, b *contribution) int {
		return b.value(metric) - a.value(metric)
	})
	if topN > 0 && len(ranked) > topN {
		ranked = ranked[:topN]
	}

	entries := make([]model.LeaderboardEntry, 0, len(ranked))
	for i, c := range ranked {
		dev := developers[c.developerID]
		entries = append(entries, model.LeaderboardEntry{
			Rank:         i + 1,
			DeveloperID:  c.developerID,
			Name:         dev.Name(),
			AvatarURL:    dev.AvatarURL,
			Value:        float64(c.value(metric)),
			Commits:      c.commits,
			PullRequests: c.pullRequests,
			LinesChanged: c.linesChanged,
			ActiveDays:   len(c.days),
		})
	}
	return entries
}
