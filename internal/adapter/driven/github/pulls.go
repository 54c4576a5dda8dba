package github

import (
	"context"
	"time"

	gh "github.com/google/go-github/v82/github"

	"github.com/ericfisherdev/devmetrics/internal/domain/model"
)

// FetchPullRequests lists pull requests of owner/project in every state,
// most recently updated first. With a non-nil since the walk stops at the
// first pull request last updated before it.
func (c *Client) FetchPullRequests(ctx context.Context, owner, project string, since *time.Time) ([]model.FetchedPullRequest, error) {
	opts := &gh.PullRequestListOptions{
		State:       "all",
		Sort:        "updated",
		Direction:   "desc",
		ListOptions: gh.ListOptions{PerPage: perPage},
	}

	var stop func(*gh.PullRequest) bool
	if since != nil {
		cutoff := since.UTC()
		stop = func(pr *gh.PullRequest) bool {
			return pr.GetUpdatedAt().Before(cutoff)
		}
	}

	prs, err := collect(ctx, c, "list pull requests", owner+"/"+project,
		func(ctx context.Context, pageNum int) ([]*gh.PullRequest, *gh.Response, error) {
			opts.Page = pageNum
			return c.gh.PullRequests.List(ctx, owner, project, opts)
		}, stop)
	if err != nil {
		return nil, err
	}

	out := make([]model.FetchedPullRequest, 0, len(prs))
	for _, pr := range prs {
		out = append(out, mapPullRequest(pr))
	}
	return out, nil
}
