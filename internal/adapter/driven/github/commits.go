package github

import (
	"context"
	"fmt"
	"net/http"
	"time"

	gh "github.com/google/go-github/v82/github"

	"github.com/ericfisherdev/devmetrics/internal/domain/model"
	"github.com/ericfisherdev/devmetrics/internal/resilience"
)

// FetchCommits lists commits on the default branch of owner/project, newest
// first. A non-nil since restricts the listing to commits at or after it.
// When commit stats are enabled each commit is fetched individually for its
// line and file counts; otherwise those counts are zero.
func (c *Client) FetchCommits(ctx context.Context, owner, project string, since *time.Time) ([]model.FetchedCommit, error) {
	fullName := owner + "/" + project
	opts := &gh.CommitsListOptions{
		ListOptions: gh.ListOptions{PerPage: perPage},
	}
	if since != nil {
		opts.Since = since.UTC()
	}

	commits, err := collect(ctx, c, "list commits", fullName,
		func(ctx context.Context, pageNum int) ([]*gh.RepositoryCommit, *gh.Response, error) {
			opts.Page = pageNum
			batch, resp, err := c.gh.Repositories.ListCommits(ctx, owner, project, opts)
			// An empty repository answers 409 Conflict.
			if statusCode(err) == http.StatusConflict {
				return nil, nil, nil
			}
			return batch, resp, err
		}, nil)
	if err != nil {
		return nil, err
	}

	out := make([]model.FetchedCommit, 0, len(commits))
	for _, rc := range commits {
		if c.commitStats {
			detailed, err := c.fetchCommitDetail(ctx, owner, project, rc.GetSHA())
			if err != nil {
				return nil, err
			}
			rc = detailed
		}
		out = append(out, mapCommit(rc))
	}
	return out, nil
}

func (c *Client) fetchCommitDetail(ctx context.Context, owner, project, sha string) (*gh.RepositoryCommit, error) {
	rc, err := resilience.Do(ctx, c.policy, "get commit", func(ctx context.Context) (*gh.RepositoryCommit, error) {
		if err := c.pace(ctx); err != nil {
			return nil, err
		}
		rc, resp, err := c.gh.Repositories.GetCommit(ctx, owner, project, sha, nil)
		if err != nil {
			return nil, translateError(err)
		}
		c.logRateLimit(resp, owner+"/"+project+"@"+sha, 0, 1)
		return rc, nil
	})
	if err != nil {
		return nil, fmt.Errorf("get commit %s/%s@%s: %w", owner, project, sha, err)
	}
	return rc, nil
}
