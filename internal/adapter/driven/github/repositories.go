package github

import (
	"context"

	gh "github.com/google/go-github/v82/github"

	"github.com/ericfisherdev/devmetrics/internal/domain/model"
)

// FetchRepositories lists every repository the authenticated account owns,
// collaborates on, or can see through an organization. It is always a full fetch.
func (c *Client) FetchRepositories(ctx context.Context) ([]model.FetchedRepository, error) {
	opts := &gh.RepositoryListByAuthenticatedUserOptions{
		Affiliation: "owner,collaborator,organization_member",
		Sort:        "updated",
		Direction:   "desc",
		ListOptions: gh.ListOptions{PerPage: perPage},
	}

	repos, err := collect(ctx, c, "list repositories", "user/repos",
		func(ctx context.Context, pageNum int) ([]*gh.Repository, *gh.Response, error) {
			opts.Page = pageNum
			return c.gh.Repositories.ListByAuthenticatedUser(ctx, opts)
		}, nil)
	if err != nil {
		return nil, err
	}

	out := make([]model.FetchedRepository, 0, len(repos))
	for _, r := range repos {
		out = append(out, mapRepository(r))
	}
	return out, nil
}
