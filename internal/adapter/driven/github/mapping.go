package github

import (
	"strconv"
	"time"

	gh "github.com/google/go-github/v82/github"

	"github.com/ericfisherdev/devmetrics/internal/domain/model"
)

func mapRepository(r *gh.Repository) model.FetchedRepository {
	return model.FetchedRepository{
		ExternalID:      strconv.FormatInt(r.GetID(), 10),
		Platform:        model.PlatformGitHub,
		Name:            r.GetName(),
		FullName:        r.GetFullName(),
		Description:     r.GetDescription(),
		URL:             r.GetHTMLURL(),
		DefaultBranch:   r.GetDefaultBranch(),
		Language:        r.GetLanguage(),
		IsPrivate:       r.GetPrivate(),
		IsFork:          r.GetFork(),
		StargazersCount: r.GetStargazersCount(),
		ForksCount:      r.GetForksCount(),
		OpenIssuesCount: r.GetOpenIssuesCount(),
		PushedAt:        optionalTime(r.GetPushedAt()),
	}
}

// mapCommit flattens a commit. Committed-at falls back to the author date when
// the committer date is missing. Stats are zero unless the detail endpoint filled them.
func mapCommit(rc *gh.RepositoryCommit) model.FetchedCommit {
	commit := rc.GetCommit()
	author := commit.GetAuthor()
	committer := commit.GetCommitter()

	authoredAt := author.GetDate().Time.UTC()
	committedAt := committer.GetDate().Time.UTC()
	if committedAt.IsZero() {
		committedAt = authoredAt
	}

	return model.FetchedCommit{
		SHA:            rc.GetSHA(),
		Message:        commit.GetMessage(),
		AuthorName:     author.GetName(),
		AuthorEmail:    author.GetEmail(),
		AuthorLogin:    rc.GetAuthor().GetLogin(),
		AuthorAvatar:   rc.GetAuthor().GetAvatarURL(),
		CommitterName:  committer.GetName(),
		CommitterEmail: committer.GetEmail(),
		AuthoredAt:     authoredAt,
		CommittedAt:    committedAt,
		LinesAdded:     rc.GetStats().GetAdditions(),
		LinesRemoved:   rc.GetStats().GetDeletions(),
		FilesChanged:   len(rc.Files),
	}
}

func mapPullRequest(pr *gh.PullRequest) model.FetchedPullRequest {
	return model.FetchedPullRequest{
		Number:       pr.GetNumber(),
		Title:        pr.GetTitle(),
		Description:  pr.GetBody(),
		URL:          pr.GetHTMLURL(),
		State:        pr.GetState(),
		Draft:        pr.GetDraft(),
		Merged:       pr.GetMerged() || !pr.GetMergedAt().IsZero(),
		AuthorLogin:  pr.GetUser().GetLogin(),
		AuthorAvatar: pr.GetUser().GetAvatarURL(),
		Additions:    pr.GetAdditions(),
		Deletions:    pr.GetDeletions(),
		ChangedFiles: pr.GetChangedFiles(),
		CreatedAt:    pr.GetCreatedAt().Time.UTC(),
		UpdatedAt:    pr.GetUpdatedAt().Time.UTC(),
		ClosedAt:     optionalTime(pr.GetClosedAt()),
		MergedAt:     optionalTime(pr.GetMergedAt()),
	}
}

func optionalTime(ts gh.Timestamp) *time.Time {
	if ts.IsZero() {
		return nil
	}
	t := ts.Time.UTC()
	return &t
}
