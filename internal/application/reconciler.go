package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ericfisherdev/devmetrics/internal/domain/model"
	"github.com/ericfisherdev/devmetrics/internal/domain/port/driven"
)

// Reconciler merges fetched records into the store by natural key. Each call
// is one pass in one transaction: either every record of the batch is
// persisted or none is. Counts are for reporting only.
type Reconciler struct {
	uow    driven.UnitOfWork
	logger *slog.Logger
}

// NewReconciler creates a Reconciler writing through uow.
func NewReconciler(uow driven.UnitOfWork, logger *slog.Logger) *Reconciler {
	return &Reconciler{uow: uow, logger: logger}
}

// Repositories upserts an account's repository listing keyed on
// (platform, external id) and returns the persisted rows in input order.
func (r *Reconciler) Repositories(ctx context.Context, accountID int64, fetched []model.FetchedRepository) ([]model.Repository, model.ReconcileCounts, error) {
	var counts model.ReconcileCounts
	repos := make([]model.Repository, 0, len(fetched))

	err := driven.WithinTx(ctx, r.uow, func(tx driven.Tx) error {
		store := tx.Repositories()
		for _, f := range fetched {
			if f.ExternalID == "" {
				counts.Skipped++
				continue
			}
			if f.Platform == "" {
				f.Platform = model.PlatformGitHub
			}

			existing, err := store.GetByExternalID(ctx, f.Platform, f.ExternalID)
			if err != nil {
				return err
			}

			if existing != nil {
				repo := applyRepository(*existing, f, accountID)
				if err := store.Update(ctx, repo); err != nil {
					return err
				}
				repos = append(repos, repo)
				counts.Updated++
				continue
			}

			repo := applyRepository(model.Repository{Platform: f.Platform, ExternalID: f.ExternalID}, f, accountID)
			if err := store.Create(ctx, &repo); err != nil {
				return err
			}
			repos = append(repos, repo)
			counts.Added++
		}
		return nil
	})
	if err != nil {
		return nil, model.ReconcileCounts{}, fmt.Errorf("reconcile repositories: %w", err)
	}
	return repos, counts, nil
}

// applyRepository copies fetched metadata over repo. The watermark is untouched.
func applyRepository(repo model.Repository, f model.FetchedRepository, accountID int64) model.Repository {
	repo.AccountID = accountID
	repo.Name = f.Name
	repo.FullName = f.FullName
	repo.Description = f.Description
	repo.URL = f.URL
	repo.DefaultBranch = f.DefaultBranch
	repo.Language = f.Language
	repo.IsPrivate = f.IsPrivate
	repo.IsFork = f.IsFork
	repo.IsActive = true
	repo.StargazersCount = f.StargazersCount
	repo.ForksCount = f.ForksCount
	repo.OpenIssuesCount = f.OpenIssuesCount
	repo.PushedAt = f.PushedAt
	return repo
}

// Commits upserts fetched commits of one repository keyed on (sha, repository).
// Commits without a SHA or any author identity are skipped.
func (r *Reconciler) Commits(ctx context.Context, repositoryID int64, fetched []model.FetchedCommit) (model.ReconcileCounts, error) {
	var counts model.ReconcileCounts
	var createdDevelopers int

	err := driven.WithinTx(ctx, r.uow, func(tx driven.Tx) error {
		ids := newIdentityTable(tx.Developers())
		store := tx.Commits()

		for _, f := range fetched {
			dev, err := r.commitAuthor(ctx, ids, f)
			if err != nil {
				return fmt.Errorf("resolve author of %s: %w", f.SHA, err)
			}
			if f.SHA == "" || dev == nil {
				counts.Skipped++
				continue
			}

			existing, err := store.GetBySHA(ctx, repositoryID, f.SHA)
			if err != nil {
				return err
			}

			if existing != nil {
				c := applyCommit(*existing, f, dev.ID)
				if err := store.Update(ctx, c); err != nil {
					return err
				}
				counts.Updated++
				continue
			}

			c := applyCommit(model.Commit{RepositoryID: repositoryID, SHA: f.SHA}, f, dev.ID)
			if err := store.Create(ctx, &c); err != nil {
				return err
			}
			counts.Added++
		}
		createdDevelopers = ids.created
		return nil
	})
	if err != nil {
		return model.ReconcileCounts{}, fmt.Errorf("reconcile commits for repository %d: %w", repositoryID, err)
	}

	r.logger.Debug("commits reconciled",
		"repository_id", repositoryID,
		"added", counts.Added,
		"updated", counts.Updated,
		"skipped", counts.Skipped,
		"developers_created", createdDevelopers,
	)
	return counts, nil
}

func (r *Reconciler) commitAuthor(ctx context.Context, ids *identityTable, f model.FetchedCommit) (*model.Developer, error) {
	switch {
	case f.SHA == "":
		return nil, nil
	case f.AuthorEmail != "":
		return ids.forCommit(ctx, f.AuthorEmail, f.AuthorLogin, f.AuthorName, f.AuthorAvatar)
	case f.AuthorLogin != "":
		return ids.forLogin(ctx, f.AuthorLogin, f.AuthorAvatar)
	default:
		return nil, nil
	}
}

func applyCommit(c model.Commit, f model.FetchedCommit, developerID int64) model.Commit {
	c.DeveloperID = developerID
	c.Message = f.Message
	c.LinesAdded = f.LinesAdded
	c.LinesRemoved = f.LinesRemoved
	c.FilesChanged = f.FilesChanged
	c.CommittedAt = f.CommittedAt
	if c.CommittedAt.IsZero() {
		c.CommittedAt = f.AuthoredAt
	}
	return c
}

// PullRequests upserts fetched pull requests of one repository keyed on
// (number, repository). The fetched state always wins, so out-of-order
// updates converge on the latest record applied.
func (r *Reconciler) PullRequests(ctx context.Context, repositoryID int64, fetched []model.FetchedPullRequest) (model.ReconcileCounts, error) {
	var counts model.ReconcileCounts
	var createdDevelopers int

	err := driven.WithinTx(ctx, r.uow, func(tx driven.Tx) error {
		ids := newIdentityTable(tx.Developers())
		store := tx.PullRequests()

		for _, f := range fetched {
			if f.Number <= 0 || f.AuthorLogin == "" {
				counts.Skipped++
				continue
			}

			dev, err := ids.forLogin(ctx, f.AuthorLogin, f.AuthorAvatar)
			if err != nil {
				return fmt.Errorf("resolve author of #%d: %w", f.Number, err)
			}

			existing, err := store.GetByNumber(ctx, repositoryID, f.Number)
			if err != nil {
				return err
			}

			if existing != nil {
				pr := applyPullRequest(*existing, f, dev.ID)
				if err := store.Update(ctx, pr); err != nil {
					return err
				}
				counts.Updated++
				continue
			}

			pr := applyPullRequest(model.PullRequest{RepositoryID: repositoryID, Number: f.Number}, f, dev.ID)
			if err := store.Create(ctx, &pr); err != nil {
				return err
			}
			counts.Added++
		}
		createdDevelopers = ids.created
		return nil
	})
	if err != nil {
		return model.ReconcileCounts{}, fmt.Errorf("reconcile pull requests for repository %d: %w", repositoryID, err)
	}

	r.logger.Debug("pull requests reconciled",
		"repository_id", repositoryID,
		"added", counts.Added,
		"updated", counts.Updated,
		"skipped", counts.Skipped,
		"developers_created", createdDevelopers,
	)
	return counts, nil
}

func applyPullRequest(pr model.PullRequest, f model.FetchedPullRequest, authorID int64) model.PullRequest {
	pr.AuthorID = authorID
	pr.Title = f.Title
	pr.Description = f.Description
	pr.URL = f.URL
	pr.Status = f.Status()
	pr.Additions = f.Additions
	pr.Deletions = f.Deletions
	pr.ChangedFiles = f.ChangedFiles
	pr.CreatedAt = f.CreatedAt
	pr.UpdatedAt = f.UpdatedAt
	if pr.UpdatedAt.IsZero() {
		pr.UpdatedAt = f.CreatedAt
	}
	pr.ClosedAt = f.ClosedAt
	pr.MergedAt = f.MergedAt
	return pr
}
