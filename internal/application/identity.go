package application

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ericfisherdev/devmetrics/internal/domain/model"
	"github.com/ericfisherdev/devmetrics/internal/domain/port/driven"
)

// identityTable resolves commit and pull request authors to developers for a
// single reconciliation pass. It memoizes every lookup so one identity is
// read or created at most once per pass, and is discarded with the pass.
//
// Commits are keyed by author email, pull requests by platform login. When a
// commit carries both, a developer first created from a pull request (with a
// placeholder email) is upgraded to the real email instead of duplicated.
type identityTable struct {
	store   driven.DeveloperStore
	byEmail map[string]*model.Developer
	byLogin map[string]*model.Developer
	created int
}

func newIdentityTable(store driven.DeveloperStore) *identityTable {
	return &identityTable{
		store:   store,
		byEmail: make(map[string]*model.Developer),
		byLogin: make(map[string]*model.Developer),
	}
}

func (t *identityTable) remember(dev *model.Developer, login string) *model.Developer {
	t.byEmail[model.NormalizeEmail(dev.Email)] = dev
	if login != "" {
		t.byLogin[strings.ToLower(login)] = dev
	}
	return dev
}

// forCommit resolves the author of a commit. email is required; login, name
// and avatar are best effort.
func (t *identityTable) forCommit(ctx context.Context, email, login, name, avatar string) (*model.Developer, error) {
	email = model.NormalizeEmail(email)
	if dev, ok := t.byEmail[email]; ok {
		return dev, nil
	}

	dev, err := t.store.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if dev != nil {
		return t.remember(dev, login), nil
	}

	if login != "" {
		if dev, err := t.upgradePlaceholder(ctx, email, login); err != nil || dev != nil {
			return dev, err
		}
	}

	username := login
	if username == "" {
		username = model.ProvisionalUsername(email)
	}
	return t.create(ctx, model.Developer{Email: email, GitHubUsername: username, DisplayName: name, AvatarURL: avatar}, login)
}

// upgradePlaceholder gives a login-only developer its real email. It returns
// nil when the login is unknown or already has a real email.
func (t *identityTable) upgradePlaceholder(ctx context.Context, email, login string) (*model.Developer, error) {
	dev, ok := t.byLogin[strings.ToLower(login)]
	if !ok {
		var err error
		if dev, err = t.store.GetByUsername(ctx, login); err != nil {
			return nil, err
		}
	}
	if dev == nil || !dev.HasPlaceholderEmail() {
		return nil, nil
	}

	placeholder := model.NormalizeEmail(dev.Email)
	upgraded := *dev
	upgraded.Email = email
	if err := t.store.Update(ctx, upgraded); err != nil {
		if errors.Is(err, driven.ErrDeveloperExists) {
			return t.refetch(ctx, email, login)
		}
		return nil, fmt.Errorf("upgrade developer %d email: %w", dev.ID, err)
	}

	delete(t.byEmail, placeholder)
	*dev = upgraded
	return t.remember(dev, login), nil
}

// forLogin resolves the author of a pull request by platform login.
func (t *identityTable) forLogin(ctx context.Context, login, avatar string) (*model.Developer, error) {
	if dev, ok := t.byLogin[strings.ToLower(login)]; ok {
		return dev, nil
	}

	dev, err := t.store.GetByUsername(ctx, login)
	if err != nil {
		return nil, err
	}
	if dev != nil {
		return t.remember(dev, login), nil
	}

	placeholder := model.PlaceholderEmail(login)
	if dev, ok := t.byEmail[placeholder]; ok {
		return t.remember(dev, login), nil
	}
	if dev, err = t.store.GetByEmail(ctx, placeholder); err != nil {
		return nil, err
	}
	if dev != nil {
		return t.remember(dev, login), nil
	}

	return t.create(ctx, model.Developer{Email: placeholder, GitHubUsername: login, DisplayName: login, AvatarURL: avatar}, login)
}

func (t *identityTable) create(ctx context.Context, dev model.Developer, login string) (*model.Developer, error) {
	err := t.store.Create(ctx, &dev)
	if errors.Is(err, driven.ErrDeveloperExists) {
		// A concurrent writer created the same identity first.
		return t.refetch(ctx, dev.Email, login)
	}
	if err != nil {
		return nil, err
	}
	t.created++
	return t.remember(&dev, login), nil
}

func (t *identityTable) refetch(ctx context.Context, email, login string) (*model.Developer, error) {
	dev, err := t.store.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if dev == nil {
		return nil, fmt.Errorf("developer %s reported as existing but not found", email)
	}
	return t.remember(dev, login), nil
}
