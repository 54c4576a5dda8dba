package application

import (
	"context"
	"log/slog"

	"github.com/ericfisherdev/devmetrics/internal/domain/model"
	"github.com/ericfisherdev/devmetrics/internal/domain/port/driven"
)

// AddAccountRequest registers a platform login with its access token.
type AddAccountRequest struct {
	Login string `json:"login" validate:"required,max=100"`
	Token string `json:"token" validate:"required"`
}

// AccountService manages the accounts whose credentials drive sync runs, and
// lists what those runs have discovered.
type AccountService struct {
	accounts driven.AccountStore
	uow      driven.UnitOfWork
	clients  *ClientProvider
	logger   *slog.Logger
}

// NewAccountService creates an AccountService.
func NewAccountService(accounts driven.AccountStore, uow driven.UnitOfWork, clients *ClientProvider, logger *slog.Logger) *AccountService {
	return &AccountService{accounts: accounts, uow: uow, clients: clients, logger: logger}
}

// Add creates the account or replaces its token. The cached client is
// dropped so the next run uses the new token.
func (s *AccountService) Add(ctx context.Context, req AddAccountRequest) (model.Account, error) {
	if err := validateStruct(req); err != nil {
		return model.Account{}, err
	}

	account, err := s.accounts.Save(ctx, req.Login, req.Token)
	if err != nil {
		return model.Account{}, err
	}
	s.clients.Invalidate(account.ID)
	s.logger.Info("account saved", "account_id", account.ID, "login", account.Login)
	return account, nil
}

func (s *AccountService) List(ctx context.Context) ([]model.Account, error) {
	return s.accounts.List(ctx)
}

// Delete removes an account. Its repositories and history stay.
func (s *AccountService) Delete(ctx context.Context, id int64) error {
	if err := s.accounts.Delete(ctx, id); err != nil {
		return err
	}
	s.clients.Invalidate(id)
	s.logger.Info("account deleted", "account_id", id)
	return nil
}

// Repositories lists the active repositories of an account, or every
// repository when accountID is zero.
func (s *AccountService) Repositories(ctx context.Context, accountID int64) ([]model.Repository, error) {
	if accountID == 0 {
		return s.uow.Repositories().ListAll(ctx)
	}
	if _, err := s.accounts.Get(ctx, accountID); err != nil {
		return nil, err
	}
	return s.uow.Repositories().ListByAccount(ctx, accountID)
}

func (s *AccountService) Developers(ctx context.Context) ([]model.Developer, error) {
	return s.uow.Developers().ListAll(ctx)
}
