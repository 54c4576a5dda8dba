package application

import (
	"fmt"
	"sync"

	"github.com/ericfisherdev/devmetrics/internal/domain/model"
	"github.com/ericfisherdev/devmetrics/internal/domain/port/driven"
)

type cachedClient struct {
	token  string
	client driven.PlatformClient
}

// ClientProvider hands out one PlatformClient per account and rebuilds it when
// the account's token changes, so credential updates take effect without a
// restart. Clients keep their HTTP cache and pacing state between runs.
type ClientProvider struct {
	factory driven.PlatformClientFactory

	mu      sync.RWMutex
	clients map[int64]cachedClient
}

// NewClientProvider creates a provider that builds clients with factory.
func NewClientProvider(factory driven.PlatformClientFactory) *ClientProvider {
	return &ClientProvider{factory: factory, clients: make(map[int64]cachedClient)}
}

// Get returns the client for account, building it on first use or after a token change.
func (p *ClientProvider) Get(account model.Account) (driven.PlatformClient, error) {
	p.mu.RLock()
	cached, ok := p.clients[account.ID]
	p.mu.RUnlock()
	if ok && cached.token == account.Token {
		return cached.client, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if cached, ok := p.clients[account.ID]; ok && cached.token == account.Token {
		return cached.client, nil
	}

	client, err := p.factory.ForAccount(account)
	if err != nil {
		return nil, fmt.Errorf("build client for account %q: %w", account.Login, err)
	}
	p.clients[account.ID] = cachedClient{token: account.Token, client: client}
	return client, nil
}

// Invalidate drops the cached client of an account.
func (p *ClientProvider) Invalidate(accountID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.clients, accountID)
}

// Len returns the number of cached clients.
func (p *ClientProvider) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.clients)
}
