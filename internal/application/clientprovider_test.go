package application_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/devmetrics/internal/application"
	"github.com/ericfisherdev/devmetrics/internal/domain/model"
)

func TestClientProvider_ReusesClientForSameToken(t *testing.T) {
	factory := &fakeFactory{client: newFakeClient()}
	provider := application.NewClientProvider(factory)
	account := model.Account{ID: 1, Login: "octo", Token: "t1"}

	first, err := provider.Get(account)
	require.NoError(t, err)
	second, err := provider.Get(account)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, factory.builds())
	assert.Equal(t, 1, provider.Len())
}

func TestClientProvider_RebuildsOnTokenChange(t *testing.T) {
	factory := &fakeFactory{client: newFakeClient()}
	provider := application.NewClientProvider(factory)

	_, err := provider.Get(model.Account{ID: 1, Token: "t1"})
	require.NoError(t, err)
	_, err = provider.Get(model.Account{ID: 1, Token: "t2"})
	require.NoError(t, err)

	assert.Equal(t, []string{"t1", "t2"}, factory.built)
	assert.Equal(t, 1, provider.Len())
}

func TestClientProvider_Invalidate(t *testing.T) {
	factory := &fakeFactory{client: newFakeClient()}
	provider := application.NewClientProvider(factory)
	account := model.Account{ID: 7, Token: "t1"}

	_, err := provider.Get(account)
	require.NoError(t, err)
	provider.Invalidate(account.ID)
	assert.Zero(t, provider.Len())

	_, err = provider.Get(account)
	require.NoError(t, err)
	assert.Equal(t, 2, factory.builds())
}

func TestClientProvider_FactoryError(t *testing.T) {
	boom := errors.New("bad token format")
	provider := application.NewClientProvider(&fakeFactory{err: boom})

	_, err := provider.Get(model.Account{ID: 1, Login: "octo", Token: "t1"})

	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "octo")
	assert.Zero(t, provider.Len())
}

func TestClientProvider_ConcurrentGetBuildsOnce(t *testing.T) {
	factory := &fakeFactory{client: newFakeClient()}
	provider := application.NewClientProvider(factory)
	account := model.Account{ID: 1, Token: "t1"}

	const goroutines = 50
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for range goroutines {
		go func() {
			defer wg.Done()
			client, err := provider.Get(account)
			assert.NoError(t, err)
			assert.NotNil(t, client)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, factory.builds())
}
