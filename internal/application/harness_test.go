package application_test

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/devmetrics/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/devmetrics/internal/application"
	"github.com/ericfisherdev/devmetrics/internal/domain/model"
	"github.com/ericfisherdev/devmetrics/internal/domain/port/driven"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t.UTC()
}

func ptr[T any](v T) *T { return &v }

// clock is a settable time source.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// fakeClient serves canned platform records keyed by "owner/name" and
// records the since value of every fetch under "commits:owner/name" or
// "pulls:owner/name".
type fakeClient struct {
	mu       sync.Mutex
	repos    []model.FetchedRepository
	reposErr error
	commits  map[string][]model.FetchedCommit
	pulls    map[string][]model.FetchedPullRequest
	errs     map[string]error
	sinces   map[string][]*time.Time
	onFetch  func(key string)

	// gate, when set, holds FetchRepositories until closed.
	gate    chan struct{}
	entered chan struct{}
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		commits: make(map[string][]model.FetchedCommit),
		pulls:   make(map[string][]model.FetchedPullRequest),
		errs:    make(map[string]error),
		sinces:  make(map[string][]*time.Time),
	}
}

func (c *fakeClient) FetchRepositories(ctx context.Context) ([]model.FetchedRepository, error) {
	if c.gate != nil {
		select {
		case c.entered <- struct{}{}:
		default:
		}
		<-c.gate
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.FetchedRepository(nil), c.repos...), c.reposErr
}

func (c *fakeClient) FetchCommits(ctx context.Context, owner, project string, since *time.Time) ([]model.FetchedCommit, error) {
	key := "commits:" + owner + "/" + project
	if err := c.fetched(key, since); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.commits[owner+"/"+project], nil
}

func (c *fakeClient) FetchPullRequests(ctx context.Context, owner, project string, since *time.Time) ([]model.FetchedPullRequest, error) {
	key := "pulls:" + owner + "/" + project
	if err := c.fetched(key, since); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pulls[owner+"/"+project], nil
}

func (c *fakeClient) fetched(key string, since *time.Time) error {
	if c.onFetch != nil {
		c.onFetch(key)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	var copied *time.Time
	if since != nil {
		copied = ptr(*since)
	}
	c.sinces[key] = append(c.sinces[key], copied)
	return c.errs[key]
}

func (c *fakeClient) fetchedKeys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.sinces))
	for k := range c.sinces {
		keys = append(keys, k)
	}
	return keys
}

func (c *fakeClient) since(key string, call int) *time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sinces[key][call]
}

type fakeFactory struct {
	mu     sync.Mutex
	client driven.PlatformClient
	err    error
	built  []string
}

func (f *fakeFactory) ForAccount(account model.Account) (driven.PlatformClient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.built = append(f.built, account.Token)
	return f.client, nil
}

func (f *fakeFactory) builds() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.built)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []model.Event
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, e model.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
	return n.err
}

func (n *recordingNotifier) types() []model.EventType {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]model.EventType, 0, len(n.events))
	for _, e := range n.events {
		out = append(out, e.Type)
	}
	return out
}

type harness struct {
	store    *sqlite.Store
	accounts *sqlite.AccountRepo
	client   *fakeClient
	factory  *fakeFactory
	clients  *application.ClientProvider
	notifier *recordingNotifier
	clock    *clock
	sync     *application.SyncService
	metrics  *application.MetricsService
	account  model.Account
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()

	db, err := sqlite.NewMemoryDB(ctx, t.Name())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, sqlite.RunMigrations(db.Writer))

	h := &harness{
		store:    sqlite.NewStore(db),
		accounts: sqlite.NewAccountRepo(db, testKey),
		client:   newFakeClient(),
		notifier: &recordingNotifier{},
		clock:    &clock{t: ts("2024-03-20T12:00:00Z")},
	}
	h.factory = &fakeFactory{client: h.client}
	h.clients = application.NewClientProvider(h.factory)

	logger := discardLogger()
	h.sync = application.NewSyncService(h.accounts, h.store, h.clients,
		application.WithSyncNotifier(h.notifier),
		application.WithSyncLogger(logger),
		application.WithSyncClock(h.clock.Now),
	)
	h.metrics = application.NewMetricsService(h.store,
		application.WithMetricsNotifier(h.notifier),
		application.WithMetricsLogger(logger),
		application.WithMetricsClock(h.clock.Now),
	)

	h.account, err = h.accounts.Save(ctx, "octo", "token-1")
	require.NoError(t, err)
	return h
}

func (h *harness) repo(t *testing.T, fullName string) model.Repository {
	t.Helper()
	repos, err := h.store.Repositories().ListAll(context.Background())
	require.NoError(t, err)
	for _, r := range repos {
		if r.FullName == fullName {
			return r
		}
	}
	t.Fatalf("repository %s not found", fullName)
	return model.Repository{}
}

func (h *harness) seedDeveloper(t *testing.T, email, username string) model.Developer {
	t.Helper()
	dev := model.Developer{Email: email, GitHubUsername: username}
	require.NoError(t, h.store.Developers().Create(context.Background(), &dev))
	return dev
}

func (h *harness) seedRepository(t *testing.T, externalID, fullName string, accountID int64) model.Repository {
	t.Helper()
	_, name, err := model.SplitFullName(fullName)
	require.NoError(t, err)
	repo := model.Repository{
		AccountID:  accountID,
		Platform:   model.PlatformGitHub,
		ExternalID: externalID,
		Name:       name,
		FullName:   fullName,
		IsActive:   true,
	}
	require.NoError(t, h.store.Repositories().Create(context.Background(), &repo))
	return repo
}

func fetchedRepo(externalID, fullName string) model.FetchedRepository {
	_, name, _ := strings.Cut(fullName, "/")
	return model.FetchedRepository{
		ExternalID: externalID,
		Platform:   model.PlatformGitHub,
		Name:       name,
		FullName:   fullName,
		URL:        "https://github.com/" + fullName,
	}
}

func fetchedCommit(sha, email, login, at string, added, removed int) model.FetchedCommit {
	return model.FetchedCommit{
		SHA:          sha,
		Message:      "change " + sha,
		AuthorEmail:  email,
		AuthorLogin:  login,
		AuthoredAt:   ts(at),
		CommittedAt:  ts(at),
		LinesAdded:   added,
		LinesRemoved: removed,
	}
}

func fetchedPull(number int, login, created string, merged *time.Time) model.FetchedPullRequest {
	pr := model.FetchedPullRequest{
		Number:      number,
		Title:       "pull request",
		State:       "open",
		AuthorLogin: login,
		CreatedAt:   ts(created),
		UpdatedAt:   ts(created),
	}
	if merged != nil {
		pr.State = "closed"
		pr.Merged = true
		pr.MergedAt = merged
		pr.ClosedAt = merged
		pr.UpdatedAt = *merged
	}
	return pr
}
