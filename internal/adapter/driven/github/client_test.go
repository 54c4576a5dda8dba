package github_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ghAdapter "github.com/ericfisherdev/devmetrics/internal/adapter/driven/github"
	"github.com/ericfisherdev/devmetrics/internal/domain/model"
	"github.com/ericfisherdev/devmetrics/internal/resilience"
)

// newTestClient creates a Client backed by the given httptest handler with a
// zero-delay retry policy.
func newTestClient(t *testing.T, handler http.Handler, commitStats bool) *ghAdapter.Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client, err := ghAdapter.NewClientWithHTTPClient(server.Client(), server.URL+"/", ghAdapter.Options{
		Policy: resilience.New(
			resilience.WithDelay(func(int) time.Duration { return 0 }),
			resilience.WithLogger(logger),
		),
		CommitStats: commitStats,
		Logger:      logger,
	})
	require.NoError(t, err)

	return client
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

type userJSON struct {
	Login     string `json:"login"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

type repoJSON struct {
	ID            int64   `json:"id"`
	Name          string  `json:"name"`
	FullName      string  `json:"full_name"`
	HTMLURL       string  `json:"html_url"`
	Private       bool    `json:"private"`
	Fork          bool    `json:"fork"`
	Language      string  `json:"language"`
	DefaultBranch string  `json:"default_branch"`
	Stars         int     `json:"stargazers_count"`
	Forks         int     `json:"forks_count"`
	OpenIssues    int     `json:"open_issues_count"`
	PushedAt      *string `json:"pushed_at,omitempty"`
}

type signatureJSON struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Date  string `json:"date"`
}

type commitJSON struct {
	SHA    string    `json:"sha"`
	Author *userJSON `json:"author,omitempty"`
	Commit struct {
		Message   string        `json:"message"`
		Author    signatureJSON `json:"author"`
		Committer signatureJSON `json:"committer"`
	} `json:"commit"`
	Stats *struct {
		Additions int `json:"additions"`
		Deletions int `json:"deletions"`
	} `json:"stats,omitempty"`
	Files []struct {
		Filename string `json:"filename"`
	} `json:"files,omitempty"`
}

type prJSON struct {
	Number   int      `json:"number"`
	Title    string   `json:"title"`
	Body     string   `json:"body"`
	State    string   `json:"state"`
	Draft    bool     `json:"draft"`
	HTMLURL  string   `json:"html_url"`
	User     userJSON `json:"user"`
	Created  string   `json:"created_at"`
	Updated  string   `json:"updated_at"`
	ClosedAt *string  `json:"closed_at,omitempty"`
	MergedAt *string  `json:"merged_at,omitempty"`
}

func newCommit(sha, email, login, date string) commitJSON {
	c := commitJSON{SHA: sha}
	if login != "" {
		c.Author = &userJSON{Login: login}
	}
	c.Commit.Message = "commit " + sha
	c.Commit.Author = signatureJSON{Name: "Dev", Email: email, Date: date}
	c.Commit.Committer = signatureJSON{Name: "Dev", Email: email, Date: date}
	return c
}

func ptr(s string) *string { return &s }

func TestFetchRepositories_PaginatesAndMaps(t *testing.T) {
	var serverURL string
	mux := http.NewServeMux()
	mux.HandleFunc("GET /user/repos", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("page") {
		case "", "1":
			w.Header().Set("Link", fmt.Sprintf(`<%suser/repos?page=2>; rel="next"`, serverURL))
			writeJSON(t, w, []repoJSON{{
				ID: 101, Name: "api", FullName: "acme/api", HTMLURL: "https://github.com/acme/api",
				Private: true, Language: "Go", DefaultBranch: "main", Stars: 7, Forks: 2, OpenIssues: 3,
				PushedAt: ptr("2024-02-01T10:00:00Z"),
			}})
		default:
			writeJSON(t, w, []repoJSON{{ID: 102, Name: "web", FullName: "acme/web", Fork: true}})
		}
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	serverURL = server.URL + "/"

	client, err := ghAdapter.NewClientWithHTTPClient(server.Client(), serverURL, ghAdapter.Options{})
	require.NoError(t, err)

	repos, err := client.FetchRepositories(context.Background())
	require.NoError(t, err)
	require.Len(t, repos, 2)

	first := repos[0]
	assert.Equal(t, "101", first.ExternalID)
	assert.Equal(t, model.PlatformGitHub, first.Platform)
	assert.Equal(t, "acme/api", first.FullName)
	assert.True(t, first.IsPrivate)
	assert.Equal(t, "Go", first.Language)
	assert.Equal(t, 7, first.StargazersCount)
	assert.Equal(t, 3, first.OpenIssuesCount)
	require.NotNil(t, first.PushedAt)
	assert.Equal(t, time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC), *first.PushedAt)

	assert.Equal(t, "102", repos[1].ExternalID)
	assert.True(t, repos[1].IsFork)
	assert.Nil(t, repos[1].PushedAt)
}

func TestFetchCommits_IncrementalWithoutStats(t *testing.T) {
	var gotSince string
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/api/commits", func(w http.ResponseWriter, r *http.Request) {
		gotSince = r.URL.Query().Get("since")
		writeJSON(t, w, []commitJSON{
			newCommit("abc", "a@x.com", "alice", "2024-03-02T09:30:00+02:00"),
			newCommit("def", "b@x.com", "", "2024-03-01T08:00:00Z"),
		})
	})
	mux.HandleFunc("GET /repos/acme/api/commits/{sha}", func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("detail endpoint should not be called without commit stats")
	})

	client := newTestClient(t, mux, false)
	since := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	commits, err := client.FetchCommits(context.Background(), "acme", "api", &since)
	require.NoError(t, err)
	require.Len(t, commits, 2)

	assert.Equal(t, "2024-03-01T00:00:00Z", gotSince)
	assert.Equal(t, "abc", commits[0].SHA)
	assert.Equal(t, "a@x.com", commits[0].AuthorEmail)
	assert.Equal(t, "alice", commits[0].AuthorLogin)
	assert.Equal(t, time.Date(2024, 3, 2, 7, 30, 0, 0, time.UTC), commits[0].CommittedAt)
	assert.Equal(t, time.UTC, commits[0].CommittedAt.Location())
	assert.Zero(t, commits[0].LinesAdded)
	assert.Zero(t, commits[0].FilesChanged)
	assert.Empty(t, commits[1].AuthorLogin)
}

func TestFetchCommits_WithStats(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/api/commits", func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.Query().Get("since"), "full fetch sends no since")
		writeJSON(t, w, []commitJSON{newCommit("abc", "a@x.com", "alice", "2024-03-02T09:30:00Z")})
	})
	mux.HandleFunc("GET /repos/acme/api/commits/abc", func(w http.ResponseWriter, r *http.Request) {
		c := newCommit("abc", "a@x.com", "alice", "2024-03-02T09:30:00Z")
		c.Stats = &struct {
			Additions int `json:"additions"`
			Deletions int `json:"deletions"`
		}{Additions: 100, Deletions: 20}
		c.Files = make([]struct {
			Filename string `json:"filename"`
		}, 3)
		writeJSON(t, w, c)
	})

	client := newTestClient(t, mux, true)

	commits, err := client.FetchCommits(context.Background(), "acme", "api", nil)
	require.NoError(t, err)
	require.Len(t, commits, 1)
	assert.Equal(t, 100, commits[0].LinesAdded)
	assert.Equal(t, 20, commits[0].LinesRemoved)
	assert.Equal(t, 3, commits[0].FilesChanged)
}

func TestFetchCommits_EmptyRepository(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/empty/commits", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"message":"Git Repository is empty."}`))
	})

	client := newTestClient(t, mux, false)

	commits, err := client.FetchCommits(context.Background(), "acme", "empty", nil)
	require.NoError(t, err)
	assert.Empty(t, commits)
}

func TestFetchPullRequests_StopsAtSince(t *testing.T) {
	var gotQuery string
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/api/pulls", func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		writeJSON(t, w, []prJSON{
			{
				Number: 9, Title: "Merged change", State: "closed", User: userJSON{Login: "alice"},
				Created: "2024-03-01T00:00:00Z", Updated: "2024-03-05T00:00:00Z",
				ClosedAt: ptr("2024-03-04T00:00:00Z"), MergedAt: ptr("2024-03-04T00:00:00Z"),
			},
			{
				Number: 8, Title: "Draft", State: "open", Draft: true, User: userJSON{Login: "bob"},
				Created: "2024-02-20T00:00:00Z", Updated: "2024-03-03T00:00:00Z",
			},
			{
				Number: 7, Title: "Old", State: "closed", User: userJSON{Login: "carol"},
				Created: "2024-01-01T00:00:00Z", Updated: "2024-02-01T00:00:00Z",
			},
		})
	})

	client := newTestClient(t, mux, false)
	since := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	prs, err := client.FetchPullRequests(context.Background(), "acme", "api", &since)
	require.NoError(t, err)
	require.Len(t, prs, 2)

	assert.Contains(t, gotQuery, "state=all")
	assert.Contains(t, gotQuery, "sort=updated")
	assert.Contains(t, gotQuery, "direction=desc")

	assert.Equal(t, 9, prs[0].Number)
	assert.Equal(t, model.PRStatusMerged, prs[0].Status())
	require.NotNil(t, prs[0].MergedAt)
	assert.Equal(t, "alice", prs[0].AuthorLogin)
	assert.Equal(t, model.PRStatusDraft, prs[1].Status())
	assert.Nil(t, prs[1].MergedAt)
}

func TestFetch_ErrorTranslation(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		headers   map[string]string
		body      string
		wantKind  model.ErrorKind
		wantCalls int32
	}{
		{
			name:      "not found is not retried",
			status:    http.StatusNotFound,
			body:      `{"message":"Not Found"}`,
			wantKind:  model.KindNotFound,
			wantCalls: 1,
		},
		{
			name:      "bad credentials is not retried",
			status:    http.StatusUnauthorized,
			body:      `{"message":"Bad credentials"}`,
			wantKind:  model.KindUnauthorized,
			wantCalls: 1,
		},
		{
			name:      "server error is retried then surfaced",
			status:    http.StatusBadGateway,
			body:      `{"message":"Server Error"}`,
			wantKind:  model.KindServiceUnavailable,
			wantCalls: int32(resilience.DefaultMaxRetries + 1),
		},
		{
			name:   "primary rate limit is not retried",
			status: http.StatusForbidden,
			headers: map[string]string{
				"X-RateLimit-Limit":     "5000",
				"X-RateLimit-Remaining": "0",
				"X-RateLimit-Reset":     strconv.FormatInt(time.Now().Add(90*time.Second).Unix(), 10),
			},
			body:      `{"message":"API rate limit exceeded"}`,
			wantKind:  model.KindServiceUnavailable,
			wantCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			mux := http.NewServeMux()
			mux.HandleFunc("GET /repos/acme/api/commits", func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				for k, v := range tt.headers {
					w.Header().Set(k, v)
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			client := newTestClient(t, mux, false)

			_, err := client.FetchCommits(context.Background(), "acme", "api", nil)
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, model.KindOf(err))
			assert.Equal(t, tt.wantCalls, calls.Load())
		})
	}
}

func TestFetch_RateLimitCarriesRetryAfter(t *testing.T) {
	reset := time.Now().Add(90 * time.Second)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /user/repos", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Limit", "5000")
		w.Header().Set("X-RateLimit-Remaining", "0")
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"API rate limit exceeded"}`))
	})

	client := newTestClient(t, mux, false)

	_, err := client.FetchRepositories(context.Background())
	var su *model.ServiceUnavailableError
	require.ErrorAs(t, err, &su)
	assert.Greater(t, su.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, su.RetryAfter, 90*time.Second)
}

func TestFetch_CanceledContextIssuesNoRequest(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /user/repos", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(t, w, []repoJSON{})
	})

	client := newTestClient(t, mux, false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.FetchRepositories(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls.Load())
}

func TestFactory_RequiresToken(t *testing.T) {
	f := ghAdapter.NewFactory(ghAdapter.Options{})

	_, err := f.ForAccount(model.Account{Login: "alice"})
	assert.ErrorIs(t, err, model.ErrUnauthorized)

	c, err := f.ForAccount(model.Account{Login: "alice", Token: "ghp_x"})
	require.NoError(t, err)
	assert.NotNil(t, c)
}
