// Package github implements the platform fetch ports using the go-github library.
package github

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"
	gh "github.com/google/go-github/v82/github"
	"github.com/gregjones/httpcache"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/ericfisherdev/devmetrics/internal/domain/model"
	"github.com/ericfisherdev/devmetrics/internal/domain/port/driven"
	"github.com/ericfisherdev/devmetrics/internal/resilience"
)

// Compile-time interface satisfaction checks.
var (
	_ driven.PlatformClient        = (*Client)(nil)
	_ driven.PlatformClientFactory = (*Factory)(nil)
)

const perPage = 100

// Options tunes a Client. Zero values select the defaults.
type Options struct {
	// Policy guards every page and detail request. Defaults to resilience.New().
	Policy *resilience.Policy
	// RequestsPerSecond paces outbound requests. Zero disables pacing.
	RequestsPerSecond float64
	// CommitStats fetches each commit individually to obtain line and file counts.
	CommitStats bool
	Logger      *slog.Logger
}

// Client implements driven.PlatformClient for one account's credential.
type Client struct {
	gh          *gh.Client
	policy      *resilience.Policy
	limiter     *rate.Limiter
	commitStats bool
	logger      *slog.Logger
}

// NewClient creates a GitHub API client with the following transport stack:
//  1. oauth2 (static token source, sets the Authorization header)
//  2. httpcache (ETag-based conditional requests; 304s do not count against the quota)
//  3. go-github-ratelimit (secondary rate limit middleware, sleeps on 429)
//  4. go-github (REST API client)
func NewClient(token string, opts Options) *Client {
	cacheTransport := httpcache.NewMemoryCacheTransport()
	cacheTransport.Transport = &oauth2.Transport{
		Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}),
		Base:   http.DefaultTransport,
	}
	rateLimitClient := github_ratelimit.NewClient(cacheTransport)

	return newClient(gh.NewClient(rateLimitClient), opts)
}

// NewClientWithHTTPClient creates a Client with a custom http.Client and base URL.
// This constructor is intended for testing, allowing injection of an httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL string, opts Options) (*Client, error) {
	client := gh.NewClient(httpClient)

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	client.BaseURL = u

	return newClient(client, opts), nil
}

func newClient(client *gh.Client, opts Options) *Client {
	c := &Client{
		gh:          client,
		policy:      opts.Policy,
		commitStats: opts.CommitStats,
		logger:      opts.Logger,
	}
	if c.policy == nil {
		c.policy = resilience.New()
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if opts.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	return c
}

// Factory builds a Client per account using shared Options.
type Factory struct {
	opts Options
}

// NewFactory creates a Factory.
func NewFactory(opts Options) *Factory {
	return &Factory{opts: opts}
}

// ForAccount returns a client authenticated with the account's token.
func (f *Factory) ForAccount(account model.Account) (driven.PlatformClient, error) {
	if account.Token == "" {
		return nil, fmt.Errorf("account %q has no token: %w", account.Login, model.ErrUnauthorized)
	}
	opts := f.opts
	if opts.Logger != nil {
		opts.Logger = opts.Logger.With("account", account.Login)
	}
	return NewClient(account.Token, opts), nil
}

// pace blocks until the outbound limiter admits one request.
func (c *Client) pace(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

type page[T any] struct {
	items []T
	next  int
}

// collect walks a paginated endpoint. Each page is paced and guarded by the
// retry policy. stop, when non-nil, ends the walk at the first item it accepts;
// that item is not included. Cancellation is checked before every page.
func collect[T any](
	ctx context.Context,
	c *Client,
	op, endpoint string,
	fetch func(ctx context.Context, pageNum int) ([]T, *gh.Response, error),
	stop func(T) bool,
) ([]T, error) {
	all := []T{}
	pageNum := 0

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		p, err := resilience.Do(ctx, c.policy, op, func(ctx context.Context) (page[T], error) {
			if err := c.pace(ctx); err != nil {
				return page[T]{}, err
			}
			items, resp, err := fetch(ctx, pageNum)
			if err != nil {
				return page[T]{}, translateError(err)
			}
			c.logRateLimit(resp, endpoint, pageNum, len(items))
			next := 0
			if resp != nil {
				next = resp.NextPage
			}
			return page[T]{items: items, next: next}, nil
		})
		if err != nil {
			return nil, fmt.Errorf("%s for %s (page %d): %w", op, endpoint, pageNum, err)
		}

		for _, item := range p.items {
			if stop != nil && stop(item) {
				return all, nil
			}
			all = append(all, item)
		}

		if p.next == 0 {
			return all, nil
		}
		pageNum = p.next
	}
}

func (c *Client) logRateLimit(resp *gh.Response, endpoint string, page, count int) {
	if resp == nil {
		return
	}

	c.logger.Debug("github api call",
		"endpoint", endpoint,
		"page", page,
		"count", count,
		"rate_remaining", resp.Rate.Remaining,
		"rate_limit", resp.Rate.Limit,
	)

	if resp.Rate.Limit > 0 && resp.Rate.Remaining < 100 {
		c.logger.Warn("github rate limit low",
			"remaining", resp.Rate.Remaining,
			"reset_in", time.Until(resp.Rate.Reset.Time).Round(time.Second),
		)
	}
}
