package github

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v75/github"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
	"k8s.io/utils/ptr"
)

const (
	// DefaultRawContentURL serves raw repository files.
	DefaultRawContentURL = "https://raw.githubusercontent.com"
	// DefaultOrganization owns the workshop repositories.
	DefaultOrganization = "NIBM-Workshops"

	readmeFile = "README.md"
	perPage    = 100
)

// ErrReadmeNotFound is returned when no branch variant serves a README.
var ErrReadmeNotFound = errors.New("readme not found")

// Branches tried, in order, when fetching a README. The empty branch hits
// the repository root without a ref.
var readmeBranches = []string{"main", "master", ""}

// NewGitHubLimiter returns a rate limiter tuned for authenticated or unauthenticated GitHub API usage.
func NewGitHubLimiter(authenticated bool) *rate.Limiter {
	var limiter *rate.Limiter
	if authenticated {
		limiter = rate.NewLimiter(rate.Every(time.Hour), 5000)
		slog.Info(
			"Created authenticated GitHub rate limiter",
			"rate",
			"5000 requests/hour",
		)
	} else {
		limiter = rate.NewLimiter(rate.Every(time.Hour), 60)
		slog.Info("Created unauthenticated GitHub rate limiter", "rate", "60 requests/hour")
	}
	return limiter
}

// Client lists an organization's repositories and fetches their READMEs.
type Client struct {
	c        *github.Client
	l        *rate.Limiter
	h        *http.Client
	raw      string
	org      string
	fallback []string
}

// GitHubClientOptions configures the GitHub client.
type GitHubClientOptions struct {
	token      string
	limiter    *rate.Limiter
	httpClient *http.Client
	baseURL    string
	rawURL     string
	org        string
	fallback   []string
}

// GitHubClientOption applies a configuration to GitHubClientOptions.
type GitHubClientOption func(*GitHubClientOptions)

// WithToken sets the personal access token for authenticated requests.
func WithToken(token string) GitHubClientOption {
	return func(o *GitHubClientOptions) { o.token = token }
}

// WithLimiter sets the rate limiter used for API calls.
func WithLimiter(l *rate.Limiter) GitHubClientOption {
	return func(o *GitHubClientOptions) { o.limiter = l }
}

// WithHTTPClient sets the HTTP client used for both API and raw content calls.
func WithHTTPClient(c *http.Client) GitHubClientOption {
	return func(o *GitHubClientOptions) { o.httpClient = c }
}

// WithBaseURL overrides the REST API endpoint, e.g. for GitHub Enterprise.
func WithBaseURL(u string) GitHubClientOption {
	return func(o *GitHubClientOptions) { o.baseURL = u }
}

// WithRawContentURL overrides the raw content host.
func WithRawContentURL(u string) GitHubClientOption {
	return func(o *GitHubClientOptions) { o.rawURL = u }
}

// WithOrganization sets the organization whose repositories are listed.
func WithOrganization(org string) GitHubClientOption {
	return func(o *GitHubClientOptions) { o.org = org }
}

// WithFallbackRepos sets the repositories used when listing fails.
func WithFallbackRepos(repos []string) GitHubClientOption {
	return func(o *GitHubClientOptions) { o.fallback = repos }
}

// NewClient constructs a GitHub Client with the given options.
func NewClient(opts ...GitHubClientOption) (*Client, error) {
	o := GitHubClientOptions{
		rawURL:   DefaultRawContentURL,
		org:      DefaultOrganization,
		fallback: DefaultFallbackRepos,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	if o.limiter == nil {
		o.limiter = NewGitHubLimiter(o.token != "")
	}

	gh := github.NewClient(o.httpClient)
	if o.token != "" {
		slog.Info("Using authenticated GitHub client")
		gh = gh.WithAuthToken(o.token)
	} else {
		slog.Warn("Using unauthenticated GitHub client (rate limited)")
	}
	if o.baseURL != "" {
		u, err := url.Parse(strings.TrimSuffix(o.baseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("invalid GitHub API URL %q: %w", o.baseURL, err)
		}
		gh.BaseURL = u
	}

	return &Client{
		c:        gh,
		l:        o.limiter,
		h:        o.httpClient,
		raw:      strings.TrimSuffix(o.rawURL, "/"),
		org:      o.org,
		fallback: o.fallback,
	}, nil
}

// Organization returns the organization this client lists.
func (c *Client) Organization() string { return c.org }

// ListRepositories returns the names of all repositories of the organization.
func (c *Client) ListRepositories(ctx context.Context) ([]string, error) {
	tracer := otel.Tracer("workshops/github")
	ctx, span := tracer.Start(ctx, "Client.ListRepositories")
	span.SetAttributes(attribute.String("org", c.org))
	defer span.End()

	opts := &github.RepositoryListByOrgOptions{ListOptions: github.ListOptions{PerPage: perPage}}
	var names []string
	for {
		if err := c.l.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}
		repos, resp, err := c.c.Repositories.ListByOrg(ctx, c.org, opts)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("failed to list repositories for %s: %w", c.org, err)
		}
		for _, r := range repos {
			if name := ptr.Deref(r.Name, ""); name != "" {
				names = append(names, name)
			}
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	span.SetAttributes(attribute.Int("repos_len", len(names)))
	slog.DebugContext(ctx, "listed repositories", "org", c.org, "count", len(names))
	return names, nil
}

// ListRepositoriesOrFallback lists the organization's repositories and
// substitutes the fallback list when the listing call fails.
func (c *Client) ListRepositoriesOrFallback(ctx context.Context) []string {
	names, err := c.ListRepositories(ctx)
	if err != nil {
		slog.WarnContext(
			ctx,
			"Failed to list repositories; using fallback list",
			"org", c.org,
			"fallback", len(c.fallback),
			"error", err,
		)
		return append([]string(nil), c.fallback...)
	}
	return names
}

// ReadmeURL returns the raw content URL of a repository README on branch.
func (c *Client) ReadmeURL(repo, branch string) (string, error) {
	return url.JoinPath(c.raw, c.org, repo, branch, readmeFile)
}

// GetReadme retrieves the README of repo, trying the main branch, the master
// branch and the repository root in that order.
func (c *Client) GetReadme(ctx context.Context, repo string) ([]byte, error) {
	tracer := otel.Tracer("workshops/github")
	ctx, span := tracer.Start(ctx, "Client.GetReadme")
	span.SetAttributes(attribute.String("org", c.org), attribute.String("repo", repo))
	defer span.End()

	for _, branch := range readmeBranches {
		u, err := c.ReadmeURL(repo, branch)
		if err != nil {
			return nil, fmt.Errorf("failed to build README URL for %s: %w", repo, err)
		}
		body, err := c.get(ctx, u)
		if err == nil {
			span.SetAttributes(attribute.String("branch", branch), attribute.Int("bytes", len(body)))
			return body, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			span.RecordError(ctxErr)
			span.SetStatus(codes.Error, ctxErr.Error())
			return nil, fmt.Errorf("failed to fetch README for %s: %w", repo, ctxErr)
		}
		slog.DebugContext(ctx, "README variant unavailable", "repo", repo, "branch", branch, "error", err)
	}
	return nil, fmt.Errorf("%s/%s: %w", c.org, repo, ErrReadmeNotFound)
}

func (c *Client) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.h.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("GET %s returned status %d", u, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// RateLimit describes the rate-limit headers reported by the listing endpoint.
type RateLimit struct {
	Limit     int       `json:"limit" yaml:"limit"`
	Remaining int       `json:"remaining" yaml:"remaining"`
	Used      int       `json:"used" yaml:"used"`
	Reset     time.Time `json:"reset" yaml:"reset"`
	Resource  string    `json:"resource,omitempty" yaml:"resource,omitempty"`
	Exhausted bool      `json:"exhausted" yaml:"exhausted"`
}

// ProbeRateLimit issues a one-item listing request and reports the
// X-RateLimit-* headers of the response.
func (c *Client) ProbeRateLimit(ctx context.Context) (*RateLimit, error) {
	tracer := otel.Tracer("workshops/github")
	ctx, span := tracer.Start(ctx, "Client.ProbeRateLimit")
	defer span.End()

	if err := c.l.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait failed: %w", err)
	}
	_, resp, err := c.c.Repositories.ListByOrg(ctx, c.org, &github.RepositoryListByOrgOptions{
		ListOptions: github.ListOptions{PerPage: 1},
	})
	var rle *github.RateLimitError
	switch {
	case errors.As(err, &rle):
		return rateLimitFrom(rle.Rate, true), nil
	case err != nil && resp == nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to probe rate limit for %s: %w", c.org, err)
	case err != nil:
		slog.WarnContext(ctx, "Rate limit probe returned an error", "org", c.org, "error", err)
	}
	return rateLimitFrom(resp.Rate, resp.Rate.Remaining == 0 && resp.Rate.Limit > 0), nil
}

func rateLimitFrom(r github.Rate, exhausted bool) *RateLimit {
	return &RateLimit{
		Limit:     r.Limit,
		Remaining: r.Remaining,
		Used:      r.Used,
		Reset:     r.Reset.Time,
		Resource:  r.Resource,
		Exhausted: exhausted,
	}
}
