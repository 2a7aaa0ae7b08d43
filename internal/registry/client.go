// Package registry fetches the desired-state project list, account profiles
// and the bot registry from the external project registry APIs.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/peterhellberg/link"

	"github.com/ossforge/forgesync/internal/cache"
)

// ErrUnknownUser reports that the registry has no account for the requested
// identity.
var ErrUnknownUser = errors.New("unknown registry user")

// repoURLPattern extracts the trailing organization and repository segments
// from a platform URL.
var repoURLPattern = regexp.MustCompile(`/([^/]+)/([^/]+)/?$`)

// ParseRepoURL extracts the organization and repository from the trailing
// /org/repo segments of a platform URL. Parsing failures are reported, never
// fatal: callers skip unparseable references.
func ParseRepoURL(url string) (org, repo string, ok bool) {
	m := repoURLPattern.FindStringSubmatch(url)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// Options configures a Client.
type Options struct {
	// ProjectsURL is the paginated projects endpoint.
	ProjectsURL string
	// AccountsURL is the base URL for profile and bot lookups.
	AccountsURL string
	// Cache holds raw HTTP responses across runs.
	Cache      *cache.Cache
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client is the project registry client.
type Client struct {
	projectsURL string
	accountsURL string
	http        *http.Client
	cache       *cache.Cache
	log         *slog.Logger
}

// NewClient creates a registry client.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		projectsURL: opts.ProjectsURL,
		accountsURL: opts.AccountsURL,
		http:        httpClient,
		cache:       opts.Cache,
		log:         log,
	}
}

// FetchProjects retrieves all projects with hosted repositories, following
// link-header pagination until the last page. Projects without a single
// parseable repo URL are dropped.
func (c *Client) FetchProjects(ctx context.Context) ([]Project, error) {
	var projects []Project

	url := c.projectsURL
	if strings.Contains(url, "?") {
		url += "&github_only=1"
	} else {
		url += "?github_only=1"
	}
	for url != "" {
		c.log.Debug("loading projects page", "url", url)

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("building projects request: %w", err)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetching projects from %s: %w", url, err)
		}

		var page []Project
		decodeErr := json.NewDecoder(resp.Body).Decode(&page)
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("fetching projects from %s: status %d", url, resp.StatusCode)
		}
		if decodeErr != nil {
			return nil, fmt.Errorf("decoding projects page %s: %w", url, decodeErr)
		}
		projects = append(projects, page...)

		url = nextPage(resp)
	}

	kept := projects[:0]
	for i := range projects {
		if c.postprocess(&projects[i]) {
			kept = append(kept, projects[i])
		} else {
			c.log.Warn("project has no parseable repositories, dropping", "project", projects[i].ID)
		}
	}
	return kept, nil
}

// nextPage returns the next page URL from the response's Link header, or
// empty when the current page is the last.
func nextPage(resp *http.Response) string {
	links := link.ParseResponse(resp)
	self, next, last := links["self"], links["next"], links["last"]
	if next == nil {
		return ""
	}
	if self != nil && last != nil && self.URI == last.URI {
		return ""
	}
	return next.URI
}

// postprocess derives (org, repo) pairs from the project's repo URLs and
// records the distinct organizations and repo names. Returns false when no
// repo parses.
func (c *Client) postprocess(p *Project) bool {
	for i := range p.Repos {
		repo := &p.Repos[i]
		org, name, ok := ParseRepoURL(repo.URL)
		if !ok {
			c.log.Warn("repo URL does not match org/repo pattern, skipping",
				"project", p.ID, "url", repo.URL)
			continue
		}
		repo.Organization = org
		repo.Name = name
		if !contains(p.Organizations, repo.Organization) {
			p.Organizations = append(p.Organizations, repo.Organization)
		}
		if !contains(p.RepoNames, repo.Name) {
			p.RepoNames = append(p.RepoNames, repo.Name)
		}
	}
	return len(p.Organizations) > 0
}

// ResolveMember fetches the member's registry profile and returns the linked
// platform login. An empty login with a nil error means the account exists
// but has no platform handle.
func (c *Client) ResolveMember(ctx context.Context, m Member) (string, error) {
	if m.URL == "" {
		return "", fmt.Errorf("member %q has no profile URL", m.Username)
	}
	profile, err := c.fetchProfile(ctx, m.URL)
	if err != nil {
		return "", err
	}
	return profile.GitHubHandle, nil
}

// ProfileByUsername looks up the registry profile owning the given platform
// login.
func (c *Client) ProfileByUsername(ctx context.Context, login string) (*Profile, error) {
	if login == "" {
		return nil, fmt.Errorf("empty platform login")
	}
	return c.fetchProfile(ctx, c.accountsURL+"/github/profile/"+login)
}

func (c *Client) fetchProfile(ctx context.Context, url string) (*Profile, error) {
	raw, err := c.getCached(ctx, url)
	if err != nil {
		return nil, err
	}
	var profile Profile
	if err := json.Unmarshal(raw, &profile); err != nil {
		return nil, fmt.Errorf("decoding profile %s: %w", url, err)
	}
	return &profile, nil
}

// FetchBots retrieves the raw bot registry.
func (c *Client) FetchBots(ctx context.Context) ([]Bot, error) {
	raw, err := c.getCached(ctx, c.accountsURL+"/bots")
	if err != nil {
		return nil, fmt.Errorf("fetching bot registry: %w", err)
	}
	var bots []Bot
	if err := json.Unmarshal(raw, &bots); err != nil {
		return nil, fmt.Errorf("decoding bot registry: %w", err)
	}
	return bots, nil
}

// getCached performs a GET through the HTTP time cache, keyed by URL.
func (c *Client) getCached(ctx context.Context, url string) ([]byte, error) {
	if c.cache != nil {
		if raw, ok := c.cache.GetRaw(url); ok {
			c.log.Debug("found cached response", "url", url)
			return raw, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", url, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%s: %w", url, ErrUnknownUser)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s: status %d", url, resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", url, err)
	}
	if c.cache != nil {
		c.cache.SetRaw(url, raw)
	}
	return raw, nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
