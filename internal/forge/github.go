package forge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/go-github/v69/github"

	"github.com/ossforge/forgesync/internal/cache"
)

const requiredScope = "admin:org"

// Caches holds the per-entity-kind caches backing a client. All lookups hit
// these before the network; prefetching bulk-fills them per organization.
type Caches struct {
	Teams *cache.Cache
	Repos *cache.Cache
	Orgs  *cache.Cache
}

// Options configures a Client.
type Options struct {
	// DryRun suppresses every mutating call, logging the intended action
	// instead.
	DryRun bool
	// Throttle is the minimum interval between mutating calls.
	Throttle time.Duration
	// MaxRetries bounds retries after a rate-limit or abuse signal.
	MaxRetries uint64
	// RepoLicense is the license template applied to newly created
	// repositories, empty for none.
	RepoLicense string
	// BaseURL overrides the API endpoint, mainly for tests.
	BaseURL string
	Logger  *slog.Logger
}

// Client implements the hosting platform operations against the GitHub REST
// API. All state is per-client; two clients never share caches, counters or
// prefetch tracking.
type Client struct {
	gh          *github.Client
	log         *slog.Logger
	dryRun      bool
	throttle    *Throttle
	maxRetries  uint64
	repoLicense string

	teams *cache.Cache
	repos *cache.Cache
	orgs  *cache.Cache

	prefetchedTeams map[string]bool
	prefetchedRepos map[string]bool

	// calls counts mutating remote calls actually issued, for run-end
	// diagnostics. Dry-run leaves it untouched.
	calls atomic.Int64
}

// NewClient creates a client authenticated with the given token.
func NewClient(token string, caches Caches, opts Options) (*Client, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: no access token provided", ErrBadCredentials)
	}

	gh := github.NewClient(nil).WithAuthToken(token)
	if opts.BaseURL != "" {
		u, err := url.Parse(opts.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("parsing base URL: %w", err)
		}
		if !strings.HasSuffix(u.Path, "/") {
			u.Path += "/"
		}
		gh.BaseURL = u
	}

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 2
	}

	return &Client{
		gh:              gh,
		log:             log,
		dryRun:          opts.DryRun,
		throttle:        NewThrottle(opts.Throttle),
		maxRetries:      opts.MaxRetries,
		repoLicense:     opts.RepoLicense,
		teams:           caches.Teams,
		repos:           caches.Repos,
		orgs:            caches.Orgs,
		prefetchedTeams: make(map[string]bool),
		prefetchedRepos: make(map[string]bool),
	}, nil
}

// CallCount returns the number of mutating remote calls issued so far.
func (c *Client) CallCount() int64 {
	return c.calls.Load()
}

// CheckAccess verifies the token is valid and carries the admin:org scope.
func (c *Client) CheckAccess(ctx context.Context) error {
	var scopes string
	err := c.withRetry(ctx, "user:get", func() error {
		_, resp, err := c.gh.Users.Get(ctx, "")
		if err != nil {
			return err
		}
		scopes = resp.Header.Get("X-OAuth-Scopes")
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadCredentials, err)
	}

	for _, scope := range strings.Split(scopes, ",") {
		if strings.TrimSpace(scope) == requiredScope {
			return nil
		}
	}
	return fmt.Errorf("%w: token lacks %s scope", ErrBadCredentials, requiredScope)
}

// EnsureTeam returns the team with the given name, creating it (privacy
// closed) when missing. Under dry-run a missing team is logged and reported
// as absent with a nil team.
func (c *Client) EnsureTeam(ctx context.Context, org, name string) (*Team, error) {
	if org == "" || name == "" {
		return nil, fmt.Errorf("%w: EnsureTeam needs organization and team name", ErrMissingArgument)
	}
	slug := Slugify(name)

	if t, ok := cache.Get[Team](c.teams, teamKey(org, slug)); ok {
		c.log.Debug("team already exists, skipping creation", "org", org, "team", slug)
		return &t, nil
	}

	if c.dryRun {
		c.log.Info("creating team", "org", org, "team", slug, "dry_run", true)
		return nil, nil
	}

	var created *github.Team
	err := c.withRetry(ctx, "team:create", func() error {
		if err := c.throttle.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		c.calls.Add(1)
		t, _, err := c.gh.Teams.CreateTeam(ctx, org, github.NewTeam{
			Name:    slug,
			Privacy: github.Ptr(string(PrivacyClosed)),
		})
		created = t
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("creating team %s/%s: %w", org, slug, err)
	}

	team := Team{
		ID:           created.GetID(),
		Organization: org,
		Name:         created.GetName(),
		Slug:         created.GetSlug(),
	}
	if team.Slug == "" {
		team.Slug = slug
	}
	if err := cache.Set(c.teams, teamKey(org, slug), team); err != nil {
		return nil, err
	}
	c.log.Info("creating team", "org", org, "team", slug)
	return &team, nil
}

// RemoveTeam deletes the team with the given name, if it exists.
func (c *Client) RemoveTeam(ctx context.Context, org, name string) error {
	if org == "" || name == "" {
		return fmt.Errorf("%w: RemoveTeam needs organization and team name", ErrMissingArgument)
	}
	slug := Slugify(name)

	if c.dryRun {
		c.log.Info("removing team", "org", org, "team", slug, "dry_run", true)
		return nil
	}

	err := c.withRetry(ctx, "team:delete", func() error {
		if err := c.throttle.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		c.calls.Add(1)
		_, err := c.gh.Teams.DeleteTeamBySlug(ctx, org, slug)
		return err
	})
	if err != nil {
		if notFound(err) {
			c.log.Debug("team not present, nothing to remove", "org", org, "team", slug)
			return nil
		}
		return fmt.Errorf("removing team %s/%s: %w", org, slug, err)
	}

	c.teams.Delete(teamKey(org, slug))
	c.teams.Delete(teamMembersKey(org, slug))
	c.log.Info("removing team", "org", org, "team", slug)
	return nil
}

// EditTeam updates a team's visibility.
func (c *Client) EditTeam(ctx context.Context, org, name string, privacy Privacy) error {
	if org == "" || name == "" {
		return fmt.Errorf("%w: EditTeam needs organization and team name", ErrMissingArgument)
	}
	slug := Slugify(name)

	if c.dryRun {
		c.log.Info("updating team settings", "org", org, "team", slug, "privacy", privacy, "dry_run", true)
		return nil
	}

	err := c.withRetry(ctx, "team:edit", func() error {
		if err := c.throttle.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		c.calls.Add(1)
		_, _, err := c.gh.Teams.EditTeamBySlug(ctx, org, slug, github.NewTeam{
			Name:    slug,
			Privacy: github.Ptr(string(privacy)),
		}, false)
		return err
	})
	if err != nil {
		return fmt.Errorf("updating team %s/%s: %w", org, slug, err)
	}
	c.log.Debug("updating team settings", "org", org, "team", slug, "privacy", privacy)
	return nil
}

// EnsureRepo creates the repository if it does not already exist.
func (c *Client) EnsureRepo(ctx context.Context, org, repo string) error {
	if org == "" || repo == "" {
		return fmt.Errorf("%w: EnsureRepo needs organization and repository", ErrMissingArgument)
	}

	if _, ok := cache.Get[Repo](c.repos, repoKey(org, repo)); ok {
		c.log.Debug("repository already exists, skipping creation", "org", org, "repo", repo)
		return nil
	}

	if c.dryRun {
		c.log.Info("creating repository", "org", org, "repo", repo, "dry_run", true)
		return nil
	}

	newRepo := &github.Repository{Name: github.Ptr(repo)}
	if c.repoLicense != "" {
		newRepo.LicenseTemplate = github.Ptr(c.repoLicense)
	}
	err := c.withRetry(ctx, "repos:create", func() error {
		if err := c.throttle.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		c.calls.Add(1)
		_, _, err := c.gh.Repositories.Create(ctx, org, newRepo)
		return err
	})
	if err != nil {
		return fmt.Errorf("creating repository %s/%s: %w", org, repo, err)
	}

	if err := cache.Set(c.repos, repoKey(org, repo), Repo{Organization: org, Name: repo}); err != nil {
		return err
	}
	c.log.Info("creating repository", "org", org, "repo", repo)
	return nil
}

// EnsureRepoTeamBinding grants the team the given permission on the repo.
// With overwrite disabled the binding is left alone when the team already
// manages the repo, preserving manually elevated grants.
func (c *Client) EnsureRepoTeamBinding(ctx context.Context, org, team, repo string, perm Permission, overwrite bool) error {
	if org == "" || team == "" || repo == "" {
		return fmt.Errorf("%w: EnsureRepoTeamBinding needs organization, team and repository", ErrMissingArgument)
	}
	slug := Slugify(team)

	if !overwrite && c.teamManagesRepo(ctx, org, slug, repo) {
		c.log.Debug("repository already managed by team, not overwriting",
			"org", org, "repo", repo, "team", slug)
		return nil
	}

	if c.dryRun {
		c.log.Info("binding repository to team",
			"org", org, "repo", repo, "team", slug, "permission", perm, "dry_run", true)
		return nil
	}

	err := c.withRetry(ctx, "team:addRepo", func() error {
		if err := c.throttle.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		c.calls.Add(1)
		_, err := c.gh.Teams.AddTeamRepoBySlug(ctx, org, slug, org, repo, &github.TeamAddTeamRepoOptions{
			Permission: string(perm),
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("binding %s/%s to team %s: %w", org, repo, slug, err)
	}

	if err := cache.Set(c.teams, teamManagesKey(org, repo, slug), true); err != nil {
		return err
	}
	c.log.Info("binding repository to team", "org", org, "repo", repo, "team", slug, "permission", perm)
	return nil
}

// teamManagesRepo reports whether the team already has access to the repo,
// consulting the dedicated manages cache entry first. Errors degrade to
// false.
func (c *Client) teamManagesRepo(ctx context.Context, org, slug, repo string) bool {
	key := teamManagesKey(org, repo, slug)
	if managed, ok := cache.Get[bool](c.teams, key); ok {
		return managed
	}

	var managed bool
	err := c.withRetry(ctx, "team:checkManagesRepo", func() error {
		_, resp, err := c.gh.Teams.IsTeamRepoBySlug(ctx, org, slug, org, repo)
		if err != nil {
			if resp != nil && resp.StatusCode == http.StatusNotFound {
				managed = false
				return nil
			}
			return err
		}
		managed = true
		return nil
	})
	if err != nil {
		c.log.Warn("could not determine repo management, assuming unmanaged",
			"org", org, "repo", repo, "team", slug, "error", err)
		return false
	}

	if err := cache.Set(c.teams, key, managed); err != nil {
		c.log.Warn("could not cache repo management state", "key", key, "error", err)
	}
	return managed
}

// TeamMembers returns the logins of all members of the team, fetched page
// by page and cached.
func (c *Client) TeamMembers(ctx context.Context, org, team string) ([]string, error) {
	if org == "" || team == "" {
		return nil, fmt.Errorf("%w: TeamMembers needs organization and team name", ErrMissingArgument)
	}
	slug := Slugify(team)
	key := teamMembersKey(org, slug)

	if members, ok := cache.Get[[]string](c.teams, key); ok {
		c.log.Debug("found cached team members", "key", key)
		return members, nil
	}

	var members []string
	opts := &github.TeamListTeamMembersOptions{ListOptions: github.ListOptions{PerPage: 100}}
	for {
		var (
			page []*github.User
			resp *github.Response
		)
		err := c.withRetry(ctx, "team:listMembers", func() error {
			var err error
			page, resp, err = c.gh.Teams.ListTeamMembersBySlug(ctx, org, slug, opts)
			return err
		})
		if err != nil {
			if notFound(err) {
				return nil, fmt.Errorf("team %s/%s: %w", org, slug, ErrNotFound)
			}
			return nil, fmt.Errorf("listing members of %s/%s: %w", org, slug, err)
		}
		for _, u := range page {
			members = append(members, u.GetLogin())
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	if err := cache.Set(c.teams, key, members); err != nil {
		return nil, err
	}
	return members, nil
}

// InviteToTeam adds the user to the team. Inviting an existing member is a
// no-op.
func (c *Client) InviteToTeam(ctx context.Context, org, team, user string) error {
	if org == "" || team == "" || user == "" {
		return fmt.Errorf("%w: InviteToTeam needs organization, team and username", ErrMissingArgument)
	}
	slug := Slugify(team)

	members, err := c.TeamMembers(ctx, org, slug)
	if err == nil && containsFold(members, user) {
		c.log.Debug("user already a team member, not inviting", "org", org, "team", slug, "user", user)
		return nil
	}

	if c.dryRun {
		c.log.Info("inviting user to team", "org", org, "team", slug, "user", user, "dry_run", true)
		return nil
	}

	err = c.withRetry(ctx, "team:addMembership", func() error {
		if err := c.throttle.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		c.calls.Add(1)
		_, _, err := c.gh.Teams.AddTeamMembershipBySlug(ctx, org, slug, user, nil)
		return err
	})
	if err != nil {
		return fmt.Errorf("inviting %s to %s/%s: %w", user, org, slug, err)
	}

	c.appendCachedMember(org, slug, user)
	c.log.Info("inviting user to team", "org", org, "team", slug, "user", user)
	return nil
}

// RemoveFromTeam removes the user from the team, if they are a member.
func (c *Client) RemoveFromTeam(ctx context.Context, org, team, user string) error {
	if org == "" || team == "" || user == "" {
		return fmt.Errorf("%w: RemoveFromTeam needs organization, team and username", ErrMissingArgument)
	}
	slug := Slugify(team)

	members, err := c.TeamMembers(ctx, org, slug)
	if err == nil && !containsFold(members, user) {
		c.log.Debug("user not a team member, nothing to remove", "org", org, "team", slug, "user", user)
		return nil
	}

	if c.dryRun {
		c.log.Info("removing user from team", "org", org, "team", slug, "user", user, "dry_run", true)
		return nil
	}

	err = c.withRetry(ctx, "team:removeMembership", func() error {
		if err := c.throttle.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		c.calls.Add(1)
		_, err := c.gh.Teams.RemoveTeamMembershipBySlug(ctx, org, slug, user)
		return err
	})
	if err != nil {
		return fmt.Errorf("removing %s from %s/%s: %w", user, org, slug, err)
	}

	c.dropCachedMember(org, slug, user)
	c.log.Info("removing user from team", "org", org, "team", slug, "user", user)
	return nil
}

// RepoCollaborators returns the logins of the repository's direct
// collaborators.
func (c *Client) RepoCollaborators(ctx context.Context, org, repo string) ([]string, error) {
	if org == "" || repo == "" {
		return nil, fmt.Errorf("%w: RepoCollaborators needs organization and repository", ErrMissingArgument)
	}
	key := repoCollaboratorsKey(org, repo)

	if collabs, ok := cache.Get[[]string](c.repos, key); ok {
		c.log.Debug("found cached repo collaborators", "key", key)
		return collabs, nil
	}

	var collabs []string
	opts := &github.ListCollaboratorsOptions{
		Affiliation: "direct",
		ListOptions: github.ListOptions{PerPage: 100},
	}
	for {
		var (
			page []*github.User
			resp *github.Response
		)
		err := c.withRetry(ctx, "repos:listCollaborators", func() error {
			var err error
			page, resp, err = c.gh.Repositories.ListCollaborators(ctx, org, repo, opts)
			return err
		})
		if err != nil {
			if notFound(err) {
				return nil, fmt.Errorf("repository %s/%s: %w", org, repo, ErrNotFound)
			}
			return nil, fmt.Errorf("listing collaborators of %s/%s: %w", org, repo, err)
		}
		for _, u := range page {
			collabs = append(collabs, u.GetLogin())
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	if err := cache.Set(c.repos, key, collabs); err != nil {
		return nil, err
	}
	return collabs, nil
}

// RemoveCollaborator removes a direct collaborator from the repository.
func (c *Client) RemoveCollaborator(ctx context.Context, org, repo, user string) error {
	if org == "" || repo == "" || user == "" {
		return fmt.Errorf("%w: RemoveCollaborator needs organization, repository and username", ErrMissingArgument)
	}

	collabs, err := c.RepoCollaborators(ctx, org, repo)
	if err == nil && !containsFold(collabs, user) {
		c.log.Debug("user not a collaborator, nothing to remove", "org", org, "repo", repo, "user", user)
		return nil
	}

	if c.dryRun {
		c.log.Info("removing repository collaborator", "org", org, "repo", repo, "user", user, "dry_run", true)
		return nil
	}

	err = c.withRetry(ctx, "repos:removeCollaborator", func() error {
		if err := c.throttle.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		c.calls.Add(1)
		_, err := c.gh.Repositories.RemoveCollaborator(ctx, org, repo, user)
		return err
	})
	if err != nil {
		return fmt.Errorf("removing collaborator %s from %s/%s: %w", user, org, repo, err)
	}

	if collabs != nil {
		if err := cache.Set(c.repos, repoCollaboratorsKey(org, repo), removeFold(collabs, user)); err != nil {
			c.log.Warn("could not update collaborator cache", "org", org, "repo", repo, "error", err)
		}
	}
	c.log.Info("removing repository collaborator", "org", org, "repo", repo, "user", user)
	return nil
}

// OutsideCollaborators returns the logins of the organization's outside
// collaborators.
func (c *Client) OutsideCollaborators(ctx context.Context, org string) ([]string, error) {
	if org == "" {
		return nil, fmt.Errorf("%w: OutsideCollaborators needs organization", ErrMissingArgument)
	}
	key := orgCollaboratorsKey(org)

	if collabs, ok := cache.Get[[]string](c.orgs, key); ok {
		c.log.Debug("found cached outside collaborators", "key", key)
		return collabs, nil
	}

	var collabs []string
	opts := &github.ListOutsideCollaboratorsOptions{ListOptions: github.ListOptions{PerPage: 100}}
	for {
		var (
			page []*github.User
			resp *github.Response
		)
		err := c.withRetry(ctx, "orgs:listOutsideCollaborators", func() error {
			var err error
			page, resp, err = c.gh.Organizations.ListOutsideCollaborators(ctx, org, opts)
			return err
		})
		if err != nil {
			if notFound(err) {
				return nil, fmt.Errorf("organization %s: %w", org, ErrNotFound)
			}
			return nil, fmt.Errorf("listing outside collaborators of %s: %w", org, err)
		}
		for _, u := range page {
			collabs = append(collabs, u.GetLogin())
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	if err := cache.Set(c.orgs, key, collabs); err != nil {
		return nil, err
	}
	return collabs, nil
}

// RemoveOutsideCollaborator removes an outside collaborator from the
// organization.
func (c *Client) RemoveOutsideCollaborator(ctx context.Context, org, user string) error {
	if org == "" || user == "" {
		return fmt.Errorf("%w: RemoveOutsideCollaborator needs organization and username", ErrMissingArgument)
	}

	collabs, err := c.OutsideCollaborators(ctx, org)
	if err == nil && !containsFold(collabs, user) {
		c.log.Debug("user not an outside collaborator, nothing to remove", "org", org, "user", user)
		return nil
	}

	if c.dryRun {
		c.log.Info("removing outside collaborator", "org", org, "user", user, "dry_run", true)
		return nil
	}

	err = c.withRetry(ctx, "orgs:removeOutsideCollaborator", func() error {
		if err := c.throttle.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		c.calls.Add(1)
		_, err := c.gh.Organizations.RemoveOutsideCollaborator(ctx, org, user)
		return err
	})
	if err != nil {
		return fmt.Errorf("removing outside collaborator %s from %s: %w", user, org, err)
	}

	if collabs != nil {
		if err := cache.Set(c.orgs, orgCollaboratorsKey(org), removeFold(collabs, user)); err != nil {
			c.log.Warn("could not update outside collaborator cache", "org", org, "error", err)
		}
	}
	c.log.Info("removing outside collaborator", "org", org, "user", user)
	return nil
}

// PrefetchTeams bulk-fills the team cache for the organization. Repeated
// calls for the same organization are no-ops.
func (c *Client) PrefetchTeams(ctx context.Context, org string) error {
	if org == "" {
		return fmt.Errorf("%w: PrefetchTeams needs organization", ErrMissingArgument)
	}
	if c.prefetchedTeams[org] {
		return nil
	}
	c.log.Debug("prefetching teams", "org", org)

	count := 0
	opts := &github.ListOptions{PerPage: 100}
	for {
		var (
			page []*github.Team
			resp *github.Response
		)
		err := c.withRetry(ctx, "team:list", func() error {
			var err error
			page, resp, err = c.gh.Teams.ListTeams(ctx, org, opts)
			return err
		})
		if err != nil {
			return fmt.Errorf("prefetching teams for %s: %w", org, err)
		}
		for _, t := range page {
			team := Team{
				ID:           t.GetID(),
				Organization: org,
				Name:         t.GetName(),
				Slug:         t.GetSlug(),
			}
			if err := cache.Set(c.teams, teamKey(org, Slugify(team.Slug)), team); err != nil {
				return err
			}
			count++
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	c.prefetchedTeams[org] = true
	c.log.Debug("finished prefetching teams", "org", org, "count", count)
	return nil
}

// PrefetchRepos bulk-fills the repo cache for the organization. Repeated
// calls for the same organization are no-ops.
func (c *Client) PrefetchRepos(ctx context.Context, org string) error {
	if org == "" {
		return fmt.Errorf("%w: PrefetchRepos needs organization", ErrMissingArgument)
	}
	if c.prefetchedRepos[org] {
		return nil
	}
	c.log.Debug("prefetching repositories", "org", org)

	count := 0
	opts := &github.RepositoryListByOrgOptions{ListOptions: github.ListOptions{PerPage: 100}}
	for {
		var (
			page []*github.Repository
			resp *github.Response
		)
		err := c.withRetry(ctx, "repos:listForOrg", func() error {
			var err error
			page, resp, err = c.gh.Repositories.ListByOrg(ctx, org, opts)
			return err
		})
		if err != nil {
			return fmt.Errorf("prefetching repositories for %s: %w", org, err)
		}
		for _, r := range page {
			repo := Repo{Organization: org, Name: r.GetName()}
			if err := cache.Set(c.repos, repoKey(org, repo.Name), repo); err != nil {
				return err
			}
			count++
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	c.prefetchedRepos[org] = true
	c.log.Debug("finished prefetching repositories", "org", org, "count", count)
	return nil
}

// UpdateOrgPermissions applies the organization-wide default permission
// policy.
func (c *Client) UpdateOrgPermissions(ctx context.Context, org string, policy OrgPolicy) error {
	if org == "" {
		return fmt.Errorf("%w: UpdateOrgPermissions needs organization", ErrMissingArgument)
	}

	if c.dryRun {
		c.log.Info("updating organization permissions", "org", org, "policy", policy, "dry_run", true)
		return nil
	}

	err := c.withRetry(ctx, "orgs:update", func() error {
		if err := c.throttle.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		c.calls.Add(1)
		_, _, err := c.gh.Organizations.Edit(ctx, org, &github.Organization{
			DefaultRepoPermission:                github.Ptr(policy.DefaultRepoPermission),
			MembersCanCreateRepos:                github.Ptr(policy.MembersCanCreateRepos),
			MembersCanCreatePrivateRepos:         github.Ptr(policy.MembersCanCreatePrivate),
			MembersCanCreatePublicRepos:          github.Ptr(policy.MembersCanCreatePublic),
			MembersAllowedRepositoryCreationType: github.Ptr(policy.AllowedRepoCreationType),
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("updating permissions for %s: %w", org, err)
	}
	c.log.Info("updating organization permissions", "org", org, "policy", policy)
	return nil
}

// withRetry runs fn, retrying up to maxRetries times when the platform
// signals a rate limit or abuse detection. The server-advised delay is
// honored when present, otherwise an exponential backoff supplies the wait.
func (c *Client) withRetry(ctx context.Context, op string, fn func() error) error {
	bo := backoff.NewExponentialBackOff()
	var attempt uint64
	for {
		err := fn()
		if err == nil {
			return nil
		}
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return perm.Unwrap()
		}
		if !isRateLimit(err) || attempt >= c.maxRetries {
			return err
		}

		wait := retryAfter(err)
		if wait <= 0 {
			wait = bo.NextBackOff()
		}
		attempt++
		c.log.Warn("rate limited by platform, backing off",
			"op", op, "wait", wait, "attempt", attempt, "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func isRateLimit(err error) bool {
	var rate *github.RateLimitError
	var abuse *github.AbuseRateLimitError
	return errors.As(err, &rate) || errors.As(err, &abuse)
}

func retryAfter(err error) time.Duration {
	var abuse *github.AbuseRateLimitError
	if errors.As(err, &abuse) {
		return abuse.GetRetryAfter()
	}
	var rate *github.RateLimitError
	if errors.As(err, &rate) {
		return time.Until(rate.Rate.Reset.Time)
	}
	return 0
}

func notFound(err error) bool {
	var ge *github.ErrorResponse
	return errors.As(err, &ge) && ge.Response != nil && ge.Response.StatusCode == http.StatusNotFound
}

func (c *Client) appendCachedMember(org, slug, user string) {
	key := teamMembersKey(org, slug)
	members, ok := cache.Get[[]string](c.teams, key)
	if !ok {
		return
	}
	if !containsFold(members, user) {
		members = append(members, user)
	}
	if err := cache.Set(c.teams, key, members); err != nil {
		c.log.Warn("could not update member cache", "key", key, "error", err)
	}
}

func (c *Client) dropCachedMember(org, slug, user string) {
	key := teamMembersKey(org, slug)
	members, ok := cache.Get[[]string](c.teams, key)
	if !ok {
		return
	}
	if err := cache.Set(c.teams, key, removeFold(members, user)); err != nil {
		c.log.Warn("could not update member cache", "key", key, "error", err)
	}
}

func containsFold(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}

func removeFold(list []string, v string) []string {
	out := list[:0]
	for _, s := range list {
		if !strings.EqualFold(s, v) {
			out = append(out, s)
		}
	}
	return out
}

func teamKey(org, slug string) string { return org + "/" + slug }

func teamMembersKey(org, slug string) string { return teamKey(org, slug) + ":members" }

func repoKey(org, repo string) string { return org + "/" + repo }

func repoCollaboratorsKey(org, repo string) string { return repoKey(org, repo) + ":collab" }

func orgCollaboratorsKey(org string) string { return "collaborators:" + org }

func teamManagesKey(org, repo, slug string) string {
	return repoKey(org, repo) + "->" + slug + ":manages"
}
