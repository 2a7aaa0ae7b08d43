// Package reconcile converges the hosting platform's access-control state
// with the desired state computed from the project registry and the static
// overlay. A run is a single sequential pass: per organization it primes
// caches and applies the default permission policy, per project it syncs the
// role teams and repo bindings, per repo it purges stray collaborators, and
// once per organization it purges stray outside collaborators. No entity
// failure aborts the run; failures are logged and the pass moves on.
package reconcile

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/ossforge/forgesync/internal/forge"
	"github.com/ossforge/forgesync/internal/overlay"
	"github.com/ossforge/forgesync/internal/progress"
	"github.com/ossforge/forgesync/internal/registry"
)

// roles are the three membership groupings synced for every project, with
// the repo permission each role team receives.
var roles = []struct {
	name       string
	permission forge.Permission
	// overwrite is disabled for leads so a manually elevated grant is not
	// clobbered.
	overwrite bool
	members   func(p registry.Project) []registry.Member
}{
	{"contributors", forge.PermissionTriage, true, func(p registry.Project) []registry.Member { return p.Contributors }},
	{"committers", forge.PermissionWrite, true, func(p registry.Project) []registry.Member { return p.Committers }},
	{"project_leads", forge.PermissionMaintain, false, func(p registry.Project) []registry.Member { return p.ProjectLeads }},
}

// Forge is the hosting platform surface the reconciler drives.
type Forge interface {
	EnsureTeam(ctx context.Context, org, name string) (*forge.Team, error)
	RemoveTeam(ctx context.Context, org, name string) error
	EditTeam(ctx context.Context, org, name string, privacy forge.Privacy) error
	EnsureRepo(ctx context.Context, org, repo string) error
	EnsureRepoTeamBinding(ctx context.Context, org, team, repo string, perm forge.Permission, overwrite bool) error
	TeamMembers(ctx context.Context, org, team string) ([]string, error)
	InviteToTeam(ctx context.Context, org, team, user string) error
	RemoveFromTeam(ctx context.Context, org, team, user string) error
	RepoCollaborators(ctx context.Context, org, repo string) ([]string, error)
	RemoveCollaborator(ctx context.Context, org, repo, user string) error
	OutsideCollaborators(ctx context.Context, org string) ([]string, error)
	RemoveOutsideCollaborator(ctx context.Context, org, user string) error
	PrefetchTeams(ctx context.Context, org string) error
	PrefetchRepos(ctx context.Context, org string) error
	UpdateOrgPermissions(ctx context.Context, org string, policy forge.OrgPolicy) error
}

// Directory resolves registry identities to platform logins and back.
type Directory interface {
	ResolveMember(ctx context.Context, m registry.Member) (string, error)
	ProfileByUsername(ctx context.Context, login string) (*registry.Profile, error)
}

// Options configures a reconciliation run.
type Options struct {
	// DeletionDryRun suppresses team member removals only, logging the
	// removal that would have happened.
	DeletionDryRun bool
	// ProjectFilter restricts the run to the project with this identifier.
	ProjectFilter string
	// Webmaster is a platform login always kept as a repo collaborator.
	Webmaster string
	// OrgPolicy is applied once to every organization encountered.
	OrgPolicy forge.OrgPolicy
	Progress  progress.Reporter
	Logger    *slog.Logger
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Reconciler owns the lifecycle of one reconciliation run: the desired-state
// snapshot, the per-run bot map, and the record of which organizations have
// already been purged.
type Reconciler struct {
	forge    Forge
	dir      Directory
	bots     registry.BotMap
	static   []overlay.Team
	opts     Options
	log      *slog.Logger
	now      func() time.Time
	progress progress.Reporter

	// purgedOrgs tracks outside-collaborator purges across the whole run.
	purgedOrgs map[string]bool
}

// New creates a reconciler. The bot map and static teams are fixed for the
// run's duration.
func New(f Forge, dir Directory, bots registry.BotMap, static []overlay.Team, opts Options) *Reconciler {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	reporter := opts.Progress
	if reporter == nil {
		reporter = progress.Silent{}
	}
	return &Reconciler{
		forge:      f,
		dir:        dir,
		bots:       bots,
		static:     static,
		opts:       opts,
		log:        log,
		now:        now,
		progress:   reporter,
		purgedOrgs: make(map[string]bool),
	}
}

// Run converges the platform state for all given projects, then processes
// the static overlay. The desired-state snapshot is never mutated.
func (r *Reconciler) Run(ctx context.Context, projects []registry.Project) error {
	// The full snapshot stays around for purge decisions: whether an
	// outside collaborator is a bot depends on every project in the
	// organization, not just the ones being synced.
	all := projects
	if r.opts.ProjectFilter != "" {
		var filtered []registry.Project
		for _, p := range projects {
			if p.ID == r.opts.ProjectFilter {
				filtered = append(filtered, p)
			}
		}
		r.log.Info("restricting run to filtered project",
			"filter", r.opts.ProjectFilter, "matched", len(filtered))
		projects = filtered
	}

	r.progress.Start(len(projects))
	var orgs []string
	for i, project := range projects {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.progress.Update(i+1, project.ID)
		r.log.Info("processing project", "project", project.ID)
		r.syncProject(ctx, project)

		for _, org := range project.Organizations {
			if !containsString(orgs, org) {
				orgs = append(orgs, org)
			}
		}
	}
	r.progress.Finish()

	// All projects in these organizations have been processed; stray
	// org-level outside collaborators can now be judged.
	for _, org := range orgs {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.purgeOutsideCollaborators(ctx, all, org)
	}

	r.log.Info("beginning processing of static teams", "count", len(r.static))
	for _, team := range r.static {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.syncStaticTeam(ctx, team)
	}
	return nil
}

// syncProject ensures the project's role teams, repos, bindings and repo
// collaborator state within every organization it touches.
func (r *Reconciler) syncProject(ctx context.Context, project registry.Project) {
	preparedOrgs := make(map[string]bool)
	for _, repo := range project.Repos {
		if repo.Organization == "" || repo.Name == "" {
			continue
		}
		r.log.Info("starting repo sync", "org", repo.Organization, "repo", repo.Name)

		if !preparedOrgs[repo.Organization] {
			r.prepareOrg(ctx, repo.Organization)
			for _, role := range roles {
				r.syncTeam(ctx, repo.Organization, teamName(project.ID, role.name), role.members(project), project.ID)
			}
			preparedOrgs[repo.Organization] = true
		}

		r.purgeRepoCollaborators(ctx, project, repo.Organization, repo.Name)

		if err := r.forge.EnsureRepo(ctx, repo.Organization, repo.Name); err != nil {
			r.log.Warn("could not ensure repository",
				"org", repo.Organization, "repo", repo.Name, "error", err)
			continue
		}
		for _, role := range roles {
			err := r.forge.EnsureRepoTeamBinding(ctx, repo.Organization,
				teamName(project.ID, role.name), repo.Name, role.permission, role.overwrite)
			if err != nil {
				r.log.Warn("could not bind repository to team",
					"org", repo.Organization, "repo", repo.Name,
					"team", teamName(project.ID, role.name), "error", err)
			}
		}
	}
}

// prepareOrg primes the caches and applies the organization-wide default
// permission policy.
func (r *Reconciler) prepareOrg(ctx context.Context, org string) {
	if err := r.forge.PrefetchTeams(ctx, org); err != nil {
		r.log.Warn("team prefetch failed", "org", org, "error", err)
	}
	if err := r.forge.PrefetchRepos(ctx, org); err != nil {
		r.log.Warn("repo prefetch failed", "org", org, "error", err)
	}
	if err := r.forge.UpdateOrgPermissions(ctx, org, r.opts.OrgPolicy); err != nil {
		r.log.Warn("could not apply organization policy", "org", org, "error", err)
	}
}

func teamName(projectID, role string) string {
	return projectID + "-" + role
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func containsFold(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}
