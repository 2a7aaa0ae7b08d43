package reconcile

import (
	"context"
	"strings"

	"github.com/ossforge/forgesync/internal/forge"
	"github.com/ossforge/forgesync/internal/overlay"
	"github.com/ossforge/forgesync/internal/registry"
)

// syncTeam converges one team's membership: ensure the team exists, invite
// every desired, unexpired, resolvable member, then work through the removal
// candidates left over from the current member list. A member present in
// both sets is neither invited nor removed. projectID is empty for static
// teams, which have no bot exemptions.
func (r *Reconciler) syncTeam(ctx context.Context, org, name string, desired []registry.Member, projectID string) {
	slug := forge.Slugify(name)
	r.log.Info("syncing team", "org", org, "team", slug)

	if _, err := r.forge.EnsureTeam(ctx, org, slug); err != nil {
		r.log.Warn("could not ensure team, skipping sync", "org", org, "team", slug, "error", err)
		return
	}
	if err := r.forge.EditTeam(ctx, org, slug, forge.PrivacySecret); err != nil {
		r.log.Warn("could not update team visibility", "org", org, "team", slug, "error", err)
	}

	current, err := r.forge.TeamMembers(ctx, org, slug)
	if err != nil {
		// Could not determine state; invitations still proceed but no
		// removal candidates can be computed.
		r.log.Warn("could not fetch current members, removals skipped",
			"org", org, "team", slug, "error", err)
	}

	remaining := append([]string(nil), current...)
	for _, member := range desired {
		if member.Expired(r.now()) {
			r.log.Debug("member expired, treating as absent from desired state",
				"org", org, "team", slug, "member", member.Username)
			continue
		}

		login, err := r.dir.ResolveMember(ctx, member)
		if err != nil {
			r.log.Warn("member has no associated registry data, skipping",
				"org", org, "team", slug, "member", member.Username, "error", err)
			continue
		}
		if login == "" {
			r.log.Warn("member has no associated platform username, skipping",
				"org", org, "team", slug, "member", member.Username)
			continue
		}

		// The login leaves the removal-candidate set before the invite
		// is attempted, so an invite failure never escalates into a
		// removal of a desired member.
		remaining = removeLogin(remaining, login)
		if err := r.forge.InviteToTeam(ctx, org, slug, login); err != nil {
			r.log.Warn("could not invite member",
				"org", org, "team", slug, "user", login, "error", err)
		}
	}

	r.removeLeftovers(ctx, org, slug, projectID, remaining)
}

// removeLeftovers processes the removal candidate set: current members not
// named by desired state. Bots for the owning project are kept; members the
// registry cannot identify are kept; everyone else is removed, unless the
// deletion dry-run flag suppresses removals.
func (r *Reconciler) removeLeftovers(ctx context.Context, org, slug, projectID string, leftovers []string) {
	for _, login := range leftovers {
		if r.isProjectBot(projectID, login) {
			r.log.Info("keeping team member flagged as project bot",
				"org", org, "team", slug, "user", login, "project", projectID)
			continue
		}

		profile, err := r.dir.ProfileByUsername(ctx, login)
		if err != nil || profile == nil || !strings.EqualFold(profile.GitHubHandle, login) {
			r.log.Warn("could not identify member in registry, not removing",
				"org", org, "team", slug, "user", login)
			continue
		}

		if r.opts.DeletionDryRun {
			r.log.Info("removing user from team",
				"org", org, "team", slug, "user", login, "deletion_dry_run", true)
			continue
		}
		if err := r.forge.RemoveFromTeam(ctx, org, slug, login); err != nil {
			r.log.Warn("could not remove member",
				"org", org, "team", slug, "user", login, "error", err)
		}
	}
}

// syncStaticTeam processes one static overlay team: expired teams are
// deleted from every organization their repos name, live teams are synced
// and bound to each repo with the configured permission.
func (r *Reconciler) syncStaticTeam(ctx context.Context, team overlay.Team) {
	slug := forge.Slugify(team.Name)
	r.log.Info("processing static team", "team", slug)

	expired := team.Expired(r.now())
	syncedOrgs := make(map[string]bool)
	for _, repoURL := range team.Repos {
		org, repoName, ok := registry.ParseRepoURL(repoURL)
		if !ok {
			r.log.Warn("cannot match org and repo from URL, skipping",
				"team", slug, "url", repoURL)
			continue
		}

		if expired {
			r.log.Info("static team expired, removing if present", "org", org, "team", slug)
			if err := r.forge.RemoveTeam(ctx, org, slug); err != nil {
				r.log.Warn("could not remove expired team", "org", org, "team", slug, "error", err)
			}
			continue
		}

		if !syncedOrgs[org] {
			if err := r.forge.PrefetchTeams(ctx, org); err != nil {
				r.log.Warn("team prefetch failed", "org", org, "error", err)
			}
			if err := r.forge.PrefetchRepos(ctx, org); err != nil {
				r.log.Warn("repo prefetch failed", "org", org, "error", err)
			}
			r.syncTeam(ctx, org, team.Name, team.Members, "")
			syncedOrgs[org] = true
		}

		err := r.forge.EnsureRepoTeamBinding(ctx, org, slug, repoName, forge.Permission(team.Permission), true)
		if err != nil {
			r.log.Warn("could not bind repository to static team",
				"org", org, "repo", repoName, "team", slug, "error", err)
		}
	}
}

// isProjectBot reports whether login is an exempt automated account for the
// given project.
func (r *Reconciler) isProjectBot(projectID, login string) bool {
	if projectID == "" {
		return false
	}
	return containsFold(r.bots[projectID], login)
}

func removeLogin(list []string, login string) []string {
	out := list[:0]
	for _, s := range list {
		if !strings.EqualFold(s, login) {
			out = append(out, s)
		}
	}
	return out
}
