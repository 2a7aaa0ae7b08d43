package reconcile

import (
	"context"
	"strings"

	"github.com/ossforge/forgesync/internal/registry"
)

// purgeRepoCollaborators removes direct repository collaborators that are
// neither the designated webmaster account, nor a bot for the project, nor
// one of its current project leads.
func (r *Reconciler) purgeRepoCollaborators(ctx context.Context, project registry.Project, org, repo string) {
	collaborators, err := r.forge.RepoCollaborators(ctx, org, repo)
	if err != nil {
		r.log.Warn("could not fetch repo collaborators", "org", org, "repo", repo, "error", err)
		return
	}
	if len(collaborators) == 0 {
		return
	}

	for _, login := range collaborators {
		if r.opts.Webmaster != "" && strings.EqualFold(login, r.opts.Webmaster) {
			continue
		}
		if r.isProjectBot(project.ID, login) {
			r.log.Info("keeping collaborator flagged as project bot",
				"org", org, "repo", repo, "user", login, "project", project.ID)
			continue
		}
		if r.isProjectLead(ctx, project, login) {
			r.log.Info("keeping collaborator who is a current project lead",
				"org", org, "repo", repo, "user", login)
			continue
		}

		if err := r.forge.RemoveCollaborator(ctx, org, repo, login); err != nil {
			r.log.Warn("could not remove collaborator",
				"org", org, "repo", repo, "user", login, "error", err)
		}
	}
}

// isProjectLead resolves the collaborator's registry profile and
// cross-references it against the project's lead list.
func (r *Reconciler) isProjectLead(ctx context.Context, project registry.Project, login string) bool {
	profile, err := r.dir.ProfileByUsername(ctx, login)
	if err != nil || profile == nil {
		return false
	}
	for _, lead := range project.ProjectLeads {
		if strings.EqualFold(lead.Username, profile.Name) {
			return true
		}
	}
	return false
}

// purgeOutsideCollaborators removes organization-level outside collaborators
// that are not a bot for any project with repositories in the organization.
// The purge runs exactly once per organization across the whole run.
func (r *Reconciler) purgeOutsideCollaborators(ctx context.Context, projects []registry.Project, org string) {
	if r.purgedOrgs[org] {
		return
	}
	r.purgedOrgs[org] = true
	r.log.Info("removing outside collaborators", "org", org)

	collaborators, err := r.forge.OutsideCollaborators(ctx, org)
	if err != nil {
		r.log.Warn("could not fetch outside collaborators", "org", org, "error", err)
		return
	}

	for _, login := range collaborators {
		r.log.Debug("checking outside collaborator", "org", org, "user", login)
		if r.isOrgBot(projects, org, login) {
			r.log.Info("keeping outside collaborator flagged as bot for org", "org", org, "user", login)
			continue
		}

		if err := r.forge.RemoveOutsideCollaborator(ctx, org, login); err != nil {
			r.log.Warn("could not remove outside collaborator",
				"org", org, "user", login, "error", err)
		}
	}
}

// isOrgBot scans the full bot map for a project that both lists login as a
// bot and has repositories within org.
func (r *Reconciler) isOrgBot(projects []registry.Project, org, login string) bool {
	for projectID, logins := range r.bots {
		if !containsFold(logins, login) {
			continue
		}
		for _, project := range projects {
			if project.ID == projectID && containsString(project.Organizations, org) {
				return true
			}
		}
	}
	return false
}
