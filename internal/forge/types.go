// Package forge talks to the repository hosting platform holding the
// organizations under management. It is the single owner of all remote
// mutation calls: every write is throttled, retried on rate-limit signals,
// counted, and suppressed under dry-run. Reads go through the time-bounded
// caches so repeated reconciliation passes stay cheap.
package forge

import (
	"regexp"
	"strings"
)

// Permission is a repository access level on the hosting platform.
type Permission string

const (
	PermissionRead     Permission = "pull"
	PermissionTriage   Permission = "triage"
	PermissionWrite    Permission = "push"
	PermissionMaintain Permission = "maintain"
	PermissionAdmin    Permission = "admin"
)

// Privacy is a team visibility level.
type Privacy string

const (
	// PrivacyClosed makes a team visible to all organization members.
	PrivacyClosed Privacy = "closed"
	// PrivacySecret hides a team from non-members.
	PrivacySecret Privacy = "secret"
)

// Team is a platform team within an organization. Slug is the sanitized
// form of the name and the identity used for all lookups: two names that
// differ only in disallowed characters collide on the same slug and are
// the same team.
type Team struct {
	ID           int64  `json:"id"`
	Organization string `json:"organization"`
	Name         string `json:"name"`
	Slug         string `json:"slug"`
}

// Repo is a repository within an organization.
type Repo struct {
	Organization string `json:"organization"`
	Name         string `json:"name"`
}

// OrgPolicy is the organization-wide default permission policy applied once
// per organization during a run.
type OrgPolicy struct {
	DefaultRepoPermission   string `koanf:"default_repository_permission" yaml:"default_repository_permission"`
	MembersCanCreateRepos   bool   `koanf:"members_can_create_repositories" yaml:"members_can_create_repositories"`
	MembersCanCreatePrivate bool   `koanf:"members_can_create_private_repositories" yaml:"members_can_create_private_repositories"`
	MembersCanCreatePublic  bool   `koanf:"members_can_create_public_repositories" yaml:"members_can_create_public_repositories"`
	AllowedRepoCreationType string `koanf:"members_allowed_repository_creation_type" yaml:"members_allowed_repository_creation_type"`
}

// DefaultOrgPolicy locks down member repository creation and grants read by
// default.
func DefaultOrgPolicy() OrgPolicy {
	return OrgPolicy{
		DefaultRepoPermission:   "read",
		AllowedRepoCreationType: "none",
	}
}

var (
	slugDisallowed = regexp.MustCompile(`[^a-z0-9\s-]`)
	slugWhitespace = regexp.MustCompile(`\s+`)
)

// Slugify sanitizes a team name into its slug: lowercase, every character
// outside [a-z0-9-\s] replaced with a dash, whitespace runs collapsed to a
// single dash.
func Slugify(name string) string {
	s := strings.ToLower(name)
	s = slugDisallowed.ReplaceAllString(s, "-")
	s = slugWhitespace.ReplaceAllString(s, "-")
	return s
}
