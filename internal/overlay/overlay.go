// Package overlay loads hand-authored static team definitions and filters
// them per hosting service. Static teams are merged on top of the
// registry-derived desired state; an expired static team is deleted, not
// skipped, on the next reconciliation.
//
// Teams should not be removed from the definitions file until they have
// been removed manually or expired and automatically deleted, otherwise
// they become orphan teams no longer under management.
package overlay

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ossforge/forgesync/internal/registry"
)

// Service identifies a repository hosting service.
type Service string

const (
	ServiceGitHub Service = "github"
	ServiceGitLab Service = "gitlab"
)

// Symbolic permission levels used in team definitions, mapped to
// service-native values when teams are processed.
const (
	PermRead     = "READ"
	PermTriage   = "TRIAGE"
	PermWrite    = "WRITE"
	PermMaintain = "MAINTAIN"
	PermAdmin    = "ADMIN"
)

// permissionsByService maps symbolic permissions to each service's native
// representation: permission names on GitHub, access levels on GitLab.
var permissionsByService = map[string]map[Service]string{
	PermRead:     {ServiceGitHub: "pull", ServiceGitLab: "10"},
	PermTriage:   {ServiceGitHub: "triage", ServiceGitLab: "20"},
	PermWrite:    {ServiceGitHub: "push", ServiceGitLab: "30"},
	PermMaintain: {ServiceGitHub: "maintain", ServiceGitLab: "40"},
	PermAdmin:    {ServiceGitHub: "admin", ServiceGitLab: "40"},
}

// Definition is one raw entry from the static teams file. Repo URLs may
// span multiple hosting services; processing filters them per service.
type Definition struct {
	TeamName   string            `yaml:"team_name"`
	Repos      []string          `yaml:"repos"`
	Members    []registry.Member `yaml:"members"`
	Permission string            `yaml:"permission"`
	Expiration string            `yaml:"expiration"`
}

// Team is a static team narrowed to a single service: only that service's
// repos, with the permission translated to the service-native value.
type Team struct {
	Name       string
	Repos      []string
	Members    []registry.Member
	Permission string
	Expiration string
}

// Expired reports whether the team's expiration has passed. Expired teams
// are deleted on the next run.
func (t Team) Expired(now time.Time) bool {
	if t.Expiration == "" {
		return false
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if exp, err := time.Parse(layout, t.Expiration); err == nil {
			return exp.Before(now)
		}
	}
	return false
}

// Options configures a Manager.
type Options struct {
	// GitLabHost is the host matched when filtering repos for the GitLab
	// service.
	GitLabHost string
	Logger     *slog.Logger
}

// Manager holds the static team definitions for a run.
type Manager struct {
	defs       []Definition
	log        *slog.Logger
	githubRepo *regexp.Regexp
	gitlabRepo *regexp.Regexp
}

// NewManager creates a manager over the given definitions.
func NewManager(defs []Definition, opts Options) *Manager {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	gitlabHost := opts.GitLabHost
	if gitlabHost == "" {
		gitlabHost = "gitlab.com"
	}
	return &Manager{
		defs:       defs,
		log:        log,
		githubRepo: regexp.MustCompile(`^(https://)?(www\.)?github\.com/.*$`),
		gitlabRepo: regexp.MustCompile(`^(https://)?(www\.)?` + regexp.QuoteMeta(gitlabHost) + `/.*$`),
	}
}

// Load reads static team definitions from a YAML file. A missing path
// yields an empty manager: the overlay is optional.
func Load(path string, opts Options) (*Manager, error) {
	if path == "" {
		return NewManager(nil, opts), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewManager(nil, opts), nil
		}
		return nil, fmt.Errorf("reading static teams %s: %w", path, err)
	}
	var defs []Definition
	if err := yaml.Unmarshal(raw, &defs); err != nil {
		return nil, fmt.Errorf("parsing static teams %s: %w", path, err)
	}
	return NewManager(defs, opts), nil
}

// TeamsFor returns the static teams applicable to the given service:
// definitions with at least one repo on that service and a recognized
// permission.
func (m *Manager) TeamsFor(service Service) []Team {
	var out []Team
	for _, def := range m.defs {
		perm := m.permissionFor(def, service)
		if perm == "" {
			m.log.Warn("static team has unrecognized permission, skipping",
				"team", def.TeamName, "permission", def.Permission)
			continue
		}

		var repos []string
		for _, repo := range def.Repos {
			if m.matchesService(repo, service) {
				repos = append(repos, repo)
			} else {
				m.log.Debug("repo not applicable to service, skipping",
					"team", def.TeamName, "repo", repo, "service", service)
			}
		}
		if len(repos) == 0 {
			continue
		}

		out = append(out, Team{
			Name:       def.TeamName,
			Repos:      repos,
			Members:    def.Members,
			Permission: perm,
			Expiration: def.Expiration,
		})
	}
	return out
}

func (m *Manager) matchesService(repo string, service Service) bool {
	switch service {
	case ServiceGitHub:
		return m.githubRepo.MatchString(repo)
	case ServiceGitLab:
		return m.gitlabRepo.MatchString(repo)
	}
	return false
}

func (m *Manager) permissionFor(def Definition, service Service) string {
	levels, ok := permissionsByService[def.Permission]
	if !ok {
		return ""
	}
	return levels[service]
}
