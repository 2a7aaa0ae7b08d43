package config

import "github.com/ossforge/forgesync/internal/forge"

// RegistryConfig points at the project registry APIs that supply
// desired state: project definitions, user profiles and bot exemptions.
type RegistryConfig struct {
	ProjectsURL string `yaml:"projects_url" koanf:"projects_url"`
	AccountsURL string `yaml:"accounts_url" koanf:"accounts_url"`
}

// CacheConfig controls the on-disk cache of remote state.
type CacheConfig struct {
	Path             string `yaml:"path" koanf:"path"`
	HTTPTTLMinutes   int    `yaml:"http_ttl_minutes" koanf:"http_ttl_minutes"`
	EntityTTLMinutes int    `yaml:"entity_ttl_minutes" koanf:"entity_ttl_minutes"`
}

// ForgeConfig holds settings for the hosting platform being reconciled.
type ForgeConfig struct {
	BaseURL     string          `yaml:"base_url" koanf:"base_url"`
	Webmaster   string          `yaml:"webmaster" koanf:"webmaster"`
	RepoLicense string          `yaml:"repo_license" koanf:"repo_license"`
	ThrottleMS  int             `yaml:"throttle_ms" koanf:"throttle_ms"`
	MaxRetries  int             `yaml:"max_retries" koanf:"max_retries"`
	OrgPolicy   forge.OrgPolicy `yaml:"org_policy" koanf:"org_policy"`
}

// Config is the top-level forgesync configuration, corresponding to .forgesync.yml.
type Config struct {
	Registry        RegistryConfig `yaml:"registry" koanf:"registry"`
	Forge           ForgeConfig    `yaml:"forge" koanf:"forge"`
	Cache           CacheConfig    `yaml:"cache" koanf:"cache"`
	StaticTeamsFile string         `yaml:"static_teams_file" koanf:"static_teams_file"`
	GitLabHost      string         `yaml:"gitlab_host" koanf:"gitlab_host"`
	SecretsRoot     string         `yaml:"secrets_root" koanf:"secrets_root"`
}
