package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// Load reads configuration from the given YAML file, then overlays
// environment variable overrides (FORGESYNC_*).
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Start from defaults.
	cfg := DefaultConfig()

	// Load YAML file if it exists.
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("accessing config %s: %w", path, err)
	}

	// Overlay environment variables: FORGESYNC_REGISTRY.PROJECTS_URL
	// maps to registry.projects_url, etc.
	if err := k.Load(env.Provider("FORGESYNC_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "FORGESYNC_"))
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to the given YAML file path.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// validRepoPermissions is the set of recognized org-level default
// repository permission values.
var validRepoPermissions = map[string]bool{
	"none":  true,
	"read":  true,
	"write": true,
	"admin": true,
}

// Validate checks that the configuration contains valid values.
func (c *Config) Validate() error {
	if c.Registry.ProjectsURL == "" {
		return fmt.Errorf("registry.projects_url is required")
	}
	if c.Registry.AccountsURL == "" {
		return fmt.Errorf("registry.accounts_url is required")
	}

	if c.Cache.Path == "" {
		return fmt.Errorf("cache.path is required")
	}
	if c.Cache.HTTPTTLMinutes < 0 {
		return fmt.Errorf("cache.http_ttl_minutes must be non-negative")
	}
	if c.Cache.EntityTTLMinutes < 0 {
		return fmt.Errorf("cache.entity_ttl_minutes must be non-negative")
	}

	if c.Forge.ThrottleMS < 0 {
		return fmt.Errorf("forge.throttle_ms must be non-negative")
	}
	if c.Forge.MaxRetries < 0 {
		return fmt.Errorf("forge.max_retries must be non-negative")
	}
	if p := c.Forge.OrgPolicy.DefaultRepoPermission; p != "" && !validRepoPermissions[p] {
		return fmt.Errorf("invalid forge.org_policy.default_repository_permission %q: must be one of none, read, write, admin", p)
	}

	return nil
}
