package config

import "github.com/ossforge/forgesync/internal/forge"

// DefaultConfig returns a Config with sensible defaults. The registry
// endpoints have no default and must be set in the config file or via
// environment overrides.
func DefaultConfig() *Config {
	return &Config{
		Registry: RegistryConfig{},
		Forge: ForgeConfig{
			ThrottleMS: 500,
			MaxRetries: 2,
			OrgPolicy:  forge.DefaultOrgPolicy(),
		},
		Cache: CacheConfig{
			Path:             ".forgesync/cache.db",
			HTTPTTLMinutes:   120,
			EntityTTLMinutes: 15,
		},
		GitLabHost:  "gitlab.com",
		SecretsRoot: "/run/secrets",
	}
}
