package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Forge.ThrottleMS != 500 {
		t.Errorf("expected default throttle_ms 500, got %d", cfg.Forge.ThrottleMS)
	}
	if cfg.Forge.MaxRetries != 2 {
		t.Errorf("expected default max_retries 2, got %d", cfg.Forge.MaxRetries)
	}
	if cfg.Cache.HTTPTTLMinutes != 120 {
		t.Errorf("expected default http_ttl_minutes 120, got %d", cfg.Cache.HTTPTTLMinutes)
	}
	if cfg.SecretsRoot != "/run/secrets" {
		t.Errorf("expected default secrets_root /run/secrets, got %q", cfg.SecretsRoot)
	}
	if cfg.GitLabHost != "gitlab.com" {
		t.Errorf("expected default gitlab_host gitlab.com, got %q", cfg.GitLabHost)
	}
	if cfg.Forge.OrgPolicy.DefaultRepoPermission != "read" {
		t.Errorf("expected default org repo permission read, got %q", cfg.Forge.OrgPolicy.DefaultRepoPermission)
	}
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.forgesync.yml")

	original := DefaultConfig()
	original.Registry.ProjectsURL = "https://registry.example.org/api/projects"
	original.Registry.AccountsURL = "https://accounts.example.org/api"
	original.Forge.Webmaster = "webmaster"
	original.Forge.ThrottleMS = 250
	original.Cache.Path = filepath.Join(dir, "cache.db")
	original.StaticTeamsFile = "teams.yml"

	if err := original.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.Registry.ProjectsURL != original.Registry.ProjectsURL {
		t.Errorf("projects_url: got %q, want %q", loaded.Registry.ProjectsURL, original.Registry.ProjectsURL)
	}
	if loaded.Registry.AccountsURL != original.Registry.AccountsURL {
		t.Errorf("accounts_url: got %q, want %q", loaded.Registry.AccountsURL, original.Registry.AccountsURL)
	}
	if loaded.Forge.Webmaster != original.Forge.Webmaster {
		t.Errorf("webmaster: got %q, want %q", loaded.Forge.Webmaster, original.Forge.Webmaster)
	}
	if loaded.Forge.ThrottleMS != original.Forge.ThrottleMS {
		t.Errorf("throttle_ms: got %d, want %d", loaded.Forge.ThrottleMS, original.Forge.ThrottleMS)
	}
	if loaded.Cache.Path != original.Cache.Path {
		t.Errorf("cache.path: got %q, want %q", loaded.Cache.Path, original.Cache.Path)
	}
	if loaded.StaticTeamsFile != original.StaticTeamsFile {
		t.Errorf("static_teams_file: got %q, want %q", loaded.StaticTeamsFile, original.StaticTeamsFile)
	}
}

func TestLoadMissingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nonexistent.yml")

	// Loading a missing file should return defaults, not an error.
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load of missing file failed: %v", err)
	}
	if cfg.Forge.ThrottleMS != 500 {
		t.Errorf("expected defaults for missing file, got throttle_ms %d", cfg.Forge.ThrottleMS)
	}
}

func TestValidate(t *testing.T) {
	valid := DefaultConfig()
	valid.Registry.ProjectsURL = "https://registry.example.org/api/projects"
	valid.Registry.AccountsURL = "https://accounts.example.org/api"
	if err := valid.Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}

	missingProjects := DefaultConfig()
	missingProjects.Registry.AccountsURL = "https://accounts.example.org/api"
	if err := missingProjects.Validate(); err == nil {
		t.Error("expected error for missing projects_url")
	}

	badThrottle := DefaultConfig()
	badThrottle.Registry.ProjectsURL = "https://registry.example.org/api/projects"
	badThrottle.Registry.AccountsURL = "https://accounts.example.org/api"
	badThrottle.Forge.ThrottleMS = -1
	if err := badThrottle.Validate(); err == nil {
		t.Error("expected error for negative throttle_ms")
	}

	badPolicy := DefaultConfig()
	badPolicy.Registry.ProjectsURL = "https://registry.example.org/api/projects"
	badPolicy.Registry.AccountsURL = "https://accounts.example.org/api"
	badPolicy.Forge.OrgPolicy.DefaultRepoPermission = "owner"
	if err := badPolicy.Validate(); err == nil {
		t.Error("expected error for invalid default repository permission")
	}
}

func TestSecretReader(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "api-token"), []byte("  tok-123\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "empty"), []byte(" \n"), 0600); err != nil {
		t.Fatal(err)
	}

	r, err := NewSecretReader(root)
	if err != nil {
		t.Fatalf("NewSecretReader failed: %v", err)
	}

	secret, err := r.Read("api-token")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if secret != "tok-123" {
		t.Errorf("expected trimmed secret %q, got %q", "tok-123", secret)
	}

	if _, err := r.Read("missing"); err == nil {
		t.Error("expected error for missing secret")
	}
	if _, err := r.Read("empty"); err == nil {
		t.Error("expected error for empty secret")
	}
}

func TestNewSecretReaderRelativePath(t *testing.T) {
	if _, err := NewSecretReader("relative/secrets"); err == nil {
		t.Error("expected error for relative secrets root")
	}
}
