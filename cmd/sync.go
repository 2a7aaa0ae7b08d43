package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ossforge/forgesync/internal/cache"
	"github.com/ossforge/forgesync/internal/config"
	"github.com/ossforge/forgesync/internal/forge"
	"github.com/ossforge/forgesync/internal/overlay"
	"github.com/ossforge/forgesync/internal/progress"
	"github.com/ossforge/forgesync/internal/reconcile"
	"github.com/ossforge/forgesync/internal/registry"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one reconciliation pass against the hosting platform",
	Long: `Fetches the desired state from the project registry and converges the
hosting platform to it: teams, memberships, repository bindings and
collaborator purges. Remote state is cached on disk between runs.`,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().Bool("dry-run", false, "log every write without performing it")
	syncCmd.Flags().Bool("deletion-dry-run", false, "suppress team member removals only")
	syncCmd.Flags().String("project", "", "restrict the run to one project identifier")
	syncCmd.Flags().String("secrets", "", "secrets directory (overrides config)")
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	start := time.Now()
	ctx := context.Background()
	runID := uuid.NewString()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	dryRun, _ := cmd.Flags().GetBool("dry-run")
	deletionDryRun, _ := cmd.Flags().GetBool("deletion-dry-run")
	projectFilter, _ := cmd.Flags().GetString("project")
	secretsRoot, _ := cmd.Flags().GetString("secrets")
	if secretsRoot == "" {
		secretsRoot = cfg.SecretsRoot
	}

	log := newLogger().With("run_id", runID)
	if dryRun {
		log.Info("dry-run mode: no writes will be performed")
	}
	if deletionDryRun {
		log.Info("deletion dry-run mode: team member removals suppressed")
	}

	secrets, err := config.NewSecretReader(secretsRoot)
	if err != nil {
		return err
	}
	token, err := secrets.Read("api-token")
	if err != nil {
		return err
	}

	// Open the cache store and one namespace per entity kind. Everything
	// loaded here is flushed back at the end of the run.
	store, err := cache.Open(cfg.Cache.Path)
	if err != nil {
		return fmt.Errorf("opening cache: %w", err)
	}
	defer store.Close()

	entityTTL := time.Duration(cfg.Cache.EntityTTLMinutes) * time.Minute
	httpTTL := time.Duration(cfg.Cache.HTTPTTLMinutes) * time.Minute

	teams, err := store.Cache("teams", entityTTL)
	if err != nil {
		return fmt.Errorf("opening teams cache: %w", err)
	}
	repos, err := store.Cache("repos", entityTTL)
	if err != nil {
		return fmt.Errorf("opening repos cache: %w", err)
	}
	orgs, err := store.Cache("orgs", entityTTL)
	if err != nil {
		return fmt.Errorf("opening orgs cache: %w", err)
	}
	httpCache, err := store.Cache("http", httpTTL)
	if err != nil {
		return fmt.Errorf("opening http cache: %w", err)
	}

	client, err := forge.NewClient(token, forge.Caches{Teams: teams, Repos: repos, Orgs: orgs}, forge.Options{
		DryRun:      dryRun,
		Throttle:    time.Duration(cfg.Forge.ThrottleMS) * time.Millisecond,
		MaxRetries:  uint64(cfg.Forge.MaxRetries),
		RepoLicense: cfg.Forge.RepoLicense,
		BaseURL:     cfg.Forge.BaseURL,
		Logger:      log,
	})
	if err != nil {
		return fmt.Errorf("creating platform client: %w", err)
	}
	if err := client.CheckAccess(ctx); err != nil {
		return fmt.Errorf("checking platform access: %w", err)
	}

	reg := registry.NewClient(registry.Options{
		ProjectsURL: cfg.Registry.ProjectsURL,
		AccountsURL: cfg.Registry.AccountsURL,
		Cache:       httpCache,
		Logger:      log,
	})

	static, err := overlay.Load(cfg.StaticTeamsFile, overlay.Options{
		GitLabHost: cfg.GitLabHost,
		Logger:     log,
	})
	if err != nil {
		return err
	}

	projects, err := reg.FetchProjects(ctx)
	if err != nil {
		return fmt.Errorf("fetching projects: %w", err)
	}
	log.Info("fetched projects", "count", len(projects))

	bots, err := reg.FetchBots(ctx)
	if err != nil {
		return fmt.Errorf("fetching bot exemptions: %w", err)
	}
	botMap := registry.BuildBotMap(bots, "github.com")

	rec := reconcile.New(client, reg, botMap, static.TeamsFor(overlay.ServiceGitHub), reconcile.Options{
		DeletionDryRun: deletionDryRun,
		ProjectFilter:  projectFilter,
		Webmaster:      cfg.Forge.Webmaster,
		OrgPolicy:      cfg.Forge.OrgPolicy,
		Progress:       progress.NewReporter(),
		Logger:         log,
	})
	if err := rec.Run(ctx, projects); err != nil {
		return fmt.Errorf("reconciliation: %w", err)
	}

	// Flush caches, pruning entries that expired during the run.
	for name, c := range map[string]*cache.Cache{
		"teams": teams, "repos": repos, "orgs": orgs, "http": httpCache,
	} {
		if err := c.Save(true); err != nil {
			log.Warn("saving cache failed", "namespace", name, "err", err)
		}
	}

	log.Info("sync complete",
		"duration", time.Since(start).Round(time.Millisecond).String(),
		"write_calls", client.CallCount(),
	)
	return nil
}
