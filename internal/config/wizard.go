package config

import (
	"fmt"
	"strconv"

	"github.com/manifoldco/promptui"
)

// RunWizard runs an interactive configuration wizard and returns the
// resulting Config. It also saves the config to .forgesync.yml.
func RunWizard() (*Config, error) {
	fmt.Println("Welcome to forgesync! Let's configure your sync.")
	fmt.Println()

	cfg := DefaultConfig()

	// 1. Project registry endpoint.
	projectsPrompt := promptui.Prompt{
		Label: "Project registry API URL",
	}
	projectsURL, err := projectsPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("projects URL: %w", err)
	}
	cfg.Registry.ProjectsURL = projectsURL

	// 2. Accounts API endpoint.
	accountsPrompt := promptui.Prompt{
		Label: "Accounts API URL",
	}
	accountsURL, err := accountsPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("accounts URL: %w", err)
	}
	cfg.Registry.AccountsURL = accountsURL

	// 3. Webmaster account, exempt from collaborator purges.
	webmasterPrompt := promptui.Prompt{
		Label:   "Webmaster login (exempt from collaborator cleanup, blank for none)",
		Default: "",
	}
	webmaster, err := webmasterPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("webmaster login: %w", err)
	}
	cfg.Forge.Webmaster = webmaster

	// 4. Cache location.
	cachePrompt := promptui.Prompt{
		Label:   "Cache database path",
		Default: cfg.Cache.Path,
	}
	cachePath, err := cachePrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("cache path: %w", err)
	}
	cfg.Cache.Path = cachePath

	// 5. Throttle between mutating API calls.
	throttlePrompt := promptui.Prompt{
		Label:    "Throttle between write calls (milliseconds)",
		Default:  strconv.Itoa(cfg.Forge.ThrottleMS),
		Validate: validateNonNegativeInt,
	}
	throttleStr, err := throttlePrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("throttle: %w", err)
	}
	cfg.Forge.ThrottleMS, _ = strconv.Atoi(throttleStr)

	// 6. Secrets directory holding the API token.
	secretsPrompt := promptui.Prompt{
		Label:   "Secrets directory",
		Default: cfg.SecretsRoot,
	}
	secretsRoot, err := secretsPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("secrets root: %w", err)
	}
	cfg.SecretsRoot = secretsRoot

	// 7. Optional static team overlay file.
	staticPrompt := promptui.Prompt{
		Label:   "Static teams file (blank for none)",
		Default: "",
	}
	staticFile, err := staticPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("static teams file: %w", err)
	}
	cfg.StaticTeamsFile = staticFile

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Save to .forgesync.yml.
	configPath := ".forgesync.yml"
	if err := cfg.Save(configPath); err != nil {
		return nil, fmt.Errorf("saving config: %w", err)
	}

	fmt.Printf("\nConfiguration saved to %s\n", configPath)
	fmt.Printf("Place the API token in %s/api-token before running forgesync sync.\n", cfg.SecretsRoot)
	return cfg, nil
}

func validateNonNegativeInt(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("must be a number")
	}
	if n < 0 {
		return fmt.Errorf("must be non-negative")
	}
	return nil
}
