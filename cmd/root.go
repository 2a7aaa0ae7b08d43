package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "forgesync",
	Short: "Reconcile hosting platform access against a project registry",
	Long: `Forgesync converges teams, memberships, repository bindings and
collaborators on a repository hosting platform to match the desired
state published by a project registry. Each project gets one team per
role, members are invited and removed as the registry changes, and
collaborators outside the registry are purged. A static overlay file
can add teams the registry does not know about.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", ".forgesync.yml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// newLogger builds the process logger. Verbose mode lowers the level to
// debug so per-entity decisions become visible.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
