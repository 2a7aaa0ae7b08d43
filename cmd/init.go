package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ossforge/forgesync/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize forgesync configuration with an interactive wizard",
	Long:  `Runs an interactive wizard to configure forgesync and generates a .forgesync.yml file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := config.RunWizard()
		return err
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
