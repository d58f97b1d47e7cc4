package main

import (
	"github.com/spf13/cobra"
)

var configPath string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "version-vault",
		Short: "Switch components of a workspace between tagged versions",
		Long: `version-vault tracks components of a working tree and switches them
between tagged versions, merging local edits into the target version.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml",
		"Path to configuration file")

	root.AddCommand(
		newUseCmd(),
		newAddCmd(),
		newTagCmd(),
		newVersionsCmd(),
		newDiffCmd(),
		newStatusCmd(),
		newServeCmd(),
	)
	return root
}

// withApp opens the workspace around fn
func withApp(fn func(a *app, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := openApp(configPath)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(a, cmd, args)
	}
}
