package main

import (
	"github.com/spf13/cobra"

	"github.com/cohortlabs/cohort-stack/membership/internal/config"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "membership",
		Short: "Group membership service",
		Long: `membership validates, authorizes and applies group and membership
changes received over NATS, and records an audit event for each of them.`,
		Version:       "0.1.0",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().String("config", "", "config file (default: ./config.yaml or /etc/cohort/membership/config.yaml)")

	root.AddCommand(newServeCmd(), newValidateCmd(), newTokenCmd())
	return root
}

// loadConfig loads the configuration named by the --config flag.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}
