// Package commands holds the focusflow command tree.
package commands

import (
	"github.com/spf13/cobra"

	appLog "focusflow/internal/log"
)

const defaultConfigPath = "/etc/focusflow/config.yaml"

type rootOptions struct {
	configPath string
	logLevel   string
}

func New() *cobra.Command {
	ro := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "focusflow",
		Short:         "Calendar import, sync and overlap layout service.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if ro.logLevel != "" {
				appLog.SetLevel(appLog.ParseLevel(ro.logLevel))
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.PersistentFlags().StringVar(&ro.configPath, "config", defaultConfigPath, "Path to config file.")
	cmd.PersistentFlags().StringVar(&ro.logLevel, "log-level", "", "Log level (debug, info, warn, error). Overrides config.")

	addServe(cmd, ro)
	addLayout(cmd)
	addParse(cmd)
	addVersion(cmd)
	return cmd
}
