// Package commands implements the linkpost CLI using cobra.
package commands

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/jholhewres/linkpost/pkg/linkpost/config"
)

// NewRootCmd creates the root command with every subcommand registered.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "linkpost",
		Short: "linkpost - Telegram button post composer",
		Long: `linkpost is a Telegram bot that turns any message into a post with
link buttons, shares it inline or posts it to a group/channel you administer,
and keeps an invite link for every channel it posted into.

Examples:
  linkpost serve
  linkpost serve --config ./config.yaml
  linkpost invites
  linkpost token set`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newInvitesCmd(),
		newConfigCmd(),
		newTokenCmd(),
		newSetupCmd(),
	)

	rootCmd.PersistentFlags().StringP("config", "c", "", "path to the configuration file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	return rootCmd
}

// loadConfig loads the configuration named by --config, or the discovered one.
func loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	configPath, _ := cmd.Root().PersistentFlags().GetString("config")
	return config.Load(configPath, slog.Default())
}
