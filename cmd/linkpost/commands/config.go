package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jholhewres/linkpost/pkg/linkpost/config"
)

// newConfigCmd creates `linkpost config`.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and create the configuration",
		Long: `Inspect and create the linkpost configuration.

Examples:
  linkpost config init
  linkpost config check`,
	}

	cmd.AddCommand(
		newConfigInitCmd(),
		newConfigCheckCmd(),
	)
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init [path]",
		Short: "Write the default configuration",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "config.yaml"
			if len(args) == 1 {
				path = args[0]
			}
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			cfg := config.Default()
			cfg.Telegram.Token = "${LINKPOST_TELEGRAM_TOKEN}"
			if err := config.Save(cfg, path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", path)
			return nil
		},
	}
}

func newConfigCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Load, validate and print the effective configuration (secrets masked)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, path, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if path == "" {
				fmt.Fprintln(out, "# no config file found; defaults and environment only")
			} else {
				fmt.Fprintf(out, "# %s\n", path)
			}

			data, err := yaml.Marshal(cfg.Redacted())
			if err != nil {
				return fmt.Errorf("marshaling config: %w", err)
			}
			fmt.Fprint(out, string(data))

			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration:\n%w", err)
			}
			fmt.Fprintln(out, "# configuration OK")
			return nil
		},
	}
}
