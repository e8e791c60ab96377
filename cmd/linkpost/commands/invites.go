package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jholhewres/linkpost/pkg/linkpost/invites"
)

// newInvitesCmd creates `linkpost invites`, which lists the recorded invite
// links straight from the configured store.
func newInvitesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "invites",
		Short: "List recorded invite links",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			store, err := invites.OpenStore(ctx, cfg.Database, nil)
			if err != nil {
				return err
			}
			cache, err := invites.NewCache(store, cfg.Invites.MirrorSize, nil)
			if err != nil {
				_ = store.Close()
				return err
			}
			defer cache.Close()

			records, err := cache.ListAll(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(out, "No invite links have been created yet.")
				return nil
			}
			fmt.Fprintln(out, invites.FormatRecords(records))
			return nil
		},
	}
}
