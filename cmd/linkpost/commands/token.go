package commands

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/jholhewres/linkpost/pkg/linkpost/config"
)

// newTokenCmd creates `linkpost token`, which manages the bot token in the
// OS keyring.
func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage the bot token in the OS keyring",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "set",
			Short: "Store the bot token (read without echo)",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				token, err := readPassword("Bot token (hidden input): ")
				if err != nil {
					return err
				}
				if token == "" {
					return errors.New("empty token")
				}
				if err := config.StoreToken(token); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Token stored in the OS keyring.")
				return nil
			},
		},
		&cobra.Command{
			Use:   "delete",
			Short: "Remove the bot token",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				if err := config.DeleteToken(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Token removed from the OS keyring.")
				return nil
			},
		},
	)
	return cmd
}

// readPassword reads a line without echo when stdin is a terminal.
func readPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("reading input: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}

	// Piped input.
	var buf [1024]byte
	n, err := os.Stdin.Read(buf[:])
	if err != nil {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return strings.TrimSpace(string(buf[:n])), nil
}
