package commands

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jholhewres/linkpost/pkg/linkpost/config"
	"github.com/jholhewres/linkpost/pkg/linkpost/database"
)

// newSetupCmd creates `linkpost setup`, an interactive wizard that writes
// config.yaml.
func newSetupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Create config.yaml interactively",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Root().PersistentFlags().GetString("config")
			if path == "" {
				path = "config.yaml"
			}
			return runSetup(bufio.NewReader(os.Stdin), cmd.OutOrStdout(), path)
		},
	}
}

func runSetup(reader *bufio.Reader, out io.Writer, path string) error {
	cfg := config.Default()

	fmt.Fprintln(out, "linkpost setup")
	fmt.Fprintln(out)

	fmt.Fprintf(out, "1. Bot name [%s]: ", cfg.Name)
	if name := readLine(reader); name != "" {
		cfg.Name = name
	}

	fmt.Fprint(out, "2. Admin Telegram user ID (for /invite and site watch): ")
	if raw := readLine(reader); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("admin ID must be numeric: %w", err)
		}
		cfg.AdminID = id
	}

	fmt.Fprintf(out, "3. Database backend (sqlite, postgresql, mongodb, memory) [%s]: ", cfg.Database.Backend)
	if raw := readLine(reader); raw != "" {
		backend := database.BackendType(strings.ToLower(raw))
		if !backend.Known() {
			return fmt.Errorf("unknown backend %q", raw)
		}
		cfg.Database.Backend = backend
	}
	switch cfg.Database.Backend {
	case database.BackendSQLite:
		fmt.Fprintf(out, "   SQLite path [%s]: ", cfg.Database.SQLite.Path)
		if p := readLine(reader); p != "" {
			cfg.Database.SQLite.Path = p
		}
	case database.BackendPostgreSQL:
		fmt.Fprintf(out, "   PostgreSQL host [%s]: ", cfg.Database.PostgreSQL.Host)
		if h := readLine(reader); h != "" {
			cfg.Database.PostgreSQL.Host = h
		}
		fmt.Fprint(out, "   Database name: ")
		cfg.Database.PostgreSQL.Database = readLine(reader)
		fmt.Fprint(out, "   User: ")
		cfg.Database.PostgreSQL.User = readLine(reader)
		cfg.Database.PostgreSQL.Password = "${LINKPOST_POSTGRES_PASSWORD}"
	case database.BackendMongoDB:
		fmt.Fprint(out, "   MongoDB URI: ")
		cfg.Database.MongoDB.URI = readLine(reader)
	}

	fmt.Fprint(out, "4. Watch websites? (y/n) [y]: ")
	if ans := strings.ToLower(readLine(reader)); ans == "n" || ans == "no" {
		cfg.Sitewatch.Enabled = false
	}

	fmt.Fprint(out, "5. Store the bot token in the OS keyring now? (y/n) [y]: ")
	cfg.Telegram.Token = "${LINKPOST_TELEGRAM_TOKEN:-}"
	if ans := strings.ToLower(readLine(reader)); ans == "" || ans == "y" || ans == "yes" {
		token, err := readPassword("   Bot token (hidden input): ")
		if err != nil {
			return err
		}
		if token != "" {
			if err := config.StoreToken(token); err != nil {
				fmt.Fprintf(out, "   Keyring unavailable (%v); set LINKPOST_TELEGRAM_TOKEN instead.\n", err)
			}
		}
	}

	if _, err := os.Stat(path); err == nil {
		if err := os.Rename(path, path+".bak"); err != nil {
			return fmt.Errorf("backing up %s: %w", path, err)
		}
		fmt.Fprintf(out, "Existing %s saved as %s.bak\n", path, path)
	}
	if err := config.Save(cfg, path); err != nil {
		return err
	}
	fmt.Fprintf(out, "\nConfiguration written to %s. Start the bot with: linkpost serve\n", path)
	return nil
}

func readLine(reader *bufio.Reader) string {
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line)
}
