// Package config defines linkpost's configuration and how it is loaded:
// defaults, then the YAML file, then LINKPOST_* environment variables, then
// the OS keyring for the bot token.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jholhewres/linkpost/pkg/linkpost/bot"
	"github.com/jholhewres/linkpost/pkg/linkpost/channels/telegram"
	"github.com/jholhewres/linkpost/pkg/linkpost/composer"
	"github.com/jholhewres/linkpost/pkg/linkpost/database"
	"github.com/jholhewres/linkpost/pkg/linkpost/invites"
	"github.com/jholhewres/linkpost/pkg/linkpost/sitewatch"
)

// ErrMissingToken is returned by Validate when no bot token was configured.
var ErrMissingToken = errors.New("config: telegram token is not set (config, LINKPOST_TELEGRAM_TOKEN or `linkpost token set`)")

// Config is the root configuration.
type Config struct {
	// Name is the bot's display name used in logs and the help text.
	Name string `yaml:"name" env:"LINKPOST_NAME"`

	// AdminID is the Telegram user allowed to run privileged commands.
	AdminID int64 `yaml:"admin_id" env:"LINKPOST_ADMIN_ID"`

	Telegram  telegram.Config    `yaml:"telegram"`
	Composer  composer.Config    `yaml:"composer"`
	Dispatch  bot.Config         `yaml:"dispatch"`
	Database  database.HubConfig `yaml:"database"`
	Invites   InvitesConfig      `yaml:"invites"`
	Sitewatch sitewatch.Config   `yaml:"sitewatch"`
	Logging   LoggingConfig      `yaml:"logging"`
}

// InvitesConfig configures the invite link cache.
type InvitesConfig struct {
	// MirrorSize is the number of records kept in the in-process LRU.
	MirrorSize int `yaml:"mirror_size" env:"LINKPOST_INVITES_MIRROR_SIZE"`
}

// LoggingConfig configures the slog handler built by `serve`.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" env:"LINKPOST_LOG_LEVEL"`

	// Format is "json" or "text".
	Format string `yaml:"format" env:"LINKPOST_LOG_FORMAT"`
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		Name:      "linkpost",
		Telegram:  telegram.DefaultConfig(),
		Composer:  composer.DefaultConfig(),
		Dispatch:  bot.DefaultConfig(),
		Database:  database.DefaultHubConfig(),
		Invites:   InvitesConfig{MirrorSize: invites.DefaultMirrorSize},
		Sitewatch: sitewatch.DefaultConfig(),
		Logging:   LoggingConfig{Level: "info", Format: "text"},
	}
}

// Validate reports configuration errors that would prevent serving.
func (c *Config) Validate() error {
	var errs []error
	if c.Telegram.Token == "" || IsEnvReference(c.Telegram.Token) {
		errs = append(errs, ErrMissingToken)
	}
	if !c.Database.Backend.Known() {
		errs = append(errs, fmt.Errorf("config: unknown database backend %q", c.Database.Backend))
	}
	if c.Database.Backend == database.BackendMongoDB && c.Database.MongoDB.URI == "" {
		errs = append(errs, errors.New("config: database.mongodb.uri is required for the mongodb backend"))
	}
	if len(c.Composer.AllowedSchemes) == 0 {
		errs = append(errs, errors.New("config: composer.allowed_schemes must not be empty"))
	}
	if c.Dispatch.MaxConcurrency < 1 {
		errs = append(errs, fmt.Errorf("config: dispatch.max_concurrency must be positive, got %d", c.Dispatch.MaxConcurrency))
	}
	if c.Sitewatch.Enabled && c.Sitewatch.Interval < time.Second {
		errs = append(errs, fmt.Errorf("config: sitewatch.interval must be at least 1s, got %s", c.Sitewatch.Interval))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "json", "text":
	default:
		errs = append(errs, fmt.Errorf("config: unknown logging.format %q", c.Logging.Format))
	}
	return errors.Join(errs...)
}

// Redacted returns a copy safe to print.
func (c *Config) Redacted() *Config {
	out := *c
	out.Telegram.Token = mask(c.Telegram.Token)
	out.Database.PostgreSQL.Password = mask(c.Database.PostgreSQL.Password)
	out.Database.MongoDB.URI = maskURI(c.Database.MongoDB.URI)
	out.Composer.AllowedSchemes = append([]string(nil), c.Composer.AllowedSchemes...)
	out.Sitewatch.Sites = append([]string(nil), c.Sitewatch.Sites...)
	return &out
}

// IsEnvReference reports whether s is an unexpanded ${VAR} placeholder.
func IsEnvReference(s string) bool {
	return strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}")
}

func mask(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) <= 8:
		return "****"
	default:
		return s[:4] + "****" + s[len(s)-2:]
	}
}

// maskURI hides the userinfo of a connection string.
func maskURI(uri string) string {
	scheme, rest, ok := strings.Cut(uri, "://")
	if !ok {
		return uri
	}
	at := strings.LastIndex(rest, "@")
	if at < 0 {
		return uri
	}
	return scheme + "://****@" + rest[at+1:]
}
