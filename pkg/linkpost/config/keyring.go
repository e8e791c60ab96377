package config

import (
	"fmt"
	"log/slog"

	"github.com/zalando/go-keyring"
)

const (
	// keyringService is the service name used in the OS keyring.
	keyringService = "linkpost"

	// keyringToken is the key name for the bot token.
	keyringToken = "telegram_token"
)

// StoreToken saves the bot token to the OS keyring.
func StoreToken(token string) error {
	if err := keyring.Set(keyringService, keyringToken, token); err != nil {
		return fmt.Errorf("config: storing token in keyring: %w", err)
	}
	return nil
}

// DeleteToken removes the bot token from the OS keyring.
func DeleteToken() error {
	if err := keyring.Delete(keyringService, keyringToken); err != nil {
		return fmt.Errorf("config: deleting token from keyring: %w", err)
	}
	return nil
}

// KeyringToken returns the stored bot token, or "" when there is none.
func KeyringToken() string {
	val, err := keyring.Get(keyringService, keyringToken)
	if err != nil {
		return ""
	}
	return val
}

// resolveToken fills an empty token from the OS keyring. Values from the
// config file or the environment take precedence.
func resolveToken(cfg *Config, logger *slog.Logger) {
	if cfg.Telegram.Token != "" && !IsEnvReference(cfg.Telegram.Token) {
		return
	}
	if val := KeyringToken(); val != "" {
		cfg.Telegram.Token = val
		logger.Debug("telegram token loaded from OS keyring")
	}
}
