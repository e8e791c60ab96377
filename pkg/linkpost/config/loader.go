package config

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR}, ${VAR:-default} and ${VAR:?error}.
//
// Capture groups:
//   - Group 1: variable name
//   - Group 2: modifier type ("-" for default, "?" for error)
//   - Group 3: default value or error message
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::(-|\?)([^}]*))?\}`)

// Load builds the configuration. An empty path falls back to FindConfigFile;
// with no file at all the defaults plus the environment are used.
func Load(path string, logger *slog.Logger) (*Config, string, error) {
	if logger == nil {
		logger = slog.Default()
	}
	loadEnvFiles()

	if path == "" {
		path = FindConfigFile()
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, "", fmt.Errorf("reading config file: %w", err)
		}
		if cfg, err = Parse(data); err != nil {
			return nil, "", err
		}
		checkFilePermissions(path, logger)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, "", fmt.Errorf("parse env: %w", err)
	}
	resolveToken(cfg, logger)
	return cfg, path, nil
}

// Parse expands environment references in data and overlays the YAML on
// the defaults.
func Parse(data []byte) (*Config, error) {
	expanded, err := expandEnvVars(string(data))
	if err != nil {
		return nil, fmt.Errorf("expanding environment variables: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}
	return cfg, nil
}

// Save writes cfg as YAML with owner-only permissions.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// FindConfigFile searches for config files in standard locations.
func FindConfigFile() string {
	candidates := []string{
		"config.yaml",
		"linkpost.yaml",
		"configs/linkpost.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// ---------- Internal ----------

// loadEnvFiles loads .env files without overwriting existing variables.
func loadEnvFiles() {
	for _, f := range []string{".env", ".env.local"} {
		_ = godotenv.Load(f)
	}
}

// expandEnvVars replaces ${VAR} references with environment values. Unset
// plain references are kept verbatim; ${VAR:?msg} with VAR unset is an error.
func expandEnvVars(input string) (string, error) {
	var missing error
	out := envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		sub := envVarPattern.FindStringSubmatch(match)
		name, modifier, value := sub[1], sub[2], sub[3]

		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		switch modifier {
		case "-":
			return value
		case "?":
			if value == "" {
				value = "required environment variable not set"
			}
			if missing == nil {
				missing = fmt.Errorf("config error: %s - %s", name, value)
			}
			return ""
		}
		return match
	})
	if missing != nil {
		return "", missing
	}
	return out, nil
}

// checkFilePermissions warns if the config file is readable by others.
func checkFilePermissions(path string, logger *slog.Logger) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	if mode := info.Mode().Perm(); mode&0o044 != 0 {
		logger.Warn("config file has open permissions, consider restricting",
			"path", path,
			"current", fmt.Sprintf("%04o", mode),
			"fix", fmt.Sprintf("chmod 600 %s", path),
		)
	}
}

