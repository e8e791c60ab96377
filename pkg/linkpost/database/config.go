package database

import (
	"time"
)

// HubConfig represents the complete database configuration.
type HubConfig struct {
	// Backend selects where invite links live (default: "sqlite").
	Backend BackendType `yaml:"backend" env:"LINKPOST_DATABASE_BACKEND"`

	// SQLite configuration
	SQLite SQLiteConfig `yaml:"sqlite" envPrefix:"LINKPOST_SQLITE_"`

	// PostgreSQL configuration
	PostgreSQL PostgreSQLConfig `yaml:"postgresql" envPrefix:"LINKPOST_POSTGRES_"`

	// MongoDB configuration (used by the invite store directly)
	MongoDB MongoDBConfig `yaml:"mongodb" envPrefix:"LINKPOST_MONGODB_"`
}

// Config represents a generic SQL connection configuration.
type Config struct {
	Type BackendType

	// Path is for SQLite databases.
	Path        string
	JournalMode string
	BusyTimeout int

	// Network databases.
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string

	// Connection pooling
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// SQLiteConfig holds SQLite-specific configuration.
type SQLiteConfig struct {
	// Path to the database file (default: "./data/linkpost.db")
	Path string `yaml:"path" env:"PATH"`

	// Journal mode (default: WAL)
	JournalMode string `yaml:"journal_mode" env:"JOURNAL_MODE"`

	// Busy timeout in milliseconds (default: 5000)
	BusyTimeout int `yaml:"busy_timeout" env:"BUSY_TIMEOUT"`
}

// PostgreSQLConfig holds PostgreSQL configuration.
type PostgreSQLConfig struct {
	Host     string `yaml:"host" env:"HOST"`
	Port     int    `yaml:"port" env:"PORT"`
	Database string `yaml:"database" env:"DATABASE"`
	User     string `yaml:"user" env:"USER"`

	// Password (supports ${ENV_VAR} expansion)
	Password string `yaml:"password" env:"PASSWORD"`

	// SSL mode: disable, require, verify-ca, verify-full
	SSLMode string `yaml:"ssl_mode" env:"SSL_MODE"`

	MaxOpenConns    int           `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// MongoDBConfig holds MongoDB configuration.
type MongoDBConfig struct {
	// URI is the connection string (e.g. "mongodb://localhost:27017").
	URI string `yaml:"uri" env:"URI"`

	// Database name (default: "telegram_bot")
	Database string `yaml:"database" env:"DATABASE"`

	// Collection name (default: "invite_links")
	Collection string `yaml:"collection" env:"COLLECTION"`

	// Timeout for connect and per-operation deadlines (default: 10s)
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// DefaultHubConfig returns the default hub configuration (SQLite).
func DefaultHubConfig() HubConfig {
	return HubConfig{
		Backend: BackendSQLite,
		SQLite: SQLiteConfig{
			Path:        "./data/linkpost.db",
			JournalMode: "WAL",
			BusyTimeout: 5000,
		},
		PostgreSQL: PostgreSQLConfig{
			Host:            "localhost",
			Port:            5432,
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		MongoDB: MongoDBConfig{
			Database:   "telegram_bot",
			Collection: "invite_links",
			Timeout:    10 * time.Second,
		},
	}
}

// ToConfig converts SQLiteConfig to generic Config.
func (s SQLiteConfig) ToConfig() Config {
	return Config{
		Type:        BackendSQLite,
		Path:        s.Path,
		JournalMode: s.JournalMode,
		BusyTimeout: s.BusyTimeout,
	}
}

// ToConfig converts PostgreSQLConfig to generic Config.
func (p PostgreSQLConfig) ToConfig() Config {
	return Config{
		Type:            BackendPostgreSQL,
		Host:            p.Host,
		Port:            p.Port,
		Database:        p.Database,
		User:            p.User,
		Password:        p.Password,
		SSLMode:         p.SSLMode,
		MaxOpenConns:    p.MaxOpenConns,
		MaxIdleConns:    p.MaxIdleConns,
		ConnMaxLifetime: p.ConnMaxLifetime,
	}
}

// Effective returns a copy with default values filled in for zero fields.
func (c HubConfig) Effective() HubConfig {
	out := c
	def := DefaultHubConfig()

	if out.Backend == "" {
		out.Backend = def.Backend
	}
	if out.SQLite.Path == "" {
		out.SQLite.Path = def.SQLite.Path
	}
	if out.SQLite.JournalMode == "" {
		out.SQLite.JournalMode = def.SQLite.JournalMode
	}
	if out.SQLite.BusyTimeout == 0 {
		out.SQLite.BusyTimeout = def.SQLite.BusyTimeout
	}
	if out.MongoDB.Database == "" {
		out.MongoDB.Database = def.MongoDB.Database
	}
	if out.MongoDB.Collection == "" {
		out.MongoDB.Collection = def.MongoDB.Collection
	}
	if out.MongoDB.Timeout == 0 {
		out.MongoDB.Timeout = def.MongoDB.Timeout
	}
	return out
}
