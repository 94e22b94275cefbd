// Package config loads the memory bank's configuration. Precedence:
// environment variables > config file > defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds all configuration recognized by the service (spec.md §6).
type Config struct {
	Backend           BackendConfig     `toml:"backend"`
	DefaultBranch     string            `toml:"default_branch"`
	ProtectedBranches []string          `toml:"protected_branches"`
	Pool              PoolConfig        `toml:"pool"`
	Index             IndexConfig       `toml:"index"`
	HealthCheck       HealthCheckConfig `toml:"health_check"`
	Connection        ConnectionConfig  `toml:"connection"`
	Call              CallConfig        `toml:"call"`
	Namespace         NamespaceConfig   `toml:"namespace"`
	Log               LogConfig         `toml:"log"`
	Transport         TransportConfig   `toml:"transport"`
}

// BackendConfig describes the versioned SQL backend connection.
type BackendConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Database string `toml:"database"`
	User     string `toml:"user"`
	Password string `toml:"password"`
}

// DSN renders the go-sql-driver/mysql data source name for this backend.
func (b BackendConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&multiStatements=true",
		b.User, b.Password, b.Host, b.Port, b.Database)
}

// PoolConfig sizes the two connection pools (spec §4.1, §5).
type PoolConfig struct {
	PersistentMax int `toml:"persistent_max"`
	EphemeralMax  int `toml:"ephemeral_max"`
}

// IndexConfig configures the semantic index (spec §4.6).
type IndexConfig struct {
	Path           string `toml:"path"`
	Collection     string `toml:"collection"`
	EmbeddingModel string `toml:"embedding_model"`
}

// HealthCheckConfig configures C1's background pinger.
type HealthCheckConfig struct {
	Interval    time.Duration `toml:"-"`
	IntervalRaw string        `toml:"interval"`
}

// ConnectionConfig bounds individual connection-level operations.
type ConnectionConfig struct {
	Timeout    time.Duration `toml:"-"`
	TimeoutRaw string        `toml:"timeout"`
}

// CallConfig bounds a single tool call end to end (spec §5).
type CallConfig struct {
	DefaultDeadline    time.Duration `toml:"-"`
	DefaultDeadlineRaw string        `toml:"deadline_default"`
}

// NamespaceConfig names the default namespace new blocks resolve to.
type NamespaceConfig struct {
	Default string `toml:"default"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string `toml:"level"` // debug, info, warn, error
}

// TransportConfig holds MCP transport settings.
type TransportConfig struct {
	// Mode selects the transport: "stdio" (default) or "http".
	Mode string `toml:"mode"`
	// Port is the HTTP listen port. Only used when Mode is "http".
	Port string `toml:"port"`
	// Host is the HTTP listen address. Only used when Mode is "http".
	Host string `toml:"host"`
	// CORSOrigins is a comma-separated list of allowed CORS origins.
	CORSOrigins string `toml:"cors_origins"`
}

// Load creates a Config by reading from a TOML config file and environment
// variables. Precedence: environment variables > config file > defaults.
//
// Config file search order (first found wins):
//  1. Path passed via configPath parameter (from --config flag)
//  2. MEMBANK_CONFIG environment variable
//  3. ./membank.toml (current directory)
//  4. ~/.config/membank/membank.toml (XDG-style)
func Load(configPath string) (*Config, error) {
	cfg := defaults()

	if err := cfg.loadFile(configPath); err != nil {
		return nil, err
	}
	cfg.applyEnv()

	if err := cfg.resolveDurations(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Backend: BackendConfig{
			Host:     "127.0.0.1",
			Port:     3306,
			Database: "memorybank",
			User:     "root",
		},
		DefaultBranch:     "main",
		ProtectedBranches: []string{"main"},
		Pool: PoolConfig{
			PersistentMax: 4,
			EphemeralMax:  32,
		},
		Index: IndexConfig{
			Path:           "./membank-index.db",
			Collection:     "memory_blocks",
			EmbeddingModel: "local-bow-v1",
		},
		HealthCheck: HealthCheckConfig{IntervalRaw: "30s"},
		Connection:  ConnectionConfig{TimeoutRaw: "5s"},
		Call:        CallConfig{DefaultDeadlineRaw: "30s"},
		Namespace:   NamespaceConfig{Default: "public"},
		Log:         LogConfig{Level: "info"},
		Transport: TransportConfig{
			Mode:        "stdio",
			Port:        "7452",
			Host:        "0.0.0.0",
			CORSOrigins: "*",
		},
	}
}

// loadFile finds and parses the TOML config file. If no file is found,
// this is a no-op (config file is optional).
func (c *Config) loadFile(configPath string) error {
	path := resolveConfigPath(configPath)
	if path == "" {
		return nil
	}
	if _, err := toml.DecodeFile(path, c); err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}
	return nil
}

// resolveConfigPath determines which config file to use. Returns empty
// string if no config file is found (config file is optional).
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if p := os.Getenv("MEMBANK_CONFIG"); p != "" {
		return p
	}
	if _, err := os.Stat("membank.toml"); err == nil {
		return "membank.toml"
	}
	if home, err := os.UserHomeDir(); err == nil {
		p := home + "/.config/membank/membank.toml"
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// applyEnv overlays environment variables on top of existing config
// values. An env var only takes effect if it is non-empty.
func (c *Config) applyEnv() {
	envOverride("MEMBANK_BACKEND_HOST", &c.Backend.Host)
	envOverrideInt("MEMBANK_BACKEND_PORT", &c.Backend.Port)
	envOverride("MEMBANK_BACKEND_DATABASE", &c.Backend.Database)
	envOverride("MEMBANK_BACKEND_USER", &c.Backend.User)
	envOverride("MEMBANK_BACKEND_PASSWORD", &c.Backend.Password)

	envOverride("MEMBANK_DEFAULT_BRANCH", &c.DefaultBranch)
	if v := os.Getenv("MEMBANK_PROTECTED_BRANCHES"); v != "" {
		c.ProtectedBranches = strings.Split(v, ",")
	}

	envOverrideInt("MEMBANK_POOL_PERSISTENT_MAX", &c.Pool.PersistentMax)
	envOverrideInt("MEMBANK_POOL_EPHEMERAL_MAX", &c.Pool.EphemeralMax)

	envOverride("MEMBANK_INDEX_PATH", &c.Index.Path)
	envOverride("MEMBANK_INDEX_COLLECTION", &c.Index.Collection)
	envOverride("MEMBANK_INDEX_EMBEDDING_MODEL", &c.Index.EmbeddingModel)

	envOverride("MEMBANK_HEALTH_CHECK_INTERVAL", &c.HealthCheck.IntervalRaw)
	envOverride("MEMBANK_CONNECTION_TIMEOUT", &c.Connection.TimeoutRaw)
	envOverride("MEMBANK_CALL_DEADLINE_DEFAULT", &c.Call.DefaultDeadlineRaw)

	envOverride("MEMBANK_NAMESPACE_DEFAULT", &c.Namespace.Default)
	envOverride("MEMBANK_LOG_LEVEL", &c.Log.Level)

	envOverride("MEMBANK_TRANSPORT", &c.Transport.Mode)
	envOverride("MEMBANK_PORT", &c.Transport.Port)
	envOverride("MEMBANK_HOST", &c.Transport.Host)
	envOverride("MEMBANK_CORS_ORIGINS", &c.Transport.CORSOrigins)
}

func (c *Config) resolveDurations() error {
	var err error
	if c.HealthCheck.Interval, err = time.ParseDuration(c.HealthCheck.IntervalRaw); err != nil {
		return fmt.Errorf("parsing health_check.interval: %w", err)
	}
	if c.Connection.Timeout, err = time.ParseDuration(c.Connection.TimeoutRaw); err != nil {
		return fmt.Errorf("parsing connection.timeout: %w", err)
	}
	if c.Call.DefaultDeadline, err = time.ParseDuration(c.Call.DefaultDeadlineRaw); err != nil {
		return fmt.Errorf("parsing call.deadline_default: %w", err)
	}
	return nil
}

// Validate checks that required fields are present and consistent.
func (c *Config) Validate() error {
	if c.Backend.Host == "" {
		return fmt.Errorf("backend.host is required")
	}
	if c.DefaultBranch == "" {
		return fmt.Errorf("default_branch is required")
	}
	switch c.Transport.Mode {
	case "stdio", "http":
	default:
		return fmt.Errorf("invalid transport mode: %q (must be \"stdio\" or \"http\")", c.Transport.Mode)
	}
	if c.Pool.PersistentMax <= 0 || c.Pool.EphemeralMax <= 0 {
		return fmt.Errorf("pool sizes must be positive")
	}
	if c.Namespace.Default == "" {
		return fmt.Errorf("namespace.default is required")
	}
	return nil
}

// IsProtected reports whether branch is in the protected set (spec §4.4).
func (c *Config) IsProtected(branch string) bool {
	for _, v := range c.ProtectedBranches {
		if v == branch {
			return true
		}
	}
	return false
}

// envOverride sets *dst to the value of the named env var, if non-empty.
func envOverride(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envOverrideInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
