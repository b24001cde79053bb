package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	// EnvPrefix is the prefix for environment variable overrides.
	EnvPrefix = "SPEEDCENTER"

	// DefaultLogLevel is the default logging level.
	DefaultLogLevel = "info"

	// DefaultListen is the default HTTP listen address.
	DefaultListen = ":8000"

	// DefaultDatabaseDriver is the default database driver.
	DefaultDatabaseDriver = "sqlite"

	// DefaultSQLitePath is the default SQLite database file.
	DefaultSQLitePath = "speedcenter.db"

	// DefaultGitHubAPIURL is the default GitHub REST API base URL.
	DefaultGitHubAPIURL = "https://api.github.com"

	// DefaultCommitLogTimeout is the default timeout for commit log requests.
	DefaultCommitLogTimeout = "10s"

	// DefaultExportConcurrency is the default number of environments
	// exported in parallel.
	DefaultExportConcurrency = 4

	// DefaultExportPrefix is the default key prefix for exported snapshots.
	DefaultExportPrefix = "speedcenter"
)

// Config is the root configuration for speedcenter.
type Config struct {
	Global     GlobalConfig     `yaml:"global" mapstructure:"global"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Auth       AuthConfig       `yaml:"auth,omitempty" mapstructure:"auth"`
	Database   DatabaseConfig   `yaml:"database" mapstructure:"database"`
	Analytics  AnalyticsConfig  `yaml:"analytics,omitempty" mapstructure:"analytics"`
	CommitLogs CommitLogsConfig `yaml:"commit_logs,omitempty" mapstructure:"commit_logs"`
	Export     ExportConfig     `yaml:"export,omitempty" mapstructure:"export"`
}

// GlobalConfig contains global application settings.
type GlobalConfig struct {
	LogLevel string `yaml:"log_level" mapstructure:"log_level"`
}

// Load reads and merges the configuration files in order, applies
// SPEEDCENTER_* environment overrides and fills in defaults.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	registerDefaults(v)

	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		err = v.MergeConfig(f)
		_ = f.Close()

		if err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// registerDefaults makes viper aware of keys that may only be set through
// the environment.
func registerDefaults(v *viper.Viper) {
	v.SetDefault("global.log_level", DefaultLogLevel)
	v.SetDefault("server.listen", DefaultListen)
	v.SetDefault("database.driver", DefaultDatabaseDriver)
	v.SetDefault("database.sqlite.path", DefaultSQLitePath)
	v.SetDefault("analytics.default_environment", "")
	v.SetDefault("analytics.default_executable", 0)
	v.SetDefault("commit_logs.github.api_url", DefaultGitHubAPIURL)
	v.SetDefault("commit_logs.github.token", "")
	v.SetDefault("commit_logs.timeout", DefaultCommitLogTimeout)
	v.SetDefault("export.concurrency", DefaultExportConcurrency)
}

// applyDefaults sets default values for unspecified configuration options.
func (c *Config) applyDefaults() {
	if c.Global.LogLevel == "" {
		c.Global.LogLevel = DefaultLogLevel
	}

	if c.Server.Listen == "" {
		c.Server.Listen = DefaultListen
	}

	if c.Database.Driver == "" {
		c.Database.Driver = DefaultDatabaseDriver
	}

	if c.Database.Driver == "sqlite" && c.Database.SQLite.Path == "" {
		c.Database.SQLite.Path = DefaultSQLitePath
	}

	if c.Database.Driver == "postgres" && c.Database.Postgres.SSLMode == "" {
		c.Database.Postgres.SSLMode = "disable"
	}

	if c.CommitLogs.GitHub.APIURL == "" {
		c.CommitLogs.GitHub.APIURL = DefaultGitHubAPIURL
	}

	if c.CommitLogs.Timeout == "" {
		c.CommitLogs.Timeout = DefaultCommitLogTimeout
	}

	if c.Export.Concurrency <= 0 {
		c.Export.Concurrency = DefaultExportConcurrency
	}

	if c.Export.S3 != nil && c.Export.S3.Prefix == "" {
		c.Export.S3.Prefix = DefaultExportPrefix
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.SQLite.Path == "" {
			return fmt.Errorf("database.sqlite.path is required")
		}
	case "postgres":
		if c.Database.Postgres.Host == "" {
			return fmt.Errorf("database.postgres.host is required")
		}

		if c.Database.Postgres.Database == "" {
			return fmt.Errorf("database.postgres.database is required")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}

	if err := c.Analytics.Validate(); err != nil {
		return fmt.Errorf("analytics: %w", err)
	}

	if c.Auth.Basic.Enabled {
		if len(c.Auth.Basic.Users) == 0 {
			return fmt.Errorf("auth.basic: at least one user is required when enabled")
		}

		seen := make(map[string]struct{}, len(c.Auth.Basic.Users))

		for i, u := range c.Auth.Basic.Users {
			if u.Username == "" {
				return fmt.Errorf("auth.basic.users[%d]: username is required", i)
			}

			if u.Password == "" {
				return fmt.Errorf("auth.basic.users[%d]: password is required", i)
			}

			if _, exists := seen[u.Username]; exists {
				return fmt.Errorf("auth.basic.users[%d]: duplicate username %q", i, u.Username)
			}

			seen[u.Username] = struct{}{}
		}
	}

	if _, err := time.ParseDuration(c.CommitLogs.Timeout); err != nil {
		return fmt.Errorf("commit_logs.timeout: %w", err)
	}

	if err := c.Export.Validate(); err != nil {
		return fmt.Errorf("export: %w", err)
	}

	return nil
}

// Marshal renders the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshaling config: %w", err)
	}

	return data, nil
}
