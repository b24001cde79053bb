package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func TestLoad_EnvVarOverrides(t *testing.T) {
	configPath := writeConfig(t, `
global:
  log_level: info
server:
  listen: ":9000"
database:
  driver: sqlite
  sqlite:
    path: /tmp/original.db
analytics:
  default_environment: original-env
  default_executable: 1
`)

	tests := []struct {
		name     string
		envVars  map[string]string
		validate func(t *testing.T, cfg *Config)
	}{
		{
			name:    "no env vars uses yaml values",
			envVars: map[string]string{},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "info", cfg.Global.LogLevel)
				assert.Equal(t, ":9000", cfg.Server.Listen)
				assert.Equal(t, "/tmp/original.db", cfg.Database.SQLite.Path)
				assert.Equal(t, "original-env", cfg.Analytics.DefaultEnvironment)
				assert.Equal(t, uint(1), cfg.Analytics.DefaultExecutable)
			},
		},
		{
			name: "string override - log_level",
			envVars: map[string]string{
				"SPEEDCENTER_GLOBAL_LOG_LEVEL": "debug",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "debug", cfg.Global.LogLevel)
			},
		},
		{
			name: "nested field override - database.sqlite.path",
			envVars: map[string]string{
				"SPEEDCENTER_DATABASE_SQLITE_PATH": "/tmp/env.db",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "/tmp/env.db", cfg.Database.SQLite.Path)
			},
		},
		{
			name: "numeric override - default_executable",
			envVars: map[string]string{
				"SPEEDCENTER_ANALYTICS_DEFAULT_EXECUTABLE": "7",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, uint(7), cfg.Analytics.DefaultExecutable)
			},
		},
		{
			name: "multiple overrides",
			envVars: map[string]string{
				"SPEEDCENTER_GLOBAL_LOG_LEVEL":                "trace",
				"SPEEDCENTER_SERVER_LISTEN":                   ":7000",
				"SPEEDCENTER_ANALYTICS_DEFAULT_ENVIRONMENT": "env-from-env",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "trace", cfg.Global.LogLevel)
				assert.Equal(t, ":7000", cfg.Server.Listen)
				assert.Equal(t, "env-from-env", cfg.Analytics.DefaultEnvironment)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}

			cfg, err := Load(configPath)
			require.NoError(t, err)

			tt.validate(t, cfg)
		})
	}
}

func TestLoad_DefaultsAppliedWhenEmpty(t *testing.T) {
	configPath := writeConfig(t, `
server:
  cors_origins: ["*"]
`)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, DefaultLogLevel, cfg.Global.LogLevel)
	assert.Equal(t, DefaultListen, cfg.Server.Listen)
	assert.Equal(t, DefaultDatabaseDriver, cfg.Database.Driver)
	assert.Equal(t, DefaultSQLitePath, cfg.Database.SQLite.Path)
	assert.Equal(t, DefaultGitHubAPIURL, cfg.CommitLogs.GitHub.APIURL)
	assert.Equal(t, DefaultCommitLogTimeout, cfg.CommitLogs.Timeout)
	assert.Equal(t, DefaultExportConcurrency, cfg.Export.Concurrency)
	assert.Empty(t, cfg.Analytics.Baselines)
	assert.Nil(t, cfg.Analytics.DefaultBaseline)
}

func TestLoad_EnvVarOverridesDefaults(t *testing.T) {
	configPath := writeConfig(t, `
database:
  driver: sqlite
`)

	t.Setenv("SPEEDCENTER_GLOBAL_LOG_LEVEL", "warn")

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Global.LogLevel)
}

func TestLoad_MergesFilesInOrder(t *testing.T) {
	base := writeConfig(t, `
server:
  listen: ":8000"
analytics:
  default_environment: base-env
`)
	override := writeConfig(t, `
analytics:
  default_environment: override-env
  baselines:
    - executable: 2
      revision: abc123
  default_baseline:
    executable: 2
    revision: abc123
`)

	cfg, err := Load(base, override)
	require.NoError(t, err)

	assert.Equal(t, ":8000", cfg.Server.Listen)
	assert.Equal(t, "override-env", cfg.Analytics.DefaultEnvironment)
	require.Len(t, cfg.Analytics.Baselines, 1)
	assert.Equal(t, uint(2), cfg.Analytics.Baselines[0].Executable)
	assert.Equal(t, "abc123", cfg.Analytics.Baselines[0].Revision)
	require.NotNil(t, cfg.Analytics.DefaultBaseline)
	assert.Equal(t, "abc123", cfg.Analytics.DefaultBaseline.Revision)
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "invalid: yaml: content:")

	_, err := Load(configPath)
	require.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{}
		cfg.applyDefaults()

		return cfg
	}

	tests := []struct {
		name      string
		mutate    func(cfg *Config)
		wantErr   bool
		errSubstr string
	}{
		{
			name:    "defaults are valid",
			mutate:  func(_ *Config) {},
			wantErr: false,
		},
		{
			name: "unsupported driver",
			mutate: func(cfg *Config) {
				cfg.Database.Driver = "mysql"
			},
			wantErr:   true,
			errSubstr: "unsupported database driver",
		},
		{
			name: "postgres without host",
			mutate: func(cfg *Config) {
				cfg.Database.Driver = "postgres"
				cfg.Database.Postgres.Database = "speedcenter"
			},
			wantErr:   true,
			errSubstr: "database.postgres.host is required",
		},
		{
			name: "baseline entry without revision",
			mutate: func(cfg *Config) {
				cfg.Analytics.Baselines = []BaselineEntry{{Executable: 1}}
			},
			wantErr:   true,
			errSubstr: "baselines[0]: revision is required",
		},
		{
			name: "basic auth enabled without users",
			mutate: func(cfg *Config) {
				cfg.Auth.Basic.Enabled = true
			},
			wantErr:   true,
			errSubstr: "at least one user",
		},
		{
			name: "basic auth duplicate username",
			mutate: func(cfg *Config) {
				cfg.Auth.Basic.Enabled = true
				cfg.Auth.Basic.Users = []BasicAuthUser{
					{Username: "ci", Password: "a"},
					{Username: "ci", Password: "b"},
				}
			},
			wantErr:   true,
			errSubstr: "duplicate username",
		},
		{
			name: "unparseable commit log timeout",
			mutate: func(cfg *Config) {
				cfg.CommitLogs.Timeout = "soon"
			},
			wantErr:   true,
			errSubstr: "commit_logs.timeout",
		},
		{
			name: "both export targets enabled",
			mutate: func(cfg *Config) {
				cfg.Export.S3 = &S3ExportConfig{Enabled: true, Bucket: "b"}
				cfg.Export.Local = &LocalExportConfig{Enabled: true, Dir: "/tmp"}
			},
			wantErr:   true,
			errSubstr: "only one of s3 or local",
		},
		{
			name: "s3 export without bucket",
			mutate: func(cfg *Config) {
				cfg.Export.S3 = &S3ExportConfig{Enabled: true}
			},
			wantErr:   true,
			errSubstr: "s3.bucket is required",
		},
		{
			name: "export interval without target",
			mutate: func(cfg *Config) {
				cfg.Export.Interval = "1h"
			},
			wantErr:   true,
			errSubstr: "interval requires",
		},
		{
			name: "unparseable export interval",
			mutate: func(cfg *Config) {
				cfg.Export.Local = &LocalExportConfig{Enabled: true, Dir: "/tmp"}
				cfg.Export.Interval = "hourly"
			},
			wantErr:   true,
			errSubstr: "export: interval",
		},
		{
			name: "scheduled local export",
			mutate: func(cfg *Config) {
				cfg.Export.Local = &LocalExportConfig{Enabled: true, Dir: "/tmp"}
				cfg.Export.Interval = "15m"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errSubstr)

				return
			}

			require.NoError(t, err)
		})
	}
}

func TestConfig_Marshal(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.Analytics.DefaultEnvironment = "bench-host"

	data, err := cfg.Marshal()
	require.NoError(t, err)

	assert.Contains(t, string(data), "default_environment: bench-host")
	assert.Contains(t, string(data), "driver: sqlite")
}
