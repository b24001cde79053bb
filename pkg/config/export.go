package config

import (
	"fmt"
	"time"
)

// ExportConfig configures where analytics snapshots are published.
// Only one target (S3 or local) may be enabled at a time.
type ExportConfig struct {
	Concurrency int                `yaml:"concurrency,omitempty" mapstructure:"concurrency"`
	Revisions   int                `yaml:"revisions,omitempty" mapstructure:"revisions"`
	Interval    string             `yaml:"interval,omitempty" mapstructure:"interval"`
	S3          *S3ExportConfig    `yaml:"s3,omitempty" mapstructure:"s3"`
	Local       *LocalExportConfig `yaml:"local,omitempty" mapstructure:"local"`
}

// S3ExportConfig contains S3 settings for snapshot publishing.
type S3ExportConfig struct {
	Enabled         bool   `yaml:"enabled" mapstructure:"enabled"`
	EndpointURL     string `yaml:"endpoint_url,omitempty" mapstructure:"endpoint_url"`
	Region          string `yaml:"region,omitempty" mapstructure:"region"`
	Bucket          string `yaml:"bucket" mapstructure:"bucket"`
	AccessKeyID     string `yaml:"access_key_id,omitempty" mapstructure:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty" mapstructure:"secret_access_key"`
	ForcePathStyle  bool   `yaml:"force_path_style" mapstructure:"force_path_style"`
	Prefix          string `yaml:"prefix,omitempty" mapstructure:"prefix"`
	StorageClass    string `yaml:"storage_class,omitempty" mapstructure:"storage_class"`
}

// LocalExportConfig writes snapshots below a local directory.
type LocalExportConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Dir     string `yaml:"dir" mapstructure:"dir"`
}

// S3Enabled reports whether the S3 target is configured and enabled.
func (c *ExportConfig) S3Enabled() bool {
	return c.S3 != nil && c.S3.Enabled
}

// LocalEnabled reports whether the local target is configured and enabled.
func (c *ExportConfig) LocalEnabled() bool {
	return c.Local != nil && c.Local.Enabled
}

// Validate checks the export configuration for errors.
func (c *ExportConfig) Validate() error {
	if c.S3Enabled() && c.LocalEnabled() {
		return fmt.Errorf("only one of s3 or local may be enabled")
	}

	if c.S3Enabled() && c.S3.Bucket == "" {
		return fmt.Errorf("s3.bucket is required")
	}

	if c.LocalEnabled() && c.Local.Dir == "" {
		return fmt.Errorf("local.dir is required")
	}

	if c.Interval != "" {
		d, err := time.ParseDuration(c.Interval)
		if err != nil {
			return fmt.Errorf("interval: %w", err)
		}

		if d <= 0 {
			return fmt.Errorf("interval must be positive")
		}

		if !c.S3Enabled() && !c.LocalEnabled() {
			return fmt.Errorf("interval requires an enabled s3 or local target")
		}
	}

	if c.Revisions < 0 {
		return fmt.Errorf("revisions must not be negative")
	}

	return nil
}
