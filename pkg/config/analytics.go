package config

import "fmt"

// AnalyticsConfig controls baseline resolution and view defaults.
type AnalyticsConfig struct {
	// Baselines is an ordered static baseline list. When empty, every
	// tagged revision crossed with its project's executables is used.
	Baselines []BaselineEntry `yaml:"baselines,omitempty" mapstructure:"baselines"`

	// DefaultBaseline is moved to the front of the resolved baseline list.
	DefaultBaseline *BaselineEntry `yaml:"default_baseline,omitempty" mapstructure:"default_baseline"`

	// DefaultEnvironment is the environment name preselected in views.
	DefaultEnvironment string `yaml:"default_environment,omitempty" mapstructure:"default_environment"`

	// DefaultExecutable is the executable id preselected in views.
	DefaultExecutable uint `yaml:"default_executable,omitempty" mapstructure:"default_executable"`
}

// BaselineEntry references an executable by id and a revision by commit id
// within the executable's project.
type BaselineEntry struct {
	Executable uint   `yaml:"executable" mapstructure:"executable"`
	Revision   string `yaml:"revision" mapstructure:"revision"`
}

// Validate checks the analytics configuration for structural errors.
// Entries referencing unknown executables or revisions are not errors.
func (c *AnalyticsConfig) Validate() error {
	for i, entry := range c.Baselines {
		if entry.Revision == "" {
			return fmt.Errorf("baselines[%d]: revision is required", i)
		}
	}

	if c.DefaultBaseline != nil && c.DefaultBaseline.Revision == "" {
		return fmt.Errorf("default_baseline: revision is required")
	}

	return nil
}
