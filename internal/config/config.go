// Package config provides configuration management for carve. It supports
// loading configuration from YAML files and environment variables, with
// validation and sensible defaults. The package follows the XDG Base
// Directory specification for locating configuration files.
package config

import (
	"path/filepath"
	"time"

	"github.com/tungetti/carve/internal/constants"
)

// Config represents the application configuration.
// Configuration values can be set via YAML file or environment variables,
// with environment variables taking precedence.
type Config struct {
	// General settings
	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`
	DryRun   bool   `yaml:"dry_run"`
	Verbose  bool   `yaml:"verbose"`
	Quiet    bool   `yaml:"quiet"`
	NoColor  bool   `yaml:"no_color"`

	// Directories
	ConfigDir string `yaml:"config_dir"`
	// OutputDir receives the change journal, the cleanup script and the
	// configuration backups of a setup run.
	OutputDir string `yaml:"output_dir"`

	// Timeouts
	Timeout        time.Duration `yaml:"timeout"`
	CommandTimeout time.Duration `yaml:"command_timeout"`

	// Setup options
	NonInteractive bool `yaml:"non_interactive"`
	SkipPackages   bool `yaml:"skip_packages"`
}

// ConfigPath returns the path to the config file.
func (c *Config) ConfigPath() string {
	return filepath.Join(c.ConfigDir, "config.yaml")
}

// BackupDir returns the backup directory inside the output directory.
func (c *Config) BackupDir() string {
	return filepath.Join(c.OutputDir, constants.BackupDirName)
}

// IsVerbose returns true if verbose output is enabled and quiet is not.
func (c *Config) IsVerbose() bool {
	return c.Verbose && !c.Quiet
}

// IsSilent returns true if quiet mode is enabled.
func (c *Config) IsSilent() bool {
	return c.Quiet
}

// Clone returns a copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}
