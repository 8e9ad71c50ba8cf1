package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/tungetti/carve/internal/constants"
)

const (
	// DefaultLogLevel is the default logging level.
	DefaultLogLevel = "info"

	// DefaultTimeout is the default overall operation timeout.
	DefaultTimeout = 5 * time.Minute

	// DefaultCommandTimeout is the default command execution timeout.
	// Initramfs rebuilds can legitimately run for minutes.
	DefaultCommandTimeout = 10 * time.Minute
)

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:       DefaultLogLevel,
		LogFile:        "",
		DryRun:         false,
		Verbose:        false,
		Quiet:          false,
		NoColor:        false,
		ConfigDir:      defaultConfigDir(),
		OutputDir:      ".",
		Timeout:        DefaultTimeout,
		CommandTimeout: DefaultCommandTimeout,
		NonInteractive: false,
		SkipPackages:   false,
	}
}

// defaultConfigDir returns the XDG config directory for carve.
// Falls back to ~/.config/carve if XDG_CONFIG_HOME is not set.
func defaultConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, constants.AppName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home can't be determined
		return filepath.Join(".", ".config", constants.AppName)
	}
	return filepath.Join(home, ".config", constants.AppName)
}

// GetConfigDir returns the configuration directory, respecting XDG.
// This is exported for use by other packages that need the config path.
func GetConfigDir() string {
	return defaultConfigDir()
}
