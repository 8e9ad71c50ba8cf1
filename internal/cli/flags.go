// Package cli provides command-line argument parsing for the Carve application.
// It supports subcommands, global flags, and command-specific flags with both
// short and long variants. The parser integrates with the config package to
// provide a unified configuration experience.
package cli

// GlobalFlags holds flags common to all commands.
// These flags can be specified before the command name and affect
// the overall behavior of the application.
type GlobalFlags struct {
	// Verbose enables detailed output for debugging and troubleshooting.
	Verbose bool

	// Quiet suppresses non-essential output, only showing errors.
	Quiet bool

	// DryRun shows what would be done without making actual changes.
	DryRun bool

	// ConfigFile specifies a custom configuration file path.
	ConfigFile string

	// OutputDir specifies where the change journal, cleanup script and
	// backups are written.
	OutputDir string

	// LogFile specifies the path to write log output.
	LogFile string

	// LogLevel sets the logging verbosity (debug, info, warn, error).
	LogLevel string

	// NoColor disables colored terminal output.
	NoColor bool
}

// SetupFlags holds setup command specific flags.
// These flags control the passthrough configuration workflow.
type SetupFlags struct {
	// NonInteractive disables all prompts. Ambiguous device lists fail
	// instead of asking, and confirmations take their default answer.
	NonInteractive bool

	// SkipPackages skips the virtualization package installation step.
	SkipPackages bool
}

// DevicesFlags holds devices command specific flags.
// These flags control the device listing output format.
type DevicesFlags struct {
	// JSON outputs the device list in JSON format.
	JSON bool
}

// VerifyFlags holds verify command specific flags.
type VerifyFlags struct {
	// Journal overrides the change journal path used to find the
	// device IDs to check.
	Journal string
}

// CleanupFlags holds cleanup command specific flags.
type CleanupFlags struct {
	// Yes skips the confirmation prompt before running the cleanup script.
	Yes bool
}

// Validate checks GlobalFlags for conflicting options.
// It returns an error if incompatible flags are set together.
func (f *GlobalFlags) Validate() error {
	if f.Verbose && f.Quiet {
		return &FlagError{
			Flag:    "verbose/quiet",
			Message: "cannot use --verbose and --quiet together",
		}
	}
	return nil
}

// FlagError represents an error with a command-line flag.
type FlagError struct {
	Flag    string
	Message string
}

// Error implements the error interface.
func (e *FlagError) Error() string {
	return "flag error: " + e.Flag + ": " + e.Message
}
