package cli

// Command represents a CLI command type.
type Command int

const (
	// CommandNone represents no command or an unrecognized command.
	CommandNone Command = iota

	// CommandSetup represents the setup command configuring GPU passthrough.
	CommandSetup

	// CommandDevices represents the devices command listing display devices.
	CommandDevices

	// CommandCheck represents the check command running prerequisite checks.
	CommandCheck

	// CommandVerify represents the verify command validating the setup
	// after a reboot.
	CommandVerify

	// CommandCleanup represents the cleanup command reverting a setup run.
	CommandCleanup

	// CommandVersion represents the version command for displaying build information.
	CommandVersion

	// CommandHelp represents the help command for showing usage information.
	CommandHelp
)

// String returns the command name as a string.
func (c Command) String() string {
	switch c {
	case CommandSetup:
		return "setup"
	case CommandDevices:
		return "devices"
	case CommandCheck:
		return "check"
	case CommandVerify:
		return "verify"
	case CommandCleanup:
		return "cleanup"
	case CommandVersion:
		return "version"
	case CommandHelp:
		return "help"
	default:
		return ""
	}
}

// IsValid returns true if the command is a recognized command.
func (c Command) IsValid() bool {
	return c > CommandNone && c <= CommandHelp
}

// CommandInfo holds metadata about a command.
type CommandInfo struct {
	// Name is the primary command name.
	Name string

	// Aliases are alternative names for the command.
	Aliases []string

	// Description is a brief description of what the command does.
	Description string

	// Usage shows how to invoke the command.
	Usage string

	// LongDescription provides detailed help text for the command.
	LongDescription string
}

// Commands returns all available commands with their metadata.
func Commands() []CommandInfo {
	return []CommandInfo{
		{
			Name:        "setup",
			Aliases:     []string{"s"},
			Description: "Configure the host for VFIO GPU passthrough",
			Usage:       "carve setup [flags]",
			LongDescription: `Configure this host to pass a GPU through to a virtual machine.

The setup runs prerequisite checks, discovers display devices, lets you
pick one when several are present, and then configures kernel parameters,
vfio-pci module binding and the initramfs. Every change is journaled and
a cleanup script is generated to revert the run.

Flags:
  --non-interactive   Never prompt; fail on ambiguity, take default answers
  --skip-packages     Don't install QEMU/libvirt/virt-manager packages

Examples:
  carve setup                     Interactive setup
  carve setup --skip-packages     Configure passthrough, skip packages
  carve --dry-run setup           Show what would be changed`,
		},
		{
			Name:        "devices",
			Aliases:     []string{"d", "ls"},
			Description: "List display devices and their IOMMU groups",
			Usage:       "carve devices [flags]",
			LongDescription: `List the display devices found on this host.

Shows each device's PCI address, vendor:device ID pair, bound driver and
IOMMU group so you can judge what a passthrough selection would include.

Flags:
  --json    Output the device list in JSON format

Examples:
  carve devices         Show display devices
  carve devices --json  Output as JSON for scripting`,
		},
		{
			Name:        "check",
			Aliases:     []string{"c"},
			Description: "Run passthrough prerequisite checks",
			Usage:       "carve check",
			LongDescription: `Check whether this host can support GPU passthrough.

Inspects CPU virtualization support, IOMMU kernel parameters, Secure
Boot state, required tools and the current VFIO module state. No
changes are made.

Examples:
  carve check    Print the check report`,
		},
		{
			Name:        "verify",
			Aliases:     []string{"vf"},
			Description: "Verify the passthrough setup after a reboot",
			Usage:       "carve verify [flags]",
			LongDescription: `Verify that a completed setup took effect.

Checks that the IOMMU parameters are active on the running kernel, that
the VFIO modules are loaded, and that the configured devices are bound
to vfio-pci. Device IDs are read from the change journal of the last
setup run.

Flags:
  --journal PATH   Read device IDs from a specific journal file

Examples:
  carve verify                          Verify using the journal in the output dir
  carve verify --journal changes.json   Verify against a specific journal`,
		},
		{
			Name:        "cleanup",
			Aliases:     []string{"undo"},
			Description: "Revert the changes of the last setup run",
			Usage:       "carve cleanup [flags]",
			LongDescription: `Run the cleanup script generated by the last setup run.

Restores backed-up files, removes created configuration files and
regenerates the bootloader configuration and initramfs. A reboot is
required afterwards for the reverted state to take effect.

Flags:
  --yes    Skip the confirmation prompt

Examples:
  carve cleanup          Confirm and revert the last run
  carve cleanup --yes    Revert without asking`,
		},
		{
			Name:        "version",
			Aliases:     []string{"v"},
			Description: "Show version information",
			Usage:       "carve version",
			LongDescription: `Display version information about carve.

Shows the version number, build time, and git commit hash.`,
		},
		{
			Name:        "help",
			Aliases:     []string{"h"},
			Description: "Show help for a command",
			Usage:       "carve help [command]",
			LongDescription: `Display help information.

When called without arguments, shows general help and available commands.
When called with a command name, shows detailed help for that command.

Examples:
  carve help        Show general help
  carve help setup  Show help for setup command`,
		},
	}
}

// GetCommandInfo returns the CommandInfo for a given command.
// Returns nil if the command is not found.
func GetCommandInfo(cmd Command) *CommandInfo {
	if !cmd.IsValid() {
		return nil
	}

	cmds := Commands()
	for i := range cmds {
		if cmds[i].Name == cmd.String() {
			return &cmds[i]
		}
	}
	return nil
}

// ParseCommand parses a string into a Command.
// It recognizes both primary command names and aliases.
func ParseCommand(s string) Command {
	// Check each command's name and aliases
	for _, info := range Commands() {
		if s == info.Name {
			return commandFromName(info.Name)
		}
		for _, alias := range info.Aliases {
			if s == alias {
				return commandFromName(info.Name)
			}
		}
	}
	return CommandNone
}

// commandFromName converts a command name string to a Command type.
func commandFromName(name string) Command {
	switch name {
	case "setup":
		return CommandSetup
	case "devices":
		return CommandDevices
	case "check":
		return CommandCheck
	case "verify":
		return CommandVerify
	case "cleanup":
		return CommandCleanup
	case "version":
		return CommandVersion
	case "help":
		return CommandHelp
	default:
		return CommandNone
	}
}
