// Package constants defines application-wide constants for the Carve application.
// All constants are typed to ensure type safety and prevent accidental misuse.
package constants

import "time"

// Application metadata
const (
	// AppName is the application name used in logs, configs, and user messages.
	AppName string = "carve"
	// AppDescription is a short description of the application.
	AppDescription string = "VFIO GPU passthrough configurator for Linux"
)

// ExitCode represents process exit codes for different termination scenarios.
type ExitCode int

const (
	// ExitSuccess indicates the application completed successfully.
	ExitSuccess ExitCode = iota
	// ExitError indicates a general error occurred.
	ExitError
	// ExitPermission indicates insufficient permissions (e.g., not root).
	ExitPermission
	// ExitValidation indicates invalid input or configuration.
	ExitValidation
	// ExitSetup indicates the setup process failed.
	ExitSetup
	// ExitUserAbort indicates the user cancelled the operation.
	ExitUserAbort
)

// Int returns the exit code as an int for use with os.Exit().
func (e ExitCode) Int() int {
	return int(e)
}

// Timeouts for various operations. These are tuned for typical system
// responsiveness while allowing for slower hardware.
const (
	// DefaultTimeout is the standard timeout for most operations.
	DefaultTimeout time.Duration = 5 * time.Minute
	// ShortTimeout is for quick operations that should complete rapidly.
	ShortTimeout time.Duration = 30 * time.Second
	// LongTimeout is for operations that may take extended time
	// (e.g., initramfs regeneration on dracut systems).
	LongTimeout time.Duration = 15 * time.Minute
	// CommandTimeout is for shell command execution.
	CommandTimeout time.Duration = 2 * time.Minute
)

// File paths relative to the user's home directory
const (
	// DefaultConfigDir is the default configuration directory relative to $HOME.
	DefaultConfigDir string = ".config/carve"
	// DefaultLogFile is the default log file name.
	DefaultLogFile string = "carve.log"
	// ConfigFileName is the configuration file name.
	ConfigFileName string = "config.yaml"
)

// Output artifacts written into the run's output directory
const (
	// ChangesFileName is the JSON journal of every change made to the system.
	ChangesFileName string = "vfio_changes.json"
	// CleanupScriptName is the generated script that reverts all changes.
	CleanupScriptName string = "vfio_cleanup.sh"
	// BackupDirName is the directory holding timestamped file backups.
	BackupDirName string = "backups"
	// LockFileName guards the output directory against concurrent runs.
	LockFileName string = ".carve.lock"
)

// System paths for Linux system files and directories
const (
	// OSReleasePath is the path to the os-release file for distro detection.
	OSReleasePath string = "/etc/os-release"
	// LSBReleasePath is the path to the LSB release file (alternative distro detection).
	LSBReleasePath string = "/etc/lsb-release"
	// IommuGroupsPath is the sysfs tree exposing IOMMU group membership.
	IommuGroupsPath string = "/sys/kernel/iommu_groups"
	// PCIDevicesPath is the sysfs tree listing PCI devices.
	PCIDevicesPath string = "/sys/bus/pci/devices"
	// ProcCmdlinePath is the kernel command line of the running system.
	ProcCmdlinePath string = "/proc/cmdline"
	// ProcCPUInfoPath describes the CPUs of the running system.
	ProcCPUInfoPath string = "/proc/cpuinfo"
	// ModprobeDir is the directory for kernel module configuration.
	ModprobeDir string = "/etc/modprobe.d"
	// ModulesLoadDir is the directory for boot-time module load lists.
	ModulesLoadDir string = "/etc/modules-load.d"
	// GrubDefaultPath is the GRUB defaults file carrying the kernel command line.
	GrubDefaultPath string = "/etc/default/grub"
)

// VFIO module and configuration names
const (
	// VFIOModule is the core VFIO kernel module.
	VFIOModule string = "vfio"
	// VFIOIommuType1Module is the type1 IOMMU backend module.
	VFIOIommuType1Module string = "vfio_iommu_type1"
	// VFIOPCIModule is the VFIO PCI driver module.
	VFIOPCIModule string = "vfio_pci"
	// VFIOVirqfdModule is the virqfd helper module (built in since kernel 6.2).
	VFIOVirqfdModule string = "vfio_virqfd"
	// VFIOPCIDriver is the driver name as it appears in sysfs and lspci.
	VFIOPCIDriver string = "vfio-pci"
	// ModprobeConfFile is the modprobe.d file carrying vfio-pci options.
	ModprobeConfFile string = "vfio.conf"
	// ModulesLoadFile is the modules-load.d file forcing vfio modules at boot.
	ModulesLoadFile string = "vfio.conf"
)

// Package manager command names
const (
	// AptGet is the apt-get package manager command.
	AptGet string = "apt-get"
	// Apt is the apt package manager command.
	Apt string = "apt"
	// Dpkg is the Debian package tool command.
	Dpkg string = "dpkg"
	// Dnf is the DNF package manager command (Fedora/RHEL 8+).
	Dnf string = "dnf"
	// Rpm is the RPM package tool command.
	Rpm string = "rpm"
	// Pacman is the Arch Linux package manager command.
	Pacman string = "pacman"
)

// DistroFamily represents Linux distribution families for package management.
type DistroFamily string

const (
	// FamilyDebian includes Debian, Ubuntu, Linux Mint, Pop!_OS, etc.
	FamilyDebian DistroFamily = "debian"
	// FamilyRHEL includes RHEL, CentOS, Fedora, Rocky Linux, AlmaLinux, etc.
	FamilyRHEL DistroFamily = "rhel"
	// FamilyArch includes Arch Linux, Manjaro, EndeavourOS, etc.
	FamilyArch DistroFamily = "arch"
	// FamilySUSE includes openSUSE, SUSE Linux Enterprise, etc.
	FamilySUSE DistroFamily = "suse"
	// FamilyUnknown indicates an unrecognized distribution family.
	FamilyUnknown DistroFamily = "unknown"
)

// String returns the string representation of the distro family.
func (f DistroFamily) String() string {
	return string(f)
}
