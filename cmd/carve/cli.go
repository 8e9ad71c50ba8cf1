package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/tungetti/carve/internal/app"
	"github.com/tungetti/carve/internal/backup"
	"github.com/tungetti/carve/internal/bootloader"
	"github.com/tungetti/carve/internal/cli"
	"github.com/tungetti/carve/internal/config"
	"github.com/tungetti/carve/internal/constants"
	"github.com/tungetti/carve/internal/distro"
	"github.com/tungetti/carve/internal/errors"
	"github.com/tungetti/carve/internal/exec"
	"github.com/tungetti/carve/internal/initramfs"
	"github.com/tungetti/carve/internal/modprobe"
	"github.com/tungetti/carve/internal/pci"
	"github.com/tungetti/carve/internal/pkg"
	"github.com/tungetti/carve/internal/setup"
	"github.com/tungetti/carve/internal/state"
	"github.com/tungetti/carve/internal/syscheck"
	"github.com/tungetti/carve/internal/ui"
	"github.com/tungetti/carve/internal/verify"
)

// CLI encapsulates the command-line interface for Carve.
type CLI struct {
	parser *cli.Parser
	config *config.Config
	app    *app.App
}

// NewCLI creates a new CLI instance.
func NewCLI() *CLI {
	return &CLI{
		parser: cli.NewParser(constants.AppName, Version, BuildTime, GitCommit),
	}
}

// Run parses arguments and executes the appropriate command.
// It returns an exit code suitable for os.Exit().
func (c *CLI) Run(args []string) int {
	result, err := c.parser.Parse(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fmt.Fprintf(os.Stderr, "Run '%s help' for usage.\n", constants.AppName)
		return constants.ExitValidation.Int()
	}

	if result.ShowHelp {
		return c.showHelp(result)
	}

	if err := c.loadConfig(result); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		return constants.ExitError.Int()
	}

	c.applyFlags(result)

	if err := config.NewValidator().ValidateOrError(c.config); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return constants.ExitValidation.Int()
	}

	// Version needs no initialized components.
	if result.Command == cli.CommandVersion {
		return c.cmdVersion()
	}

	application := app.New(app.Options{
		Version:         Version,
		BuildTime:       BuildTime,
		GitCommit:       GitCommit,
		ShutdownTimeout: 10 * time.Second,
	})
	if err := application.InitializeWithConfig(context.Background(), c.config); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return constants.ExitError.Int()
	}
	c.app = application
	defer application.RecoverPanic()

	return c.executeCommand(result)
}

// loadConfig loads configuration from file and environment.
func (c *CLI) loadConfig(result *cli.ParseResult) error {
	configPath := result.GlobalFlags.ConfigFile
	if configPath == "" {
		configPath = config.DefaultConfig().ConfigPath()
	}

	loader := config.NewLoader(configPath)
	cfg, err := loader.Load()
	if err != nil {
		return err
	}

	c.config = cfg
	return nil
}

// applyFlags merges CLI flags into the configuration. Flags take
// precedence over config file and environment values.
func (c *CLI) applyFlags(result *cli.ParseResult) {
	flags := result.GlobalFlags
	if flags.Verbose {
		c.config.Verbose = true
	}
	if flags.Quiet {
		c.config.Quiet = true
	}
	if flags.DryRun {
		c.config.DryRun = true
	}
	if flags.OutputDir != "" {
		c.config.OutputDir = flags.OutputDir
	}
	if flags.LogFile != "" {
		c.config.LogFile = flags.LogFile
	}
	if flags.LogLevel != "" {
		c.config.LogLevel = flags.LogLevel
	}
	if flags.NoColor {
		c.config.NoColor = true
	}

	if result.SetupFlags.NonInteractive {
		c.config.NonInteractive = true
	}
	if result.SetupFlags.SkipPackages {
		c.config.SkipPackages = true
	}
}

// showHelp displays help information and returns an exit code.
func (c *CLI) showHelp(result *cli.ParseResult) int {
	if result.HelpCommand != "" {
		fmt.Print(c.parser.CommandUsage(result.HelpCommand))
	} else {
		fmt.Print(c.parser.Usage())
	}
	return constants.ExitSuccess.Int()
}

// executeCommand runs the appropriate command handler.
func (c *CLI) executeCommand(result *cli.ParseResult) int {
	switch result.Command {
	case cli.CommandSetup:
		return c.cmdSetup()
	case cli.CommandDevices:
		return c.cmdDevices(result)
	case cli.CommandCheck:
		return c.cmdCheck()
	case cli.CommandVerify:
		return c.cmdVerify(result)
	case cli.CommandCleanup:
		return c.cmdCleanup(result)
	case cli.CommandVersion:
		return c.cmdVersion()
	default:
		fmt.Print(c.parser.Usage())
		return constants.ExitSuccess.Int()
	}
}

// cmdVersion displays version information.
func (c *CLI) cmdVersion() int {
	fmt.Print(c.parser.VersionString())
	return constants.ExitSuccess.Int()
}

// cmdSetup runs the full passthrough configuration workflow.
func (c *CLI) cmdSetup() int {
	container := c.app.Container()
	logger := container.GetLogger()
	executor := container.GetExecutor()
	priv := container.GetPrivilege()

	if !c.config.DryRun {
		if err := priv.RequireRoot(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			fmt.Fprintln(os.Stderr, "Re-run with sudo, or use --dry-run to preview changes.")
			return constants.ExitPermission.Int()
		}
	}

	ctx := context.Background()

	dist, err := distro.NewDetector(executor, nil).Detect(ctx)
	if err != nil {
		logger.Warn("distribution detection failed, bootloader and package support degraded", "error", err)
		dist = nil
	}

	checker := syscheck.NewChecker(executor, syscheck.WithLogger(logger))
	scanner := pci.NewScanner(executor, pci.WithLogger(logger))

	var chooser pci.Chooser
	var confirm func(question string, defaultYes bool) (bool, error)
	if !c.config.NonInteractive {
		chooser = ui.NewDeviceChooser()
		confirm = ui.NewConfirmPrompt().Confirm
	}

	backups := backup.NewManager(c.config.BackupDir(),
		backup.WithDryRun(c.config.DryRun),
		backup.WithLogger(logger),
	)

	ctxOpts := []setup.ContextOption{
		setup.WithDistroInfo(dist),
		setup.WithBootloader(bootloader.NewConfigurator(executor, dist,
			bootloader.WithBackups(backups),
			bootloader.WithLogger(logger),
			bootloader.WithDryRun(c.config.DryRun),
		)),
		setup.WithModprobe(modprobe.NewWriter(
			modprobe.WithBackups(backups),
			modprobe.WithLogger(logger),
			modprobe.WithDryRun(c.config.DryRun),
		)),
		setup.WithInitramfs(initramfs.NewManager(executor, dist,
			initramfs.WithBackups(backups),
			initramfs.WithLogger(logger),
			initramfs.WithDryRun(c.config.DryRun),
		)),
		setup.WithExecutor(executor),
		setup.WithLogger(logger),
		setup.WithJournal(state.NewJournal()),
		setup.WithBackups(backups),
		setup.WithDryRun(c.config.DryRun),
		setup.WithSkipPackages(c.config.SkipPackages),
		setup.WithParentContext(ctx),
	}
	if confirm != nil {
		ctxOpts = append(ctxOpts, setup.WithConfirm(confirm))
	}
	if pm, pmErr := pkg.ForDistribution(dist, executor); pmErr == nil {
		ctxOpts = append(ctxOpts, setup.WithPackageManager(pm))
	} else {
		logger.Warn("no supported package manager, package installation will be skipped", "error", pmErr)
	}

	setupCtx := setup.NewContext(ctxOpts...)
	go c.app.CancelOnSignal(setupCtx.Cancel)
	defer c.app.Shutdown()

	orch := setup.NewOrchestrator(checker, scanner, chooser,
		setup.WithOutputDir(c.config.OutputDir),
		setup.WithProgress(func(p setup.StepProgress) {
			if !c.config.IsSilent() {
				fmt.Println(p.String())
			}
		}),
	)

	if c.config.DryRun && !c.config.IsSilent() {
		fmt.Println("Dry run: no files will be modified.")
	}

	report, err := orch.Run(setupCtx)
	if err != nil {
		if len(report.Checks) > 0 && errors.IsCode(err, errors.Validation) {
			c.printChecks(report.Checks)
		}
		fmt.Fprintf(os.Stderr, "Setup failed: %v\n", err)
		switch {
		case errors.IsCode(err, errors.Validation):
			return constants.ExitValidation.Int()
		case errors.IsCode(err, errors.Permission):
			return constants.ExitPermission.Int()
		case errors.IsCode(err, errors.AlreadyExists),
			errors.IsCode(err, errors.Selection),
			errors.IsCode(err, errors.Discovery),
			errors.IsCode(err, errors.Grouping):
			return constants.ExitError.Int()
		}
		return constants.ExitSetup.Int()
	}

	c.printSetupReport(report)
	return constants.ExitSuccess.Int()
}

// printSetupReport summarizes a successful run.
func (c *CLI) printSetupReport(report *setup.Report) {
	if c.config.IsSilent() {
		return
	}

	fmt.Println()
	if sel := report.Selection; sel != nil {
		fmt.Printf("Isolated device: %s\n", sel.Device.String())
		fmt.Printf("IOMMU group:     %d\n", sel.PrimaryGroup)
		fmt.Printf("Bound IDs:       %s\n", strings.Join(sel.IDPairs(), ","))
	}
	if report.JournalPath != "" {
		fmt.Printf("Change journal:  %s\n", report.JournalPath)
	}
	if report.CleanupScriptPath != "" {
		fmt.Printf("Cleanup script:  %s\n", report.CleanupScriptPath)
	}
	if c.config.DryRun {
		fmt.Println("\nDry run complete. Re-run without --dry-run to apply changes.")
		return
	}
	if report.NeedsReboot {
		fmt.Println("\nSetup complete. Reboot to activate the new kernel parameters,")
		fmt.Printf("then run '%s verify' to confirm the device is bound to vfio-pci.\n", constants.AppName)
	} else {
		fmt.Println("\nSetup complete. No changes were required.")
	}
}

// deviceListing is the JSON shape of a single device in `devices --json`.
type deviceListing struct {
	Address    string `json:"address"`
	Class      string `json:"class"`
	Name       string `json:"name"`
	Vendor     string `json:"vendor"`
	VendorID   string `json:"vendor_id"`
	DeviceID   string `json:"device_id"`
	Driver     string `json:"driver,omitempty"`
	IommuGroup *int   `json:"iommu_group,omitempty"`
}

// cmdDevices lists display-class devices and their IOMMU groups.
func (c *CLI) cmdDevices(result *cli.ParseResult) int {
	container := c.app.Container()
	logger := container.GetLogger()
	executor := container.GetExecutor()

	ctx := context.Background()
	scanner := pci.NewScanner(executor, pci.WithLogger(logger))

	devices, err := scanner.DisplayDevices(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return constants.ExitError.Int()
	}

	// Grouping is best effort here; IOMMU may be disabled on this boot.
	groups, err := scanner.Groups(ctx)
	if err != nil {
		logger.Warn("IOMMU groups unavailable", "error", err)
		groups = nil
	}

	if result.DevicesFlags.JSON {
		return c.printDevicesJSON(devices, groups)
	}
	return c.printDevicesTable(devices, groups)
}

func (c *CLI) printDevicesJSON(devices []pci.Device, groups pci.GroupMap) int {
	listings := make([]deviceListing, 0, len(devices))
	for _, d := range devices {
		l := deviceListing{
			Address:  d.Address,
			Class:    d.Class,
			Name:     d.Name,
			Vendor:   d.Vendor,
			VendorID: d.VendorID,
			DeviceID: d.DeviceID,
			Driver:   d.Driver,
		}
		if id, ok := groups.GroupOf(d.Address); ok {
			group := id
			l.IommuGroup = &group
		}
		listings = append(listings, l)
	}

	out, err := json.MarshalIndent(listings, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return constants.ExitError.Int()
	}
	fmt.Println(string(out))
	return constants.ExitSuccess.Int()
}

func (c *CLI) printDevicesTable(devices []pci.Device, groups pci.GroupMap) int {
	if len(devices) == 0 {
		fmt.Println("No display devices found.")
		return constants.ExitSuccess.Int()
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ADDRESS\tGROUP\tIDS\tDRIVER\tDEVICE")
	for _, d := range devices {
		group := "-"
		if id, ok := groups.GroupOf(d.Address); ok {
			group = fmt.Sprintf("%d", id)
		}
		driver := d.Driver
		if driver == "" {
			driver = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", d.Address, group, d.IDPair(), driver, d.Name)
	}
	w.Flush()

	if groups == nil {
		fmt.Println("\nIOMMU groups unavailable. Enable IOMMU in the firmware and kernel first.")
	}
	return constants.ExitSuccess.Int()
}

// cmdCheck runs the prerequisite checks and reports the results.
func (c *CLI) cmdCheck() int {
	container := c.app.Container()
	logger := container.GetLogger()
	executor := container.GetExecutor()

	checker := syscheck.NewChecker(executor, syscheck.WithLogger(logger))
	results := checker.Report(context.Background())

	c.printChecks(results)

	if syscheck.HasFailures(results) {
		fmt.Printf("\nSome prerequisites are not met. Fix the failures above before running '%s setup'.\n", constants.AppName)
		return constants.ExitValidation.Int()
	}
	fmt.Printf("\nHost is ready for '%s setup'.\n", constants.AppName)
	return constants.ExitSuccess.Int()
}

func (c *CLI) printChecks(results []syscheck.Result) {
	for _, r := range results {
		fmt.Printf("[%s]\t%s: %s\n", strings.ToUpper(r.Status.String()), r.Name, r.Detail)
	}
}

// cmdVerify re-checks the host against a previous setup run.
func (c *CLI) cmdVerify(result *cli.ParseResult) int {
	container := c.app.Container()
	logger := container.GetLogger()
	executor := container.GetExecutor()

	journalPath := result.VerifyFlags.Journal
	explicit := journalPath != ""
	if journalPath == "" {
		journalPath = filepath.Join(c.config.OutputDir, constants.ChangesFileName)
	}

	doc, err := state.Load(journalPath)
	if err != nil {
		if explicit {
			fmt.Fprintf(os.Stderr, "Error: cannot load journal %s: %v\n", journalPath, err)
			return constants.ExitError.Int()
		}
		logger.Warn("no change journal found, verifying host state only", "path", journalPath)
		doc = nil
	}

	checker := syscheck.NewChecker(executor, syscheck.WithLogger(logger))
	scanner := pci.NewScanner(executor, pci.WithLogger(logger))
	verifier := verify.NewVerifier(checker, scanner, verify.WithLogger(logger))

	results := verifier.Run(context.Background(), verify.Targets(doc))
	c.printChecks(results)

	if syscheck.HasFailures(results) {
		fmt.Println("\nVerification failed. The device is not fully bound to vfio-pci.")
		return constants.ExitValidation.Int()
	}
	fmt.Println("\nVerification passed.")
	return constants.ExitSuccess.Int()
}

// cmdCleanup reverts the last setup run using the generated script.
func (c *CLI) cmdCleanup(result *cli.ParseResult) int {
	container := c.app.Container()
	executor := container.GetExecutor()

	script := filepath.Join(c.config.OutputDir, constants.CleanupScriptName)
	if _, err := os.Stat(script); err != nil {
		fmt.Fprintf(os.Stderr, "Error: no cleanup script at %s\n", script)
		fmt.Fprintf(os.Stderr, "Nothing to revert. Run '%s setup' first, or pass --output-dir.\n", constants.AppName)
		return constants.ExitError.Int()
	}

	if !result.CleanupFlags.Yes {
		if c.config.NonInteractive {
			fmt.Fprintln(os.Stderr, "Error: cleanup requires --yes in non-interactive mode")
			return constants.ExitValidation.Int()
		}
		ok, err := ui.NewConfirmPrompt().Confirm(
			fmt.Sprintf("Run %s and revert the last setup run?", script), false)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return constants.ExitError.Int()
		}
		if !ok {
			fmt.Println("Cleanup aborted.")
			return constants.ExitUserAbort.Int()
		}
	}

	if c.config.DryRun {
		fmt.Printf("Dry run: would execute %s\n", script)
		return constants.ExitSuccess.Int()
	}

	ctx := context.Background()
	var res *exec.Result
	if streamer, ok := executor.(*exec.RealExecutor); ok {
		res = streamer.StreamElevated(ctx, os.Stdout, os.Stderr, "/bin/bash", script)
	} else {
		res = executor.ExecuteElevated(ctx, "/bin/bash", script)
	}
	if !res.Success() {
		fmt.Fprintf(os.Stderr, "Cleanup script failed (exit %d)\n", res.ExitCode)
		if res.Error != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", res.Error)
		}
		return constants.ExitError.Int()
	}

	fmt.Println("Cleanup complete. Reboot to restore the original configuration.")
	return constants.ExitSuccess.Int()
}
