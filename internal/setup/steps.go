package setup

import (
	"fmt"
	"os"
	"strings"

	"github.com/tungetti/carve/internal/bootloader"
	"github.com/tungetti/carve/internal/constants"
	"github.com/tungetti/carve/internal/errors"
	"github.com/tungetti/carve/internal/modprobe"
	"github.com/tungetti/carve/internal/pkg"
)

// KernelParamsStep adds the IOMMU kernel parameters through the detected
// bootloader.
type KernelParamsStep struct {
	BaseStep
	result *bootloader.Result
}

// NewKernelParamsStep creates the kernel parameter step.
func NewKernelParamsStep() *KernelParamsStep {
	return &KernelParamsStep{
		BaseStep: NewBaseStep("kernel-parameters", "Add IOMMU kernel parameters to the bootloader", true),
	}
}

// Validate checks the required context fields.
func (s *KernelParamsStep) Validate(ctx *Context) error {
	if ctx == nil || ctx.Bootloader == nil {
		return errors.New(errors.Validation, "no bootloader configurator in context")
	}
	return nil
}

// Execute applies the kernel parameters and journals the change.
func (s *KernelParamsStep) Execute(ctx *Context) StepResult {
	params := bootloader.RequiredParams(ctx.CPUVendor)

	res, err := ctx.Bootloader.Apply(ctx.Context(), params)
	if err != nil {
		return FailStep("bootloader configuration failed", err)
	}
	s.result = res

	if !res.Changed {
		return SkipStep("kernel parameters already configured")
	}

	if !ctx.DryRun && ctx.Journal != nil {
		if res.Kind == bootloader.KindKernelstub {
			for _, p := range res.AddedParams {
				ctx.Journal.KernelstubParamAdded(p)
			}
		} else {
			if res.Backup != nil {
				ctx.Journal.FileModified(res.Path, res.Backup.Copy)
			}
			if res.RegenCommand != "" {
				ctx.Journal.BootloaderRegenerated(res.RegenCommand)
			}
		}
	}

	return CompleteStep(fmt.Sprintf("kernel parameters applied via %s", res.Kind))
}

// Rollback restores the edited bootloader file, or deletes the added
// kernelstub parameters.
func (s *KernelParamsStep) Rollback(ctx *Context) error {
	if s.result == nil || ctx.DryRun {
		return nil
	}

	if s.result.Kind == bootloader.KindKernelstub {
		for _, p := range s.result.AddedParams {
			res := ctx.Executor.ExecuteElevated(ctx.Context(), "kernelstub", "-d", p)
			if !res.Success() {
				return errors.Newf(errors.Bootloader, "kernelstub -d %s failed: %s", p, strings.TrimSpace(res.StderrString()))
			}
		}
		return nil
	}

	if s.result.Backup != nil && ctx.Backups != nil {
		return ctx.Backups.Restore(s.result.Backup)
	}
	return nil
}

// ModprobeStep writes the vfio-pci options file and the boot-time module
// load list.
type ModprobeStep struct {
	BaseStep
	written []*modprobe.WriteResult
}

// NewModprobeStep creates the modprobe configuration step.
func NewModprobeStep() *ModprobeStep {
	return &ModprobeStep{
		BaseStep: NewBaseStep("vfio-modprobe", "Bind the selected devices to vfio-pci via modprobe.d", true),
	}
}

// Validate checks the required context fields.
func (s *ModprobeStep) Validate(ctx *Context) error {
	if ctx == nil || ctx.Modprobe == nil {
		return errors.New(errors.Validation, "no modprobe writer in context")
	}
	if ctx.Selection == nil {
		return errors.New(errors.Validation, "no device selection in context")
	}
	if len(ctx.Selection.IDPairs()) == 0 {
		return errors.New(errors.Validation, "selected devices carry no vendor:device pairs")
	}
	return nil
}

// Execute installs both configuration files and journals them.
func (s *ModprobeStep) Execute(ctx *Context) StepResult {
	ids := ctx.Selection.IDPairs()

	confRes, err := ctx.Modprobe.WriteVFIOConf(ids)
	if err != nil {
		return FailStep("cannot write modprobe configuration", err)
	}
	loadRes, err := ctx.Modprobe.WriteModulesLoad(ctx.Kernel.NeedsVirqfd())
	if err != nil {
		return FailStep("cannot write modules-load configuration", err)
	}
	s.written = []*modprobe.WriteResult{confRes, loadRes}

	if !ctx.DryRun && ctx.Journal != nil {
		for _, w := range s.written {
			if w.Created {
				ctx.Journal.FileCreated(w.Path)
			} else if w.Backup != nil {
				ctx.Journal.FileModified(w.Path, w.Backup.Copy)
			}
		}
	}

	return CompleteStep(fmt.Sprintf("vfio-pci bound to %s", strings.Join(ids, ", ")))
}

// Rollback removes created files and restores overwritten ones.
func (s *ModprobeStep) Rollback(ctx *Context) error {
	if ctx.DryRun {
		return nil
	}

	var firstErr error
	for _, w := range s.written {
		var err error
		switch {
		case w.Created:
			err = os.Remove(w.Path)
			if os.IsNotExist(err) {
				err = nil
			}
		case w.Backup != nil && ctx.Backups != nil:
			err = ctx.Backups.Restore(w.Backup)
		}
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// InitramfsStep forces the VFIO modules into the initramfs and rebuilds
// the image. No rollback: the cleanup script reverts the config and
// rebuilds again.
type InitramfsStep struct {
	BaseStep
}

// NewInitramfsStep creates the initramfs step.
func NewInitramfsStep() *InitramfsStep {
	return &InitramfsStep{
		BaseStep: NewBaseStep("initramfs", "Load the VFIO modules from the initramfs and rebuild it", false),
	}
}

// Validate checks the required context fields.
func (s *InitramfsStep) Validate(ctx *Context) error {
	if ctx == nil || ctx.Initramfs == nil {
		return errors.New(errors.Validation, "no initramfs manager in context")
	}
	return nil
}

// Execute updates the detected initramfs system and journals the change.
func (s *InitramfsStep) Execute(ctx *Context) StepResult {
	modules := []string{
		constants.VFIOModule,
		constants.VFIOIommuType1Module,
		constants.VFIOPCIModule,
	}
	if ctx.Kernel.NeedsVirqfd() {
		modules = append(modules, constants.VFIOVirqfdModule)
	}

	res, err := ctx.Initramfs.Update(ctx.Context(), modules)
	if err != nil {
		return FailStep("initramfs update failed", err)
	}

	if !ctx.DryRun && ctx.Journal != nil {
		if res.ConfigPath != "" {
			if res.ConfigCreated {
				ctx.Journal.FileCreated(res.ConfigPath)
			} else if res.Backup != nil {
				ctx.Journal.FileModified(res.ConfigPath, res.Backup.Copy)
			}
		}
		if res.RebuildCommand != "" {
			ctx.Journal.InitramfsRebuilt(res.RebuildCommand)
		}
	}

	return CompleteStep(fmt.Sprintf("initramfs rebuilt with %s", res.System))
}

// Rollback is not supported; the generated cleanup script reverts the
// configuration and rebuilds the image.
func (s *InitramfsStep) Rollback(ctx *Context) error {
	return nil
}

// PackagesStep offers to install the minimal virtualization stack when
// it is missing. Installed packages stay installed on rollback.
type PackagesStep struct {
	BaseStep
}

// NewPackagesStep creates the package installation step.
func NewPackagesStep() *PackagesStep {
	return &PackagesStep{
		BaseStep: NewBaseStep("packages", "Install QEMU, libvirt and virt-manager", false),
	}
}

// Validate never fails; a missing package manager skips the step instead.
func (s *PackagesStep) Validate(ctx *Context) error {
	return nil
}

// Execute installs the missing virtualization packages.
func (s *PackagesStep) Execute(ctx *Context) StepResult {
	if ctx.SkipPackages {
		return SkipStep("package installation disabled")
	}
	if ctx.Packages == nil || !ctx.Packages.IsAvailable() {
		return SkipStep("no supported package manager; install QEMU, libvirt and virt-manager manually")
	}

	wanted := pkg.VirtualizationPackages(ctx.Packages.Family())
	missing := make([]string, 0, len(wanted))
	for _, name := range wanted {
		installed, err := ctx.Packages.IsInstalled(ctx.Context(), name)
		if err != nil {
			ctx.LogWarn("cannot determine package state, assuming missing", "package", name, "error", err)
			installed = false
		}
		if !installed {
			missing = append(missing, name)
		}
	}

	if len(missing) == 0 {
		return SkipStep("virtualization packages already installed")
	}

	if ctx.Confirm != nil {
		ok, err := ctx.Confirm(fmt.Sprintf("Install missing virtualization packages (%s)?", strings.Join(missing, ", ")), true)
		if err != nil {
			return FailStep("package confirmation failed", err)
		}
		if !ok {
			return SkipStep("package installation declined")
		}
	}

	if ctx.DryRun {
		return SkipStep(fmt.Sprintf("dry run: would install %s", strings.Join(missing, ", ")))
	}

	if err := ctx.Packages.Install(ctx.Context(), missing...); err != nil {
		return FailStep("package installation failed", err)
	}

	if ctx.Journal != nil {
		for _, name := range missing {
			ctx.Journal.PackagesInstalled(name)
		}
	}

	return CompleteStep(fmt.Sprintf("installed %s", strings.Join(missing, ", ")))
}

// Rollback leaves installed packages in place.
func (s *PackagesStep) Rollback(ctx *Context) error {
	return nil
}

// Interface guards.
var (
	_ Step = (*KernelParamsStep)(nil)
	_ Step = (*ModprobeStep)(nil)
	_ Step = (*InitramfsStep)(nil)
	_ Step = (*PackagesStep)(nil)
)
