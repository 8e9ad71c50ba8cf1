package setup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tungetti/carve/internal/backup"
	"github.com/tungetti/carve/internal/bootloader"
	"github.com/tungetti/carve/internal/constants"
	"github.com/tungetti/carve/internal/errors"
	"github.com/tungetti/carve/internal/exec"
	"github.com/tungetti/carve/internal/initramfs"
	"github.com/tungetti/carve/internal/modprobe"
	"github.com/tungetti/carve/internal/pci"
	"github.com/tungetti/carve/internal/pkg"
	"github.com/tungetti/carve/internal/state"
	"github.com/tungetti/carve/internal/syscheck"
)

// pathSet returns a lookPath stub that resolves only the given binaries.
func pathSet(binaries ...string) func(string) (string, error) {
	set := make(map[string]bool, len(binaries))
	for _, b := range binaries {
		set[b] = true
	}
	return func(name string) (string, error) {
		if set[name] {
			return "/usr/bin/" + name, nil
		}
		return "", os.ErrNotExist
	}
}

// tempOnly restricts filesystem probing to paths under the test tree so
// the host's real /etc never leaks into detection.
func tempOnly() func(string) bool {
	return func(path string) bool {
		if !strings.HasPrefix(path, os.TempDir()) {
			return false
		}
		_, err := os.Stat(path)
		return err == nil
	}
}

func testSelection() *pci.Selection {
	gpu := pci.Device{
		Address:  "0000:0b:00.0",
		Class:    "VGA compatible controller",
		Name:     "Navi 21",
		VendorID: "1002",
		DeviceID: "73bf",
		Driver:   "amdgpu",
	}
	audio := pci.Device{
		Address:  "0000:0b:00.1",
		Class:    "Audio device",
		Name:     "Navi 21/23 HDMI/DP Audio Controller",
		VendorID: "1002",
		DeviceID: "ab28",
		Driver:   "snd_hda_intel",
	}
	return &pci.Selection{
		Device:       gpu,
		PrimaryGroup: 22,
		Related: []pci.GroupedDevice{
			{Device: gpu, GroupID: 22},
			{Device: audio, GroupID: 22},
		},
	}
}

func writeGrubDefault(t *testing.T, cmdline string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "grub")
	content := fmt.Sprintf("GRUB_TIMEOUT=5\nGRUB_CMDLINE_LINUX_DEFAULT=\"%s\"\n", cmdline)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func fixedJournal() *state.Journal {
	return state.NewJournal(state.WithClock(func() time.Time {
		return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	}))
}

func TestKernelParamsStep_AppliesAndJournals(t *testing.T) {
	grubPath := writeGrubDefault(t, "quiet splash")
	backups := backup.NewManager(filepath.Join(t.TempDir(), "backups"))
	mock := exec.NewMockExecutor()
	conf := bootloader.NewConfigurator(mock, nil,
		bootloader.WithGrubDefaultPath(grubPath),
		bootloader.WithLookPath(pathSet("update-grub")),
		bootloader.WithBackups(backups),
	)
	journal := fixedJournal()
	ctx := NewContext(
		WithBootloader(conf),
		WithCPUVendor(syscheck.VendorAMD),
		WithExecutor(mock),
		WithJournal(journal),
		WithBackups(backups),
	)

	step := NewKernelParamsStep()
	require.NoError(t, step.Validate(ctx))
	res := step.Execute(ctx)

	require.Equal(t, StepStatusCompleted, res.Status, res.String())

	data, err := os.ReadFile(grubPath)
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "amd_iommu=on")
	assert.Contains(t, content, "iommu=pt")
	assert.Contains(t, content, "rd.driver.pre=vfio-pci")
	assert.True(t, mock.WasCalledWith("update-grub"))

	changes := journal.Changes()
	require.Len(t, changes, 2)
	assert.Equal(t, state.CategoryFiles, changes[0].Category)
	assert.Equal(t, state.ActionModified, changes[0].Action)
	assert.Equal(t, grubPath, changes[0].Target)
	assert.NotEmpty(t, changes[0].BackupPath)
	assert.Equal(t, state.CategoryBootloader, changes[1].Category)
	assert.Equal(t, "update-grub", changes[1].Target)
}

func TestKernelParamsStep_AlreadyConfigured(t *testing.T) {
	grubPath := writeGrubDefault(t, "amd_iommu=on iommu=pt quiet rd.driver.pre=vfio-pci splash")
	mock := exec.NewMockExecutor()
	conf := bootloader.NewConfigurator(mock, nil,
		bootloader.WithGrubDefaultPath(grubPath),
		bootloader.WithLookPath(pathSet("update-grub")),
	)
	journal := fixedJournal()
	ctx := NewContext(
		WithBootloader(conf),
		WithCPUVendor(syscheck.VendorAMD),
		WithExecutor(mock),
		WithJournal(journal),
	)

	res := NewKernelParamsStep().Execute(ctx)

	assert.Equal(t, StepStatusSkipped, res.Status, res.String())
	assert.True(t, journal.Empty())
	assert.Zero(t, mock.CallCount(), "no regeneration when nothing changed")
}

func TestKernelParamsStep_Rollback(t *testing.T) {
	grubPath := writeGrubDefault(t, "quiet splash")
	original, err := os.ReadFile(grubPath)
	require.NoError(t, err)

	backups := backup.NewManager(filepath.Join(t.TempDir(), "backups"))
	mock := exec.NewMockExecutor()
	conf := bootloader.NewConfigurator(mock, nil,
		bootloader.WithGrubDefaultPath(grubPath),
		bootloader.WithLookPath(pathSet("update-grub")),
		bootloader.WithBackups(backups),
	)
	ctx := NewContext(
		WithBootloader(conf),
		WithCPUVendor(syscheck.VendorAMD),
		WithExecutor(mock),
		WithBackups(backups),
	)

	step := NewKernelParamsStep()
	require.Equal(t, StepStatusCompleted, step.Execute(ctx).Status)

	modified, err := os.ReadFile(grubPath)
	require.NoError(t, err)
	require.NotEqual(t, string(original), string(modified))

	require.NoError(t, step.Rollback(ctx))

	restored, err := os.ReadFile(grubPath)
	require.NoError(t, err)
	assert.Equal(t, string(original), string(restored))
}

func TestKernelParamsStep_DryRun(t *testing.T) {
	grubPath := writeGrubDefault(t, "quiet splash")
	original, err := os.ReadFile(grubPath)
	require.NoError(t, err)

	mock := exec.NewMockExecutor()
	conf := bootloader.NewConfigurator(mock, nil,
		bootloader.WithGrubDefaultPath(grubPath),
		bootloader.WithLookPath(pathSet("update-grub")),
		bootloader.WithDryRun(true),
	)
	journal := fixedJournal()
	ctx := NewContext(
		WithBootloader(conf),
		WithCPUVendor(syscheck.VendorAMD),
		WithExecutor(mock),
		WithJournal(journal),
		WithDryRun(true),
	)

	res := NewKernelParamsStep().Execute(ctx)

	assert.Equal(t, StepStatusCompleted, res.Status, res.String())
	assert.True(t, journal.Empty())

	after, err := os.ReadFile(grubPath)
	require.NoError(t, err)
	assert.Equal(t, string(original), string(after))
}

func TestKernelParamsStep_UnsupportedBootloader(t *testing.T) {
	mock := exec.NewMockExecutor()
	conf := bootloader.NewConfigurator(mock, nil,
		bootloader.WithFileExists(func(string) bool { return false }),
		bootloader.WithLookPath(pathSet()),
	)
	ctx := NewContext(
		WithBootloader(conf),
		WithCPUVendor(syscheck.VendorIntel),
		WithExecutor(mock),
	)

	res := NewKernelParamsStep().Execute(ctx)

	require.Equal(t, StepStatusFailed, res.Status)
	assert.ErrorIs(t, res.Error, errors.ErrUnsupportedBootloader)
}

func TestKernelParamsStep_ValidateRequiresBootloader(t *testing.T) {
	err := NewKernelParamsStep().Validate(NewContext())

	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.Validation))
}

func newModprobeContext(t *testing.T, opts ...ContextOption) (*Context, string, string) {
	t.Helper()
	modprobeDir := filepath.Join(t.TempDir(), "modprobe.d")
	modulesLoadDir := filepath.Join(t.TempDir(), "modules-load.d")
	writer := modprobe.NewWriter(
		modprobe.WithModprobeDir(modprobeDir),
		modprobe.WithModulesLoadDir(modulesLoadDir),
	)
	opts = append([]ContextOption{
		WithModprobe(writer),
		WithSelection(testSelection()),
		WithKernel(syscheck.KernelVersion{Major: 6, Minor: 8}),
		WithJournal(fixedJournal()),
	}, opts...)
	return NewContext(opts...), modprobeDir, modulesLoadDir
}

func TestModprobeStep_WritesAndJournals(t *testing.T) {
	ctx, modprobeDir, modulesLoadDir := newModprobeContext(t)

	step := NewModprobeStep()
	require.NoError(t, step.Validate(ctx))
	res := step.Execute(ctx)

	require.Equal(t, StepStatusCompleted, res.Status, res.String())
	assert.Contains(t, res.Message, "1002:73bf, 1002:ab28")

	conf, err := os.ReadFile(filepath.Join(modprobeDir, "vfio.conf"))
	require.NoError(t, err)
	assert.Contains(t, string(conf), "ids=1002:73bf,1002:ab28")

	load, err := os.ReadFile(filepath.Join(modulesLoadDir, "vfio.conf"))
	require.NoError(t, err)
	assert.Equal(t, "vfio\nvfio_iommu_type1\nvfio_pci\n", string(load))

	changes := ctx.Journal.Changes()
	require.Len(t, changes, 2)
	for _, c := range changes {
		assert.Equal(t, state.CategoryFiles, c.Category)
		assert.Equal(t, state.ActionCreated, c.Action)
	}
}

func TestModprobeStep_OldKernelAddsVirqfd(t *testing.T) {
	ctx, _, modulesLoadDir := newModprobeContext(t, WithKernel(syscheck.KernelVersion{Major: 5, Minor: 15}))

	res := NewModprobeStep().Execute(ctx)
	require.Equal(t, StepStatusCompleted, res.Status, res.String())

	load, err := os.ReadFile(filepath.Join(modulesLoadDir, "vfio.conf"))
	require.NoError(t, err)
	assert.Contains(t, string(load), "vfio_virqfd")
}

func TestModprobeStep_RollbackRemovesCreatedFiles(t *testing.T) {
	ctx, modprobeDir, modulesLoadDir := newModprobeContext(t)

	step := NewModprobeStep()
	require.Equal(t, StepStatusCompleted, step.Execute(ctx).Status)
	require.FileExists(t, filepath.Join(modprobeDir, "vfio.conf"))

	require.NoError(t, step.Rollback(ctx))

	assert.NoFileExists(t, filepath.Join(modprobeDir, "vfio.conf"))
	assert.NoFileExists(t, filepath.Join(modulesLoadDir, "vfio.conf"))
}

func TestModprobeStep_Validate(t *testing.T) {
	writer := modprobe.NewWriter(
		modprobe.WithModprobeDir(t.TempDir()),
		modprobe.WithModulesLoadDir(t.TempDir()),
	)

	tests := []struct {
		name string
		ctx  *Context
	}{
		{"no writer", NewContext(WithSelection(testSelection()))},
		{"no selection", NewContext(WithModprobe(writer))},
		{"no id pairs", NewContext(WithModprobe(writer), WithSelection(&pci.Selection{
			Device: pci.Device{Address: "0000:0b:00.0"},
		}))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewModprobeStep().Validate(tt.ctx)

			require.Error(t, err)
			assert.True(t, errors.IsCode(err, errors.Validation))
		})
	}
}

func TestInitramfsStep_RebuildsAndJournals(t *testing.T) {
	dracutDir := t.TempDir()
	mock := exec.NewMockExecutor()
	manager := initramfs.NewManager(mock, nil,
		initramfs.WithDracutConfDir(dracutDir),
		initramfs.WithFileExists(tempOnly()),
		initramfs.WithLookPath(pathSet("dracut")),
	)
	journal := fixedJournal()
	ctx := NewContext(
		WithInitramfs(manager),
		WithKernel(syscheck.KernelVersion{Major: 6, Minor: 8}),
		WithExecutor(mock),
		WithJournal(journal),
	)

	step := NewInitramfsStep()
	require.NoError(t, step.Validate(ctx))
	res := step.Execute(ctx)

	require.Equal(t, StepStatusCompleted, res.Status, res.String())
	assert.Contains(t, res.Message, "dracut")
	assert.True(t, mock.WasCalledWith("dracut", "--force"))

	dropIn, err := os.ReadFile(filepath.Join(dracutDir, "vfio.conf"))
	require.NoError(t, err)
	assert.Contains(t, string(dropIn), "force_drivers+=\" vfio vfio_iommu_type1 vfio_pci \"")

	changes := journal.Changes()
	require.Len(t, changes, 2)
	assert.Equal(t, state.ActionCreated, changes[0].Action)
	assert.Equal(t, state.CategoryInitramfs, changes[1].Category)
	assert.Equal(t, "dracut --force", changes[1].Target)
}

func TestInitramfsStep_OldKernelForcesVirqfd(t *testing.T) {
	dracutDir := t.TempDir()
	mock := exec.NewMockExecutor()
	manager := initramfs.NewManager(mock, nil,
		initramfs.WithDracutConfDir(dracutDir),
		initramfs.WithFileExists(tempOnly()),
		initramfs.WithLookPath(pathSet("dracut")),
	)
	ctx := NewContext(
		WithInitramfs(manager),
		WithKernel(syscheck.KernelVersion{Major: 6, Minor: 1}),
		WithExecutor(mock),
	)

	res := NewInitramfsStep().Execute(ctx)
	require.Equal(t, StepStatusCompleted, res.Status, res.String())

	dropIn, err := os.ReadFile(filepath.Join(dracutDir, "vfio.conf"))
	require.NoError(t, err)
	assert.Contains(t, string(dropIn), "vfio_virqfd")
}

func TestInitramfsStep_NoGeneratorFails(t *testing.T) {
	mock := exec.NewMockExecutor()
	manager := initramfs.NewManager(mock, nil,
		initramfs.WithFileExists(func(string) bool { return false }),
		initramfs.WithLookPath(pathSet()),
	)
	ctx := NewContext(
		WithInitramfs(manager),
		WithKernel(syscheck.KernelVersion{Major: 6, Minor: 8}),
		WithExecutor(mock),
	)

	res := NewInitramfsStep().Execute(ctx)

	require.Equal(t, StepStatusFailed, res.Status)
	assert.True(t, errors.IsCode(res.Error, errors.Initramfs))
}

func TestInitramfsStep_ValidateRequiresManager(t *testing.T) {
	err := NewInitramfsStep().Validate(NewContext())

	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.Validation))
}

// fakePkgManager is a scriptable pkg.Manager for exercising the package
// step without a real distribution.
type fakePkgManager struct {
	family       constants.DistroFamily
	available    bool
	installed    map[string]bool
	installErr   error
	queryErr     error
	installCalls [][]string
}

func newFakePkgManager(installed ...string) *fakePkgManager {
	f := &fakePkgManager{
		family:    constants.FamilyArch,
		available: true,
		installed: make(map[string]bool),
	}
	for _, name := range installed {
		f.installed[name] = true
	}
	return f
}

func (f *fakePkgManager) Name() string                    { return "fake" }
func (f *fakePkgManager) Family() constants.DistroFamily { return f.family }
func (f *fakePkgManager) IsAvailable() bool               { return f.available }

func (f *fakePkgManager) Install(ctx context.Context, packages ...string) error {
	f.installCalls = append(f.installCalls, packages)
	if f.installErr != nil {
		return f.installErr
	}
	for _, p := range packages {
		f.installed[p] = true
	}
	return nil
}

func (f *fakePkgManager) IsInstalled(ctx context.Context, name string) (bool, error) {
	if f.queryErr != nil {
		return false, f.queryErr
	}
	return f.installed[name], nil
}

var _ pkg.Manager = (*fakePkgManager)(nil)

func TestPackagesStep_InstallsMissing(t *testing.T) {
	manager := newFakePkgManager("qemu-full")
	journal := fixedJournal()
	ctx := NewContext(WithPackageManager(manager), WithJournal(journal))

	res := NewPackagesStep().Execute(ctx)

	require.Equal(t, StepStatusCompleted, res.Status, res.String())
	require.Len(t, manager.installCalls, 1)
	assert.Equal(t, []string{"libvirt", "virt-manager"}, manager.installCalls[0])

	changes := journal.Changes()
	require.Len(t, changes, 2)
	assert.Equal(t, state.CategoryPackages, changes[0].Category)
	assert.Equal(t, "libvirt", changes[0].Target)
	assert.Equal(t, "virt-manager", changes[1].Target)
}

func TestPackagesStep_AllInstalled(t *testing.T) {
	manager := newFakePkgManager("qemu-full", "libvirt", "virt-manager")
	ctx := NewContext(WithPackageManager(manager))

	res := NewPackagesStep().Execute(ctx)

	assert.Equal(t, StepStatusSkipped, res.Status)
	assert.Empty(t, manager.installCalls)
}

func TestPackagesStep_SkipFlag(t *testing.T) {
	manager := newFakePkgManager()
	ctx := NewContext(WithPackageManager(manager), WithSkipPackages(true))

	res := NewPackagesStep().Execute(ctx)

	assert.Equal(t, StepStatusSkipped, res.Status)
	assert.Contains(t, res.Message, "disabled")
	assert.Empty(t, manager.installCalls)
}

func TestPackagesStep_NoManager(t *testing.T) {
	res := NewPackagesStep().Execute(NewContext())

	assert.Equal(t, StepStatusSkipped, res.Status)
	assert.Contains(t, res.Message, "manually")
}

func TestPackagesStep_ConfirmDeclined(t *testing.T) {
	manager := newFakePkgManager()
	ctx := NewContext(
		WithPackageManager(manager),
		WithConfirm(func(question string, defaultYes bool) (bool, error) {
			assert.Contains(t, question, "qemu-full")
			assert.True(t, defaultYes)
			return false, nil
		}),
	)

	res := NewPackagesStep().Execute(ctx)

	assert.Equal(t, StepStatusSkipped, res.Status)
	assert.Contains(t, res.Message, "declined")
	assert.Empty(t, manager.installCalls)
}

func TestPackagesStep_DryRun(t *testing.T) {
	manager := newFakePkgManager()
	journal := fixedJournal()
	ctx := NewContext(WithPackageManager(manager), WithJournal(journal), WithDryRun(true))

	res := NewPackagesStep().Execute(ctx)

	assert.Equal(t, StepStatusSkipped, res.Status)
	assert.Contains(t, res.Message, "would install")
	assert.Empty(t, manager.installCalls)
	assert.True(t, journal.Empty())
}

func TestPackagesStep_InstallFailure(t *testing.T) {
	manager := newFakePkgManager()
	manager.installErr = fmt.Errorf("mirror unreachable")
	ctx := NewContext(WithPackageManager(manager))

	res := NewPackagesStep().Execute(ctx)

	require.Equal(t, StepStatusFailed, res.Status)
	assert.ErrorContains(t, res.Error, "mirror unreachable")
}

func TestPackagesStep_QueryErrorTreatsAsMissing(t *testing.T) {
	manager := newFakePkgManager()
	manager.queryErr = fmt.Errorf("database locked")
	ctx := NewContext(WithPackageManager(manager))

	res := NewPackagesStep().Execute(ctx)

	require.Equal(t, StepStatusCompleted, res.Status, res.String())
	require.Len(t, manager.installCalls, 1)
	assert.Equal(t, []string{"qemu-full", "libvirt", "virt-manager"}, manager.installCalls[0])
}
