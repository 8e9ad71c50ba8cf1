package setup

import (
	"context"
	"sync"

	"github.com/tungetti/carve/internal/backup"
	"github.com/tungetti/carve/internal/bootloader"
	"github.com/tungetti/carve/internal/distro"
	"github.com/tungetti/carve/internal/exec"
	"github.com/tungetti/carve/internal/initramfs"
	"github.com/tungetti/carve/internal/logging"
	"github.com/tungetti/carve/internal/modprobe"
	"github.com/tungetti/carve/internal/pci"
	"github.com/tungetti/carve/internal/pkg"
	"github.com/tungetti/carve/internal/state"
	"github.com/tungetti/carve/internal/syscheck"
)

// Context carries the shared state of one setup run: the host facts
// gathered during checks and discovery, the configured subsystem
// managers, and the journal recording every mutation.
type Context struct {
	// Host facts
	DistroInfo *distro.Distribution
	CPUVendor  syscheck.CPUVendor
	Kernel     syscheck.KernelVersion

	// The device selection being isolated
	Selection *pci.Selection

	// Subsystem managers
	Bootloader *bootloader.Configurator
	Modprobe   *modprobe.Writer
	Initramfs  *initramfs.Manager
	Packages   pkg.Manager // nil on families without a supported manager

	// Run services
	Executor exec.Executor
	Logger   logging.Logger
	Journal  *state.Journal
	Backups  *backup.Manager

	// Confirm asks the user a yes/no question. Nil in non-interactive
	// runs; steps that would prompt fall back to their default answer.
	Confirm func(question string, defaultYes bool) (bool, error)

	// Run modes
	DryRun       bool
	SkipPackages bool

	// Cancellation
	ctx    context.Context
	cancel context.CancelFunc

	// State storage for steps to share data
	state   map[string]interface{}
	stateMu sync.RWMutex
}

// ContextOption is a functional option for Context.
type ContextOption func(*Context)

// WithDistroInfo sets the distribution information.
func WithDistroInfo(info *distro.Distribution) ContextOption {
	return func(c *Context) {
		c.DistroInfo = info
	}
}

// WithCPUVendor sets the detected CPU vendor.
func WithCPUVendor(vendor syscheck.CPUVendor) ContextOption {
	return func(c *Context) {
		c.CPUVendor = vendor
	}
}

// WithKernel sets the running kernel version.
func WithKernel(kernel syscheck.KernelVersion) ContextOption {
	return func(c *Context) {
		c.Kernel = kernel
	}
}

// WithSelection sets the device selection being isolated.
func WithSelection(sel *pci.Selection) ContextOption {
	return func(c *Context) {
		c.Selection = sel
	}
}

// WithBootloader sets the bootloader configurator.
func WithBootloader(b *bootloader.Configurator) ContextOption {
	return func(c *Context) {
		c.Bootloader = b
	}
}

// WithModprobe sets the modprobe writer.
func WithModprobe(w *modprobe.Writer) ContextOption {
	return func(c *Context) {
		c.Modprobe = w
	}
}

// WithInitramfs sets the initramfs manager.
func WithInitramfs(m *initramfs.Manager) ContextOption {
	return func(c *Context) {
		c.Initramfs = m
	}
}

// WithPackageManager sets the package manager.
func WithPackageManager(pm pkg.Manager) ContextOption {
	return func(c *Context) {
		c.Packages = pm
	}
}

// WithExecutor sets the command executor.
func WithExecutor(executor exec.Executor) ContextOption {
	return func(c *Context) {
		c.Executor = executor
	}
}

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) ContextOption {
	return func(c *Context) {
		c.Logger = logger
	}
}

// WithJournal sets the change journal.
func WithJournal(journal *state.Journal) ContextOption {
	return func(c *Context) {
		c.Journal = journal
	}
}

// WithBackups sets the backup manager.
func WithBackups(backups *backup.Manager) ContextOption {
	return func(c *Context) {
		c.Backups = backups
	}
}

// WithConfirm sets the yes/no prompt capability.
func WithConfirm(confirm func(question string, defaultYes bool) (bool, error)) ContextOption {
	return func(c *Context) {
		c.Confirm = confirm
	}
}

// WithDryRun sets the dry run mode.
func WithDryRun(dryRun bool) ContextOption {
	return func(c *Context) {
		c.DryRun = dryRun
	}
}

// WithSkipPackages disables the package installation step.
func WithSkipPackages(skip bool) ContextOption {
	return func(c *Context) {
		c.SkipPackages = skip
	}
}

// WithParentContext sets a parent context for cancellation.
func WithParentContext(ctx context.Context) ContextOption {
	return func(c *Context) {
		if c.cancel != nil {
			c.cancel()
		}
		c.ctx, c.cancel = context.WithCancel(ctx)
	}
}

// NewContext creates a setup context with the given options.
func NewContext(opts ...ContextOption) *Context {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Context{
		ctx:    ctx,
		cancel: cancel,
		state:  make(map[string]interface{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetState stores a value steps want to share with later steps or with
// their own rollback.
func (c *Context) SetState(key string, value interface{}) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	c.state[key] = value
}

// GetState retrieves a shared value by key.
func (c *Context) GetState(key string) (interface{}, bool) {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	value, ok := c.state[key]
	return value, ok
}

// GetStateString retrieves a string value from the context state.
// Returns an empty string if the key is missing or not a string.
func (c *Context) GetStateString(key string) string {
	value, ok := c.GetState(key)
	if !ok {
		return ""
	}
	s, _ := value.(string)
	return s
}

// GetStateSlice retrieves a string slice value from the context state.
// Returns nil if the key is missing or not a string slice.
func (c *Context) GetStateSlice(key string) []string {
	value, ok := c.GetState(key)
	if !ok {
		return nil
	}
	s, _ := value.([]string)
	return s
}

// Context returns the underlying context.Context for cancellation support.
func (c *Context) Context() context.Context {
	return c.ctx
}

// Cancel cancels the context, signaling all operations to stop.
func (c *Context) Cancel() {
	if c.cancel != nil {
		c.cancel()
	}
}

// IsCancelled returns true if the context has been cancelled.
func (c *Context) IsCancelled() bool {
	if c.ctx == nil {
		return false
	}
	select {
	case <-c.ctx.Done():
		return true
	default:
		return false
	}
}

// Log logs a message at the info level if a logger is configured.
func (c *Context) Log(msg string, keyvals ...interface{}) {
	if c.Logger != nil {
		c.Logger.Info(msg, keyvals...)
	}
}

// LogWarn logs a message at the warn level if a logger is configured.
func (c *Context) LogWarn(msg string, keyvals ...interface{}) {
	if c.Logger != nil {
		c.Logger.Warn(msg, keyvals...)
	}
}

// LogError logs a message at the error level if a logger is configured.
func (c *Context) LogError(msg string, keyvals ...interface{}) {
	if c.Logger != nil {
		c.Logger.Error(msg, keyvals...)
	}
}
