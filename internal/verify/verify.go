// Package verify checks the host after the configuration reboot: the
// kernel command line must carry the IOMMU parameters, the VFIO modules
// must be loaded, and every recorded target device must be bound to
// vfio-pci. Each check reports an independent result so the CLI can show
// exactly what is still missing.
package verify

import (
	"context"
	"strings"

	"github.com/tungetti/carve/internal/constants"
	"github.com/tungetti/carve/internal/logging"
	"github.com/tungetti/carve/internal/pci"
	"github.com/tungetti/carve/internal/state"
	"github.com/tungetti/carve/internal/syscheck"
)

// Verifier runs the post-reboot checks.
type Verifier struct {
	checker *syscheck.Checker
	scanner *pci.Scanner
	logger  logging.Logger
}

// Option configures the verifier.
type Option func(*Verifier)

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(v *Verifier) {
		v.logger = logger
	}
}

// NewVerifier creates a verifier on top of the prerequisite checker and
// the PCI scanner.
func NewVerifier(checker *syscheck.Checker, scanner *pci.Scanner, opts ...Option) *Verifier {
	v := &Verifier{
		checker: checker,
		scanner: scanner,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Targets extracts the vendor:device pairs a saved run journal recorded
// for isolation. A nil document yields no targets.
func Targets(doc *state.Document) []string {
	if doc == nil {
		return nil
	}
	return doc.Device.IDPairs
}

// Run executes all post-reboot checks. targets are the vendor:device
// pairs that should now be bound to vfio-pci, usually loaded from the
// run journal.
func (v *Verifier) Run(ctx context.Context, targets []string) []syscheck.Result {
	results := []syscheck.Result{
		v.cmdline(),
		v.modules(ctx),
	}
	return append(results, v.binding(ctx, targets)...)
}

// cmdline confirms the IOMMU parameters are active on the running kernel.
// Unlike the pre-setup check this is a hard failure: after the reboot the
// parameters must be there.
func (v *Verifier) cmdline() syscheck.Result {
	iommu := v.checker.IOMMU()
	switch {
	case iommu.Enabled && iommu.Passthrough:
		return syscheck.Result{Name: "iommu-cmdline", Status: syscheck.StatusPass,
			Detail: "IOMMU enabled with passthrough mode"}
	case iommu.Enabled:
		return syscheck.Result{Name: "iommu-cmdline", Status: syscheck.StatusWarn,
			Detail: "IOMMU enabled but iommu=pt is not active"}
	default:
		return syscheck.Result{Name: "iommu-cmdline", Status: syscheck.StatusFail,
			Detail: "IOMMU parameters not active; reboot into the configured kernel"}
	}
}

// modules confirms the VFIO module stack is loaded.
func (v *Verifier) modules(ctx context.Context) syscheck.Result {
	loaded, err := v.checker.LoadedModules(ctx)
	if err != nil {
		return syscheck.Result{Name: "vfio-modules", Status: syscheck.StatusUnknown,
			Detail: "cannot list loaded modules"}
	}

	var missing []string
	for _, mod := range []string{constants.VFIOModule, constants.VFIOIommuType1Module, constants.VFIOPCIModule} {
		if !loaded[mod] {
			missing = append(missing, mod)
		}
	}
	if len(missing) > 0 {
		return syscheck.Result{Name: "vfio-modules", Status: syscheck.StatusFail,
			Detail: "not loaded: " + strings.Join(missing, ", ")}
	}
	return syscheck.Result{Name: "vfio-modules", Status: syscheck.StatusPass,
		Detail: "all VFIO modules loaded"}
}

// binding confirms every target vendor:device pair is bound to vfio-pci.
// One result per target keeps a multi-function card readable in the
// report.
func (v *Verifier) binding(ctx context.Context, targets []string) []syscheck.Result {
	if len(targets) == 0 {
		return []syscheck.Result{{Name: "device-binding", Status: syscheck.StatusWarn,
			Detail: "no recorded device IDs to check; run setup first"}}
	}

	devices, err := v.scanner.Devices(ctx)
	if err != nil {
		v.logger.Warn("device discovery unavailable", "error", err)
		return []syscheck.Result{{Name: "device-binding", Status: syscheck.StatusUnknown,
			Detail: "device discovery unavailable"}}
	}

	byPair := make(map[string][]pci.Device)
	for _, d := range devices {
		if pair := d.IDPair(); pair != "" {
			byPair[pair] = append(byPair[pair], d)
		}
	}

	results := make([]syscheck.Result, 0, len(targets))
	for _, target := range targets {
		name := "binding-" + target

		matches := byPair[target]
		if len(matches) == 0 {
			results = append(results, syscheck.Result{Name: name, Status: syscheck.StatusFail,
				Detail: "device no longer present"})
			continue
		}

		var unbound []string
		for _, d := range matches {
			if !d.IsUsingVFIO() {
				driver := d.Driver
				if driver == "" {
					driver = "no driver"
				}
				unbound = append(unbound, d.Address+" ("+driver+")")
			}
		}

		if len(unbound) > 0 {
			results = append(results, syscheck.Result{Name: name, Status: syscheck.StatusFail,
				Detail: "not bound to vfio-pci: " + strings.Join(unbound, ", ")})
		} else {
			results = append(results, syscheck.Result{Name: name, Status: syscheck.StatusPass,
				Detail: "bound to vfio-pci"})
		}
	}
	return results
}
