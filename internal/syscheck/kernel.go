package syscheck

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/tungetti/carve/internal/errors"
)

// kernelVersionRe extracts the leading major.minor(.patch) from a release
// string like "6.1.0-rc3-1-custom".
var kernelVersionRe = regexp.MustCompile(`(\d+)\.(\d+)(?:\.(\d+))?`)

// KernelVersion is a parsed kernel release number.
type KernelVersion struct {
	Major int
	Minor int
	Patch int
}

// String returns the dotted version form.
func (v KernelVersion) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// AtLeast reports whether the version is >= major.minor.
func (v KernelVersion) AtLeast(major, minor int) bool {
	if v.Major != major {
		return v.Major > major
	}
	return v.Minor >= minor
}

// NeedsVirqfd reports whether the standalone vfio_virqfd module must be
// loaded. Kernel 6.2 folded it into the base vfio module.
func (v KernelVersion) NeedsVirqfd() bool {
	return !v.AtLeast(6, 2)
}

// Kernel determines the running kernel version via `uname -r`.
func (c *Checker) Kernel(ctx context.Context) (KernelVersion, error) {
	res := c.executor.Execute(ctx, "uname", "-r")
	if res.Error != nil || !res.Success() {
		return KernelVersion{}, errors.Wrap(errors.Execution, "uname -r failed", res.Error).WithOp("syscheck.Kernel")
	}

	return ParseKernelVersion(res.StdoutString())
}

// ParseKernelVersion parses a kernel release string into its numeric
// components.
func ParseKernelVersion(release string) (KernelVersion, error) {
	m := kernelVersionRe.FindStringSubmatch(release)
	if m == nil {
		return KernelVersion{}, errors.Newf(errors.Validation, "cannot parse kernel version from %q", release)
	}

	v := KernelVersion{}
	v.Major, _ = strconv.Atoi(m[1])
	v.Minor, _ = strconv.Atoi(m[2])
	if m[3] != "" {
		v.Patch, _ = strconv.Atoi(m[3])
	}
	return v, nil
}
