package bootloader

import (
	"context"
	"strings"

	"github.com/tungetti/carve/internal/errors"
)

// applyKernelstub configures kernel parameters through kernelstub, which
// owns the systemd-boot entries on Pop!_OS.
func (c *Configurator) applyKernelstub(ctx context.Context, params []string) (*Result, error) {
	if _, err := c.lookPath("kernelstub"); err != nil {
		return nil, errors.Wrap(errors.Bootloader, "kernelstub not found", err).WithOp("bootloader.applyKernelstub")
	}

	current := c.kernelstubParams(ctx)
	toAdd, toRemove := kernelstubDelta(current, params)

	result := &Result{Kind: KindKernelstub}

	if len(toAdd) == 0 && len(toRemove) == 0 {
		c.logger.Info("kernelstub parameters already configured")
		return result, nil
	}

	if c.dryRun {
		c.logger.Info("dry run: would change kernelstub parameters",
			"add", strings.Join(toAdd, " "), "remove", strings.Join(toRemove, " "))
		result.AddedParams = toAdd
		result.Changed = true
		return result, nil
	}

	for _, p := range toRemove {
		res := c.executor.ExecuteElevated(ctx, "kernelstub", "-d", p)
		if !res.Success() {
			return result, errors.Wrapf(errors.Bootloader, res.Error, "kernelstub -d %s failed", p).WithOp("bootloader.applyKernelstub")
		}
		c.logger.Info("removed conflicting kernel parameter", "param", p)
	}

	for _, p := range toAdd {
		res := c.executor.ExecuteElevated(ctx, "kernelstub", "-a", p)
		if !res.Success() {
			return result, errors.Wrapf(errors.Bootloader, res.Error, "kernelstub -a %s failed", p).WithOp("bootloader.applyKernelstub")
		}
		c.logger.Info("added kernel parameter", "param", p)
		result.AddedParams = append(result.AddedParams, p)
	}

	result.Changed = true
	return result, nil
}

// kernelstubParams reads the current boot options from `kernelstub -p`.
// A parse failure is treated as an empty option list.
func (c *Configurator) kernelstubParams(ctx context.Context) []string {
	res := c.executor.ExecuteElevated(ctx, "kernelstub", "-p")
	if !res.Success() {
		c.logger.Warn("kernelstub -p failed, assuming no current parameters")
		return nil
	}

	// kernelstub prints its report on stderr.
	output := res.StdoutString()
	if strings.TrimSpace(output) == "" {
		output = res.StderrString()
	}

	inOptions := false
	for _, line := range strings.Split(output, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "Kernel Boot Options:") {
			inOptions = true
			continue
		}
		if inOptions && strings.HasPrefix(trimmed, "options ") {
			return strings.Fields(strings.TrimPrefix(trimmed, "options "))
		}
	}

	c.logger.Warn("could not parse kernelstub -p output")
	return nil
}

// kernelstubDelta computes which parameters must be added and which
// conflicting ones removed to reach the desired set.
func kernelstubDelta(current, desired []string) (toAdd, toRemove []string) {
	currentSet := make(map[string]bool, len(current))
	for _, p := range current {
		currentSet[p] = true
	}

	for _, want := range desired {
		if currentSet[want] {
			continue
		}

		key := paramKey(want)
		if strings.Contains(want, "=") {
			for _, p := range current {
				if strings.HasPrefix(p, key+"=") && p != want {
					toRemove = append(toRemove, p)
				}
			}
			toAdd = append(toAdd, want)
			continue
		}

		// A bare flag already covered by a key=value setting is skipped.
		covered := false
		for _, p := range current {
			if paramKey(p) == key {
				covered = true
				break
			}
		}
		if !covered {
			toAdd = append(toAdd, want)
		}
	}

	return toAdd, toRemove
}
