package bootloader

import (
	"context"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/tungetti/carve/internal/errors"
)

// cmdlineRe matches the GRUB_CMDLINE_LINUX_DEFAULT line. Group 1 is the
// assignment prefix up to and including the opening quote, group 2 the
// quote character, group 3 the parameter string, group 4 the closing
// quote.
var cmdlineRe = regexp.MustCompile(`(?m)^(\s*GRUB_CMDLINE_LINUX_DEFAULT\s*=\s*(["']))([^"']*)(["'])`)

// applyGrub edits the GRUB defaults file and regenerates grub.cfg.
func (c *Configurator) applyGrub(ctx context.Context, kind Kind, params []string) (*Result, error) {
	if !c.fileExists(c.grubDefaultPath) {
		return nil, errors.Newf(errors.Bootloader, "%s not found", c.grubDefaultPath).WithOp("bootloader.applyGrub")
	}

	content, err := os.ReadFile(c.grubDefaultPath)
	if err != nil {
		return nil, errors.Wrapf(errors.Bootloader, err, "cannot read %s", c.grubDefaultPath).WithOp("bootloader.applyGrub")
	}

	m := cmdlineRe.FindSubmatchIndex(content)
	if m == nil {
		return nil, errors.Newf(errors.Bootloader, "GRUB_CMDLINE_LINUX_DEFAULT not found in %s", c.grubDefaultPath).WithOp("bootloader.applyGrub")
	}

	current := string(content[m[6]:m[7]])
	merged := MergeParams(current, params)

	result := &Result{Kind: kind, AddedParams: params, Path: c.grubDefaultPath}

	if merged == current {
		c.logger.Info("kernel parameters already configured", "params", current)
		result.Changed = false
		return result, nil
	}

	if c.dryRun {
		c.logger.Info("dry run: would update GRUB_CMDLINE_LINUX_DEFAULT", "params", merged)
		result.Changed = true
		return result, nil
	}

	if c.backups != nil {
		rec, err := c.backups.Backup(c.grubDefaultPath)
		if err != nil {
			return nil, err
		}
		result.Backup = rec
	}

	updated := make([]byte, 0, len(content)+len(merged))
	updated = append(updated, content[:m[6]]...)
	updated = append(updated, merged...)
	updated = append(updated, content[m[7]:]...)

	if err := os.WriteFile(c.grubDefaultPath, updated, 0o644); err != nil {
		// Put the original back so a partial write cannot break boot.
		if result.Backup != nil {
			if restoreErr := c.backups.Restore(result.Backup); restoreErr != nil {
				c.logger.Error("failed to restore backup after write failure", "error", restoreErr)
			}
		}
		return nil, errors.Wrapf(errors.Bootloader, err, "cannot write %s", c.grubDefaultPath).WithOp("bootloader.applyGrub")
	}
	c.logger.Info("updated GRUB_CMDLINE_LINUX_DEFAULT", "params", merged)

	cmd, args := grubUpdateCommand(kind, c.lookPath)
	if cmd == "" {
		return result, errors.New(errors.Bootloader, "cannot determine GRUB update command").WithOp("bootloader.applyGrub")
	}
	result.RegenCommand = strings.Join(append([]string{cmd}, args...), " ")

	if err := c.regenerateGrub(ctx, cmd, args); err != nil {
		return result, err
	}

	result.Changed = true
	return result, nil
}

// regenerateGrub runs the variant's config regeneration command.
func (c *Configurator) regenerateGrub(ctx context.Context, cmd string, args []string) error {
	c.logger.Info("regenerating GRUB configuration", "command", cmd)
	res := c.executor.ExecuteElevated(ctx, cmd, args...)
	if !res.Success() {
		return errors.Wrapf(errors.Bootloader, res.Error, "%s failed: %s", cmd, strings.TrimSpace(res.StderrString())).WithOp("bootloader.regenerateGrub")
	}
	return nil
}

// grubUpdateCommand picks the regeneration command for the GRUB variant,
// probing PATH when the variant is unknown.
func grubUpdateCommand(kind Kind, lookPath func(string) (string, error)) (string, []string) {
	switch kind {
	case KindGrubDebian:
		return "update-grub", nil
	case KindGrubFedora:
		return "grub2-mkconfig", []string{"-o", "/boot/grub2/grub.cfg"}
	case KindGrubArch:
		return "grub-mkconfig", []string{"-o", "/boot/grub/grub.cfg"}
	}

	if _, err := lookPath("update-grub"); err == nil {
		return "update-grub", nil
	}
	if _, err := lookPath("grub2-mkconfig"); err == nil {
		return "grub2-mkconfig", []string{"-o", "/boot/grub2/grub.cfg"}
	}
	if _, err := lookPath("grub-mkconfig"); err == nil {
		return "grub-mkconfig", []string{"-o", "/boot/grub/grub.cfg"}
	}
	return "", nil
}

// MergeParams merges new parameters into an existing kernel parameter
// string. Existing parameters whose key matches an incoming one are
// replaced, and the final list is sorted for stable diffs.
func MergeParams(current string, add []string) string {
	replaceKeys := make(map[string]bool, len(add))
	for _, p := range add {
		replaceKeys[paramKey(p)] = true
	}

	final := make(map[string]bool)
	for _, p := range strings.Fields(current) {
		if !replaceKeys[paramKey(p)] && !replaceKeys[p] {
			final[p] = true
		}
	}
	for _, p := range add {
		final[p] = true
	}

	merged := make([]string, 0, len(final))
	for p := range final {
		merged = append(merged, p)
	}
	sort.Strings(merged)
	return strings.Join(merged, " ")
}

// paramKey returns the key part of a key=value parameter, or the whole
// parameter for bare flags.
func paramKey(p string) string {
	if i := strings.IndexByte(p, '='); i >= 0 {
		return p[:i]
	}
	return p
}
