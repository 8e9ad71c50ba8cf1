package state

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tungetti/carve/internal/constants"
	"github.com/tungetti/carve/internal/errors"
)

// CleanupScript renders a bash script that reverts the journaled
// changes: restores backed-up files, removes created files, deletes
// kernelstub parameters, and re-runs the regeneration commands so the
// reverted configuration actually takes effect.
func (j *Journal) CleanupScript() string {
	var b strings.Builder

	b.WriteString("#!/bin/bash\n")
	b.WriteString("# VFIO configuration cleanup script\n")
	fmt.Fprintf(&b, "# Generated on: %s\n\n", j.now().Format("2006-01-02 15:04:05"))
	b.WriteString("set -e\n\n")
	b.WriteString("echo \"Reverting VFIO passthrough configuration...\"\n\n")
	b.WriteString("if [ \"$(id -u)\" -ne 0 ]; then\n")
	b.WriteString("    echo \"This script must be run as root.\"\n")
	b.WriteString("    exit 1\n")
	b.WriteString("fi\n\n")

	for _, c := range j.changes {
		switch {
		case c.Category == CategoryFiles && c.Action == ActionModified && c.BackupPath != "":
			fmt.Fprintf(&b, "if [ -f %q ]; then\n", c.BackupPath)
			fmt.Fprintf(&b, "    echo \"Restoring %s\"\n", c.Target)
			fmt.Fprintf(&b, "    cp %q %q || echo \"Failed to restore %s\"\n", c.BackupPath, c.Target, c.Target)
			b.WriteString("else\n")
			fmt.Fprintf(&b, "    echo \"Warning: backup %s not found, cannot restore %s\"\n", c.BackupPath, c.Target)
			b.WriteString("fi\n\n")

		case c.Category == CategoryFiles && c.Action == ActionCreated:
			fmt.Fprintf(&b, "if [ -f %q ]; then\n", c.Target)
			fmt.Fprintf(&b, "    echo \"Removing %s\"\n", c.Target)
			fmt.Fprintf(&b, "    rm -f %q || echo \"Failed to remove %s\"\n", c.Target, c.Target)
			b.WriteString("fi\n\n")

		case c.Category == CategoryKernelstub && c.Action == ActionAdded:
			fmt.Fprintf(&b, "echo \"Removing kernel parameter: %s\"\n", c.Target)
			fmt.Fprintf(&b, "kernelstub --delete-options=%q || echo \"Failed to remove kernel parameter %s\"\n\n", c.Target, c.Target)

		case c.Category == CategoryPackages && c.Action == ActionInstalled:
			fmt.Fprintf(&b, "echo \"Note: package %s was installed and is left in place.\"\n\n", c.Target)
		}
	}

	// Regeneration commands run last, after the files they consume have
	// been reverted.
	for _, c := range j.changes {
		if c.Action != ActionExecuted {
			continue
		}
		switch c.Category {
		case CategoryInitramfs:
			b.WriteString("echo \"Rebuilding initramfs without VFIO configuration...\"\n")
			fmt.Fprintf(&b, "%s || echo \"Failed to rebuild initramfs\"\n\n", c.Target)
		case CategoryBootloader:
			b.WriteString("echo \"Regenerating bootloader configuration...\"\n")
			fmt.Fprintf(&b, "%s || echo \"Failed to regenerate bootloader configuration\"\n\n", c.Target)
		}
	}

	b.WriteString("echo \"Cleanup completed. Reboot for the changes to take effect.\"\n")
	return b.String()
}

// WriteCleanupScript writes the cleanup script into the output directory
// with execute permission and returns the written path.
func (j *Journal) WriteCleanupScript(outputDir string) (string, error) {
	path := filepath.Join(outputDir, constants.CleanupScriptName)

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", errors.Wrapf(errors.Execution, err, "cannot create %s", outputDir).WithOp("state.WriteCleanupScript")
	}
	if err := os.WriteFile(path, []byte(j.CleanupScript()), 0o755); err != nil {
		return "", errors.Wrapf(errors.Execution, err, "cannot write %s", path).WithOp("state.WriteCleanupScript")
	}
	return path, nil
}
