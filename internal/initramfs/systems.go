package initramfs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/tungetti/carve/internal/backup"
	"github.com/tungetti/carve/internal/errors"
)

var (
	mkinitcpioModulesRe = regexp.MustCompile(`(?m)^MODULES\s*=\s*\((.*?)\)`)
	mkinitcpioHooksRe   = regexp.MustCompile(`(?m)^HOOKS\s*=\s*\((.*?)\)`)
	debianModuleLineRe  = regexp.MustCompile(`^\s*([a-zA-Z0-9_-]+)`)
)

// updateMkinitcpio prepends the modules to the MODULES array, ensures the
// modconf hook is present, and runs mkinitcpio -P.
func (m *Manager) updateMkinitcpio(ctx context.Context, modules []string) (*Result, error) {
	result := &Result{System: Mkinitcpio, RebuildCommand: "mkinitcpio -P"}

	if !m.fileExists(m.mkinitcpioConf) {
		return nil, errors.Newf(errors.Initramfs, "%s not found", m.mkinitcpioConf).WithOp("initramfs.updateMkinitcpio")
	}

	content, err := os.ReadFile(m.mkinitcpioConf)
	if err != nil {
		return nil, errors.Wrapf(errors.Initramfs, err, "cannot read %s", m.mkinitcpioConf).WithOp("initramfs.updateMkinitcpio")
	}

	updated, changed := mergeMkinitcpio(string(content), modules)
	if changed {
		if m.dryRun {
			m.logger.Info("dry run: would update mkinitcpio.conf", "path", m.mkinitcpioConf)
		} else {
			if m.backups != nil {
				rec, err := m.backups.Backup(m.mkinitcpioConf)
				if err != nil {
					return nil, err
				}
				result.Backup = rec
			}
			if err := os.WriteFile(m.mkinitcpioConf, []byte(updated), 0o644); err != nil {
				return nil, errors.Wrapf(errors.Initramfs, err, "cannot write %s", m.mkinitcpioConf).WithOp("initramfs.updateMkinitcpio")
			}
		}
		result.ConfigPath = m.mkinitcpioConf
	}

	if err := m.rebuild(ctx, "mkinitcpio", "-P"); err != nil {
		return nil, err
	}
	return result, nil
}

// mergeMkinitcpio inserts missing modules at the front of the MODULES
// array so they load before the display drivers, and adds the modconf
// hook after base when absent.
func mergeMkinitcpio(content string, modules []string) (string, bool) {
	changed := false

	if m := mkinitcpioModulesRe.FindStringSubmatch(content); m != nil {
		existing := strings.Fields(m[1])
		existingSet := make(map[string]bool, len(existing))
		for _, mod := range existing {
			existingSet[mod] = true
		}

		var missing []string
		for _, mod := range modules {
			if !existingSet[mod] {
				missing = append(missing, mod)
			}
		}
		if len(missing) > 0 {
			merged := append(append([]string{}, modules...), diffModules(existing, modules)...)
			content = mkinitcpioModulesRe.ReplaceAllString(content,
				fmt.Sprintf("MODULES=(%s)", strings.Join(merged, " ")))
			changed = true
		}
	} else {
		content = fmt.Sprintf("MODULES=(%s)\n", strings.Join(modules, " ")) + content
		changed = true
	}

	if h := mkinitcpioHooksRe.FindStringSubmatch(content); h != nil {
		hooks := strings.Fields(h[1])
		if !containsString(hooks, "modconf") {
			hooks = insertAfter(hooks, "base", "modconf")
			content = mkinitcpioHooksRe.ReplaceAllString(content,
				fmt.Sprintf("HOOKS=(%s)", strings.Join(hooks, " ")))
			changed = true
		}
	}

	return content, changed
}

// updateDracut writes a force_drivers drop-in and regenerates the image.
// Arch-based installs need an explicit versioned output path.
func (m *Manager) updateDracut(ctx context.Context, modules []string) (*Result, error) {
	path := filepath.Join(m.dracutConfDir, "vfio.conf")
	content := fmt.Sprintf("force_drivers+=\" %s \"\n", strings.Join(modules, " "))

	result := &Result{System: Dracut, ConfigPath: path, ConfigCreated: !m.fileExists(path)}

	rec, err := m.writeConfig(path, content)
	if err != nil {
		return nil, err
	}
	result.Backup = rec

	if m.dist != nil && m.dist.IsArch() {
		release, err := m.kernelRelease(ctx)
		if err != nil {
			return nil, err
		}
		image := fmt.Sprintf("/boot/initramfs-%s.img", release)
		result.RebuildCommand = fmt.Sprintf("dracut -f %s %s", image, release)
		if err := m.rebuild(ctx, "dracut", "-f", image, release); err != nil {
			return nil, err
		}
		return result, nil
	}

	result.RebuildCommand = "dracut --force"
	if err := m.rebuild(ctx, "dracut", "--force"); err != nil {
		return nil, err
	}
	return result, nil
}

// updateBooster writes a modules_force_load drop-in and rebuilds.
func (m *Manager) updateBooster(ctx context.Context, modules []string) (*Result, error) {
	path := filepath.Join(m.boosterConfDir, "vfio.yaml")
	content := fmt.Sprintf("modules_force_load: %s\n", strings.Join(modules, ","))

	result := &Result{System: Booster, ConfigPath: path, ConfigCreated: !m.fileExists(path), RebuildCommand: "booster build"}

	rec, err := m.writeConfig(path, content)
	if err != nil {
		return nil, err
	}
	result.Backup = rec

	if err := m.rebuild(ctx, "booster", "build"); err != nil {
		return nil, err
	}
	return result, nil
}

// updateDebian appends missing modules to /etc/initramfs-tools/modules
// and rebuilds every installed kernel's image.
func (m *Manager) updateDebian(ctx context.Context, modules []string) (*Result, error) {
	result := &Result{System: InitramfsTools, RebuildCommand: "update-initramfs -u -k all"}

	if !m.fileExists(m.debianModules) {
		return nil, errors.Newf(errors.Initramfs, "%s not found, is initramfs-tools installed?", m.debianModules).WithOp("initramfs.updateDebian")
	}

	content, err := os.ReadFile(m.debianModules)
	if err != nil {
		return nil, errors.Wrapf(errors.Initramfs, err, "cannot read %s", m.debianModules).WithOp("initramfs.updateDebian")
	}

	missing := missingDebianModules(string(content), modules)
	if len(missing) > 0 {
		if m.dryRun {
			m.logger.Info("dry run: would append modules", "path", m.debianModules, "modules", strings.Join(missing, ", "))
		} else {
			if m.backups != nil {
				rec, err := m.backups.Backup(m.debianModules)
				if err != nil {
					return nil, err
				}
				result.Backup = rec
			}
			appended := string(content)
			if !strings.HasSuffix(appended, "\n") && appended != "" {
				appended += "\n"
			}
			appended += strings.Join(missing, "\n") + "\n"
			if err := os.WriteFile(m.debianModules, []byte(appended), 0o644); err != nil {
				return nil, errors.Wrapf(errors.Initramfs, err, "cannot write %s", m.debianModules).WithOp("initramfs.updateDebian")
			}
		}
		result.ConfigPath = m.debianModules
	}

	if err := m.rebuild(ctx, "update-initramfs", "-u", "-k", "all"); err != nil {
		return nil, err
	}
	return result, nil
}

// missingDebianModules returns the modules not already listed as active
// lines in the initramfs-tools modules file.
func missingDebianModules(content string, modules []string) []string {
	listed := make(map[string]bool)
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		if m := debianModuleLineRe.FindStringSubmatch(trimmed); m != nil {
			listed[m[1]] = true
		}
	}

	var missing []string
	for _, mod := range modules {
		if !listed[mod] {
			missing = append(missing, mod)
		}
	}
	return missing
}

// writeConfig writes a drop-in file, backing up any existing version.
func (m *Manager) writeConfig(path, content string) (rec *backup.Record, err error) {
	if m.dryRun {
		m.logger.Info("dry run: would write initramfs drop-in", "path", path)
		return nil, nil
	}

	if m.fileExists(path) && m.backups != nil {
		r, err := m.backups.Backup(path)
		if err != nil {
			return nil, err
		}
		rec = r
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrapf(errors.Initramfs, err, "cannot create %s", filepath.Dir(path)).WithOp("initramfs.writeConfig")
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return nil, errors.Wrapf(errors.Initramfs, err, "cannot write %s", path).WithOp("initramfs.writeConfig")
	}
	m.logger.Info("wrote initramfs drop-in", "path", path)
	return rec, nil
}

// kernelRelease reads the running kernel release for versioned image paths.
func (m *Manager) kernelRelease(ctx context.Context) (string, error) {
	res := m.executor.Execute(ctx, "uname", "-r")
	if !res.Success() {
		return "", errors.Wrap(errors.Initramfs, "cannot determine kernel release", res.Error).WithOp("initramfs.kernelRelease")
	}
	return strings.TrimSpace(res.StdoutString()), nil
}

func containsString(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}

// insertAfter inserts value after anchor, or at the front when the
// anchor is absent.
func insertAfter(list []string, anchor, value string) []string {
	for i, s := range list {
		if s == anchor {
			out := make([]string, 0, len(list)+1)
			out = append(out, list[:i+1]...)
			out = append(out, value)
			out = append(out, list[i+1:]...)
			return out
		}
	}
	return append([]string{value}, list...)
}

// diffModules returns the members of existing that are not in newMods,
// preserving order.
func diffModules(existing, newMods []string) []string {
	newSet := make(map[string]bool, len(newMods))
	for _, m := range newMods {
		newSet[m] = true
	}
	var out []string
	for _, m := range existing {
		if !newSet[m] {
			out = append(out, m)
		}
	}
	return out
}
