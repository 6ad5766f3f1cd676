package deploy

import (
	"fmt"
	"path"
	"strings"

	"cfgpush/internal/config"
)

// normalize converts backslashes to forward slashes.
func normalize(p string) string {
	return strings.ReplaceAll(p, `\`, "/")
}

// NormalizeRoot returns the profile root with exactly one leading slash and
// no trailing slash ("/" for an empty root).
func NormalizeRoot(root string) string {
	return "/" + strings.Trim(normalize(root), "/")
}

// RemotePath joins a mapping's remote path under the profile root. Pure
// string normalization, no I/O.
func RemotePath(root, rel string) string {
	joined := strings.Trim(normalize(root), "/") + "/" + strings.TrimLeft(normalize(rel), "/")
	return "/" + strings.Trim(joined, "/")
}

// ValidatePresetName rejects names that are not a single directory entry.
func ValidatePresetName(preset string) error {
	if preset == "" || preset == "." || preset == ".." || strings.ContainsAny(preset, `/\`) {
		return fmt.Errorf("invalid preset name %q", preset)
	}
	return nil
}

// cleanLocal validates a mapping's local path and returns it slash-separated
// and cleaned. It must stay inside the preset directory.
func cleanLocal(rel string) (string, error) {
	n := normalize(strings.TrimSpace(rel))
	if n == "" {
		return "", fmt.Errorf("local path is empty")
	}
	if strings.HasPrefix(n, "/") || (len(n) >= 2 && n[1] == ':') {
		return "", fmt.Errorf("local path %q must be relative to the preset", rel)
	}
	cleaned := path.Clean(n)
	if cleaned == "." || escapes(cleaned) {
		return "", fmt.Errorf("local path %q escapes the preset directory", rel)
	}
	return cleaned, nil
}

// checkRemote validates a mapping's remote path. A leading slash is allowed
// (it is stripped during joining) but the path may not climb above the root.
func checkRemote(rel string) error {
	n := strings.Trim(normalize(strings.TrimSpace(rel)), "/")
	if n == "" {
		return fmt.Errorf("remote path is empty")
	}
	cleaned := path.Clean(n)
	if cleaned == "." || escapes(cleaned) {
		return fmt.Errorf("remote path %q escapes the profile root", rel)
	}
	return nil
}

func escapes(cleaned string) bool {
	return cleaned == ".." || strings.HasPrefix(cleaned, "../")
}

// Resolve turns the enabled mappings into ResolvedItems for preset under
// root, preserving mapping order. Only local existence is checked; the
// remote side is never touched. Items with an invalid local or remote path
// are returned with Invalid set and are not looked up on disk.
func Resolve(mappings []config.Mapping, preset, root string, presets PresetSource) []ResolvedItem {
	var items []ResolvedItem
	for _, m := range mappings {
		if !m.Enabled {
			continue
		}
		item := ResolvedItem{
			Name:               m.Name,
			LocalRelativePath:  normalize(m.LocalPath),
			RemoteAbsolutePath: RemotePath(root, m.RemotePath),
			Backup:             m.Backup,
		}

		local, err := cleanLocal(m.LocalPath)
		if err == nil {
			err = checkRemote(m.RemotePath)
		}
		if err != nil {
			item.Invalid = err
			items = append(items, item)
			continue
		}

		item.LocalRelativePath = local
		item.LocalAbsolutePath = presets.Path(preset, local)
		exists, err := presets.Exists(preset, local)
		if err != nil {
			item.Invalid = fmt.Errorf("checking %s: %w", local, err)
		}
		item.LocalExists = exists

		items = append(items, item)
	}
	return items
}
