package deploy

import (
	"fmt"

	"cfgpush/internal/config"
)

// Informational preview lines.
const (
	PreviewPickPreset = "Pick a preset."
	PreviewNoMappings = "No enabled mappings."
)

// BuildPreview renders one line per enabled mapping for preset. It is a pure
// function of its inputs apart from the local existence checks, so callers
// rebuild it whenever mappings or the preset selection change.
func BuildPreview(mappings []config.Mapping, preset string, presets PresetSource) []string {
	if preset == "" {
		return []string{PreviewPickPreset}
	}
	// The remote column shows the mapping's path as configured, not joined
	// under a profile root; the preview is profile-independent.
	items := Resolve(mappings, preset, "", presets)
	if len(items) == 0 {
		return []string{PreviewNoMappings}
	}

	var enabled []config.Mapping
	for _, m := range mappings {
		if m.Enabled {
			enabled = append(enabled, m)
		}
	}

	lines := make([]string, 0, len(items))
	for i, item := range items {
		status := "OK"
		if !item.LocalExists {
			status = "MISSING"
		}
		lines = append(lines, fmt.Sprintf("%s | local: %s (%s) -> remote: %s",
			item.Name, enabled[i].LocalPath, status, enabled[i].RemotePath))
	}
	return lines
}
