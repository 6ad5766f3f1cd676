package deploy_test

import (
	"reflect"
	"testing"

	"cfgpush/internal/config"
	"cfgpush/internal/deploy"
	"cfgpush/internal/testutil"
)

func raidMapping() config.Mapping {
	return config.Mapping{
		Name:       "Raid toggle",
		Enabled:    true,
		LocalPath:  "BBP_Raid_on.json",
		RemotePath: "config/BBP_Raid_on.json",
		Backup:     true,
	}
}

func TestBuildPreview(t *testing.T) {
	withFile := testutil.NewTestPresetStore(t, map[string]string{
		"raid_on/BBP_Raid_on.json": "{}",
	})
	withoutFile := testutil.NewTestPresetStore(t, map[string]string{
		"raid_on/other.json": "{}",
	})

	tests := []struct {
		name     string
		mappings []config.Mapping
		preset   string
		presets  deploy.PresetSource
		want     []string
	}{
		{
			name:     "file present",
			mappings: []config.Mapping{raidMapping()},
			preset:   "raid_on",
			presets:  withFile,
			want:     []string{"Raid toggle | local: BBP_Raid_on.json (OK) -> remote: config/BBP_Raid_on.json"},
		},
		{
			name:     "file missing",
			mappings: []config.Mapping{raidMapping()},
			preset:   "raid_on",
			presets:  withoutFile,
			want:     []string{"Raid toggle | local: BBP_Raid_on.json (MISSING) -> remote: config/BBP_Raid_on.json"},
		},
		{
			name:     "no preset selected",
			mappings: []config.Mapping{raidMapping()},
			preset:   "",
			presets:  withFile,
			want:     []string{deploy.PreviewPickPreset},
		},
		{
			name:     "no enabled mappings",
			mappings: []config.Mapping{{Name: "off", LocalPath: "a", RemotePath: "b"}},
			preset:   "raid_on",
			presets:  withFile,
			want:     []string{deploy.PreviewNoMappings},
		},
		{
			name:     "no mappings at all",
			mappings: nil,
			preset:   "raid_on",
			presets:  withFile,
			want:     []string{deploy.PreviewNoMappings},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := deploy.BuildPreview(tt.mappings, tt.preset, tt.presets)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("BuildPreview() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuildPreview_OneLinePerEnabledMapping(t *testing.T) {
	presets := testutil.NewTestPresetStore(t, map[string]string{
		"raid_on/a.json": "{}",
	})
	mappings := []config.Mapping{
		{Name: "a", Enabled: true, LocalPath: "a.json", RemotePath: "a.json"},
		{Name: "b", Enabled: false, LocalPath: "b.json", RemotePath: "b.json"},
		{Name: "c", Enabled: true, LocalPath: "c.json", RemotePath: "c.json"},
	}
	want := []string{
		"a | local: a.json (OK) -> remote: a.json",
		"c | local: c.json (MISSING) -> remote: c.json",
	}
	if got := deploy.BuildPreview(mappings, "raid_on", presets); !reflect.DeepEqual(got, want) {
		t.Errorf("BuildPreview() = %q, want %q", got, want)
	}
}
