package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

func TestNewPaths(t *testing.T) {
	p := NewPaths("/data/cfgpush/config")

	if p.Profiles != "/data/cfgpush/config/profiles.toml" {
		t.Errorf("Profiles = %q", p.Profiles)
	}
	if p.Mappings != "/data/cfgpush/config/mappings.toml" {
		t.Errorf("Mappings = %q", p.Mappings)
	}
	if p.Settings != "/data/cfgpush/config/settings.toml" {
		t.Errorf("Settings = %q", p.Settings)
	}
}

func TestLoadProfiles(t *testing.T) {
	t.Run("creates default document when missing", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config", ProfilesFile)

		p, err := LoadProfiles(path)
		if err != nil {
			t.Fatalf("LoadProfiles() error = %v", err)
		}
		if len(p.Profiles) != 0 || p.Active != "" {
			t.Errorf("LoadProfiles() = %+v, want empty document", p)
		}
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("default document not written: %v", err)
		}
	})

	t.Run("applies defaults to missing fields", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ProfilesFile)
		writeFile(t, path, `
active_profile = "nitrado"

[[profiles]]
name = "nitrado"
host = "ftp.example.com"
username = "user"
password = "secret"

[[profiles]]
host = "other.example.com"
port = 2121
tls = true
root = "/dayzstandalone"
`)

		p, err := LoadProfiles(path)
		if err != nil {
			t.Fatalf("LoadProfiles() error = %v", err)
		}
		if len(p.Profiles) != 2 {
			t.Fatalf("len(Profiles) = %d, want 2", len(p.Profiles))
		}

		first := p.Profiles[0]
		if first.Port != DefaultPort {
			t.Errorf("Port = %d, want %d", first.Port, DefaultPort)
		}
		if first.Root != "/" {
			t.Errorf("Root = %q, want %q", first.Root, "/")
		}
		if first.TLS {
			t.Error("TLS = true, want false")
		}

		second := p.Profiles[1]
		if second.Name != "Unnamed" {
			t.Errorf("Name = %q, want %q", second.Name, "Unnamed")
		}
		if second.Port != 2121 || !second.TLS || second.Root != "/dayzstandalone" {
			t.Errorf("second profile = %+v", second)
		}

		active, ok := p.ActiveProfile()
		if !ok || active.Name != "nitrado" {
			t.Errorf("ActiveProfile() = %+v, %v", active, ok)
		}
	})

	t.Run("repairs duplicates and dangling active reference", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ProfilesFile)
		writeFile(t, path, `
active_profile = "gone"

[[profiles]]
name = "a"
host = "first"

[[profiles]]
name = "a"
host = "second"
`)

		p, err := LoadProfiles(path)
		var cerr *ConfigError
		if !errors.As(err, &cerr) {
			t.Fatalf("LoadProfiles() error = %v, want *ConfigError", err)
		}
		if len(p.Profiles) != 1 || p.Profiles[0].Host != "first" {
			t.Errorf("Profiles = %+v, want only the first %q", p.Profiles, "a")
		}
		if p.Active != "" {
			t.Errorf("Active = %q, want empty", p.Active)
		}
	})

	t.Run("substitutes defaults for malformed document", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ProfilesFile)
		writeFile(t, path, "this is [not toml")

		p, err := LoadProfiles(path)
		var cerr *ConfigError
		if !errors.As(err, &cerr) {
			t.Fatalf("LoadProfiles() error = %v, want *ConfigError", err)
		}
		if cerr.Path != path {
			t.Errorf("ConfigError.Path = %q, want %q", cerr.Path, path)
		}
		if p == nil || len(p.Profiles) != 0 {
			t.Errorf("LoadProfiles() = %+v, want default document", p)
		}

		// The broken file is left for the user to inspect.
		data, _ := os.ReadFile(path)
		if string(data) != "this is [not toml" {
			t.Errorf("malformed document was overwritten: %q", data)
		}
	})
}

func TestSaveProfiles_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), ProfilesFile)
	original := &Profiles{
		Active: "main",
		Profiles: []Profile{
			{Name: "main", Host: "ftp.example.com", Port: 21, Username: "u", Password: " p w ", TLS: true, Root: "/dayzstandalone"},
		},
	}

	if err := SaveProfiles(path, original); err != nil {
		t.Fatalf("SaveProfiles() error = %v", err)
	}

	got, err := LoadProfiles(path)
	if err != nil {
		t.Fatalf("LoadProfiles() error = %v", err)
	}
	if got.Active != "main" {
		t.Errorf("Active = %q, want %q", got.Active, "main")
	}
	if len(got.Profiles) != 1 || got.Profiles[0] != original.Profiles[0] {
		t.Errorf("Profiles = %+v, want %+v", got.Profiles, original.Profiles)
	}
}

func TestProfiles_ActiveInvariant(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(p *Profiles) error
		wantActive string
	}{
		{
			name: "first added profile becomes active",
			setup: func(p *Profiles) error {
				return p.Add(Profile{Name: "a", Port: 21})
			},
			wantActive: "a",
		},
		{
			name: "later profiles do not steal active",
			setup: func(p *Profiles) error {
				if err := p.Add(Profile{Name: "a", Port: 21}); err != nil {
					return err
				}
				return p.Add(Profile{Name: "b", Port: 21})
			},
			wantActive: "a",
		},
		{
			name: "removing active reassigns to first remaining",
			setup: func(p *Profiles) error {
				p.Add(Profile{Name: "a", Port: 21})
				p.Add(Profile{Name: "b", Port: 21})
				return p.Remove("a")
			},
			wantActive: "b",
		},
		{
			name: "removing last profile clears active",
			setup: func(p *Profiles) error {
				p.Add(Profile{Name: "a", Port: 21})
				return p.Remove("a")
			},
			wantActive: "",
		},
		{
			name: "renaming active follows the rename",
			setup: func(p *Profiles) error {
				p.Add(Profile{Name: "a", Port: 21})
				return p.Update("a", Profile{Name: "renamed", Port: 21})
			},
			wantActive: "renamed",
		},
		{
			name: "set active",
			setup: func(p *Profiles) error {
				p.Add(Profile{Name: "a", Port: 21})
				p.Add(Profile{Name: "b", Port: 21})
				return p.SetActive("b")
			},
			wantActive: "b",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultProfiles()
			if err := tt.setup(p); err != nil {
				t.Fatalf("setup error = %v", err)
			}
			if p.Active != tt.wantActive {
				t.Errorf("Active = %q, want %q", p.Active, tt.wantActive)
			}
		})
	}
}

func TestProfiles_Errors(t *testing.T) {
	p := DefaultProfiles()
	if err := p.Add(Profile{Name: "a", Port: 21}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	p.Add(Profile{Name: "b", Port: 21})

	if err := p.Add(Profile{Name: "a", Port: 21}); err == nil {
		t.Error("Add() duplicate name expected error")
	}
	if err := p.Add(Profile{Name: " ", Port: 21}); err == nil {
		t.Error("Add() blank name expected error")
	}
	if err := p.Add(Profile{Name: "c", Port: 70000}); err == nil {
		t.Error("Add() invalid port expected error")
	}
	if err := p.Update("a", Profile{Name: "b", Port: 21}); err == nil {
		t.Error("Update() rename onto existing name expected error")
	}
	if err := p.Remove("missing"); err == nil {
		t.Error("Remove() missing profile expected error")
	}
	if err := p.SetActive("missing"); err == nil {
		t.Error("SetActive() missing profile expected error")
	}
}

func TestLoadMappings(t *testing.T) {
	t.Run("applies defaults and keeps order", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), MappingsFile)
		writeFile(t, path, `
[[mappings]]
name = "raid"
local_relpath = "BBP_Raid_on.json"
remote_path = "config/BaseBuildingPlus/BBP_Settings.json"

[[mappings]]
enabled = false
local_relpath = " db/messages.xml "
remote_path = "mpmissions/dayzOffline.chernarusplus/db/messages.xml"
backup_before_overwrite = false
`)

		m, err := LoadMappings(path)
		if err != nil {
			t.Fatalf("LoadMappings() error = %v", err)
		}
		if len(m.Mappings) != 2 {
			t.Fatalf("len(Mappings) = %d, want 2", len(m.Mappings))
		}
		if !m.Mappings[0].Enabled || !m.Mappings[0].Backup {
			t.Errorf("first mapping defaults not applied: %+v", m.Mappings[0])
		}
		if m.Mappings[1].Name != "Unnamed Mapping" {
			t.Errorf("Name = %q, want %q", m.Mappings[1].Name, "Unnamed Mapping")
		}
		if m.Mappings[1].LocalPath != "db/messages.xml" {
			t.Errorf("LocalPath = %q, want trimmed", m.Mappings[1].LocalPath)
		}

		enabled := m.Enabled()
		if len(enabled) != 1 || enabled[0].Name != "raid" {
			t.Errorf("Enabled() = %+v", enabled)
		}
	})

	t.Run("creates default document when missing", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), MappingsFile)
		m, err := LoadMappings(path)
		if err != nil {
			t.Fatalf("LoadMappings() error = %v", err)
		}
		if len(m.Mappings) != 0 {
			t.Errorf("Mappings = %+v, want none", m.Mappings)
		}
		if _, err := os.Stat(path); err != nil {
			t.Errorf("default document not written: %v", err)
		}
	})
}

func TestMappings_Edit(t *testing.T) {
	m := DefaultMappings()
	for _, name := range []string{"one", "two", "three"} {
		if err := m.Add(Mapping{Name: name, Enabled: true, LocalPath: name + ".json", RemotePath: name}); err != nil {
			t.Fatalf("Add(%s) error = %v", name, err)
		}
	}

	if err := m.Add(Mapping{Name: "two"}); err == nil {
		t.Error("Add() duplicate expected error")
	}
	if err := m.SetEnabled("two", false); err != nil {
		t.Fatalf("SetEnabled() error = %v", err)
	}
	if err := m.Update("three", Mapping{Name: "third", Enabled: true}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if err := m.Remove("one"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	var names []string
	for _, mp := range m.Mappings {
		names = append(names, mp.Name)
	}
	if got := strings.Join(names, ","); got != "two,third" {
		t.Errorf("order = %q, want %q", got, "two,third")
	}
	if enabled := m.Enabled(); len(enabled) != 1 || enabled[0].Name != "third" {
		t.Errorf("Enabled() = %+v", enabled)
	}
}

func TestLoadSettings(t *testing.T) {
	t.Run("defaults when missing", func(t *testing.T) {
		s, err := LoadSettings(filepath.Join(t.TempDir(), SettingsFile))
		if err != nil {
			t.Fatalf("LoadSettings() error = %v", err)
		}
		if s.App.TimeoutSeconds != DefaultTimeoutSeconds {
			t.Errorf("TimeoutSeconds = %d, want %d", s.App.TimeoutSeconds, DefaultTimeoutSeconds)
		}
	})

	t.Run("reads backup vaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), SettingsFile)
		writeFile(t, path, `
[app]
timeout_seconds = 5

[backup]
age_recipient = "age1example"

[[backup.vaults]]
type = "s3"
name = "offsite"
s3_bucket = "backups"
s3_region = "eu-west-1"
`)

		s, err := LoadSettings(path)
		if err != nil {
			t.Fatalf("LoadSettings() error = %v", err)
		}
		if s.Timeout().Seconds() != 5 {
			t.Errorf("Timeout() = %v, want 5s", s.Timeout())
		}
		if s.Backup.AgeRecipient != "age1example" {
			t.Errorf("AgeRecipient = %q", s.Backup.AgeRecipient)
		}
		if len(s.Backup.Vaults) != 1 || s.Backup.Vaults[0].S3Bucket != "backups" {
			t.Errorf("Vaults = %+v", s.Backup.Vaults)
		}
	})

	t.Run("repairs non-positive timeout", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), SettingsFile)
		writeFile(t, path, "[app]\ntimeout_seconds = 0\n")

		s, err := LoadSettings(path)
		var cerr *ConfigError
		if !errors.As(err, &cerr) {
			t.Fatalf("LoadSettings() error = %v, want *ConfigError", err)
		}
		if s.App.TimeoutSeconds != DefaultTimeoutSeconds {
			t.Errorf("TimeoutSeconds = %d, want %d", s.App.TimeoutSeconds, DefaultTimeoutSeconds)
		}
	})
}
