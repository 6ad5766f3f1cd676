package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cfgpush/internal/config"
	"cfgpush/internal/database"
	"cfgpush/internal/deploy"
	"cfgpush/internal/encryption"
	"cfgpush/internal/model"
	"cfgpush/internal/testutil"
)

type testEnv struct {
	dirs    Dirs
	dialer  *testutil.FakeDialer
	history database.Database
	clock   *testutil.StubClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return &testEnv{
		dirs:   NewDirs(filepath.Join(t.TempDir(), "cfgpush")),
		dialer: testutil.NewFakeDialer(),
	}
}

func (e *testEnv) open(t *testing.T) *App {
	t.Helper()
	clock := e.clock
	if clock == nil {
		clock = testutil.FixedClock()
	}
	a, err := New(Options{
		Dirs:    e.dirs,
		Dialer:  e.dialer,
		Clock:   clock,
		IDs:     testutil.NewStubIDGenerator(),
		History: e.history,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func (e *testEnv) writePreset(t *testing.T, preset, rel, content string) {
	t.Helper()
	p := filepath.Join(e.dirs.Presets, preset, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func (e *testEnv) readLog(t *testing.T, a *App) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(e.dirs.Logs, a.Session()+".log"))
	if err != nil {
		t.Fatalf("reading session log: %v", err)
	}
	return string(data)
}

func mainProfile() config.Profile {
	return config.Profile{Name: "main", Host: "127.0.0.1", Port: 21, Username: "admin", Root: "/srv"}
}

func TestNew_CreatesLayout(t *testing.T) {
	env := newTestEnv(t)
	a := env.open(t)

	if a.Session() != "20250301_184500" {
		t.Errorf("Session() = %q", a.Session())
	}
	paths := config.NewPaths(env.dirs.Config)
	for _, p := range []string{paths.Profiles, paths.Mappings, paths.Settings, env.dirs.History} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("%s not created: %v", p, err)
		}
	}
	if a.Settings().Timeout().Seconds() != config.DefaultTimeoutSeconds {
		t.Errorf("Timeout() = %v", a.Settings().Timeout())
	}
}

func TestNew_SessionMatchesBackupStamp(t *testing.T) {
	env := newTestEnv(t)
	east := time.FixedZone("UTC+2", 2*60*60)
	env.clock = testutil.NewStubClock(time.Date(2025, 3, 1, 18, 45, 0, 0, east))
	a := env.open(t)

	want := env.clock.Now().Format(deploy.StampLayout)
	if a.Session() != want || want != "20250301_184500" {
		t.Errorf("Session() = %q, want %q", a.Session(), want)
	}
	if _, err := os.Stat(filepath.Join(env.dirs.Logs, "20250301_184500.log")); err != nil {
		t.Errorf("session log not named after the local stamp: %v", err)
	}
}

func TestNew_MalformedDocumentIsWarning(t *testing.T) {
	env := newTestEnv(t)
	if err := env.dirs.Create(); err != nil {
		t.Fatal(err)
	}
	bad := config.NewPaths(env.dirs.Config).Profiles
	if err := os.WriteFile(bad, []byte("profiles = [[["), 0600); err != nil {
		t.Fatal(err)
	}

	a := env.open(t)
	if len(a.Profiles().Profiles) != 0 {
		t.Errorf("Profiles() = %+v, want defaults", a.Profiles())
	}
	if log := env.readLog(t, a); !strings.Contains(log, "WARN") || !strings.Contains(log, "config problem") {
		t.Errorf("log = %q, want config warning", log)
	}
	data, _ := os.ReadFile(bad)
	if string(data) != "profiles = [[[" {
		t.Errorf("broken file was rewritten: %q", data)
	}
}

func TestApp_ProfilesPersist(t *testing.T) {
	env := newTestEnv(t)
	a := env.open(t)

	if err := a.AddProfile(mainProfile()); err != nil {
		t.Fatalf("AddProfile() error = %v", err)
	}
	test := mainProfile()
	test.Name = "test"
	if err := a.AddProfile(test); err != nil {
		t.Fatalf("AddProfile() error = %v", err)
	}
	if err := a.UseProfile("test"); err != nil {
		t.Fatalf("UseProfile() error = %v", err)
	}
	renamed := test
	renamed.Name = "staging"
	if err := a.UpdateProfile("test", renamed); err != nil {
		t.Fatalf("UpdateProfile() error = %v", err)
	}
	if err := a.AddProfile(mainProfile()); err == nil {
		t.Error("AddProfile() with duplicate name succeeded")
	}
	a.Close()

	b := env.open(t)
	p := b.Profiles()
	if len(p.Profiles) != 2 || p.Active != "staging" {
		t.Fatalf("reloaded profiles = %+v", p)
	}
	if err := b.RemoveProfile("staging"); err != nil {
		t.Fatalf("RemoveProfile() error = %v", err)
	}
	if b.Profiles().Active != "main" {
		t.Errorf("Active = %q after removing active profile, want main", b.Profiles().Active)
	}
}

func TestApp_MappingsAndPreview(t *testing.T) {
	env := newTestEnv(t)
	env.writePreset(t, "raid_on", "BBP_Raid_on.json", "{}")
	a := env.open(t)

	if err := a.AddMapping(config.Mapping{Name: "raid", Enabled: true, LocalPath: "BBP_Raid_on.json", RemotePath: "config/BBP_Raid.json", Backup: true}); err != nil {
		t.Fatalf("AddMapping() error = %v", err)
	}
	if err := a.AddMapping(config.Mapping{Name: "extra", Enabled: true, LocalPath: "extra.json", RemotePath: "extra.json"}); err != nil {
		t.Fatalf("AddMapping() error = %v", err)
	}

	lines := a.Preview("raid_on")
	if len(lines) != 2 {
		t.Fatalf("Preview() = %q, want 2 lines", lines)
	}
	if !strings.Contains(lines[0], "(OK)") || !strings.Contains(lines[1], "(MISSING)") {
		t.Errorf("Preview() = %q", lines)
	}

	if err := a.SetMappingEnabled("extra", false); err != nil {
		t.Fatalf("SetMappingEnabled() error = %v", err)
	}
	if lines := a.Preview("raid_on"); len(lines) != 1 {
		t.Errorf("Preview() after disable = %q", lines)
	}

	presets, err := a.Presets()
	if err != nil || len(presets) != 1 || presets[0] != "raid_on" {
		t.Errorf("Presets() = %v, %v", presets, err)
	}
	files, err := a.PresetFiles("raid_on")
	if err != nil || len(files) != 1 || files[0] != "BBP_Raid_on.json" {
		t.Errorf("PresetFiles() = %v, %v", files, err)
	}
	if _, err := a.PresetFiles("../x"); err == nil {
		t.Error("PresetFiles() accepted an invalid preset name")
	}
}

func TestApp_TestConnection(t *testing.T) {
	t.Run("reports working directory", func(t *testing.T) {
		env := newTestEnv(t)
		env.dialer.Server.Dir = "/home/admin"
		a := env.open(t)
		if err := a.AddProfile(mainProfile()); err != nil {
			t.Fatal(err)
		}

		dir, err := a.TestConnection(context.Background(), "")
		if err != nil {
			t.Fatalf("TestConnection() error = %v", err)
		}
		if dir != "/home/admin" {
			t.Errorf("TestConnection() = %q", dir)
		}
		if closes := env.dialer.Conns()[0].Closes(); closes != 1 {
			t.Errorf("Close called %d times, want 1", closes)
		}
		log := env.readLog(t, a)
		if !strings.Contains(log, "testing connection") || !strings.Contains(log, "connection test ok") {
			t.Errorf("log = %q", log)
		}
	})

	t.Run("failure is logged", func(t *testing.T) {
		env := newTestEnv(t)
		env.dialer.Err = errors.New("530 login incorrect")
		a := env.open(t)
		if err := a.AddProfile(mainProfile()); err != nil {
			t.Fatal(err)
		}

		if _, err := a.TestConnection(context.Background(), "main"); err == nil {
			t.Fatal("TestConnection() succeeded")
		}
		if log := env.readLog(t, a); !strings.Contains(log, "ERROR") || !strings.Contains(log, "530 login incorrect") {
			t.Errorf("log = %q", log)
		}
	})

	t.Run("no profile", func(t *testing.T) {
		env := newTestEnv(t)
		a := env.open(t)

		if _, err := a.TestConnection(context.Background(), ""); err == nil {
			t.Error("TestConnection() without profile succeeded")
		}
		if _, err := a.TestConnection(context.Background(), "nope"); err == nil {
			t.Error("TestConnection() with unknown profile succeeded")
		}
		if env.dialer.Dials() != 0 {
			t.Errorf("Dials() = %d, want 0", env.dialer.Dials())
		}
	})
}

func TestApp_Deploy(t *testing.T) {
	env := newTestEnv(t)
	env.writePreset(t, "raid_on", "a.json", "new-a")
	env.writePreset(t, "raid_on", "cfg/b.json", "new-b")
	env.dialer.Server.AddFile("/srv/a.json", []byte("old-a"))

	vaultRoot := filepath.Join(t.TempDir(), "vault")
	if err := env.dirs.Create(); err != nil {
		t.Fatal(err)
	}
	settings := config.DefaultSettings()
	settings.Backup.Vaults = []config.VaultConfig{
		{Type: "filesystem", Name: "mirror", FSVaultRoot: vaultRoot},
		{Type: "carrier-pigeon", Name: "bogus"},
	}
	if err := config.SaveSettings(config.NewPaths(env.dirs.Config).Settings, settings); err != nil {
		t.Fatal(err)
	}

	a := env.open(t)
	if err := a.AddProfile(mainProfile()); err != nil {
		t.Fatal(err)
	}
	for _, m := range []config.Mapping{
		{Name: "a", Enabled: true, LocalPath: "a.json", RemotePath: "a.json", Backup: true},
		{Name: "b", Enabled: true, LocalPath: "cfg/b.json", RemotePath: `cfg\b.json`, Backup: false},
	} {
		if err := a.AddMapping(m); err != nil {
			t.Fatal(err)
		}
	}

	var events []deploy.Event
	d, err := a.Deploy(context.Background(), DeployOptions{
		Preset:  "raid_on",
		Confirm: deploy.AutoConfirm{},
		Observe: func(ev deploy.Event) { events = append(events, ev) },
	})
	if err != nil {
		t.Fatalf("Deploy() error = %v", err)
	}
	if d.Outcome != deploy.OutcomeDone || d.Uploaded() != 2 {
		t.Errorf("Deploy() = %+v", d)
	}
	if len(events) == 0 || events[len(events)-1].State != deploy.StateDone {
		t.Errorf("last event = %+v, want done", events)
	}

	if got, _ := env.dialer.Server.File("/srv/cfg/b.json"); string(got) != "new-b" {
		t.Errorf("remote b = %q", got)
	}

	snapshot := filepath.Join(env.dirs.Backups, "main", "raid_on", "20250301_184500", "a.json")
	if data, err := os.ReadFile(snapshot); err != nil || string(data) != "old-a" {
		t.Errorf("snapshot = %q, %v", data, err)
	}
	mirrored := filepath.Join(vaultRoot, "snapshots", "main", "raid_on", "20250301_184500", "a.json")
	if data, err := os.ReadFile(mirrored); err != nil || string(data) != "old-a" {
		t.Errorf("vault copy = %q, %v", data, err)
	}
	if log := env.readLog(t, a); !strings.Contains(log, "vault disabled") {
		t.Errorf("log missing vault warning: %q", log)
	}

	history, err := a.History(context.Background(), "", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("History() = %d rows, want 1", len(history))
	}
	h := history[0]
	if h.ID != d.ID || h.Outcome != "done" || h.Host != "127.0.0.1:21" || h.Uploaded != 2 || h.Items != 2 {
		t.Errorf("History()[0] = %+v", h)
	}
	items, err := a.HistoryItems(context.Background(), d.ID)
	if err != nil {
		t.Fatalf("HistoryItems() error = %v", err)
	}
	if len(items) != 2 || items[0].BackupPath != snapshot || items[1].RemotePath != "/srv/cfg/b.json" {
		t.Errorf("HistoryItems() = %+v", items)
	}
}

func TestApp_Deploy_Failures(t *testing.T) {
	t.Run("unknown profile", func(t *testing.T) {
		env := newTestEnv(t)
		a := env.open(t)

		d, err := a.Deploy(context.Background(), DeployOptions{Profile: "nope", Preset: "raid_on", Confirm: deploy.AutoConfirm{}})
		if err == nil || d != nil {
			t.Errorf("Deploy() = %v, %v", d, err)
		}
	})

	t.Run("missing file is recorded as aborted", func(t *testing.T) {
		env := newTestEnv(t)
		env.history = testutil.NewTestDatabase(t)
		env.writePreset(t, "raid_on", "other.json", "{}")
		a := env.open(t)
		if err := a.AddProfile(mainProfile()); err != nil {
			t.Fatal(err)
		}
		if err := a.AddMapping(config.Mapping{Name: "raid", Enabled: true, LocalPath: "BBP_Raid_on.json", RemotePath: "x.json"}); err != nil {
			t.Fatal(err)
		}

		_, err := a.Deploy(context.Background(), DeployOptions{Preset: "raid_on", Confirm: deploy.AutoConfirm{}})
		var perr *deploy.PreflightError
		if !errors.As(err, &perr) {
			t.Fatalf("Deploy() error = %v, want PreflightError", err)
		}
		if env.dialer.Dials() != 0 {
			t.Errorf("Dials() = %d, want 0", env.dialer.Dials())
		}

		history, err := a.History(context.Background(), "main", 0)
		if err != nil || len(history) != 1 {
			t.Fatalf("History() = %v, %v", history, err)
		}
		if history[0].Outcome != "aborted" || history[0].Error == "" {
			t.Errorf("History()[0] = %+v", history[0])
		}
	})
}

func TestApp_FindDeployment(t *testing.T) {
	env := newTestEnv(t)
	env.history = testutil.NewTestDatabase(t)
	started := testutil.FixedClock().Now()
	for i, id := range []string{"abc", "abc-1", "abd-1"} {
		at := started.Add(time.Duration(i) * time.Minute)
		d := model.Deployment{
			ID: id, Profile: "main", Host: "127.0.0.1:21", Preset: "raid_on",
			Stamp: at.Format(deploy.StampLayout), Outcome: "done",
			StartedAt: at, FinishedAt: at.Add(time.Second),
		}
		if err := env.history.RecordDeployment(context.Background(), d, nil); err != nil {
			t.Fatal(err)
		}
	}
	a := env.open(t)

	tests := []struct {
		query   string
		want    string
		wantErr string
	}{
		{query: "abc", want: "abc"},
		{query: "abc-1", want: "abc-1"},
		{query: "abd", want: "abd-1"},
		{query: "ab", wantErr: "ambiguous"},
		{query: "zz", wantErr: "not found"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			d, err := a.FindDeployment(context.Background(), tt.query)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("FindDeployment(%q) error = %v, want %q", tt.query, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("FindDeployment(%q) error = %v", tt.query, err)
			}
			if d.ID != tt.want {
				t.Errorf("FindDeployment(%q) = %s, want %s", tt.query, d.ID, tt.want)
			}
		})
	}
}

func TestApp_SetBackupRecipient(t *testing.T) {
	env := newTestEnv(t)
	a := env.open(t)

	if err := a.SetBackupRecipient("not-a-recipient"); err == nil {
		t.Error("SetBackupRecipient() accepted an invalid recipient")
	}

	_, recipient, err := encryption.GenerateIdentity()
	if err != nil {
		t.Fatal(err)
	}
	if err := a.SetBackupRecipient(recipient); err != nil {
		t.Fatalf("SetBackupRecipient() error = %v", err)
	}
	a.Close()

	b := env.open(t)
	if b.Settings().Backup.AgeRecipient != recipient {
		t.Errorf("AgeRecipient = %q, want %q", b.Settings().Backup.AgeRecipient, recipient)
	}
}

func TestApp_Deploy_EncryptedBackup(t *testing.T) {
	env := newTestEnv(t)
	env.writePreset(t, "raid_on", "a.json", "new-a")
	env.dialer.Server.AddFile("/srv/a.json", []byte("old-a"))

	identity, recipient, err := encryption.GenerateIdentity()
	if err != nil {
		t.Fatal(err)
	}
	a := env.open(t)
	if err := a.SetBackupRecipient(recipient); err != nil {
		t.Fatal(err)
	}
	if err := a.AddProfile(mainProfile()); err != nil {
		t.Fatal(err)
	}
	if err := a.AddMapping(config.Mapping{Name: "a", Enabled: true, LocalPath: "a.json", RemotePath: "a.json", Backup: true}); err != nil {
		t.Fatal(err)
	}

	d, err := a.Deploy(context.Background(), DeployOptions{Preset: "raid_on", Confirm: deploy.AutoConfirm{}})
	if err != nil {
		t.Fatalf("Deploy() error = %v", err)
	}
	path := d.Items[0].BackupPath
	if !strings.HasSuffix(path, ".age") {
		t.Fatalf("BackupPath = %q, want .age suffix", path)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	var out strings.Builder
	if err := encryption.Decrypt(f, &out, []byte(identity)); err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if out.String() != "old-a" {
		t.Errorf("decrypted snapshot = %q", out.String())
	}
}
