// Package app is the session layer between the CLI and the deployment
// engine. It loads the configuration documents, opens the audit log and the
// history database, and wires every component from settings.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/go-git/go-billy/v5/osfs"

	"cfgpush/internal/config"
	"cfgpush/internal/database"
	"cfgpush/internal/deploy"
	"cfgpush/internal/encryption"
	"cfgpush/internal/fs"
	"cfgpush/internal/ftp"
	"cfgpush/internal/model"
	"cfgpush/internal/vault"
)

// Options configures a session. Zero values select the production
// implementations.
type Options struct {
	Dirs   Dirs
	Stderr io.Writer // echo audit lines here; nil for file only
	Level  slog.Level

	Dialer  deploy.Dialer
	Clock   deploy.Clock
	IDs     deploy.IDGenerator
	History database.Database // nil opens Dirs.History
}

// App is the per-process session. The caller must call Close when done.
type App struct {
	dirs    Dirs
	paths   config.Paths
	session string

	profiles *config.Profiles
	mappings *config.Mappings
	settings *config.Settings

	presets *fs.PresetStore
	db      database.Database
	dialer  deploy.Dialer
	clock   deploy.Clock
	ids     deploy.IDGenerator

	engine  *deploy.Engine // built on first deployment
	log     *slog.Logger
	logger  deploy.Logger
	logFile *os.File
}

// New creates the directory layout if needed, opens the session log and
// loads the configuration documents. Malformed documents are logged as
// warnings and replaced by defaults in memory.
func New(opts Options) (*App, error) {
	if err := opts.Dirs.Create(); err != nil {
		return nil, err
	}
	if opts.Clock == nil {
		opts.Clock = deploy.RealClock{}
	}
	if opts.IDs == nil {
		opts.IDs = deploy.UUIDGenerator{}
	}

	session := opts.Clock.Now().Format(deploy.StampLayout)
	log, logFile, err := newLogger(opts.Dirs.Logs, session, opts.Level, opts.Stderr)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	a := &App{
		dirs:    opts.Dirs,
		paths:   config.NewPaths(opts.Dirs.Config),
		session: session,
		clock:   opts.Clock,
		ids:     opts.IDs,
		log:     log,
		logger:  &slogAdapter{l: log},
		logFile: logFile,
	}

	if err := a.load(); err != nil {
		logFile.Close()
		return nil, err
	}

	a.dialer = opts.Dialer
	if a.dialer == nil {
		a.dialer = ftp.Dialer{Timeout: a.settings.Timeout()}
	}

	a.presets, err = fs.NewPresetStore(opts.Dirs.Presets)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("opening presets: %w", err)
	}

	a.db = opts.History
	if a.db == nil {
		db, err := database.NewSQLiteDatabase(opts.Dirs.History)
		if err != nil {
			logFile.Close()
			return nil, fmt.Errorf("opening history: %w", err)
		}
		a.db = db
	}

	return a, nil
}

func (a *App) load() error {
	var err error
	if a.profiles, err = config.LoadProfiles(a.paths.Profiles); a.configProblem(err) {
		return fmt.Errorf("loading profiles: %w", err)
	}
	if a.mappings, err = config.LoadMappings(a.paths.Mappings); a.configProblem(err) {
		return fmt.Errorf("loading mappings: %w", err)
	}
	if a.settings, err = config.LoadSettings(a.paths.Settings); a.configProblem(err) {
		return fmt.Errorf("loading settings: %w", err)
	}
	return nil
}

// configProblem logs a recoverable *config.ConfigError and reports whether
// err is anything worse.
func (a *App) configProblem(err error) bool {
	if err == nil {
		return false
	}
	var cerr *config.ConfigError
	if errors.As(err, &cerr) {
		a.log.Warn("config problem, using defaults", "path", cerr.Path, "error", cerr.Err)
		return false
	}
	return true
}

// Session returns the session name used for the log file.
func (a *App) Session() string {
	return a.session
}

// Dirs returns the directory layout of the session.
func (a *App) Dirs() Dirs {
	return a.dirs
}

// Settings returns the loaded settings document.
func (a *App) Settings() *config.Settings {
	return a.settings
}

// SetBackupRecipient sets the age recipient snapshots are encrypted to and
// saves the settings. An empty recipient turns encryption off.
func (a *App) SetBackupRecipient(recipient string) error {
	if recipient != "" {
		if _, err := encryption.NewAgeEncryptor(recipient); err != nil {
			return err
		}
	}
	a.settings.Backup.AgeRecipient = recipient
	if err := config.SaveSettings(a.paths.Settings, a.settings); err != nil {
		return fmt.Errorf("saving settings: %w", err)
	}
	a.engine = nil
	return nil
}

// Profiles

// Profiles returns the profiles document.
func (a *App) Profiles() *config.Profiles {
	return a.profiles
}

// AddProfile adds p and saves the document.
func (a *App) AddProfile(p config.Profile) error {
	if err := a.profiles.Add(p); err != nil {
		return err
	}
	return a.saveProfiles()
}

// UpdateProfile replaces the profile called name and saves the document.
func (a *App) UpdateProfile(name string, p config.Profile) error {
	if err := a.profiles.Update(name, p); err != nil {
		return err
	}
	return a.saveProfiles()
}

// RemoveProfile deletes the named profile and saves the document.
func (a *App) RemoveProfile(name string) error {
	if err := a.profiles.Remove(name); err != nil {
		return err
	}
	return a.saveProfiles()
}

// UseProfile makes the named profile active and saves the document.
func (a *App) UseProfile(name string) error {
	if err := a.profiles.SetActive(name); err != nil {
		return err
	}
	return a.saveProfiles()
}

func (a *App) saveProfiles() error {
	if err := config.SaveProfiles(a.paths.Profiles, a.profiles); err != nil {
		return fmt.Errorf("saving profiles: %w", err)
	}
	return nil
}

// profile resolves a profile by name; an empty name selects the active
// profile. It returns nil when no profile is selected.
func (a *App) profile(name string) (*config.Profile, error) {
	if name == "" {
		p, ok := a.profiles.ActiveProfile()
		if !ok {
			return nil, nil
		}
		return &p, nil
	}
	p, ok := a.profiles.Get(name)
	if !ok {
		return nil, fmt.Errorf("profile %q not found", name)
	}
	return &p, nil
}

// Mappings

// Mappings returns the mappings document.
func (a *App) Mappings() *config.Mappings {
	return a.mappings
}

// AddMapping appends m and saves the document.
func (a *App) AddMapping(m config.Mapping) error {
	if err := a.mappings.Add(m); err != nil {
		return err
	}
	return a.saveMappings()
}

// UpdateMapping replaces the mapping called name and saves the document.
func (a *App) UpdateMapping(name string, m config.Mapping) error {
	if err := a.mappings.Update(name, m); err != nil {
		return err
	}
	return a.saveMappings()
}

// RemoveMapping deletes the named mapping and saves the document.
func (a *App) RemoveMapping(name string) error {
	if err := a.mappings.Remove(name); err != nil {
		return err
	}
	return a.saveMappings()
}

// SetMappingEnabled toggles the named mapping and saves the document.
func (a *App) SetMappingEnabled(name string, enabled bool) error {
	if err := a.mappings.SetEnabled(name, enabled); err != nil {
		return err
	}
	return a.saveMappings()
}

func (a *App) saveMappings() error {
	if err := config.SaveMappings(a.paths.Mappings, a.mappings); err != nil {
		return fmt.Errorf("saving mappings: %w", err)
	}
	return nil
}

// Presets

// Presets returns the preset names.
func (a *App) Presets() ([]string, error) {
	return a.presets.List()
}

// PresetFiles returns the files inside preset.
func (a *App) PresetFiles(preset string) ([]string, error) {
	if err := deploy.ValidatePresetName(preset); err != nil {
		return nil, err
	}
	return a.presets.Files(preset)
}

// Preview returns one line per enabled mapping for preset. It never touches
// the network.
func (a *App) Preview(preset string) []string {
	return deploy.BuildPreview(a.mappings.Mappings, preset, a.presets)
}

// TestConnection connects to the named profile (empty for the active one),
// reports the remote working directory and disconnects.
func (a *App) TestConnection(ctx context.Context, name string) (string, error) {
	p, err := a.profile(name)
	if err != nil {
		return "", err
	}
	if p == nil {
		return "", errors.New("no profile selected")
	}

	a.log.Info("testing connection", "profile", p.Name, "host", p.Host, "port", p.Port, "tls", p.TLS)
	conn, err := a.dialer.Dial(ctx, *p)
	if err != nil {
		a.log.Error("connection test failed", "profile", p.Name, "error", err)
		return "", err
	}
	defer conn.Close()

	dir := ""
	if d, ok := conn.(interface{ CurrentDir() (string, error) }); ok {
		dir, err = d.CurrentDir()
		if err != nil {
			a.log.Error("connection test failed", "profile", p.Name, "error", err)
			return "", fmt.Errorf("reading working directory: %w", err)
		}
	}
	a.log.Info("connection test ok", "profile", p.Name, "pwd", dir)
	return dir, nil
}

// DeployOptions selects what to deploy.
type DeployOptions struct {
	Profile string // empty for the active profile
	Preset  string
	Confirm deploy.Confirmer
	Observe func(deploy.Event)
}

// Deploy runs one deployment and records it in the history. The returned
// Deployment is nil only when the profile name is unknown.
func (a *App) Deploy(ctx context.Context, opts DeployOptions) (*deploy.Deployment, error) {
	p, err := a.profile(opts.Profile)
	if err != nil {
		return nil, err
	}

	task := a.deployEngine(ctx).Start(ctx, deploy.Request{
		Profile:  p,
		Preset:   opts.Preset,
		Mappings: a.mappings.Mappings,
		Confirm:  opts.Confirm,
	})
	for ev := range task.Events() {
		if opts.Observe != nil {
			opts.Observe(ev)
		}
	}
	d, err := task.Wait()

	if rerr := a.record(ctx, p, d); rerr != nil {
		a.log.Warn("recording history failed", "deployment", d.ID, "error", rerr)
	}
	return d, err
}

// deployEngine builds the engine and its backup pipeline. Vaults are
// validated here rather than in New so commands that never deploy stay
// offline. A vault that fails validation is skipped with a warning.
func (a *App) deployEngine(ctx context.Context) *deploy.Engine {
	if a.engine != nil {
		return a.engine
	}

	opts := []deploy.BackupOption{deploy.WithBackupLogger(a.logger)}

	enc, err := encryption.NewEncryptorFromSettings(a.settings.Backup)
	if err != nil {
		a.log.Warn("backup encryption disabled", "error", err)
	} else if enc != nil {
		opts = append(opts, deploy.WithEncryptor(enc))
	}

	for _, vc := range a.settings.Backup.Vaults {
		v, err := vault.NewVaultFromConfig(ctx, vc)
		if err == nil {
			err = v.ValidateSetup(ctx)
		}
		if err != nil {
			a.log.Warn("vault disabled", "vault", vc.Name, "type", vc.Type, "error", err)
			continue
		}
		opts = append(opts, deploy.WithVaults(v))
	}

	backups := deploy.NewBackupManager(osfs.New(a.dirs.Backups), a.dirs.Backups, opts...)
	a.engine = deploy.NewEngine(a.dialer, a.presets, backups, a.logger, a.clock, a.ids)
	return a.engine
}

func (a *App) record(ctx context.Context, p *config.Profile, d *deploy.Deployment) error {
	rec := model.Deployment{
		ID:         d.ID,
		Profile:    d.Profile,
		Preset:     d.Preset,
		Stamp:      d.Stamp,
		Outcome:    string(d.Outcome),
		StartedAt:  d.StartedAt,
		FinishedAt: d.FinishedAt,
	}
	if p != nil {
		rec.Host = net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
	}
	if d.Err != nil {
		rec.Error = d.Err.Error()
	}

	items := make([]model.DeploymentItem, 0, len(d.Items))
	for i, r := range d.Items {
		it := model.DeploymentItem{
			DeploymentID: d.ID,
			Position:     i + 1,
			Name:         r.Item.Name,
			LocalPath:    r.Item.LocalRelativePath,
			RemotePath:   r.Item.RemoteAbsolutePath,
			BackupPath:   r.BackupPath,
			Uploaded:     r.Uploaded,
		}
		if r.BackupErr != nil {
			it.BackupError = r.BackupErr.Error()
		}
		if r.UploadErr != nil {
			it.UploadError = r.UploadErr.Error()
		}
		items = append(items, it)
	}
	return a.db.RecordDeployment(context.WithoutCancel(ctx), rec, items)
}

// History returns recent deployments, newest first. An empty profile lists
// every profile.
func (a *App) History(ctx context.Context, profile string, limit int) ([]model.Deployment, error) {
	return a.db.ListDeployments(ctx, profile, limit)
}

// FindDeployment looks up a deployment by its full ID, falling back to a
// unique ID prefix as printed by the history listing.
func (a *App) FindDeployment(ctx context.Context, id string) (*model.Deployment, error) {
	d, err := a.db.FindDeployment(ctx, id)
	if err != nil {
		return nil, err
	}
	if d != nil {
		return d, nil
	}

	deployments, err := a.db.ListDeployments(ctx, "", 0)
	if err != nil {
		return nil, err
	}
	var match *model.Deployment
	for i := range deployments {
		if !strings.HasPrefix(deployments[i].ID, id) {
			continue
		}
		if match != nil {
			return nil, fmt.Errorf("deployment id %q is ambiguous", id)
		}
		match = &deployments[i]
	}
	if match == nil {
		return nil, fmt.Errorf("deployment %q not found", id)
	}
	return match, nil
}

// HistoryItems returns the per-item results of one deployment.
func (a *App) HistoryItems(ctx context.Context, id string) ([]model.DeploymentItem, error) {
	return a.db.ListDeploymentItems(ctx, id)
}

// Close closes the history database and the session log.
func (a *App) Close() error {
	var firstErr error
	if err := a.db.Close(); err != nil {
		firstErr = fmt.Errorf("closing database: %w", err)
	}
	if a.logFile != nil {
		if err := a.logFile.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing log file: %w", err)
		}
	}
	return firstErr
}
