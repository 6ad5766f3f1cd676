package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// Dirs holds the on-disk layout under the base directory.
type Dirs struct {
	Base    string
	Config  string
	Presets string
	Backups string
	Logs    string
	History string // SQLite database file
}

// NewDirs returns the layout rooted at base.
func NewDirs(base string) Dirs {
	return Dirs{
		Base:    base,
		Config:  filepath.Join(base, "config"),
		Presets: filepath.Join(base, "presets"),
		Backups: filepath.Join(base, "backups"),
		Logs:    filepath.Join(base, "logs"),
		History: filepath.Join(base, "history.db"),
	}
}

// Create makes every directory of the layout.
func (d Dirs) Create() error {
	for _, dir := range []string{d.Base, d.Config, d.Presets, d.Backups, d.Logs} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return nil
}

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - CFGPUSH_HOME: base directory for cfgpush data (default: ~/.local/share/cfgpush)
func GetDefaults() (Dirs, error) {
	baseDir, err := getBaseDir()
	if err != nil {
		return Dirs{}, err
	}
	return NewDirs(baseDir), nil
}

// getBaseDir returns the base directory, checking CFGPUSH_HOME first, then
// falling back to the XDG default ~/.local/share/cfgpush.
func getBaseDir() (string, error) {
	if path := os.Getenv("CFGPUSH_HOME"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "cfgpush"), nil
}
