package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Document file names inside the config directory.
const (
	ProfilesFile = "profiles.toml"
	MappingsFile = "mappings.toml"
	SettingsFile = "settings.toml"
)

// ConfigError reports a persisted document that was malformed or had to be
// repaired. The value returned alongside it is always usable: either the
// default document or the repaired one. Callers log it and carry on.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Paths holds the locations of the three configuration documents.
type Paths struct {
	Profiles string
	Mappings string
	Settings string
}

// NewPaths returns the document paths inside dir.
func NewPaths(dir string) Paths {
	return Paths{
		Profiles: filepath.Join(dir, ProfilesFile),
		Mappings: filepath.Join(dir, MappingsFile),
		Settings: filepath.Join(dir, SettingsFile),
	}
}

// Decode reads a TOML document from r into v.
func Decode(r io.Reader, v any) error {
	if _, err := toml.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("failed to decode document: %w", err)
	}
	return nil
}

// Encode writes v to w as a TOML document.
func Encode(w io.Writer, v any) error {
	if err := toml.NewEncoder(w).Encode(v); err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}
	return nil
}

// readDocument decodes the file at path into v and reports whether the file
// existed. A decode failure is returned as a *ConfigError.
func readDocument(path string, v any) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	if err := Decode(f, v); err != nil {
		return true, &ConfigError{Path: path, Err: err}
	}
	return true, nil
}

// writeDocument writes v to path using a temp file and rename so a crash
// never leaves a half-written document behind.
func writeDocument(path string, v any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if err := Encode(tmp, v); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0600); err != nil {
		return fmt.Errorf("setting permissions on %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

// repaired wraps the list of repairs applied to a document, or returns nil
// when nothing had to change.
func repaired(path string, problems []error) error {
	if len(problems) == 0 {
		return nil
	}
	return &ConfigError{Path: path, Err: errors.Join(problems...)}
}
