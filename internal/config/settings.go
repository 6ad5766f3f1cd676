package config

import (
	"errors"
	"fmt"
	"time"
)

// DefaultTimeoutSeconds bounds each individual connection operation.
const DefaultTimeoutSeconds = 20

// Settings is the settings document.
type Settings struct {
	App    AppSettings    `toml:"app"`
	Backup BackupSettings `toml:"backup"`
}

// AppSettings holds general application settings.
type AppSettings struct {
	TimeoutSeconds int `toml:"timeout_seconds"`
}

// BackupSettings controls how backup snapshots are stored.
type BackupSettings struct {
	// AgeRecipient, when set, encrypts every snapshot to this age X25519
	// recipient ("age1...").
	AgeRecipient string        `toml:"age_recipient,omitempty"`
	Vaults       []VaultConfig `toml:"vaults,omitempty"`
}

// VaultConfig describes a secondary destination that receives a copy of
// every backup snapshot.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type VaultConfig struct {
	Type string `toml:"type"` // "memory", "filesystem" or "s3"
	Name string `toml:"name"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSVaultRoot string `toml:"fs_vault_root,omitempty"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket          string `toml:"s3_bucket,omitempty"`
	S3Prefix          string `toml:"s3_prefix,omitempty"`
	S3Region          string `toml:"s3_region,omitempty"`
	S3Endpoint        string `toml:"s3_endpoint,omitempty"` // S3-compatible services (MinIO etc.)
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`
}

type rawSettings struct {
	App struct {
		TimeoutSeconds *int `toml:"timeout_seconds"`
	} `toml:"app"`
	Backup BackupSettings `toml:"backup"`
}

// DefaultSettings returns the settings document with every default applied.
func DefaultSettings() *Settings {
	return &Settings{
		App: AppSettings{TimeoutSeconds: DefaultTimeoutSeconds},
	}
}

// Timeout returns the per-operation connection timeout.
func (s *Settings) Timeout() time.Duration {
	return time.Duration(s.App.TimeoutSeconds) * time.Second
}

// LoadSettings reads the settings document at path, creating it with
// defaults when it does not exist. See LoadProfiles for error semantics.
func LoadSettings(path string) (*Settings, error) {
	var raw rawSettings
	existed, err := readDocument(path, &raw)
	if err != nil {
		var cerr *ConfigError
		if errors.As(err, &cerr) {
			return DefaultSettings(), cerr
		}
		return nil, err
	}

	if !existed {
		s := DefaultSettings()
		if err := SaveSettings(path, s); err != nil {
			return nil, err
		}
		return s, nil
	}

	var problems []error
	s := DefaultSettings()
	s.Backup = raw.Backup
	if raw.App.TimeoutSeconds != nil {
		if *raw.App.TimeoutSeconds > 0 {
			s.App.TimeoutSeconds = *raw.App.TimeoutSeconds
		} else {
			problems = append(problems, fmt.Errorf("timeout_seconds must be positive, using %d", DefaultTimeoutSeconds))
		}
	}
	return s, repaired(path, problems)
}

// SaveSettings writes the settings document to path.
func SaveSettings(path string, s *Settings) error {
	return writeDocument(path, s)
}
