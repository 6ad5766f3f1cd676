package encryption

import (
	"cfgpush/internal/config"
	"cfgpush/internal/deploy"
)

// NewEncryptorFromSettings returns the snapshot encryptor configured in the
// backup settings, or nil when snapshots are stored in plaintext.
func NewEncryptorFromSettings(cfg config.BackupSettings) (deploy.Encryptor, error) {
	if cfg.AgeRecipient == "" {
		return nil, nil
	}
	enc, err := NewAgeEncryptor(cfg.AgeRecipient)
	if err != nil {
		return nil, err
	}
	return enc, nil
}
