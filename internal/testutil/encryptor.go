package testutil

import (
	"cfgpush/internal/deploy"
	"cfgpush/internal/encryption"
)

// NewTestEncryptor creates a new test encryptor for testing.
func NewTestEncryptor() deploy.Encryptor {
	return encryption.NewTestEncryptor()
}
