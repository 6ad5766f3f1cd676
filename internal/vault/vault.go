package vault

import (
	"context"
	"io"

	"cfgpush/internal/deploy"
)

// Vault is a backup mirror that can also hand snapshots back and check its
// own configuration.
type Vault interface {
	deploy.Vault

	// Get writes the snapshot stored under key to w.
	Get(ctx context.Context, key string, w io.Writer) error

	// ValidateSetup verifies the vault is reachable and writable.
	ValidateSetup(ctx context.Context) error
}
