package deploy

import (
	"context"
	"io"

	"cfgpush/internal/config"
)

// Conn is one authenticated session with the remote server.
type Conn interface {
	// Retrieve streams the remote file at remotePath into w.
	Retrieve(remotePath string, w io.Writer) error

	// Store uploads the content of r to remotePath, replacing any existing file.
	Store(remotePath string, r io.Reader) error

	// Close ends the session. It is idempotent and safe on a half-open session.
	Close() error
}

// Dialer opens authenticated sessions for a profile.
type Dialer interface {
	Dial(ctx context.Context, profile config.Profile) (Conn, error)
}

// PresetSource answers queries about files inside preset directories.
// rel is always a slash-separated path relative to the preset directory.
type PresetSource interface {
	// Exists reports whether rel exists inside the preset.
	Exists(preset, rel string) (bool, error)

	// Open opens rel inside the preset for reading.
	Open(preset, rel string) (io.ReadCloser, error)

	// Path returns the absolute local path of rel inside the preset, for display.
	Path(preset, rel string) string
}

// Confirmer is the user confirmation gate consulted before any connection
// is opened.
type Confirmer interface {
	Confirm(prompt string) (bool, error)
}

// AutoConfirm accepts every confirmation. The CLI uses it for --yes.
type AutoConfirm struct{}

func (AutoConfirm) Confirm(string) (bool, error) { return true, nil }

// Vault is a secondary destination that receives a copy of each backup
// snapshot after it has been written locally.
type Vault interface {
	// Name identifies the vault in logs.
	Name() string

	// Put stores size bytes read from r under key. Keys are slash-separated.
	Put(ctx context.Context, key string, r io.Reader, size int64) error
}

// Encryptor wraps backup snapshot writers. Closing the returned writer
// finalizes the ciphertext but does not close w.
type Encryptor interface {
	Encrypt(w io.Writer) (io.WriteCloser, error)

	// Suffix is appended to the snapshot file name, e.g. ".age".
	Suffix() string
}
