package deploy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
)

// StampLayout formats deployment timestamps used as backup directory names.
const StampLayout = "20060102_150405"

// BackupManager writes pre-overwrite snapshots of remote files under
// <profile>/<preset>/<stamp>/<local relative path> in its filesystem and
// mirrors each snapshot to the configured vaults.
type BackupManager struct {
	fs        billy.Filesystem
	root      string // display prefix for snapshot paths
	encryptor Encryptor
	vaults    []Vault
	logger    Logger
}

// BackupOption configures a BackupManager.
type BackupOption func(*BackupManager)

// WithEncryptor encrypts every snapshot. A nil encryptor leaves snapshots in
// plaintext.
func WithEncryptor(e Encryptor) BackupOption {
	return func(b *BackupManager) { b.encryptor = e }
}

// WithVaults mirrors every snapshot to vaults after it is written locally.
func WithVaults(vaults ...Vault) BackupOption {
	return func(b *BackupManager) { b.vaults = append(b.vaults, vaults...) }
}

// WithBackupLogger sets the logger used for vault mirroring warnings.
func WithBackupLogger(l Logger) BackupOption {
	return func(b *BackupManager) { b.logger = l }
}

// NewBackupManager creates a BackupManager storing snapshots in fs. root is
// the on-disk location of fs, used only to report snapshot paths.
func NewBackupManager(fs billy.Filesystem, root string, opts ...BackupOption) *BackupManager {
	b := &BackupManager{fs: fs, root: root, logger: NewNopLogger()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Reserve picks the backup stamp for a run of preset against profile started
// at t and creates its directory. When a directory for the same second already
// exists a numeric suffix is added ("_2", "_3", ...) so two runs never share
// a backup directory.
func (b *BackupManager) Reserve(profile, preset string, t time.Time) (string, error) {
	base := t.Format(StampLayout)
	parent := path.Join(segment(profile), segment(preset))

	for n := 1; ; n++ {
		stamp := base
		if n > 1 {
			stamp = fmt.Sprintf("%s_%d", base, n)
		}
		dir := path.Join(parent, stamp)
		_, err := b.fs.Stat(dir)
		if err == nil {
			continue
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("checking backup directory %s: %w", dir, err)
		}
		if err := b.fs.MkdirAll(dir, 0700); err != nil {
			return "", fmt.Errorf("creating backup directory %s: %w", dir, err)
		}
		return stamp, nil
	}
}

// Snapshot downloads the current content of item's remote file into the run's
// backup directory and returns the snapshot path. Any failure is returned as
// a *BackupError and leaves no partial file behind.
func (b *BackupManager) Snapshot(ctx context.Context, conn Conn, profile, preset, stamp string, item ResolvedItem) (string, error) {
	key := path.Join(segment(profile), segment(preset), stamp, item.LocalRelativePath)
	if b.encryptor != nil {
		key += b.encryptor.Suffix()
	}

	if err := b.retrieve(conn, key, item.RemoteAbsolutePath); err != nil {
		return "", &BackupError{Remote: item.RemoteAbsolutePath, Err: err}
	}

	b.mirror(ctx, key)
	return b.displayPath(key), nil
}

func (b *BackupManager) retrieve(conn Conn, key, remote string) error {
	dir := path.Dir(key)
	if err := b.fs.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	tmp, err := b.fs.TempFile(dir, ".snapshot-")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = b.fs.Remove(tmpName)
		}
	}()

	var w io.Writer = tmp
	var enc io.WriteCloser
	if b.encryptor != nil {
		enc, err = b.encryptor.Encrypt(tmp)
		if err != nil {
			return err
		}
		w = enc
	}

	if err := conn.Retrieve(remote, w); err != nil {
		return err
	}
	if enc != nil {
		if err := enc.Close(); err != nil {
			return fmt.Errorf("finalizing encryption: %w", err)
		}
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := b.fs.Rename(tmpName, key); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}

	success = true
	return nil
}

// mirror copies a written snapshot to every vault. Vault failures are logged
// and never fail the snapshot.
func (b *BackupManager) mirror(ctx context.Context, key string) {
	if len(b.vaults) == 0 {
		return
	}
	info, err := b.fs.Stat(key)
	if err != nil {
		b.logger.Warn("vault mirror skipped", "path", key, "error", err)
		return
	}
	for _, v := range b.vaults {
		if err := b.putOne(ctx, v, key, info.Size()); err != nil {
			b.logger.Warn("vault mirror failed", "vault", v.Name(), "path", key, "error", err)
			continue
		}
		b.logger.Debug("vault mirror ok", "vault", v.Name(), "path", key)
	}
}

func (b *BackupManager) putOne(ctx context.Context, v Vault, key string, size int64) error {
	f, err := b.fs.Open(key)
	if err != nil {
		return fmt.Errorf("opening snapshot: %w", err)
	}
	defer f.Close()
	return v.Put(ctx, key, f, size)
}

func (b *BackupManager) displayPath(key string) string {
	if b.root == "" {
		return key
	}
	return filepath.Join(b.root, filepath.FromSlash(key))
}

// segment makes a profile or preset name safe to use as one path element.
func segment(name string) string {
	s := strings.NewReplacer("/", "_", `\`, "_").Replace(strings.TrimSpace(name))
	switch s {
	case "", ".", "..":
		return "_"
	}
	return s
}
