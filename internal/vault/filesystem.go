package vault

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
)

const snapshotsDir = "snapshots"

// FileSystemVault is a filesystem-based implementation of the Vault interface.
// It stores snapshots as files in a directory structure mirroring the local
// backups tree:
//
//	<root>/
//	  snapshots/
//	    <profile>/<preset>/<stamp>/<file>
type FileSystemVault struct {
	name string
	root string
	fs   billy.Filesystem
}

// NewFileSystemVault creates a new filesystem vault rooted at the given path.
func NewFileSystemVault(name, root string) (*FileSystemVault, error) {
	return NewFileSystemVaultFS(name, root, osfs.New(root))
}

// NewFileSystemVaultFS creates a filesystem vault over fsys. root is only
// used in error messages.
func NewFileSystemVaultFS(name, root string, fsys billy.Filesystem) (*FileSystemVault, error) {
	if err := fsys.MkdirAll(snapshotsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create snapshots directory: %w", err)
	}
	return &FileSystemVault{name: name, root: root, fs: fsys}, nil
}

func (v *FileSystemVault) Name() string { return v.name }

// Put stores a snapshot under key. The operation is idempotent: a key that
// already exists is left as is, since snapshot keys are unique per run.
func (v *FileSystemVault) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	destPath := path.Join(snapshotsDir, key)

	if _, err := v.fs.Stat(destPath); err == nil {
		// Consume the reader to maintain expected behavior
		written, err := io.Copy(io.Discard, r)
		if err != nil {
			return fmt.Errorf("failed to read content: %w", err)
		}
		if written != size {
			return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, written)
		}
		return nil
	}

	return v.writeFile(destPath, r, size)
}

// Get writes the snapshot stored under key to w.
func (v *FileSystemVault) Get(ctx context.Context, key string, w io.Writer) error {
	f, err := v.fs.Open(path.Join(snapshotsDir, key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("snapshot not found: %s", key)
		}
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	return nil
}

// ValidateSetup verifies that the vault directories are accessible.
func (v *FileSystemVault) ValidateSetup(ctx context.Context) error {
	info, err := v.fs.Stat(snapshotsDir)
	if err != nil {
		return fmt.Errorf("vault %s not accessible: %w", v.root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("vault path is not a directory: %s", path.Join(v.root, snapshotsDir))
	}
	return nil
}

// writeFile writes data from r to the specified path using atomic write (temp file + rename).
func (v *FileSystemVault) writeFile(destPath string, r io.Reader, expectedSize int64) error {
	dir := path.Dir(destPath)
	if err := v.fs.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Temp file in the same directory so the rename stays atomic
	tmpFile, err := v.fs.TempFile(dir, ".tmp-")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			v.fs.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if written != expectedSize {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", expectedSize, written)
	}

	if err := v.fs.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

// Compile-time check that FileSystemVault implements Vault interface
var _ Vault = (*FileSystemVault)(nil)
