package fs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"

	"cfgpush/internal/deploy"
)

// PresetStore is the presets directory: one subdirectory per preset holding
// the files to deploy. It is read-only.
type PresetStore struct {
	fs     billy.Filesystem
	root   string
	ignore *IgnoreMatcher
}

var _ deploy.PresetSource = (*PresetStore)(nil)

// NewPresetStore opens the presets directory at root. Patterns from
// root/.cfgpushignore hide entries from List and Files.
func NewPresetStore(root string) (*PresetStore, error) {
	return NewPresetStoreFS(osfs.New(root), root)
}

// NewPresetStoreFS creates a PresetStore over fs. root is only used to
// report absolute paths.
func NewPresetStoreFS(fsys billy.Filesystem, root string) (*PresetStore, error) {
	patterns, err := ParseIgnoreFile(fsys, IgnoreFile)
	if err != nil {
		return nil, err
	}
	return &PresetStore{
		fs:     fsys,
		root:   root,
		ignore: NewIgnoreMatcher(append(defaultIgnorePatterns, patterns...)),
	}, nil
}

// Root returns the presets directory.
func (s *PresetStore) Root() string {
	return s.root
}

// List returns the preset names in sorted order. A missing presets directory
// has no presets.
func (s *PresetStore) List() ([]string, error) {
	entries, err := s.fs.ReadDir("/")
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading presets directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") || s.ignore.Match(e.Name(), true) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Files returns the regular files inside preset as sorted slash-separated
// relative paths.
func (s *PresetStore) Files(preset string) ([]string, error) {
	if err := deploy.ValidatePresetName(preset); err != nil {
		return nil, err
	}

	var files []string
	err := util.Walk(s.fs, preset, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel := strings.TrimPrefix(filepath.ToSlash(p), preset+"/")
		if info.IsDir() {
			if p != preset && s.ignore.Match(rel, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if !info.Mode().IsRegular() || s.ignore.Match(rel, false) {
			return nil
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing preset %s: %w", preset, err)
	}
	sort.Strings(files)
	return files, nil
}

// Exists reports whether rel exists inside preset. A directory counts as
// existing; uploading it fails later.
func (s *PresetStore) Exists(preset, rel string) (bool, error) {
	_, err := s.fs.Stat(s.key(preset, rel))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("stat %s: %w", rel, err)
	}
}

// Open opens rel inside preset for reading. Only regular files can be opened.
func (s *PresetStore) Open(preset, rel string) (io.ReadCloser, error) {
	key := s.key(preset, rel)
	info, err := s.fs.Stat(key)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", rel, err)
	}

	mode := info.Mode()
	switch {
	case mode.IsDir():
		return nil, fmt.Errorf("cannot upload directory: %s", rel)
	case mode&os.ModeDevice != 0:
		return nil, fmt.Errorf("device files not supported: %s", rel)
	case mode&os.ModeNamedPipe != 0:
		return nil, fmt.Errorf("named pipes not supported: %s", rel)
	case mode&os.ModeSocket != 0:
		return nil, fmt.Errorf("sockets not supported: %s", rel)
	}

	f, err := s.fs.Open(key)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", rel, err)
	}
	return f, nil
}

// Path returns the absolute local path of rel inside preset.
func (s *PresetStore) Path(preset, rel string) string {
	return filepath.Join(s.root, preset, filepath.FromSlash(rel))
}

func (s *PresetStore) key(preset, rel string) string {
	return path.Join(preset, rel)
}
