package testutil

import (
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"

	"cfgpush/internal/fs"
)

// NewTestPresetStore creates an in-memory preset store. files maps
// "<preset>/<relative path>" to content.
func NewTestPresetStore(t *testing.T, files map[string]string) *fs.PresetStore {
	t.Helper()
	fsys := memfs.New()
	for name, content := range files {
		if err := util.WriteFile(fsys, name, []byte(content), 0644); err != nil {
			t.Fatalf("writing preset file %s: %v", name, err)
		}
	}
	store, err := fs.NewPresetStoreFS(fsys, "/presets")
	if err != nil {
		t.Fatalf("creating preset store: %v", err)
	}
	return store
}
