package config

import (
	"errors"
	"fmt"
	"strings"
)

// Mapping binds one file inside a preset to a destination path under the
// profile root. The order of mappings in the document is deployment order.
type Mapping struct {
	Name       string `toml:"name"`
	Enabled    bool   `toml:"enabled"`
	LocalPath  string `toml:"local_relpath"`
	RemotePath string `toml:"remote_path"`
	Backup     bool   `toml:"backup_before_overwrite"`
}

// Mappings is the mappings document.
type Mappings struct {
	Mappings []Mapping `toml:"mappings"`
}

type rawMapping struct {
	Name       *string `toml:"name"`
	Enabled    *bool   `toml:"enabled"`
	LocalPath  *string `toml:"local_relpath"`
	RemotePath *string `toml:"remote_path"`
	Backup     *bool   `toml:"backup_before_overwrite"`
}

type rawMappings struct {
	Mappings []rawMapping `toml:"mappings"`
}

// DefaultMappings returns the empty mappings document.
func DefaultMappings() *Mappings {
	return &Mappings{}
}

// LoadMappings reads the mappings document at path, creating it with
// defaults when it does not exist. See LoadProfiles for error semantics.
func LoadMappings(path string) (*Mappings, error) {
	var raw rawMappings
	existed, err := readDocument(path, &raw)
	if err != nil {
		var cerr *ConfigError
		if errors.As(err, &cerr) {
			return DefaultMappings(), cerr
		}
		return nil, err
	}

	if !existed {
		m := DefaultMappings()
		if err := SaveMappings(path, m); err != nil {
			return nil, err
		}
		return m, nil
	}

	out := &Mappings{}
	for _, rm := range raw.Mappings {
		out.Mappings = append(out.Mappings, Mapping{
			Name:       valueOr(rm.Name, "Unnamed Mapping"),
			Enabled:    valueOr(rm.Enabled, true),
			LocalPath:  strings.TrimSpace(valueOr(rm.LocalPath, "")),
			RemotePath: strings.TrimSpace(valueOr(rm.RemotePath, "")),
			Backup:     valueOr(rm.Backup, true),
		})
	}
	return out, nil
}

// SaveMappings writes the mappings document to path.
func SaveMappings(path string, m *Mappings) error {
	return writeDocument(path, m)
}

// Enabled returns the enabled mappings in document order.
func (m *Mappings) Enabled() []Mapping {
	var out []Mapping
	for _, mp := range m.Mappings {
		if mp.Enabled {
			out = append(out, mp)
		}
	}
	return out
}

// Get returns a copy of the first mapping called name.
func (m *Mappings) Get(name string) (Mapping, bool) {
	i := m.index(name)
	if i < 0 {
		return Mapping{}, false
	}
	return m.Mappings[i], true
}

// Add appends a mapping. Names added through Add are unique.
func (m *Mappings) Add(mapping Mapping) error {
	if strings.TrimSpace(mapping.Name) == "" {
		return fmt.Errorf("mapping name is required")
	}
	if m.index(mapping.Name) >= 0 {
		return fmt.Errorf("a mapping named %q already exists", mapping.Name)
	}
	m.Mappings = append(m.Mappings, mapping)
	return nil
}

// Update replaces the mapping called name, keeping its position.
func (m *Mappings) Update(name string, mapping Mapping) error {
	if strings.TrimSpace(mapping.Name) == "" {
		return fmt.Errorf("mapping name is required")
	}
	i := m.index(name)
	if i < 0 {
		return fmt.Errorf("mapping %q not found", name)
	}
	if mapping.Name != name && m.index(mapping.Name) >= 0 {
		return fmt.Errorf("a mapping named %q already exists", mapping.Name)
	}
	m.Mappings[i] = mapping
	return nil
}

// Remove deletes the mapping called name.
func (m *Mappings) Remove(name string) error {
	i := m.index(name)
	if i < 0 {
		return fmt.Errorf("mapping %q not found", name)
	}
	m.Mappings = append(m.Mappings[:i], m.Mappings[i+1:]...)
	return nil
}

// SetEnabled toggles the mapping called name.
func (m *Mappings) SetEnabled(name string, enabled bool) error {
	i := m.index(name)
	if i < 0 {
		return fmt.Errorf("mapping %q not found", name)
	}
	m.Mappings[i].Enabled = enabled
	return nil
}

func (m *Mappings) index(name string) int {
	for i := range m.Mappings {
		if m.Mappings[i].Name == name {
			return i
		}
	}
	return -1
}
