package config

import (
	"errors"
	"fmt"
	"strings"
)

// DefaultPort is the FTP control port used when a profile omits one.
const DefaultPort = 21

// Profile holds the connection details and remote root for one server.
type Profile struct {
	Name          string `toml:"name"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Username      string `toml:"username"`
	Password      string `toml:"password"`
	TLS           bool   `toml:"tls"`
	TLSSkipVerify bool   `toml:"tls_skip_verify"`
	Root          string `toml:"root"`
}

// Profiles is the profiles document: an ordered list plus a soft reference
// to the active profile by name. Active is either empty or names an entry.
type Profiles struct {
	Active   string    `toml:"active_profile"`
	Profiles []Profile `toml:"profiles"`
}

// rawProfile mirrors Profile with pointer fields so missing keys can be told
// apart from zero values when defaults are applied.
type rawProfile struct {
	Name          *string `toml:"name"`
	Host          *string `toml:"host"`
	Port          *int    `toml:"port"`
	Username      *string `toml:"username"`
	Password      *string `toml:"password"`
	TLS           *bool   `toml:"tls"`
	TLSSkipVerify *bool   `toml:"tls_skip_verify"`
	Root          *string `toml:"root"`
}

type rawProfiles struct {
	Active   *string      `toml:"active_profile"`
	Profiles []rawProfile `toml:"profiles"`
}

// DefaultProfiles returns the empty profiles document.
func DefaultProfiles() *Profiles {
	return &Profiles{}
}

// LoadProfiles reads the profiles document at path, creating it with
// defaults when it does not exist. A *ConfigError means the returned
// document is the default (malformed file) or a repaired copy.
func LoadProfiles(path string) (*Profiles, error) {
	var raw rawProfiles
	existed, err := readDocument(path, &raw)
	if err != nil {
		var cerr *ConfigError
		if errors.As(err, &cerr) {
			return DefaultProfiles(), cerr
		}
		return nil, err
	}

	if !existed {
		p := DefaultProfiles()
		if err := SaveProfiles(path, p); err != nil {
			return nil, err
		}
		return p, nil
	}

	p, problems := raw.normalize()
	return p, repaired(path, problems)
}

// SaveProfiles writes the profiles document to path.
func SaveProfiles(path string, p *Profiles) error {
	return writeDocument(path, p)
}

func (r *rawProfiles) normalize() (*Profiles, []error) {
	var problems []error
	out := &Profiles{}
	seen := make(map[string]bool)

	for i, rp := range r.Profiles {
		p := Profile{
			Name:          valueOr(rp.Name, "Unnamed"),
			Host:          valueOr(rp.Host, ""),
			Port:          valueOr(rp.Port, DefaultPort),
			Username:      valueOr(rp.Username, ""),
			Password:      valueOr(rp.Password, ""),
			TLS:           valueOr(rp.TLS, false),
			TLSSkipVerify: valueOr(rp.TLSSkipVerify, false),
			Root:          valueOr(rp.Root, "/"),
		}
		if p.Port <= 0 || p.Port > 65535 {
			problems = append(problems, fmt.Errorf("profile %q: invalid port %d, using %d", p.Name, p.Port, DefaultPort))
			p.Port = DefaultPort
		}
		if strings.TrimSpace(p.Root) == "" {
			p.Root = "/"
		}
		if seen[p.Name] {
			problems = append(problems, fmt.Errorf("profile #%d: duplicate name %q dropped", i+1, p.Name))
			continue
		}
		seen[p.Name] = true
		out.Profiles = append(out.Profiles, p)
	}

	active := valueOr(r.Active, "")
	if active != "" && !seen[active] {
		problems = append(problems, fmt.Errorf("active profile %q does not exist, cleared", active))
		active = ""
	}
	out.Active = active

	return out, problems
}

// Get returns a copy of the named profile.
func (p *Profiles) Get(name string) (Profile, bool) {
	i := p.index(name)
	if i < 0 {
		return Profile{}, false
	}
	return p.Profiles[i], true
}

// ActiveProfile returns the active profile, if one is set.
func (p *Profiles) ActiveProfile() (Profile, bool) {
	if p.Active == "" {
		return Profile{}, false
	}
	return p.Get(p.Active)
}

// Add appends a new profile. Names are unique. The first profile added
// becomes active.
func (p *Profiles) Add(profile Profile) error {
	if err := validateProfile(profile); err != nil {
		return err
	}
	if p.index(profile.Name) >= 0 {
		return fmt.Errorf("a profile named %q already exists", profile.Name)
	}
	p.Profiles = append(p.Profiles, profile)
	if p.Active == "" {
		p.Active = profile.Name
	}
	return nil
}

// Update replaces the profile called name. Renaming the active profile
// moves the active reference with it.
func (p *Profiles) Update(name string, profile Profile) error {
	if err := validateProfile(profile); err != nil {
		return err
	}
	i := p.index(name)
	if i < 0 {
		return fmt.Errorf("profile %q not found", name)
	}
	if profile.Name != name && p.index(profile.Name) >= 0 {
		return fmt.Errorf("a profile named %q already exists", profile.Name)
	}
	p.Profiles[i] = profile
	if p.Active == name {
		p.Active = profile.Name
	}
	return nil
}

// Remove deletes the named profile. If it was active, the first remaining
// profile becomes active, or the reference is cleared.
func (p *Profiles) Remove(name string) error {
	i := p.index(name)
	if i < 0 {
		return fmt.Errorf("profile %q not found", name)
	}
	p.Profiles = append(p.Profiles[:i], p.Profiles[i+1:]...)
	if p.Active == name {
		p.Active = ""
		if len(p.Profiles) > 0 {
			p.Active = p.Profiles[0].Name
		}
	}
	return nil
}

// SetActive marks the named profile as active.
func (p *Profiles) SetActive(name string) error {
	if p.index(name) < 0 {
		return fmt.Errorf("profile %q not found", name)
	}
	p.Active = name
	return nil
}

func (p *Profiles) index(name string) int {
	for i := range p.Profiles {
		if p.Profiles[i].Name == name {
			return i
		}
	}
	return -1
}

func validateProfile(profile Profile) error {
	if strings.TrimSpace(profile.Name) == "" {
		return fmt.Errorf("profile name is required")
	}
	if profile.Port <= 0 || profile.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", profile.Port)
	}
	return nil
}

func valueOr[T any](v *T, def T) T {
	if v == nil {
		return def
	}
	return *v
}
