// Package profiles holds the configured provider profiles and their
// credentials in memory. Credentials never reach the cache database.
package profiles

import (
	"fmt"
	"sort"
	"sync"

	"github.com/stacklok/catalog-cache/internal/catalog"
	"github.com/stacklok/catalog-cache/internal/config"
)

// Directory looks up profiles by id.
type Directory struct {
	mu   sync.RWMutex
	byID map[string]*catalog.Profile
}

// New returns a directory over the given profiles.
func New(profiles ...*catalog.Profile) *Directory {
	d := &Directory{byID: make(map[string]*catalog.Profile, len(profiles))}
	for _, p := range profiles {
		d.byID[p.ID] = p
	}
	return d
}

// FromConfig resolves the configured profiles, reading password files and
// environment variables.
func FromConfig(cfgs []config.ProfileConfig) (*Directory, error) {
	profiles := make([]*catalog.Profile, 0, len(cfgs))
	for i := range cfgs {
		p, err := cfgs[i].ToProfile()
		if err != nil {
			return nil, fmt.Errorf("profile %s: %w", cfgs[i].ID, err)
		}
		profiles = append(profiles, p)
	}
	return New(profiles...), nil
}

// Get returns a copy of the profile with the given id.
func (d *Directory) Get(id string) (*catalog.Profile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", catalog.ErrProfileNotFound, id)
	}
	cp := *p
	return &cp, nil
}

// List returns copies of all profiles ordered by id.
func (d *Directory) List() []*catalog.Profile {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*catalog.Profile, 0, len(d.byID))
	for _, p := range d.byID {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// IDs returns the profile ids in order.
func (d *Directory) IDs() []string {
	profiles := d.List()
	ids := make([]string, len(profiles))
	for i, p := range profiles {
		ids[i] = p.ID
	}
	return ids
}
