// Package sink provides resource.Installer implementations that record or
// forward the deltas produced by the engine.
package sink

import (
	"sync"

	"github.com/twiced-technology-gmbh/installwatch/internal/resource"
)

// Multi fans every call out to each installer in order.
type Multi []resource.Installer

// RegisterResources implements resource.Installer.
func (m Multi) RegisterResources(scheme string, resources []resource.Resource) {
	for _, inst := range m {
		inst.RegisterResources(scheme, resources)
	}
}

// UpdateResources implements resource.Installer.
func (m Multi) UpdateResources(scheme string, toAdd []resource.Resource, toRemove []string) {
	for _, inst := range m {
		inst.UpdateResources(scheme, toAdd, toRemove)
	}
}

// Inventory tracks the resources currently known to the installer, keyed
// by resource id. The CLI and dashboard read it to show what is installed.
type Inventory struct {
	mu        sync.RWMutex
	resources map[string]resource.Resource
}

// NewInventory returns an empty Inventory.
func NewInventory() *Inventory {
	return &Inventory{resources: make(map[string]resource.Resource)}
}

// RegisterResources replaces the entries for scheme with resources.
func (i *Inventory) RegisterResources(scheme string, resources []resource.Resource) {
	i.mu.Lock()
	defer i.mu.Unlock()
	for id, r := range i.resources {
		if s, _, _ := resource.SplitURL(r.URL); s == scheme {
			delete(i.resources, id)
		}
	}
	for _, r := range resources {
		i.resources[r.ID] = r
	}
}

// UpdateResources applies a delta. toRemove holds resource ids.
func (i *Inventory) UpdateResources(_ string, toAdd []resource.Resource, toRemove []string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, id := range toRemove {
		delete(i.resources, id)
	}
	for _, r := range toAdd {
		i.resources[r.ID] = r
	}
}

// List returns the known resources sorted by URL.
func (i *Inventory) List() []resource.Resource {
	i.mu.RLock()
	defer i.mu.RUnlock()
	out := make([]resource.Resource, 0, len(i.resources))
	for _, r := range i.resources {
		out = append(out, r)
	}
	sortByURL(out)
	return out
}

// Len returns the number of known resources.
func (i *Inventory) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.resources)
}
