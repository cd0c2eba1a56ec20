// Package handoff passes freshly created task ids from the submitting form to the
// page controller without either side depending on the other's construction order.
package handoff

import "sync"

// Well-known directory keys
const (
	KeyProgressDisplay = "progress-display"
)

// Directory is an explicit registry of page components keyed by stable ids
type Directory struct {
	mu         sync.RWMutex
	components map[string]interface{}
}

// NewDirectory creates an empty directory
func NewDirectory() *Directory {
	return &Directory{components: make(map[string]interface{})}
}

// Register stores component under key, replacing any previous entry
func (d *Directory) Register(key string, component interface{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.components[key] = component
}

// Unregister removes key
func (d *Directory) Unregister(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.components, key)
}

// Lookup returns the component stored under key
func (d *Directory) Lookup(key string) (interface{}, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	component, ok := d.components[key]
	return component, ok
}
