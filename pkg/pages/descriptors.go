package pages

import "sync"

// Descriptor is what the rendering layer mounts for a page: a component
// identified by the page's cache key, plus its props.
type Descriptor struct {
	Key       string
	Component any
	Props     map[string]any
}

// DescriptorFunc builds the descriptor for a newly opened page.
type DescriptorFunc func(Page) Descriptor

// DescriptorTable keeps one descriptor per open page, keyed by cache key.
//
// Descriptors are bound when a page is added and dropped when it is
// removed. Leaving the keep-alive membership (as during a refresh) does not
// drop the descriptor, so the same component is mounted again afterwards.
type DescriptorTable struct {
	build DescriptorFunc

	mu    sync.RWMutex
	table map[string]Descriptor
}

// NewDescriptorTable creates a table that builds descriptors with build.
// A nil build binds a descriptor carrying only the key.
func NewDescriptorTable(build DescriptorFunc) *DescriptorTable {
	if build == nil {
		build = func(p Page) Descriptor { return Descriptor{} }
	}
	return &DescriptorTable{
		build: build,
		table: make(map[string]Descriptor),
	}
}

// Observe implements Observer.
func (t *DescriptorTable) Observe(b Batch) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, e := range b.Events {
		switch e.Type {
		case EventAdd:
			d := t.build(e.Page)
			d.Key = e.CacheKey
			t.table[e.CacheKey] = d
		case EventRemove:
			delete(t.table, e.CacheKey)
		}
	}
}

// Lookup returns the descriptor bound to key.
func (t *DescriptorTable) Lookup(key string) (Descriptor, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	d, ok := t.table[key]
	return d, ok
}

// Len returns the number of bound descriptors.
func (t *DescriptorTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.table)
}
