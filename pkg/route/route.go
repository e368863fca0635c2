package route

import (
	"sort"
	"strings"
)

// Canonical meta bag keys.
const (
	KeyCacheEligible = "cacheEligible"
	KeyHidden        = "hidden"
	KeyPinned        = "pinned"
	KeyTitle         = "title"
	KeyIcon          = "icon"
)

// Target is a fully resolved navigation target (post-redirects).
type Target struct {
	// FullPath is the path including the query string.
	FullPath string `json:"fullPath"`

	// Path is the path without the query string.
	Path string `json:"path,omitempty"`

	// Name is the route name, empty when the route is unnamed.
	Name string `json:"name,omitempty"`

	// Meta carries the flags consumed by the registry.
	Meta Meta `json:"-"`
}

// NormalizedPath returns Path, deriving it from FullPath when unset.
func (t Target) NormalizedPath() string {
	if t.Path != "" {
		return t.Path
	}
	path, _, _ := strings.Cut(t.FullPath, "?")
	return path
}

// Meta is the canonical, defaulted route metadata.
// The zero value is a visible, unpinned, cache-eligible page.
type Meta struct {
	Title string
	Icon  string

	// NoCache is set when the bag carried cacheEligible: false.
	NoCache bool

	Hidden bool
	Pinned bool

	// Extra holds every non-canonical key.
	Extra map[string]any
}

// CacheEligible reports whether the page's component may be kept alive.
func (m Meta) CacheEligible() bool {
	return !m.NoCache
}

// Clone returns a deep copy of m. Nested maps and slices in Extra are
// copied so the clone never aliases caller data.
func (m Meta) Clone() Meta {
	out := m
	if m.Extra != nil {
		out.Extra = cloneMap(m.Extra)
	}
	return out
}

// Map renders m back into a bag using the canonical keys.
// Flags at their default value are omitted.
func (m Meta) Map() map[string]any {
	out := make(map[string]any, len(m.Extra)+5)
	for k, v := range m.Extra {
		out[k] = cloneValue(v)
	}
	if m.Title != "" {
		out[KeyTitle] = m.Title
	}
	if m.Icon != "" {
		out[KeyIcon] = m.Icon
	}
	if m.NoCache {
		out[KeyCacheEligible] = false
	}
	if m.Hidden {
		out[KeyHidden] = true
	}
	if m.Pinned {
		out[KeyPinned] = true
	}
	return out
}

// MetaFromMap parses a loose metadata bag. Values of the wrong type under a
// canonical key are left at their default and reported in rejected, sorted.
func MetaFromMap(bag map[string]any) (m Meta, rejected []string) {
	for k, v := range bag {
		switch k {
		case KeyCacheEligible:
			b, ok := v.(bool)
			if !ok {
				rejected = append(rejected, k)
				continue
			}
			m.NoCache = !b
		case KeyHidden:
			b, ok := v.(bool)
			if !ok {
				rejected = append(rejected, k)
				continue
			}
			m.Hidden = b
		case KeyPinned:
			b, ok := v.(bool)
			if !ok {
				rejected = append(rejected, k)
				continue
			}
			m.Pinned = b
		case KeyTitle:
			s, ok := v.(string)
			if !ok {
				rejected = append(rejected, k)
				continue
			}
			m.Title = s
		case KeyIcon:
			s, ok := v.(string)
			if !ok {
				rejected = append(rejected, k)
				continue
			}
			m.Icon = s
		default:
			if m.Extra == nil {
				m.Extra = make(map[string]any)
			}
			m.Extra[k] = cloneValue(v)
		}
	}
	sort.Strings(rejected)
	return m, rejected
}

func cloneMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return cloneMap(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		return append([]string(nil), x...)
	default:
		return v
	}
}
