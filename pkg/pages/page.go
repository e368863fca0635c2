package pages

import (
	"errors"
	"fmt"
	"time"

	"github.com/vango-dev/pagekeeper/pkg/route"
)

// Page is an open page as tracked by the registry.
// Values returned by the registry are copies.
type Page struct {
	// FullPath is the primary key, including the query string.
	FullPath string `json:"fullPath"`

	// Path and Name are copied from the originating target.
	Path string `json:"path"`
	Name string `json:"name,omitempty"`

	// Meta is a deep copy of the originating target's meta.
	Meta route.Meta `json:"-"`

	// CacheKey names the page in the keep-alive membership set.
	CacheKey string `json:"cacheKey"`

	// Epoch counts explicit refreshes.
	Epoch uint64 `json:"epoch"`

	// MountKey changes with every refresh; use it as the component key.
	MountKey string `json:"mountKey"`

	// OpenedAt is when the page was first registered.
	OpenedAt time.Time `json:"openedAt"`
}

// CacheEligible reports whether the page may be kept alive.
func (p Page) CacheEligible() bool {
	return p.Meta.CacheEligible()
}

// Pinned reports whether the page survives CloseOthers and CloseAll.
func (p Page) Pinned() bool {
	return p.Meta.Pinned
}

// Title returns the meta title, falling back to the route name.
func (p Page) Title() string {
	if p.Meta.Title != "" {
		return p.Meta.Title
	}
	return p.Name
}

func (p *Page) snapshot() Page {
	c := *p
	c.Meta = p.Meta.Clone()
	return c
}

// Command asks the caller to navigate to FullPath.
type Command struct {
	FullPath string `json:"fullPath"`
}

// State is a consistent view of a registry.
type State struct {
	Active     string   `json:"active,omitempty"`
	Pages      []Page   `json:"pages"`
	Membership []string `json:"membership"`
}

// Sentinel errors, matched with errors.Is.
var (
	ErrPageNotFound      = errors.New("page not found")
	ErrIdentityCollision = errors.New("identity collision")
	ErrRefreshInProgress = errors.New("refresh already in progress")
	ErrInvalidTarget     = errors.New("navigation target has no fullPath")
)

// PageNotFoundError is returned when an operation names a fullPath that is
// not open. Closing the same tab twice produces it on the second call.
type PageNotFoundError struct {
	FullPath string
}

func (e *PageNotFoundError) Error() string {
	return fmt.Sprintf("page not found: %s", e.FullPath)
}

// Is matches ErrPageNotFound.
func (e *PageNotFoundError) Is(target error) bool {
	return target == ErrPageNotFound
}

// IdentityCollisionError is returned when a new page's cache key is already
// owned by a different open page. The new page is not registered.
type IdentityCollisionError struct {
	Key      string
	Existing string
	Incoming string
}

func (e *IdentityCollisionError) Error() string {
	return fmt.Sprintf("identity collision: %q and %q share cache key %q", e.Existing, e.Incoming, e.Key)
}

// Is matches ErrIdentityCollision.
func (e *IdentityCollisionError) Is(target error) bool {
	return target == ErrIdentityCollision
}
