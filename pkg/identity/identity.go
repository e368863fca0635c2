// Package identity derives the keys a page registry uses to track pages.
//
// Every open page has two keys:
//
//   - the cache key, which names the page in the keep-alive membership set.
//     It depends only on the page's fullPath and never changes while the
//     page is open.
//   - the mount key, which the rendering layer uses to (re)mount the page
//     component. It combines the fullPath with the page's refresh epoch, so
//     bumping the epoch forces a fresh mount.
//
// A Policy bundles both derivations plus the cache-eligibility check.
// Policies are stateless and safe for concurrent use.
package identity

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/vango-dev/pagekeeper/pkg/route"
)

// Policy names accepted by PolicyByName.
const (
	PolicySanitized = "sanitized"
	PolicyExact     = "exact"
)

// sanitizedPrefix keeps sanitized keys valid component names.
const sanitizedPrefix = "Page"

// Policy derives page identity keys.
type Policy interface {
	// Name identifies the policy in configuration and logs.
	Name() string

	// CacheKey maps a fullPath to its keep-alive key.
	CacheKey(fullPath string) string

	// MountKey maps a fullPath and refresh epoch to a mount key.
	MountKey(fullPath string, epoch uint64) string
}

// Sanitized builds cache keys by replacing every byte outside [A-Za-z0-9]
// with '-' and prefixing "Page". The mapping is lossy: "/a-b" and "/a_b"
// share a key. Registries detect that as an identity collision.
type Sanitized struct{}

// Name implements Policy.
func (Sanitized) Name() string { return PolicySanitized }

// CacheKey implements Policy.
func (Sanitized) CacheKey(fullPath string) string {
	buf := make([]byte, 0, len(sanitizedPrefix)+len(fullPath))
	buf = append(buf, sanitizedPrefix...)
	for i := 0; i < len(fullPath); i++ {
		c := fullPath[i]
		if isAlnum(c) {
			buf = append(buf, c)
		} else {
			buf = append(buf, '-')
		}
	}
	return string(buf)
}

// MountKey implements Policy.
func (Sanitized) MountKey(fullPath string, epoch uint64) string {
	return MountKey(fullPath, epoch)
}

// Exact uses the fullPath itself as the cache key. It cannot collide.
type Exact struct{}

// Name implements Policy.
func (Exact) Name() string { return PolicyExact }

// CacheKey implements Policy.
func (Exact) CacheKey(fullPath string) string { return fullPath }

// MountKey implements Policy.
func (Exact) MountKey(fullPath string, epoch uint64) string {
	return MountKey(fullPath, epoch)
}

// Default is the policy used when none is configured.
var Default Policy = Sanitized{}

// PolicyByName returns the policy registered under name.
// The empty name selects Default.
func PolicyByName(name string) (Policy, error) {
	switch name {
	case "":
		return Default, nil
	case PolicySanitized:
		return Sanitized{}, nil
	case PolicyExact:
		return Exact{}, nil
	default:
		return nil, fmt.Errorf("identity: unknown key policy %q", name)
	}
}

// CacheEligible reports whether a page with meta may be kept alive.
// Pages are eligible unless their meta explicitly opts out.
func CacheEligible(meta route.Meta) bool {
	return meta.CacheEligible()
}

// CacheKey derives the cache key with the Default policy.
func CacheKey(fullPath string) string {
	return Default.CacheKey(fullPath)
}

// MountKey joins fullPath and epoch. The epoch is always the text after the
// last '#', so the mapping stays injective even for fullPaths with fragments.
func MountKey(fullPath string, epoch uint64) string {
	return fullPath + "#" + strconv.FormatUint(epoch, 10)
}

// Collision is a set of fullPaths sharing one cache key.
type Collision struct {
	Key       string
	FullPaths []string
}

// Collisions groups fullPaths by cache key under p and returns every key
// shared by more than one distinct fullPath, sorted by key.
func Collisions(p Policy, fullPaths ...string) []Collision {
	byKey := make(map[string][]string)
	seen := make(map[string]bool)
	for _, fp := range fullPaths {
		if seen[fp] {
			continue
		}
		seen[fp] = true
		k := p.CacheKey(fp)
		byKey[k] = append(byKey[k], fp)
	}

	var out []Collision
	for k, fps := range byKey {
		if len(fps) > 1 {
			out = append(out, Collision{Key: k, FullPaths: fps})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func isAlnum(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
