// Package resolve picks the page to activate after the active page closes.
package resolve

// DefaultHome is the fallback target when no page remains open.
const DefaultHome = "/"

// Func chooses the next navigation target from the fullPaths still open,
// in insertion order (oldest first). It must always return a path.
type Func func(remaining []string, home string) string

// Fallback returns the most recently opened remaining page, or home when
// none remain. An empty home falls back to DefaultHome.
//
// Recency is by opening order, not by last visit: reactivating an old tab
// does not move it to the end.
func Fallback(remaining []string, home string) string {
	if n := len(remaining); n > 0 {
		return remaining[n-1]
	}
	if home == "" {
		return DefaultHome
	}
	return home
}

var _ Func = Fallback
