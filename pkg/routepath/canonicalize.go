// Package routepath canonicalizes the fullPath of an inbound navigation
// target before it reaches a page registry.
//
// The registry keys pages by fullPath verbatim, so "/users/" and "/users"
// would otherwise open two tabs for the same page. Only the path part is
// normalized; the query string is kept byte-for-byte because distinct
// queries are distinct pages.
package routepath

import (
	"errors"
	"strings"
)

// Result is a canonicalized fullPath split into its parts.
type Result struct {
	// Path is the canonical path (without query string).
	Path string

	// Query is the query string (without leading "?").
	Query string

	// Changed indicates if the path was modified.
	Changed bool
}

// FullPath reassembles the canonical path and the original query.
func (r Result) FullPath() string {
	if r.Query == "" {
		return r.Path
	}
	return r.Path + "?" + r.Query
}

// Canonicalization errors.
var (
	ErrInvalidPath          = errors.New("invalid path")
	ErrAbsoluteURL          = errors.New("absolute URL is not a navigation target")
	ErrBackslashInPath      = errors.New("path contains backslash")
	ErrNullByteInPath       = errors.New("path contains null byte")
	ErrInvalidPercentEscape = errors.New("invalid percent escape sequence")
	ErrPathEscapesRoot      = errors.New("path escapes root via ..")
)

// Canonicalize normalizes the path part of fullPath:
//   - collapse repeated slashes
//   - drop "." segments and resolve ".." segments
//   - remove the trailing slash (except for "/")
//
// It rejects absolute URLs, backslashes, NUL bytes, malformed percent
// escapes and ".." segments that climb above the root. The query string
// is not inspected.
func Canonicalize(fullPath string) (Result, error) {
	if fullPath == "" {
		return Result{}, ErrInvalidPath
	}
	if strings.HasPrefix(fullPath, "http://") ||
		strings.HasPrefix(fullPath, "https://") ||
		strings.HasPrefix(fullPath, "//") {
		return Result{}, ErrAbsoluteURL
	}
	if !strings.HasPrefix(fullPath, "/") {
		return Result{}, ErrInvalidPath
	}

	path, query := SplitPathAndQuery(fullPath)

	if strings.Contains(path, "\\") {
		return Result{}, ErrBackslashInPath
	}
	if strings.Contains(path, "\x00") || strings.Contains(strings.ToUpper(path), "%00") {
		return Result{}, ErrNullByteInPath
	}
	if strings.Contains(path, "%") {
		if err := validatePercentEscapes(path); err != nil {
			return Result{}, err
		}
	}

	segments := strings.Split(path, "/")
	kept := make([]string, 0, len(segments))
	for _, seg := range segments {
		switch seg {
		case "", ".":
			continue
		case "..":
			if len(kept) == 0 {
				return Result{}, ErrPathEscapesRoot
			}
			kept = kept[:len(kept)-1]
		default:
			kept = append(kept, seg)
		}
	}

	canonical := "/" + strings.Join(kept, "/")
	return Result{
		Path:    canonical,
		Query:   query,
		Changed: canonical != path,
	}, nil
}

// CanonicalFullPath is Canonicalize returning the reassembled fullPath.
func CanonicalFullPath(fullPath string) (string, error) {
	r, err := Canonicalize(fullPath)
	if err != nil {
		return "", err
	}
	return r.FullPath(), nil
}

// SplitPathAndQuery splits a fullPath into path and query components.
// The query is returned without the leading "?".
func SplitPathAndQuery(fullPath string) (path, query string) {
	path, query, _ = strings.Cut(fullPath, "?")
	return path, query
}

// validatePercentEscapes checks that every '%' starts a %XX hex escape.
func validatePercentEscapes(path string) error {
	for i := 0; i < len(path); i++ {
		if path[i] != '%' {
			continue
		}
		if i+2 >= len(path) || !isHexDigit(path[i+1]) || !isHexDigit(path[i+2]) {
			return ErrInvalidPercentEscape
		}
		i += 2
	}
	return nil
}

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
