package routepath

import (
	"errors"
	"testing"
)

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantPath    string
		wantQuery   string
		wantChanged bool
	}{
		{name: "root", input: "/", wantPath: "/"},
		{name: "plain", input: "/users", wantPath: "/users"},
		{name: "trailing slash", input: "/users/", wantPath: "/users", wantChanged: true},
		{name: "collapse slashes", input: "/system//roles", wantPath: "/system/roles", wantChanged: true},
		{name: "single dot", input: "/system/./roles", wantPath: "/system/roles", wantChanged: true},
		{name: "double dot", input: "/system/users/../roles", wantPath: "/system/roles", wantChanged: true},
		{name: "double dot to root", input: "/users/..", wantPath: "/", wantChanged: true},
		{name: "query preserved", input: "/users?page=2&sort=name", wantPath: "/users", wantQuery: "page=2&sort=name"},
		{name: "query not normalized", input: "/users/?b=1&a=2", wantPath: "/users", wantQuery: "b=1&a=2", wantChanged: true},
		{name: "query escapes not validated", input: "/users?q=%GG", wantPath: "/users", wantQuery: "q=%GG"},
		{name: "valid escape", input: "/files/a%20b", wantPath: "/files/a%20b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Canonicalize(tt.input)
			if err != nil {
				t.Fatalf("Canonicalize(%q) error: %v", tt.input, err)
			}
			if got.Path != tt.wantPath {
				t.Errorf("Path = %q, want %q", got.Path, tt.wantPath)
			}
			if got.Query != tt.wantQuery {
				t.Errorf("Query = %q, want %q", got.Query, tt.wantQuery)
			}
			if got.Changed != tt.wantChanged {
				t.Errorf("Changed = %v, want %v", got.Changed, tt.wantChanged)
			}
		})
	}
}

func TestCanonicalizeErrors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"empty", "", ErrInvalidPath},
		{"relative", "users", ErrInvalidPath},
		{"http url", "http://evil.example/users", ErrAbsoluteURL},
		{"https url", "https://evil.example/users", ErrAbsoluteURL},
		{"protocol relative", "//evil.example/users", ErrAbsoluteURL},
		{"backslash", "/users\\roles", ErrBackslashInPath},
		{"literal nul", "/users\x00", ErrNullByteInPath},
		{"encoded nul", "/users%00", ErrNullByteInPath},
		{"bad escape", "/users%GG", ErrInvalidPercentEscape},
		{"short escape", "/users%2", ErrInvalidPercentEscape},
		{"escapes root", "/../secret", ErrPathEscapesRoot},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Canonicalize(tt.input)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Canonicalize(%q) error = %v, want %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestCanonicalFullPath(t *testing.T) {
	got, err := CanonicalFullPath("/system//users/?tab=2")
	if err != nil {
		t.Fatal(err)
	}
	if got != "/system/users?tab=2" {
		t.Errorf("CanonicalFullPath = %q", got)
	}
}

func TestSplitPathAndQuery(t *testing.T) {
	path, query := SplitPathAndQuery("/users?id=1?x")
	if path != "/users" || query != "id=1?x" {
		t.Errorf("SplitPathAndQuery = %q, %q", path, query)
	}
	path, query = SplitPathAndQuery("/users")
	if path != "/users" || query != "" {
		t.Errorf("SplitPathAndQuery = %q, %q", path, query)
	}
}
