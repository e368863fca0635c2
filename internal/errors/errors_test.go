package errors

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name       string
		code       string
		wantMsg    string
		wantCat    Category
		wantStatus int
	}{
		{
			name:       "page not found",
			code:       "P001",
			wantMsg:    "Page not found",
			wantCat:    CategoryRegistry,
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "identity collision",
			code:       "P002",
			wantMsg:    "Identity collision",
			wantCat:    CategoryRegistry,
			wantStatus: http.StatusConflict,
		},
		{
			name:       "config error has no status",
			code:       "C120",
			wantMsg:    "Configuration parse error",
			wantCat:    CategoryConfig,
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:       "unknown error code",
			code:       "P999",
			wantMsg:    "Unknown error",
			wantCat:    "",
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code)
			if err.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", err.Message, tt.wantMsg)
			}
			if err.Category != tt.wantCat {
				t.Errorf("Category = %q, want %q", err.Category, tt.wantCat)
			}
			if err.Code != tt.code {
				t.Errorf("Code = %q, want %q", err.Code, tt.code)
			}
			if got := err.HTTPStatus(); got != tt.wantStatus {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.wantStatus)
			}
		})
	}
}

func TestKeeperError_Error(t *testing.T) {
	err := New("P001")
	if got, want := err.Error(), "P001: Page not found"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	err.WithDetail("/users")
	if got, want := err.Error(), "P001: Page not found: /users"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	plain := &KeeperError{Message: "test error"}
	if plain.Error() != "test error" {
		t.Errorf("Error() = %q, want %q", plain.Error(), "test error")
	}
}

func TestFromError(t *testing.T) {
	if FromError(nil, "P001") != nil {
		t.Error("FromError(nil, ...) should return nil")
	}

	ke := New("P002")
	if FromError(ke, "P001") != ke {
		t.Error("FromError should return KeeperError as-is")
	}
	if FromError(fmt.Errorf("handler: %w", ke), "P001") != ke {
		t.Error("FromError should unwrap to an existing KeeperError")
	}

	sentinel := stderrors.New("boom")
	result := FromError(sentinel, "P099")
	if result.Wrapped != sentinel {
		t.Error("standard error should be wrapped")
	}
	if result.Detail != "boom" {
		t.Errorf("Detail = %q, want wrapped message", result.Detail)
	}
	if !stderrors.Is(result, sentinel) {
		t.Error("errors.Is should see through KeeperError")
	}
}

func TestFormat(t *testing.T) {
	DisableColors()
	defer EnableColors()

	err := New("P001").
		WithDetail("no open page for /users").
		WithSuggestion("Refresh the tab list")

	formatted := err.Format()
	for _, want := range []string{"ERROR P001: Page not found", "no open page for /users", "Hint: Refresh the tab list", "category: registry"} {
		if !strings.Contains(formatted, want) {
			t.Errorf("Format() missing %q in:\n%s", want, formatted)
		}
	}
	if strings.Contains(formatted, "\033[") {
		t.Error("Format() should not contain ANSI codes when colors are disabled")
	}
}

func TestFormatCompact(t *testing.T) {
	err := New("C122").WithDetail("registry.home must start with /")
	want := "C122: Invalid configuration value (registry.home must start with /)"
	if got := err.FormatCompact(); got != want {
		t.Errorf("FormatCompact() = %q, want %q", got, want)
	}
}

func TestBody(t *testing.T) {
	body := New("P011").WithDetail("path contains backslash").Body()
	if body.Code != "P011" || body.Category != CategoryRequest {
		t.Errorf("unexpected body: %+v", body)
	}
	if body.Detail != "path contains backslash" {
		t.Errorf("Detail = %q", body.Detail)
	}
}

func TestFprint(t *testing.T) {
	DisableColors()
	defer EnableColors()

	var buf bytes.Buffer
	Fprint(&buf, stderrors.New("plain failure"))
	if !strings.Contains(buf.String(), "ERROR: plain failure") {
		t.Errorf("unexpected output %q", buf.String())
	}

	buf.Reset()
	Warn(&buf, "16 pages open")
	if buf.String() != "warning: 16 pages open\n" {
		t.Errorf("unexpected warning %q", buf.String())
	}
}

func TestWrapText(t *testing.T) {
	lines := wrapText(strings.Repeat("word ", 30), 20)
	for _, l := range lines {
		if len(l) > 20 {
			t.Errorf("line %q exceeds width", l)
		}
	}
	if wrapText("", 10) != nil {
		t.Error("wrapText of empty string should be nil")
	}
}
