package errors

import "net/http"

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category Category
	Message  string
	Status   int
}

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// Registry and session errors (P001-P099)

	"P001": {
		Category: CategoryRegistry,
		Message:  "Page not found",
		Status:   http.StatusNotFound,
	},
	"P002": {
		Category: CategoryRegistry,
		Message:  "Identity collision",
		Status:   http.StatusConflict,
	},
	"P003": {
		Category: CategoryRegistry,
		Message:  "Refresh already in progress",
		Status:   http.StatusConflict,
	},
	"P010": {
		Category: CategorySession,
		Message:  "Session not found",
		Status:   http.StatusNotFound,
	},
	"P011": {
		Category: CategoryRequest,
		Message:  "Invalid navigation target",
		Status:   http.StatusBadRequest,
	},
	"P012": {
		Category: CategorySession,
		Message:  "Session manager unavailable",
		Status:   http.StatusServiceUnavailable,
	},
	"P099": {
		Category: CategoryRegistry,
		Message:  "Internal registry error",
		Status:   http.StatusInternalServerError,
	},

	// Configuration errors (C120-C139)

	"C120": {
		Category: CategoryConfig,
		Message:  "Configuration parse error",
	},
	"C121": {
		Category: CategoryConfig,
		Message:  "Configuration file not found",
	},
	"C122": {
		Category: CategoryConfig,
		Message:  "Invalid configuration value",
	},

	// CLI errors (X130-X149)

	"X130": {
		Category: CategoryCLI,
		Message:  "Replay script error",
	},
	"X131": {
		Category: CategoryCLI,
		Message:  "Invalid arguments",
	},
}

// Lookup returns the template registered for code.
func Lookup(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}
