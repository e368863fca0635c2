// Package errors provides coded, human-readable errors for the pagekeeper
// command line and HTTP surfaces.
//
// Library packages (pages, session, identity) return plain typed errors so
// callers can use errors.Is and errors.As. The surfaces translate those into
// a KeeperError, which carries a stable code, a category, an HTTP status and
// an optional hint.
//
// # Error Codes
//
// Codes are grouped by category:
//   - P0xx: registry and session errors (page not found, identity collision)
//   - C1xx: configuration errors
//   - X1xx: CLI errors (replay scripts, arguments)
//
// # Usage
//
//	err := errors.New("P001").
//	    WithDetail("no open page for /users").
//	    WithSuggestion("Refresh the tab list; the tab was already closed")
//
//	fmt.Println(err.Format())
//	// Output:
//	// ERROR P001: Page not found
//	//
//	//   no open page for /users
//	//
//	//   Hint: Refresh the tab list; the tab was already closed
package errors
