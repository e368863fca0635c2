// Package pagetest provides testing helpers for code built on a page
// registry.
//
// # Quick Start
//
//	func TestTabs(t *testing.T) {
//	    reg, rec := pagetest.NewRegistry(t)
//	    pagetest.Navigate(t, reg, "/users", "/roles")
//
//	    pagetest.ExpectPages(t, reg, "/users", "/roles")
//	    pagetest.ExpectActive(t, reg, "/roles")
//	    if !rec.Last().Has(pages.EventActivate) {
//	        t.Error("expected activate")
//	    }
//	}
//
// # Fluent Target Builder
//
//	target := pagetest.NewTarget("/users?id=1").
//	    WithName("Users").
//	    WithTitle("People").
//	    NoCache().
//	    Build()
//
// # Recorder
//
// Recorder is an Observer that keeps every batch it receives. It is safe
// to read from a different goroutine than the one mutating the registry.
package pagetest
