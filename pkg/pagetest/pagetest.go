package pagetest

import (
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"

	"github.com/vango-dev/pagekeeper/pkg/pages"
	"github.com/vango-dev/pagekeeper/pkg/route"
)

// TargetBuilder allows fluent construction of navigation targets.
type TargetBuilder struct {
	target route.Target
}

// NewTarget starts a target for fullPath.
//
// Example:
//
//	target := pagetest.NewTarget("/users").WithName("Users").Build()
func NewTarget(fullPath string) *TargetBuilder {
	return &TargetBuilder{target: route.Target{FullPath: fullPath}}
}

// WithName sets the route name.
func (b *TargetBuilder) WithName(name string) *TargetBuilder {
	b.target.Name = name
	return b
}

// WithTitle sets the meta title.
func (b *TargetBuilder) WithTitle(title string) *TargetBuilder {
	b.target.Meta.Title = title
	return b
}

// WithExtra sets a non-canonical meta key.
func (b *TargetBuilder) WithExtra(key string, val any) *TargetBuilder {
	if b.target.Meta.Extra == nil {
		b.target.Meta.Extra = make(map[string]any)
	}
	b.target.Meta.Extra[key] = val
	return b
}

// NoCache marks the target as not cache-eligible.
func (b *TargetBuilder) NoCache() *TargetBuilder {
	b.target.Meta.NoCache = true
	return b
}

// Hidden marks the target as hidden.
func (b *TargetBuilder) Hidden() *TargetBuilder {
	b.target.Meta.Hidden = true
	return b
}

// Pinned marks the target as pinned.
func (b *TargetBuilder) Pinned() *TargetBuilder {
	b.target.Meta.Pinned = true
	return b
}

// Build returns the target.
func (b *TargetBuilder) Build() route.Target {
	return b.target
}

// Recorder is an Observer that keeps every batch.
type Recorder struct {
	mu      sync.Mutex
	batches []pages.Batch
}

// Observe implements pages.Observer.
func (r *Recorder) Observe(b pages.Batch) {
	r.mu.Lock()
	r.batches = append(r.batches, b)
	r.mu.Unlock()
}

// Batches returns a copy of the recorded batches.
func (r *Recorder) Batches() []pages.Batch {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.batches)
}

// Last returns the most recent batch, or the zero Batch.
func (r *Recorder) Last() pages.Batch {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.batches) == 0 {
		return pages.Batch{}
	}
	return r.batches[len(r.batches)-1]
}

// Events flattens every recorded event type in order.
func (r *Recorder) Events() []pages.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []pages.EventType
	for _, b := range r.batches {
		for _, e := range b.Events {
			out = append(out, e.Type)
		}
	}
	return out
}

// Reset forgets every recorded batch.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.batches = nil
	r.mu.Unlock()
}

// NewRegistry builds a registry with a discarding logger and a subscribed
// Recorder. Options are applied to the config before construction.
func NewRegistry(t testing.TB, opts ...func(*pages.Config)) (*pages.Registry, *Recorder) {
	t.Helper()
	config := pages.Config{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&config)
	}
	rec := &Recorder{}
	config.Observers = append(config.Observers, rec)
	return pages.New(config), rec
}

// Navigate opens each fullPath in order, failing the test on error.
func Navigate(t testing.TB, reg *pages.Registry, fullPaths ...string) {
	t.Helper()
	for _, fp := range fullPaths {
		if err := reg.HandleNavigation(route.Target{FullPath: fp}); err != nil {
			t.Fatalf("HandleNavigation(%q): %v", fp, err)
		}
	}
}

// ExpectPages asserts the open pages, in order.
func ExpectPages(t testing.TB, reg *pages.Registry, want ...string) {
	t.Helper()
	var got []string
	for _, p := range reg.Pages() {
		got = append(got, p.FullPath)
	}
	if !slices.Equal(got, want) {
		t.Errorf("expected open pages %v, got %v", want, got)
	}
}

// ExpectMembership asserts the keep-alive membership, in page order.
func ExpectMembership(t testing.TB, reg *pages.Registry, want ...string) {
	t.Helper()
	if got := reg.Membership(); !slices.Equal(got, want) {
		t.Errorf("expected membership %v, got %v", want, got)
	}
}

// ExpectActive asserts the active page. An empty want asserts no page is
// active.
func ExpectActive(t testing.TB, reg *pages.Registry, want string) {
	t.Helper()
	p, ok := reg.Active()
	switch {
	case want == "" && ok:
		t.Errorf("expected no active page, got %q", p.FullPath)
	case want != "" && p.FullPath != want:
		t.Errorf("expected active page %q, got %q", want, p.FullPath)
	}
}

// ExpectCommand asserts a close result navigates to want. An empty want
// asserts no command.
func ExpectCommand(t testing.TB, cmd *pages.Command, want string) {
	t.Helper()
	switch {
	case want == "" && cmd != nil:
		t.Errorf("expected no navigation, got %q", cmd.FullPath)
	case want != "" && cmd == nil:
		t.Errorf("expected navigation to %q, got none", want)
	case want != "" && cmd.FullPath != want:
		t.Errorf("expected navigation to %q, got %q", want, cmd.FullPath)
	}
}
