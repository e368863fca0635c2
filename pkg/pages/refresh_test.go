package pages

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/vango-dev/pagekeeper/pkg/route"
)

func TestRefreshActiveTwoPhase(t *testing.T) {
	var reg *Registry
	var midMembership []string
	yields := 0

	reg, rec := newTestRegistry(t, Config{
		Yield: func(ctx context.Context) error {
			yields++
			if yields == 1 {
				midMembership = reg.Membership()
			}
			return nil
		},
	})
	navigate(t, reg, "/users", "/roles")
	before, _ := reg.Get("/roles")
	rec.reset()

	if err := reg.RefreshActive(context.Background()); err != nil {
		t.Fatal(err)
	}

	after, _ := reg.Get("/roles")
	if after.CacheKey != before.CacheKey {
		t.Errorf("cache key changed: %q -> %q", before.CacheKey, after.CacheKey)
	}
	if after.MountKey == before.MountKey {
		t.Errorf("mount key unchanged: %q", after.MountKey)
	}
	if after.Epoch != before.Epoch+1 {
		t.Errorf("epoch = %d, want %d", after.Epoch, before.Epoch+1)
	}
	if yields != 2 {
		t.Errorf("yields = %d, want 2", yields)
	}
	if slices.Contains(midMembership, before.CacheKey) {
		t.Errorf("membership during refresh = %v, key should be absent", midMembership)
	}
	if got, want := reg.Membership(), []string{"Page-users", "Page-roles"}; !slices.Equal(got, want) {
		t.Errorf("Membership() = %v, want %v", got, want)
	}

	batches := rec.all()
	if len(batches) != 2 {
		t.Fatalf("got %d batches, want 2", len(batches))
	}
	if got, want := eventTypes(batches[0]), []EventType{EventRefresh, EventUncache}; !slices.Equal(got, want) {
		t.Errorf("phase one = %v, want %v", got, want)
	}
	if got, want := eventTypes(batches[1]), []EventType{EventCache}; !slices.Equal(got, want) {
		t.Errorf("phase two = %v, want %v", got, want)
	}
	if batches[0].Op != OpRefresh || batches[1].Op != OpRefreshComplete {
		t.Errorf("ops = %q, %q", batches[0].Op, batches[1].Op)
	}
}

func TestRefreshActiveNoActivePage(t *testing.T) {
	reg, rec := newTestRegistry(t, Config{})
	if err := reg.RefreshActive(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(rec.all()) != 0 {
		t.Error("refresh with no active page emitted a batch")
	}
}

func TestRefreshIneligiblePage(t *testing.T) {
	reg, rec := newTestRegistry(t, Config{})
	if err := reg.HandleNavigation(route.Target{FullPath: "/report", Meta: route.Meta{NoCache: true}}); err != nil {
		t.Fatal(err)
	}
	rec.reset()

	if err := reg.RefreshPage(context.Background(), "/report"); err != nil {
		t.Fatal(err)
	}
	batches := rec.all()
	if len(batches) != 1 {
		t.Fatalf("got %d batches, want 1", len(batches))
	}
	if got, want := eventTypes(batches[0]), []EventType{EventRefresh}; !slices.Equal(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
	p, _ := reg.Get("/report")
	if p.Epoch != 1 {
		t.Errorf("epoch = %d", p.Epoch)
	}
}

func TestRefreshPageNotFound(t *testing.T) {
	reg, _ := newTestRegistry(t, Config{})
	err := reg.RefreshPage(context.Background(), "/missing")
	if !errors.Is(err, ErrPageNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestBeginRefreshInProgress(t *testing.T) {
	reg, _ := newTestRegistry(t, Config{})
	navigate(t, reg, "/users")

	rf, err := reg.BeginRefresh("/users")
	if err != nil {
		t.Fatal(err)
	}
	if !rf.Evicted() || rf.FullPath() != "/users" || rf.Epoch() != 1 {
		t.Errorf("refresh = %+v", rf)
	}
	if _, err := reg.BeginRefresh("/users"); !errors.Is(err, ErrRefreshInProgress) {
		t.Fatalf("second begin: err = %v", err)
	}

	rf.Complete()
	rf.Complete()
	if !reg.IsMember("Page-users") {
		t.Error("key not restored")
	}
	if _, err := reg.BeginRefresh("/users"); err != nil {
		t.Errorf("begin after complete: %v", err)
	}
}

func TestRefreshCompleteAfterClose(t *testing.T) {
	reg, rec := newTestRegistry(t, Config{})
	navigate(t, reg, "/users")

	rf, err := reg.BeginRefresh("/users")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := reg.ClosePage("/users"); err != nil {
		t.Fatal(err)
	}
	rec.reset()

	rf.Complete()
	if reg.IsMember("Page-users") {
		t.Error("closed page rejoined membership")
	}
	if len(rec.all()) != 0 {
		t.Error("stale complete emitted a batch")
	}

	// Reopening gets a fresh page that a stale handle cannot touch.
	navigate(t, reg, "/users")
	rf.Complete()
	if p, _ := reg.Get("/users"); p.Epoch != 0 {
		t.Errorf("reopened epoch = %d", p.Epoch)
	}
}

func TestRefreshCompleteAfterCacheDisabled(t *testing.T) {
	reg, _ := newTestRegistry(t, Config{})
	navigate(t, reg, "/users")

	rf, err := reg.BeginRefresh("/users")
	if err != nil {
		t.Fatal(err)
	}
	if err := reg.SetCacheEligible("/users", false); err != nil {
		t.Fatal(err)
	}
	rf.Complete()
	if reg.IsMember("Page-users") {
		t.Error("ineligible page rejoined membership")
	}
}

func TestRefreshPageYieldError(t *testing.T) {
	reg, _ := newTestRegistry(t, Config{})
	navigate(t, reg, "/users")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := reg.RefreshPage(ctx, "/users")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if !reg.IsMember("Page-users") {
		t.Error("membership not restored after yield error")
	}
}

func TestRefreshKeepsDescriptor(t *testing.T) {
	reg, _ := newTestRegistry(t, Config{})
	table := NewDescriptorTable(func(p Page) Descriptor {
		return Descriptor{Component: p.Name, Props: map[string]any{"path": p.FullPath}}
	})
	reg.Subscribe(table)

	if err := reg.HandleNavigation(route.Target{FullPath: "/users?tab=2", Name: "Users"}); err != nil {
		t.Fatal(err)
	}
	key := "Page-users-tab-2"

	d, ok := table.Lookup(key)
	if !ok || d.Key != key || d.Component != "Users" || d.Props["path"] != "/users?tab=2" {
		t.Fatalf("descriptor = %+v, %v", d, ok)
	}

	rf, err := reg.BeginRefresh("/users?tab=2")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := table.Lookup(key); !ok {
		t.Error("descriptor dropped during refresh")
	}
	rf.Complete()

	if _, err := reg.ClosePage("/users?tab=2"); err != nil {
		t.Fatal(err)
	}
	if _, ok := table.Lookup(key); ok {
		t.Error("descriptor survived close")
	}
	if table.Len() != 0 {
		t.Errorf("Len() = %d", table.Len())
	}
}

func TestDescriptorTableNilBuilder(t *testing.T) {
	table := NewDescriptorTable(nil)
	table.Observe(Batch{Events: []Event{{Type: EventAdd, CacheKey: "Page-a"}}})
	d, ok := table.Lookup("Page-a")
	if !ok || d.Key != "Page-a" || d.Component != nil {
		t.Errorf("descriptor = %+v, %v", d, ok)
	}
}
