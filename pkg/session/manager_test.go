package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vango-dev/pagekeeper/pkg/pages"
	"github.com/vango-dev/pagekeeper/pkg/route"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() ManagerConfig {
	config := DefaultManagerConfig()
	config.CleanupInterval = 1 * time.Hour // Disable cleanup for tests
	return config
}

// fakeClock is advanced manually.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// TestManagerCreate tests session creation.
func TestManagerCreate(t *testing.T) {
	manager := NewManager(testConfig(), testLogger())
	defer manager.Shutdown(context.Background())

	e, err := manager.Create()
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := uuid.Parse(e.ID); err != nil {
		t.Errorf("ID %q is not a uuid: %v", e.ID, err)
	}
	if e.Registry == nil {
		t.Fatal("Registry is nil")
	}

	got, err := manager.Get(e.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != e {
		t.Error("Get returned a different entry")
	}
	if manager.Count() != 1 {
		t.Errorf("Count() = %d", manager.Count())
	}
}

// TestManagerSessionsAreIsolated tests that sessions have separate registries.
func TestManagerSessionsAreIsolated(t *testing.T) {
	manager := NewManager(testConfig(), testLogger())
	defer manager.Shutdown(context.Background())

	a, _ := manager.Create()
	b, _ := manager.Create()

	if err := a.Registry.HandleNavigation(route.Target{FullPath: "/users"}); err != nil {
		t.Fatal(err)
	}
	if b.Registry.Has("/users") {
		t.Error("page leaked into another session")
	}
	if stats := manager.Stats(); stats.Sessions != 2 || stats.OpenPages != 1 {
		t.Errorf("Stats() = %+v", stats)
	}
}

// TestManagerDelete tests explicit removal.
func TestManagerDelete(t *testing.T) {
	manager := NewManager(testConfig(), testLogger())
	defer manager.Shutdown(context.Background())

	e, _ := manager.Create()
	if err := e.Registry.HandleNavigation(route.Target{FullPath: "/users"}); err != nil {
		t.Fatal(err)
	}

	if err := manager.Delete(e.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	select {
	case <-e.Done():
	default:
		t.Error("Done not closed")
	}
	if e.Registry.Len() != 0 {
		t.Error("registry not reset on delete")
	}
	if _, err := manager.Get(e.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Get after delete: %v", err)
	}
	if err := manager.Delete(e.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("second Delete: %v", err)
	}
}

// TestManagerSharedObservers tests that template observers see every session.
func TestManagerSharedObservers(t *testing.T) {
	var mu sync.Mutex
	removed := 0
	config := testConfig()
	config.Pages.Observers = []pages.Observer{pages.ObserverFunc(func(b pages.Batch) {
		mu.Lock()
		defer mu.Unlock()
		for _, e := range b.Events {
			if e.Type == pages.EventRemove {
				removed++
			}
		}
	})}
	manager := NewManager(config, testLogger())
	defer manager.Shutdown(context.Background())

	for i := 0; i < 3; i++ {
		e, _ := manager.Create()
		if err := e.Registry.HandleNavigation(route.Target{FullPath: "/a"}); err != nil {
			t.Fatal(err)
		}
	}
	if err := manager.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	if removed != 3 {
		t.Errorf("observer saw %d removals, want 3", removed)
	}
}

// TestManagerEviction tests the session cap under each policy.
func TestManagerEviction(t *testing.T) {
	tests := []struct {
		name    string
		policy  EvictionPolicy
		touch   int // index touched after creation, -1 for none
		evicted int
	}{
		{"lru", EvictionLRU, -1, 0},
		{"lru after touch", EvictionLRU, 0, 1},
		{"oldest ignores touch", EvictionOldest, 0, 0},
		{"random", EvictionRandom, -1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := testConfig()
			config.MaxSessions = 2
			config.EvictionPolicy = tt.policy
			manager := NewManager(config, testLogger())
			defer manager.Shutdown(context.Background())

			clock := &fakeClock{t: time.Unix(1000, 0)}
			manager.now = clock.Now
			// Candidates are ordered least recently used first.
			manager.randIntn = func(n int) int { return 1 }

			var entries []*Entry
			for i := 0; i < 2; i++ {
				e, err := manager.Create()
				if err != nil {
					t.Fatal(err)
				}
				entries = append(entries, e)
				clock.Advance(time.Second)
			}
			if tt.touch >= 0 {
				if err := manager.Touch(entries[tt.touch].ID); err != nil {
					t.Fatal(err)
				}
			}

			third, err := manager.Create()
			if err != nil {
				t.Fatal(err)
			}
			if manager.Count() != 2 {
				t.Fatalf("Count() = %d, want 2", manager.Count())
			}
			if _, err := manager.Get(third.ID); err != nil {
				t.Error("newest session was evicted")
			}
			victim := entries[tt.evicted]
			if _, err := manager.Get(victim.ID); !errors.Is(err, ErrSessionNotFound) {
				t.Errorf("session %d should have been evicted", tt.evicted)
			}
			select {
			case <-victim.Done():
			default:
				t.Error("evicted session Done not closed")
			}
		})
	}
}

// TestManagerIdleCleanup tests idle expiry.
func TestManagerIdleCleanup(t *testing.T) {
	config := testConfig()
	config.IdleTimeout = time.Minute
	manager := NewManager(config, testLogger())
	defer manager.Shutdown(context.Background())

	clock := &fakeClock{t: time.Unix(1000, 0)}
	manager.now = clock.Now

	stale, _ := manager.Create()
	fresh, _ := manager.Create()

	clock.Advance(45 * time.Second)
	if err := manager.Touch(fresh.ID); err != nil {
		t.Fatal(err)
	}
	clock.Advance(30 * time.Second)

	if n := manager.cleanupExpired(); n != 1 {
		t.Fatalf("cleanupExpired() = %d, want 1", n)
	}
	if _, err := manager.Get(stale.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Error("idle session survived cleanup")
	}
	if _, err := manager.Get(fresh.ID); err != nil {
		t.Error("active session was cleaned up")
	}
}

// TestManagerIdleCleanupDisabled tests that zero IdleTimeout keeps sessions.
func TestManagerIdleCleanupDisabled(t *testing.T) {
	config := testConfig()
	config.IdleTimeout = 0
	manager := NewManager(config, testLogger())
	defer manager.Shutdown(context.Background())

	clock := &fakeClock{t: time.Unix(1000, 0)}
	manager.now = clock.Now
	manager.Create()
	clock.Advance(24 * time.Hour)

	if n := manager.cleanupExpired(); n != 0 {
		t.Errorf("cleanupExpired() = %d, want 0", n)
	}
}

// TestManagerStopped tests operations after Shutdown.
func TestManagerStopped(t *testing.T) {
	manager := NewManager(testConfig(), testLogger())
	if err := manager.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := manager.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown: %v", err)
	}
	if _, err := manager.Create(); !errors.Is(err, ErrManagerStopped) {
		t.Errorf("Create after Shutdown: %v", err)
	}
	if _, err := manager.Get("x"); !errors.Is(err, ErrManagerStopped) {
		t.Errorf("Get after Shutdown: %v", err)
	}
}

func TestManagerShutdownCancelledContext(t *testing.T) {
	manager := NewManager(testConfig(), testLogger())
	var entries []*Entry
	for i := 0; i < 3; i++ {
		e, err := manager.Create()
		if err != nil {
			t.Fatal(err)
		}
		if err := e.Registry.HandleNavigation(route.Target{FullPath: "/a"}); err != nil {
			t.Fatal(err)
		}
		entries = append(entries, e)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := manager.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	if n := manager.Count(); n != 0 {
		t.Errorf("Count() = %d after Shutdown", n)
	}
	for i, e := range entries {
		select {
		case <-e.Done():
		default:
			t.Fatalf("session %d not closed", i)
		}
		if n := len(e.Registry.Pages()); n != 0 {
			t.Errorf("session %d still has %d pages", i, n)
		}
	}
}

func TestParseEvictionPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    EvictionPolicy
		wantErr bool
	}{
		{"", EvictionLRU, false},
		{"lru", EvictionLRU, false},
		{"oldest", EvictionOldest, false},
		{"random", EvictionRandom, false},
		{"fifo", EvictionLRU, true},
	}
	for _, tt := range tests {
		got, err := ParseEvictionPolicy(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseEvictionPolicy(%q) = %v, %v", tt.in, got, err)
		}
		if err == nil && tt.in != "" && got.String() != tt.in {
			t.Errorf("String() = %q, want %q", got.String(), tt.in)
		}
	}
}
