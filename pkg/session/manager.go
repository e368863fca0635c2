package session

import (
	"container/list"
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/vango-dev/pagekeeper/pkg/pages"
)

// Manager owns one page registry per client session.
// It bounds memory with a session cap and an idle timeout.
type Manager struct {
	mu sync.RWMutex

	// All sessions by ID
	sessions map[string]*Entry

	// Sessions in LRU order (front = most recently accessed)
	lru      *list.List
	lruIndex map[string]*list.Element

	config ManagerConfig
	logger *slog.Logger

	// Random source (for EvictionRandom); overrideable for tests.
	randIntn func(n int) int

	// Clock; overrideable for tests.
	now func() time.Time

	// Lifecycle
	done    chan struct{}
	stopped bool
}

// Entry is a client session and the registry it owns.
type Entry struct {
	// ID is the unique session identifier.
	ID string

	// Registry tracks the session's open pages.
	Registry *pages.Registry

	// CreatedAt is when the session was created.
	CreatedAt time.Time

	lastActive atomic.Int64
	closed     chan struct{}
	closeOnce  sync.Once
}

// LastActive returns when the session was last accessed.
func (e *Entry) LastActive() time.Time {
	return time.Unix(0, e.lastActive.Load())
}

// Done is closed when the session is removed from its manager.
func (e *Entry) Done() <-chan struct{} {
	return e.closed
}

func (e *Entry) touch(now time.Time) {
	e.lastActive.Store(now.UnixNano())
}

// close drops every page so observers see the removals, then signals Done.
func (e *Entry) close() {
	e.closeOnce.Do(func() {
		e.Registry.Reset()
		close(e.closed)
	})
}

// ManagerConfig configures the session manager.
type ManagerConfig struct {
	// MaxSessions is the maximum number of live sessions before eviction.
	// Default: 10000.
	MaxSessions int

	// IdleTimeout is how long a session survives without access.
	// Zero disables idle expiry. DefaultManagerConfig sets 30 minutes.
	IdleTimeout time.Duration

	// CleanupInterval is how often to sweep idle sessions.
	// Default: 1 minute.
	CleanupInterval time.Duration

	// EvictionPolicy determines which session goes when MaxSessions is
	// exceeded.
	// Default: EvictionLRU.
	EvictionPolicy EvictionPolicy

	// Pages is the template for every session's registry. Its Observers
	// are shared by all sessions.
	Pages pages.Config
}

// EvictionPolicy determines which sessions are evicted first.
type EvictionPolicy int

const (
	// EvictionLRU evicts the least recently accessed sessions first.
	EvictionLRU EvictionPolicy = iota

	// EvictionOldest evicts the oldest sessions first (by creation time).
	EvictionOldest

	// EvictionRandom evicts sessions randomly (faster but less fair).
	EvictionRandom
)

// String returns the policy name used in configuration and logs.
func (p EvictionPolicy) String() string {
	switch p {
	case EvictionLRU:
		return "lru"
	case EvictionOldest:
		return "oldest"
	case EvictionRandom:
		return "random"
	default:
		return "unknown"
	}
}

// ParseEvictionPolicy maps a configuration name to a policy.
func ParseEvictionPolicy(name string) (EvictionPolicy, error) {
	switch name {
	case "", "lru":
		return EvictionLRU, nil
	case "oldest":
		return EvictionOldest, nil
	case "random":
		return EvictionRandom, nil
	default:
		return EvictionLRU, errors.New("unknown eviction policy: " + name)
	}
}

// DefaultManagerConfig returns a ManagerConfig with sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		MaxSessions:     10000,
		IdleTimeout:     30 * time.Minute,
		CleanupInterval: 1 * time.Minute,
		EvictionPolicy:  EvictionLRU,
	}
}

// Error types for session management.
var (
	// ErrSessionNotFound is returned when a session doesn't exist.
	ErrSessionNotFound = errors.New("session not found")

	// ErrManagerStopped is returned when operations are attempted on a stopped manager.
	ErrManagerStopped = errors.New("session manager is stopped")
)

// NewManager creates a new session manager.
func NewManager(config ManagerConfig, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultManagerConfig()
	if config.MaxSessions <= 0 {
		config.MaxSessions = defaults.MaxSessions
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = defaults.CleanupInterval
	}

	m := &Manager{
		sessions: make(map[string]*Entry),
		lru:      list.New(),
		lruIndex: make(map[string]*list.Element),
		config:   config,
		logger:   logger.With("component", "session_manager"),
		randIntn: rand.Intn,
		now:      time.Now,
		done:     make(chan struct{}),
	}

	// Start background goroutines
	go m.cleanupLoop()

	return m
}

// Create starts a new session with an empty registry.
func (m *Manager) Create() (*Entry, error) {
	id := uuid.NewString()

	pagesConfig := m.config.Pages
	pagesConfig.Observers = slices.Clone(pagesConfig.Observers)
	base := pagesConfig.Logger
	if base == nil {
		base = m.logger
	}
	pagesConfig.Logger = base.With("session_id", id)

	now := m.now()
	e := &Entry{
		ID:        id,
		Registry:  pages.New(pagesConfig),
		CreatedAt: now,
		closed:    make(chan struct{}),
	}
	e.touch(now)

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil, ErrManagerStopped
	}

	m.sessions[id] = e
	m.lruIndex[id] = m.lru.PushFront(id)

	var evicted []*Entry
	for m.lru.Len() > m.config.MaxSessions {
		victim := m.evictOneLocked(id)
		if victim == nil {
			break
		}
		evicted = append(evicted, victim)
	}
	count := len(m.sessions)
	m.mu.Unlock()

	for _, v := range evicted {
		v.close()
	}

	m.logger.Debug("session created",
		"session_id", id,
		"session_count", count)

	return e, nil
}

// Get retrieves a session by ID and marks it as recently used.
func (m *Manager) Get(sessionID string) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return nil, ErrManagerStopped
	}
	e, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	m.touchLocked(e)
	return e, nil
}

// Touch updates the last active time for a session.
func (m *Manager) Touch(sessionID string) error {
	_, err := m.Get(sessionID)
	return err
}

func (m *Manager) touchLocked(e *Entry) {
	e.touch(m.now())
	if elem, ok := m.lruIndex[e.ID]; ok {
		m.lru.MoveToFront(elem)
	}
}

// Delete removes a session and drops its pages.
func (m *Manager) Delete(sessionID string) error {
	m.mu.Lock()
	e := m.removeSessionLocked(sessionID)
	m.mu.Unlock()

	if e == nil {
		return ErrSessionNotFound
	}
	e.close()
	return nil
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// removeSessionLocked unlinks a session (must be called with lock held).
// The caller closes the returned entry after releasing the lock.
func (m *Manager) removeSessionLocked(sessionID string) *Entry {
	e, exists := m.sessions[sessionID]
	if !exists {
		return nil
	}

	delete(m.sessions, sessionID)
	if elem, ok := m.lruIndex[sessionID]; ok {
		m.lru.Remove(elem)
		delete(m.lruIndex, sessionID)
	}

	m.logger.Debug("session removed",
		"session_id", sessionID,
		"remaining", len(m.sessions))

	return e
}

// evictOneLocked evicts one session according to the configured
// EvictionPolicy, never the one named by keep (must be called with lock held).
func (m *Manager) evictOneLocked(keep string) *Entry {
	var candidates []string
	for e := m.lru.Back(); e != nil; e = e.Prev() {
		if id := e.Value.(string); id != keep {
			candidates = append(candidates, id)
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	var sessionID string

	switch m.config.EvictionPolicy {
	case EvictionOldest:
		oldest := candidates[0]
		for _, id := range candidates[1:] {
			if m.sessions[id].CreatedAt.Before(m.sessions[oldest].CreatedAt) {
				oldest = id
			}
		}
		sessionID = oldest
	case EvictionRandom:
		// Deterministic in tests via randIntn override.
		intn := m.randIntn
		if intn == nil {
			intn = rand.Intn
		}
		idx := intn(len(candidates))
		if idx < 0 {
			idx = 0
		} else if idx >= len(candidates) {
			idx = len(candidates) - 1
		}
		sessionID = candidates[idx]
	default:
		// Least recently used is at the back.
		sessionID = candidates[0]
	}

	m.logger.Debug("evicted session",
		"session_id", sessionID,
		"policy", m.config.EvictionPolicy.String(),
		"reason", "session_limit_exceeded")

	return m.removeSessionLocked(sessionID)
}

// cleanupLoop periodically removes idle sessions.
func (m *Manager) cleanupLoop() {
	ticker := time.NewTicker(m.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.cleanupExpired()
		case <-m.done:
			return
		}
	}
}

// cleanupExpired removes sessions idle for longer than IdleTimeout.
func (m *Manager) cleanupExpired() int {
	if m.config.IdleTimeout <= 0 {
		return 0
	}

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return 0
	}

	now := m.now()
	var expired []*Entry

	// Walk from the least recently used end; stop at the first fresh one.
	for elem := m.lru.Back(); elem != nil; {
		prev := elem.Prev()
		e := m.sessions[elem.Value.(string)]
		if now.Sub(e.LastActive()) <= m.config.IdleTimeout {
			break
		}
		expired = append(expired, m.removeSessionLocked(e.ID))
		elem = prev
	}
	remaining := len(m.sessions)
	m.mu.Unlock()

	for _, e := range expired {
		e.close()
	}

	if len(expired) > 0 {
		m.logger.Debug("cleaned up idle sessions",
			"count", len(expired),
			"remaining", remaining)
	}
	return len(expired)
}

// Shutdown stops the cleanup loop and drops every session. Closing a
// session does not block, so every session is closed even when ctx is
// already done.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()

	if m.stopped {
		m.mu.Unlock()
		return nil
	}

	m.stopped = true
	close(m.done)

	entries := make([]*Entry, 0, len(m.sessions))
	for id := range m.sessions {
		entries = append(entries, m.removeSessionLocked(id))
	}
	m.mu.Unlock()

	for _, e := range entries {
		e.close()
	}

	m.logger.Info("session manager stopped", "closed", len(entries))
	return nil
}

// Stats returns manager statistics.
func (m *Manager) Stats() ManagerStats {
	m.mu.RLock()
	entries := make([]*Entry, 0, len(m.sessions))
	for _, e := range m.sessions {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	stats := ManagerStats{Sessions: len(entries)}
	for _, e := range entries {
		stats.OpenPages += e.Registry.Len()
	}
	return stats
}

// ManagerStats contains session manager statistics.
type ManagerStats struct {
	// Sessions is the number of live sessions.
	Sessions int `json:"sessions"`

	// OpenPages is the number of open pages across all sessions.
	OpenPages int `json:"openPages"`
}
