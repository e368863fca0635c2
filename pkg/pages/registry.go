package pages

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/vango-dev/pagekeeper/pkg/identity"
	"github.com/vango-dev/pagekeeper/pkg/resolve"
	"github.com/vango-dev/pagekeeper/pkg/route"
)

// DefaultWarnThreshold is the open-page count above which the registry logs
// a warning on every new page.
const DefaultWarnThreshold = 15

// DefaultSpecialNames are route names that never become tabs.
var DefaultSpecialNames = []string{"Index", "Login", "NotFound"}

// Config configures a Registry. The zero value is usable.
type Config struct {
	// Home is the navigation target when no page remains open.
	// Default: "/".
	Home string

	// SpecialNames are route names that are never registered.
	// Default: DefaultSpecialNames. Use an empty non-nil slice to disable.
	SpecialNames []string

	// Policy derives cache and mount keys. Default: identity.Default.
	Policy identity.Policy

	// Resolve picks the next page after the active one closes.
	// Default: resolve.Fallback.
	Resolve resolve.Func

	// WarnThreshold logs a warning when more pages than this are open.
	// Default: DefaultWarnThreshold. Negative disables the warning.
	WarnThreshold int

	// Yield is the synchronization point between the two phases of a
	// refresh. It runs after the cache key is removed and again after it is
	// restored. Default: returns ctx.Err().
	Yield func(ctx context.Context) error

	// Observers are subscribed at construction.
	Observers []Observer

	// Logger receives registry logs. Default: slog.Default().
	Logger *slog.Logger

	// Now is the clock used for OpenedAt. Default: time.Now.
	Now func() time.Time
}

func (c Config) withDefaults() Config {
	if c.Home == "" {
		c.Home = resolve.DefaultHome
	}
	if c.SpecialNames == nil {
		c.SpecialNames = DefaultSpecialNames
	}
	if c.Policy == nil {
		c.Policy = identity.Default
	}
	if c.Resolve == nil {
		c.Resolve = resolve.Fallback
	}
	if c.WarnThreshold == 0 {
		c.WarnThreshold = DefaultWarnThreshold
	}
	if c.Yield == nil {
		c.Yield = func(ctx context.Context) error { return ctx.Err() }
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Registry tracks open pages and their keep-alive membership.
// It is safe for concurrent use.
type Registry struct {
	mu sync.Mutex

	config Config
	logger *slog.Logger

	// Open fullPaths in insertion order (oldest first).
	order []string
	pages map[string]*Page

	// Cache key -> owning fullPath, for every open page.
	owners map[string]string

	// Cache keys currently allowed to stay mounted.
	members map[string]struct{}

	active     string
	refreshing map[string]*Refresh

	special map[string]struct{}

	// Observer bookkeeping. Stamped batches wait in pending until the
	// single delivering goroutine hands them out in seq order.
	seq        uint64
	observers  map[uint64]Observer
	nextObs    uint64
	pending    []delivery
	delivering bool
}

type delivery struct {
	batch   Batch
	targets []Observer
}

// New creates a registry.
func New(config Config) *Registry {
	config = config.withDefaults()

	r := &Registry{
		config:     config,
		logger:     config.Logger.With("component", "page_registry"),
		pages:      make(map[string]*Page),
		owners:     make(map[string]string),
		members:    make(map[string]struct{}),
		refreshing: make(map[string]*Refresh),
		special:    make(map[string]struct{}, len(config.SpecialNames)),
		observers:  make(map[uint64]Observer),
	}
	for _, name := range config.SpecialNames {
		r.special[name] = struct{}{}
	}
	for _, o := range config.Observers {
		r.Subscribe(o)
	}
	return r
}

// Config returns the effective configuration.
func (r *Registry) Config() Config {
	return r.config
}

// Subscribe registers o for future batches and returns a function that
// removes it.
func (r *Registry) Subscribe(o Observer) (unsubscribe func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.subscribeLocked(o)
}

// Watch subscribes o and returns the state it starts from. Every batch o
// receives was published after that state was taken.
func (r *Registry) Watch(o Observer) (State, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := State{
		Active:     r.active,
		Pages:      r.pagesLocked(),
		Membership: r.membershipLocked(),
	}
	return st, r.subscribeLocked(o)
}

func (r *Registry) subscribeLocked(o Observer) func() {
	id := r.nextObs
	r.nextObs++
	r.observers[id] = o

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.observers, id)
			r.mu.Unlock()
		})
	}
}

// =============================================================================
// Navigation
// =============================================================================

// Skips reports whether t is hidden or special and would never be
// registered.
func (r *Registry) Skips(t route.Target) bool {
	if t.Meta.Hidden {
		return true
	}
	_, ok := r.special[t.Name]
	return ok
}

// HandleNavigation records a completed navigation.
//
// Hidden and special targets are ignored. A target whose fullPath is already
// open only becomes active; its epoch and meta are left alone. Otherwise a
// new page is appended, joins the keep-alive membership when eligible, and
// becomes active.
//
// If the new page's cache key is owned by a different open page the call
// fails with *IdentityCollisionError and the registry is unchanged.
func (r *Registry) HandleNavigation(t route.Target) error {
	if t.FullPath == "" {
		return ErrInvalidTarget
	}
	if r.Skips(t) {
		return nil
	}

	r.mu.Lock()

	if p, ok := r.pages[t.FullPath]; ok {
		var events []Event
		if r.active != t.FullPath {
			r.active = t.FullPath
			events = append(events, r.event(EventActivate, p))
		}
		deliver := r.publishLocked(OpNavigate, events)
		r.mu.Unlock()
		deliver()
		return nil
	}

	key := r.config.Policy.CacheKey(t.FullPath)
	if owner, taken := r.owners[key]; taken {
		r.mu.Unlock()
		r.logger.Error("identity collision",
			"cache_key", key,
			"existing", owner,
			"incoming", t.FullPath,
			"policy", r.config.Policy.Name())
		return &IdentityCollisionError{Key: key, Existing: owner, Incoming: t.FullPath}
	}

	p := &Page{
		FullPath: t.FullPath,
		Path:     t.NormalizedPath(),
		Name:     t.Name,
		Meta:     t.Meta.Clone(),
		CacheKey: key,
		MountKey: r.config.Policy.MountKey(t.FullPath, 0),
		OpenedAt: r.config.Now(),
	}
	r.order = append(r.order, p.FullPath)
	r.pages[p.FullPath] = p
	r.owners[key] = p.FullPath

	events := []Event{r.event(EventAdd, p)}
	if p.CacheEligible() {
		r.members[key] = struct{}{}
		events = append(events, r.event(EventCache, p))
	}
	r.active = p.FullPath
	events = append(events, r.event(EventActivate, p))

	open := len(r.order)
	deliver := r.publishLocked(OpNavigate, events)
	r.mu.Unlock()
	deliver()

	r.logger.Debug("page opened", "full_path", p.FullPath, "cache_key", key, "open", open)
	if r.config.WarnThreshold > 0 && open > r.config.WarnThreshold {
		r.logger.Warn("many pages open, consider closing some", "open", open, "threshold", r.config.WarnThreshold)
	}
	return nil
}

// =============================================================================
// Closing
// =============================================================================

// ClosePage closes the page at fullPath.
//
// It returns *PageNotFoundError if the page is not open. When the closed
// page was active, the returned command names the page to activate next
// (the last remaining page in opening order, or Home); otherwise the
// command is nil.
func (r *Registry) ClosePage(fullPath string) (*Command, error) {
	r.mu.Lock()

	p, ok := r.pages[fullPath]
	if !ok {
		r.mu.Unlock()
		return nil, &PageNotFoundError{FullPath: fullPath}
	}

	wasActive := r.active == fullPath
	events := r.removeLocked([]*Page{p})

	var cmd *Command
	if wasActive {
		next := r.config.Resolve(slices.Clone(r.order), r.config.Home)
		cmd = &Command{FullPath: next}
		r.active = ""
		if np, open := r.pages[next]; open {
			r.active = next
			events = append(events, r.event(EventActivate, np))
		}
	}

	deliver := r.publishLocked(OpClose, events)
	r.mu.Unlock()
	deliver()

	r.logger.Debug("page closed", "full_path", fullPath, "was_active", wasActive)
	return cmd, nil
}

// CloseCurrent closes the active page. With no active page it returns
// *PageNotFoundError for the empty path.
func (r *Registry) CloseCurrent() (*Command, error) {
	r.mu.Lock()
	active := r.active
	r.mu.Unlock()
	return r.ClosePage(active)
}

// CloseOthers closes every page except the active one and pinned pages,
// as a single batch.
func (r *Registry) CloseOthers() {
	r.mu.Lock()

	var doomed []*Page
	for _, fp := range r.order {
		p := r.pages[fp]
		if fp == r.active || p.Pinned() {
			continue
		}
		doomed = append(doomed, p)
	}
	events := r.removeLocked(doomed)

	deliver := r.publishLocked(OpCloseOthers, events)
	r.mu.Unlock()
	deliver()

	if len(doomed) > 0 {
		r.logger.Debug("closed other pages", "closed", len(doomed))
	}
}

// CloseAll closes every unpinned page as a single batch and returns a
// command to Home. The active page is cleared even if it is pinned, since
// the caller is about to navigate Home.
func (r *Registry) CloseAll() *Command {
	r.mu.Lock()

	var doomed []*Page
	for _, fp := range r.order {
		if p := r.pages[fp]; !p.Pinned() {
			doomed = append(doomed, p)
		}
	}
	events := r.removeLocked(doomed)
	r.active = ""

	deliver := r.publishLocked(OpCloseAll, events)
	r.mu.Unlock()
	deliver()

	if len(doomed) > 0 {
		r.logger.Debug("closed all pages", "closed", len(doomed))
	}
	return &Command{FullPath: r.config.Home}
}

// Reset drops every page, pinned ones included, without a navigation.
func (r *Registry) Reset() {
	r.mu.Lock()

	doomed := make([]*Page, 0, len(r.order))
	for _, fp := range r.order {
		doomed = append(doomed, r.pages[fp])
	}
	events := r.removeLocked(doomed)
	r.active = ""

	deliver := r.publishLocked(OpReset, events)
	r.mu.Unlock()
	deliver()
}

// removeLocked drops pages and their membership. r.mu must be held.
// The active page pointer is left to the caller.
func (r *Registry) removeLocked(doomed []*Page) []Event {
	if len(doomed) == 0 {
		return nil
	}

	gone := make(map[string]struct{}, len(doomed))
	events := make([]Event, 0, 2*len(doomed))
	for _, p := range doomed {
		gone[p.FullPath] = struct{}{}
		if _, member := r.members[p.CacheKey]; member {
			delete(r.members, p.CacheKey)
			events = append(events, r.event(EventUncache, p))
		}
		delete(r.owners, p.CacheKey)
		delete(r.pages, p.FullPath)
		delete(r.refreshing, p.FullPath)
		events = append(events, r.event(EventRemove, p))
	}

	r.order = slices.DeleteFunc(r.order, func(fp string) bool {
		_, ok := gone[fp]
		return ok
	})
	return events
}

// =============================================================================
// Meta and cache policy
// =============================================================================

// SetCacheEligible toggles whether the page at fullPath may be kept alive.
func (r *Registry) SetCacheEligible(fullPath string, eligible bool) error {
	return r.UpdateMeta(fullPath, func(m *route.Meta) {
		m.NoCache = !eligible
	})
}

// UpdateMeta applies fn to a copy of the page's meta and stores the result.
// A change of the cache flag moves the page in or out of the membership.
func (r *Registry) UpdateMeta(fullPath string, fn func(*route.Meta)) error {
	r.mu.Lock()

	p, ok := r.pages[fullPath]
	if !ok {
		r.mu.Unlock()
		return &PageNotFoundError{FullPath: fullPath}
	}

	meta := p.Meta.Clone()
	fn(&meta)
	p.Meta = meta

	events := []Event{r.event(EventUpdate, p)}
	_, member := r.members[p.CacheKey]
	_, refreshing := r.refreshing[fullPath]
	switch {
	case p.CacheEligible() && !member && !refreshing:
		r.members[p.CacheKey] = struct{}{}
		events = append(events, r.event(EventCache, p))
	case !p.CacheEligible() && member:
		delete(r.members, p.CacheKey)
		events = append(events, r.event(EventUncache, p))
	case !p.CacheEligible() && refreshing:
		delete(r.refreshing, fullPath)
	}

	deliver := r.publishLocked(OpUpdate, events)
	r.mu.Unlock()
	deliver()
	return nil
}

// =============================================================================
// Queries
// =============================================================================

// Pages returns copies of the open pages in opening order.
func (r *Registry) Pages() []Page {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pagesLocked()
}

func (r *Registry) pagesLocked() []Page {
	out := make([]Page, 0, len(r.order))
	for _, fp := range r.order {
		out = append(out, r.pages[fp].snapshot())
	}
	return out
}

// Membership returns the cache keys allowed to stay mounted, in page order.
func (r *Registry) Membership() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.membershipLocked()
}

func (r *Registry) membershipLocked() []string {
	out := make([]string, 0, len(r.members))
	for _, fp := range r.order {
		key := r.pages[fp].CacheKey
		if _, ok := r.members[key]; ok {
			out = append(out, key)
		}
	}
	return out
}

// IsMember reports whether key is in the keep-alive membership.
func (r *Registry) IsMember(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.members[key]
	return ok
}

// Active returns the active page.
func (r *Registry) Active() (Page, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pages[r.active]
	if !ok {
		return Page{}, false
	}
	return p.snapshot(), true
}

// Get returns the page at fullPath.
func (r *Registry) Get(fullPath string) (Page, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pages[fullPath]
	if !ok {
		return Page{}, false
	}
	return p.snapshot(), true
}

// Has reports whether fullPath is open.
func (r *Registry) Has(fullPath string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.pages[fullPath]
	return ok
}

// Len returns the number of open pages.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

// Snapshot returns pages, membership and the active page in one consistent
// view.
func (r *Registry) Snapshot() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return State{
		Active:     r.active,
		Pages:      r.pagesLocked(),
		Membership: r.membershipLocked(),
	}
}

// =============================================================================
// Delivery
// =============================================================================

func (r *Registry) event(t EventType, p *Page) Event {
	return Event{
		Type:     t,
		FullPath: p.FullPath,
		CacheKey: p.CacheKey,
		Page:     p.snapshot(),
	}
}

// publishLocked stamps a batch and queues it for delivery. r.mu must be
// held; the returned function must be called after r.mu is released.
func (r *Registry) publishLocked(op string, events []Event) func() {
	if len(events) == 0 || len(r.observers) == 0 {
		return func() {}
	}

	r.seq++
	b := Batch{Seq: r.seq, Op: op, Events: events}
	targets := make([]Observer, 0, len(r.observers))
	for id := uint64(0); id < r.nextObs; id++ {
		if o, ok := r.observers[id]; ok {
			targets = append(targets, o)
		}
	}
	r.pending = append(r.pending, delivery{batch: b, targets: targets})
	return r.deliver
}

// deliver hands out pending batches until the queue is empty. Only one
// goroutine delivers at a time; a caller that finds delivery in progress
// returns and leaves its batch to that goroutine. Observers run without
// r.mu held.
func (r *Registry) deliver() {
	r.mu.Lock()
	if r.delivering {
		r.mu.Unlock()
		return
	}
	r.delivering = true
	for len(r.pending) > 0 {
		d := r.pending[0]
		r.pending[0] = delivery{}
		r.pending = r.pending[1:]
		r.mu.Unlock()
		for _, o := range d.targets {
			r.notify(o, d.batch)
		}
		r.mu.Lock()
	}
	r.delivering = false
	r.mu.Unlock()
}

func (r *Registry) notify(o Observer, b Batch) {
	defer func() {
		if v := recover(); v != nil {
			r.logger.Error("observer panicked", "seq", b.Seq, "op", b.Op, "panic", v)
		}
	}()
	o.Observe(b)
}
