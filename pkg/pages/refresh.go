package pages

import (
	"context"
	"errors"
	"sync"
)

// Refresh is an in-flight two-phase refresh started by BeginRefresh.
type Refresh struct {
	r        *Registry
	fullPath string
	key      string
	epoch    uint64

	// evicted is set when phase one removed the key from the membership.
	evicted bool
	once    sync.Once
}

// FullPath returns the page being refreshed.
func (rf *Refresh) FullPath() string { return rf.fullPath }

// Epoch returns the epoch assigned by the refresh.
func (rf *Refresh) Epoch() uint64 { return rf.epoch }

// Evicted reports whether the page's cache key was removed from the
// membership during phase one.
func (rf *Refresh) Evicted() bool { return rf.evicted }

// BeginRefresh starts phase one of a refresh: the page's epoch is bumped,
// its mount key recomputed, and its cache key removed from the membership so
// the kept-alive instance is discarded. Call Complete once the rendering
// layer has processed that removal.
//
// A second BeginRefresh for the same page before Complete returns
// ErrRefreshInProgress.
func (r *Registry) BeginRefresh(fullPath string) (*Refresh, error) {
	r.mu.Lock()

	p, ok := r.pages[fullPath]
	if !ok {
		r.mu.Unlock()
		return nil, &PageNotFoundError{FullPath: fullPath}
	}
	if _, busy := r.refreshing[fullPath]; busy {
		r.mu.Unlock()
		return nil, ErrRefreshInProgress
	}

	p.Epoch++
	p.MountKey = r.config.Policy.MountKey(p.FullPath, p.Epoch)

	rf := &Refresh{r: r, fullPath: fullPath, key: p.CacheKey, epoch: p.Epoch}
	events := []Event{r.event(EventRefresh, p)}
	if _, member := r.members[p.CacheKey]; member {
		delete(r.members, p.CacheKey)
		rf.evicted = true
		r.refreshing[fullPath] = rf
		events = append(events, r.event(EventUncache, p))
	}

	deliver := r.publishLocked(OpRefresh, events)
	r.mu.Unlock()
	deliver()

	r.logger.Debug("page refresh started", "full_path", fullPath, "epoch", rf.epoch, "evicted", rf.evicted)
	return rf, nil
}

// Complete runs phase two: the cache key rejoins the membership if the page
// is still open and still cache-eligible. It is safe to call more than once.
func (rf *Refresh) Complete() {
	rf.once.Do(rf.complete)
}

func (rf *Refresh) complete() {
	if !rf.evicted {
		return
	}
	r := rf.r
	r.mu.Lock()

	if r.refreshing[rf.fullPath] != rf {
		// Page closed, reset or marked ineligible meanwhile.
		r.mu.Unlock()
		return
	}
	delete(r.refreshing, rf.fullPath)

	var events []Event
	p, ok := r.pages[rf.fullPath]
	if ok && p.CacheKey == rf.key && p.CacheEligible() {
		if _, member := r.members[rf.key]; !member {
			r.members[rf.key] = struct{}{}
			events = append(events, r.event(EventCache, p))
		}
	}

	deliver := r.publishLocked(OpRefreshComplete, events)
	r.mu.Unlock()
	deliver()
}

// RefreshPage refreshes the page at fullPath, yielding through
// Config.Yield between the phases. Phase two always runs, even when the
// yield fails; the yield error is returned.
func (r *Registry) RefreshPage(ctx context.Context, fullPath string) error {
	rf, err := r.BeginRefresh(fullPath)
	if err != nil {
		return err
	}

	yieldErr := r.config.Yield(ctx)
	rf.Complete()
	if yieldErr != nil {
		return yieldErr
	}
	return r.config.Yield(ctx)
}

// RefreshActive refreshes the active page. It does nothing when no page is
// active.
func (r *Registry) RefreshActive(ctx context.Context) error {
	r.mu.Lock()
	active := r.active
	r.mu.Unlock()

	if active == "" {
		return nil
	}
	err := r.RefreshPage(ctx, active)
	if errors.Is(err, ErrPageNotFound) {
		// Closed between the read and the refresh.
		return nil
	}
	return err
}
