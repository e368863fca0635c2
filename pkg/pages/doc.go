// Package pages implements the page registry: the set of application pages
// currently open as tabs, their identity keys, and which of them are kept
// alive by the rendering layer.
//
// # Ownership
//
// A Registry is an explicit value built once per application instance (or
// per client session on a server) and handed to the router adapter and the
// rendering layer. There is no package-level registry.
//
//	reg := pages.New(pages.Config{Home: "/dashboard"})
//
//	// router adapter, after every completed navigation:
//	if err := reg.HandleNavigation(target); err != nil { ... }
//
//	// tab close button:
//	cmd, err := reg.ClosePage("/users")
//	if cmd != nil {
//	    router.Push(cmd.FullPath)
//	}
//
// The registry never navigates by itself. Operations that require a
// navigation return a *Command and the caller performs it.
//
// # Keep-alive membership
//
// Membership returns the cache keys of the pages whose components may stay
// mounted. Every open, cache-eligible page is a member, except while it is
// being refreshed: BeginRefresh removes its key, and Refresh.Complete puts
// the same key back. Observers see both steps as separate batches, which is
// what makes the rendering layer tear the old component down.
//
// # Observers
//
// Each mutating call publishes at most one Batch to every Observer. Batches
// are delivered in sequence order by one goroutine at a time, with the
// registry lock released, so observers may query the registry. When another
// goroutine is already delivering, a mutating call returns before its batch
// reaches the observers. A mutation made from inside Observe is queued
// behind the batch being delivered. Bulk closes are a single batch.
package pages
