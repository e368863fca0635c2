// Package session gives every client its own page registry.
//
// A Manager creates sessions with random IDs, hands out their registries,
// and bounds memory in two ways:
//
//	manager := session.NewManager(session.ManagerConfig{
//	    MaxSessions:    10000,
//	    IdleTimeout:    30 * time.Minute,
//	    EvictionPolicy: session.EvictionLRU,
//	    Pages:          pages.Config{Home: "/dashboard"},
//	}, logger)
//
// When MaxSessions is exceeded the least recently used session is dropped
// (or the oldest, or a random one). Sessions idle for longer than
// IdleTimeout are swept by a background loop. Eviction applies to whole
// sessions; pages inside a registry are only ever closed by the user.
//
// A removed session's registry is reset, so shared observers such as
// metrics see every page leave, and Entry.Done is closed.
package session
