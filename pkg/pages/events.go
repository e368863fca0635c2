package pages

// EventType classifies a registry event.
type EventType string

const (
	EventAdd      EventType = "add"
	EventRemove   EventType = "remove"
	EventActivate EventType = "activate"
	EventCache    EventType = "cache"
	EventUncache  EventType = "uncache"
	EventUpdate   EventType = "update"
	EventRefresh  EventType = "refresh"
)

// Operation names carried by batches.
const (
	OpNavigate        = "navigate"
	OpClose           = "close"
	OpCloseOthers     = "close-others"
	OpCloseAll        = "close-all"
	OpRefresh         = "refresh"
	OpRefreshComplete = "refresh-complete"
	OpUpdate          = "update"
	OpReset           = "reset"
)

// Event is a single change to the registry.
type Event struct {
	Type     EventType `json:"type"`
	FullPath string    `json:"fullPath"`
	CacheKey string    `json:"cacheKey,omitempty"`

	// Page is a snapshot of the page after the change. For EventRemove it
	// is the page as it was when removed.
	Page Page `json:"page"`
}

// Batch is the set of events produced by one registry call.
type Batch struct {
	Seq    uint64  `json:"seq"`
	Op     string  `json:"op"`
	Events []Event `json:"events"`
}

// Has reports whether the batch contains an event of type t.
func (b Batch) Has(t EventType) bool {
	for _, e := range b.Events {
		if e.Type == t {
			return true
		}
	}
	return false
}

// Observer receives batches from a registry.
type Observer interface {
	Observe(Batch)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Batch)

// Observe implements Observer.
func (f ObserverFunc) Observe(b Batch) { f(b) }
