package server

import (
	"net/http"
	"net/url"
	"slices"
	"time"
)

// ServerConfig holds configuration for the API server.
type ServerConfig struct {
	// Address is the address to listen on.
	// Default: "localhost:8080".
	Address string

	// ReadHeaderTimeout bounds reading request headers.
	// Default: 5 seconds.
	ReadHeaderTimeout time.Duration

	// ReadTimeout bounds reading a request.
	// Default: 10 seconds.
	ReadTimeout time.Duration

	// WriteTimeout bounds writing a response. Event streams are hijacked
	// and not subject to it.
	// Default: 10 seconds.
	WriteTimeout time.Duration

	// IdleTimeout bounds keep-alive connections.
	// Default: 60 seconds.
	IdleTimeout time.Duration

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 15 seconds.
	ShutdownTimeout time.Duration

	// ReadBufferSize and WriteBufferSize size the websocket buffers.
	// Default: 4096 each.
	ReadBufferSize  int
	WriteBufferSize int

	// CheckOrigin validates event stream origins.
	// Default: SameOriginCheck.
	CheckOrigin func(r *http.Request) bool

	// EventBuffer is the number of batches queued per event stream before
	// the stream is closed as too slow.
	// Default: 64.
	EventBuffer int

	// EventWriteTimeout bounds a single event frame write.
	// Default: 10 seconds.
	EventWriteTimeout time.Duration

	// PingInterval is the time between websocket pings.
	// Default: 30 seconds.
	PingInterval time.Duration

	// MaxBodyBytes caps request bodies.
	// Default: 64KB.
	MaxBodyBytes int64

	// MetricsPath is where Prometheus metrics are served when metrics are
	// enabled.
	// Default: "/metrics".
	MetricsPath string
}

// DefaultServerConfig returns a ServerConfig with sensible defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Address:           "localhost:8080",
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
		ShutdownTimeout:   15 * time.Second,
		ReadBufferSize:    4096,
		WriteBufferSize:   4096,
		CheckOrigin:       SameOriginCheck, // SECURE DEFAULT: reject cross-origin
		EventBuffer:       64,
		EventWriteTimeout: 10 * time.Second,
		PingInterval:      30 * time.Second,
		MaxBodyBytes:      64 * 1024, // 64KB
		MetricsPath:       "/metrics",
	}
}

// withDefaults fills in defaults for any unset fields.
func (c *ServerConfig) withDefaults() *ServerConfig {
	defaults := DefaultServerConfig()
	if c == nil {
		return defaults
	}
	clone := *c
	if clone.Address == "" {
		clone.Address = defaults.Address
	}
	if clone.ReadHeaderTimeout == 0 {
		clone.ReadHeaderTimeout = defaults.ReadHeaderTimeout
	}
	if clone.ReadTimeout == 0 {
		clone.ReadTimeout = defaults.ReadTimeout
	}
	if clone.WriteTimeout == 0 {
		clone.WriteTimeout = defaults.WriteTimeout
	}
	if clone.IdleTimeout == 0 {
		clone.IdleTimeout = defaults.IdleTimeout
	}
	if clone.ShutdownTimeout == 0 {
		clone.ShutdownTimeout = defaults.ShutdownTimeout
	}
	if clone.ReadBufferSize == 0 {
		clone.ReadBufferSize = defaults.ReadBufferSize
	}
	if clone.WriteBufferSize == 0 {
		clone.WriteBufferSize = defaults.WriteBufferSize
	}
	if clone.CheckOrigin == nil {
		clone.CheckOrigin = defaults.CheckOrigin
	}
	if clone.EventBuffer <= 0 {
		clone.EventBuffer = defaults.EventBuffer
	}
	if clone.EventWriteTimeout == 0 {
		clone.EventWriteTimeout = defaults.EventWriteTimeout
	}
	if clone.PingInterval == 0 {
		clone.PingInterval = defaults.PingInterval
	}
	if clone.MaxBodyBytes == 0 {
		clone.MaxBodyBytes = defaults.MaxBodyBytes
	}
	if clone.MetricsPath == "" {
		clone.MetricsPath = defaults.MetricsPath
	}
	return &clone
}

// SameOriginCheck validates that the websocket request origin matches the
// host. This is the secure default for CheckOrigin.
func SameOriginCheck(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		// No Origin header (e.g., same-origin request or curl)
		return true
	}

	// Parse origin as URL for robust comparison
	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}

	host := r.Host
	if host == "" {
		return false
	}

	// Compare the host portion (includes port if present)
	return originURL.Host == host
}

// AllowOrigins returns a CheckOrigin that accepts same-origin requests and
// the listed origins (scheme://host[:port]).
func AllowOrigins(origins ...string) func(r *http.Request) bool {
	allowed := slices.Clone(origins)
	return func(r *http.Request) bool {
		if SameOriginCheck(r) {
			return true
		}
		return slices.Contains(allowed, r.Header.Get("Origin"))
	}
}
