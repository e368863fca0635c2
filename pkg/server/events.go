package server

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-dev/pagekeeper/pkg/pages"
)

// Frame types sent on the event stream.
const (
	FrameState = "state"
	FrameBatch = "batch"
)

// eventFrame is one JSON message on the event stream. The first frame is
// always a state frame; every later frame is a batch.
type eventFrame struct {
	Type  string       `json:"type"`
	State *stateView   `json:"state,omitempty"`
	Batch *pages.Batch `json:"batch,omitempty"`
}

// errSlowConsumer ends a stream whose queue is full.
var errSlowConsumer = errors.New("event stream fell behind")

// eventStream is a registry observer that queues batches for one websocket.
type eventStream struct {
	queue chan pages.Batch

	// overflow is closed when a batch could not be queued.
	overflow     chan struct{}
	overflowOnce sync.Once
}

func newEventStream(size int) *eventStream {
	return &eventStream{
		queue:    make(chan pages.Batch, size),
		overflow: make(chan struct{}),
	}
}

// Observe implements pages.Observer. It never blocks the registry.
func (es *eventStream) Observe(b pages.Batch) {
	select {
	case <-es.overflow:
	case es.queue <- b:
	default:
		es.overflowOnce.Do(func() { close(es.overflow) })
	}
}

// handleEvents upgrades to a websocket and streams the session's batches.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	entry, err := s.sessionEntry(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	logger := s.logger.With("session_id", entry.ID)

	stream := newEventStream(s.config.EventBuffer)
	state, unsubscribe := entry.Registry.Watch(stream)
	defer unsubscribe()

	// The client sends nothing; reading drives control frames and notices
	// the close.
	readDone := make(chan struct{})
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(2 * s.config.PingInterval))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(2 * s.config.PingInterval))
	})
	go func() {
		defer close(readDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	view := newStateView(state)
	if err := s.writeFrame(conn, eventFrame{Type: FrameState, State: &view}); err != nil {
		logger.Debug("event stream write failed", "error", err)
		return
	}

	ping := time.NewTicker(s.config.PingInterval)
	defer ping.Stop()

	for {
		select {
		case b := <-stream.queue:
			if err := s.writeFrame(conn, eventFrame{Type: FrameBatch, Batch: &b}); err != nil {
				logger.Debug("event stream write failed", "error", err)
				return
			}

		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(s.config.EventWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-stream.overflow:
			logger.Warn("closing event stream", "error", errSlowConsumer)
			s.writeClose(conn, websocket.ClosePolicyViolation, errSlowConsumer.Error())
			return

		case <-entry.Done():
			s.drain(conn, stream)
			s.writeClose(conn, websocket.CloseNormalClosure, "session closed")
			return

		case <-s.done:
			s.writeClose(conn, websocket.CloseGoingAway, "server shutting down")
			return

		case <-readDone:
			return
		}
	}
}

// drain flushes batches already queued, such as the one emitted when the
// session's pages were dropped.
func (s *Server) drain(conn *websocket.Conn, stream *eventStream) {
	for {
		select {
		case b := <-stream.queue:
			if err := s.writeFrame(conn, eventFrame{Type: FrameBatch, Batch: &b}); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (s *Server) writeFrame(conn *websocket.Conn, f eventFrame) error {
	_ = conn.SetWriteDeadline(time.Now().Add(s.config.EventWriteTimeout))
	return conn.WriteJSON(f)
}

func (s *Server) writeClose(conn *websocket.Conn, code int, text string) {
	_ = conn.SetWriteDeadline(time.Now().Add(s.config.EventWriteTimeout))
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, text))
}
