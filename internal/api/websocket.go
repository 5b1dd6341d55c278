package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tradepilot/backend/internal/events"
	"github.com/tradepilot/backend/pkg/logger"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second

	// wsBuffer is the per-subscriber event buffer. A slow client drops
	// events rather than backpressuring the publishers.
	wsBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The API binds to localhost; cross-origin browser clients are the
	// local dashboard.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsEnvelope wraps an event with its topic for the wire.
type wsEnvelope struct {
	Topic   string      `json:"topic"`
	Payload interface{} `json:"payload"`
}

// EventStream streams bus events to websocket clients.
type EventStream struct {
	bus    *events.Bus
	logger *logger.Logger
}

// NewEventStream creates a websocket event stream over the bus.
func NewEventStream(bus *events.Bus, log *logger.Logger) *EventStream {
	return &EventStream{
		bus:    bus,
		logger: log,
	}
}

// ServeWS upgrades the request and streams connection, signal and
// execution events until the client disconnects.
// GET /ws
func (s *EventStream) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Warn("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	connCh, unsubConn := s.bus.Subscribe(events.TopicConnection, wsBuffer)
	defer unsubConn()
	sigCh, unsubSig := s.bus.Subscribe(events.TopicSignal, wsBuffer)
	defer unsubSig()
	execCh, unsubExec := s.bus.Subscribe(events.TopicExecution, wsBuffer)
	defer unsubExec()

	// Reader goroutine: we never expect client messages, but reading is
	// required to notice the close handshake.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case payload := <-connCh:
			if !s.write(conn, string(events.TopicConnection), payload) {
				return
			}
		case payload := <-sigCh:
			if !s.write(conn, string(events.TopicSignal), payload) {
				return
			}
		case payload := <-execCh:
			if !s.write(conn, string(events.TopicExecution), payload) {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *EventStream) write(conn *websocket.Conn, topic string, payload interface{}) bool {
	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := conn.WriteJSON(wsEnvelope{Topic: topic, Payload: payload}); err != nil {
		s.logger.WithError(err).Debug("Websocket write failed")
		return false
	}
	return true
}
