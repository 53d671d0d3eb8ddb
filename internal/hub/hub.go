// Package hub fans state events out to dashboard WebSocket subscribers.
package hub

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/twinlab/nettwin/pkg/types"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Per-client send buffer. A client that falls this far behind is
	// disconnected rather than allowed to stall the broadcast loop.
	clientQueueSize = 64

	broadcastQueueSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The dashboard is served from the same origin in production; in dev
	// it runs on a different port, so origin checking is left to the
	// reverse proxy.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Envelope is the wire form of one broadcast event.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// client is one connected dashboard.
type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub maintains the set of connected dashboards and broadcasts events to
// them. Every new subscriber receives a full snapshot before any delta, so
// no client ever has to reconstruct state from increments alone.
type Hub struct {
	logger *slog.Logger

	// snapshotFn produces the initial_state payload. It takes whatever
	// locks it needs itself.
	snapshotFn func() any

	clients    map[*client]bool
	register   chan *client
	unregister chan *client
	broadcast  chan []byte

	stopCh chan struct{}
	done   chan struct{}
}

// New creates a hub. snapshotFn is invoked once per new subscriber.
func New(snapshotFn func() any, logger *slog.Logger) *Hub {
	return &Hub{
		logger:     logger.With("component", "hub"),
		snapshotFn: snapshotFn,
		clients:    make(map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, broadcastQueueSize),
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start begins the hub's event loop.
func (h *Hub) Start() {
	go h.run()
	h.logger.Info("websocket hub started")
}

// Stop closes all client connections and stops the event loop.
func (h *Hub) Stop() {
	close(h.stopCh)
	<-h.done
	h.logger.Info("websocket hub stopped")
}

// Broadcast queues an event for delivery to all connected dashboards. If the
// hub's queue is full the event is dropped; dashboards converge again on the
// next batch update.
func (h *Hub) Broadcast(event string, data any) {
	payload, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		h.logger.Error("marshaling broadcast", "event", event, "error", err)
		return
	}
	select {
	case h.broadcast <- payload:
	default:
		h.logger.Warn("broadcast queue full, dropping event", "event", event)
	}
}

func (h *Hub) run() {
	defer close(h.done)

	for {
		select {
		case <-h.stopCh:
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			return

		case c := <-h.register:
			h.clients[c] = true
			h.logger.Info("dashboard connected", "clients", len(h.clients))
			h.sendSnapshot(c)

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				h.logger.Info("dashboard disconnected", "clients", len(h.clients))
			}

		case payload := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- payload:
				default:
					// Slow client; cut it loose.
					delete(h.clients, c)
					close(c.send)
					h.logger.Warn("dropping slow dashboard client")
				}
			}
		}
	}
}

func (h *Hub) sendSnapshot(c *client) {
	payload, err := json.Marshal(Envelope{
		Event: types.EventInitialState,
		Data:  h.snapshotFn(),
	})
	if err != nil {
		h.logger.Error("marshaling initial state", "error", err)
		return
	}
	select {
	case c.send <- payload:
	default:
		h.logger.Warn("new client cannot accept initial state")
	}
}

// ServeHTTP upgrades the request to a WebSocket subscription.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, clientQueueSize),
	}
	select {
	case h.register <- c:
	case <-h.stopCh:
		// The hub already shut down; nobody will service the registration.
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump(h)
}

// writePump delivers queued events and keepalive pings to one client.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains (and discards) inbound frames so pongs and close frames
// are processed. Dashboards are read-only subscribers; control traffic goes
// through the REST API.
func (c *client) readPump(h *Hub) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.stopCh:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
