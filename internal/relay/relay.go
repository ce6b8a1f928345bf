// Package relay runs the sync hub that kith sessions connect to.
//
// Sessions join over WebSocket at /sync?doc=<id>. Every frame a session
// sends is forwarded unchanged to the other sessions subscribed to the
// same document. The hub never inspects payloads, so mixed client
// versions can sync through it. Slow subscribers lose frames rather
// than stall the hub; sessions recover through their snapshot push on
// reconnect.
package relay

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// clientBuffer bounds the per-subscriber outbound queue.
const clientBuffer = 32

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// Hub fans frames out between the subscribers of each document.
type Hub struct {
	log *slog.Logger

	mu     sync.Mutex
	docs   map[string]map[*client]struct{}
	closed bool
}

type client struct {
	doc  string
	conn *websocket.Conn
	out  chan outFrame
}

type outFrame struct {
	kind int
	data []byte
}

// Option configures a Hub.
type Option func(*Hub)

// WithLogger routes hub logs through log.
func WithLogger(log *slog.Logger) Option {
	return func(h *Hub) { h.log = log }
}

// NewHub returns a hub with no subscribers.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		log:  slog.Default(),
		docs: make(map[string]map[*client]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handler returns the hub's HTTP routes: /sync for sessions and
// /healthz for probes.
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/sync", h)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

// ServeHTTP upgrades the request and pumps frames until the session
// disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	doc := r.URL.Query().Get("doc")
	if doc == "" {
		http.Error(w, "missing doc parameter", http.StatusBadRequest)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &client{doc: doc, conn: conn, out: make(chan outFrame, clientBuffer)}
	if !h.register(c) {
		conn.Close()
		return
	}
	h.log.Info("session joined", "doc", doc, "subscribers", h.Subscribers(doc))

	go c.writeLoop(h.log)
	h.readLoop(c)
}

// Subscribers reports how many sessions are attached to doc.
func (h *Hub) Subscribers(doc string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.docs[doc])
}

// Close disconnects every subscriber and refuses new ones.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	var conns []*websocket.Conn
	for _, set := range h.docs {
		for c := range set {
			close(c.out)
			conns = append(conns, c.conn)
		}
	}
	h.docs = make(map[string]map[*client]struct{})
	h.mu.Unlock()

	for _, conn := range conns {
		conn.Close()
	}
	return nil
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	set := h.docs[c.doc]
	if set == nil {
		set = make(map[*client]struct{})
		h.docs[c.doc] = set
	}
	set[c] = struct{}{}
	return true
}

// unregister removes c and closes its outbound queue. Close may have
// removed it already, in which case the queue is gone too.
func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.docs[c.doc]
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.docs, c.doc)
	}
	close(c.out)
}

func (h *Hub) readLoop(c *client) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
		h.log.Info("session left", "doc", c.doc, "subscribers", h.Subscribers(c.doc))
	}()
	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		h.forward(c, kind, data)
	}
}

// forward queues a frame for every other subscriber of the sender's
// document. Sends stay under the hub lock so a queue can never close
// mid-send.
func (h *Hub) forward(from *client, kind int, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for peer := range h.docs[from.doc] {
		if peer == from {
			continue
		}
		select {
		case peer.out <- outFrame{kind: kind, data: data}:
		default:
			h.log.Debug("dropping frame for slow subscriber", "doc", from.doc)
		}
	}
}

func (c *client) writeLoop(log *slog.Logger) {
	for f := range c.out {
		if err := c.conn.WriteMessage(f.kind, f.data); err != nil {
			log.Debug("subscriber write failed", "doc", c.doc, "error", err)
			// Closing the conn makes the read loop unregister us,
			// which closes c.out and ends the drain below.
			c.conn.Close()
			for range c.out {
			}
			return
		}
	}
}
