// Package hub streams service events to browsers and tools over
// server-sent events.
//
// Each frame carries the event type in the SSE "event" field and a
// monotonically increasing "id". A client can restrict the stream with
// ?types=a,b.
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("peertrust/hub")

// DefaultKeepAlive is the interval between comment frames on an idle stream
const DefaultKeepAlive = 30 * time.Second

type frame struct {
	kind string
	data []byte
}

type client struct {
	id     uuid.UUID
	types  map[string]bool // nil accepts every type
	frames chan []byte
}

func (c *client) wants(kind string) bool {
	return c.types == nil || c.types[kind]
}

// Hub fans events out to SSE clients
type Hub struct {
	keepAlive time.Duration
	in        chan frame
	done      chan struct{}

	mu      sync.Mutex
	clients map[uuid.UUID]*client
	seq     uint64
	stopped bool
}

// New creates a new Hub
func New() *Hub {
	return &Hub{
		keepAlive: DefaultKeepAlive,
		in:        make(chan frame, 256),
		done:      make(chan struct{}),
		clients:   make(map[uuid.UUID]*client),
	}
}

// Run delivers broadcast events until ctx is cancelled, then disconnects
// every client
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case f := <-h.in:
			h.deliver(f)
		case <-ctx.Done():
			h.mu.Lock()
			h.stopped = true
			for id, c := range h.clients {
				delete(h.clients, id)
				close(c.frames)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Broadcast queues an event for every client that accepts kind. It never
// blocks; events are dropped when the queue is full.
func (h *Hub) Broadcast(kind string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Warnf("failed to marshal %s event: %v", kind, err)
		return
	}
	select {
	case h.in <- frame{kind: kind, data: data}:
	default:
		log.Warnf("broadcast queue full, dropping %s event", kind)
	}
}

func (h *Hub) deliver(f frame) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.seq++
	msg := []byte(fmt.Sprintf("event: %s\nid: %d\ndata: %s\n\n", f.kind, h.seq, f.data))
	for _, c := range h.clients {
		if !c.wants(f.kind) {
			continue
		}
		select {
		case c.frames <- msg:
		default:
			log.Debugf("SSE client %s is slow, skipping %s event", c.id, f.kind)
		}
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) attach(types map[string]bool) (*client, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return nil, false
	}
	c := &client{id: uuid.New(), types: types, frames: make(chan []byte, 64)}
	h.clients[c.id] = c
	log.Debugf("SSE client connected: %s (total: %d)", c.id, len(h.clients))
	return c, true
}

func (h *Hub) detach(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		close(c.frames)
	}
	log.Debugf("SSE client disconnected: %s (total: %d)", c.id, len(h.clients))
}

// parseTypes reads the ?types= filter; repeated and comma separated values
// are both accepted
func parseTypes(r *http.Request) map[string]bool {
	var types map[string]bool
	for _, v := range r.URL.Query()["types"] {
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				if types == nil {
					types = make(map[string]bool)
				}
				types[t] = true
			}
		}
	}
	return types
}

// ServeHTTP streams events to one client
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	c, ok := h.attach(parseTypes(r))
	if !ok {
		http.Error(w, "event stream closed", http.StatusServiceUnavailable)
		return
	}
	defer h.detach(c)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	fmt.Fprintf(w, ": connected %s\n\n", c.id)
	flusher.Flush()

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.frames:
			if !ok {
				return
			}
			if _, err := w.Write(msg); err != nil {
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		}
		flusher.Flush()
	}
}
