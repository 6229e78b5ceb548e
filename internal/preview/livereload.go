package preview

import (
	"bufio"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"git.home.luguber.info/inful/rstsite/internal/logfields"
)

// Live reload endpoints served at the site root.
const (
	EventsPath = "/livereload"
	ScriptPath = "/livereload.js"
)

const heartbeat = 30 * time.Second

// Hub fans build ids out to connected browsers over server-sent events.
type Hub struct {
	logger *slog.Logger

	mu       sync.RWMutex
	nextID   int
	clients  map[int]*client
	closed   bool
	lastHash string
}

type client struct {
	id   int
	ch   chan string
	done chan struct{}
}

// NewHub returns a hub without clients.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{logger: logger, clients: map[int]*client{}}
}

// Clients returns the number of connected browsers.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP streams events until the client disconnects or the hub shuts down. A new
// connection first receives the current hash, which the script takes as its baseline.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}
	c := &client{ch: make(chan string, 8), done: make(chan struct{})}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		http.Error(w, "livereload shutting down", http.StatusServiceUnavailable)
		return
	}
	c.id = h.nextID
	h.nextID++
	h.clients[c.id] = c
	current := h.lastHash
	h.mu.Unlock()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	bw := bufio.NewWriter(w)
	send := func(s string) bool {
		if _, err := bw.WriteString(s); err != nil {
			h.logger.Debug("Live reload write failed", logfields.Error(err))
			return false
		}
		if err := bw.Flush(); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}
	if !send(": connected\n\n") {
		h.removeClient(c.id)
		return
	}
	if current != "" && !send(event(current)) {
		h.removeClient(c.id)
		return
	}

	hb := time.NewTicker(heartbeat)
	defer hb.Stop()
	for {
		select {
		case <-r.Context().Done():
			h.removeClient(c.id)
			return
		case <-c.done:
			return
		case <-hb.C:
			send(": ping\n\n")
		case hash := <-c.ch:
			if !send(event(hash)) {
				h.removeClient(c.id)
				return
			}
		}
	}
}

func event(hash string) string {
	return "data: {\"hash\":\"" + hash + "\"}\n\n"
}

func (h *Hub) removeClient(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[id]; ok {
		delete(h.clients, id)
		close(c.done)
	}
}

// Broadcast sends hash to every client. Repeated hashes are ignored and clients whose
// buffer is full are dropped.
func (h *Hub) Broadcast(hash string) {
	h.mu.Lock()
	if h.closed || hash == "" || hash == h.lastHash {
		h.mu.Unlock()
		return
	}
	h.lastHash = hash
	snapshot := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		snapshot = append(snapshot, c)
	}
	h.mu.Unlock()

	dropped := 0
	for _, c := range snapshot {
		select {
		case c.ch <- hash:
		default:
			dropped++
			h.removeClient(c.id)
		}
	}
	h.logger.Debug("Live reload broadcast", slog.String("hash", hash), logfields.Count(len(snapshot)), slog.Int("dropped", dropped))
}

// Shutdown disconnects every client and stops further broadcasts.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	clients := h.clients
	h.clients = map[int]*client{}
	h.mu.Unlock()
	for _, c := range clients {
		close(c.done)
	}
}

// Script reconnects after errors and reloads the page once the hash differs from the
// one received on connect.
const Script = `(() => {
  if (window.__RSTSITE_LR__) return;
  window.__RSTSITE_LR__ = true;
  function connect() {
    const es = new EventSource('` + EventsPath + `');
    let current = null;
    es.onmessage = (e) => {
      try {
        const p = JSON.parse(e.data);
        if (current === null) { current = p.hash; return; }
        if (p.hash && p.hash !== current) { location.reload(); }
      } catch (_) {}
    };
    es.onerror = () => { es.close(); setTimeout(connect, 2000); };
  }
  connect();
})();
`

func serveScript(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write([]byte(Script))
}
