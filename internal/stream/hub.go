// Package stream pushes updater lifecycle events to websocket clients.
package stream

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/tinoosan/fota/internal/updater"
)

const (
	subscriberBuffer = 32
	writeTimeout     = 5 * time.Second
)

// Hub is an updater.Reporter fanning events out to websocket subscribers.
// A subscriber that falls behind loses events rather than stalling the
// updater.
type Hub struct {
	log *slog.Logger

	mu     sync.Mutex
	subs   map[chan updater.Event]struct{}
	closed bool
	done   chan struct{}
}

func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		log:  log.With("component", "stream"),
		subs: make(map[chan updater.Event]struct{}),
		done: make(chan struct{}),
	}
}

// Report implements updater.Reporter. It never blocks.
func (h *Hub) Report(e updater.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- e:
		default:
			h.log.Warn("subscriber lagging, event dropped", "type", e.Type, "cycle", e.Cycle)
		}
	}
}

// Subscribers returns the number of connected clients.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close disconnects every subscriber and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	close(h.done)
}

func (h *Hub) subscribe() (chan updater.Event, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	ch := make(chan updater.Event, subscriberBuffer)
	h.subs[ch] = struct{}{}
	return ch, true
}

func (h *Hub) unsubscribe(ch chan updater.Event) {
	h.mu.Lock()
	delete(h.subs, ch)
	h.mu.Unlock()
}

// ServeHTTP upgrades the request and streams events as JSON text frames
// until the client goes away or the hub is closed.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ch, ok := h.subscribe()
	if !ok {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	defer h.unsubscribe(ch)

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.log.Error("accept", "err", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusInternalError, "unexpected exit") }()

	// Clients never send; CloseRead handles their close frame.
	ctx := conn.CloseRead(r.Context())
	h.log.Info("subscriber connected", "remote", r.RemoteAddr)

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		case e := <-ch:
			if err := write(ctx, conn, e); err != nil {
				h.log.Info("subscriber gone", "remote", r.RemoteAddr, "err", err)
				return
			}
		}
	}
}

func write(ctx context.Context, conn *websocket.Conn, e updater.Event) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, e)
}
