// Package events fans committed content changes out to websocket clients,
// optionally across server instances through Redis pub/sub.
package events

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/p-n-ai/medq/internal/content"
)

const (
	subscriberBuffer = 16
	writeTimeout     = 5 * time.Second
)

// Hub delivers changes to every connected subscriber on this instance. A
// subscriber that falls behind misses changes rather than blocking writers.
type Hub struct {
	mu   sync.Mutex
	subs map[chan content.Change]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[chan content.Change]struct{})}
}

// Notify broadcasts c. It never fails.
func (h *Hub) Notify(_ context.Context, c content.Change) error {
	h.Broadcast(c)
	return nil
}

// Broadcast sends c to every subscriber without blocking.
func (h *Hub) Broadcast(c content.Change) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- c:
		default:
			droppedTotal.Inc()
		}
	}
	publishedTotal.WithLabelValues(c.Op).Inc()
}

// Subscribe registers a new subscriber. The returned func unregisters it and
// closes the channel.
func (h *Hub) Subscribe() (<-chan content.Change, func()) {
	ch := make(chan content.Change, subscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	subscribers.Inc()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
			subscribers.Dec()
		})
	}
}

// Len returns the number of current subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// ServeHTTP upgrades the request to a websocket and streams changes as JSON
// until the client goes away. Clients only listen; anything they send is
// discarded.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// The server's write timeout must not cut long-lived streams.
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	ctx := conn.CloseRead(r.Context())
	changes, unsubscribe := h.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-changes:
			if !ok {
				return
			}
			if err := write(ctx, conn, c); err != nil {
				if !errors.Is(err, context.Canceled) {
					slog.Debug("websocket write failed", "error", err)
				}
				return
			}
		}
	}
}

func write(ctx context.Context, conn *websocket.Conn, c content.Change) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, c)
}
