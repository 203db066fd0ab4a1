// Package realtime pushes store change events to remote listeners: browser
// clients over a websocket, and other processes over Redis pub/sub.
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/p-n-ai/pai-study/internal/content"
)

const (
	clientBuffer = 16
	writeTimeout = 5 * time.Second
)

// Feed fans events out to connected websocket clients. A client that
// falls clientBuffer events behind is disconnected.
type Feed struct {
	origins []string

	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	events chan content.Event
	drop   context.CancelFunc
}

// NewFeed creates a feed. origins are host patterns accepted in addition
// to same-origin requests.
func NewFeed(origins ...string) *Feed {
	return &Feed{
		origins: origins,
		clients: make(map[*client]struct{}),
	}
}

// Broadcast queues ev for every connected client without blocking.
func (f *Feed) Broadcast(ev content.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for c := range f.clients {
		select {
		case c.events <- ev:
		default:
			slog.Debug("dropping slow event client")
			c.drop()
			delete(f.clients, c)
		}
	}
}

// Len returns the number of connected clients.
func (f *Feed) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

// ServeHTTP upgrades the request and streams events until the client goes
// away. Anything the client sends is discarded.
func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: f.origins})
	if err != nil {
		slog.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	ctx, cancel := context.WithCancel(conn.CloseRead(r.Context()))
	defer cancel()

	c := &client{events: make(chan content.Event, clientBuffer), drop: cancel}
	f.add(c)
	defer f.remove(c)

	for {
		select {
		case ev := <-c.events:
			if err := write(ctx, conn, ev); err != nil {
				slog.Debug("event client write failed", "error", err)
				return
			}
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		}
	}
}

func (f *Feed) add(c *client) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clients[c] = struct{}{}
}

func (f *Feed) remove(c *client) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.clients, c)
}

func write(ctx context.Context, conn *websocket.Conn, ev content.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}
