// Package hub fans asynchronous transmit outcomes out to connected shell sessions.
package hub

import (
	"fmt"
	"sync"

	"github.com/kstaniek/go-can-hog/internal/can"
	"github.com/kstaniek/go-can-hog/internal/logging"
	"github.com/kstaniek/go-can-hog/internal/metrics"
)

type BackpressurePolicy int

const (
	PolicyDrop BackpressurePolicy = iota
	PolicyKick
)

// ParsePolicy maps "drop" or "kick" to a policy.
func ParsePolicy(s string) (BackpressurePolicy, error) {
	switch s {
	case "drop", "":
		return PolicyDrop, nil
	case "kick":
		return PolicyKick, nil
	}
	return PolicyDrop, fmt.Errorf("unknown backpressure policy %q", s)
}

type EventKind int

const (
	// EventTransmitted: a one-shot frame left the controller.
	EventTransmitted EventKind = iota
	// EventFailed: a one-shot frame was accepted but its transmission failed.
	EventFailed
)

// Event is one asynchronous transmit outcome.
type Event struct {
	Kind  EventKind
	Frame can.Frame
	Err   error
}

// String renders the event as a shell line.
func (e Event) String() string {
	if e.Kind == EventFailed {
		return fmt.Sprintf("Failed to send TX frame %s: %v", e.Frame, e.Err)
	}
	return fmt.Sprintf("Queued TX frame transmitted (%s)", e.Frame)
}

type Client struct {
	Out       chan Event
	Closed    chan struct{}
	closeOnce sync.Once
}

// NewClient returns a client with an outbound queue of buf events.
func NewClient(buf int) *Client {
	if buf <= 0 {
		buf = 1
	}
	return &Client{Out: make(chan Event, buf), Closed: make(chan struct{})}
}

// Close signals the client is closed (idempotent).
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.Closed)
	})
}

type Hub struct {
	mu         sync.RWMutex
	clients    map[*Client]struct{}
	OutBufSize int
	Policy     BackpressurePolicy
}

// New creates a Hub with default settings.
func New() *Hub { return &Hub{clients: make(map[*Client]struct{})} }

// Add registers a client with the hub.
func (h *Hub) Add(c *Client) {
	h.mu.Lock()
	prev := len(h.clients)
	h.clients[c] = struct{}{}
	cur := len(h.clients)
	h.mu.Unlock()
	metrics.SetShellClients(cur)
	if prev == 0 && cur == 1 {
		logging.L().Info("sessions_first_connected")
	}
}

// Remove unregisters a client and updates metrics; safe to call multiple times.
func (h *Hub) Remove(c *Client) {
	h.mu.Lock()
	_, existed := h.clients[c]
	if existed {
		delete(h.clients, c)
	}
	cur := len(h.clients)
	h.mu.Unlock()
	c.Close()
	metrics.SetShellClients(cur)
	if existed && cur == 0 {
		logging.L().Info("sessions_last_disconnected")
	}
}

// Publish sends ev to every client honoring the backpressure policy. It never blocks.
func (h *Hub) Publish(ev Event) {
	for _, c := range h.Snapshot() {
		select {
		case c.Out <- ev:
		default:
			if h.Policy == PolicyKick {
				metrics.IncHubKick()
				c.Close() // writer exits; the server removes the session on disconnect
			} else {
				metrics.IncHubDrop()
			}
		}
	}
}

// Snapshot returns a slice copy of current clients (read-only use).
func (h *Hub) Snapshot() []*Client {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	return clients
}

// Count returns the number of active clients.
func (h *Hub) Count() int { h.mu.RLock(); n := len(h.clients); h.mu.RUnlock(); return n }
