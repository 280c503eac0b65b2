package ws

import (
	"sync"
)

// Hub tracks live subscribers on two independent channels: a broadcast set
// that sees every event, and per-user sets that see only events for
// conversations the user belongs to. Register/unregister is safe under
// concurrent connect/disconnect; delivery is best-effort.
type Hub struct {
	broadcast map[*Client]struct{}
	byUser    map[string]map[*Client]struct{}
	mu        sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		broadcast: make(map[*Client]struct{}),
		byUser:    make(map[string]map[*Client]struct{}),
	}
}

func (h *Hub) RegisterBroadcast(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.broadcast[c] = struct{}{}
}

func (h *Hub) RegisterUser(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.byUser[c.UserID]; !ok {
		h.byUser[c.UserID] = make(map[*Client]struct{})
	}
	h.byUser[c.UserID][c] = struct{}{}
}

func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.broadcast, c)
	if set, ok := h.byUser[c.UserID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.byUser, c.UserID)
		}
	}
}

// Broadcast pushes to every broadcast subscriber. A slow client's full
// buffer drops the frame rather than blocking the fanout.
func (h *Hub) Broadcast(payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.broadcast {
		c.Push(payload)
	}
}

// SendToUser pushes to every socket the user has open.
func (h *Hub) SendToUser(userID string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.byUser[userID] {
		c.Push(payload)
	}
}

func (h *Hub) UserConnections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byUser[userID])
}
