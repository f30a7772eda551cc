package chat

import (
	"sync"

	"go-chat-engine/internal/conversation"
)

// Hub is the connection registry: it maps channels (conversation ids and
// personal user channels) to the clients subscribed to them.
type Hub struct {
	mu       sync.RWMutex
	channels map[string]map[*Client]struct{}
	joined   map[*Client]map[string]struct{} // reverse index for Remove
}

func NewHub() *Hub {
	return &Hub{
		channels: make(map[string]map[*Client]struct{}),
		joined:   make(map[*Client]map[string]struct{}),
	}
}

// PersonalChannel is the per-user channel that receives notifications for
// every conversation the user is part of.
func PersonalChannel(username string) string {
	return "user:" + conversation.Fold(username)
}

// Subscribe is idempotent.
func (h *Hub) Subscribe(c *Client, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.channels[channel] == nil {
		h.channels[channel] = make(map[*Client]struct{})
	}
	h.channels[channel][c] = struct{}{}
	if h.joined[c] == nil {
		h.joined[c] = make(map[string]struct{})
	}
	h.joined[c][channel] = struct{}{}
}

func (h *Hub) Unsubscribe(c *Client, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unsubscribeLocked(c, channel)
}

func (h *Hub) unsubscribeLocked(c *Client, channel string) {
	if set, ok := h.channels[channel]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.channels, channel)
		}
	}
	if set, ok := h.joined[c]; ok {
		delete(set, channel)
		if len(set) == 0 {
			delete(h.joined, c)
		}
	}
}

// Remove drops c from every channel and closes its outbound queue.
func (h *Hub) Remove(c *Client) {
	h.mu.Lock()
	for channel := range h.joined[c] {
		h.unsubscribeLocked(c, channel)
	}
	h.mu.Unlock()
	c.close()
}

func (h *Hub) IsSubscribed(c *Client, channel string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.channels[channel][c]
	return ok
}

func (h *Hub) Subscribers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}

// Broadcast sends event to every client subscribed to channel and returns
// how many accepted it. Closed clients are skipped and never retried.
func (h *Hub) Broadcast(channel, event string, payload any) (int, error) {
	frame, err := encode(event, payload)
	if err != nil {
		return 0, err
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.channels[channel]))
	for c := range h.channels[channel] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range targets {
		if c.deliver(frame) {
			delivered++
		}
	}
	return delivered, nil
}
