// Package livefeed pushes newly committed speed-test records to connected
// dashboards over websockets.
package livefeed

import (
	"sync"
)

// Hub fans broadcast messages out to registered subscriber channels.
// Slow subscribers miss messages rather than block the hub.
type Hub struct {
	mu         sync.RWMutex
	clients    map[string]chan Message
	register   chan registration
	unregister chan string
	broadcast  chan Message
	shutdown   chan struct{}
	stopOnce   sync.Once
}

type registration struct {
	id string
	ch chan Message
}

// NewHub creates and starts a new Hub.
func NewHub() *Hub {
	h := &Hub{
		clients:    make(map[string]chan Message),
		register:   make(chan registration),
		unregister: make(chan string),
		broadcast:  make(chan Message, 100),
		shutdown:   make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case reg := <-h.register:
			h.mu.Lock()
			if old, ok := h.clients[reg.id]; ok {
				close(old)
			}
			h.clients[reg.id] = reg.ch
			h.mu.Unlock()
		case id := <-h.unregister:
			h.mu.Lock()
			if ch, ok := h.clients[id]; ok {
				close(ch)
				delete(h.clients, id)
			}
			h.mu.Unlock()
		case msg := <-h.broadcast:
			h.mu.RLock()
			for id, ch := range h.clients {
				select {
				case ch <- msg:
				default:
					logs.Debug("live feed subscriber too slow, dropping message", "client", id, "type", msg.Type)
				}
			}
			h.mu.RUnlock()
		case <-h.shutdown:
			h.mu.Lock()
			for id, ch := range h.clients {
				close(ch)
				delete(h.clients, id)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Register subscribes ch under id. ch should be buffered. It returns false
// if the hub is stopped.
func (h *Hub) Register(id string, ch chan Message) bool {
	select {
	case h.register <- registration{id: id, ch: ch}:
		return true
	case <-h.shutdown:
		return false
	}
}

// Unregister removes the client with the given id and closes its channel.
func (h *Hub) Unregister(id string) {
	select {
	case h.unregister <- id:
	case <-h.shutdown:
	}
}

// Broadcast queues msg for every subscriber without blocking the caller.
// It reports whether the message was queued.
func (h *Hub) Broadcast(msg Message) bool {
	select {
	case <-h.shutdown:
		return false
	default:
	}
	select {
	case h.broadcast <- msg:
		return true
	default:
		logs.Warn("live feed queue full, dropping message", "type", msg.Type)
		return false
	}
}

// ClientCount returns the number of registered subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stop shuts down the hub and closes all client channels. Safe to call twice.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.shutdown) })
}
