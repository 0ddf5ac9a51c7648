package websocket

import (
	"encoding/json"
	"sync"

	"convwin/pkg/logger"
)

// Hub maintains the set of active clients and their thread subscriptions.
type Hub struct {
	clients map[*Client]bool

	// thread id -> subscribed clients
	threads map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *BroadcastMessage
	done       chan struct{}
	stopOnce   sync.Once

	mu sync.RWMutex
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		threads:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage, 256),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main loop. It returns after Stop.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for client := range h.clients {
				h.remove(client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			logger.Info().Str("client_id", client.id).Msg("WebSocket client connected")

		case client := <-h.unregister:
			h.mu.Lock()
			h.remove(client)
			h.mu.Unlock()
			logger.Info().Str("client_id", client.id).Msg("WebSocket client disconnected")

		case msg := <-h.broadcast:
			h.mu.RLock()
			targets := h.clients
			if msg.Thread != "" {
				targets = h.threads[msg.Thread]
			}
			for client := range targets {
				client.enqueue(msg.Data)
			}
			h.mu.RUnlock()
		}
	}
}

// remove drops a client and all its subscriptions. Caller holds mu.
func (h *Hub) remove(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	client.close()

	for thread := range client.threads {
		if clients, ok := h.threads[thread]; ok {
			delete(clients, client)
			if len(clients) == 0 {
				delete(h.threads, thread)
			}
		}
	}
}

// Stop ends Run and disconnects every client. Safe to call more than once.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
	}
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Subscribe adds a client to a thread's subscriber list.
func (h *Hub) Subscribe(client *Client, thread string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client.threads[thread] = true
	if h.threads[thread] == nil {
		h.threads[thread] = make(map[*Client]bool)
	}
	h.threads[thread][client] = true

	logger.Debug().
		Str("client_id", client.id).
		Str("thread_id", thread).
		Msg("Client subscribed to thread")
}

// Unsubscribe removes a client from a thread's subscriber list.
func (h *Hub) Unsubscribe(client *Client, thread string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(client.threads, thread)
	if clients, ok := h.threads[thread]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.threads, thread)
		}
	}
}

// Publish queues a typed event for the subscribers of thread, or for every
// client when thread is empty. It never blocks; when the queue is full the
// event is dropped and false returned.
func (h *Hub) Publish(messageType, thread string, payload any) bool {
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Error().Err(err).Str("type", messageType).Msg("Failed to marshal event payload")
		return false
	}
	frame, err := json.Marshal(WSMessage{Type: messageType, Thread: thread, Data: data})
	if err != nil {
		return false
	}

	select {
	case h.broadcast <- &BroadcastMessage{Thread: thread, Data: frame}:
		return true
	default:
		logger.Warn().Str("type", messageType).Str("thread_id", thread).Msg("Event queue full, dropping event")
		return false
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SubscriberCount returns the number of clients subscribed to thread.
func (h *Hub) SubscriberCount(thread string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.threads[thread])
}
