// internal/messaging/hub.go

package messaging

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Hub maintains active websocket connections. A user may hold several
// connections at once (one per open tab or device).
type Hub struct {
	// Registered clients by user
	clients    map[string]map[*Client]struct{}
	clientsMux sync.RWMutex

	// Register/unregister clients
	register   chan *Client
	unregister chan *Client

	service Service
	logger  zerolog.Logger

	// Context for graceful shutdown
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func NewHub(service Service, logger zerolog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())

	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		service:    service,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

func (h *Hub) Run() {
	defer func() {
		h.cleanup()
		close(h.done)
	}()

	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case <-h.ctx.Done():
			return
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.clientsMux.Lock()
	defer h.clientsMux.Unlock()

	if h.clients[client.userID] == nil {
		h.clients[client.userID] = make(map[*Client]struct{})
	}
	h.clients[client.userID][client] = struct{}{}
	wsConnections.Inc()

	h.logger.Debug().Str("user_id", client.userID).Int("user_connections", len(h.clients[client.userID])).
		Msg("Client connected")
}

func (h *Hub) unregisterClient(client *Client) {
	h.clientsMux.Lock()
	defer h.clientsMux.Unlock()

	conns, ok := h.clients[client.userID]
	if !ok {
		return
	}
	if _, ok := conns[client]; !ok {
		return
	}

	delete(conns, client)
	if len(conns) == 0 {
		delete(h.clients, client.userID)
	}
	wsConnections.Dec()
	client.Close()

	h.logger.Debug().Str("user_id", client.userID).Msg("Client disconnected")
}

// Register hands a connected client to the hub. It reports false once the hub is shutting down.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// Unregister removes a client; safe after shutdown
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

func (h *Hub) cleanup() {
	h.clientsMux.Lock()
	defer h.clientsMux.Unlock()

	for _, conns := range h.clients {
		for client := range conns {
			client.Close()
			wsConnections.Dec()
		}
	}
	h.clients = make(map[string]map[*Client]struct{})
}

// IsUserOnline reports whether the user holds at least one connection
func (h *Hub) IsUserOnline(userID string) bool {
	h.clientsMux.RLock()
	defer h.clientsMux.RUnlock()

	return len(h.clients[userID]) > 0
}

func (h *Hub) GetActiveConnections() int {
	h.clientsMux.RLock()
	defer h.clientsMux.RUnlock()

	n := 0
	for _, conns := range h.clients {
		n += len(conns)
	}
	return n
}

// Shutdown closes every connection and waits for Run to exit
func (h *Hub) Shutdown() {
	h.cancel()
	<-h.done
}
