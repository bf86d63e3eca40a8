package websocket

import (
	"log/slog"
	"sync"
	"time"
)

// Hub fans conversation events out to every client watching a conversation
type Hub struct {
	// Conversation identifier
	conversationID string

	// Registered clients (only accessed by hub goroutine)
	clients map[*Client]bool

	// Outbound messages for every client
	broadcast chan *Message

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Shutdown signal
	shutdown     chan struct{}
	shutdownOnce sync.Once
	stopped      chan struct{}

	mu    sync.Mutex
	stats HubStats

	log *slog.Logger
}

type HubStats struct {
	ConnectedClients int       `json:"connected_clients"`
	MessagesSent     int64     `json:"messages_sent"`
	MessagesDropped  int64     `json:"messages_dropped"`
	LastActivity     time.Time `json:"last_activity"`
}

func NewHub(conversationID string, log *slog.Logger) *Hub {
	return &Hub{
		conversationID: conversationID,
		clients:        make(map[*Client]bool),
		broadcast:      make(chan *Message, 256),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		shutdown:       make(chan struct{}),
		stopped:        make(chan struct{}),
		stats:          HubStats{LastActivity: time.Now()},
		log:            log.With("conversation_id", conversationID),
	}
}

// Run is the main event loop - handles ALL state changes sequentially
func (h *Hub) Run() {
	defer close(h.stopped)

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case client := <-h.register:
			h.handleRegister(client)

		case client := <-h.unregister:
			h.handleUnregister(client)

		case message := <-h.broadcast:
			h.handleBroadcast(message)

		case <-ticker.C:
			h.handleHealthCheck()

		case <-h.shutdown:
			h.handleShutdown()
			return
		}
	}
}

func (h *Hub) handleRegister(client *Client) {
	h.clients[client] = true
	h.updateStats(func(s *HubStats) { s.ConnectedClients = len(h.clients) })

	h.log.Info("client registered",
		"client_id", client.id,
		"total_clients", len(h.clients),
	)

	client.Send(&Message{
		Type: TypeConnectionAck,
		Data: ConnectionAckData{
			ConversationID: h.conversationID,
			Clients:        len(h.clients),
		},
	})
}

func (h *Hub) handleUnregister(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	h.updateStats(func(s *HubStats) { s.ConnectedClients = len(h.clients) })
	client.close()

	h.log.Info("client unregistered",
		"client_id", client.id,
		"remaining_clients", len(h.clients),
	)
}

func (h *Hub) handleBroadcast(message *Message) {
	data, err := message.ToJSON()
	if err != nil {
		h.log.Error("failed to marshal message", "error", err)
		return
	}

	var sent, dropped int64
	for client := range h.clients {
		if client.enqueue(data) {
			sent++
			continue
		}
		// Client is too slow, disconnect it
		h.log.Warn("client buffer full, disconnecting", "client_id", client.id)
		dropped++
		h.handleUnregister(client)
	}

	h.updateStats(func(s *HubStats) {
		s.LastActivity = time.Now()
		s.MessagesSent += sent
		s.MessagesDropped += dropped
	})
}

func (h *Hub) handleHealthCheck() {
	stats := h.Stats()
	if len(h.clients) == 0 && time.Since(stats.LastActivity) > 5*time.Minute {
		h.log.Debug("hub idle")
	}
}

func (h *Hub) handleShutdown() {
	h.log.Info("shutting down hub")

	for client := range h.clients {
		client.close()
	}
	h.clients = make(map[*Client]bool)
	h.updateStats(func(s *HubStats) { s.ConnectedClients = 0 })
}

func (h *Hub) updateStats(fn func(*HubStats)) {
	h.mu.Lock()
	fn(&h.stats)
	h.mu.Unlock()
}

// Stats is safe to call from any goroutine
func (h *Hub) Stats() HubStats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats
}

// Register adds a client. It reports false once the hub is shut down.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.stopped:
		return false
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.stopped:
	}
}

// Send queues a message for every client without blocking
func (h *Hub) Send(message *Message) {
	select {
	case h.broadcast <- message:
	default:
		h.log.Error("hub broadcast channel full", "type", message.Type)
		h.updateStats(func(s *HubStats) { s.MessagesDropped++ })
	}
}

// Shutdown stops the hub and closes every client. It waits for the loop.
func (h *Hub) Shutdown() {
	h.shutdownOnce.Do(func() { close(h.shutdown) })
	<-h.stopped
}
