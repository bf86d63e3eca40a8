package websocket

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/rx3lixir/bijoy/internal/conversation"
	"github.com/rx3lixir/bijoy/internal/device"
	"github.com/rx3lixir/bijoy/pkg/logger"
)

var ErrDeviceTaken = errors.New("another client already owns the audio device")

type Config struct {
	// Control messages per second allowed from one client
	MessageRate  float64
	MessageBurst int
	// Origins accepted on upgrade. Empty means same host only.
	OriginPatterns []string
	Log            *slog.Logger
}

type deviceLink struct {
	owner  *Client
	remote *device.Remote
}

// Manager owns one hub per watched conversation and the device link of
// each conversation.
type Manager struct {
	hubs sync.Map // map[string]*Hub
	cfg  Config
	log  *slog.Logger

	mu      sync.Mutex
	devices map[string]*deviceLink

	unsubscribe func()
}

// NewManager starts relaying every store event to the matching hub
func NewManager(store *conversation.Store, cfg Config) *Manager {
	if cfg.MessageRate <= 0 {
		cfg.MessageRate = 10
	}
	if cfg.MessageBurst <= 0 {
		cfg.MessageBurst = 20
	}
	m := &Manager{
		cfg:     cfg,
		log:     logger.OrDefault(cfg.Log),
		devices: make(map[string]*deviceLink),
	}
	m.unsubscribe = store.Subscribe(m.onEvent)
	return m
}

func (m *Manager) onEvent(ev conversation.Event) {
	if hub, ok := m.hubs.Load(ev.ConversationID); ok {
		hub.(*Hub).Send(NewEvent(ev))
	}
}

// GetOrCreateHub returns existing hub or creates new one
func (m *Manager) GetOrCreateHub(conversationID string) *Hub {
	if hub, ok := m.hubs.Load(conversationID); ok {
		return hub.(*Hub)
	}

	hub := NewHub(conversationID, m.log)
	actual, loaded := m.hubs.LoadOrStore(conversationID, hub)
	if !loaded {
		go hub.Run()
		m.log.Info("created new hub", "conversation_id", conversationID)
	}
	return actual.(*Hub)
}

// ServeWS upgrades the request and serves the connection until the peer
// leaves.
func (m *Manager) ServeWS(w http.ResponseWriter, r *http.Request, conversationID string) error {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: m.cfg.OriginPatterns,
	})
	if err != nil {
		return err
	}
	conn.SetReadLimit(maxMessageSize)

	hub := m.GetOrCreateHub(conversationID)
	client := NewClient(conversationID, conn, hub, m)
	if !hub.Register(client) {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return nil
	}

	ctx := r.Context()
	go client.writePump(ctx)
	client.readPump(ctx)
	return nil
}

// AttachDevice makes client the audio device of its conversation
func (m *Manager) AttachDevice(client *Client, hello DeviceHello) error {
	m.mu.Lock()
	if link, ok := m.devices[client.conversationID]; ok {
		m.mu.Unlock()
		if link.owner == client {
			link.remote.SetPermission(parsePermission(hello.Permission))
			return nil
		}
		return ErrDeviceTaken
	}

	remote := device.NewRemote(device.RemoteConfig{
		SampleRate: hello.SampleRate,
		Formats:    hello.Formats,
		Log:        client.log,
	})
	remote.SetPermission(parsePermission(hello.Permission))
	m.devices[client.conversationID] = &deviceLink{owner: client, remote: remote}
	m.mu.Unlock()

	client.setDevice(remote)
	go client.forwardCommands(remote)

	client.Send(&Message{Type: TypeDeviceAttached, Data: hello})
	client.log.Info("audio device attached",
		"sample_rate", hello.SampleRate,
		"formats", hello.Formats,
	)
	return nil
}

// DetachDevice disconnects the device owned by client, if any
func (m *Manager) DetachDevice(client *Client) {
	m.mu.Lock()
	link, ok := m.devices[client.conversationID]
	if !ok || link.owner != client {
		m.mu.Unlock()
		return
	}
	delete(m.devices, client.conversationID)
	m.mu.Unlock()

	client.setDevice(nil)
	link.remote.Close()
	client.log.Info("audio device detached")
}

// Host returns the audio hardware attached to a conversation
func (m *Manager) Host(conversationID string) (device.Host, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	link, ok := m.devices[conversationID]
	if !ok {
		return nil, device.ErrNoDevice
	}
	return link.remote, nil
}

func (m *Manager) Microphone(conversationID string) (device.Microphone, error) {
	return m.Host(conversationID)
}

// Shutdown gracefully shuts down all hubs and devices
func (m *Manager) Shutdown() {
	m.unsubscribe()

	m.mu.Lock()
	links := m.devices
	m.devices = make(map[string]*deviceLink)
	m.mu.Unlock()
	for _, link := range links {
		link.remote.Close()
	}

	m.hubs.Range(func(_, value any) bool {
		value.(*Hub).Shutdown()
		return true
	})
}

// Stats returns per-conversation hub statistics for monitoring
func (m *Manager) Stats() map[string]HubStats {
	stats := make(map[string]HubStats)
	m.hubs.Range(func(key, value any) bool {
		stats[key.(string)] = value.(*Hub).Stats()
		return true
	})
	return stats
}
