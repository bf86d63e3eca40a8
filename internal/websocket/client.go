package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/rx3lixir/bijoy/internal/device"
	"github.com/rx3lixir/bijoy/pkg/audio"
	"golang.org/x/time/rate"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Send pings to peer with this period
	pingPeriod = 30 * time.Second

	// Maximum message size allowed from peer. Device clients push audio.
	maxMessageSize = 1 << 20

	sendBuffer = 256
)

// Client represents a single WebSocket connection
type Client struct {
	id             string
	conversationID string
	conn           *websocket.Conn
	hub            *Hub
	manager        *Manager
	send           chan []byte
	done           chan struct{}
	closeOnce      sync.Once
	limiter        *rate.Limiter
	log            *slog.Logger

	mu     sync.Mutex
	remote *device.Remote
}

func NewClient(conversationID string, conn *websocket.Conn, hub *Hub, manager *Manager) *Client {
	id := uuid.NewString()
	return &Client{
		id:             id,
		conversationID: conversationID,
		conn:           conn,
		hub:            hub,
		manager:        manager,
		send:           make(chan []byte, sendBuffer),
		done:           make(chan struct{}),
		limiter:        rate.NewLimiter(rate.Limit(manager.cfg.MessageRate), manager.cfg.MessageBurst),
		log:            manager.log.With("client_id", id, "conversation_id", conversationID),
	}
}

// enqueue never blocks. It reports false when the client is gone or
// its buffer is full.
func (c *Client) enqueue(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// Send delivers a message to this client only
func (c *Client) Send(message *Message) bool {
	data, err := message.ToJSON()
	if err != nil {
		c.log.Error("failed to marshal message", "error", err)
		return false
	}
	return c.enqueue(data)
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Client) device() *device.Remote {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remote
}

func (c *Client) setDevice(r *device.Remote) {
	c.mu.Lock()
	c.remote = r
	c.mu.Unlock()
}

// readPump pumps messages from the WebSocket connection. It runs on the
// handler goroutine and returns when the peer disconnects.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.manager.DetachDevice(c)
		c.hub.Unregister(c)
		c.close()
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		typ, data, err := c.conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				c.log.Debug("client disconnected normally")
			} else {
				c.log.Warn("websocket read error", "error", err)
			}
			return
		}

		switch typ {
		case websocket.MessageText:
			c.handleText(data)
		case websocket.MessageBinary:
			c.handleBinary(data)
		}
	}
}

// writePump pumps messages from the hub to the WebSocket connection
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		select {
		case data := <-c.send:
			writeCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Write(writeCtx, websocket.MessageText, data)
			cancel()

			if err != nil {
				c.log.Error("failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			writeCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Ping(writeCtx)
			cancel()

			if err != nil {
				c.log.Warn("failed to send ping", "error", err)
				return
			}

		case <-c.done:
			return

		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) handleText(data []byte) {
	if !c.limiter.Allow() {
		c.Send(NewError("rate_limited", "too many messages"))
		return
	}

	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.Send(NewError("bad_message", "message must be a JSON object"))
		return
	}

	switch msg.Type {
	case TypePing:
		c.Send(&Message{Type: TypePong})

	case TypeDeviceHello:
		var hello DeviceHello
		if err := json.Unmarshal(msg.Data, &hello); err != nil {
			c.Send(NewError("bad_message", "invalid device_hello"))
			return
		}
		if err := validate.Struct(hello); err != nil {
			c.Send(NewError("validation_failed", err.Error()))
			return
		}
		if err := c.manager.AttachDevice(c, hello); err != nil {
			c.Send(NewError("device_taken", err.Error()))
			return
		}

	case TypePermission:
		var p PermissionData
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			c.Send(NewError("bad_message", "invalid permission"))
			return
		}
		remote := c.device()
		if remote == nil {
			c.Send(NewError("no_device", "send device_hello first"))
			return
		}
		if p.Granted {
			remote.SetPermission(device.PermissionGranted)
		} else {
			remote.SetPermission(device.PermissionDenied)
		}

	case TypeDeviceBye:
		c.manager.DetachDevice(c)

	default:
		c.Send(NewError("unknown_type", string(msg.Type)))
	}
}

func (c *Client) handleBinary(data []byte) {
	remote := c.device()
	if remote == nil || len(data) < 2 {
		return
	}

	switch data[0] {
	case FrameMicPCM:
		samples, err := audio.DecodePCM16(data[1:])
		if err != nil {
			c.log.Debug("dropping malformed mic frame", "error", err)
			return
		}
		remote.PushFrame(samples)
	case FrameRecChunk:
		chunk := make([]byte, len(data)-1)
		copy(chunk, data[1:])
		remote.PushChunk(chunk)
	default:
		c.log.Debug("unknown binary frame tag", "tag", data[0])
	}
}

// forwardCommands relays hardware commands to the owning client until
// either side goes away.
func (c *Client) forwardCommands(remote *device.Remote) {
	for {
		select {
		case cmd := <-remote.Commands():
			if !c.Send(NewDeviceCommand(cmd)) {
				c.log.Warn("dropped device command", "type", cmd.Type)
			}
		case <-remote.Done():
			return
		case <-c.done:
			return
		}
	}
}
