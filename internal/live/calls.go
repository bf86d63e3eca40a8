package live

import (
	"context"
	"log/slog"
	"sync"

	"github.com/rx3lixir/bijoy/internal/device"
	"github.com/rx3lixir/bijoy/pkg/logger"
)

// HostSource resolves the audio host serving a conversation
type HostSource func(conversationID string) (device.Host, error)

// Calls keeps at most one session per conversation
type Calls struct {
	cfg   Config
	hosts HostSource
	log   *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewCalls(cfg Config, hosts HostSource) *Calls {
	cfg.setDefaults()
	return &Calls{
		cfg:      cfg,
		hosts:    hosts,
		log:      logger.OrDefault(cfg.Log),
		sessions: make(map[string]*Session),
	}
}

// Start creates and connects a session for the conversation. The session
// is returned even when Connect fails so its failed status stays visible.
func (c *Calls) Start(ctx context.Context, conversationID, partnerName string) (*Session, error) {
	host, err := c.hosts(conversationID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if cur, ok := c.sessions[conversationID]; ok {
		select {
		case <-cur.Done():
		default:
			c.mu.Unlock()
			return nil, ErrCallActive
		}
	}

	cfg := c.cfg
	cfg.Host = host
	cfg.Log = c.log.With("conversation_id", conversationID)
	s := NewSession(cfg, partnerName)
	c.sessions[conversationID] = s
	c.mu.Unlock()

	go c.forget(conversationID, s)

	return s, s.Connect(ctx)
}

func (c *Calls) forget(conversationID string, s *Session) {
	<-s.Done()
	c.mu.Lock()
	if c.sessions[conversationID] == s {
		delete(c.sessions, conversationID)
	}
	c.mu.Unlock()
}

func (c *Calls) Get(conversationID string) (*Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[conversationID]
	return s, ok
}

func (c *Calls) End(conversationID string) error {
	s, ok := c.Get(conversationID)
	if !ok {
		return ErrNoSession
	}
	s.End()
	return nil
}

// EndAll hangs up every call
func (c *Calls) EndAll() {
	c.mu.Lock()
	sessions := make([]*Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		sessions = append(sessions, s)
	}
	c.mu.Unlock()

	for _, s := range sessions {
		s.End()
	}
}
