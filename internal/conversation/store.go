package conversation

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rx3lixir/bijoy/internal/metrics"
	"github.com/rx3lixir/bijoy/internal/reaction"
	"github.com/rx3lixir/bijoy/pkg/logger"
)

// StoreConfig configures a Store. Zero values pick the defaults.
type StoreConfig struct {
	SelfID string
	Now    func() time.Time
	NewID  func() string
	Log    *slog.Logger
}

type conversation struct {
	messages []*Message
	settings Settings
}

// Store owns the message log and settings of every conversation.
// It is the only place message and settings state is mutated.
type Store struct {
	mu            sync.RWMutex
	conversations map[string]*conversation
	// message id -> conversation id
	index map[string]string

	selfID string
	now    func() time.Time
	newID  func() string
	log    *slog.Logger

	subMu   sync.RWMutex
	subs    map[int]func(Event)
	nextSub int
}

func NewStore(cfg StoreConfig) *Store {
	if cfg.SelfID == "" {
		cfg.SelfID = DefaultSelfID
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = newMessageID
	}

	return &Store{
		conversations: make(map[string]*conversation),
		index:         make(map[string]string),
		selfID:        cfg.SelfID,
		now:           cfg.Now,
		newID:         cfg.NewID,
		log:           logger.OrDefault(cfg.Log),
		subs:          make(map[int]func(Event)),
	}
}

// newMessageID returns a time-ordered UUIDv7, so ids sort in creation order
func newMessageID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// SelfID is the sender id of the local user
func (s *Store) SelfID() string {
	return s.selfID
}

// Subscribe registers fn for every change event. The returned func removes it.
// Events are delivered after the store lock is released, in mutation order
// for a single caller.
func (s *Store) Subscribe(fn func(Event)) func() {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) emit(ev Event) {
	s.subMu.RLock()
	fns := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// getOrCreate must be called with s.mu held for writing
func (s *Store) getOrCreate(conversationID string) *conversation {
	c, ok := s.conversations[conversationID]
	if !ok {
		c = &conversation{settings: DefaultSettings()}
		s.conversations[conversationID] = c
		s.log.Debug("conversation created", "conversation_id", conversationID)
	}
	return c
}

// expireNote clears a note whose window elapsed. Must hold s.mu for writing.
func (s *Store) expireNote(c *conversation) bool {
	if c.settings.Note == "" || c.settings.NoteActive(s.now()) {
		return false
	}
	c.settings.Note = ""
	c.settings.NoteCreatedAt = time.Time{}
	return true
}

// AppendMessage adds a message to the end of the conversation log.
// It is a no-op returning false when the conversation is blocked.
func (s *Store) AppendMessage(conversationID string, p Payload) (Message, bool) {
	s.mu.Lock()
	c := s.getOrCreate(conversationID)
	if c.settings.IsBlocked {
		s.mu.Unlock()
		metrics.AppendsBlocked.Inc()
		s.log.Debug("append dropped, conversation blocked", "conversation_id", conversationID)
		return Message{}, false
	}

	sender := p.SenderID
	if sender == "" {
		sender = s.selfID
	}

	msg := &Message{
		ID:             s.newID(),
		ConversationID: conversationID,
		SenderID:       sender,
		Text:           p.Text,
		Image:          p.Image,
		Video:          p.Video,
		Audio:          p.Audio,
		Sticker:        p.Sticker,
		Timestamp:      s.now(),
	}
	c.messages = append(c.messages, msg)
	s.index[msg.ID] = conversationID
	out := *msg
	s.mu.Unlock()

	metrics.MessagesAppended.Inc()
	s.log.Debug("message appended",
		"conversation_id", conversationID,
		"message_id", out.ID,
		"sender_id", out.SenderID,
	)

	s.emit(Event{
		Type:           EventMessageAppended,
		ConversationID: conversationID,
		MessageID:      out.ID,
		Message:        &out,
	})
	return out, true
}

// locate must be called with s.mu held
func (s *Store) locate(messageID string) (string, int, bool) {
	convID, ok := s.index[messageID]
	if !ok {
		return "", -1, false
	}
	c, ok := s.conversations[convID]
	if !ok {
		return "", -1, false
	}
	for i, m := range c.messages {
		if m.ID == messageID {
			return convID, i, true
		}
	}
	return "", -1, false
}

// SetReaction applies kind to a message. Applying the reaction the message
// already carries clears it. Unknown conversations or messages are a no-op.
func (s *Store) SetReaction(conversationID, messageID string, kind reaction.Kind) (Message, bool) {
	if kind != reaction.None && !kind.Valid() {
		return Message{}, false
	}

	s.mu.Lock()
	convID, i, ok := s.locate(messageID)
	if !ok || convID != conversationID {
		s.mu.Unlock()
		return Message{}, false
	}

	msg := s.conversations[convID].messages[i]
	if msg.Reaction == kind {
		msg.Reaction = reaction.None
	} else {
		msg.Reaction = kind
	}
	out := *msg
	s.mu.Unlock()

	s.emit(Event{
		Type:           EventMessageUpdated,
		ConversationID: convID,
		MessageID:      messageID,
		Message:        &out,
	})
	return out, true
}

// Unsend turns a message into a tombstone. The record keeps its position,
// id and timestamp. Authorship is enforced by the caller.
func (s *Store) Unsend(messageID string) (Message, bool) {
	s.mu.Lock()
	convID, i, ok := s.locate(messageID)
	if !ok {
		s.mu.Unlock()
		return Message{}, false
	}

	msg := s.conversations[convID].messages[i]
	changed := !msg.IsUnsent
	msg.IsUnsent = true
	out := *msg
	s.mu.Unlock()

	if changed {
		s.emit(Event{
			Type:           EventMessageUpdated,
			ConversationID: convID,
			MessageID:      messageID,
			Message:        &out,
		})
	}
	return out, true
}

// DeleteForMe removes a message from the log entirely
func (s *Store) DeleteForMe(messageID string) bool {
	s.mu.Lock()
	convID, i, ok := s.locate(messageID)
	if !ok {
		s.mu.Unlock()
		return false
	}

	c := s.conversations[convID]
	c.messages = append(c.messages[:i], c.messages[i+1:]...)
	delete(s.index, messageID)
	s.mu.Unlock()

	s.log.Debug("message deleted", "conversation_id", convID, "message_id", messageID)

	s.emit(Event{
		Type:           EventMessageDeleted,
		ConversationID: convID,
		MessageID:      messageID,
	})
	return true
}

// GetOrCreateSettings returns the settings of a conversation, creating the
// default record on first access. An elapsed note is cleared on the way.
func (s *Store) GetOrCreateSettings(conversationID string) Settings {
	s.mu.Lock()
	_, existed := s.conversations[conversationID]
	c := s.getOrCreate(conversationID)
	expired := s.expireNote(c)
	out := c.settings
	s.mu.Unlock()

	if !existed || expired {
		s.emit(Event{
			Type:           EventSettingsUpdated,
			ConversationID: conversationID,
			Settings:       &out,
		})
	}
	return out
}

// UpdateSettings shallow-merges patch into the conversation settings.
// The patch is applied atomically: if any field is rejected nothing changes.
// A note can only be set when no unexpired note exists.
func (s *Store) UpdateSettings(conversationID string, patch SettingsPatch) (Settings, error) {
	if patch.ThemeColor != nil && !patch.ThemeColor.Valid() {
		return Settings{}, fmt.Errorf("%w: %q", ErrUnknownTheme, *patch.ThemeColor)
	}

	var note string
	if patch.Note != nil {
		note = strings.TrimSpace(*patch.Note)
		if note == "" {
			return Settings{}, ErrEmptyNote
		}
		if r := []rune(note); len(r) > MaxNoteLength {
			note = string(r[:MaxNoteLength])
		}
	}

	s.mu.Lock()
	c := s.getOrCreate(conversationID)
	s.expireNote(c)

	if patch.Note != nil && c.settings.NoteActive(s.now()) {
		out := c.settings
		s.mu.Unlock()
		return out, ErrNoteLocked
	}

	if patch.ThemeColor != nil {
		c.settings.ThemeColor = *patch.ThemeColor
	}
	if patch.MyNickname != nil {
		c.settings.MyNickname = *patch.MyNickname
	}
	if patch.FriendNickname != nil {
		c.settings.FriendNickname = *patch.FriendNickname
	}
	if patch.IsBlocked != nil {
		c.settings.IsBlocked = *patch.IsBlocked
	}
	if patch.Note != nil {
		c.settings.Note = note
		c.settings.NoteCreatedAt = s.now()
	}
	out := c.settings
	s.mu.Unlock()

	s.log.Debug("settings updated",
		"conversation_id", conversationID,
		"theme", out.ThemeColor,
		"blocked", out.IsBlocked,
	)

	s.emit(Event{
		Type:           EventSettingsUpdated,
		ConversationID: conversationID,
		Settings:       &out,
	})
	return out, nil
}

// Messages returns a copy of the log in append order
func (s *Store) Messages(conversationID string) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.conversations[conversationID]
	if !ok {
		return []Message{}
	}
	out := make([]Message, len(c.messages))
	for i, m := range c.messages {
		out[i] = *m
	}
	return out
}

// Message looks up a single message by id
func (s *Store) Message(messageID string) (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	convID, i, ok := s.locate(messageID)
	if !ok {
		return Message{}, false
	}
	return *s.conversations[convID].messages[i], true
}

// Conversations lists every known conversation, most recently active first
func (s *Store) Conversations() []Summary {
	s.mu.RLock()
	out := make([]Summary, 0, len(s.conversations))
	for id, c := range s.conversations {
		sum := Summary{
			ID:           id,
			MessageCount: len(c.messages),
			Settings:     c.settings,
		}
		if n := len(c.messages); n > 0 {
			last := c.messages[n-1].Visible()
			sum.LastMessage = &last
			sum.UpdatedAt = last.Timestamp
		}
		out = append(out, sum)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Snapshot returns the full state of a conversation
func (s *Store) Snapshot(conversationID string) (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.conversations[conversationID]
	if !ok {
		return Snapshot{}, false
	}
	snap := Snapshot{
		ID:       conversationID,
		Messages: make([]Message, len(c.messages)),
		Settings: c.settings,
	}
	for i, m := range c.messages {
		snap.Messages[i] = *m
	}
	return snap, true
}

// Load replaces a conversation with snap. It emits no events.
func (s *Store) Load(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.conversations[snap.ID]; ok {
		for _, m := range old.messages {
			delete(s.index, m.ID)
		}
	}

	c := &conversation{settings: snap.Settings}
	if c.settings.ThemeColor == "" {
		c.settings.ThemeColor = DefaultTheme
	}
	c.messages = make([]*Message, len(snap.Messages))
	for i := range snap.Messages {
		m := snap.Messages[i]
		m.ConversationID = snap.ID
		c.messages[i] = &m
		s.index[m.ID] = snap.ID
	}
	s.conversations[snap.ID] = c
}
