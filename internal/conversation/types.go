package conversation

import (
	"time"

	"github.com/rx3lixir/bijoy/internal/reaction"
)

const (
	// NoteLock is how long a note stays active and cannot be replaced.
	NoteLock = 24 * time.Hour

	// MaxNoteLength caps the note text, in runes.
	MaxNoteLength = 101

	// DefaultSelfID is the sender id used for the local user.
	DefaultSelfID = "me"
)

// Message is one entry in a conversation log
type Message struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversation_id"`
	SenderID       string        `json:"sender_id"`
	Text           string        `json:"text,omitempty"`
	Image          string        `json:"image,omitempty"`
	Video          string        `json:"video,omitempty"`
	Audio          string        `json:"audio,omitempty"`
	Sticker        string        `json:"sticker,omitempty"`
	Timestamp      time.Time     `json:"timestamp"`
	Reaction       reaction.Kind `json:"reaction,omitempty"`
	IsUnsent       bool          `json:"is_unsent"`
}

// IsMe reports whether the message was sent by selfID
func (m Message) IsMe(selfID string) bool {
	return m.SenderID == selfID
}

// Visible returns the message as consumers should render it: an unsent
// message keeps its identity but loses its payload.
func (m Message) Visible() Message {
	if !m.IsUnsent {
		return m
	}
	return Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Timestamp:      m.Timestamp,
		Reaction:       m.Reaction,
		IsUnsent:       true,
	}
}

// Payload is the content of a message about to be appended.
// An empty SenderID means the local user.
type Payload struct {
	SenderID string
	Text     string
	Image    string
	Video    string
	Audio    string
	Sticker  string
}

// Empty reports whether the payload carries no content at all
func (p Payload) Empty() bool {
	return p.Text == "" && p.Image == "" && p.Video == "" && p.Audio == "" && p.Sticker == ""
}

// Settings is the per-conversation configuration record
type Settings struct {
	ThemeColor     Theme     `json:"theme_color"`
	MyNickname     string    `json:"my_nickname"`
	FriendNickname string    `json:"friend_nickname"`
	IsBlocked      bool      `json:"is_blocked"`
	Note           string    `json:"note,omitempty"`
	NoteCreatedAt  time.Time `json:"note_created_at"`
}

// DefaultSettings is the record a conversation starts with
func DefaultSettings() Settings {
	return Settings{ThemeColor: DefaultTheme}
}

// NoteActive reports whether the note is still inside its lock window
func (s Settings) NoteActive(now time.Time) bool {
	return s.Note != "" && now.Sub(s.NoteCreatedAt) < NoteLock
}

// NoteRemaining is the time left before the note expires
func (s Settings) NoteRemaining(now time.Time) time.Duration {
	if !s.NoteActive(now) {
		return 0
	}
	return NoteLock - now.Sub(s.NoteCreatedAt)
}

// DisplayName resolves the partner's name with the nickname override
func (s Settings) DisplayName(partnerName string) string {
	if s.FriendNickname != "" {
		return s.FriendNickname
	}
	return partnerName
}

// MyDisplayName resolves the local user's name with the nickname override
func (s Settings) MyDisplayName(selfName string) string {
	if s.MyNickname != "" {
		return s.MyNickname
	}
	return selfName
}

// SettingsPatch carries the fields to shallow-merge; nil fields are untouched
type SettingsPatch struct {
	ThemeColor     *Theme  `json:"theme_color,omitempty"`
	MyNickname     *string `json:"my_nickname,omitempty"`
	FriendNickname *string `json:"friend_nickname,omitempty"`
	IsBlocked      *bool   `json:"is_blocked,omitempty"`
	Note           *string `json:"note,omitempty"`
}

// Summary describes a conversation for list views
type Summary struct {
	ID           string    `json:"id"`
	MessageCount int       `json:"message_count"`
	LastMessage  *Message  `json:"last_message,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
	Settings     Settings  `json:"settings"`
}

// Snapshot is the full state of one conversation
type Snapshot struct {
	ID       string    `json:"id"`
	Messages []Message `json:"messages"`
	Settings Settings  `json:"settings"`
}

// EventType names a change in the store
type EventType string

const (
	EventMessageAppended EventType = "message_appended"
	EventMessageUpdated  EventType = "message_updated"
	EventMessageDeleted  EventType = "message_deleted"
	EventSettingsUpdated EventType = "settings_updated"
)

// Event is emitted to subscribers after every successful mutation
type Event struct {
	Type           EventType `json:"type"`
	ConversationID string    `json:"conversation_id"`
	MessageID      string    `json:"message_id,omitempty"`
	Message        *Message  `json:"message,omitempty"`
	Settings       *Settings `json:"settings,omitempty"`
}
