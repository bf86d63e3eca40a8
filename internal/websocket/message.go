package websocket

import (
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rx3lixir/bijoy/internal/conversation"
	"github.com/rx3lixir/bijoy/internal/device"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// Client -> Server
	TypePing        MessageType = "ping"
	TypeDeviceHello MessageType = "device_hello"
	TypePermission  MessageType = "permission"
	TypeDeviceBye   MessageType = "device_bye"

	// Server -> Client
	TypePong            MessageType = "pong"
	TypeConnectionAck   MessageType = "connection_ack"
	TypeMessageAppended MessageType = MessageType(conversation.EventMessageAppended)
	TypeMessageUpdated  MessageType = MessageType(conversation.EventMessageUpdated)
	TypeMessageDeleted  MessageType = MessageType(conversation.EventMessageDeleted)
	TypeSettingsUpdated MessageType = MessageType(conversation.EventSettingsUpdated)
	TypeDeviceAttached  MessageType = "device_attached"
	TypeDeviceCommand   MessageType = "device_command"
	TypeError           MessageType = "error"
)

// Binary frames from a device client start with one of these tags
const (
	FrameMicPCM   byte = 0x01
	FrameRecChunk byte = 0x02
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ClientMessage represents any text message from a client
type ClientMessage struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Message represents any message to a client
type Message struct {
	Type      MessageType `json:"type"`
	Data      any         `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// DeviceHello declares that the client owns the audio hardware
type DeviceHello struct {
	Permission string   `json:"permission" validate:"required,oneof=granted denied prompt"`
	SampleRate int      `json:"sample_rate" validate:"required,min=8000,max=192000"`
	Formats    []string `json:"formats" validate:"dive,required"`
}

type PermissionData struct {
	Granted bool `json:"granted"`
}

type ConnectionAckData struct {
	ConversationID string `json:"conversation_id"`
	Clients        int    `json:"clients"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func parsePermission(s string) device.Permission {
	switch s {
	case "granted":
		return device.PermissionGranted
	case "denied":
		return device.PermissionDenied
	default:
		return device.PermissionPrompt
	}
}

// NewEvent wraps a store event. Unsent messages are sent without payload.
func NewEvent(ev conversation.Event) *Message {
	if ev.Message != nil {
		visible := ev.Message.Visible()
		ev.Message = &visible
	}
	return &Message{Type: MessageType(ev.Type), Data: ev}
}

func NewDeviceCommand(cmd device.Command) *Message {
	return &Message{Type: TypeDeviceCommand, Data: cmd}
}

func NewError(code, message string) *Message {
	return &Message{
		Type: TypeError,
		Data: ErrorData{Code: code, Message: message},
	}
}

// ToJSON stamps and encodes the message
func (m *Message) ToJSON() ([]byte, error) {
	if m.Timestamp == 0 {
		m.Timestamp = time.Now().Unix()
	}
	return json.Marshal(m)
}
