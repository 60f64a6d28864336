package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// Control events sent by the client.
const (
	EventSubscribe   = "subscribe"
	EventUnsubscribe = "unsubscribe"
	EventPing        = "ping"
)

// Control events sent by the server.
const (
	EventConnection   = "connection"
	EventSubscribed   = "subscribed"
	EventUnsubscribed = "unsubscribed"
	EventPong         = "pong"
	EventError        = "error"
)

// Application events. The core treats these as opaque type strings.
const (
	EventMessageSent  = "message.sent"
	EventUserTyping   = "user.typing"
	EventMessageRead  = "message.read"
	EventMessagesLoad = "messages.load"
	EventChatsLoad    = "chats.load"
)

// Envelope is the wire unit for both directions. Only Type is required.
type Envelope struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Channel   string          `json:"channel,omitempty"`
	UserID    json.RawMessage `json:"user_id,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
}

// NewEnvelope builds an envelope, encoding data when it is non-nil.
func NewEnvelope(eventType, channel string, data any) (Envelope, error) {
	env := Envelope{Type: eventType, Channel: channel}
	if data == nil {
		return env, nil
	}
	if raw, ok := data.(json.RawMessage); ok {
		env.Data = raw
		return env, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s data: %w", eventType, err)
	}
	env.Data = raw
	return env, nil
}

// IsServerControl reports whether eventType is a protocol reply that the
// client consumes itself instead of handing to listeners.
func IsServerControl(eventType string) bool {
	switch eventType {
	case EventConnection, EventSubscribed, EventUnsubscribed, EventPong, EventError:
		return true
	}
	return false
}

// Conn abstracts a WebSocket connection carrying text frames.
type Conn interface {
	WriteMessage(data []byte) error
	ReadMessage() ([]byte, error)
	Close() error
}

// MessageHandler handles an inbound event on the server side.
type MessageHandler func(clientID string, env Envelope) error

// ClientInfo holds metadata about a client connected to the hub.
type ClientInfo struct {
	ID          string    `json:"id"`
	ConnectedAt time.Time `json:"connected_at"`
	Channels    []string  `json:"channels"`
}
