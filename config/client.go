package config

import "time"

// ClientConfig holds settings for the client connection manager.
type ClientConfig struct {
	URL                  string        `yaml:"url"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	ReconnectBaseDelay   time.Duration `yaml:"reconnect_base_delay"`
	HeartbeatInterval    time.Duration `yaml:"heartbeat_interval"`
	HandshakeTimeout     time.Duration `yaml:"handshake_timeout"`
	WriteTimeout         time.Duration `yaml:"write_timeout"`

	// Resubscribe replays the subscribed channels after every reopen.
	Resubscribe bool `yaml:"resubscribe"`

	MessageEventType string `yaml:"message_event_type"`
	TypingEventType  string `yaml:"typing_event_type"`
	ChannelIDField   string `yaml:"channel_id_field"`
}

// Default values for optional client fields.
const (
	DefaultMaxReconnectAttempts = 5
	DefaultReconnectBaseDelay   = 1 * time.Second
	DefaultHeartbeatInterval    = 30 * time.Second
	DefaultHandshakeTimeout     = 10 * time.Second
	DefaultWriteTimeout         = 10 * time.Second
	DefaultMessageEventType     = "message.sent"
	DefaultTypingEventType      = "user.typing"
	DefaultChannelIDField       = "chat_id"
)

// DefaultClientConfig returns a client configuration for url with all
// optional fields set to their defaults.
func DefaultClientConfig(url string) ClientConfig {
	cfg := ClientConfig{URL: url}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills every zero optional field.
func (c *ClientConfig) ApplyDefaults() {
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if c.ReconnectBaseDelay == 0 {
		c.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.MessageEventType == "" {
		c.MessageEventType = DefaultMessageEventType
	}
	if c.TypingEventType == "" {
		c.TypingEventType = DefaultTypingEventType
	}
	if c.ChannelIDField == "" {
		c.ChannelIDField = DefaultChannelIDField
	}
}
