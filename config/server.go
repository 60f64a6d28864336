package config

import "time"

// ServerConfig holds WebSocket hub server configuration.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	Path            string        `yaml:"path"`
	MaxConnections  int           `yaml:"max_connections"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ReadBufferSize  int           `yaml:"read_buffer_size"`
	WriteBufferSize int           `yaml:"write_buffer_size"`
	SendBufferSize  int           `yaml:"send_buffer_size"`

	// HistoryLimit bounds the chat history kept per channel.
	HistoryLimit int `yaml:"history_limit"`

	// Bridge enables the Redis relay between server instances.
	Bridge bool        `yaml:"bridge"`
	Redis  RedisConfig `yaml:"redis"`
}

// Default values for optional server fields.
const (
	DefaultAddr            = ":8080"
	DefaultPath            = "/ws"
	DefaultMaxConnections  = 1000
	DefaultReadBufferSize  = 1024
	DefaultWriteBufferSize = 1024
	DefaultSendBufferSize  = 256
	DefaultHistoryLimit    = 100
)

// DefaultServerConfig returns the default server configuration.
func DefaultServerConfig() ServerConfig {
	var cfg ServerConfig
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills every zero optional field.
func (c *ServerConfig) ApplyDefaults() {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.Path == "" {
		c.Path = DefaultPath
	}
	if c.MaxConnections == 0 {
		c.MaxConnections = DefaultMaxConnections
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.ReadBufferSize == 0 {
		c.ReadBufferSize = DefaultReadBufferSize
	}
	if c.WriteBufferSize == 0 {
		c.WriteBufferSize = DefaultWriteBufferSize
	}
	if c.SendBufferSize == 0 {
		c.SendBufferSize = DefaultSendBufferSize
	}
	if c.HistoryLimit == 0 {
		c.HistoryLimit = DefaultHistoryLimit
	}
	c.Redis.applyDefaults()
}
