package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate checks that the client configuration is usable.
func (c *ClientConfig) Validate() error {
	if c.URL == "" {
		return errors.New("client.url is required")
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("client.url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("client.url must use ws or wss, got %q", u.Scheme)
	}
	if c.MaxReconnectAttempts < 0 {
		return errors.New("client.max_reconnect_attempts must be >= 0")
	}
	if c.ReconnectBaseDelay < 0 {
		return errors.New("client.reconnect_base_delay must be >= 0")
	}
	return nil
}

// Validate checks that the server configuration is usable.
func (c *ServerConfig) Validate() error {
	if c.MaxConnections < 1 {
		return errors.New("server.max_connections must be >= 1")
	}
	if c.SendBufferSize < 1 {
		return errors.New("server.send_buffer_size must be >= 1")
	}
	if c.Path == "" || c.Path[0] != '/' {
		return fmt.Errorf("server.path must start with /, got %q", c.Path)
	}
	if c.Redis.DB < 0 {
		return errors.New("server.redis.db must be >= 0")
	}
	return nil
}
