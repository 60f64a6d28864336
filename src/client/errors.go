package client

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidURL         = errors.New("invalid websocket url")
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
)

// ServerError is an "error" event received from the server.
type ServerError struct {
	Message string
	Code    string
	Channel string
}

func (e *ServerError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("server error %s: %s", e.Code, e.Message)
	}
	return "server error: " + e.Message
}
