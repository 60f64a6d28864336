package bridge

import (
	"errors"

	"github.com/orchestra-mcp/socketclient/src/types"
)

// ErrNoChannel is returned when an envelope without a channel is published.
var ErrNoChannel = errors.New("envelope has no channel")

// Bridge relays channel broadcasts between hub instances. An instance only
// receives the channels it has joined.
type Bridge interface {
	Publish(env types.Envelope) error

	// Join and Leave follow the hub's local channel membership.
	Join(channel string)
	Leave(channel string)

	Start() error
	Stop() error
	Available() bool
}

// BroadcastTarget is implemented by the hub to receive relayed envelopes.
type BroadcastTarget interface {
	BroadcastToLocal(env types.Envelope)
}

var _ Bridge = (*RedisBridge)(nil)
