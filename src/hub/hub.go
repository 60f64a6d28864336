package hub

import (
	"sync"
	"time"

	"github.com/orchestra-mcp/socketclient/src/types"
	"github.com/rs/zerolog"
)

// MessageBridge publishes envelopes to other server instances.
// Defined here to avoid circular imports with the bridge package.
type MessageBridge interface {
	Publish(env types.Envelope) error
	Available() bool

	// Join is called when a channel gets its first local member, Leave when
	// it loses its last one.
	Join(channel string)
	Leave(channel string)
}

// Hub manages server-side connections and channel membership, and answers
// the control vocabulary of the client protocol.
type Hub struct {
	clients  map[string]*Client
	channels map[string]map[string]bool // channel -> set of clientIDs

	register   chan *Client
	unregister chan *Client
	incoming   chan inbound
	broadcast  chan types.Envelope
	localCast  chan types.Envelope // envelopes from the bridge, no re-publish

	handlers  map[string]types.MessageHandler // event type -> handler
	onConnect []func(string)
	onDisconn []func(string)

	bridge MessageBridge
	mu     sync.RWMutex
	logger zerolog.Logger
	done   chan struct{}
	stop   sync.Once
	now    func() time.Time
}

type inbound struct {
	clientID string
	frame    []byte
}

// New creates a new Hub instance.
func New(logger zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		channels:   make(map[string]map[string]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		incoming:   make(chan inbound, 256),
		broadcast:  make(chan types.Envelope, 256),
		localCast:  make(chan types.Envelope, 256),
		handlers:   make(map[string]types.MessageHandler),
		logger:     logger.With().Str("component", "hub").Logger(),
		done:       make(chan struct{}),
		now:        time.Now,
	}
}

// SetBridge attaches a cross-instance bridge. When set, channel broadcasts
// are also forwarded to other instances. Channels that already have members
// are joined right away.
func (h *Hub) SetBridge(b MessageBridge) {
	h.mu.Lock()
	h.bridge = b
	channels := make([]string, 0, len(h.channels))
	for ch := range h.channels {
		channels = append(channels, ch)
	}
	h.mu.Unlock()

	if b == nil {
		return
	}
	for _, ch := range channels {
		b.Join(ch)
	}
}

// BroadcastToLocal delivers an envelope from the bridge to local members only.
// It does not re-publish to the bridge, preventing loops.
func (h *Hub) BroadcastToLocal(env types.Envelope) {
	select {
	case h.localCast <- env:
	case <-h.done:
	}
}

// Run starts the hub event loop. Call in a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case in := <-h.incoming:
			h.handleInbound(in)
		case env := <-h.broadcast:
			h.publishToBridge(env)
			h.broadcastToChannel(env)
		case env := <-h.localCast:
			h.broadcastToChannel(env)
		case <-h.done:
			return
		}
	}
}

// Stop halts the hub event loop and closes every client.
func (h *Hub) Stop() {
	h.stop.Do(func() {
		close(h.done)

		h.mu.RLock()
		clients := make([]*Client, 0, len(h.clients))
		for _, c := range h.clients {
			clients = append(clients, c)
		}
		h.mu.RUnlock()

		for _, c := range clients {
			c.Close()
		}
	})
}

// Register queues a client for registration.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
	}
}

// Unregister queues a client for removal.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	onConnect := append([]func(string){}, h.onConnect...)
	h.mu.Unlock()

	h.logger.Info().Str("client_id", c.ID).Msg("client registered")

	c.enqueue(types.Envelope{
		Type:      types.EventConnection,
		Data:      mustJSON(types.ConnectionPayload{ClientID: c.ID}),
		Timestamp: h.timestamp(),
	})

	for _, cb := range onConnect {
		cb(c.ID)
	}
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.ID)

	// Remove from all channel subscriptions.
	var emptied []string
	for ch, subs := range h.channels {
		if !subs[c.ID] {
			continue
		}
		delete(subs, c.ID)
		if len(subs) == 0 {
			delete(h.channels, ch)
			emptied = append(emptied, ch)
		}
	}
	onDisconn := append([]func(string){}, h.onDisconn...)
	b := h.bridge
	h.mu.Unlock()

	if b != nil {
		for _, ch := range emptied {
			b.Leave(ch)
		}
	}

	c.Close()
	h.logger.Info().Str("client_id", c.ID).Msg("client unregistered")

	for _, cb := range onDisconn {
		cb(c.ID)
	}
}

func (h *Hub) timestamp() string {
	return h.now().UTC().Format(time.RFC3339Nano)
}
