package hub

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/orchestra-mcp/socketclient/src/types"
)

// Client wraps one server-side WebSocket connection.
type Client struct {
	ID          string
	conn        types.Conn
	hub         *Hub
	send        chan types.Envelope
	connectedAt time.Time
	channels    map[string]bool
	mu          sync.RWMutex
	done        chan struct{}
	closed      bool
}

// NewClient creates a client wrapper with a send buffer of bufSize envelopes.
func NewClient(id string, conn types.Conn, h *Hub, bufSize int) *Client {
	return &Client{
		ID:          id,
		conn:        conn,
		hub:         h,
		send:        make(chan types.Envelope, bufSize),
		connectedAt: time.Now(),
		channels:    make(map[string]bool),
		done:        make(chan struct{}),
	}
}

// Info returns metadata about this client.
func (c *Client) Info() types.ClientInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	channels := make([]string, 0, len(c.channels))
	for ch := range c.channels {
		channels = append(channels, ch)
	}
	sort.Strings(channels)
	return types.ClientInfo{
		ID:          c.ID,
		ConnectedAt: c.connectedAt,
		Channels:    channels,
	}
}

func (c *Client) addChannel(channel string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.channels[channel] = true
}

func (c *Client) removeChannel(channel string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.channels, channel)
}

// enqueue queues env for the write pump. It reports false when the client is
// closed or its buffer is full.
func (c *Client) enqueue(env types.Envelope) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- env:
		return true
	default:
		return false
	}
}

// ReadPump reads frames from the connection and hands them to the hub.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	for {
		frame, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		select {
		case c.hub.incoming <- inbound{clientID: c.ID, frame: frame}:
		case <-c.hub.done:
			return
		}
	}
}

// WritePump writes queued envelopes to the connection.
func (c *Client) WritePump() {
	defer c.conn.Close()

	for {
		select {
		case env, ok := <-c.send:
			if !ok {
				return
			}
			data, err := json.Marshal(env)
			if err != nil {
				c.hub.logger.Error().Err(err).Str("client_id", c.ID).Msg("encode envelope")
				continue
			}
			if err := c.conn.WriteMessage(data); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// Close signals the client to stop its pumps.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.done)
		close(c.send)
	}
}
