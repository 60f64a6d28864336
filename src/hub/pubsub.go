package hub

import (
	"encoding/json"
	"fmt"

	"github.com/orchestra-mcp/socketclient/src/types"
)

// handleInbound answers control events and routes application events to a
// handler or to the members of their channel.
func (h *Hub) handleInbound(in inbound) {
	var env types.Envelope
	if err := json.Unmarshal(in.frame, &env); err != nil || env.Type == "" {
		h.logger.Debug().Str("client_id", in.clientID).Msg("malformed frame")
		h.replyError(in.clientID, "", "malformed frame")
		return
	}

	switch env.Type {
	case types.EventSubscribe:
		if env.Channel == "" || !h.Subscribe(env.Channel, in.clientID) {
			h.replyError(in.clientID, env.Channel, "cannot subscribe")
			return
		}
		h.reply(in.clientID, types.Envelope{Type: types.EventSubscribed, Channel: env.Channel})
	case types.EventUnsubscribe:
		h.Unsubscribe(env.Channel, in.clientID)
		h.reply(in.clientID, types.Envelope{Type: types.EventUnsubscribed, Channel: env.Channel})
	case types.EventPing:
		h.reply(in.clientID, types.Envelope{Type: types.EventPong})
	default:
		h.handleEvent(in.clientID, env)
	}
}

func (h *Hub) handleEvent(clientID string, env types.Envelope) {
	h.mu.RLock()
	handler, ok := h.handlers[env.Type]
	h.mu.RUnlock()

	if ok {
		if err := handler(clientID, env); err != nil {
			h.logger.Error().Err(err).Str("event", env.Type).Msg("handler error")
			h.replyError(clientID, env.Channel, err.Error())
		}
		return
	}

	if env.Channel == "" {
		h.replyError(clientID, "", fmt.Sprintf("no handler for %s", env.Type))
		return
	}
	if !h.IsMember(env.Channel, clientID) {
		h.replyError(clientID, env.Channel, "not subscribed to channel")
		return
	}

	if len(env.UserID) == 0 {
		env.UserID = mustJSON(clientID)
	}
	env.Timestamp = h.timestamp()
	h.publishToBridge(env)
	h.broadcastToChannel(env)
}

// IsMember reports whether clientID is subscribed to channel.
func (h *Hub) IsMember(channel, clientID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.channels[channel][clientID]
}

func (h *Hub) reply(clientID string, env types.Envelope) {
	env.Timestamp = h.timestamp()
	if !h.SendToClient(clientID, env) {
		h.logger.Warn().Str("client_id", clientID).Str("event", env.Type).Msg("reply dropped")
	}
}

func (h *Hub) replyError(clientID, channel, message string) {
	h.reply(clientID, types.Envelope{
		Type:    types.EventError,
		Channel: channel,
		Data:    mustJSON(types.ErrorPayload{Message: message}),
	})
}

// mustJSON encodes values whose encoding cannot fail: strings and the
// protocol payload structs.
func mustJSON(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("hub: encode %T: %v", v, err))
	}
	return data
}

func (h *Hub) broadcastToChannel(env types.Envelope) {
	h.mu.RLock()
	subs, ok := h.channels[env.Channel]
	if !ok {
		h.mu.RUnlock()
		return
	}
	// Copy subscribers to avoid holding the lock during sends.
	clients := make([]*Client, 0, len(subs))
	for id := range subs {
		if c, exists := h.clients[id]; exists {
			clients = append(clients, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if !c.enqueue(env) {
			h.logger.Warn().Str("client_id", c.ID).Msg("send buffer full, dropping")
		}
	}
}

// publishToBridge forwards an envelope to the bridge if one is attached.
func (h *Hub) publishToBridge(env types.Envelope) {
	h.mu.RLock()
	b := h.bridge
	h.mu.RUnlock()

	if b == nil || !b.Available() {
		return
	}
	if err := b.Publish(env); err != nil {
		h.logger.Error().Err(err).Msg("bridge publish failed")
	}
}

// Publish sends an envelope to all members of env.Channel.
func (h *Hub) Publish(env types.Envelope) {
	if env.Timestamp == "" {
		env.Timestamp = h.timestamp()
	}
	select {
	case h.broadcast <- env:
	case <-h.done:
	}
}

// Subscribe adds a client to a channel.
func (h *Hub) Subscribe(channel, clientID string) bool {
	h.mu.Lock()
	c, ok := h.clients[clientID]
	if !ok {
		h.mu.Unlock()
		return false
	}
	opened := h.channels[channel] == nil
	if opened {
		h.channels[channel] = make(map[string]bool)
	}
	h.channels[channel][clientID] = true
	c.addChannel(channel)
	b := h.bridge
	h.mu.Unlock()

	if opened && b != nil {
		b.Join(channel)
	}
	return true
}

// Unsubscribe removes a client from a channel.
func (h *Hub) Unsubscribe(channel, clientID string) bool {
	h.mu.Lock()
	subs, ok := h.channels[channel]
	if !ok {
		h.mu.Unlock()
		return false
	}
	delete(subs, clientID)
	closed := len(subs) == 0
	if closed {
		delete(h.channels, channel)
	}
	if c, ok := h.clients[clientID]; ok {
		c.removeChannel(channel)
	}
	b := h.bridge
	h.mu.Unlock()

	if closed && b != nil {
		b.Leave(channel)
	}
	return true
}

// SendToClient sends an envelope directly to a specific client.
func (h *Hub) SendToClient(clientID string, env types.Envelope) bool {
	h.mu.RLock()
	client, ok := h.clients[clientID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	return client.enqueue(env)
}
