package client

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/orchestra-mcp/socketclient/src/types"
)

// Subscribe asks the server for channel and records it locally. It is a
// no-op with a warning when the transport is not open.
func (m *Manager) Subscribe(channel string) {
	if !m.IsConnected() {
		m.logger.Warn().Str("channel", channel).Msg("subscribe while not connected")
		return
	}
	if !m.transmit(types.Envelope{Type: types.EventSubscribe, Channel: channel}) {
		return
	}

	m.mu.Lock()
	m.channels[channel] = struct{}{}
	m.mu.Unlock()
	m.logger.Debug().Str("channel", channel).Msg("subscribe sent")
}

// Unsubscribe mirrors Subscribe.
func (m *Manager) Unsubscribe(channel string) {
	if !m.IsConnected() {
		m.logger.Warn().Str("channel", channel).Msg("unsubscribe while not connected")
		return
	}
	if !m.transmit(types.Envelope{Type: types.EventUnsubscribe, Channel: channel}) {
		return
	}

	m.mu.Lock()
	delete(m.channels, channel)
	m.mu.Unlock()
	m.logger.Debug().Str("channel", channel).Msg("unsubscribe sent")
}

// SendMessage sends the configured message event on channel. The channel id
// (the part after the first dot) is added to data under the configured id
// field; keys in data take precedence.
func (m *Manager) SendMessage(channel string, data map[string]any) {
	payload := make(map[string]any, len(data)+1)
	payload[m.cfg.ChannelIDField] = ChannelID(channel)
	for k, v := range data {
		payload[k] = v
	}
	m.SendEnvelope(m.cfg.MessageEventType, payload, channel)
}

// SendTyping sends the configured typing event on channel.
func (m *Manager) SendTyping(channel string, isTyping bool) {
	m.SendEnvelope(m.cfg.TypingEventType, map[string]any{
		m.cfg.ChannelIDField: ChannelID(channel),
		"is_typing":          isTyping,
	}, channel)
}

// SendEnvelope sends an arbitrary event. data and channel are optional.
func (m *Manager) SendEnvelope(eventType string, data any, channel string) {
	env, err := types.NewEnvelope(eventType, channel, data)
	if err != nil {
		m.logger.Error().Err(err).Str("event", eventType).Msg("dropping unencodable event")
		return
	}
	m.transmit(env)
}

// ChannelID returns the identifier part of a "<domain>.<id>" channel name,
// as an int64 when it is numeric.
func ChannelID(channel string) any {
	_, id, ok := strings.Cut(channel, ".")
	if !ok {
		return channel
	}
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		return n
	}
	return id
}

// transmit writes env as one text frame. Frames are never queued: when the
// transport is closed the envelope is dropped with a warning.
func (m *Manager) transmit(env types.Envelope) bool {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()

	if conn == nil {
		m.logger.Warn().Str("event", env.Type).Msg("not connected, dropping event")
		return false
	}

	data, err := json.Marshal(env)
	if err != nil {
		m.logger.Error().Err(err).Str("event", env.Type).Msg("encode envelope")
		return false
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if err := conn.WriteMessage(data); err != nil {
		// The read loop sees the close and starts reconnection.
		m.logger.Warn().Err(err).Str("event", env.Type).Msg("write failed")
		_ = conn.Close()
		return false
	}
	return true
}

// handleFrame parses one inbound frame and routes it by type. Malformed
// frames are logged and dropped.
func (m *Manager) handleFrame(frame []byte) {
	msg, err := m.registry.Parse(frame)
	if err != nil {
		m.logger.Error().Err(err).Msg("dropping malformed frame")
		return
	}

	if !types.IsServerControl(msg.Type) {
		m.emit(msg)
		return
	}
	m.handleControl(msg)
}

// handleControl consumes a protocol reply. Only "error" leaves the manager,
// through the error handlers.
func (m *Manager) handleControl(msg types.Message) {
	switch msg.Type {
	case types.EventConnection:
		ev := m.logger.Info()
		if p, ok := msg.Payload.(types.ConnectionPayload); ok && p.ClientID != "" {
			ev = ev.Str("client_id", p.ClientID)
		}
		ev.Msg("connection established")
	case types.EventSubscribed:
		m.logger.Debug().Str("channel", msg.Channel).Msg("subscribed")
	case types.EventUnsubscribed:
		m.logger.Debug().Str("channel", msg.Channel).Msg("unsubscribed")
	case types.EventError:
		serr := &ServerError{Channel: msg.Channel}
		if p, ok := msg.Payload.(types.ErrorPayload); ok {
			serr.Message = p.Message
			serr.Code = p.Code
		}
		m.logger.Error().Str("channel", msg.Channel).Str("code", serr.Code).Msg(serr.Message)
		m.notifyError(serr)
	}
}
