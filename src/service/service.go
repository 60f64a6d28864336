package service

import (
	"fmt"

	"github.com/orchestra-mcp/socketclient/src/hub"
	"github.com/orchestra-mcp/socketclient/src/types"
	"github.com/rs/zerolog"
)

// Service provides the high-level server-side pub/sub API over a hub.
type Service struct {
	hub    *hub.Hub
	logger zerolog.Logger
}

// New creates a new service backed by the given hub.
func New(h *hub.Hub, logger zerolog.Logger) *Service {
	return &Service{hub: h, logger: logger.With().Str("component", "service").Logger()}
}

// Hub returns the underlying hub.
func (s *Service) Hub() *hub.Hub { return s.hub }

// RegisterHandler registers a handler for an event type.
func (s *Service) RegisterHandler(eventType string, handler types.MessageHandler) {
	s.hub.RegisterHandler(eventType, handler)
	s.logger.Debug().Str("event", eventType).Msg("handler registered")
}

// Publish sends an event to all subscribers of a channel.
func (s *Service) Publish(channel, eventType string, data any) error {
	env, err := types.NewEnvelope(eventType, channel, data)
	if err != nil {
		return err
	}
	s.hub.Publish(env)
	return nil
}

// Subscribe adds a client to a channel.
func (s *Service) Subscribe(channel, clientID string) error {
	if ok := s.hub.Subscribe(channel, clientID); !ok {
		return fmt.Errorf("client %s not found", clientID)
	}
	s.logger.Debug().
		Str("client_id", clientID).
		Str("channel", channel).
		Msg("subscribed")
	return nil
}

// Unsubscribe removes a client from a channel.
func (s *Service) Unsubscribe(channel, clientID string) error {
	if ok := s.hub.Unsubscribe(channel, clientID); !ok {
		return fmt.Errorf("channel %s or client %s not found", channel, clientID)
	}
	s.logger.Debug().
		Str("client_id", clientID).
		Str("channel", channel).
		Msg("unsubscribed")
	return nil
}

// OnConnection registers a callback for new connections.
func (s *Service) OnConnection(cb func(clientID string)) {
	s.hub.OnConnection(cb)
}

// OnDisconnection registers a callback for disconnections.
func (s *Service) OnDisconnection(cb func(clientID string)) {
	s.hub.OnDisconnection(cb)
}

// GetConnectedClients returns IDs of all connected clients.
func (s *Service) GetConnectedClients() []string {
	return s.hub.ConnectedClients()
}

// SendToClient sends an event directly to a specific client.
func (s *Service) SendToClient(clientID, channel, eventType string, data any) error {
	env, err := types.NewEnvelope(eventType, channel, data)
	if err != nil {
		return err
	}
	if ok := s.hub.SendToClient(clientID, env); !ok {
		return fmt.Errorf("client %s not found or buffer full", clientID)
	}
	return nil
}

// GetChannels returns active channels with subscriber counts.
func (s *Service) GetChannels() map[string]int {
	return s.hub.Channels()
}

// GetClientInfo returns info for a connected client, or error.
func (s *Service) GetClientInfo(clientID string) (*types.ClientInfo, error) {
	info := s.hub.ClientInfo(clientID)
	if info == nil {
		return nil, fmt.Errorf("client %s not found", clientID)
	}
	return info, nil
}
