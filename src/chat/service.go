package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/orchestra-mcp/socketclient/src/client"
	"github.com/orchestra-mcp/socketclient/src/types"
	"github.com/rs/zerolog"
)

// Service maps chat actions onto the connection manager.
type Service struct {
	mgr    *client.Manager
	logger zerolog.Logger
	now    func() time.Time
}

// New creates a chat service and registers the chat payloads with the
// manager's registry.
func New(mgr *client.Manager, logger zerolog.Logger) *Service {
	Register(mgr.Registry())
	return &Service{
		mgr:    mgr,
		logger: logger.With().Str("component", "chat").Logger(),
		now:    time.Now,
	}
}

// Channel returns the channel name of a chat.
func Channel(chatID int64) string {
	return fmt.Sprintf("chat.%d", chatID)
}

// Manager returns the underlying connection manager.
func (s *Service) Manager() *client.Manager { return s.mgr }

func (s *Service) Connect(ctx context.Context) error { return s.mgr.Connect(ctx) }

func (s *Service) Disconnect() { s.mgr.Disconnect() }

func (s *Service) SubscribeToChat(chatID int64) {
	s.mgr.Subscribe(Channel(chatID))
}

func (s *Service) UnsubscribeFromChat(chatID int64) {
	s.mgr.Unsubscribe(Channel(chatID))
}

// SendMessage posts text to a chat, stamped with the local time.
func (s *Service) SendMessage(chatID int64, text string) {
	s.mgr.SendMessage(Channel(chatID), map[string]any{
		"message":   text,
		"timestamp": s.now().UTC().Format(time.RFC3339),
	})
	s.logger.Debug().Int64("chat_id", chatID).Msg("message sent")
}

func (s *Service) SendTyping(chatID int64, isTyping bool) {
	s.mgr.SendTyping(Channel(chatID), isTyping)
}

// MarkRead tells the chat that messageID has been read.
func (s *Service) MarkRead(chatID, messageID int64) {
	s.mgr.SendEnvelope(types.EventMessageRead, MessageRead{
		ChatID:    chatID,
		MessageID: messageID,
	}, Channel(chatID))
}

// LoadChats asks the server for the chat list.
func (s *Service) LoadChats() {
	s.mgr.SendEnvelope(types.EventChatsLoad, nil, "")
}

// LoadMessages asks the server for the history of a chat.
func (s *Service) LoadMessages(chatID int64) {
	s.mgr.SendEnvelope(types.EventMessagesLoad, map[string]any{"chat_id": chatID}, "")
}

func (s *Service) OnMessageSent(fn func(ChatMessage)) *client.Listener {
	return listen(s, types.EventMessageSent, fn)
}

func (s *Service) OnUserTyping(fn func(UserTyping)) *client.Listener {
	return listen(s, types.EventUserTyping, fn)
}

func (s *Service) OnMessageRead(fn func(MessageRead)) *client.Listener {
	return listen(s, types.EventMessageRead, fn)
}

func (s *Service) OnMessagesLoad(fn func(MessagesLoad)) *client.Listener {
	return listen(s, types.EventMessagesLoad, fn)
}

func (s *Service) OnChatsLoad(fn func(ChatsLoad)) *client.Listener {
	return listen(s, types.EventChatsLoad, fn)
}

// Off removes a listener returned by one of the On helpers.
func (s *Service) Off(eventType string, l *client.Listener) {
	s.mgr.Off(eventType, l)
}

func listen[T types.Payload](s *Service, eventType string, fn func(T)) *client.Listener {
	l := client.NewListener(func(msg types.Message) error {
		p, ok := msg.Payload.(T)
		if !ok {
			return fmt.Errorf("unexpected %s payload %T", eventType, msg.Payload)
		}
		fn(p)
		return nil
	})
	s.mgr.On(eventType, l)
	return l
}
