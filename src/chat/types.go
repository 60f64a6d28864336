package chat

import "github.com/orchestra-mcp/socketclient/src/types"

// ChatMessage is a message posted to a chat.
type ChatMessage struct {
	ID        int64  `json:"id"`
	ChatID    int64  `json:"chat_id"`
	UserID    int64  `json:"user_id"`
	UserName  string `json:"user_name"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	Status    string `json:"status,omitempty"` // "sent", "delivered" or "read"
}

func (ChatMessage) EventType() string { return types.EventMessageSent }

// UserTyping reports that a user started or stopped typing.
type UserTyping struct {
	ChatID   int64  `json:"chat_id"`
	UserID   int64  `json:"user_id"`
	UserName string `json:"user_name"`
	IsTyping bool   `json:"is_typing"`
}

func (UserTyping) EventType() string { return types.EventUserTyping }

// MessageRead reports that a user has read a message.
type MessageRead struct {
	ChatID    int64 `json:"chat_id"`
	MessageID int64 `json:"message_id"`
	UserID    int64 `json:"user_id,omitempty"`
}

func (MessageRead) EventType() string { return types.EventMessageRead }

// MessagesLoad is the history of one chat.
type MessagesLoad []ChatMessage

func (MessagesLoad) EventType() string { return types.EventMessagesLoad }

// Chat is one entry of the chat list.
type Chat struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// ChatsLoad is the list of chats visible to the user.
type ChatsLoad []Chat

func (ChatsLoad) EventType() string { return types.EventChatsLoad }

// Register adds the chat payload decoders to reg.
func Register(reg *types.Registry) {
	types.RegisterJSON[ChatMessage](reg, types.EventMessageSent)
	types.RegisterJSON[UserTyping](reg, types.EventUserTyping)
	types.RegisterJSON[MessageRead](reg, types.EventMessageRead)
	types.RegisterJSON[MessagesLoad](reg, types.EventMessagesLoad)
	types.RegisterJSON[ChatsLoad](reg, types.EventChatsLoad)
}
