package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/orchestra-mcp/socketclient/src/chat"
	"github.com/orchestra-mcp/socketclient/src/types"
)

var errNotMember = errors.New("not subscribed to channel")

// History is an in-memory chat backend. It answers messages.load and
// chats.load, and keeps the last limit messages of every chat. Posting,
// read receipts and history loads are limited to members of the chat channel.
type History struct {
	svc   *Service
	limit int
	now   func() time.Time

	mu     sync.Mutex
	nextID int64
	chats  map[int64]*chatLog
}

type chatLog struct {
	name     string
	messages []chat.ChatMessage
}

// EnableChatHistory installs the chat handlers on the hub. Posted messages
// are stored, given an id and broadcast to the chat channel.
func (s *Service) EnableChatHistory(limit int) *History {
	h := &History{
		svc:   s,
		limit: limit,
		now:   time.Now,
		chats: make(map[int64]*chatLog),
	}
	s.RegisterHandler(types.EventMessageSent, h.handleMessageSent)
	s.RegisterHandler(types.EventMessageRead, h.handleMessageRead)
	s.RegisterHandler(types.EventMessagesLoad, h.handleMessagesLoad)
	s.RegisterHandler(types.EventChatsLoad, h.handleChatsLoad)
	return h
}

// AddChat names a chat so that it is listed by chats.load.
func (h *History) AddChat(id int64, name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.logFor(id).name = name
}

// Messages returns the stored history of a chat, oldest first.
func (h *History) Messages(chatID int64) []chat.ChatMessage {
	h.mu.Lock()
	defer h.mu.Unlock()
	log, ok := h.chats[chatID]
	if !ok {
		return nil
	}
	return append([]chat.ChatMessage(nil), log.messages...)
}

// logFor returns the log of a chat, creating it. Caller holds mu.
func (h *History) logFor(id int64) *chatLog {
	log, ok := h.chats[id]
	if !ok {
		log = &chatLog{name: fmt.Sprintf("Chat %d", id)}
		h.chats[id] = log
	}
	return log
}

func (h *History) handleMessageSent(clientID string, env types.Envelope) error {
	chatID, err := parseChatChannel(env.Channel)
	if err != nil {
		return err
	}
	if !h.svc.hub.IsMember(env.Channel, clientID) {
		return errNotMember
	}

	var msg chat.ChatMessage
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			return fmt.Errorf("decode message: %w", err)
		}
	}
	if msg.Message == "" {
		return errors.New("empty message")
	}

	h.mu.Lock()
	h.nextID++
	msg.ID = h.nextID
	msg.ChatID = chatID
	msg.UserName = clientID
	msg.Status = "sent"
	if msg.Timestamp == "" {
		msg.Timestamp = h.now().UTC().Format(time.RFC3339)
	}
	log := h.logFor(chatID)
	log.messages = append(log.messages, msg)
	if h.limit > 0 && len(log.messages) > h.limit {
		log.messages = append([]chat.ChatMessage(nil), log.messages[len(log.messages)-h.limit:]...)
	}
	h.mu.Unlock()

	return h.publishFrom(clientID, env.Channel, types.EventMessageSent, msg)
}

func (h *History) handleMessageRead(clientID string, env types.Envelope) error {
	chatID, err := parseChatChannel(env.Channel)
	if err != nil {
		return err
	}
	if !h.svc.hub.IsMember(env.Channel, clientID) {
		return errNotMember
	}

	var read chat.MessageRead
	if err := json.Unmarshal(env.Data, &read); err != nil {
		return fmt.Errorf("decode read receipt: %w", err)
	}
	read.ChatID = chatID

	h.mu.Lock()
	found := false
	if log, ok := h.chats[chatID]; ok {
		for i := range log.messages {
			if log.messages[i].ID == read.MessageID {
				log.messages[i].Status = "read"
				found = true
				break
			}
		}
	}
	h.mu.Unlock()

	if !found {
		return fmt.Errorf("message %d not found", read.MessageID)
	}
	return h.publishFrom(clientID, env.Channel, types.EventMessageRead, read)
}

func (h *History) handleMessagesLoad(clientID string, env types.Envelope) error {
	var req struct {
		ChatID int64 `json:"chat_id"`
	}
	if err := json.Unmarshal(env.Data, &req); err != nil {
		return fmt.Errorf("decode messages.load: %w", err)
	}
	if !h.svc.hub.IsMember(chat.Channel(req.ChatID), clientID) {
		return errNotMember
	}

	messages := h.Messages(req.ChatID)
	if messages == nil {
		messages = []chat.ChatMessage{}
	}
	return h.svc.SendToClient(clientID, "", types.EventMessagesLoad, chat.MessagesLoad(messages))
}

func (h *History) handleChatsLoad(clientID string, _ types.Envelope) error {
	h.mu.Lock()
	chats := make(chat.ChatsLoad, 0, len(h.chats))
	for id, log := range h.chats {
		chats = append(chats, chat.Chat{ID: id, Name: log.name})
	}
	h.mu.Unlock()

	sort.Slice(chats, func(i, j int) bool { return chats[i].ID < chats[j].ID })
	return h.svc.SendToClient(clientID, "", types.EventChatsLoad, chats)
}

// publishFrom broadcasts an event to channel attributed to clientID.
func (h *History) publishFrom(clientID, channel, eventType string, data any) error {
	env, err := types.NewEnvelope(eventType, channel, data)
	if err != nil {
		return err
	}
	if env.UserID, err = json.Marshal(clientID); err != nil {
		return err
	}
	h.svc.hub.Publish(env)
	return nil
}

// parseChatChannel extracts the chat id from a "chat.<id>" channel.
func parseChatChannel(channel string) (int64, error) {
	rest, ok := strings.CutPrefix(channel, "chat.")
	if !ok {
		return 0, fmt.Errorf("not a chat channel: %q", channel)
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("not a chat channel: %q", channel)
	}
	return id, nil
}
