package chat

import (
	"encoding/json"
	"strings"
	"time"

	"petcare/internal/app/dto"
	"petcare/internal/domain/messaging"
)

// EventKind classifies a decoded push event.
type EventKind int

const (
	EventIgnored EventKind = iota
	EventMessage
	EventPresence
)

const eventUserStatusUpdate = "user_status_update"

// PushEvent is a decoded push channel event.
type PushEvent struct {
	Kind           EventKind
	Type           string
	ConversationID messaging.ConversationID
	Message        messaging.Message
	UserID         messaging.UserID
	IsOnline       bool
}

type pushEnvelope struct {
	Type           string           `json:"type"`
	ConversationID string           `json:"conversation_id"`
	MessageID      string           `json:"message_id"`
	UserID         string           `json:"user_id"`
	IsOnline       *bool            `json:"is_online"`
	Message        *dto.ChatMessage `json:"message"`

	// flat message fields, used when no nested message is present
	SenderID        string         `json:"sender_id"`
	Content         string         `json:"content"`
	ImageURLs       []string       `json:"image_urls"`
	Timestamp       time.Time      `json:"timestamp"`
	MessageType     string         `json:"message_type"`
	Metadata        map[string]any `json:"metadata"`
	SentByOtherUser *bool          `json:"sent_by_other_user"`
}

// DecodePushEvent parses one inbound event. Undecodable events and events
// missing type, conversation_id and message_id altogether come back as
// malformed errors.
func DecodePushEvent(raw []byte, self messaging.UserID) (PushEvent, error) {
	var env pushEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return PushEvent{}, messaging.Malformed("undecodable push event", err)
	}
	if env.Type == "" && env.ConversationID == "" && env.MessageID == "" && env.Message == nil {
		return PushEvent{}, messaging.Malformed("push event carries no type, conversation or message", nil)
	}

	kind := strings.ToLower(strings.TrimSpace(env.Type))
	switch kind {
	case eventUserStatusUpdate:
		if env.UserID == "" || env.IsOnline == nil {
			return PushEvent{}, messaging.Malformed("status update without user_id or is_online", nil)
		}
		return PushEvent{
			Kind:     EventPresence,
			Type:     kind,
			UserID:   messaging.UserID(env.UserID),
			IsOnline: *env.IsOnline,
		}, nil
	case "message", "new_message", "chat_message", "":
		msg := env.message()
		if msg.ConversationID == "" {
			if kind == "" {
				return PushEvent{Kind: EventIgnored}, nil
			}
			return PushEvent{}, messaging.Malformed("message event without conversation_id", nil)
		}
		if msg.ID == "" && msg.Content == "" && len(msg.ImageURLs) == 0 {
			return PushEvent{}, messaging.Malformed("message event without id or body", nil)
		}
		m := dto.MessageToDomain(msg, self)
		return PushEvent{
			Kind:           EventMessage,
			Type:           kind,
			ConversationID: m.ConversationID,
			Message:        m,
		}, nil
	default:
		return PushEvent{Kind: EventIgnored, Type: kind, ConversationID: messaging.ConversationID(env.ConversationID)}, nil
	}
}

func (e pushEnvelope) message() dto.ChatMessage {
	if e.Message != nil {
		msg := *e.Message
		if msg.ConversationID == "" {
			msg.ConversationID = e.ConversationID
		}
		if msg.ID == "" {
			msg.ID = e.MessageID
		}
		return msg
	}
	return dto.ChatMessage{
		ID:              e.MessageID,
		ConversationID:  e.ConversationID,
		SenderID:        e.SenderID,
		Content:         e.Content,
		ImageURLs:       e.ImageURLs,
		Timestamp:       e.Timestamp,
		Type:            e.MessageType,
		Metadata:        e.Metadata,
		SentByOtherUser: e.SentByOtherUser,
	}
}
