package dto

import (
	"fmt"
	"time"

	"petcare/internal/domain/messaging"
)

// Conversation is the list endpoint's conversation record.
type Conversation struct {
	ID                     string    `json:"id"`
	Participants           []string  `json:"participants"`
	IsProfessionalContext  bool      `json:"is_professional_context"`
	OtherParticipantName   string    `json:"other_participant_name,omitempty"`
	OtherParticipantPhoto  string    `json:"other_participant_photo,omitempty"`
	LastMessage            string    `json:"last_message,omitempty"`
	LastMessageAt          time.Time `json:"last_message_time,omitempty"`
	OtherParticipantOnline bool      `json:"other_participant_online"`
	HasUnread              bool      `json:"has_unread,omitempty"`
}

// ConversationList wraps GET /conversations.
type ConversationList struct {
	Conversations []Conversation `json:"conversations"`
}

// ChatMessage is a single message payload, shared by REST and push.
type ChatMessage struct {
	ID              string         `json:"id"`
	ConversationID  string         `json:"conversation_id"`
	SenderID        string         `json:"sender_id,omitempty"`
	Content         string         `json:"content"`
	ImageURLs       []string       `json:"image_urls,omitempty"`
	Timestamp       time.Time      `json:"timestamp,omitempty"`
	Type            string         `json:"type,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	SentByOtherUser *bool          `json:"sent_by_other_user,omitempty"`
	IsOptimistic    bool           `json:"is_optimistic,omitempty"`
	LocalID         string         `json:"local_id,omitempty"`
}

// MessagePage wraps GET /conversations/{id}/messages.
type MessagePage struct {
	Messages  []ChatMessage  `json:"messages"`
	HasMore   bool           `json:"has_more"`
	HasDraft  bool           `json:"has_draft"`
	DraftData map[string]any `json:"draft_data,omitempty"`
}

// SendMessageRequest is the body of POST /conversations/{id}/messages.
type SendMessageRequest struct {
	Content   string   `json:"content"`
	ImageURLs []string `json:"image_urls"`
}

// MarkReadRequest is the body of POST /conversations/{id}/read.
type MarkReadRequest struct {
	MessageIDs []string `json:"message_ids"`
}

func ConversationToDomain(c Conversation) messaging.Conversation {
	var participants [2]messaging.UserID
	for i := 0; i < len(c.Participants) && i < 2; i++ {
		participants[i] = messaging.UserID(c.Participants[i])
	}
	return messaging.Conversation{
		ID:                     messaging.ConversationID(c.ID),
		Participants:           participants,
		IsProfessionalContext:  c.IsProfessionalContext,
		OtherParticipantName:   c.OtherParticipantName,
		OtherParticipantPhoto:  c.OtherParticipantPhoto,
		LastMessagePreview:     c.LastMessage,
		LastMessageAt:          c.LastMessageAt.UTC(),
		OtherParticipantOnline: c.OtherParticipantOnline,
		HasUnread:              c.HasUnread,
	}
}

func ConversationFromDomain(c messaging.Conversation) Conversation {
	return Conversation{
		ID:                     string(c.ID),
		Participants:           []string{string(c.Participants[0]), string(c.Participants[1])},
		IsProfessionalContext:  c.IsProfessionalContext,
		OtherParticipantName:   c.OtherParticipantName,
		OtherParticipantPhoto:  c.OtherParticipantPhoto,
		LastMessage:            c.LastMessagePreview,
		LastMessageAt:          c.LastMessageAt,
		OtherParticipantOnline: c.OtherParticipantOnline,
		HasUnread:              c.HasUnread,
	}
}

// MessageToDomain maps a wire message. SentByOtherUser is derived from the
// sender when self is known, the explicit flag wins otherwise.
func MessageToDomain(m ChatMessage, self messaging.UserID) messaging.Message {
	sentByOther := false
	switch {
	case m.SentByOtherUser != nil:
		sentByOther = *m.SentByOtherUser
	case self != "" && m.SenderID != "":
		sentByOther = messaging.UserID(m.SenderID) != self
	}
	var images []string
	if len(m.ImageURLs) > 0 {
		images = append(images, m.ImageURLs...)
	}
	return messaging.Message{
		ID:              messaging.MessageID(m.ID),
		ConversationID:  messaging.ConversationID(m.ConversationID),
		SenderID:        messaging.UserID(m.SenderID),
		Timestamp:       m.Timestamp.UTC(),
		SentByOtherUser: sentByOther,
		Content:         m.Content,
		ImageRefs:       images,
		Type:            messaging.ParseMessageType(m.Type),
		Metadata:        metadataToDomain(m.Metadata),
	}
}

func MessageFromDomain(m messaging.Message) ChatMessage {
	sentByOther := m.SentByOtherUser
	return ChatMessage{
		ID:              string(m.ID),
		ConversationID:  string(m.ConversationID),
		SenderID:        string(m.SenderID),
		Content:         m.Content,
		ImageURLs:       m.ImageRefs,
		Timestamp:       m.Timestamp,
		Type:            string(m.Type),
		Metadata:        m.Metadata.Raw,
		SentByOtherUser: &sentByOther,
		IsOptimistic:    m.IsOptimistic,
		LocalID:         m.LocalID,
	}
}

func MessagesToDomain(items []ChatMessage, self messaging.UserID) []messaging.Message {
	out := make([]messaging.Message, 0, len(items))
	for _, item := range items {
		out = append(out, MessageToDomain(item, self))
	}
	return out
}

func MessagesFromDomain(items []messaging.Message) []ChatMessage {
	out := make([]ChatMessage, 0, len(items))
	for _, item := range items {
		out = append(out, MessageFromDomain(item))
	}
	return out
}

func metadataToDomain(raw map[string]any) messaging.Metadata {
	if len(raw) == 0 {
		return messaging.Metadata{}
	}
	meta := messaging.Metadata{Raw: raw}
	for _, key := range []string{"booking_id", "bookingId"} {
		switch v := raw[key].(type) {
		case string:
			meta.BookingID = v
		case float64:
			meta.BookingID = fmt.Sprintf("%.0f", v)
		}
		if meta.BookingID != "" {
			break
		}
	}
	return meta
}
