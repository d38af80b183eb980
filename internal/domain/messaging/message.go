package messaging

import (
	"strings"
	"time"
)

type MessageID string

type MessageType string

const (
	MessageTypeNormal              MessageType = "normal"
	MessageTypeImage               MessageType = "image"
	MessageTypeBookingRequest      MessageType = "booking_request"
	MessageTypeBookingApproval     MessageType = "booking_approval"
	MessageTypeRequestChanges      MessageType = "request_changes"
	MessageTypeBookingConfirmed    MessageType = "booking_confirmed"
	MessageTypeReviewRequest       MessageType = "review_request"
	MessageTypeAttachmentContainer MessageType = "attachment_container"
)

// ParseMessageType accepts the backend's spellings and falls back to normal.
func ParseMessageType(raw string) MessageType {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "image", "image_message":
		return MessageTypeImage
	case "booking_request", "send_request":
		return MessageTypeBookingRequest
	case "booking_approval", "approval":
		return MessageTypeBookingApproval
	case "request_changes":
		return MessageTypeRequestChanges
	case "booking_confirmed":
		return MessageTypeBookingConfirmed
	case "review_request":
		return MessageTypeReviewRequest
	case "attachment_container":
		return MessageTypeAttachmentContainer
	default:
		return MessageTypeNormal
	}
}

// IsBookingType reports whether messages of this type belong to a booking thread.
func (t MessageType) IsBookingType() bool {
	switch t {
	case MessageTypeBookingRequest, MessageTypeBookingApproval, MessageTypeRequestChanges, MessageTypeBookingConfirmed:
		return true
	}
	return false
}

// Metadata is the variant payload. Only BookingID is interpreted.
type Metadata struct {
	BookingID string
	Raw       map[string]any
}

type Message struct {
	ID              MessageID
	LocalID         string
	ConversationID  ConversationID
	SenderID        UserID
	Timestamp       time.Time
	SentByOtherUser bool
	Content         string
	ImageRefs       []string
	Type            MessageType
	Metadata        Metadata
	IsOptimistic    bool
}

const previewMaxRunes = 120

// Preview is the denormalized text shown in conversation lists.
func (m Message) Preview() string {
	text := strings.TrimSpace(m.Content)
	if text == "" && len(m.ImageRefs) > 0 {
		return "[image]"
	}
	runes := []rune(text)
	if len(runes) <= previewMaxRunes {
		return text
	}
	return string(runes[:previewMaxRunes])
}

// SameBody compares content, and image refs when content is empty.
// Two empty bodies never match.
func (m Message) SameBody(other Message) bool {
	if m.Content != other.Content {
		return false
	}
	if m.Content != "" {
		return true
	}
	if len(m.ImageRefs) == 0 || len(m.ImageRefs) != len(other.ImageRefs) {
		return false
	}
	for i := range m.ImageRefs {
		if m.ImageRefs[i] != other.ImageRefs[i] {
			return false
		}
	}
	return true
}

// WithinWindow reports whether both timestamps are within window of each other.
// A missing timestamp on either side counts as within.
func (m Message) WithinWindow(other Message, window time.Duration) bool {
	if m.Timestamp.IsZero() || other.Timestamp.IsZero() {
		return true
	}
	diff := m.Timestamp.Sub(other.Timestamp)
	if diff < 0 {
		diff = -diff
	}
	return diff < window
}

// Confirm returns the optimistic message m superseded by the server copy.
func (m Message) Confirm(server Message) Message {
	m.ID = server.ID
	m.IsOptimistic = false
	if !server.Timestamp.IsZero() {
		m.Timestamp = server.Timestamp
	}
	if server.SenderID != "" {
		m.SenderID = server.SenderID
	}
	if len(server.ImageRefs) > 0 {
		m.ImageRefs = append([]string(nil), server.ImageRefs...)
	}
	if server.Type != "" {
		m.Type = server.Type
	}
	if server.Metadata.BookingID != "" || server.Metadata.Raw != nil {
		m.Metadata = server.Metadata
	}
	return m
}
