package messaging

import (
	"sort"
	"strings"
	"time"
)

type ConversationID string

type UserID string

// Role is the acting capacity the signed-in user browses conversations under.
type Role string

const (
	RoleProfessional Role = "professional"
	RolePetOwner     Role = "pet_owner"
)

// ParseRole maps loose client input onto a Role.
func ParseRole(raw string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "professional", "pro":
		return RoleProfessional, true
	case "pet_owner", "petowner", "owner", "client":
		return RolePetOwner, true
	default:
		return "", false
	}
}

type Conversation struct {
	ID                     ConversationID
	Participants           [2]UserID
	IsProfessionalContext  bool
	OtherParticipantName   string
	OtherParticipantPhoto  string
	LastMessagePreview     string
	LastMessageAt          time.Time
	OtherParticipantOnline bool
	HasUnread              bool
}

// VisibleUnder reports whether the conversation belongs to the role's list.
// A conversation is visible under exactly one role.
func (c Conversation) VisibleUnder(role Role) bool {
	if role == RoleProfessional {
		return c.IsProfessionalContext
	}
	return !c.IsProfessionalContext
}

func (c Conversation) HasParticipant(id UserID) bool {
	if id == "" {
		return false
	}
	return c.Participants[0] == id || c.Participants[1] == id
}

// OtherParticipant returns the participant that is not self.
func (c Conversation) OtherParticipant(self UserID) UserID {
	if c.Participants[0] == self {
		return c.Participants[1]
	}
	return c.Participants[0]
}

// WithPreview returns a copy carrying msg as the latest activity.
func (c Conversation) WithPreview(msg Message) Conversation {
	c.LastMessagePreview = msg.Preview()
	if !msg.Timestamp.IsZero() {
		c.LastMessageAt = msg.Timestamp
	}
	return c
}

// FilterByRole returns the conversations visible under role, keeping order.
func FilterByRole(convs []Conversation, role Role) []Conversation {
	out := make([]Conversation, 0, len(convs))
	for _, c := range convs {
		if c.VisibleUnder(role) {
			out = append(out, c)
		}
	}
	return out
}

// FindConversation returns the conversation with id and its index, or -1.
func FindConversation(convs []Conversation, id ConversationID) (Conversation, int) {
	if id == "" {
		return Conversation{}, -1
	}
	for i, c := range convs {
		if c.ID == id {
			return c, i
		}
	}
	return Conversation{}, -1
}

// DedupeConversations keeps the first entry per ID and drops entries without one.
func DedupeConversations(convs []Conversation) []Conversation {
	seen := make(map[ConversationID]struct{}, len(convs))
	out := make([]Conversation, 0, len(convs))
	for _, c := range convs {
		if c.ID == "" {
			continue
		}
		if _, ok := seen[c.ID]; ok {
			continue
		}
		seen[c.ID] = struct{}{}
		out = append(out, c)
	}
	return out
}

// MostRecent returns the conversation with the latest activity.
func MostRecent(convs []Conversation) (Conversation, bool) {
	if len(convs) == 0 {
		return Conversation{}, false
	}
	sorted := append([]Conversation(nil), convs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].LastMessageAt.After(sorted[j].LastMessageAt)
	})
	return sorted[0], true
}
