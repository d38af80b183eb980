package chat

import "petcare/internal/domain/messaging"

// ApplyStatusEvent sets the other participant's online flag on every
// conversation userID takes part in. It returns a new slice and the number of
// conversations that changed; convs is left untouched.
func ApplyStatusEvent(convs []messaging.Conversation, userID messaging.UserID, online bool) ([]messaging.Conversation, int) {
	out := make([]messaging.Conversation, len(convs))
	changed := 0
	for i, c := range convs {
		if next, ok := applyStatus(c, userID, online); ok {
			out[i] = next
			changed++
			continue
		}
		out[i] = c
	}
	return out, changed
}

func applyStatus(c messaging.Conversation, userID messaging.UserID, online bool) (messaging.Conversation, bool) {
	if !c.HasParticipant(userID) || c.OtherParticipantOnline == online {
		return c, false
	}
	c.OtherParticipantOnline = online
	return c, true
}
