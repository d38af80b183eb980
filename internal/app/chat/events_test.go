package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"petcare/internal/domain/messaging"
)

func TestDecodePushEventMessage(t *testing.T) {
	raw := []byte(`{"type":"new_message","conversation_id":"c1","message_id":"m7","sender_id":"u2","content":"hi","timestamp":"2024-05-01T12:00:00Z","message_type":"booking_request","metadata":{"booking_id":42}}`)

	ev, err := DecodePushEvent(raw, "u1")
	require.NoError(t, err)
	assert.Equal(t, EventMessage, ev.Kind)
	assert.Equal(t, messaging.ConversationID("c1"), ev.ConversationID)
	assert.Equal(t, messaging.MessageID("m7"), ev.Message.ID)
	assert.True(t, ev.Message.SentByOtherUser)
	assert.Equal(t, messaging.MessageTypeBookingRequest, ev.Message.Type)
	assert.Equal(t, "42", ev.Message.Metadata.BookingID)
	assert.Equal(t, testEpoch, ev.Message.Timestamp)
}

func TestDecodePushEventNestedMessage(t *testing.T) {
	raw := []byte(`{"type":"message","conversation_id":"c1","message":{"id":"m8","sender_id":"u1","content":"mine"}}`)

	ev, err := DecodePushEvent(raw, "u1")
	require.NoError(t, err)
	assert.Equal(t, messaging.ConversationID("c1"), ev.Message.ConversationID)
	assert.False(t, ev.Message.SentByOtherUser)
}

func TestDecodePushEventExplicitSideWins(t *testing.T) {
	raw := []byte(`{"type":"message","conversation_id":"c1","message_id":"m9","sender_id":"u1","content":"x","sent_by_other_user":true}`)

	ev, err := DecodePushEvent(raw, "u1")
	require.NoError(t, err)
	assert.True(t, ev.Message.SentByOtherUser)
}

func TestDecodePushEventPresence(t *testing.T) {
	ev, err := DecodePushEvent([]byte(`{"type":"user_status_update","user_id":"u2","is_online":false}`), "u1")
	require.NoError(t, err)
	assert.Equal(t, EventPresence, ev.Kind)
	assert.Equal(t, messaging.UserID("u2"), ev.UserID)
	assert.False(t, ev.IsOnline)
}

func TestDecodePushEventMalformed(t *testing.T) {
	tests := map[string]string{
		"not json":              `{"type":`,
		"empty object":          `{}`,
		"only unrelated fields": `{"foo":"bar"}`,
		"status without flag":   `{"type":"user_status_update","user_id":"u2"}`,
		"message without conv":  `{"type":"new_message","message_id":"m1","content":"x"}`,
		"message without body":  `{"type":"new_message","conversation_id":"c1"}`,
		"bad timestamp":         `{"type":"message","conversation_id":"c1","content":"x","timestamp":"yesterday"}`,
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := DecodePushEvent([]byte(raw), "u1")
			require.Error(t, err)
			assert.True(t, messaging.IsKind(err, messaging.KindMalformed))
		})
	}
}

func TestDecodePushEventIgnoresUnknownTypes(t *testing.T) {
	ev, err := DecodePushEvent([]byte(`{"type":"typing","conversation_id":"c1"}`), "u1")
	require.NoError(t, err)
	assert.Equal(t, EventIgnored, ev.Kind)
}
