package chat

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"petcare/internal/domain/messaging"
)

func TestStoreApplyComposesConcurrentUpdates(t *testing.T) {
	store := NewStore(State{})
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			store.Apply(func(s State) State {
				s.Thread.Messages = s.Thread.Messages.Prepend(messaging.Message{ID: messaging.MessageID(rune('A' + i%26))})
				return s
			})
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 100, store.Get().Thread.Messages.Len())
}

func TestStateWithConversation(t *testing.T) {
	s := State{Conversations: []messaging.Conversation{{ID: "a"}, {ID: "b"}}}
	next := s.WithConversation(messaging.Conversation{ID: "b", HasUnread: true})

	assert.True(t, next.Conversations[1].HasUnread)
	assert.False(t, s.Conversations[1].HasUnread, "original untouched")
	assert.Equal(t, next, next.WithConversation(messaging.Conversation{ID: "zzz"}))
}

func TestStateVisibleFiltersByRole(t *testing.T) {
	s := State{
		Role:          messaging.RoleProfessional,
		Conversations: []messaging.Conversation{{ID: "a", IsProfessionalContext: true}, {ID: "b"}},
	}
	assert.Len(t, s.Visible(), 1)
}
