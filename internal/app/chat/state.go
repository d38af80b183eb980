package chat

import (
	"sync"

	"petcare/internal/domain/messaging"
)

// Thread is the message history held for one conversation.
type Thread struct {
	ConversationID messaging.ConversationID
	Messages       messaging.MessageList
	HasDraft       bool
	DraftData      map[string]any
	Loaded         bool
	// load identifies the first-page fetch that filled the thread.
	load uint64
}

// State is everything the conversation view renders. Values are replaced,
// never mutated.
type State struct {
	Role          messaging.Role
	Conversations []messaging.Conversation
	ListLoaded    bool
	Thread        Thread
	Selection     Selection
	// ReadRequested holds other-user message ids already sent to mark-read.
	ReadRequested map[messaging.MessageID]struct{}
}

// Visible returns the conversations shown under the current role.
func (s State) Visible() []messaging.Conversation {
	return messaging.FilterByRole(s.Conversations, s.Role)
}

// WithConversation returns a copy with c replacing the entry of the same id.
func (s State) WithConversation(c messaging.Conversation) State {
	_, idx := messaging.FindConversation(s.Conversations, c.ID)
	if idx < 0 {
		return s
	}
	convs := append([]messaging.Conversation(nil), s.Conversations...)
	convs[idx] = c
	s.Conversations = convs
	return s
}

// withReadRequested returns a copy with ids added to the mark-read set.
func (s State) withReadRequested(ids []messaging.MessageID) State {
	next := make(map[messaging.MessageID]struct{}, len(s.ReadRequested)+len(ids))
	for id := range s.ReadRequested {
		next[id] = struct{}{}
	}
	for _, id := range ids {
		next[id] = struct{}{}
	}
	s.ReadRequested = next
	return s
}

// Store serializes state updates. Apply runs fn against the latest state so
// concurrent callbacks never overwrite each other.
type Store struct {
	mu    sync.Mutex
	state State
}

func NewStore(initial State) *Store {
	return &Store{state: initial}
}

func (s *Store) Get() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Store) Apply(fn func(State) State) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = fn(s.state)
	return s.state
}
