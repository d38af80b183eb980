package chat

import (
	"sync"

	"petcare/internal/domain/messaging"
)

// DedupStore tracks, per conversation, which message ids were already
// inserted and which history pages were already applied. Every Reset bumps
// the conversation's generation so results fetched before it can be refused.
type DedupStore struct {
	mu    sync.Mutex
	seen  map[messaging.ConversationID]map[messaging.MessageID]struct{}
	pages map[messaging.ConversationID]map[int]struct{}
	gens  map[messaging.ConversationID]uint64
	epoch uint64
}

func NewDedupStore() *DedupStore {
	return &DedupStore{
		seen:  make(map[messaging.ConversationID]map[messaging.MessageID]struct{}),
		pages: make(map[messaging.ConversationID]map[int]struct{}),
		gens:  make(map[messaging.ConversationID]uint64),
	}
}

// Generation identifies the conversation's state since its last reset.
func (s *DedupStore) Generation(conversationID messaging.ConversationID) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch + s.gens[conversationID]
}

// CommitPage records page as applied and returns the messages not seen
// before, all under one lock. It returns false when the conversation was
// reset after generation was read or the page was already applied.
func (s *DedupStore) CommitPage(conversationID messaging.ConversationID, generation uint64, page int, msgs []messaging.Message) ([]messaging.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch+s.gens[conversationID] != generation {
		return nil, false
	}
	pages, ok := s.pages[conversationID]
	if !ok {
		pages = make(map[int]struct{})
		s.pages[conversationID] = pages
	}
	if _, done := pages[page]; done {
		return nil, false
	}
	seen, ok := s.seen[conversationID]
	if !ok {
		seen = make(map[messaging.MessageID]struct{})
		s.seen[conversationID] = seen
	}
	fresh := make([]messaging.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.ID != "" {
			if _, dup := seen[m.ID]; dup {
				continue
			}
			seen[m.ID] = struct{}{}
		}
		fresh = append(fresh, m)
	}
	pages[page] = struct{}{}
	return fresh, true
}

func (s *DedupStore) HasSeen(conversationID messaging.ConversationID, id messaging.MessageID) bool {
	if id == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[conversationID][id]
	return ok
}

func (s *DedupStore) MarkSeen(conversationID messaging.ConversationID, id messaging.MessageID) {
	if id == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.seen[conversationID]
	if !ok {
		set = make(map[messaging.MessageID]struct{})
		s.seen[conversationID] = set
	}
	set[id] = struct{}{}
}

func (s *DedupStore) HasProcessedPage(conversationID messaging.ConversationID, page int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pages[conversationID][page]
	return ok
}

func (s *DedupStore) MarkPageProcessed(conversationID messaging.ConversationID, page int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.pages[conversationID]
	if !ok {
		set = make(map[int]struct{})
		s.pages[conversationID] = set
	}
	set[page] = struct{}{}
}

// Reset forgets everything recorded for the conversation. It must run on
// conversation switch, otherwise fresh pages are dropped as already processed.
func (s *DedupStore) Reset(conversationID messaging.ConversationID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.seen, conversationID)
	delete(s.pages, conversationID)
	s.gens[conversationID]++
}

// ResetAll is used on sign-out.
func (s *DedupStore) ResetAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = make(map[messaging.ConversationID]map[messaging.MessageID]struct{})
	s.pages = make(map[messaging.ConversationID]map[int]struct{})
	s.epoch++
}
