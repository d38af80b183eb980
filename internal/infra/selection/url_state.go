package selection

import (
	"context"
	"net/url"
	"sync"

	"petcare/internal/domain/messaging"
)

// QueryParam carries the selected conversation id in the page URL.
const QueryParam = "conversation"

// NavigationKind classifies how the current page was reached.
type NavigationKind string

const (
	NavigationReload NavigationKind = "reload"
	NavigationPush   NavigationKind = "push"
	NavigationPop    NavigationKind = "pop"
)

// URLState persists the selection as a query parameter. A hard reload
// drops it so a stale conversation is not resurrected.
type URLState struct {
	mu  sync.Mutex
	url url.URL
}

func NewURLState(raw string) (*URLState, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	return &URLState{url: *u}, nil
}

func (s *URLState) Load(context.Context) (messaging.ConversationID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return messaging.ConversationID(s.url.Query().Get(QueryParam)), nil
}

func (s *URLState) Save(_ context.Context, id messaging.ConversationID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLocked(string(id))
	return nil
}

func (s *URLState) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLocked("")
	return nil
}

// Navigate applies a navigation event to the persisted selection.
func (s *URLState) Navigate(kind NavigationKind) {
	if kind != NavigationReload {
		return
	}
	s.mu.Lock()
	s.setLocked("")
	s.mu.Unlock()
}

// URL returns the current address with the selection applied.
func (s *URLState) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url.String()
}

func (s *URLState) setLocked(id string) {
	q := s.url.Query()
	if id == "" {
		q.Del(QueryParam)
	} else {
		q.Set(QueryParam, id)
	}
	s.url.RawQuery = q.Encode()
}
