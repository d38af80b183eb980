package chat

import (
	"context"
	"time"

	"petcare/internal/domain/messaging"
)

// Page is one page of conversation history, newest-first.
type Page struct {
	Messages  []messaging.Message
	HasMore   bool
	HasDraft  bool
	DraftData map[string]any
}

// SendInput is a normal message about to be sent.
type SendInput struct {
	ConversationID messaging.ConversationID `validate:"required"`
	Content        string                   `validate:"required_without=ImageRefs,max=5000"`
	ImageRefs      []string                 `validate:"omitempty,max=10,dive,required"`
}

// Backend is the REST surface the core consumes.
type Backend interface {
	ListConversations(ctx context.Context) ([]messaging.Conversation, error)
	FetchMessages(ctx context.Context, conversationID messaging.ConversationID, page int) (Page, error)
	SendMessage(ctx context.Context, input SendInput) (messaging.Message, error)
	MarkRead(ctx context.Context, conversationID messaging.ConversationID, messageIDs []messaging.MessageID) error
}

// AuthErrorHandler clears credentials and routes the user to sign-in.
type AuthErrorHandler interface {
	HandleAuthError(ctx context.Context, err error)
}

// UnreadNotifier owns unread counts. The core only signals activity.
type UnreadNotifier interface {
	MarkUnread(ctx context.Context, conversationID messaging.ConversationID)
}

// Viewport is what the UI layer lets the core do to the screen.
type Viewport interface {
	ScrollToTop()
	DismissKeyboard()
}

// SelectionStore persists the selected conversation across reloads.
type SelectionStore interface {
	Load(ctx context.Context) (messaging.ConversationID, error)
	Save(ctx context.Context, id messaging.ConversationID) error
	Clear(ctx context.Context) error
}

// PushChannel is the opaque server push transport.
type PushChannel interface {
	Connect(ctx context.Context) error
	Reconnect(ctx context.Context) error
	Disconnect() error
	Send(ctx context.Context, event any) error
	OnEvent(handler func(raw []byte))
}

// Clock returns the current time.
type Clock func() time.Time

type nopNotifier struct{}

func (nopNotifier) MarkUnread(context.Context, messaging.ConversationID) {}

type nopViewport struct{}

func (nopViewport) ScrollToTop()     {}
func (nopViewport) DismissKeyboard() {}

type nopAuthHandler struct{}

func (nopAuthHandler) HandleAuthError(context.Context, error) {}

type memorySelectionStore struct {
	id messaging.ConversationID
}

func (s *memorySelectionStore) Load(context.Context) (messaging.ConversationID, error) {
	return s.id, nil
}

func (s *memorySelectionStore) Save(_ context.Context, id messaging.ConversationID) error {
	s.id = id
	return nil
}

func (s *memorySelectionStore) Clear(context.Context) error {
	s.id = ""
	return nil
}
