package chat

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"petcare/internal/domain/messaging"
)

// SelectionPhase is the state of the active-conversation machine.
type SelectionPhase int

const (
	SelectionNone SelectionPhase = iota
	// SelectionSelecting holds a requested id while the conversation list
	// is still loading.
	SelectionSelecting
	SelectionActive
)

func (p SelectionPhase) String() string {
	switch p {
	case SelectionSelecting:
		return "selecting"
	case SelectionActive:
		return "active"
	default:
		return "none"
	}
}

// Selection is the current value of the machine. Conversation is only set
// when Phase is SelectionActive.
type Selection struct {
	Phase          SelectionPhase
	ConversationID messaging.ConversationID
	Conversation   messaging.Conversation
}

func (s Selection) IsActive() bool {
	return s.Phase == SelectionActive
}

// ActiveID returns the active conversation id, or "" when nothing is active.
func (s Selection) ActiveID() messaging.ConversationID {
	if s.Phase != SelectionActive {
		return ""
	}
	return s.ConversationID
}

// Transition describes one step of the machine and the follow-up work the
// caller owes.
type Transition struct {
	From          Selection
	To            Selection
	NeedsFetch    bool
	NeedsMarkRead bool
}

func (t Transition) Changed() bool {
	return t.From.Phase != t.To.Phase || t.From.ConversationID != t.To.ConversationID
}

// SelectionController decides which conversation is active. The active
// conversation is always a member of the role-filtered list.
type SelectionController struct {
	opts   Options
	store  SelectionStore
	shared *SharedSelection
	logger *slog.Logger

	mu         sync.Mutex
	current    Selection
	lastViewed messaging.ConversationID
	role       messaging.Role
	width      int
	deselected bool
}

func NewSelectionController(opts Options, role messaging.Role, store SelectionStore, shared *SharedSelection, logger *slog.Logger) *SelectionController {
	opts = opts.withDefaults()
	if store == nil {
		store = &memorySelectionStore{}
	}
	if shared == nil {
		shared = NewSharedSelection()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if role == "" {
		role = messaging.RolePetOwner
	}
	return &SelectionController{
		opts:   opts,
		store:  store,
		shared: shared,
		logger: logger,
		role:   role,
		width:  opts.WideLayoutMinWidth,
	}
}

func (c *SelectionController) Current() Selection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// LastViewed is the conversation whose messages were loaded last.
func (c *SelectionController) LastViewed() messaging.ConversationID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastViewed
}

func (c *SelectionController) Role() messaging.Role {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.role
}

func (c *SelectionController) Wide() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wideLocked()
}

// Restore resumes the persisted selection. A nil visible list means the
// conversation list has not loaded yet; the id is then held as Selecting.
func (c *SelectionController) Restore(ctx context.Context, visible []messaging.Conversation) (Transition, error) {
	id, err := c.store.Load(ctx)
	if err != nil {
		return Transition{From: c.Current(), To: c.Current()}, fmt.Errorf("selection: load: %w", err)
	}
	if id == "" {
		cur := c.Current()
		return Transition{From: cur, To: cur}, nil
	}

	c.mu.Lock()
	var t Transition
	switch conv, idx := messaging.FindConversation(visible, id); {
	case visible == nil:
		t = c.moveLocked(Selection{Phase: SelectionSelecting, ConversationID: id})
	case idx >= 0:
		t = c.activateLocked(conv)
	default:
		t = c.moveLocked(Selection{})
	}
	c.mu.Unlock()

	if t.To.Phase == SelectionNone {
		c.logger.Debug("restored selection no longer visible", "conversation_id", id)
		c.shared.Set("")
		if err := c.store.Clear(ctx); err != nil {
			c.logger.Warn("clear persisted selection failed", "error", err)
		}
		return t, nil
	}
	c.commit(ctx, t)
	return t, nil
}

// Select makes id active. Ids outside a loaded visible list are rejected.
func (c *SelectionController) Select(ctx context.Context, id messaging.ConversationID, visible []messaging.Conversation) (Transition, error) {
	if id == "" {
		return Transition{}, messaging.Validation("select conversation", "conversation id required", nil)
	}
	c.mu.Lock()
	var t Transition
	switch conv, idx := messaging.FindConversation(visible, id); {
	case visible == nil:
		t = c.moveLocked(Selection{Phase: SelectionSelecting, ConversationID: id})
	case idx >= 0:
		t = c.activateLocked(conv)
	default:
		c.mu.Unlock()
		return Transition{From: c.Current(), To: c.Current()}, fmt.Errorf("select %s: %w", id, messaging.ErrConversationNotVisible)
	}
	c.deselected = false
	c.mu.Unlock()

	c.commit(ctx, t)
	return t, nil
}

// Deselect clears the active conversation (back navigation).
func (c *SelectionController) Deselect(ctx context.Context) Transition {
	c.mu.Lock()
	t := c.moveLocked(Selection{})
	c.deselected = true
	c.mu.Unlock()
	c.commit(ctx, t)
	return t
}

// SetRole switches the acting role and re-validates against all.
func (c *SelectionController) SetRole(ctx context.Context, role messaging.Role, all []messaging.Conversation) Transition {
	c.mu.Lock()
	c.role = role
	t := c.revalidateLocked(messaging.FilterByRole(all, role))
	c.mu.Unlock()
	c.commit(ctx, t)
	return t
}

// Revalidate checks the selection after the conversation list changed.
func (c *SelectionController) Revalidate(ctx context.Context, all []messaging.Conversation) Transition {
	c.mu.Lock()
	t := c.revalidateLocked(messaging.FilterByRole(all, c.role))
	c.mu.Unlock()
	c.commit(ctx, t)
	return t
}

// SetViewportWidth records a layout change. Crossing the wide threshold never
// clears an active conversation; widening with nothing active brings back
// the last viewed one.
func (c *SelectionController) SetViewportWidth(ctx context.Context, width int, all []messaging.Conversation) Transition {
	c.mu.Lock()
	wasWide := c.wideLocked()
	c.width = width
	t := Transition{From: c.current, To: c.current}
	if !wasWide && c.wideLocked() && c.current.Phase == SelectionNone {
		visible := messaging.FilterByRole(all, c.role)
		if conv, idx := messaging.FindConversation(visible, c.lastViewed); idx >= 0 {
			t = c.activateLocked(conv)
			c.deselected = false
		}
	}
	c.mu.Unlock()
	c.commit(ctx, t)
	return t
}

// Touch refreshes the active conversation's copy after a preview or presence
// update.
func (c *SelectionController) Touch(conv messaging.Conversation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current.Phase == SelectionActive && c.current.ConversationID == conv.ID {
		c.current.Conversation = conv
	}
}

// Reset forgets everything, including the persisted selection.
func (c *SelectionController) Reset(ctx context.Context) {
	c.mu.Lock()
	c.current = Selection{}
	c.lastViewed = ""
	c.deselected = false
	c.mu.Unlock()
	c.shared.Set("")
	if err := c.store.Clear(ctx); err != nil {
		c.logger.Warn("clear persisted selection failed", "error", err)
	}
}

func (c *SelectionController) revalidateLocked(visible []messaging.Conversation) Transition {
	switch c.current.Phase {
	case SelectionSelecting, SelectionActive:
		if conv, idx := messaging.FindConversation(visible, c.current.ConversationID); idx >= 0 {
			return c.activateLocked(conv)
		}
		return c.fallbackLocked(visible)
	default:
		if c.deselected || !c.wideLocked() {
			return Transition{From: c.current, To: c.current}
		}
		return c.fallbackLocked(visible)
	}
}

// fallbackLocked picks the most recently active conversation on wide layouts
// and clears the selection otherwise.
func (c *SelectionController) fallbackLocked(visible []messaging.Conversation) Transition {
	if c.wideLocked() {
		if conv, ok := messaging.MostRecent(visible); ok {
			return c.activateLocked(conv)
		}
	}
	return c.moveLocked(Selection{})
}

func (c *SelectionController) activateLocked(conv messaging.Conversation) Transition {
	t := Transition{
		From:          c.current,
		To:            Selection{Phase: SelectionActive, ConversationID: conv.ID, Conversation: conv},
		NeedsFetch:    conv.ID != c.lastViewed,
		NeedsMarkRead: conv.HasUnread,
	}
	c.current = t.To
	c.lastViewed = conv.ID
	return t
}

func (c *SelectionController) moveLocked(to Selection) Transition {
	t := Transition{From: c.current, To: to}
	c.current = to
	return t
}

func (c *SelectionController) wideLocked() bool {
	return c.width >= c.opts.WideLayoutMinWidth
}

// commit publishes the transition to the shared selection and persists it.
func (c *SelectionController) commit(ctx context.Context, t Transition) {
	c.shared.Set(t.To.ActiveID())
	if !t.Changed() {
		return
	}
	var err error
	if t.To.Phase == SelectionNone {
		err = c.store.Clear(ctx)
	} else {
		err = c.store.Save(ctx, t.To.ConversationID)
	}
	if err != nil {
		c.logger.Warn("persist selection failed", "to", t.To.ConversationID, "error", err)
	}
}

// SharedSelection is the selected conversation id shared with navigation.
// Readers may watch for changes.
type SharedSelection struct {
	mu       sync.RWMutex
	id       messaging.ConversationID
	watchers []func(messaging.ConversationID)
}

func NewSharedSelection() *SharedSelection {
	return &SharedSelection{}
}

func (s *SharedSelection) Get() messaging.ConversationID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id
}

func (s *SharedSelection) Set(id messaging.ConversationID) {
	s.mu.Lock()
	if s.id == id {
		s.mu.Unlock()
		return
	}
	s.id = id
	watchers := slices.Clone(s.watchers)
	s.mu.Unlock()
	for _, fn := range watchers {
		fn(id)
	}
}

func (s *SharedSelection) Watch(fn func(messaging.ConversationID)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchers = append(s.watchers, fn)
}
