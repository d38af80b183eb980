package chat

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"petcare/internal/domain/messaging"
)

// Config identifies the signed-in user and the initial layout.
type Config struct {
	Self          messaging.UserID
	Role          messaging.Role
	ViewportWidth int
	Options       Options
}

// Deps are the collaborators of a View. Only Backend is required.
type Deps struct {
	Backend   Backend
	Auth      AuthErrorHandler
	Notifier  UnreadNotifier
	Viewport  Viewport
	Selection SelectionStore
	Shared    *SharedSelection
	Clock     Clock
	Logger    *slog.Logger
}

// Snapshot is a consistent read of what the UI renders.
type Snapshot struct {
	Role            messaging.Role
	Conversations   []messaging.Conversation
	Selection       Selection
	ConversationID  messaging.ConversationID
	Messages        []messaging.Message
	HasDraft        bool
	DraftData       map[string]any
	Loaded          bool
	Pagination      PaginationState
	CurrentBookings map[string]messaging.MessageID
}

// View is the conversation view. It is safe for concurrent use by UI
// callbacks and the push channel reader.
type View struct {
	self   messaging.UserID
	opts   Options
	clock  Clock
	logger *slog.Logger

	store        *Store
	dedup        *DedupStore
	pager        *Pager
	reconciler   *Reconciler
	selection    *SelectionController
	orchestrator *Orchestrator
	notifier     UnreadNotifier
	viewport     Viewport

	loads atomic.Uint64
}

func NewView(cfg Config, deps Deps) *View {
	opts := cfg.Options.withDefaults()
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = nopNotifier{}
	}
	viewport := deps.Viewport
	if viewport == nil {
		viewport = nopViewport{}
	}
	role := cfg.Role
	if role == "" {
		role = messaging.RolePetOwner
	}

	dedup := NewDedupStore()
	v := &View{
		self:         cfg.Self,
		opts:         opts,
		clock:        clock,
		logger:       logger,
		store:        NewStore(State{Role: role}),
		dedup:        dedup,
		pager:        NewPager(opts, clock),
		reconciler:   NewReconciler(dedup, opts.DuplicateWindow),
		selection:    NewSelectionController(opts, role, deps.Selection, deps.Shared, logger),
		orchestrator: NewOrchestrator(deps.Backend, dedup, deps.Auth, logger),
		notifier:     notifier,
		viewport:     viewport,
	}
	if cfg.ViewportWidth > 0 {
		v.selection.SetViewportWidth(context.Background(), cfg.ViewportWidth, nil)
	}
	v.orchestrator.OnReset(v.onHistoryReset)
	return v
}

// Start loads the conversation list and restores the persisted selection.
func (v *View) Start(ctx context.Context) error {
	listErr := v.refreshList(ctx)
	st := v.store.Get()
	var visible []messaging.Conversation
	if st.ListLoaded {
		visible = st.Visible()
	}
	t, err := v.selection.Restore(ctx, visible)
	if err != nil {
		v.logger.Warn("restore selection failed", "error", err)
	}
	if t.Changed() || t.NeedsFetch {
		if _, err := v.handleTransition(ctx, t); err != nil {
			return err
		}
	} else if st.ListLoaded {
		// nothing persisted: wide layouts still get a conversation
		if _, err := v.handleTransition(ctx, v.selection.Revalidate(ctx, st.Conversations)); err != nil {
			return err
		}
	}
	return listErr
}

// Refresh re-reads the conversation list and the active conversation's
// newest page. The push channel does not replay missed events, so this is
// how a focus or reconnect catches up.
func (v *View) Refresh(ctx context.Context) error {
	if err := v.refreshList(ctx); err != nil {
		return err
	}
	fetched, err := v.handleTransition(ctx, v.selection.Revalidate(ctx, v.store.Get().Conversations))
	if err != nil || fetched {
		return err
	}
	if id := v.selection.Current().ActiveID(); id != "" {
		return v.loadFirstPage(ctx, id)
	}
	return nil
}

// Select activates a conversation from the role-filtered list.
func (v *View) Select(ctx context.Context, id messaging.ConversationID) error {
	st := v.store.Get()
	var visible []messaging.Conversation
	if st.ListLoaded {
		visible = st.Visible()
	}
	t, err := v.selection.Select(ctx, id, visible)
	if err != nil {
		return err
	}
	_, err = v.handleTransition(ctx, t)
	return err
}

func (v *View) Deselect(ctx context.Context) {
	t := v.selection.Deselect(ctx)
	if _, err := v.handleTransition(ctx, t); err != nil {
		v.logger.Warn("deselect follow-up failed", "error", err)
	}
}

// SetRole switches the acting role. An active conversation outside the new
// role's list is replaced or cleared.
func (v *View) SetRole(ctx context.Context, role messaging.Role) error {
	st := v.store.Apply(func(s State) State {
		s.Role = role
		return s
	})
	_, err := v.handleTransition(ctx, v.selection.SetRole(ctx, role, st.Conversations))
	return err
}

// SetViewportWidth reports a layout change. It never clears the selection.
func (v *View) SetViewportWidth(ctx context.Context, width int) error {
	_, err := v.handleTransition(ctx, v.selection.SetViewportWidth(ctx, width, v.store.Get().Conversations))
	return err
}

// OnVisibleItemsChanged handles the list's viewable-items callback.
func (v *View) OnVisibleItemsChanged(ctx context.Context, oldestIndex int) (bool, error) {
	t, ok := v.pager.VisibleTrigger(oldestIndex, v.threadLen())
	if !ok {
		return false, nil
	}
	return v.loadOlder(ctx, t)
}

// OnScroll handles scroll position updates.
func (v *View) OnScroll(ctx context.Context, m ScrollMetrics) (bool, error) {
	t, ok := v.pager.ScrollTrigger(m, v.threadLen())
	if !ok {
		return false, nil
	}
	return v.loadOlder(ctx, t)
}

// OnEndReached is the list's end-reached backstop.
func (v *View) OnEndReached(ctx context.Context) (bool, error) {
	t, ok := v.pager.EndReachedTrigger(v.threadLen())
	if !ok {
		return false, nil
	}
	return v.loadOlder(ctx, t)
}

// LoadOlder asks for the next older page from the oldest loaded message.
func (v *View) LoadOlder(ctx context.Context, force bool) (bool, error) {
	n := v.threadLen()
	if n == 0 {
		return false, nil
	}
	return v.loadOlder(ctx, Trigger{Index: n - 1, Force: force, Source: SourceManual})
}

// Send inserts an optimistic message, sends it and reconciles the server copy.
// A failed send withdraws the optimistic entry.
func (v *View) Send(ctx context.Context, content string, imageRefs []string) (messaging.Message, error) {
	id := v.selection.Current().ActiveID()
	if id == "" {
		return messaging.Message{}, messaging.Validation("send message", "no active conversation", nil)
	}
	input := SendInput{ConversationID: id, Content: content, ImageRefs: imageRefs}
	if err := v.orchestrator.ValidateSend(input); err != nil {
		return messaging.Message{}, err
	}
	input = normalizeSendInput(input)

	msgType := messaging.MessageTypeNormal
	if input.Content == "" {
		msgType = messaging.MessageTypeImage
	}
	optimistic := messaging.Message{
		LocalID:        uuid.NewString(),
		ConversationID: id,
		SenderID:       v.self,
		Timestamp:      v.clock().UTC(),
		Content:        input.Content,
		ImageRefs:      input.ImageRefs,
		Type:           msgType,
		IsOptimistic:   true,
	}
	v.store.Apply(func(s State) State {
		if s.Thread.ConversationID == id {
			s.Thread.Messages, _ = v.reconciler.Reconcile(s.Thread.Messages, optimistic)
		}
		if conv, idx := messaging.FindConversation(s.Conversations, id); idx >= 0 {
			s = s.WithConversation(conv.WithPreview(optimistic))
		}
		return s
	})
	v.viewport.ScrollToTop()

	sent, err := v.orchestrator.SendMessage(ctx, input)
	if err != nil {
		v.store.Apply(func(s State) State {
			if s.Thread.ConversationID == id {
				s.Thread.Messages, _ = s.Thread.Messages.RemoveLocal(optimistic.LocalID)
			}
			return s
		})
		return messaging.Message{}, err
	}
	sent.SentByOtherUser = false
	v.applyIncoming(ctx, sent)
	return sent, nil
}

// HandlePushEvent applies one raw push channel event. Malformed events are
// dropped.
func (v *View) HandlePushEvent(ctx context.Context, raw []byte) {
	ev, err := DecodePushEvent(raw, v.self)
	if err != nil {
		v.logger.Debug("discarding push event", "error", err)
		return
	}
	switch ev.Kind {
	case EventPresence:
		v.applyPresence(ev.UserID, ev.IsOnline)
	case EventMessage:
		v.applyIncoming(ctx, ev.Message)
	default:
		v.logger.Debug("ignoring push event", "type", ev.Type)
	}
}

// SignOut drops all conversation state and the persisted selection.
func (v *View) SignOut(ctx context.Context) {
	v.dedup.ResetAll()
	v.pager.Reset("")
	v.selection.Reset(ctx)
	v.store.Apply(func(s State) State {
		return State{Role: s.Role}
	})
	v.logger.Info("conversation state cleared")
}

func (v *View) Snapshot() Snapshot {
	st := v.store.Get()
	return Snapshot{
		Role:            st.Role,
		Conversations:   st.Visible(),
		Selection:       st.Selection,
		ConversationID:  st.Thread.ConversationID,
		Messages:        st.Thread.Messages.Messages(),
		HasDraft:        st.Thread.HasDraft,
		DraftData:       st.Thread.DraftData,
		Loaded:          st.Thread.Loaded,
		Pagination:      v.pager.State(),
		CurrentBookings: messaging.CurrentBookingMessages(st.Thread.Messages),
	}
}

func (v *View) VisibleConversations() []messaging.Conversation {
	return v.store.Get().Visible()
}

// SharedSelection exposes the selection value read by navigation.
func (v *View) SharedSelection() *SharedSelection {
	return v.selection.shared
}

func (v *View) refreshList(ctx context.Context) error {
	convs, err := v.orchestrator.FetchConversationList(ctx)
	if err != nil {
		return err
	}
	v.store.Apply(func(s State) State {
		s.Conversations = convs
		s.ListLoaded = true
		return s
	})
	return nil
}

// handleTransition applies a selection step and performs the fetch and
// mark-read it asks for. It reports whether a first page was fetched.
func (v *View) handleTransition(ctx context.Context, t Transition) (bool, error) {
	v.store.Apply(func(s State) State {
		s.Selection = v.selection.Current()
		return s
	})
	from, to := t.From.ActiveID(), t.To.ActiveID()
	if from != "" && from != to {
		v.viewport.DismissKeyboard()
	}
	if to == "" {
		return false, nil
	}

	fetched := false
	st := v.store.Get()
	if t.NeedsFetch || st.Thread.ConversationID != to || !st.Thread.Loaded {
		if from != to {
			v.viewport.ScrollToTop()
		}
		if err := v.loadFirstPage(ctx, to); err != nil {
			return false, err
		}
		fetched = true
	}
	if t.NeedsMarkRead {
		v.markThreadRead(ctx, to)
	}
	return fetched, nil
}

// loadFirstPage replaces the thread with the conversation's newest page.
func (v *View) loadFirstPage(ctx context.Context, id messaging.ConversationID) error {
	load := v.loads.Add(1)
	v.store.Apply(func(s State) State {
		if s.Thread.ConversationID != id {
			s.Thread = Thread{ConversationID: id}
		}
		s.Thread.load = load
		return s
	})

	page, err := v.orchestrator.FetchMessagePage(ctx, id, 1)
	if err != nil {
		return err
	}

	applied := false
	v.store.Apply(func(s State) State {
		if s.Thread.ConversationID != id || s.Thread.load != load {
			return s
		}
		applied = true
		s.Thread.Messages = s.Thread.Messages.AppendOlder(page.Messages)
		s.Thread.HasDraft = page.HasDraft
		s.Thread.DraftData = page.DraftData
		s.Thread.Loaded = true
		return s
	})
	if !applied {
		v.logger.Debug("discarding superseded first page", "conversation_id", id)
		return nil
	}
	v.pager.FirstPageLoaded(id, page.HasMore)
	return nil
}

func (v *View) loadOlder(ctx context.Context, trigger Trigger) (bool, error) {
	active := v.selection.Current().ActiveID()
	if active == "" {
		return false, nil
	}
	ticket, ok := v.pager.Begin(trigger)
	if !ok {
		return false, nil
	}
	if ticket.ConversationID != active {
		v.pager.Fail(ticket)
		return false, nil
	}
	v.logger.Debug("loading older messages", "conversation_id", ticket.ConversationID, "page", ticket.Page, "source", trigger.Source)

	page, err := v.orchestrator.FetchMessagePage(ctx, ticket.ConversationID, ticket.Page)
	if err != nil {
		v.pager.Fail(ticket)
		if errors.Is(err, messaging.ErrStalePage) {
			return false, nil
		}
		return false, err
	}
	if !v.pager.Complete(ticket, page.HasMore) {
		v.logger.Debug("discarding stale page", "conversation_id", ticket.ConversationID, "page", ticket.Page)
		return false, nil
	}

	applied := false
	v.store.Apply(func(s State) State {
		if s.Thread.ConversationID != ticket.ConversationID {
			return s
		}
		applied = true
		s.Thread.Messages = s.Thread.Messages.AppendOlder(page.Messages)
		return s
	})
	return applied, nil
}

// applyIncoming reconciles a message from the push channel or a send response.
func (v *View) applyIncoming(ctx context.Context, msg messaging.Message) Outcome {
	id := msg.ConversationID
	active := v.selection.Current().ActiveID()

	outcome := OutcomeDuplicate
	var updated messaging.Conversation
	known := false
	v.store.Apply(func(s State) State {
		if s.Thread.ConversationID == id {
			s.Thread.Messages, outcome = v.reconciler.Reconcile(s.Thread.Messages, msg)
		} else {
			_, outcome = v.reconciler.Reconcile(messaging.MessageList{}, msg)
		}
		if outcome == OutcomeDuplicate {
			return s
		}
		conv, idx := messaging.FindConversation(s.Conversations, id)
		if idx < 0 {
			return s
		}
		conv = conv.WithPreview(msg)
		if id != active && msg.SentByOtherUser {
			conv.HasUnread = true
		}
		updated, known = conv, true
		return s.WithConversation(conv)
	})

	if outcome == OutcomeDuplicate {
		v.logger.Debug("duplicate message dropped", "conversation_id", id, "message_id", msg.ID)
		return outcome
	}
	if known {
		v.selection.Touch(updated)
		v.syncSelection()
	} else {
		v.logger.Debug("message for unknown conversation", "conversation_id", id)
	}
	if id != active {
		if msg.SentByOtherUser {
			v.notifier.MarkUnread(ctx, id)
		}
		return outcome
	}
	if msg.SentByOtherUser && msg.ID != "" {
		v.markRead(ctx, id, []messaging.MessageID{msg.ID})
	}
	return outcome
}

func (v *View) applyPresence(userID messaging.UserID, online bool) {
	if userID == v.self {
		return
	}
	changed := 0
	st := v.store.Apply(func(s State) State {
		s.Conversations, changed = ApplyStatusEvent(s.Conversations, userID, online)
		return s
	})
	if changed == 0 {
		return
	}
	if id := v.selection.Current().ActiveID(); id != "" {
		if conv, idx := messaging.FindConversation(st.Conversations, id); idx >= 0 {
			v.selection.Touch(conv)
			v.syncSelection()
		}
	}
	v.logger.Debug("presence applied", "user_id", userID, "online", online, "conversations", changed)
}

// markThreadRead marks every other-user message of the loaded thread.
func (v *View) markThreadRead(ctx context.Context, id messaging.ConversationID) {
	st := v.store.Get()
	if st.Thread.ConversationID != id {
		return
	}
	var ids []messaging.MessageID
	for _, m := range st.Thread.Messages.Messages() {
		if m.SentByOtherUser && m.ID != "" {
			ids = append(ids, m.ID)
		}
	}
	if len(ids) == 0 {
		v.clearUnread(id)
		return
	}
	v.markRead(ctx, id, ids)
}

// markRead sends each message id to the backend at most once. Failed ids may
// be retried.
func (v *View) markRead(ctx context.Context, id messaging.ConversationID, ids []messaging.MessageID) {
	var pending []messaging.MessageID
	v.store.Apply(func(s State) State {
		pending = pending[:0]
		for _, mid := range ids {
			if _, ok := s.ReadRequested[mid]; !ok {
				pending = append(pending, mid)
			}
		}
		if len(pending) == 0 {
			return s
		}
		return s.withReadRequested(pending)
	})
	if len(pending) == 0 {
		return
	}
	if err := v.orchestrator.MarkRead(ctx, id, pending); err != nil {
		v.store.Apply(func(s State) State {
			next := make(map[messaging.MessageID]struct{}, len(s.ReadRequested))
			for mid := range s.ReadRequested {
				next[mid] = struct{}{}
			}
			for _, mid := range pending {
				delete(next, mid)
			}
			s.ReadRequested = next
			return s
		})
		v.logger.Warn("mark read failed", "conversation_id", id, "count", len(pending), "error", err)
		return
	}
	v.clearUnread(id)
}

func (v *View) clearUnread(id messaging.ConversationID) {
	st := v.store.Apply(func(s State) State {
		conv, idx := messaging.FindConversation(s.Conversations, id)
		if idx < 0 || !conv.HasUnread {
			return s
		}
		conv.HasUnread = false
		return s.WithConversation(conv)
	})
	if conv, idx := messaging.FindConversation(st.Conversations, id); idx >= 0 {
		v.selection.Touch(conv)
		v.syncSelection()
	}
}

// onHistoryReset runs before a first-page request. Pending optimistic sends
// survive so their echoes still resolve them.
func (v *View) onHistoryReset(id messaging.ConversationID) {
	if v.store.Get().Thread.ConversationID != id {
		return
	}
	v.pager.Reset(id)
	v.store.Apply(func(s State) State {
		if s.Thread.ConversationID != id {
			return s
		}
		var pending []messaging.Message
		for _, m := range s.Thread.Messages.Messages() {
			if m.IsOptimistic {
				pending = append(pending, m)
			}
		}
		s.Thread.Messages = messaging.NewMessageList(pending)
		s.Thread.HasDraft = false
		s.Thread.DraftData = nil
		s.Thread.Loaded = false
		return s
	})
}

func (v *View) syncSelection() {
	v.store.Apply(func(s State) State {
		s.Selection = v.selection.Current()
		return s
	})
}

func (v *View) threadLen() int {
	st := v.store.Get()
	if st.Thread.ConversationID == "" || st.Thread.ConversationID != st.Selection.ActiveID() {
		return 0
	}
	return st.Thread.Messages.Len()
}
