package chat

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"petcare/internal/domain/messaging"
)

var testEpoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: testEpoch}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type pageKey struct {
	conv messaging.ConversationID
	page int
}

type fakeBackend struct {
	mu            sync.Mutex
	conversations []messaging.Conversation
	listErr       error
	listCalls     int
	listGate      chan struct{}

	pages      map[pageKey]Page
	pageErrs   map[pageKey]error
	gates      map[pageKey]chan struct{}
	started    chan pageKey
	fetchCalls map[pageKey]int

	sendFn   func(SendInput) (messaging.Message, error)
	sent     []SendInput
	readErr  error
	readSent [][]messaging.MessageID
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		pages:      make(map[pageKey]Page),
		pageErrs:   make(map[pageKey]error),
		gates:      make(map[pageKey]chan struct{}),
		started:    make(chan pageKey, 16),
		fetchCalls: make(map[pageKey]int),
	}
}

func (b *fakeBackend) setPage(conv messaging.ConversationID, page int, p Page) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pages[pageKey{conv, page}] = p
	delete(b.pageErrs, pageKey{conv, page})
}

func (b *fakeBackend) failPage(conv messaging.ConversationID, page int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pageErrs[pageKey{conv, page}] = err
}

// block makes the next fetches of page wait until the returned func runs.
func (b *fakeBackend) block(conv messaging.ConversationID, page int) func() {
	gate := make(chan struct{})
	b.mu.Lock()
	b.gates[pageKey{conv, page}] = gate
	b.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.gates, pageKey{conv, page})
			b.mu.Unlock()
			close(gate)
		})
	}
}

func (b *fakeBackend) calls(conv messaging.ConversationID, page int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fetchCalls[pageKey{conv, page}]
}

func (b *fakeBackend) ListConversations(ctx context.Context) ([]messaging.Conversation, error) {
	b.mu.Lock()
	b.listCalls++
	gate := b.listGate
	convs := append([]messaging.Conversation(nil), b.conversations...)
	err := b.listErr
	b.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return convs, nil
}

func (b *fakeBackend) FetchMessages(ctx context.Context, conv messaging.ConversationID, page int) (Page, error) {
	key := pageKey{conv, page}
	b.mu.Lock()
	b.fetchCalls[key]++
	gate := b.gates[key]
	b.mu.Unlock()

	select {
	case b.started <- key:
	default:
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return Page{}, ctx.Err()
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if err, ok := b.pageErrs[key]; ok {
		return Page{}, err
	}
	p, ok := b.pages[key]
	if !ok {
		return Page{}, fmt.Errorf("no page %d for %s", page, conv)
	}
	p.Messages = append([]messaging.Message(nil), p.Messages...)
	return p, nil
}

func (b *fakeBackend) SendMessage(_ context.Context, input SendInput) (messaging.Message, error) {
	b.mu.Lock()
	b.sent = append(b.sent, input)
	fn := b.sendFn
	n := len(b.sent)
	b.mu.Unlock()
	if fn != nil {
		return fn(input)
	}
	return messaging.Message{
		ID:             messaging.MessageID(fmt.Sprintf("srv-%d", n)),
		ConversationID: input.ConversationID,
		Content:        input.Content,
		ImageRefs:      input.ImageRefs,
		Timestamp:      testEpoch,
	}, nil
}

func (b *fakeBackend) MarkRead(_ context.Context, _ messaging.ConversationID, ids []messaging.MessageID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.readSent = append(b.readSent, append([]messaging.MessageID(nil), ids...))
	return b.readErr
}

func (b *fakeBackend) sentCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sent)
}

func (b *fakeBackend) readIDs() []messaging.MessageID {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []messaging.MessageID
	for _, batch := range b.readSent {
		out = append(out, batch...)
	}
	return out
}

type recordingAuth struct {
	mu   sync.Mutex
	errs []error
}

func (a *recordingAuth) HandleAuthError(_ context.Context, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.errs = append(a.errs, err)
}

func (a *recordingAuth) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.errs)
}

type recordingNotifier struct {
	mu     sync.Mutex
	marked []messaging.ConversationID
}

func (n *recordingNotifier) MarkUnread(_ context.Context, id messaging.ConversationID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.marked = append(n.marked, id)
}

func (n *recordingNotifier) ids() []messaging.ConversationID {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]messaging.ConversationID(nil), n.marked...)
}

type recordingViewport struct {
	mu        sync.Mutex
	scrolls   int
	dismisses int
}

func (v *recordingViewport) ScrollToTop() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.scrolls++
}

func (v *recordingViewport) DismissKeyboard() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.dismisses++
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newMsg(id string, content string, byOther bool, at time.Time) messaging.Message {
	return messaging.Message{
		ID:              messaging.MessageID(id),
		ConversationID:  "c1",
		Content:         content,
		SentByOtherUser: byOther,
		Timestamp:       at,
		Type:            messaging.MessageTypeNormal,
	}
}

func idsOf(list []messaging.Message) []messaging.MessageID {
	out := make([]messaging.MessageID, 0, len(list))
	for _, m := range list {
		out = append(out, m.ID)
	}
	return out
}
