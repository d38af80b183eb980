package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"petcare/internal/domain/messaging"
)

func newTestOrchestrator(b *fakeBackend) (*Orchestrator, *DedupStore, *recordingAuth) {
	dedup := NewDedupStore()
	auth := &recordingAuth{}
	return NewOrchestrator(b, dedup, auth, discardLogger()), dedup, auth
}

func TestFetchConversationListCollapsesConcurrentCalls(t *testing.T) {
	b := newFakeBackend()
	b.conversations = []messaging.Conversation{{ID: "a"}, {ID: "a"}, {ID: "b"}}
	gate := make(chan struct{})
	b.listGate = gate
	o, _, _ := newTestOrchestrator(b)

	var wg sync.WaitGroup
	results := make([][]messaging.Conversation, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			convs, err := o.FetchConversationList(context.Background())
			assert.NoError(t, err)
			results[i] = convs
		}(i)
	}
	require.Eventually(t, func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		return b.listCalls >= 1
	}, time.Second, 5*time.Millisecond)
	// let the followers join the in-flight call
	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()

	assert.Equal(t, 1, b.listCalls)
	for _, convs := range results {
		assert.Len(t, convs, 2, "duplicate ids dropped")
	}
}

func TestFetchConversationListFailureKeepsPreviousList(t *testing.T) {
	b := newFakeBackend()
	b.conversations = []messaging.Conversation{{ID: "a"}}
	o, _, _ := newTestOrchestrator(b)

	_, err := o.FetchConversationList(context.Background())
	require.NoError(t, err)

	b.listErr = errors.New("connection reset")
	_, err = o.FetchConversationList(context.Background())
	require.Error(t, err)
	assert.True(t, messaging.IsKind(err, messaging.KindNetwork))
	assert.Len(t, o.LastConversations(), 1)
}

func TestAuthErrorReachesHandlerOnce(t *testing.T) {
	b := newFakeBackend()
	b.listErr = messaging.Auth("list conversations", "token expired", nil)
	o, _, auth := newTestOrchestrator(b)

	_, err := o.FetchConversationList(context.Background())
	require.Error(t, err)
	assert.True(t, messaging.IsKind(err, messaging.KindAuth))
	assert.Equal(t, 1, auth.count())
	assert.Equal(t, 1, b.listCalls, "auth errors are not retried")
}

func TestFetchMessagePageFiltersSeenAndMarksProcessed(t *testing.T) {
	b := newFakeBackend()
	b.setPage("c1", 2, Page{Messages: []messaging.Message{newMsg("m3", "x", true, testEpoch), newMsg("m2", "y", true, testEpoch)}, HasMore: true})
	o, dedup, _ := newTestOrchestrator(b)
	dedup.MarkSeen("c1", "m3")

	page, err := o.FetchMessagePage(context.Background(), "c1", 2)
	require.NoError(t, err)
	assert.Equal(t, []messaging.MessageID{"m2"}, idsOf(page.Messages))
	assert.True(t, page.HasMore)
	assert.True(t, dedup.HasSeen("c1", "m2"))
	assert.True(t, dedup.HasProcessedPage("c1", 2))

	_, err = o.FetchMessagePage(context.Background(), "c1", 2)
	assert.ErrorIs(t, err, messaging.ErrStalePage)
	assert.Equal(t, 1, b.calls("c1", 2))
}

func TestFetchMessagePageOneResetsConversation(t *testing.T) {
	b := newFakeBackend()
	b.setPage("c1", 1, Page{Messages: []messaging.Message{newMsg("m5", "x", true, testEpoch)}, HasMore: true, HasDraft: true})
	o, dedup, _ := newTestOrchestrator(b)
	dedup.MarkSeen("c1", "m5")
	dedup.MarkPageProcessed("c1", 2)
	dedup.MarkSeen("c2", "other")

	var resets []messaging.ConversationID
	o.OnReset(func(id messaging.ConversationID) {
		assert.Zero(t, b.calls(id, 1), "reset runs before the request")
		resets = append(resets, id)
	})

	page, err := o.FetchMessagePage(context.Background(), "c1", 1)
	require.NoError(t, err)
	assert.Equal(t, []messaging.ConversationID{"c1"}, resets)
	assert.Equal(t, []messaging.MessageID{"m5"}, idsOf(page.Messages))
	assert.True(t, page.HasDraft)
	assert.False(t, dedup.HasProcessedPage("c1", 2))
	assert.True(t, dedup.HasSeen("c2", "other"))
}

func TestFetchMessagePageFailureIsRetryable(t *testing.T) {
	b := newFakeBackend()
	b.failPage("c1", 2, errors.New("timeout"))
	o, dedup, _ := newTestOrchestrator(b)

	_, err := o.FetchMessagePage(context.Background(), "c1", 2)
	require.Error(t, err)
	assert.True(t, messaging.IsKind(err, messaging.KindNetwork))
	assert.False(t, dedup.HasProcessedPage("c1", 2))

	b.setPage("c1", 2, Page{Messages: []messaging.Message{newMsg("m1", "x", true, testEpoch)}})
	page, err := o.FetchMessagePage(context.Background(), "c1", 2)
	require.NoError(t, err)
	assert.Len(t, page.Messages, 1)
	assert.Equal(t, 2, b.calls("c1", 2))
}

func TestFetchMessagePageCollapsesSamePage(t *testing.T) {
	b := newFakeBackend()
	b.setPage("c1", 2, Page{Messages: []messaging.Message{newMsg("m1", "x", true, testEpoch)}})
	release := b.block("c1", 2)
	o, _, _ := newTestOrchestrator(b)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = o.FetchMessagePage(context.Background(), "c1", 2)
		}()
	}
	<-b.started
	time.Sleep(20 * time.Millisecond)
	release()
	wg.Wait()

	assert.Equal(t, 1, b.calls("c1", 2))
}

func TestFetchMessagePageIgnoresResultFetchedBeforeReset(t *testing.T) {
	b := newFakeBackend()
	b.setPage("c1", 1, Page{Messages: []messaging.Message{newMsg("m5", "x", true, testEpoch)}, HasMore: true})
	b.setPage("c1", 2, Page{Messages: []messaging.Message{newMsg("m4", "y", true, testEpoch)}})
	release := b.block("c1", 2)
	o, dedup, _ := newTestOrchestrator(b)

	errs := make(chan error, 1)
	go func() {
		_, err := o.FetchMessagePage(context.Background(), "c1", 2)
		errs <- err
	}()
	require.Equal(t, pageKey{"c1", 2}, <-b.started)
	_, err := o.FetchMessagePage(context.Background(), "c1", 1)
	require.NoError(t, err)
	release()

	assert.ErrorIs(t, <-errs, messaging.ErrStalePage)
	assert.False(t, dedup.HasProcessedPage("c1", 2))
	assert.False(t, dedup.HasSeen("c1", "m4"))

	page, err := o.FetchMessagePage(context.Background(), "c1", 2)
	require.NoError(t, err)
	assert.Equal(t, []messaging.MessageID{"m4"}, idsOf(page.Messages))
}

func TestFetchMessagePageSurvivesFirstCallerCancel(t *testing.T) {
	b := newFakeBackend()
	b.setPage("c1", 2, Page{Messages: []messaging.Message{newMsg("m1", "x", true, testEpoch)}})
	release := b.block("c1", 2)
	o, _, _ := newTestOrchestrator(b)

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := o.FetchMessagePage(ctx, "c1", 2)
		first <- err
	}()
	<-b.started

	second := make(chan error, 1)
	var page Page
	go func() {
		var err error
		page, err = o.FetchMessagePage(context.Background(), "c1", 2)
		second <- err
	}()
	// let the second caller join the in-flight call
	time.Sleep(20 * time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-first, context.Canceled)
	release()

	require.NoError(t, <-second)
	assert.Equal(t, []messaging.MessageID{"m1"}, idsOf(page.Messages))
	assert.Equal(t, 1, b.calls("c1", 2))
}

func TestFetchMessagePageRejectsBadInput(t *testing.T) {
	o, _, _ := newTestOrchestrator(newFakeBackend())
	_, err := o.FetchMessagePage(context.Background(), "c1", 0)
	assert.True(t, messaging.IsKind(err, messaging.KindValidation))
	_, err = o.FetchMessagePage(context.Background(), "", 1)
	assert.True(t, messaging.IsKind(err, messaging.KindValidation))
}

func TestSendMessageValidatesBeforeNetwork(t *testing.T) {
	b := newFakeBackend()
	o, _, _ := newTestOrchestrator(b)

	tests := []struct {
		name  string
		input SendInput
	}{
		{"empty", SendInput{ConversationID: "c1"}},
		{"blank text, blank images", SendInput{ConversationID: "c1", Content: "  ", ImageRefs: []string{"", " "}}},
		{"empty image slice", SendInput{ConversationID: "c1", ImageRefs: []string{}}},
		{"no conversation", SendInput{Content: "hi"}},
		{"too long", SendInput{ConversationID: "c1", Content: strings.Repeat("a", 5001)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := o.SendMessage(context.Background(), tt.input)
			require.Error(t, err)
			assert.True(t, messaging.IsKind(err, messaging.KindValidation))
		})
	}
	assert.Zero(t, b.sentCount())
}

func TestSendMessageAcceptsImageOnly(t *testing.T) {
	b := newFakeBackend()
	o, _, _ := newTestOrchestrator(b)

	m, err := o.SendMessage(context.Background(), SendInput{ConversationID: "c1", ImageRefs: []string{"img/1.jpg"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"img/1.jpg"}, m.ImageRefs)
	assert.Equal(t, messaging.ConversationID("c1"), m.ConversationID)
}

func TestMarkReadSkipsEmptyBatch(t *testing.T) {
	b := newFakeBackend()
	o, _, _ := newTestOrchestrator(b)

	require.NoError(t, o.MarkRead(context.Background(), "c1", nil))
	assert.Empty(t, b.readSent)

	b.readErr = errors.New("boom")
	err := o.MarkRead(context.Background(), "c1", []messaging.MessageID{"m1"})
	assert.True(t, messaging.IsKind(err, messaging.KindNetwork))
}
