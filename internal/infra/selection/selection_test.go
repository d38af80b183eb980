package selection

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"petcare/internal/app/chat"
	"petcare/internal/domain/messaging"
)

func TestURLStateKeepsOtherParams(t *testing.T) {
	s, err := NewURLState("https://app.example/messages?tab=inbox")
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "c 1"))
	id, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, messaging.ConversationID("c 1"), id)
	assert.Contains(t, s.URL(), "tab=inbox")

	require.NoError(t, s.Clear(ctx))
	assert.Equal(t, "https://app.example/messages?tab=inbox", s.URL())
}

func TestReloadClearsSelectionNavigationKeepsIt(t *testing.T) {
	ctx := context.Background()
	state, err := NewURLState("https://app.example/messages")
	require.NoError(t, err)
	visible := []messaging.Conversation{{ID: "9", Participants: [2]messaging.UserID{"me", "u9"}}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ctrl := chat.NewSelectionController(chat.Options{}, messaging.RolePetOwner, state, nil, logger)
	_, err = ctrl.Select(ctx, "9", visible)
	require.NoError(t, err)
	assert.Contains(t, state.URL(), "conversation=9")

	state.Navigate(NavigationPush)
	state.Navigate(NavigationPop)
	id, _ := state.Load(ctx)
	assert.Equal(t, messaging.ConversationID("9"), id)

	state.Navigate(NavigationReload)
	id, _ = state.Load(ctx)
	assert.Empty(t, id)

	fresh := chat.NewSelectionController(chat.Options{}, messaging.RolePetOwner, state, nil, logger)
	fresh.SetViewportWidth(ctx, 400, visible)
	tr, err := fresh.Restore(ctx, visible)
	require.NoError(t, err)
	assert.False(t, tr.To.IsActive())
}

func TestRedisStoreValidates(t *testing.T) {
	_, err := NewRedisStore(nil, "u-1", 0)
	assert.Error(t, err)
	assert.Equal(t, "chat:selection:u-1", Key("u-1"))
}

func TestRedisStoreRoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("set REDIS_ADDR to run against redis")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}

	store, err := NewRedisStore(client, "test-user", time.Minute)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, "c-42"))
	id, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, messaging.ConversationID("c-42"), id)

	require.NoError(t, store.Clear(ctx))
	id, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, id)
}
