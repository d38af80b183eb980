package natsbus

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubjects(t *testing.T) {
	assert.Equal(t, "chat.user.u-1.events", EventsSubject("chat", "u-1"))
	assert.Equal(t, "petcare.upstream", UpstreamSubject("petcare"))
}

func TestNewValidates(t *testing.T) {
	_, err := New(Config{UserID: "u-1"}, nil)
	assert.Error(t, err)
	_, err = New(Config{URL: nats.DefaultURL}, nil)
	assert.Error(t, err)

	bus, err := New(Config{URL: nats.DefaultURL, UserID: "u-1"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "chat", bus.cfg.SubjectPrefix)
	assert.ErrorIs(t, bus.Send(context.Background(), "x"), ErrNotConnected)
	assert.NoError(t, bus.Disconnect())
}

func TestRoundTripAgainstServer(t *testing.T) {
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("set NATS_URL to run against a nats server")
	}

	bus, err := New(Config{URL: url, SubjectPrefix: "chattest", UserID: "u-1"}, nil)
	require.NoError(t, err)
	events := make(chan []byte, 1)
	bus.OnEvent(func(raw []byte) { events <- raw })
	require.NoError(t, bus.Connect(context.Background()))
	defer bus.Disconnect()

	peer, err := nats.Connect(url)
	require.NoError(t, err)
	defer peer.Close()

	upstream := make(chan *nats.Msg, 1)
	_, err = peer.ChanSubscribe(UpstreamSubject("chattest"), upstream)
	require.NoError(t, err)
	require.NoError(t, peer.Flush())

	require.NoError(t, peer.Publish(EventsSubject("chattest", "u-1"), []byte(`{"type":"new_message"}`)))
	select {
	case raw := <-events:
		assert.JSONEq(t, `{"type":"new_message"}`, string(raw))
	case <-time.After(2 * time.Second):
		t.Fatal("no event delivered")
	}

	require.NoError(t, bus.Send(context.Background(), map[string]string{"type": "typing"}))
	select {
	case msg := <-upstream:
		assert.JSONEq(t, `{"type":"typing"}`, string(msg.Data))
	case <-time.After(2 * time.Second):
		t.Fatal("no upstream event")
	}
	assert.True(t, bus.IsConnected())
}
