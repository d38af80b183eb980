package natsbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"petcare/internal/app/chat"
	"petcare/internal/domain/messaging"
)

// ErrNotConnected is returned by Send before Connect.
var ErrNotConnected = errors.New("push: nats not connected")

// Config defines NATS push settings.
type Config struct {
	URL           string
	SubjectPrefix string
	UserID        messaging.UserID
	ReconnectWait time.Duration
	MaxReconnects int
}

// Bus is a push channel over a per-user NATS subject.
type Bus struct {
	cfg    Config
	logger *slog.Logger

	mu          sync.Mutex
	conn        *nats.Conn
	sub         *nats.Subscription
	handlers    []func(raw []byte)
	onReconnect []func()
}

func New(cfg Config, logger *slog.Logger) (*Bus, error) {
	if cfg.URL == "" {
		return nil, errors.New("push: nats url required")
	}
	if cfg.UserID == "" {
		return nil, errors.New("push: user id required")
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "chat"
	}
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = 2 * time.Second
	}
	if cfg.MaxReconnects == 0 {
		cfg.MaxReconnects = -1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{cfg: cfg, logger: logger.With("component", "push.nats")}, nil
}

// EventsSubject is where the server fans out events for one user.
func EventsSubject(prefix string, user messaging.UserID) string {
	return fmt.Sprintf("%s.user.%s.events", prefix, user)
}

// UpstreamSubject receives client-originated events.
func UpstreamSubject(prefix string) string {
	return prefix + ".upstream"
}

func (b *Bus) OnEvent(handler func(raw []byte)) {
	if handler == nil {
		return
	}
	b.mu.Lock()
	b.handlers = append(b.handlers, handler)
	b.mu.Unlock()
}

// OnReconnect registers a hook fired after the client library restores the
// connection.
func (b *Bus) OnReconnect(fn func()) {
	if fn == nil {
		return
	}
	b.mu.Lock()
	b.onReconnect = append(b.onReconnect, fn)
	b.mu.Unlock()
}

func (b *Bus) Connect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	timeout := 10 * time.Second
	if d, ok := ctx.Deadline(); ok {
		timeout = time.Until(d)
	}
	opts := []nats.Option{
		nats.Name("chatview-" + string(b.cfg.UserID)),
		nats.MaxReconnects(b.cfg.MaxReconnects),
		nats.ReconnectWait(b.cfg.ReconnectWait),
		nats.Timeout(timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			b.logger.Warn("disconnected from nats", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			b.logger.Info("reconnected to nats", "url", nc.ConnectedUrl())
			b.fireReconnect()
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			b.logger.Info("nats connection closed")
		}),
	}
	conn, err := nats.Connect(b.cfg.URL, opts...)
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}

	subject := EventsSubject(b.cfg.SubjectPrefix, b.cfg.UserID)
	sub, err := conn.Subscribe(subject, b.dispatch)
	if err != nil {
		conn.Close()
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}
	b.conn, b.sub = conn, sub
	b.logger.Info("push connected", "subject", subject)
	return nil
}

// Reconnect tears the connection down and connects again.
func (b *Bus) Reconnect(ctx context.Context) error {
	if err := b.Disconnect(); err != nil {
		return err
	}
	if err := b.Connect(ctx); err != nil {
		return err
	}
	b.fireReconnect()
	return nil
}

func (b *Bus) Disconnect() error {
	b.mu.Lock()
	conn, sub := b.conn, b.sub
	b.conn, b.sub = nil, nil
	b.mu.Unlock()
	if conn == nil {
		return nil
	}
	if sub != nil {
		_ = sub.Unsubscribe()
	}
	return conn.Drain()
}

func (b *Bus) Send(_ context.Context, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	return conn.Publish(UpstreamSubject(b.cfg.SubjectPrefix), payload)
}

// IsConnected reports the live connection state for health checks.
func (b *Bus) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn != nil && b.conn.IsConnected()
}

func (b *Bus) dispatch(msg *nats.Msg) {
	b.mu.Lock()
	handlers := append([]func([]byte){}, b.handlers...)
	b.mu.Unlock()
	for _, h := range handlers {
		h(msg.Data)
	}
}

func (b *Bus) fireReconnect() {
	b.mu.Lock()
	hooks := append([]func(){}, b.onReconnect...)
	b.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}

var _ chat.PushChannel = (*Bus)(nil)
