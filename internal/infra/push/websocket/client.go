package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"petcare/internal/app/chat"
)

// ErrNotConnected is returned by Send while no connection is up.
var ErrNotConnected = errors.New("push: websocket not connected")

const maxReconnectWait = 30 * time.Second

// Config defines websocket push settings.
type Config struct {
	URL           string
	ReconnectWait time.Duration
	PingInterval  time.Duration
	WriteTimeout  time.Duration
	// Token is read on every dial so a refreshed session is picked up.
	Token func() string
}

// Client is a push channel over a single websocket that redials on loss.
type Client struct {
	cfg    Config
	dialer *websocket.Dialer
	logger *slog.Logger

	mu          sync.Mutex
	conn        *websocket.Conn
	handlers    []func(raw []byte)
	onReconnect []func()
	cancel      context.CancelFunc
	done        chan struct{}

	writeMu sync.Mutex
}

func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("push: websocket url required")
	}
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second, Proxy: http.ProxyFromEnvironment},
		logger: logger.With("component", "push.websocket"),
	}, nil
}

// OnEvent registers a handler for every inbound frame.
func (c *Client) OnEvent(handler func(raw []byte)) {
	if handler == nil {
		return
	}
	c.mu.Lock()
	c.handlers = append(c.handlers, handler)
	c.mu.Unlock()
}

// OnReconnect registers a hook fired after a dropped connection is restored.
// Events missed while down are not replayed.
func (c *Client) OnReconnect(fn func()) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	c.onReconnect = append(c.onReconnect, fn)
	c.mu.Unlock()
}

// Connect dials once and keeps the connection alive until ctx ends or
// Disconnect is called.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.mu.Lock()
	c.conn = conn
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	c.logger.Info("push connected", "url", c.cfg.URL)
	go c.run(loopCtx, conn, done)
	return nil
}

// Reconnect drops the current connection; the run loop redials it.
func (c *Client) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	conn, running := c.conn, c.cancel != nil
	c.mu.Unlock()
	if !running {
		return c.Connect(ctx)
	}
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// Disconnect closes the connection and stops redialing.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	cancel, done, conn := c.cancel, c.done, c.conn
	c.cancel, c.done, c.conn = nil, nil, nil
	c.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(c.cfg.WriteTimeout))
		_ = conn.Close()
	}
	<-done
	return nil
}

// Send writes one JSON event upstream.
func (c *Client) Send(ctx context.Context, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	deadline := time.Now().Add(c.cfg.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, payload)
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if c.cfg.Token != nil {
		if token := c.cfg.Token(); token != "" {
			header.Set("Authorization", "Bearer "+token)
		}
	}
	conn, resp, err := c.dialer.DialContext(ctx, c.cfg.URL, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (c *Client) run(ctx context.Context, conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		c.serve(ctx, conn)
		if ctx.Err() != nil {
			return
		}
		c.setConn(nil)

		next, ok := c.redial(ctx)
		if !ok {
			return
		}
		conn = next
		c.setConn(conn)
		c.logger.Info("push reconnected", "url", c.cfg.URL)
		c.mu.Lock()
		hooks := append([]func(){}, c.onReconnect...)
		c.mu.Unlock()
		for _, fn := range hooks {
			fn()
		}
	}
}

// serve pumps frames to the handlers until the connection fails.
func (c *Client) serve(ctx context.Context, conn *websocket.Conn) {
	wait := 2 * c.cfg.PingInterval
	_ = conn.SetReadDeadline(time.Now().Add(wait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wait))
	})

	stop := make(chan struct{})
	defer close(stop)
	go c.keepalive(ctx, conn, stop)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn("push connection lost", "error", err)
			}
			_ = conn.Close()
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wait))
		c.mu.Lock()
		handlers := append([]func([]byte){}, c.handlers...)
		c.mu.Unlock()
		for _, h := range handlers {
			h(raw)
		}
	}
}

func (c *Client) keepalive(ctx context.Context, conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			_ = conn.Close()
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteTimeout)); err != nil {
				c.logger.Debug("push ping failed", "error", err)
				_ = conn.Close()
				return
			}
		}
	}
}

func (c *Client) redial(ctx context.Context) (*websocket.Conn, bool) {
	wait := c.cfg.ReconnectWait
	for {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, false
		case <-timer.C:
		}
		conn, err := c.dial(ctx)
		if err == nil {
			return conn, true
		}
		c.logger.Debug("push redial failed", "error", err, "retry_in", wait)
		wait *= 2
		if wait > maxReconnectWait {
			wait = maxReconnectWait
		}
	}
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	if c.cancel != nil {
		c.conn = conn
	}
	c.mu.Unlock()
}

var _ chat.PushChannel = (*Client)(nil)
