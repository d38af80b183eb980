package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"petcare/internal/app/chat"
	"petcare/internal/domain/messaging"
	"petcare/internal/infra/auth"
	"petcare/internal/infra/backend/rest"
	"petcare/internal/infra/config"
	ginserver "petcare/internal/infra/http/gin"
	"petcare/internal/infra/obs"
	"petcare/internal/infra/push/natsbus"
	wspush "petcare/internal/infra/push/websocket"
	"petcare/internal/infra/selection"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		obs.NewLogger(os.Getenv("APP_ENV"), "info").Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := obs.NewLogger(cfg.Env, cfg.LogLevel)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("chatview failed", "error", err)
		os.Exit(1)
	}
	logger.Info("chatview stopped")
}

// pushTransport is a push channel that reports restored connections.
type pushTransport interface {
	chat.PushChannel
	OnReconnect(fn func())
}

// viewOptions layers the configured tunables over the view defaults.
func viewOptions(cfg config.Config) chat.Options {
	opts := chat.DefaultOptions()
	if cfg.PageSize > 0 {
		opts.PageSize = cfg.PageSize
	}
	if cfg.PaginationCooldown >= 0 {
		opts.PaginationCooldown = cfg.PaginationCooldown
	}
	if cfg.LoadingTimeout > 0 {
		opts.LoadingTimeout = cfg.LoadingTimeout
	}
	if cfg.DuplicateWindow > 0 {
		opts.DuplicateWindow = cfg.DuplicateWindow
	}
	return opts
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	session := auth.NewSession(cfg.APIToken, logger)
	backend, err := rest.NewClient(rest.Config{
		BaseURL:     cfg.APIBaseURL,
		CallTimeout: cfg.APITimeout,
		Self:        cfg.UserID,
	}, nil, session, logger)
	if err != nil {
		return err
	}

	checks := map[string]obs.Check{"backend": backend.Ping}
	store, navigator, closeStore, err := buildSelectionStore(cfg, checks)
	if err != nil {
		return err
	}
	defer closeStore()

	view := chat.NewView(chat.Config{
		Self:          cfg.UserID,
		Role:          cfg.Role,
		ViewportWidth: cfg.ViewportWidth,
		Options:       viewOptions(cfg),
	}, chat.Deps{
		Backend:   backend,
		Auth:      session,
		Notifier:  logNotifier{logger: logger},
		Selection: store,
		Logger:    logger,
	})

	push, err := buildPush(cfg, session, logger, checks)
	if err != nil {
		return err
	}
	if push != nil {
		push.OnEvent(func(raw []byte) { view.HandlePushEvent(ctx, raw) })
		push.OnReconnect(func() {
			if err := view.Refresh(ctx); err != nil {
				logger.Warn("refresh after reconnect failed", "error", err)
			}
		})
	}
	session.OnSignedOut(func(_ context.Context, err error) {
		logger.Warn("signed out", "error", err)
		go view.SignOut(context.Background())
	})

	server := ginserver.NewServer(cfg, obs.Middleware{Logger: logger}, obs.HealthHandlers{Checks: checks}, ginserver.Handlers{
		View: ginserver.ViewHandler{
			View:      view,
			Navigator: navigator,
			Logger:    logger,
		},
		AuthMiddleware: ginserver.TokenGuard{Token: cfg.ViewToken}.Handle,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := view.Start(gctx); err != nil {
			logger.Warn("initial load failed", "error", err)
		}
		return nil
	})
	if push != nil {
		g.Go(func() error {
			connectPush(gctx, push, cfg.PushReconnectWait, logger)
			return nil
		})
	}
	g.Go(func() error {
		logger.Info("HTTP server starting", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", "error", err)
		}
		if push != nil {
			if err := push.Disconnect(); err != nil {
				logger.Warn("push disconnect failed", "error", err)
			}
		}
		return nil
	})
	return g.Wait()
}

func buildSelectionStore(cfg config.Config, checks map[string]obs.Check) (chat.SelectionStore, ginserver.Navigator, func(), error) {
	if cfg.RedisAddr == "" {
		state, err := selection.NewURLState(cfg.SelectionURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("selection url: %w", err)
		}
		return state, state, func() {}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	store, err := selection.NewRedisStore(client, cfg.UserID, 0)
	if err != nil {
		_ = client.Close()
		return nil, nil, nil, err
	}
	checks["redis"] = store.Ping
	return store, nil, func() { _ = client.Close() }, nil
}

func buildPush(cfg config.Config, session *auth.Session, logger *slog.Logger, checks map[string]obs.Check) (pushTransport, error) {
	switch cfg.PushTransport {
	case config.PushWebSocket:
		return wspush.New(wspush.Config{
			URL:           cfg.PushURL,
			ReconnectWait: cfg.PushReconnectWait,
			PingInterval:  cfg.PushPingInterval,
			Token:         session.Token,
		}, logger)
	case config.PushNATS:
		bus, err := natsbus.New(natsbus.Config{
			URL:           cfg.NATSURL,
			SubjectPrefix: cfg.NATSSubjectPrefix,
			UserID:        cfg.UserID,
			ReconnectWait: cfg.PushReconnectWait,
		}, logger)
		if err != nil {
			return nil, err
		}
		checks["nats"] = func(context.Context) error {
			if !bus.IsConnected() {
				return obs.ErrNotConnected
			}
			return nil
		}
		return bus, nil
	default:
		logger.Info("push transport disabled")
		return nil, nil
	}
}

// connectPush retries the first connection; the transports handle drops
// after that.
func connectPush(ctx context.Context, push pushTransport, wait time.Duration, logger *slog.Logger) {
	if wait <= 0 {
		wait = 2 * time.Second
	}
	for {
		err := push.Connect(ctx)
		if err == nil {
			return
		}
		logger.Warn("push connect failed", "error", err, "retry_in", wait)
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

type logNotifier struct {
	logger *slog.Logger
}

func (n logNotifier) MarkUnread(ctx context.Context, id messaging.ConversationID) {
	n.logger.InfoContext(ctx, "conversation has unread messages", "conversation_id", id)
}
