package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"petcare/internal/domain/messaging"
)

const (
	PushWebSocket = "websocket"
	PushNATS      = "nats"
	PushNone      = "none"
)

// Config aggregates the chat client settings. Environment variables win over
// the optional YAML file named by CHAT_CONFIG_FILE, whose keys are the
// lower-cased variable names.
type Config struct {
	Env       string
	LogLevel  string
	HTTPAddr  string
	ViewToken string

	APIBaseURL string
	APIToken   string
	APITimeout time.Duration
	UserID     messaging.UserID
	Role       messaging.Role

	PushTransport     string
	PushURL           string
	PushReconnectWait time.Duration
	PushPingInterval  time.Duration
	NATSURL           string
	NATSSubjectPrefix string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SelectionURL  string

	ViewportWidth      int
	PageSize           int
	DuplicateWindow    time.Duration
	PaginationCooldown time.Duration
	LoadingTimeout     time.Duration
}

// Load parses configuration from .env, the optional config file and the
// current environment.
func Load() (Config, error) {
	if err := loadDotEnv(); err != nil {
		return Config{}, err
	}
	v := viper.New()
	v.AutomaticEnv()
	if path := v.GetString("CHAT_CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
	}
	return load(v)
}

func load(v *viper.Viper) (Config, error) {
	cfg := Config{
		Env:               getEnv(v, "APP_ENV", "dev"),
		LogLevel:          getEnv(v, "LOG_LEVEL", "info"),
		HTTPAddr:          getEnv(v, "HTTP_ADDR", ":8080"),
		ViewToken:         getEnv(v, "VIEW_API_TOKEN", ""),
		APIBaseURL:        strings.TrimRight(getEnv(v, "CHAT_API_BASE_URL", ""), "/"),
		APIToken:          getEnv(v, "CHAT_API_TOKEN", ""),
		UserID:            messaging.UserID(getEnv(v, "CHAT_USER_ID", "")),
		PushTransport:     strings.ToLower(getEnv(v, "PUSH_TRANSPORT", PushWebSocket)),
		PushURL:           getEnv(v, "PUSH_WS_URL", ""),
		NATSURL:           getEnv(v, "NATS_URL", "nats://127.0.0.1:4222"),
		NATSSubjectPrefix: getEnv(v, "NATS_SUBJECT_PREFIX", "chat"),
		RedisAddr:         getEnv(v, "REDIS_ADDR", ""),
		RedisPassword:     getEnv(v, "REDIS_PASSWORD", ""),
		SelectionURL:      getEnv(v, "CHAT_SELECTION_URL", "http://localhost/messages"),
	}

	role, ok := messaging.ParseRole(getEnv(v, "CHAT_ROLE", string(messaging.RolePetOwner)))
	if !ok {
		return Config{}, fmt.Errorf("invalid CHAT_ROLE %q", getEnv(v, "CHAT_ROLE", ""))
	}
	cfg.Role = role

	var err error
	if cfg.APITimeout, err = parseDurationEnv(v, "CHAT_API_TIMEOUT", 10*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.PushReconnectWait, err = parseDurationEnv(v, "PUSH_RECONNECT_WAIT", 2*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.PushPingInterval, err = parseDurationEnv(v, "PUSH_PING_INTERVAL", 30*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.DuplicateWindow, err = parseDurationEnv(v, "CHAT_DUPLICATE_WINDOW", 5*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.PaginationCooldown, err = parseDurationEnv(v, "CHAT_PAGINATION_COOLDOWN", time.Second); err != nil {
		return Config{}, err
	}
	if cfg.LoadingTimeout, err = parseDurationEnv(v, "CHAT_LOADING_TIMEOUT", 5*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.RedisDB, err = parseIntEnv(v, "REDIS_DB", 0); err != nil {
		return Config{}, err
	}
	if cfg.ViewportWidth, err = parseIntEnv(v, "CHAT_VIEWPORT_WIDTH", 1200); err != nil {
		return Config{}, err
	}
	if cfg.PageSize, err = parseIntEnv(v, "CHAT_PAGE_SIZE", 20); err != nil {
		return Config{}, err
	}

	if cfg.APIBaseURL == "" {
		return Config{}, fmt.Errorf("CHAT_API_BASE_URL is required")
	}
	if _, err := url.ParseRequestURI(cfg.APIBaseURL); err != nil {
		return Config{}, fmt.Errorf("invalid CHAT_API_BASE_URL: %w", err)
	}
	if cfg.UserID == "" {
		return Config{}, fmt.Errorf("CHAT_USER_ID is required")
	}
	switch cfg.PushTransport {
	case PushWebSocket:
		if cfg.PushURL == "" {
			return Config{}, fmt.Errorf("PUSH_WS_URL is required for the websocket transport")
		}
	case PushNATS:
		if cfg.NATSURL == "" {
			return Config{}, fmt.Errorf("NATS_URL is required for the nats transport")
		}
	case PushNone:
	default:
		return Config{}, fmt.Errorf("invalid PUSH_TRANSPORT %q", cfg.PushTransport)
	}
	if cfg.PageSize <= 0 {
		return Config{}, fmt.Errorf("CHAT_PAGE_SIZE must be positive")
	}
	return cfg, nil
}

func loadDotEnv() error {
	path := os.Getenv("CHAT_ENV_FILE")
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func getEnv(v *viper.Viper, key, def string) string {
	if s := strings.TrimSpace(v.GetString(key)); s != "" {
		return s
	}
	return def
}

func parseDurationEnv(v *viper.Viper, key string, def time.Duration) (time.Duration, error) {
	raw := getEnv(v, key, "")
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration: %w", key, err)
	}
	return d, nil
}

func parseIntEnv(v *viper.Viper, key string, def int) (int, error) {
	raw := getEnv(v, key, "")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s integer: %w", key, err)
	}
	return n, nil
}
