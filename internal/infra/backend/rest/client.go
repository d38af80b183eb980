package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"petcare/internal/app/chat"
	"petcare/internal/app/dto"
	"petcare/internal/domain/messaging"
	"petcare/internal/infra/auth"
)

// Config defines chat API client settings.
type Config struct {
	BaseURL     string
	CallTimeout time.Duration
	Self        messaging.UserID
}

// Client talks to the marketplace chat REST API.
type Client struct {
	http        *http.Client
	baseURL     string
	callTimeout time.Duration
	self        messaging.UserID
	session     *auth.Session
	logger      *slog.Logger
	now         func() time.Time
}

// invalidTokenCodes are the 401 codes that mean the credentials are gone,
// as opposed to a missing permission.
var invalidTokenCodes = []string{"invalid_token", "token_not_valid"}

type apiError struct {
	Code   string `json:"code"`
	Detail string `json:"detail"`
	Error  string `json:"error"`
}

func NewClient(cfg Config, httpClient *http.Client, session *auth.Session, logger *slog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("rest: base url required")
	}
	if session == nil {
		return nil, errors.New("rest: session required")
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		http:        httpClient,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		callTimeout: timeout,
		self:        cfg.Self,
		session:     session,
		logger:      logger,
		now:         time.Now,
	}, nil
}

// ListConversations returns the signed-in user's conversations.
func (c *Client) ListConversations(ctx context.Context) ([]messaging.Conversation, error) {
	var resp dto.ConversationList
	if err := c.do(ctx, "list conversations", http.MethodGet, "/conversations", nil, &resp); err != nil {
		return nil, err
	}
	items := make([]messaging.Conversation, 0, len(resp.Conversations))
	for _, conv := range resp.Conversations {
		items = append(items, dto.ConversationToDomain(conv))
	}
	return items, nil
}

// FetchMessages returns one newest-first page of a conversation.
func (c *Client) FetchMessages(ctx context.Context, conversationID messaging.ConversationID, page int) (chat.Page, error) {
	path := conversationPath(conversationID, "messages") + "?page=" + strconv.Itoa(page)
	var resp dto.MessagePage
	if err := c.do(ctx, "fetch messages", http.MethodGet, path, nil, &resp); err != nil {
		return chat.Page{}, err
	}
	msgs := dto.MessagesToDomain(resp.Messages, c.self)
	for i := range msgs {
		if msgs[i].ConversationID == "" {
			msgs[i].ConversationID = conversationID
		}
	}
	return chat.Page{
		Messages:  msgs,
		HasMore:   resp.HasMore,
		HasDraft:  resp.HasDraft,
		DraftData: resp.DraftData,
	}, nil
}

// SendMessage posts a normal message.
func (c *Client) SendMessage(ctx context.Context, input chat.SendInput) (messaging.Message, error) {
	body := dto.SendMessageRequest{Content: input.Content, ImageURLs: input.ImageRefs}
	if body.ImageURLs == nil {
		body.ImageURLs = []string{}
	}
	var resp dto.ChatMessage
	if err := c.do(ctx, "send message", http.MethodPost, conversationPath(input.ConversationID, "messages"), body, &resp); err != nil {
		return messaging.Message{}, err
	}
	msg := dto.MessageToDomain(resp, c.self)
	if msg.ConversationID == "" {
		msg.ConversationID = input.ConversationID
	}
	return msg, nil
}

// MarkRead marks messages of a conversation as read.
func (c *Client) MarkRead(ctx context.Context, conversationID messaging.ConversationID, ids []messaging.MessageID) error {
	body := dto.MarkReadRequest{MessageIDs: make([]string, 0, len(ids))}
	for _, id := range ids {
		body.MessageIDs = append(body.MessageIDs, string(id))
	}
	return c.do(ctx, "mark read", http.MethodPost, conversationPath(conversationID, "read"), body, nil)
}

// Ping checks that the API answers at all.
func (c *Client) Ping(ctx context.Context) error {
	callCtx, cancel := c.wrapCall(ctx)
	defer cancel()
	req, err := http.NewRequestWithContext(callCtx, http.MethodHead, c.baseURL+"/conversations", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("chat api returned status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	token := c.session.Token()
	if token == "" {
		return messaging.Auth(op, "not signed in", nil)
	}
	if auth.TokenExpired(token, c.now()) {
		return messaging.Auth(op, "token expired", nil)
	}

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return messaging.Validation(op, "encode request", err)
		}
		body = bytes.NewReader(raw)
	}

	callCtx, cancel := c.wrapCall(ctx)
	defer cancel()
	req, err := http.NewRequestWithContext(callCtx, method, c.baseURL+path, body)
	if err != nil {
		return messaging.Network(op, 0, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("chat api request failed", "op", op, "error", err)
		return messaging.Network(op, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return classifyStatus(op, resp.StatusCode, snippet)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return messaging.Malformed(op+": decode response", err)
	}
	return nil
}

func (c *Client) wrapCall(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, c.callTimeout)
}

func classifyStatus(op string, status int, body []byte) error {
	var payload apiError
	_ = json.Unmarshal(body, &payload)
	cause := fmt.Errorf("chat api returned status %d: %s", status, strings.TrimSpace(string(body)))
	if status == http.StatusUnauthorized && hasInvalidTokenSignal(payload, body) {
		msg := payload.Detail
		if msg == "" {
			msg = "invalid token"
		}
		return messaging.Auth(op, msg, cause)
	}
	return messaging.Network(op, status, cause)
}

func hasInvalidTokenSignal(payload apiError, body []byte) bool {
	for _, code := range invalidTokenCodes {
		if strings.EqualFold(payload.Code, code) || strings.EqualFold(payload.Error, code) {
			return true
		}
		if bytes.Contains(body, []byte(code)) {
			return true
		}
	}
	return false
}

func conversationPath(id messaging.ConversationID, suffix string) string {
	return "/conversations/" + url.PathEscape(string(id)) + "/" + suffix
}

var _ chat.Backend = (*Client)(nil)
