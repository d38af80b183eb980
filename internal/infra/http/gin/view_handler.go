package ginserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	"petcare/internal/app/chat"
	"petcare/internal/app/dto"
	"petcare/internal/domain/messaging"
	"petcare/internal/infra/obs"
	"petcare/internal/infra/selection"
)

// ConversationView is the part of chat.View the API drives.
type ConversationView interface {
	Snapshot() chat.Snapshot
	VisibleConversations() []messaging.Conversation
	Refresh(ctx context.Context) error
	Select(ctx context.Context, id messaging.ConversationID) error
	Deselect(ctx context.Context)
	SetRole(ctx context.Context, role messaging.Role) error
	SetViewportWidth(ctx context.Context, width int) error
	OnVisibleItemsChanged(ctx context.Context, oldestIndex int) (bool, error)
	OnScroll(ctx context.Context, m chat.ScrollMetrics) (bool, error)
	OnEndReached(ctx context.Context) (bool, error)
	LoadOlder(ctx context.Context, force bool) (bool, error)
	Send(ctx context.Context, content string, imageRefs []string) (messaging.Message, error)
}

// Navigator receives navigation events for URL-backed selection.
type Navigator interface {
	Navigate(kind selection.NavigationKind)
	URL() string
}

// ViewHandler exposes the conversation view over HTTP.
type ViewHandler struct {
	View      ConversationView
	Navigator Navigator
	Logger    *slog.Logger
}

func (h ViewHandler) Snapshot(c *gin.Context) {
	c.JSON(http.StatusOK, snapshotDTO(h.View.Snapshot()))
}

func (h ViewHandler) Conversations(c *gin.Context) {
	convs := h.View.VisibleConversations()
	out := dto.ConversationList{Conversations: make([]dto.Conversation, 0, len(convs))}
	for _, conv := range convs {
		out.Conversations = append(out.Conversations, dto.ConversationFromDomain(conv))
	}
	c.JSON(http.StatusOK, out)
}

func (h ViewHandler) Refresh(c *gin.Context) {
	if err := h.View.Refresh(c.Request.Context()); err != nil {
		h.respondError(c, err, "refresh")
		return
	}
	c.JSON(http.StatusOK, snapshotDTO(h.View.Snapshot()))
}

func (h ViewHandler) Select(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "conversation id is required"})
		return
	}
	if err := h.View.Select(c.Request.Context(), messaging.ConversationID(id)); err != nil {
		h.respondError(c, err, "select conversation", "conversation_id", id)
		return
	}
	c.JSON(http.StatusOK, snapshotDTO(h.View.Snapshot()))
}

func (h ViewHandler) Deselect(c *gin.Context) {
	h.View.Deselect(c.Request.Context())
	c.Status(http.StatusNoContent)
}

func (h ViewHandler) SetRole(c *gin.Context) {
	var req dto.RoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	role, ok := messaging.ParseRole(req.Role)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown role"})
		return
	}
	if err := h.View.SetRole(c.Request.Context(), role); err != nil {
		h.respondError(c, err, "set role", "role", role)
		return
	}
	c.JSON(http.StatusOK, snapshotDTO(h.View.Snapshot()))
}

func (h ViewHandler) SetViewport(c *gin.Context) {
	var req dto.ViewportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if err := h.View.SetViewportWidth(c.Request.Context(), req.Width); err != nil {
		h.respondError(c, err, "set viewport", "width", req.Width)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h ViewHandler) VisibleItems(c *gin.Context) {
	var req dto.VisibleItemsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	ok, err := h.View.OnVisibleItemsChanged(c.Request.Context(), req.OldestIndex)
	h.respondLoad(c, ok, err, "visible items")
}

func (h ViewHandler) Scroll(c *gin.Context) {
	var req dto.ScrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	ok, err := h.View.OnScroll(c.Request.Context(), chat.ScrollMetrics{
		Offset:         req.Offset,
		ContentHeight:  req.ContentHeight,
		ViewportHeight: req.ViewportHeight,
		Momentum:       req.Momentum,
	})
	h.respondLoad(c, ok, err, "scroll")
}

func (h ViewHandler) EndReached(c *gin.Context) {
	ok, err := h.View.OnEndReached(c.Request.Context())
	h.respondLoad(c, ok, err, "end reached")
}

func (h ViewHandler) LoadOlder(c *gin.Context) {
	var req dto.LoadOlderRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
			return
		}
	}
	ok, err := h.View.LoadOlder(c.Request.Context(), req.Force)
	h.respondLoad(c, ok, err, "load older")
}

func (h ViewHandler) Send(c *gin.Context) {
	var req dto.SendViewMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	msg, err := h.View.Send(c.Request.Context(), req.Content, req.ImageURLs)
	if err != nil {
		h.respondError(c, err, "send message")
		return
	}
	c.JSON(http.StatusCreated, dto.MessageFromDomain(msg))
}

func (h ViewHandler) Navigate(c *gin.Context) {
	if h.Navigator == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "url selection not enabled"})
		return
	}
	var req dto.NavigationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	h.Navigator.Navigate(selection.NavigationKind(req.Kind))
	c.JSON(http.StatusOK, gin.H{"url": h.Navigator.URL()})
}

func (h ViewHandler) respondLoad(c *gin.Context, triggered bool, err error, action string) {
	if err != nil {
		h.respondError(c, err, action)
		return
	}
	c.JSON(http.StatusOK, dto.LoadResult{Triggered: triggered})
}

func (h ViewHandler) respondError(c *gin.Context, err error, action string, attrs ...any) {
	status, msg := errorStatus(err)
	if h.Logger != nil {
		level := slog.LevelWarn
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		ctx := c.Request.Context()
		h.Logger.Log(ctx, level, "view call failed", append([]any{
			"action", action,
			"error", err,
			"request_id", obs.RequestIDFromContext(ctx),
		}, attrs...)...)
	}
	c.JSON(status, gin.H{"error": msg})
}

func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, messaging.ErrConversationNotVisible):
		return http.StatusNotFound, "conversation not found"
	case errors.Is(err, messaging.ErrStalePage):
		return http.StatusConflict, "stale page"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "backend timeout"
	}
	var typed *messaging.Error
	if !errors.As(err, &typed) {
		return http.StatusInternalServerError, "internal error"
	}
	switch typed.Kind {
	case messaging.KindAuth:
		return http.StatusUnauthorized, "sign-in required"
	case messaging.KindValidation:
		return http.StatusBadRequest, typed.Message
	case messaging.KindMalformed:
		return http.StatusBadGateway, "backend sent an invalid response"
	default:
		if typed.Status == 0 {
			return http.StatusServiceUnavailable, "backend unavailable"
		}
		return http.StatusBadGateway, "backend unavailable"
	}
}

func snapshotDTO(s chat.Snapshot) dto.ViewSnapshot {
	out := dto.ViewSnapshot{
		Role:          string(s.Role),
		Conversations: make([]dto.Conversation, 0, len(s.Conversations)),
		Selection: dto.ViewSelection{
			Phase:          s.Selection.Phase.String(),
			ConversationID: string(s.Selection.ConversationID),
		},
		ConversationID: string(s.ConversationID),
		Messages:       dto.MessagesFromDomain(s.Messages),
		HasDraft:       s.HasDraft,
		DraftData:      s.DraftData,
		Loaded:         s.Loaded,
		Pagination: dto.ViewPagination{
			CurrentPage:   s.Pagination.CurrentPage,
			HasMore:       s.Pagination.HasMore,
			IsLoadingMore: s.Pagination.IsLoadingMore,
		},
	}
	for _, conv := range s.Conversations {
		out.Conversations = append(out.Conversations, dto.ConversationFromDomain(conv))
	}
	if len(s.CurrentBookings) > 0 {
		out.CurrentBookings = make(map[string]string, len(s.CurrentBookings))
		for booking, id := range s.CurrentBookings {
			out.CurrentBookings[booking] = string(id)
		}
	}
	return out
}

var _ ViewHTTP = ViewHandler{}
var _ ConversationView = (*chat.View)(nil)
