package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"

	"petcare/internal/domain/messaging"
)

const conversationListKey = "conversations"

// Orchestrator fetches conversations and message pages. Concurrent calls for
// the same list or the same (conversation, page) share one request.
type Orchestrator struct {
	backend  Backend
	dedup    *DedupStore
	auth     AuthErrorHandler
	validate *validator.Validate
	logger   *slog.Logger

	group singleflight.Group

	mu      sync.Mutex
	last    []messaging.Conversation
	onReset []func(messaging.ConversationID)
}

func NewOrchestrator(backend Backend, dedup *DedupStore, auth AuthErrorHandler, logger *slog.Logger) *Orchestrator {
	if dedup == nil {
		dedup = NewDedupStore()
	}
	if auth == nil {
		auth = nopAuthHandler{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		backend:  backend,
		dedup:    dedup,
		auth:     auth,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

// OnReset registers fn to run when a first-page fetch wipes a conversation's
// history, before the request goes out.
func (o *Orchestrator) OnReset(fn func(messaging.ConversationID)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onReset = append(o.onReset, fn)
}

// LastConversations returns the most recent successfully fetched list.
func (o *Orchestrator) LastConversations() []messaging.Conversation {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]messaging.Conversation(nil), o.last...)
}

// FetchConversationList loads the signed-in user's conversations. On failure
// the previous list stays available through LastConversations.
func (o *Orchestrator) FetchConversationList(ctx context.Context) ([]messaging.Conversation, error) {
	v, shared, err := o.do(ctx, conversationListKey, func(callCtx context.Context) (any, error) {
		convs, err := o.backend.ListConversations(callCtx)
		if err != nil {
			return nil, o.fail(callCtx, "list conversations", err)
		}
		convs = messaging.DedupeConversations(convs)
		o.mu.Lock()
		o.last = convs
		o.mu.Unlock()
		o.logger.Debug("conversations fetched", "count", len(convs))
		return convs, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		o.logger.Debug("conversation fetch collapsed")
	}
	return append([]messaging.Conversation(nil), v.([]messaging.Conversation)...), nil
}

// FetchMessagePage loads one page of history. Page 1 resets the conversation's
// dedup state first. Pages that were already applied, or that were fetched
// before a reset, come back as ErrStalePage. Returned messages never include
// ids seen before.
func (o *Orchestrator) FetchMessagePage(ctx context.Context, conversationID messaging.ConversationID, page int) (Page, error) {
	if conversationID == "" || page < 1 {
		return Page{}, messaging.Validation("fetch messages", "conversation id and page >= 1 required", nil)
	}
	key := fmt.Sprintf("%s#1", conversationID)
	var gen uint64
	if page > 1 {
		gen = o.dedup.Generation(conversationID)
		key = fmt.Sprintf("%s#%d#%d", conversationID, page, gen)
	}
	v, _, err := o.do(ctx, key, func(callCtx context.Context) (any, error) {
		if page == 1 {
			o.reset(conversationID)
			gen = o.dedup.Generation(conversationID)
		} else if o.dedup.HasProcessedPage(conversationID, page) {
			return nil, messaging.ErrStalePage
		}

		result, err := o.backend.FetchMessages(callCtx, conversationID, page)
		if err != nil {
			return nil, o.fail(callCtx, "fetch messages", err)
		}

		own := make([]messaging.Message, 0, len(result.Messages))
		for _, m := range result.Messages {
			if m.ConversationID == "" {
				m.ConversationID = conversationID
			}
			if m.ConversationID == conversationID {
				own = append(own, m)
			}
		}
		fresh, ok := o.dedup.CommitPage(conversationID, gen, page, own)
		if !ok {
			o.logger.Debug("message page discarded", "conversation_id", conversationID, "page", page)
			return nil, messaging.ErrStalePage
		}
		o.logger.Debug("message page fetched",
			"conversation_id", conversationID,
			"page", page,
			"count", len(fresh),
			"dropped", len(result.Messages)-len(fresh),
			"has_more", result.HasMore,
		)
		result.Messages = fresh
		return result, nil
	})
	if err != nil {
		return Page{}, err
	}
	return v.(Page), nil
}

// do collapses calls sharing key into one request. The request runs detached
// from any single caller's cancellation; each caller still stops waiting when
// its own ctx is done.
func (o *Orchestrator) do(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, bool, error) {
	callCtx := context.WithoutCancel(ctx)
	ch := o.group.DoChan(key, func() (any, error) { return fn(callCtx) })
	select {
	case res := <-ch:
		return res.Val, res.Shared, res.Err
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// SendMessage validates and sends a normal message.
func (o *Orchestrator) SendMessage(ctx context.Context, input SendInput) (messaging.Message, error) {
	input = normalizeSendInput(input)
	if err := o.validate.Struct(input); err != nil {
		return messaging.Message{}, messaging.Validation("send message", validationMessage(err), err)
	}
	msg, err := o.backend.SendMessage(ctx, input)
	if err != nil {
		return messaging.Message{}, o.fail(ctx, "send message", err)
	}
	if msg.ConversationID == "" {
		msg.ConversationID = input.ConversationID
	}
	return msg, nil
}

// MarkRead reports ids as read. An empty id list is a no-op.
func (o *Orchestrator) MarkRead(ctx context.Context, conversationID messaging.ConversationID, ids []messaging.MessageID) error {
	if len(ids) == 0 {
		return nil
	}
	if err := o.backend.MarkRead(ctx, conversationID, ids); err != nil {
		return o.fail(ctx, "mark read", err)
	}
	return nil
}

// ValidateSend checks input without sending it.
func (o *Orchestrator) ValidateSend(input SendInput) error {
	if err := o.validate.Struct(normalizeSendInput(input)); err != nil {
		return messaging.Validation("send message", validationMessage(err), err)
	}
	return nil
}

func (o *Orchestrator) reset(conversationID messaging.ConversationID) {
	o.dedup.Reset(conversationID)
	o.mu.Lock()
	hooks := slices.Clone(o.onReset)
	o.mu.Unlock()
	for _, fn := range hooks {
		fn(conversationID)
	}
}

// fail classifies err and hands auth failures to the auth handler.
func (o *Orchestrator) fail(ctx context.Context, op string, err error) error {
	var typed *messaging.Error
	if !errors.As(err, &typed) {
		err = messaging.Network(op, 0, err)
	}
	if messaging.IsKind(err, messaging.KindAuth) {
		o.logger.Warn("backend rejected credentials", "op", op, "error", err)
		o.auth.HandleAuthError(ctx, err)
		return err
	}
	o.logger.Warn("backend call failed", "op", op, "error", err)
	return err
}

func normalizeSendInput(input SendInput) SendInput {
	input.Content = strings.TrimSpace(input.Content)
	refs := make([]string, 0, len(input.ImageRefs))
	for _, ref := range input.ImageRefs {
		if ref = strings.TrimSpace(ref); ref != "" {
			refs = append(refs, ref)
		}
	}
	input.ImageRefs = nil
	if len(refs) > 0 {
		input.ImageRefs = refs
	}
	return input
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid message"
	}
	switch fe := verrs[0]; fe.Field() {
	case "Content":
		if fe.Tag() == "max" {
			return "message is too long"
		}
		return "message needs text or at least one image"
	case "ImageRefs":
		return "too many images"
	case "ConversationID":
		return "conversation id required"
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}
