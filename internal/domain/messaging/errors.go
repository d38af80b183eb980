package messaging

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorKind string

const (
	KindAuth       ErrorKind = "AUTH"
	KindNetwork    ErrorKind = "NETWORK"
	KindValidation ErrorKind = "VALIDATION"
	KindMalformed  ErrorKind = "MALFORMED"
)

var (
	// ErrStalePage marks a page result discarded because it was already
	// processed or the conversation is no longer the requested one.
	ErrStalePage = errors.New("messaging: stale page result")
	// ErrConversationNotVisible is returned when selecting a conversation
	// outside the role-filtered list.
	ErrConversationNotVisible = errors.New("messaging: conversation not visible under current role")
)

// Error is the typed failure returned by fetch and send operations.
type Error struct {
	Kind    ErrorKind
	Op      string
	Message string
	Status  int
	Err     error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s %s: %s", e.Kind, e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Auth(op, message string, err error) *Error {
	return &Error{Kind: KindAuth, Op: op, Message: message, Status: http.StatusUnauthorized, Err: err}
}

func Network(op string, status int, err error) *Error {
	msg := "request failed"
	if status > 0 {
		msg = fmt.Sprintf("request failed with status %d", status)
	}
	return &Error{Kind: KindNetwork, Op: op, Message: msg, Status: status, Err: err}
}

func Validation(op, message string, err error) *Error {
	return &Error{Kind: KindValidation, Op: op, Message: message, Status: http.StatusBadRequest, Err: err}
}

func Malformed(message string, err error) *Error {
	return &Error{Kind: KindMalformed, Message: message, Err: err}
}

// IsKind reports whether err carries an *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
