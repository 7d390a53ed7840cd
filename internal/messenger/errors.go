package messenger

import (
	"errors"
	"fmt"
	"strings"

	"github.com/eldtechnologies/messenger/internal/store"
)

// Kind classifies an error for callers that need to pick a response.
type Kind string

const (
	KindInternal              Kind = "INTERNAL"
	KindConnectionUnavailable Kind = "CONNECTION_UNAVAILABLE"
	KindWriteFailure          Kind = "WRITE_FAILURE"
	KindNotFound              Kind = "NOT_FOUND"
	KindInvalidPair           Kind = "INVALID_PAIR"
	KindInvalidArgument       Kind = "INVALID_ARGUMENT"
)

// Step names one write of the message fan-out, in execution order.
type Step string

const (
	StepMessage       Step = "message"
	StepSummary       Step = "summary"
	StepSenderIndex   Step = "sender_index"
	StepReceiverIndex Step = "receiver_index"
)

// Error is returned by every Service operation.
type Error struct {
	Kind           Kind
	Op             string
	Step           Step  // set for KindWriteFailure
	ConversationID int64 // 0 when not yet known
	Err            error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	b.WriteString(": ")
	b.WriteString(strings.ToLower(string(e.Kind)))
	if e.Step != "" {
		fmt.Fprintf(&b, " at step %s", e.Step)
	}
	if e.ConversationID != 0 {
		fmt.Fprintf(&b, " (conversation %d)", e.ConversationID)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of err, KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, store.ErrConnectionUnavailable) {
		return KindConnectionUnavailable
	}
	return KindInternal
}

// StepOf returns the failed fan-out step carried by err, if any.
func StepOf(err error) Step {
	var e *Error
	if errors.As(err, &e) {
		return e.Step
	}
	return ""
}

// storeError wraps a failed store call, keeping ConnectionUnavailable visible.
func storeError(op string, conversationID int64, err error) error {
	kind := KindInternal
	if errors.Is(err, store.ErrConnectionUnavailable) {
		kind = KindConnectionUnavailable
	}
	return &Error{Kind: kind, Op: op, ConversationID: conversationID, Err: err}
}

func notFound(op string, conversationID int64) error {
	return &Error{Kind: KindNotFound, Op: op, ConversationID: conversationID, Err: errors.New("no such conversation")}
}

func invalidArgument(op, format string, args ...interface{}) error {
	return &Error{Kind: KindInvalidArgument, Op: op, Err: fmt.Errorf(format, args...)}
}
