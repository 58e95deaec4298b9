package orchestrator

import (
	"errors"

	contractx "github.com/tanpawarit/deep-market-agent/agent/contract"
	nodex "github.com/tanpawarit/deep-market-agent/agent/nodes/orchestrator"
)

type EventType string

const (
	EventTextDelta      EventType = "text_delta"
	EventFinalReference EventType = "final_reference"
	EventError          EventType = "error"
)

// Event is one item of a turn stream. Exactly one of Text, Reference or Failure is set.
type Event struct {
	Type      EventType              `json:"type"`
	Text      string                 `json:"text,omitempty"`
	Reference *contractx.DocumentRef `json:"reference,omitempty"`
	Failure   *Failure               `json:"error,omitempty"`
}

// Failure is the caller-facing form of a failed turn. Message is safe to show a user.
type Failure struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (f *Failure) Error() string {
	return f.Code + ": " + f.Message
}

func (f *Failure) Unwrap() error {
	return f.Err
}

type SessionContext struct {
	ActorID   string
	SessionID string
	MemoryID  string
}

// Reply is the blocking result of one turn.
type Reply struct {
	Message   string
	Reference *contractx.DocumentRef
}

const (
	CodeInvalidRequest    = "invalid_request"
	CodeSessionBusy       = "session_busy"
	CodeRecursionExceeded = "recursion_exceeded"
	CodeUpstreamTimeout   = "upstream_timeout"
	CodeModelError        = "model_error"
	CodeInternal          = "internal_error"
)

// AsFailure returns err as a *Failure, classifying it when it is not one already.
func AsFailure(err error) *Failure {
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	return failureFor(err)
}

func failureFor(err error) *Failure {
	switch {
	case errors.Is(err, contractx.ErrRecursionExceeded):
		return &Failure{Code: CodeRecursionExceeded, Message: "I could not finish this request within the allowed number of steps. Please try a narrower question.", Err: err}
	case errors.Is(err, contractx.ErrSessionBusy):
		return &Failure{Code: CodeSessionBusy, Message: "A previous message in this chat is still being processed.", Err: err}
	case errors.Is(err, contractx.ErrUpstreamTimeout):
		return &Failure{Code: CodeUpstreamTimeout, Message: "An upstream service took too long to respond. Please try again.", Err: err}
	case errors.Is(err, contractx.ErrModelInvoke), errors.Is(err, contractx.ErrSchemaViolation):
		return &Failure{Code: CodeModelError, Message: "The language model failed to answer. Please try again.", Err: err}
	case errors.Is(err, nodex.ErrInvalidActor), errors.Is(err, nodex.ErrInvalidSession),
		errors.Is(err, nodex.ErrInvalidMessage), errors.Is(err, contractx.ErrValidation):
		return &Failure{Code: CodeInvalidRequest, Message: "The request is invalid.", Err: err}
	}
	return &Failure{Code: CodeInternal, Message: "Something went wrong while processing your message.", Err: err}
}

func outcome(err error) string {
	if err == nil {
		return "success"
	}
	switch failureFor(err).Code {
	case CodeRecursionExceeded:
		return "recursion"
	case CodeSessionBusy:
		return "busy"
	}
	return "error"
}
