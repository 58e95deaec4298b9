package orchestratornode

import (
	"errors"
	"strings"
	"time"

	contractx "github.com/tanpawarit/deep-market-agent/agent/contract"
	statex "github.com/tanpawarit/deep-market-agent/agent/state"
	"github.com/tanpawarit/deep-market-agent/agent/tool"
)

var (
	ErrInvalidMessage = errors.New("message is empty")
	ErrInvalidSession = errors.New("session id is empty")
	ErrInvalidActor   = errors.New("actor id is empty")
)

type TurnInput struct {
	ActorID   string
	SessionID string
	MemoryID  string
	Text      string
}

// TurnState is threaded through every node of one turn.
type TurnState struct {
	ActorID   string
	SessionID string
	MemoryID  string
	Text      string
	Now       time.Time

	Conversation *statex.ConversationState

	// Model calls made so far in this turn.
	Steps int
	// Set when a tool Command attached a document during this turn.
	Reference *contractx.DocumentRef
	// Terminal assistant message, once the model produced one.
	Reply *statex.Message
}

func ValidateRequest(in TurnInput, nowFn func() time.Time) (*TurnState, error) {
	actorID := strings.TrimSpace(in.ActorID)
	if actorID == "" {
		return nil, ErrInvalidActor
	}

	sessionID := strings.TrimSpace(in.SessionID)
	if sessionID == "" {
		return nil, ErrInvalidSession
	}

	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, ErrInvalidMessage
	}

	memoryID := strings.TrimSpace(in.MemoryID)
	if memoryID == "" {
		memoryID = actorID
	}

	return &TurnState{
		ActorID:   actorID,
		SessionID: sessionID,
		MemoryID:  memoryID,
		Text:      text,
		Now:       nowFn().UTC(),
	}, nil
}

func (t *TurnState) Namespace() contractx.Namespace {
	return contractx.Namespace{ActorID: t.ActorID, SessionID: t.SessionID}
}

// RunContext is what tools see of this turn.
func (t *TurnState) RunContext() tool.RunContext {
	return tool.RunContext{
		ActorID:   t.ActorID,
		SessionID: t.SessionID,
		MemoryID:  t.MemoryID,
		Messages:  t.Conversation.NonSystem(),
	}
}
