package state

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ConversationState is the working set of one turn.
// - Messages is append-only; system messages are never stored, WithSystem prepends one.
// - Persisted holds message ids already written to the sink / memory, so hooks are idempotent.
type ConversationState struct {
	ActorID   string `json:"actor_id"`
	SessionID string `json:"session_id"`

	Messages  []Message           `json:"messages,omitempty"`
	Persisted map[string]struct{} `json:"persisted,omitempty"`

	// Written by tools through a Patch.
	PendingDocumentID string `json:"pending_document_id,omitempty"`
	PendingReportURL  string `json:"pending_report_url,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message is a tagged variant: Role decides which of the optional fields are meaningful.
type Message struct {
	ID         string     `json:"id"`
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // tool results only
	Name       string     `json:"name,omitempty"`         // tool name on tool results
	CreatedAt  time.Time  `json:"created_at"`
}

// Patch is the state half of a tool Command.
type Patch struct {
	PendingDocumentID *string `json:"pending_document_id,omitempty"`
	PendingReportURL  *string `json:"pending_report_url,omitempty"`
}

var (
	ErrNilState           = errors.New("conversation state is nil")
	ErrInvalidActor       = errors.New("actor id is empty")
	ErrInvalidMessage     = errors.New("invalid message")
	ErrDuplicateMessage   = errors.New("message already appended")
	ErrUnexpectedToolCall = errors.New("tool result does not answer an outstanding tool call")
)

/* ------------------------------ constructors ------------------------------ */

func newID() string {
	return uuid.NewString()
}

func SystemMessage(content string, now time.Time) Message {
	return Message{ID: newID(), Role: RoleSystem, Content: content, CreatedAt: now.UTC()}
}

func UserMessage(content string, now time.Time) Message {
	return Message{ID: newID(), Role: RoleUser, Content: content, CreatedAt: now.UTC()}
}

func AssistantMessage(content string, calls []ToolCall, now time.Time) Message {
	return Message{ID: newID(), Role: RoleAssistant, Content: content, ToolCalls: calls, CreatedAt: now.UTC()}
}

func ToolMessage(callID, toolName, content string, now time.Time) Message {
	return Message{
		ID:         newID(),
		Role:       RoleTool,
		Content:    content,
		ToolCallID: callID,
		Name:       toolName,
		CreatedAt:  now.UTC(),
	}
}

func (m Message) HasToolCalls() bool {
	return m.Role == RoleAssistant && len(m.ToolCalls) > 0
}

func NewConversationState(actorID, sessionID string, now time.Time) *ConversationState {
	return &ConversationState{
		ActorID:   actorID,
		SessionID: sessionID,
		Persisted: make(map[string]struct{}, 8),
		UpdatedAt: now.UTC(),
	}
}

/* ------------------------------- mutations -------------------------------- */

// Append is the only way messages enter the state.
func (s *ConversationState) Append(msgs ...Message) error {
	if s == nil {
		return ErrNilState
	}
	for _, m := range msgs {
		if err := s.checkAppend(m); err != nil {
			return err
		}
		s.Messages = append(s.Messages, m)
	}
	return nil
}

func (s *ConversationState) checkAppend(m Message) error {
	if strings.TrimSpace(m.ID) == "" {
		return fmt.Errorf("%w: id is empty", ErrInvalidMessage)
	}
	switch m.Role {
	case RoleUser, RoleAssistant:
	case RoleTool:
		if !s.isOutstanding(m.ToolCallID) {
			return fmt.Errorf("%w: call id=%q", ErrUnexpectedToolCall, m.ToolCallID)
		}
	case RoleSystem:
		return fmt.Errorf("%w: system messages are derived, not stored", ErrInvalidMessage)
	default:
		return fmt.Errorf("%w: role=%q", ErrInvalidMessage, m.Role)
	}
	for _, existing := range s.Messages {
		if existing.ID == m.ID {
			return fmt.Errorf("%w: id=%s", ErrDuplicateMessage, m.ID)
		}
	}
	return nil
}

func (s *ConversationState) isOutstanding(callID string) bool {
	if strings.TrimSpace(callID) == "" {
		return false
	}
	for _, call := range s.OutstandingToolCalls() {
		if call.ID == callID {
			return true
		}
	}
	return false
}

// Apply merges a tool Command patch into the auxiliary fields.
func (s *ConversationState) Apply(p Patch) {
	if s == nil {
		return
	}
	if p.PendingDocumentID != nil {
		s.PendingDocumentID = *p.PendingDocumentID
	}
	if p.PendingReportURL != nil {
		s.PendingReportURL = *p.PendingReportURL
	}
}

func (s *ConversationState) MarkPersisted(id string) {
	if s.Persisted == nil {
		s.Persisted = make(map[string]struct{}, 8)
	}
	s.Persisted[id] = struct{}{}
}

func (s *ConversationState) IsPersisted(id string) bool {
	_, ok := s.Persisted[id]
	return ok
}

func (s *ConversationState) Touch(now time.Time) {
	s.UpdatedAt = now.UTC()
}

// TrimTo keeps the newest n non-system messages and forgets persistence marks of dropped ones.
func (s *ConversationState) TrimTo(n int) {
	if s == nil || n <= 0 {
		return
	}
	kept := s.NonSystem()
	if len(kept) > n {
		kept = kept[len(kept)-n:]
	}
	persisted := make(map[string]struct{}, len(kept))
	for _, m := range kept {
		if s.IsPersisted(m.ID) {
			persisted[m.ID] = struct{}{}
		}
	}
	s.Messages = kept
	s.Persisted = persisted
}

/* -------------------------------- queries --------------------------------- */

// NonSystem returns a copy of the stored messages without any system message.
func (s *ConversationState) NonSystem() []Message {
	if s == nil {
		return nil
	}
	out := make([]Message, 0, len(s.Messages))
	for _, m := range s.Messages {
		if m.Role == RoleSystem {
			continue
		}
		out = append(out, m)
	}
	return out
}

// WithSystem returns exactly one system message followed by every non-system message.
func (s *ConversationState) WithSystem(system Message) []Message {
	rest := s.NonSystem()
	out := make([]Message, 0, len(rest)+1)
	out = append(out, system)
	return append(out, rest...)
}

// Window returns the last k non-system messages; k <= 0 means no limit.
func (s *ConversationState) Window(k int) []Message {
	rest := s.NonSystem()
	if k <= 0 || len(rest) <= k {
		return rest
	}
	return rest[len(rest)-k:]
}

func (s *ConversationState) Last() (Message, bool) {
	if s == nil || len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

func (s *ConversationState) LatestUser() (Message, bool) {
	if s == nil {
		return Message{}, false
	}
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleUser {
			return s.Messages[i], true
		}
	}
	return Message{}, false
}

// OutstandingToolCalls lists calls of the latest tool-calling assistant message without a result yet.
func (s *ConversationState) OutstandingToolCalls() []ToolCall {
	if s == nil {
		return nil
	}
	idx := -1
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].HasToolCalls() {
			idx = i
			break
		}
		if s.Messages[i].Role == RoleUser {
			return nil
		}
	}
	if idx < 0 {
		return nil
	}

	answered := make(map[string]struct{}, len(s.Messages[idx].ToolCalls))
	for _, m := range s.Messages[idx+1:] {
		if m.Role == RoleTool {
			answered[m.ToolCallID] = struct{}{}
		}
	}
	var out []ToolCall
	for _, call := range s.Messages[idx].ToolCalls {
		if _, ok := answered[call.ID]; !ok {
			out = append(out, call)
		}
	}
	return out
}

func (s *ConversationState) Validate() error {
	if s == nil {
		return ErrNilState
	}
	if strings.TrimSpace(s.ActorID) == "" {
		return ErrInvalidActor
	}
	if strings.TrimSpace(s.SessionID) == "" {
		return ErrInvalidSession
	}
	seen := make(map[string]struct{}, len(s.Messages))
	for _, m := range s.Messages {
		if strings.TrimSpace(m.ID) == "" {
			return fmt.Errorf("%w: id is empty", ErrInvalidMessage)
		}
		if _, ok := seen[m.ID]; ok {
			return fmt.Errorf("%w: id=%s", ErrDuplicateMessage, m.ID)
		}
		seen[m.ID] = struct{}{}
	}
	return nil
}

func (s *ConversationState) Clone() *ConversationState {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Messages = make([]Message, len(s.Messages))
	for i, m := range s.Messages {
		m.ToolCalls = append([]ToolCall(nil), m.ToolCalls...)
		cp.Messages[i] = m
	}
	cp.Persisted = make(map[string]struct{}, len(s.Persisted))
	for k := range s.Persisted {
		cp.Persisted[k] = struct{}{}
	}
	return &cp
}
