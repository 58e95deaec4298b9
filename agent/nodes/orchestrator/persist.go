package orchestratornode

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	contractx "github.com/tanpawarit/deep-market-agent/agent/contract"
	statex "github.com/tanpawarit/deep-market-agent/agent/state"
	logx "github.com/tanpawarit/deep-market-agent/pkg/logger"
	"github.com/tanpawarit/deep-market-agent/pkg/metrics"
)

// Event-log roles for the tool round; only user/assistant events are replayed.
const (
	eventRoleToolCall   = "tool_call"
	eventRoleToolResult = "tool"
)

const (
	targetSink       = "sink"
	targetMemory     = "memory"
	targetCheckpoint = "checkpoint"
)

// Persister writes turn messages to the Persistence Sink and Memory Store.
// Writes are detached from the caller's cancellation and get their own deadline.
// A failed write is retried once unless it timed out, since a timed out write may
// already have landed. A failure is logged and counted, never returned.
type Persister struct {
	sink    contractx.PersistenceSink
	memory  contractx.MemoryStore
	timeout time.Duration
}

func NewPersister(sink contractx.PersistenceSink, memory contractx.MemoryStore, timeout time.Duration) *Persister {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Persister{sink: sink, memory: memory, timeout: timeout}
}

func (p *Persister) do(ctx context.Context, logger zerolog.Logger, target, what string, fn func(context.Context) error) bool {
	ctx = context.WithoutCancel(ctx)
	var err error
	for attempt := 1; attempt <= 2; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, p.timeout)
		err = fn(callCtx)
		cancel()
		if err == nil {
			return true
		}
		logger.Warn().Err(err).Str("target", target).Int("attempt", attempt).Msg(what + " failed")
		if errors.Is(err, context.DeadlineExceeded) {
			break
		}
	}
	metrics.RecordPersistenceFailure(target)
	logger.Error().Err(fmt.Errorf("%w: %w", contractx.ErrPersistence, err)).Str("target", target).Msg(what + " dropped")
	return false
}

// Message records m once per message id. Sender is empty for tool-round messages,
// which only go to the memory event log.
func (p *Persister) Message(ctx context.Context, in *TurnState, m statex.Message, sender contractx.Sender) {
	st := in.Conversation
	if st.IsPersisted(m.ID) {
		return
	}
	logger := logx.Session(in.ActorID, in.SessionID).With().Str("message_id", m.ID).Logger()

	if sender != "" {
		if p.sink != nil {
			p.do(ctx, logger, targetSink, "append message", func(ctx context.Context) error {
				_, err := p.sink.AppendMessage(ctx, in.SessionID, contractx.MessageInput{Content: m.Content, Sender: sender})
				return err
			})
		}
		if p.memory != nil {
			p.do(ctx, logger, targetMemory, "put memory", func(ctx context.Context) error {
				return p.memory.Put(ctx, in.Namespace(), m.ID, m.Content)
			})
		}
	}

	if p.memory != nil {
		turn := eventTurn(m)
		p.do(ctx, logger, targetMemory, "create memory event", func(ctx context.Context) error {
			return p.memory.CreateEvent(ctx, in.MemoryID, in.ActorID, in.SessionID, []contractx.Turn{turn})
		})
	}

	// Marked even after a dropped write so loop re-entries do not write it again.
	st.MarkPersisted(m.ID)
}

func eventTurn(m statex.Message) contractx.Turn {
	turn := contractx.Turn{Role: string(m.Role), Content: m.Content, CreatedAt: m.CreatedAt}
	switch {
	case m.HasToolCalls():
		names := make([]string, 0, len(m.ToolCalls))
		for _, call := range m.ToolCalls {
			names = append(names, call.Name)
		}
		turn.Role = eventRoleToolCall
		if strings.TrimSpace(turn.Content) == "" {
			turn.Content = "calling " + strings.Join(names, ", ")
		}
	case m.Role == statex.RoleTool:
		turn.Role = eventRoleToolResult
		turn.Content = m.Name + ": " + m.Content
	}
	return turn
}
