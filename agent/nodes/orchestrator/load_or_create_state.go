package orchestratornode

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/deep-market-agent/agent/contract"
	statex "github.com/tanpawarit/deep-market-agent/agent/state"
)

const interruptedToolResult = "This tool call was interrupted before it produced a result."

// LoadOrCreateState restores the session checkpoint. On a miss the conversation is
// seeded from the memory event log. The new user message is appended last.
func LoadOrCreateState(
	ctx context.Context,
	in *TurnState,
	store statex.Store,
	memory contractx.MemoryStore,
	seedEvents int,
) (*TurnState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: turn state is nil", contractx.ErrValidation)
	}

	st, err := loadOrCreateState(ctx, in, store, memory, seedEvents)
	if err != nil {
		return nil, err
	}

	// Calls left without results by an aborted turn are closed before the next user message.
	for _, call := range st.OutstandingToolCalls() {
		if err := st.Append(statex.ToolMessage(call.ID, call.Name, interruptedToolResult, in.Now)); err != nil {
			return nil, err
		}
	}

	if err := st.Append(statex.UserMessage(in.Text, in.Now)); err != nil {
		return nil, err
	}
	in.Conversation = st
	return in, nil
}

func loadOrCreateState(
	ctx context.Context,
	in *TurnState,
	store statex.Store,
	memory contractx.MemoryStore,
	seedEvents int,
) (*statex.ConversationState, error) {
	st, err := store.Load(ctx, in.ActorID, in.SessionID)
	if err == nil {
		return st, nil
	}
	if !errors.Is(err, statex.ErrStateNotFound) {
		return nil, err
	}

	st = statex.NewConversationState(in.ActorID, in.SessionID, in.Now)
	if memory == nil || seedEvents <= 0 {
		return st, nil
	}

	turns, err := memory.ListEvents(ctx, in.MemoryID, in.ActorID, in.SessionID, seedEvents)
	if err != nil {
		log.Warn().Err(err).
			Str("actor_id", in.ActorID).
			Str("session_id", in.SessionID).
			Msg("seed conversation from memory events failed; starting empty")
		return st, nil
	}
	for _, turn := range turns {
		var m statex.Message
		switch statex.Role(turn.Role) {
		case statex.RoleUser:
			m = statex.UserMessage(turn.Content, turn.CreatedAt)
		case statex.RoleAssistant:
			m = statex.AssistantMessage(turn.Content, nil, turn.CreatedAt)
		default:
			// tool rounds are not replayed
			continue
		}
		if err := st.Append(m); err != nil {
			return nil, err
		}
		st.MarkPersisted(m.ID)
	}
	return st, nil
}
