package orchestratornode

import (
	"context"
	"fmt"

	contractx "github.com/tanpawarit/deep-market-agent/agent/contract"
	statex "github.com/tanpawarit/deep-market-agent/agent/state"
)

// PreHook runs before every model call. It records the latest user message and the
// tool round that followed it. Messages already recorded are skipped, so re-entry
// after ToolDispatch writes only what is new.
func PreHook(ctx context.Context, in *TurnState, p *Persister) (*TurnState, error) {
	if in == nil || in.Conversation == nil {
		return nil, fmt.Errorf("%w: turn conversation is nil", contractx.ErrValidation)
	}

	msgs := in.Conversation.Messages
	start := -1
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == statex.RoleUser {
			start = i
			break
		}
	}
	if start < 0 {
		return nil, fmt.Errorf("%w: no user message to answer", contractx.ErrValidation)
	}

	p.Message(ctx, in, msgs[start], contractx.SenderUser)
	for _, m := range msgs[start+1:] {
		if m.HasToolCalls() || m.Role == statex.RoleTool {
			p.Message(ctx, in, m, "")
		}
	}
	return in, nil
}

// PostHook records the terminal assistant message of the turn.
func PostHook(ctx context.Context, in *TurnState, p *Persister) (*TurnState, error) {
	if in == nil || in.Conversation == nil {
		return nil, fmt.Errorf("%w: turn conversation is nil", contractx.ErrValidation)
	}
	if in.Reply == nil {
		return nil, fmt.Errorf("%w: no assistant reply to record", contractx.ErrValidation)
	}
	p.Message(ctx, in, *in.Reply, contractx.SenderAssistant)
	return in, nil
}
