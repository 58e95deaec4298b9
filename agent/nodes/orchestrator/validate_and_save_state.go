package orchestratornode

import (
	"context"
	"fmt"

	contractx "github.com/tanpawarit/deep-market-agent/agent/contract"
	statex "github.com/tanpawarit/deep-market-agent/agent/state"
	logx "github.com/tanpawarit/deep-market-agent/pkg/logger"
)

// ValidateAndSaveState checkpoints the conversation. Only an invalid state is an
// error; a failed write is handled like any other persistence failure.
func ValidateAndSaveState(
	ctx context.Context,
	in *TurnState,
	store statex.Store,
	p *Persister,
) (*TurnState, error) {
	if in == nil || in.Conversation == nil {
		return nil, fmt.Errorf("%w: turn conversation is nil", contractx.ErrValidation)
	}

	in.Conversation.Touch(in.Now)
	if err := in.Conversation.Validate(); err != nil {
		return nil, fmt.Errorf("state validation failed: %w", err)
	}

	snapshot := in.Conversation.Clone()
	p.do(ctx, logx.Session(in.ActorID, in.SessionID), targetCheckpoint, "save checkpoint", func(ctx context.Context) error {
		return store.Save(ctx, snapshot)
	})
	return in, nil
}
