package orchestratornode

import (
	"context"
	"errors"
	"fmt"

	contractx "github.com/tanpawarit/deep-market-agent/agent/contract"
	statex "github.com/tanpawarit/deep-market-agent/agent/state"
	"github.com/tanpawarit/deep-market-agent/agent/tool"
	logx "github.com/tanpawarit/deep-market-agent/pkg/logger"
)

// ToolRunner executes one tool call; tool.Registry implements it.
type ToolRunner interface {
	Execute(ctx context.Context, rc tool.RunContext, call statex.ToolCall) (tool.Result, error)
}

// DispatchTools answers every outstanding call of the latest model response, in call
// order. A failing tool becomes an error result for the model, not a turn failure.
func DispatchTools(ctx context.Context, in *TurnState, runner ToolRunner) (*TurnState, error) {
	if in == nil || in.Conversation == nil {
		return nil, fmt.Errorf("%w: turn conversation is nil", contractx.ErrValidation)
	}
	logger := logx.Session(in.ActorID, in.SessionID)

	for _, call := range in.Conversation.OutstandingToolCalls() {
		res, err := runner.Execute(ctx, in.RunContext(), call)
		content := res.Content
		if err != nil {
			logger.Warn().Err(err).Str("tool", call.Name).Str("call_id", call.ID).Msg("tool call failed")
			content = toolErrorContent(call.Name, err)
		}

		msg := statex.ToolMessage(call.ID, call.Name, content, in.Now)
		if appendErr := in.Conversation.Append(msg); appendErr != nil {
			return nil, appendErr
		}
		if err == nil && res.IsCommand() {
			applyCommand(in, res.Patch)
		}
	}
	return in, nil
}

// applyCommand merges the patch into the conversation together with its result message.
func applyCommand(in *TurnState, p *statex.Patch) {
	in.Conversation.Apply(*p)
	if p.PendingDocumentID != nil {
		in.Reference = &contractx.DocumentRef{
			DocumentID:  in.Conversation.PendingDocumentID,
			ArtifactURL: in.Conversation.PendingReportURL,
		}
	}
}

func toolErrorContent(name string, err error) string {
	switch {
	case errors.Is(err, contractx.ErrUnknownTool):
		return fmt.Sprintf("Error: tool %q does not exist. Use one of the declared tools.", name)
	case errors.Is(err, contractx.ErrUpstreamTimeout):
		return fmt.Sprintf("Error: tool %q timed out. You may retry once or continue without it.", name)
	case errors.Is(err, contractx.ErrPipelineStage):
		var stageErr *contractx.PipelineStageError
		if errors.As(err, &stageErr) {
			return fmt.Sprintf("Error: report generation failed at the %s stage: %v", stageErr.Stage, stageErr.Err)
		}
	}
	return fmt.Sprintf("Error: %v", err)
}
