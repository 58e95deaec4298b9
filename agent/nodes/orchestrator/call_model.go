package orchestratornode

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/deep-market-agent/agent/contract"
	"github.com/tanpawarit/deep-market-agent/agent/llm"
	statex "github.com/tanpawarit/deep-market-agent/agent/state"
)

// ChatGateway is the streaming half of llm.Gateway.
type ChatGateway interface {
	Stream(ctx context.Context, msgs []statex.Message, tools []*schema.ToolInfo, onDelta func(llm.Delta)) (statex.Message, error)
}

// ModelPayload is the system message followed by the last window non-system
// messages. Tool results whose calling assistant fell outside the window are left
// out, so the payload can carry fewer than window conversation messages.
func ModelPayload(st *statex.ConversationState, system statex.Message, window int) []statex.Message {
	recent := st.Window(window)
	for len(recent) > 0 && recent[0].Role == statex.RoleTool {
		recent = recent[1:]
	}
	out := make([]statex.Message, 0, len(recent)+1)
	out = append(out, system)
	return append(out, recent...)
}

// CallModel invokes the chat model once and appends its response.
func CallModel(
	ctx context.Context,
	in *TurnState,
	gw ChatGateway,
	system statex.Message,
	window int,
	tools []*schema.ToolInfo,
	onDelta func(llm.Delta),
) (*TurnState, error) {
	if in == nil || in.Conversation == nil {
		return nil, fmt.Errorf("%w: turn conversation is nil", contractx.ErrValidation)
	}

	in.Steps++
	resp, err := gw.Stream(ctx, ModelPayload(in.Conversation, system, window), tools, onDelta)
	if err != nil {
		return nil, err
	}
	if !resp.HasToolCalls() && strings.TrimSpace(resp.Content) == "" {
		return nil, fmt.Errorf("%w: model returned neither text nor tool calls", contractx.ErrSchemaViolation)
	}
	if err := in.Conversation.Append(resp); err != nil {
		return nil, fmt.Errorf("%w: append model response: %w", contractx.ErrSchemaViolation, err)
	}
	if !resp.HasToolCalls() {
		in.Reply = &resp
	}
	return in, nil
}

type Route string

const (
	RouteToolDispatch Route = "tool_dispatch"
	RoutePostHook     Route = "post_hook"
)

// NextRoute sends a response carrying tool calls to ToolDispatch and anything else to PostHook.
func NextRoute(in *TurnState) (Route, error) {
	if in == nil || in.Conversation == nil {
		return "", fmt.Errorf("%w: turn conversation is nil", contractx.ErrValidation)
	}
	last, ok := in.Conversation.Last()
	if !ok || last.Role != statex.RoleAssistant {
		return "", fmt.Errorf("%w: last message is not a model response", contractx.ErrValidation)
	}
	if last.HasToolCalls() {
		return RouteToolDispatch, nil
	}
	return RoutePostHook, nil
}
