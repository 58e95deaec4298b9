package orchestrator

import (
	"context"
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/deep-market-agent/agent/contract"
	"github.com/tanpawarit/deep-market-agent/agent/llm"
	nodex "github.com/tanpawarit/deep-market-agent/agent/nodes/orchestrator"
	statex "github.com/tanpawarit/deep-market-agent/agent/state"
)

type turnStep string

const (
	stepPreHook      turnStep = "pre_hook"
	stepModel        turnStep = "model"
	stepToolDispatch turnStep = "tool_dispatch"
	stepPostHook     turnStep = "post_hook"
	stepDone         turnStep = "done"
)

// runStateMachine drives PreHook -> Model -> {ToolDispatch -> PreHook | PostHook} -> done.
// The conversation is checkpointed when the turn ends, whether it succeeded or not.
func (o *Orchestrator) runStateMachine(ctx context.Context, in *nodex.TurnState, onText func(string)) (_ *nodex.TurnState, err error) {
	if _, err = nodex.LoadOrCreateState(ctx, in, o.store, o.memory, o.cfg.SeedEvents); err != nil {
		return nil, err
	}

	defer func() {
		if _, saveErr := nodex.ValidateAndSaveState(ctx, in, o.store, o.persister); saveErr != nil && err == nil {
			err = saveErr
		}
	}()

	// One system message per turn, built fresh and never stored.
	system := statex.SystemMessage(o.systemPrompt, in.Now)
	tools := o.tools.Infos()

	// Text is held per model call and released only when that call turns out
	// to be the final answer. Anything said before a tool call is dropped.
	var (
		pending  strings.Builder
		toolCall bool
		onDelta  func(llm.Delta)
	)
	if onText != nil {
		onDelta = func(d llm.Delta) {
			switch {
			case d.IsToolCall:
				toolCall = true
				pending.Reset()
			case !toolCall && d.Text != "":
				pending.WriteString(d.Text)
			}
		}
	}

	step := stepPreHook
	for step != stepDone {
		switch step {
		case stepPreHook:
			if _, err = nodex.PreHook(ctx, in, o.persister); err != nil {
				return nil, err
			}
			step = stepModel

		case stepModel:
			if in.Steps >= o.cfg.MaxSteps {
				return nil, fmt.Errorf("%w: %d model calls without a final answer", contractx.ErrRecursionExceeded, in.Steps)
			}
			pending.Reset()
			toolCall = false
			if _, err = nodex.CallModel(ctx, in, o.gateway, system, o.cfg.ContextWindow, tools, onDelta); err != nil {
				return nil, err
			}
			var route nodex.Route
			if route, err = nodex.NextRoute(in); err != nil {
				return nil, err
			}
			if route == nodex.RouteToolDispatch {
				step = stepToolDispatch
				break
			}
			if onText != nil && pending.Len() > 0 {
				onText(pending.String())
			}
			step = stepPostHook

		case stepToolDispatch:
			if _, err = nodex.DispatchTools(ctx, in, o.tools); err != nil {
				return nil, err
			}
			step = stepPreHook

		case stepPostHook:
			if _, err = nodex.PostHook(ctx, in, o.persister); err != nil {
				return nil, err
			}
			step = stepDone
		}
	}
	return in, nil
}
