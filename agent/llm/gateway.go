package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/deep-market-agent/agent/contract"
	statex "github.com/tanpawarit/deep-market-agent/agent/state"
	"github.com/tanpawarit/deep-market-agent/pkg/metrics"
)

// Delta is one streamed piece of an assistant response.
type Delta struct {
	Text       string
	IsToolCall bool
}

// Gateway is the single entry point for chat model calls of one stage.
type Gateway struct {
	model einomodel.ToolCallingChatModel
	stage contractx.Stage
	now   func() time.Time
}

func NewGateway(m einomodel.ToolCallingChatModel, stage contractx.Stage) (*Gateway, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: chat model is nil", contractx.ErrValidation)
	}
	return &Gateway{model: m, stage: stage, now: time.Now}, nil
}

func (g *Gateway) Stage() contractx.Stage {
	return g.stage
}

func (g *Gateway) bind(tools []*schema.ToolInfo) (einomodel.ToolCallingChatModel, error) {
	if len(tools) == 0 {
		return g.model, nil
	}
	bound, err := g.model.WithTools(tools)
	if err != nil {
		return nil, fmt.Errorf("%w: bind tools: %v", contractx.ErrModelInvoke, err)
	}
	return bound, nil
}

// Invoke runs one blocking completion over msgs with the tool schemas bound.
func (g *Gateway) Invoke(ctx context.Context, msgs []statex.Message, tools []*schema.ToolInfo) (statex.Message, error) {
	m, err := g.bind(tools)
	if err != nil {
		return statex.Message{}, err
	}

	started := time.Now()
	resp, err := m.Generate(ctx, toSchemaMessages(msgs))
	metrics.RecordModelCall(string(g.stage), time.Since(started), err)
	if err != nil {
		return statex.Message{}, wrapModelErr(err)
	}
	if resp == nil {
		return statex.Message{}, fmt.Errorf("%w: empty response", contractx.ErrModelInvoke)
	}
	return fromSchemaMessage(resp, g.now()), nil
}

// Stream runs one streaming completion. Text chunks are passed to onDelta until the
// response starts carrying tool calls. A single IsToolCall delta then marks the
// response as not final and nothing more is emitted for it, so callers that only
// surface final answers must drop the text they received before the marker.
func (g *Gateway) Stream(
	ctx context.Context,
	msgs []statex.Message,
	tools []*schema.ToolInfo,
	onDelta func(Delta),
) (statex.Message, error) {
	m, err := g.bind(tools)
	if err != nil {
		return statex.Message{}, err
	}

	started := time.Now()
	sr, err := m.Stream(ctx, toSchemaMessages(msgs))
	if err != nil {
		metrics.RecordModelCall(string(g.stage), time.Since(started), err)
		return statex.Message{}, wrapModelErr(err)
	}
	defer sr.Close()

	var (
		chunks   []*schema.Message
		toolSeen bool
	)
	for {
		chunk, err := sr.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			metrics.RecordModelCall(string(g.stage), time.Since(started), err)
			return statex.Message{}, wrapModelErr(err)
		}
		if chunk == nil {
			continue
		}
		chunks = append(chunks, chunk)

		if len(chunk.ToolCalls) > 0 && !toolSeen {
			toolSeen = true
			if onDelta != nil {
				onDelta(Delta{IsToolCall: true})
			}
		}
		if !toolSeen && chunk.Content != "" && onDelta != nil {
			onDelta(Delta{Text: chunk.Content})
		}
	}
	metrics.RecordModelCall(string(g.stage), time.Since(started), nil)

	if len(chunks) == 0 {
		return statex.Message{}, fmt.Errorf("%w: empty stream", contractx.ErrModelInvoke)
	}
	full, err := schema.ConcatMessages(chunks)
	if err != nil {
		return statex.Message{}, fmt.Errorf("%w: concat stream: %v", contractx.ErrModelInvoke, err)
	}
	return fromSchemaMessage(full, g.now()), nil
}

func wrapModelErr(err error) error {
	return fmt.Errorf("%w: %w", contractx.ErrModelInvoke, contractx.ClassifyUpstream(err))
}
