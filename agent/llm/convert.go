package llm

import (
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	statex "github.com/tanpawarit/deep-market-agent/agent/state"
)

func toSchemaMessages(msgs []statex.Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toSchemaMessage(m))
	}
	return out
}

func toSchemaMessage(m statex.Message) *schema.Message {
	switch m.Role {
	case statex.RoleSystem:
		return schema.SystemMessage(m.Content)
	case statex.RoleUser:
		return schema.UserMessage(m.Content)
	case statex.RoleTool:
		return schema.ToolMessage(m.Content, m.ToolCallID)
	default:
		calls := make([]schema.ToolCall, 0, len(m.ToolCalls))
		for _, c := range m.ToolCalls {
			calls = append(calls, schema.ToolCall{
				ID:   c.ID,
				Type: "function",
				Function: schema.FunctionCall{
					Name:      c.Name,
					Arguments: c.Arguments,
				},
			})
		}
		return schema.AssistantMessage(m.Content, calls)
	}
}

// fromSchemaMessage turns a model response into an assistant message.
// Providers occasionally omit call ids; one is generated so results can be matched.
func fromSchemaMessage(msg *schema.Message, now time.Time) statex.Message {
	if msg == nil {
		return statex.AssistantMessage("", nil, now)
	}
	var calls []statex.ToolCall
	for _, c := range msg.ToolCalls {
		id := strings.TrimSpace(c.ID)
		if id == "" {
			id = "call_" + uuid.NewString()
		}
		calls = append(calls, statex.ToolCall{
			ID:        id,
			Name:      strings.TrimSpace(c.Function.Name),
			Arguments: c.Function.Arguments,
		})
	}
	return statex.AssistantMessage(msg.Content, calls, now)
}
