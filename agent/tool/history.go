package tool

import (
	"context"

	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/deep-market-agent/agent/contract"
)

const ToolSearchChatHistory = "search_chat_history"

type historyHit struct {
	Content   string `json:"content"`
	Scope     string `json:"scope"`
	CreatedAt string `json:"created_at,omitempty"`
}

// SearchChatHistory looks up what the user said before, first in this session and
// then across the user's other sessions.
func SearchChatHistory(mem contractx.MemoryStore) Tool {
	return Tool{
		Info: &schema.ToolInfo{
			Name: ToolSearchChatHistory,
			Desc: "Search previous messages from this user, e.g. to check whether they already described their company, product or market.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"query": {Type: schema.String, Desc: "Words to look for, e.g. company name product customers", Required: true},
				"limit": {Type: schema.Integer, Desc: "Maximum number of matches, default 5"},
			}),
		},
		Handler: func(ctx context.Context, rc RunContext, args map[string]any) (Result, error) {
			query, err := argString(args, "query", false)
			if err != nil {
				return Result{}, err
			}
			limit, err := argInt(args, "limit")
			if err != nil {
				return Result{}, err
			}
			if limit <= 0 {
				limit = 5
			}

			session, err := mem.Search(ctx, rc.Namespace(), query, limit)
			if err != nil {
				return Result{}, err
			}
			actor, err := mem.Search(ctx, rc.Namespace().ActorScope(), query, limit)
			if err != nil {
				return Result{}, err
			}

			seen := make(map[string]struct{}, limit)
			hits := make([]historyHit, 0, limit)
			add := func(in []contractx.MemoryHit, scope string) {
				for _, h := range in {
					if len(hits) >= limit {
						return
					}
					id := h.Namespace + "|" + h.Key
					if _, dup := seen[id]; dup {
						continue
					}
					seen[id] = struct{}{}
					hit := historyHit{Content: h.Value, Scope: scope}
					if !h.CreatedAt.IsZero() {
						hit.CreatedAt = h.CreatedAt.Format("2006-01-02 15:04")
					}
					hits = append(hits, hit)
				}
			}
			add(session, "this_session")
			add(actor, "earlier_sessions")

			if len(hits) == 0 {
				return Text("No matching messages found in the chat history."), nil
			}
			return jsonText(map[string]any{"matches": hits})
		},
	}
}
