package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/deep-market-agent/agent/contract"
	statex "github.com/tanpawarit/deep-market-agent/agent/state"
	"github.com/tanpawarit/deep-market-agent/pkg/metrics"
)

// RunContext is what a tool may know about the turn that invoked it.
type RunContext struct {
	ActorID   string
	SessionID string
	MemoryID  string
	// Non-system conversation at dispatch time, oldest first.
	Messages []statex.Message
}

func (rc RunContext) Namespace() contractx.Namespace {
	return contractx.Namespace{ActorID: rc.ActorID, SessionID: rc.SessionID}
}

// Result is either plain text or a Command: text plus a state patch.
type Result struct {
	Content string
	Patch   *statex.Patch
}

func Text(content string) Result {
	return Result{Content: content}
}

func Command(content string, p statex.Patch) Result {
	return Result{Content: content, Patch: &p}
}

func (r Result) IsCommand() bool {
	return r.Patch != nil
}

type Handler func(ctx context.Context, rc RunContext, args map[string]any) (Result, error)

type Tool struct {
	Info    *schema.ToolInfo
	Handler Handler
}

// Registry is the static, ordered tool set bound to every chat model call.
type Registry struct {
	order   []string
	tools   map[string]Tool
	timeout time.Duration
}

func NewRegistry(timeout time.Duration, tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool, len(tools)), timeout: timeout}
	for _, t := range tools {
		if t.Info == nil || strings.TrimSpace(t.Info.Name) == "" || t.Handler == nil {
			return nil, fmt.Errorf("%w: tool needs a name and a handler", contractx.ErrValidation)
		}
		if _, dup := r.tools[t.Info.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate tool %s", contractx.ErrValidation, t.Info.Name)
		}
		r.order = append(r.order, t.Info.Name)
		r.tools[t.Info.Name] = t
	}
	return r, nil
}

func (r *Registry) Infos() []*schema.ToolInfo {
	out := make([]*schema.ToolInfo, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].Info)
	}
	return out
}

func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

func (r *Registry) Lookup(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Execute runs one tool call under the per-call deadline. Failures come back as
// errors wrapping ErrUnknownTool or ErrToolExecution; callers turn them into tool results.
func (r *Registry) Execute(ctx context.Context, rc RunContext, call statex.ToolCall) (res Result, err error) {
	started := time.Now()
	defer func() {
		metrics.RecordToolCall(call.Name, time.Since(started), err)
	}()

	t, ok := r.tools[call.Name]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", contractx.ErrUnknownTool, call.Name)
	}

	args, err := decodeArgs(call.Arguments)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %s: %w", contractx.ErrToolExecution, call.Name, err)
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	res, err = t.Handler(ctx, rc, args)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %s: %w", contractx.ErrToolExecution, call.Name, contractx.ClassifyUpstream(err))
	}
	return res, nil
}

func decodeArgs(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

/* ------------------------------ arg helpers ------------------------------- */

func argString(args map[string]any, key string, required bool) (string, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		if required {
			return "", fmt.Errorf("%s is required", key)
		}
		return "", nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%s must be a string", key)
	}
	s = strings.TrimSpace(s)
	if required && s == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return s, nil
}

func argInt(args map[string]any, key string) (int, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return 0, nil
	}
	switch v := raw.(type) {
	case float64:
		return int(v), nil
	case string:
		var n int
		if _, err := fmt.Sscan(strings.TrimSpace(v), &n); err != nil {
			return 0, fmt.Errorf("%s must be an integer", key)
		}
		return n, nil
	}
	return 0, fmt.Errorf("%s must be an integer", key)
}

func argBool(args map[string]any, key string) bool {
	v, _ := args[key].(bool)
	return v
}

func argStrings(args map[string]any, key string) ([]string, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return nil, nil
	}
	switch v := raw.(type) {
	case string:
		if s := strings.TrimSpace(v); s != "" {
			return []string{s}, nil
		}
		return nil, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s must be a list of strings", key)
			}
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("%s must be a list of strings", key)
}

func jsonText(v any) (Result, error) {
	out, err := json.Marshal(v)
	if err != nil {
		return Result{}, fmt.Errorf("encode tool output: %w", err)
	}
	return Text(string(out)), nil
}
