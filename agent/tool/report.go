package tool

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/deep-market-agent/agent/contract"
	statex "github.com/tanpawarit/deep-market-agent/agent/state"
)

const ToolGenerateReport = "generate_report"

func GenerateReport(gen contractx.ReportGenerator) Tool {
	return Tool{
		Info: &schema.ToolInfo{
			Name: ToolGenerateReport,
			Desc: "Build a PDF market analysis report from the facts gathered in this conversation. " +
				"Call it once the conversation holds enough information about the company and its market.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"query": {Type: schema.String, Desc: "What the report should focus on", Required: true},
			}),
		},
		Handler: func(ctx context.Context, rc RunContext, args map[string]any) (Result, error) {
			query, err := argString(args, "query", true)
			if err != nil {
				return Result{}, err
			}

			ref, err := gen.Generate(ctx, contractx.ReportRequest{
				Messages: Transcript(rc.Messages),
				Query:    query,
				ChatID:   rc.SessionID,
				UserID:   rc.ActorID,
			})
			if err != nil {
				return Result{}, err
			}

			content := fmt.Sprintf("The report was generated and is available at %s (document id %s).", ref.ArtifactURL, ref.DocumentID)
			return Command(content, statex.Patch{
				PendingDocumentID: &ref.DocumentID,
				PendingReportURL:  &ref.ArtifactURL,
			}), nil
		},
	}
}

// Transcript flattens messages into role/content turns, dropping empty tool-call shells.
func Transcript(msgs []statex.Message) []contractx.Turn {
	out := make([]contractx.Turn, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == statex.RoleSystem || strings.TrimSpace(m.Content) == "" {
			continue
		}
		out = append(out, contractx.Turn{Role: string(m.Role), Content: m.Content, CreatedAt: m.CreatedAt})
	}
	return out
}
