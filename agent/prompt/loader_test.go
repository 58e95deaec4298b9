package prompt

import (
	"errors"
	"strings"
	"testing"

	contractx "github.com/tanpawarit/deep-market-agent/agent/contract"
)

func TestLoadPromptSetIsComplete(t *testing.T) {
	t.Parallel()

	set := LoadPromptSet()
	if err := set.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if !strings.Contains(set.System, "search_chat_history") {
		t.Fatal("system prompt does not mention search_chat_history")
	}
	if !strings.Contains(set.ReportTemplate, "{{#each highlights}}") {
		t.Fatal("report template lost the highlights block")
	}
}

func TestModelPromptsHaveNoBraces(t *testing.T) {
	t.Parallel()

	set := LoadPromptSet()
	for name, p := range map[string]string{
		"system":            set.System,
		"extract":           set.Extract,
		"image_query":       set.ImageQuery,
		"report_definition": set.ReportDefinition,
	} {
		if strings.ContainsAny(p, "{}") {
			t.Errorf("%s prompt contains a brace and would break FString formatting", name)
		}
	}
}

func TestValidateReportsMissingPrompt(t *testing.T) {
	t.Parallel()

	set := LoadPromptSet()
	set.ImageQuery = "  "
	if err := set.Validate(); !errors.Is(err, contractx.ErrPromptMissing) {
		t.Fatalf("Validate() error = %v, want ErrPromptMissing", err)
	}
}
