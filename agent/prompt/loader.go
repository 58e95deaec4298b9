package prompt

import (
	_ "embed"
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/deep-market-agent/agent/contract"
)

var (
	//go:embed template/system.txt
	systemRaw string

	//go:embed template/extract.txt
	extractRaw string

	//go:embed template/image_query.txt
	imageQueryRaw string

	//go:embed template/report_definition.txt
	reportDefinitionRaw string

	//go:embed template/report_template.html
	reportTemplateRaw string
)

// PromptSet holds loaded prompt content.
// Model prompts are FString templates; ReportTemplate is sent verbatim to the renderer.
type PromptSet struct {
	System           string
	Extract          string
	ImageQuery       string
	ReportDefinition string
	ReportTemplate   string
}

func LoadPromptSet() PromptSet {
	return PromptSet{
		System:           strings.TrimSpace(systemRaw),
		Extract:          strings.TrimSpace(extractRaw),
		ImageQuery:       strings.TrimSpace(imageQueryRaw),
		ReportDefinition: strings.TrimSpace(reportDefinitionRaw),
		ReportTemplate:   strings.TrimSpace(reportTemplateRaw),
	}
}

func (p PromptSet) Validate() error {
	for name, v := range map[string]string{
		"system":            p.System,
		"extract":           p.Extract,
		"image_query":       p.ImageQuery,
		"report_definition": p.ReportDefinition,
		"report_template":   p.ReportTemplate,
	} {
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("%w: %s", contractx.ErrPromptMissing, name)
		}
	}
	return nil
}
