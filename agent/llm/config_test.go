package llm

import (
	"errors"
	"testing"

	contractx "github.com/tanpawarit/deep-market-agent/agent/contract"
)

func TestForInheritsDefaults(t *testing.T) {
	t.Parallel()

	cfg := Config{
		APIKey:                "k",
		Model:                 "base/model",
		Temperature:           0.3,
		MaxCompletionToken:    1000,
		ReportModel:           "report/model",
		ReportTemperature:     0,
		ExtractTemperature:    -1,
		ImageQueryTemperature: 0.9,
	}

	report := cfg.For(contractx.StageReport)
	if report.Model != "report/model" || report.Temperature != 0 {
		t.Fatalf("For(report) = %s %v", report.Model, report.Temperature)
	}

	extract := cfg.For(contractx.StageExtract)
	if extract.Model != "base/model" || extract.Temperature != 0.3 {
		t.Fatalf("For(extract) = %s %v", extract.Model, extract.Temperature)
	}

	imageQuery := cfg.For(contractx.StageImageQuery)
	if imageQuery.Model != "base/model" || imageQuery.Temperature != float32(0.9) {
		t.Fatalf("For(image_query) = %s %v", imageQuery.Model, imageQuery.Temperature)
	}
	if imageQuery.MaxCompletionToken == nil || *imageQuery.MaxCompletionToken != 1000 {
		t.Fatalf("MaxCompletionToken = %v", imageQuery.MaxCompletionToken)
	}
}

func TestValidateRequiresKeyAndModel(t *testing.T) {
	t.Parallel()

	if err := (&Config{Model: "m"}).Validate(); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("Validate() error = %v, want ErrValidation", err)
	}
	if err := (&Config{APIKey: "k"}).Validate(); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("Validate() error = %v, want ErrValidation", err)
	}
}
