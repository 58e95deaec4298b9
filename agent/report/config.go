package report

import (
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/deep-market-agent/agent/contract"
)

const maxHighlights = 6

// Config is the REPORT_* block.
type Config struct {
	HighlightCount  int    `envconfig:"HIGHLIGHT_COUNT" split_words:"true" default:"3"`
	ImageBackground string `envconfig:"IMAGE_BACKGROUND" split_words:"true" default:"#f7fbf8"`
	MainTitle       string `envconfig:"MAIN_TITLE" split_words:"true" default:"Market Analysis Report"`
	PreparedBy      string `envconfig:"PREPARED_BY" split_words:"true" default:"Deep Market Agent"`
	DocumentName    string `envconfig:"DOCUMENT_NAME" split_words:"true" default:"market-report"`
	MaxTranscript   int    `envconfig:"MAX_TRANSCRIPT" split_words:"true" default:"60"`
}

func (c *Config) Validate() error {
	if c.HighlightCount < 1 || c.HighlightCount > maxHighlights {
		return fmt.Errorf("%w: highlight count must be between 1 and %d, got %d", contractx.ErrValidation, maxHighlights, c.HighlightCount)
	}
	if !strings.HasPrefix(strings.TrimSpace(c.ImageBackground), "#") {
		return fmt.Errorf("%w: image background must be a hex color", contractx.ErrValidation)
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.HighlightCount < 1 {
		c.HighlightCount = 3
	}
	if c.HighlightCount > maxHighlights {
		c.HighlightCount = maxHighlights
	}
	if strings.TrimSpace(c.ImageBackground) == "" {
		c.ImageBackground = "#f7fbf8"
	}
	if strings.TrimSpace(c.MainTitle) == "" {
		c.MainTitle = "Market Analysis Report"
	}
	if strings.TrimSpace(c.PreparedBy) == "" {
		c.PreparedBy = "Deep Market Agent"
	}
	if strings.TrimSpace(c.DocumentName) == "" {
		c.DocumentName = "market-report"
	}
	if c.MaxTranscript <= 0 {
		c.MaxTranscript = 60
	}
	return c
}
