package llm

import (
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/deep-market-agent/agent/contract"
	openrouterx "github.com/tanpawarit/deep-market-agent/pkg/openrouter"
)

// Config is the LLM_* block. Stage fields left empty, or at -1 for temperatures, inherit the defaults.
type Config struct {
	BaseURL            string        `envconfig:"BASE_URL" split_words:"true" default:"https://openrouter.ai/api/v1"`
	APIKey             string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	Model              string        `envconfig:"MODEL" split_words:"true" required:"true"`
	MaxCompletionToken int           `envconfig:"MAX_COMPLETION_TOKEN" split_words:"true" default:"4000"`
	Temperature        float32       `envconfig:"TEMPERATURE" split_words:"true" default:"0.3"`
	Timeout            time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"60s"`
	SiteURL            string        `envconfig:"SITE_URL" split_words:"true"`
	SiteName           string        `envconfig:"SITE_NAME" split_words:"true"`

	ChatModel             string  `envconfig:"CHAT_MODEL" split_words:"true"`
	ExtractModel          string  `envconfig:"EXTRACT_MODEL" split_words:"true"`
	ImageQueryModel       string  `envconfig:"IMAGE_QUERY_MODEL" split_words:"true"`
	ReportModel           string  `envconfig:"REPORT_MODEL" split_words:"true"`
	ChatTemperature       float32 `envconfig:"CHAT_TEMPERATURE" split_words:"true" default:"-1"`
	ExtractTemperature    float32 `envconfig:"EXTRACT_TEMPERATURE" split_words:"true" default:"-1"`
	ImageQueryTemperature float32 `envconfig:"IMAGE_QUERY_TEMPERATURE" split_words:"true" default:"-1"`
	ReportTemperature     float32 `envconfig:"REPORT_TEMPERATURE" split_words:"true" default:"-1"`
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("%w: openrouter api key is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("%w: default model is required", contractx.ErrValidation)
	}
	return nil
}

// For resolves the model settings of one stage.
func (c Config) For(stage contractx.Stage) openrouterx.Config {
	modelName := strings.TrimSpace(c.Model)
	temp := c.Temperature

	override := func(m string, t float32) {
		if v := strings.TrimSpace(m); v != "" {
			modelName = v
		}
		if t >= 0 {
			temp = t
		}
	}

	switch stage {
	case contractx.StageChat:
		override(c.ChatModel, c.ChatTemperature)
	case contractx.StageExtract:
		override(c.ExtractModel, c.ExtractTemperature)
	case contractx.StageImageQuery:
		override(c.ImageQueryModel, c.ImageQueryTemperature)
	case contractx.StageReport:
		override(c.ReportModel, c.ReportTemperature)
	}

	maxCompletionToken := c.MaxCompletionToken
	return openrouterx.Config{
		BaseURL:            strings.TrimSpace(c.BaseURL),
		APIKey:             strings.TrimSpace(c.APIKey),
		Model:              modelName,
		MaxCompletionToken: &maxCompletionToken,
		Temperature:        temp,
		Timeout:            c.Timeout,
		SiteURL:            strings.TrimSpace(c.SiteURL),
		SiteName:           strings.TrimSpace(c.SiteName),
	}
}
