package openrouter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	openaimodel "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Models that reject or misbehave with reasoning output; it is switched off for them.
var ReasoningBlacklist = map[string]bool{
	"x-ai/grok-4.1-fast": true,
}

// Config is one resolved chat model: endpoint, credentials and sampling settings.
type Config struct {
	BaseURL            string        `envconfig:"BASE_URL" split_words:"true" default:"https://openrouter.ai/api/v1"`
	APIKey             string        `envconfig:"API_KEY" split_words:"true"`
	Model              string        `envconfig:"MODEL" split_words:"true"`
	MaxCompletionToken *int          `envconfig:"MAX_COMPLETION_TOKEN" split_words:"true" default:"4000"`
	Temperature        float32       `envconfig:"TEMPERATURE" split_words:"true" default:"0.3"`
	Timeout            time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"60s"`
	SiteURL            string        `envconfig:"SITE_URL" split_words:"true"`
	SiteName           string        `envconfig:"SITE_NAME" split_words:"true"`
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return errors.New("openrouter: api key is required")
	}
	if strings.TrimSpace(c.Model) == "" {
		return errors.New("openrouter: model is required")
	}
	return nil
}

// NewChatModel builds an OpenAI-compatible tool calling chat model for c.
func NewChatModel(ctx context.Context, c Config) (model.ToolCallingChatModel, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	modelName := strings.TrimSpace(c.Model)
	temperature := c.Temperature

	conf := &openaimodel.ChatModelConfig{
		BaseURL:     strings.TrimRight(strings.TrimSpace(c.BaseURL), "/"),
		APIKey:      strings.TrimSpace(c.APIKey),
		Model:       modelName,
		MaxTokens:   c.MaxCompletionToken,
		Temperature: &temperature,
		Timeout:     c.Timeout,
	}

	if ReasoningBlacklist[modelName] {
		conf.ExtraFields = map[string]any{
			"reasoning": map[string]any{
				"exclude": true,
				"effort":  "none",
			},
		}
	}

	m, err := openaimodel.NewChatModel(ctx, conf)
	if err != nil {
		return nil, fmt.Errorf("openrouter: create chat model %s: %w", modelName, err)
	}
	return m, nil
}

type Builder func(ctx context.Context, c Config) (model.ToolCallingChatModel, error)

type poolKey struct {
	baseURL     string
	model       string
	temperature float32
	maxTokens   int
}

// Pool hands out chat models so that pipeline stages resolving to the same
// endpoint, model and sampling settings share one instance.
type Pool struct {
	mu     sync.Mutex
	models map[poolKey]model.ToolCallingChatModel
	build  Builder
}

func NewPool(build Builder) *Pool {
	if build == nil {
		build = NewChatModel
	}
	return &Pool{models: make(map[poolKey]model.ToolCallingChatModel), build: build}
}

func (p *Pool) Get(ctx context.Context, c Config) (model.ToolCallingChatModel, error) {
	key := poolKey{
		baseURL:     strings.TrimRight(strings.TrimSpace(c.BaseURL), "/"),
		model:       strings.TrimSpace(c.Model),
		temperature: c.Temperature,
	}
	if c.MaxCompletionToken != nil {
		key.maxTokens = *c.MaxCompletionToken
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if m, ok := p.models[key]; ok {
		return m, nil
	}
	m, err := p.build(ctx, c)
	if err != nil {
		return nil, err
	}
	p.models[key] = m
	return m, nil
}

// Len reports how many distinct models were built.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.models)
}

// NewClient creates an openai-go SDK client against BaseURL, adding the
// OpenRouter attribution headers when configured. It returns nil without an API key.
func NewClient(cfg Config) *openaisdk.Client {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil
	}

	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
	}
	if trimmed := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); trimmed != "" {
		opts = append(opts, option.WithBaseURL(trimmed))
	}
	if cfg.SiteURL != "" {
		opts = append(opts, option.WithHeader("HTTP-Referer", cfg.SiteURL))
	}
	if cfg.SiteName != "" {
		opts = append(opts, option.WithHeader("X-Title", cfg.SiteName))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	client := openaisdk.NewClient(opts...)
	return &client
}
