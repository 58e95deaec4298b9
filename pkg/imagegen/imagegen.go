package imagegen

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openaisdk "github.com/openai/openai-go"

	openrouterx "github.com/tanpawarit/deep-market-agent/pkg/openrouter"
)

var (
	ErrEmptyDescription = errors.New("imagegen: description is required")
	ErrNoImages         = errors.New("imagegen: provider returned no images")
)

type Config struct {
	BaseURL string        `envconfig:"BASE_URL" split_words:"true" default:"https://api.openai.com/v1"`
	APIKey  string        `envconfig:"API_KEY" split_words:"true"`
	Model   string        `envconfig:"MODEL" split_words:"true" default:"dall-e-3"`
	Size    string        `envconfig:"SIZE" split_words:"true" default:"1024x1024"`
	Count   int64         `envconfig:"COUNT" split_words:"true" default:"1"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"120s"`
}

func (c Config) Enabled() bool {
	return strings.TrimSpace(c.APIKey) != ""
}

// Image is one generated picture; StorageLocation is the URL the provider hosts it at.
type Image struct {
	StorageLocation string
	Description     string
}

type Client struct {
	sdk     *openaisdk.Client
	model   string
	size    string
	count   int64
	timeout time.Duration
}

func New(cfg Config) (*Client, error) {
	sdk := openrouterx.NewClient(openrouterx.Config{
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIKey,
	})
	if sdk == nil {
		return nil, errors.New("imagegen: api key is required")
	}
	count := cfg.Count
	if count <= 0 {
		count = 1
	}
	return &Client{
		sdk:     sdk,
		model:   strings.TrimSpace(cfg.Model),
		size:    strings.TrimSpace(cfg.Size),
		count:   count,
		timeout: cfg.Timeout,
	}, nil
}

// Generate renders a picture for description. The prompt is passed through verbatim;
// composing a caption-style prompt is the caller's job.
func (c *Client) Generate(ctx context.Context, description, userID string) ([]Image, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, ErrEmptyDescription
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	params := openaisdk.ImageGenerateParams{
		Prompt:         description,
		Model:          openaisdk.ImageModel(c.model),
		N:              openaisdk.Int(c.count),
		ResponseFormat: openaisdk.ImageGenerateParamsResponseFormatURL,
	}
	if c.size != "" {
		params.Size = openaisdk.ImageGenerateParamsSize(c.size)
	}
	if userID = strings.TrimSpace(userID); userID != "" {
		params.User = openaisdk.String(userID)
	}

	resp, err := c.sdk.Images.Generate(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("imagegen: generate: %w", err)
	}

	images := make([]Image, 0, len(resp.Data))
	for _, d := range resp.Data {
		if strings.TrimSpace(d.URL) == "" {
			continue
		}
		images = append(images, Image{StorageLocation: d.URL, Description: description})
	}
	if len(images) == 0 {
		return nil, ErrNoImages
	}
	return images, nil
}
