package render

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const maxResponseSizeBytes = 1 << 20

var (
	ErrRenderFailed = errors.New("render: document rendering failed")
	ErrNoArtifact   = errors.New("render: response carried no artifact url")
)

type Config struct {
	URL     string        `envconfig:"URL" split_words:"true"`
	APIKey  string        `envconfig:"API_KEY" split_words:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"120s"`
}

func (c Config) Enabled() bool {
	return strings.TrimSpace(c.URL) != ""
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// Client posts a template and its data to a rendering service and gets back a hosted document URL.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

func New(cfg Config, opts ...Option) (*Client, error) {
	endpoint := strings.TrimSpace(cfg.URL)
	if endpoint == "" {
		return nil, errors.New("render: url is required")
	}
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return nil, fmt.Errorf("render: invalid url: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	c := &Client{
		endpoint:   endpoint,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

type renderRequest struct {
	Template string `json:"template"`
	Data     any    `json:"data"`
}

type renderResponse struct {
	URL  string          `json:"url"`
	Body json.RawMessage `json:"body"`
}

func (c *Client) Render(ctx context.Context, template string, data any) (string, error) {
	body, err := json.Marshal(renderRequest{Template: template, Data: data})
	if err != nil {
		return "", fmt.Errorf("render: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("render: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("render: execute request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return "", fmt.Errorf("render: read response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", fmt.Errorf("%w: status=%d", ErrRenderFailed, resp.StatusCode)
	}

	return artifactURL(raw)
}

func artifactURL(raw []byte) (string, error) {
	var parsed renderResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrRenderFailed, err)
	}
	if u := strings.TrimSpace(parsed.URL); u != "" {
		return u, nil
	}
	if len(parsed.Body) == 0 {
		return "", ErrNoArtifact
	}

	inner := []byte(parsed.Body)
	var encoded string
	if err := json.Unmarshal(parsed.Body, &encoded); err == nil {
		inner = []byte(encoded)
	}
	var wrapped renderResponse
	if err := json.Unmarshal(inner, &wrapped); err != nil || strings.TrimSpace(wrapped.URL) == "" {
		return "", ErrNoArtifact
	}
	return strings.TrimSpace(wrapped.URL), nil
}
