package tavily

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

	"golang.org/x/time/rate"
)

const (
	DepthBasic    = "basic"
	DepthAdvanced = "advanced"

	MaxExtractURLs = 10

	maxResponseSizeBytes = 8 << 20
)

var (
	ErrMissingQuery  = errors.New("tavily: query is required")
	ErrMissingURL    = errors.New("tavily: url is required")
	ErrTooManyURLs   = errors.New("tavily: too many urls")
	ErrUpstreamError = errors.New("tavily: upstream error")
)

type Config struct {
	BaseURL        string        `envconfig:"BASE_URL" split_words:"true" default:"https://api.tavily.com"`
	APIKey         string        `envconfig:"API_KEY" split_words:"true"`
	Timeout        time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"90s"`
	RequestsPerSec float64       `envconfig:"REQUESTS_PER_SEC" split_words:"true" default:"2"`
	Burst          int           `envconfig:"BURST" split_words:"true" default:"4"`
}

const defaultBaseURL = "https://api.tavily.com"

// Enabled reports whether requests can be authenticated: an API key, or a
// gateway base URL that injects its own credentials.
func (c Config) Enabled() bool {
	base := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	return strings.TrimSpace(c.APIKey) != "" || (base != "" && base != defaultBaseURL)
}

func (c Config) Validate() error {
	base := strings.TrimSpace(c.BaseURL)
	if base == "" {
		return errors.New("tavily: base url is required")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return fmt.Errorf("tavily: invalid base url: %w", err)
	}
	return nil
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) {
		if l != nil {
			c.limiter = l
		}
	}
}

// Client talks to the Tavily REST API or to a gateway in front of it.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

func New(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	limit := rate.Inf
	if cfg.RequestsPerSec > 0 {
		limit = rate.Limit(cfg.RequestsPerSec)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	c := &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:     strings.TrimSpace(cfg.APIKey),
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, burst),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

/* --------------------------------- search --------------------------------- */

type SearchRequest struct {
	Query             string   `json:"query"`
	SearchDepth       string   `json:"search_depth"`
	MaxResults        int      `json:"max_results"`
	Topic             string   `json:"topic"`
	IncludeAnswer     bool     `json:"include_answer"`
	IncludeRawContent bool     `json:"include_raw_content"`
	IncludeDomains    []string `json:"include_domains"`
	ExcludeDomains    []string `json:"exclude_domains"`
}

// Normalize clamps the request into the ranges the API accepts.
func (r SearchRequest) Normalize() SearchRequest {
	r.Query = strings.TrimSpace(r.Query)
	if r.SearchDepth != DepthAdvanced {
		r.SearchDepth = DepthBasic
	}
	r.MaxResults = clamp(r.MaxResults, 1, 20, 5)
	if r.Topic != "news" {
		r.Topic = "general"
	}
	if r.IncludeDomains == nil {
		r.IncludeDomains = []string{}
	}
	if r.ExcludeDomains == nil {
		r.ExcludeDomains = []string{}
	}
	return r
}

type SearchResult struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

type SearchResponse struct {
	Query        string         `json:"query"`
	Answer       string         `json:"answer,omitempty"`
	Results      []SearchResult `json:"results"`
	ResponseTime float64        `json:"response_time,omitempty"`
}

func (c *Client) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	req = req.Normalize()
	if req.Query == "" {
		return nil, ErrMissingQuery
	}
	var out SearchResponse
	if err := c.post(ctx, "/search", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

/* -------------------------------- extract --------------------------------- */

type ExtractResult struct {
	URL        string `json:"url"`
	RawContent string `json:"raw_content"`
}

type FailedResult struct {
	URL   string `json:"url"`
	Error string `json:"error"`
}

type ExtractResponse struct {
	Results       []ExtractResult `json:"results"`
	FailedResults []FailedResult  `json:"failed_results,omitempty"`
}

func (c *Client) Extract(ctx context.Context, urls []string) (*ExtractResponse, error) {
	cleaned := make([]string, 0, len(urls))
	for _, u := range urls {
		if u = strings.TrimSpace(u); u != "" {
			cleaned = append(cleaned, u)
		}
	}
	if len(cleaned) == 0 {
		return nil, ErrMissingURL
	}
	if len(cleaned) > MaxExtractURLs {
		return nil, fmt.Errorf("%w: got %d, max %d", ErrTooManyURLs, len(cleaned), MaxExtractURLs)
	}

	var out ExtractResponse
	if err := c.post(ctx, "/extract", map[string]any{"urls": cleaned}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

/* --------------------------------- crawl ---------------------------------- */

type CrawlRequest struct {
	URL               string   `json:"url"`
	MaxDepth          int      `json:"max_depth"`
	MaxPages          int      `json:"max_pages"`
	IncludeSubdomains bool     `json:"include_subdomains"`
	ExcludePatterns   []string `json:"exclude_patterns"`
}

func (r CrawlRequest) Normalize() CrawlRequest {
	r.URL = strings.TrimSpace(r.URL)
	r.MaxDepth = clamp(r.MaxDepth, 1, 3, 1)
	r.MaxPages = clamp(r.MaxPages, 1, 100, 10)
	if r.ExcludePatterns == nil {
		r.ExcludePatterns = []string{}
	}
	return r
}

type CrawlResponse struct {
	BaseURL string          `json:"base_url"`
	Results []ExtractResult `json:"results"`
}

func (c *Client) Crawl(ctx context.Context, req CrawlRequest) (*CrawlResponse, error) {
	req = req.Normalize()
	if req.URL == "" {
		return nil, ErrMissingURL
	}
	var out CrawlResponse
	if err := c.post(ctx, "/crawl", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

/* -------------------------------- transport ------------------------------- */

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("tavily: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("tavily: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("tavily: execute request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return fmt.Errorf("tavily: read response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("%w: status=%d body=%s", ErrUpstreamError, resp.StatusCode, truncate(string(raw), 512))
	}

	payloadBytes, err := unwrapGatewayBody(raw)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(payloadBytes, out); err != nil {
		return fmt.Errorf("tavily: decode response: %w", err)
	}
	return nil
}

// unwrapGatewayBody accepts both direct JSON and the {"statusCode", "body"} envelope
// produced by an API gateway proxy, where body may itself be a JSON string.
func unwrapGatewayBody(raw []byte) ([]byte, error) {
	var envelope struct {
		StatusCode int             `json:"statusCode"`
		Body       json.RawMessage `json:"body"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil || len(envelope.Body) == 0 {
		return raw, nil
	}
	if envelope.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("%w: gateway status=%d", ErrUpstreamError, envelope.StatusCode)
	}

	var inner string
	if err := json.Unmarshal(envelope.Body, &inner); err == nil {
		return []byte(inner), nil
	}
	return envelope.Body, nil
}

func clamp(v, lo, hi, def int) int {
	if v == 0 {
		return def
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
