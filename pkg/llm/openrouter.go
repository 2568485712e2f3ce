// Package llm talks to OpenRouter through its OpenAI-compatible API.
package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"finboard/pkg/config"
	"finboard/pkg/metrics"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const (
	RoleSystem    = openai.ChatMessageRoleSystem
	RoleUser      = openai.ChatMessageRoleUser
	RoleAssistant = openai.ChatMessageRoleAssistant
)

var (
	ErrNotConfigured = errors.New("llm provider is not configured")
	ErrRateLimited   = errors.New("llm provider rate limited the request")
	ErrEmptyResponse = errors.New("llm provider returned no choices")
)

type Message struct {
	Role    string
	Content string
}

type Completion struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
}

type Client struct {
	api         *openai.Client
	model       string
	temperature float32
	maxTokens   int
	logger      *zap.Logger
	metrics     *metrics.Metrics
}

// attributionTransport adds the headers OpenRouter uses for app rankings.
type attributionTransport struct {
	base    http.RoundTripper
	siteURL string
	appName string
}

func (t *attributionTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	if t.siteURL != "" {
		req.Header.Set("HTTP-Referer", t.siteURL)
	}
	if t.appName != "" {
		req.Header.Set("X-Title", t.appName)
	}
	return t.base.RoundTrip(req)
}

// NewClient returns nil and ErrNotConfigured when no API key is set.
func NewClient(cfg *config.OpenRouterConfig, logger *zap.Logger, m *metrics.Metrics) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrNotConfigured
	}

	oaiConfig := openai.DefaultConfig(cfg.APIKey)
	oaiConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	oaiConfig.HTTPClient = &http.Client{
		// Streams can run long; the request context bounds them instead.
		Timeout: 5 * time.Minute,
		Transport: &attributionTransport{
			base:    http.DefaultTransport,
			siteURL: cfg.SiteURL,
			appName: cfg.AppName,
		},
	}

	return &Client{
		api:         openai.NewClientWithConfig(oaiConfig),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		logger:      logger,
		metrics:     m,
	}, nil
}

func (c *Client) Model() string {
	return c.model
}

func (c *Client) request(messages []Message, stream bool) openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		Stream:      stream,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(messages)),
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	return req
}

// Complete runs a single non-streaming chat completion.
func (c *Client) Complete(ctx context.Context, messages []Message) (*Completion, error) {
	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, c.request(messages, false))
	c.metrics.UpstreamCall("openrouter", "chat_completion", err)
	if err != nil {
		return nil, c.wrap(err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrEmptyResponse
	}

	c.metrics.LLMTokens(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	c.logger.Debug("LLM completion finished",
		zap.String("model", resp.Model),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Duration("duration", time.Since(start)),
	)

	return &Completion{
		Content:          resp.Choices[0].Message.Content,
		Model:            resp.Model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

// Stream runs a streaming completion, handing each content delta to onDelta.
// The accumulated text is returned once the stream ends. An error from
// onDelta aborts the stream.
func (c *Client) Stream(ctx context.Context, messages []Message, onDelta func(string) error) (*Completion, error) {
	stream, err := c.api.CreateChatCompletionStream(ctx, c.request(messages, true))
	c.metrics.UpstreamCall("openrouter", "chat_completion_stream", err)
	if err != nil {
		return nil, c.wrap(err)
	}
	defer stream.Close()

	var (
		sb    strings.Builder
		model = c.model
	)
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, c.wrap(err)
		}
		if chunk.Model != "" {
			model = chunk.Model
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		sb.WriteString(delta)
		if err := onDelta(delta); err != nil {
			return nil, err
		}
	}

	if sb.Len() == 0 {
		return nil, ErrEmptyResponse
	}
	return &Completion{Content: sb.String(), Model: model}, nil
}

func (c *Client) wrap(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %s", ErrRateLimited, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %v", ErrRateLimited, reqErr.Err)
	}
	c.logger.Error("LLM request failed", zap.Error(err))
	return fmt.Errorf("llm request: %w", err)
}
