package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// Config holds OpenAI-compatible engine settings.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
}

// Client implements Invoker against an OpenAI-compatible chat completions API.
// It serves local runs where Bedrock credentials are not available.
type Client struct {
	api   *openai.Client
	model string
}

var ErrDisabled = errors.New("openai engine disabled")

// NewClient constructs a Client if the supplied configuration is valid.
func NewClient(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, ErrDisabled
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gpt-4.1-mini"
	}
	clientCfg := openai.DefaultConfig(apiKey)
	if baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); baseURL != "" {
		clientCfg.BaseURL = baseURL
	}
	return &Client{api: openai.NewClientWithConfig(clientCfg), model: model}, nil
}

// Invoke requests a chat completion. top_k has no equivalent upstream and is dropped.
func (c *Client) Invoke(ctx context.Context, req Request) (string, error) {
	if c == nil || c.api == nil {
		return "", ErrDisabled
	}
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if strings.TrimSpace(req.System) != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   req.Params.MaxTokens,
		Temperature: float32(req.Params.Temperature),
		TopP:        float32(req.Params.TopP),
	})
	if err != nil {
		return "", fmt.Errorf("openai request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyReply
	}
	return resp.Choices[0].Message.Content, nil
}
