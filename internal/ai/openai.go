package ai

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/sashabaranov/go-openai"
)

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	// Models are tried in order; a 404 or any other failure moves on.
	Models         []string
	Timeout        time.Duration
	IncludeHistory bool
}

// OpenAIClient serves the Responder contract over an OpenAI-compatible
// chat-completions API, such as Gemini's compatibility endpoint.
type OpenAIClient struct {
	cfg    OpenAIConfig
	logger *log.Logger

	mu      sync.Mutex
	clients map[string]*openai.Client
}

var _ Responder = (*OpenAIClient)(nil)

func NewOpenAIClient(cfg OpenAIConfig, logger *log.Logger) *OpenAIClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if len(cfg.Models) == 0 {
		cfg.Models = []string{DefaultModel}
	}
	return &OpenAIClient{cfg: cfg, logger: logger, clients: map[string]*openai.Client{}}
}

// clientFor returns a client bound to apiKey, creating it on first use.
func (c *OpenAIClient) clientFor(apiKey string) *openai.Client {
	c.mu.Lock()
	defer c.mu.Unlock()

	if client, ok := c.clients[apiKey]; ok {
		return client
	}
	clientConfig := openai.DefaultConfig(apiKey)
	if c.cfg.BaseURL != "" {
		clientConfig.BaseURL = c.cfg.BaseURL
	}
	client := openai.NewClientWithConfig(clientConfig)
	c.clients[apiKey] = client
	return client
}

func (c *OpenAIClient) GetResponse(ctx context.Context, req Request) (string, int) {
	apiKey := req.APIKey
	if apiKey == "" {
		apiKey = c.cfg.APIKey
	}
	if apiKey == "" {
		c.logger.Error("openai: no API key configured")
		return FallbackText, 0
	}
	client := c.clientFor(apiKey)

	finalPrompt := FinalPrompt(req)
	messages := c.messages(req.History, finalPrompt)

	var lastErr error
	for _, model := range c.cfg.Models {
		text, err := c.complete(ctx, client, model, messages)
		if isNotFound(err) {
			c.logger.Warn("openai: model returned 404, trying next fallback", "model", model)
			continue
		}
		if err != nil {
			c.logger.Error("openai: model failed", "model", model, "err", err)
			lastErr = err
			continue
		}

		tokens := EstimateTokens(finalPrompt + text)
		c.logger.Info("openai: response received", "model", model, "tokens", tokens)
		return text, tokens
	}

	c.logger.Error("openai: all models failed", "err", lastErr)
	return FallbackText, 0
}

func (c *OpenAIClient) messages(history []Turn, prompt string) []openai.ChatCompletionMessage {
	var messages []openai.ChatCompletionMessage
	if c.cfg.IncludeHistory {
		for _, turn := range history {
			role := openai.ChatMessageRoleUser
			if turn.Role == "assistant" {
				role = openai.ChatMessageRoleAssistant
			}
			messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: turn.Content})
		}
	}
	return append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})
}

func (c *OpenAIClient) complete(ctx context.Context, client *openai.Client, model string, messages []openai.ChatCompletionMessage) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   defaultGenerationConfig.MaxOutputTokens,
		Temperature: float32(defaultGenerationConfig.Temperature),
		TopP:        float32(defaultGenerationConfig.TopP),
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}

func isNotFound(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusNotFound
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusNotFound
	}
	return false
}
