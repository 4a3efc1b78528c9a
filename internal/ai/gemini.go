package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/charmbracelet/log"
)

// errEndpointNotFound marks a 404 from an endpoint; the caller moves on to
// the next candidate.
var errEndpointNotFound = errors.New("endpoint not found")

// GeminiContent represents content in Gemini's format
type GeminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []GeminiPart `json:"parts"`
}

type GeminiPart struct {
	Text string `json:"text"`
}

type GeminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopK            int     `json:"topK"`
	TopP            float64 `json:"topP"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

// GeminiRequest represents a request to the generateContent API
type GeminiRequest struct {
	Contents         []GeminiContent        `json:"contents"`
	GenerationConfig GeminiGenerationConfig `json:"generationConfig"`
}

// GeminiResponse represents a response from the generateContent API
type GeminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []GeminiPart `json:"parts"`
			Role  string       `json:"role"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
}

var defaultGenerationConfig = GeminiGenerationConfig{
	Temperature:     0.7,
	TopK:            1,
	TopP:            1,
	MaxOutputTokens: 2048,
}

type GeminiConfig struct {
	APIKey string
	// Endpoints are full generateContent URLs, tried in order.
	Endpoints []string
	// Timeout bounds each endpoint attempt.
	Timeout time.Duration
	// IncludeHistory forwards prior turns to the upstream call.
	IncludeHistory bool
	HTTPClient     *http.Client
}

// GeminiClient calls the Gemini REST API, falling back across a fixed,
// ordered list of endpoints.
type GeminiClient struct {
	cfg    GeminiConfig
	client *http.Client
	logger *log.Logger
}

var _ Responder = (*GeminiClient)(nil)

func NewGeminiClient(cfg GeminiConfig, logger *log.Logger) *GeminiClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &GeminiClient{cfg: cfg, client: client, logger: logger}
}

// GetResponse tries each endpoint in order and returns the first answer
// together with a token estimate over prompt and answer.
func (c *GeminiClient) GetResponse(ctx context.Context, req Request) (string, int) {
	apiKey := req.APIKey
	if apiKey == "" {
		apiKey = c.cfg.APIKey
	}
	if apiKey == "" {
		c.logger.Error("gemini: no API key configured")
		return FallbackText, 0
	}

	finalPrompt := FinalPrompt(req)
	body, err := json.Marshal(GeminiRequest{
		Contents:         c.contents(req.History, finalPrompt),
		GenerationConfig: defaultGenerationConfig,
	})
	if err != nil {
		c.logger.Error("gemini: failed to marshal request", "err", err)
		return FallbackText, 0
	}

	var lastErr error
	for _, endpoint := range c.cfg.Endpoints {
		c.logger.Debug("gemini: trying endpoint", "endpoint", endpoint)

		text, err := c.generate(ctx, endpoint, apiKey, body)
		if errors.Is(err, errEndpointNotFound) {
			c.logger.Warn("gemini: endpoint returned 404, trying next fallback", "endpoint", endpoint)
			continue
		}
		if err != nil {
			c.logger.Error("gemini: endpoint failed", "endpoint", endpoint, "err", err)
			lastErr = err
			continue
		}

		tokens := EstimateTokens(finalPrompt + text)
		c.logger.Info("gemini: response received", "endpoint", endpoint, "tokens", tokens)
		return text, tokens
	}

	c.logger.Error("gemini: all endpoints failed", "err", lastErr)
	return FallbackText, 0
}

func (c *GeminiClient) contents(history []Turn, prompt string) []GeminiContent {
	var contents []GeminiContent
	if c.cfg.IncludeHistory {
		for _, turn := range history {
			// Gemini uses "model" instead of "assistant"
			role := "user"
			if turn.Role == "assistant" {
				role = "model"
			}
			contents = append(contents, GeminiContent{Role: role, Parts: []GeminiPart{{Text: turn.Content}}})
		}
	}
	return append(contents, GeminiContent{Role: "user", Parts: []GeminiPart{{Text: prompt}}})
}

func (c *GeminiClient) generate(ctx context.Context, endpoint, apiKey string, body []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint: %w", err)
	}
	q := u.Query()
	q.Set("key", apiKey)
	u.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", errEndpointNotFound
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(msg))
	}

	var geminiResp GeminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&geminiResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if len(geminiResp.Candidates) == 0 {
		return "", errors.New("no candidates in response")
	}
	if len(geminiResp.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("no content in response")
	}
	return geminiResp.Candidates[0].Content.Parts[0].Text, nil
}
