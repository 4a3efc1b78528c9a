// Package ai talks to the upstream text-generation service.
//
// Responders never fail outright: when every upstream candidate is exhausted
// they answer with FallbackText and a zero token count, so callers inspect
// the content rather than an error.
package ai

import (
	"context"
	"strings"
	"unicode/utf8"
)

// FallbackText is returned when no upstream endpoint produced an answer.
const FallbackText = "[Gemini API Error] All endpoints failed. Please try again later."

// Turn is one prior exchange in a conversation.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Request struct {
	Prompt        string
	History       []Turn
	Model         string
	SearchContext string
	// APIKey overrides the configured upstream key when set.
	APIKey string
}

// Responder produces a complete answer for a request.
type Responder interface {
	GetResponse(ctx context.Context, req Request) (text string, tokens int)
}

// IsFallbackText reports whether text is the degraded answer.
func IsFallbackText(text string) bool {
	return text == FallbackText
}

// EstimateTokens approximates a token count as one token per four
// characters. It is a heuristic, kept stable so cost figures stay
// comparable over time.
func EstimateTokens(text string) int {
	return utf8.RuneCountInString(text) / 4
}

// FinalPrompt appends the search context block to the prompt.
func FinalPrompt(req Request) string {
	if strings.TrimSpace(req.SearchContext) == "" {
		return req.Prompt
	}
	return req.Prompt + "\n\n[Search Results]: " + req.SearchContext +
		"\n\nPlease use the search results above to answer accurately."
}
