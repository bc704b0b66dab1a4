package model

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/corvidlabs/plannerd/internal/config"
)

// ChatClient captures the subset of the go-openai client the invoker uses.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Client invokes chat models on an OpenAI-compatible endpoint.
type Client struct {
	chat      ChatClient
	apiKey    string
	baseURL   string
	maxTokens int
}

func NewClient(cfg *config.Config) *Client {
	timeout := time.Duration(cfg.Provider.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = config.DefaultModelTimeout * time.Second
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.Provider.BaseURL), "/")
	oc := openai.DefaultConfig(cfg.Provider.APIKey)
	if baseURL != "" {
		oc.BaseURL = baseURL
	}
	oc.HTTPClient = &http.Client{Timeout: timeout}

	return &Client{
		chat:      openai.NewClientWithConfig(oc),
		apiKey:    cfg.Provider.APIKey,
		baseURL:   baseURL,
		maxTokens: cfg.Agent.MaxTokens,
	}
}

func (c *Client) Invoke(ctx context.Context, model string, msgs []Message) (string, error) {
	if strings.TrimSpace(c.apiKey) == "" {
		return "", fmt.Errorf("missing api key")
	}
	if c.baseURL == "" {
		return "", fmt.Errorf("missing base url")
	}
	if model == "" {
		return "", fmt.Errorf("missing model")
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		messages = append(messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	resp, err := c.chat.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     model,
		Messages:  messages,
		MaxTokens: c.maxTokens,
	})
	if err != nil {
		// Treat a timed-out call like an unavailable model so the
		// fallback chain can continue with the next candidate.
		if isTimeout(err) {
			return "", fmt.Errorf("model %s timed out: %w", model, ErrUnavailable)
		}
		if isModelUnavailable(err) {
			return "", fmt.Errorf("model %s: %v: %w", model, err, ErrUnavailable)
		}
		return "", fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty choices in response")
	}
	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("empty content in response")
	}
	return content, nil
}

// isModelUnavailable reports whether a provider error means the requested
// model identifier cannot be served, as opposed to a malformed request or a
// provider fault.
func isModelUnavailable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusNotFound {
			return true
		}
		if code, ok := apiErr.Code.(string); ok {
			switch strings.ToLower(strings.TrimSpace(code)) {
			case "model_not_found", "model_unavailable":
				return true
			}
		}
		if apiErr.Param != nil && strings.EqualFold(strings.TrimSpace(*apiErr.Param), "model") {
			message := strings.ToLower(apiErr.Message)
			return strings.Contains(message, "not found") || strings.Contains(message, "does not exist")
		}
		return false
	}

	// Error bodies the provider did not shape as {"error": ...}.
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusNotFound
	}
	return false
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
