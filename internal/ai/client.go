// Package ai is the downstream generation collaborator: an OpenAI-style
// chat completion client with an explicit timeout and a token budget on the
// history it forwards.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tiktoken-go/tokenizer"
)

// ErrTimeout marks a generation call that exceeded its deadline, so the
// calling step can say "request timed out" instead of a generic failure.
var ErrTimeout = errors.New("ai: generation timed out")

const (
	defaultBaseURL     = "https://api.openai.com/v1"
	defaultModel       = "gpt-4o-mini"
	defaultTimeout     = 30 * time.Second
	defaultTokenBudget = 3000
)

// ChatMessage is one turn of history forwarded to the backend.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Generator produces a reply from user input and prior history.
type Generator interface {
	Generate(ctx context.Context, input string, history []ChatMessage) (string, error)
}

// Option configures the client.
type Option func(*Client)

// WithBaseURL sets a custom API base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithModel sets the model name.
func WithModel(model string) Option {
	return func(c *Client) {
		c.model = model
	}
}

// WithTimeout bounds each generation call.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithTokenBudget caps the history tokens forwarded per call.
func WithTokenBudget(budget int) Option {
	return func(c *Client) {
		c.tokenBudget = budget
	}
}

// Client calls an OpenAI-compatible chat completions endpoint.
type Client struct {
	apiKey      string
	baseURL     string
	model       string
	timeout     time.Duration
	tokenBudget int
	httpClient  *http.Client
	codec       tokenizer.Codec
}

// NewClient creates a generation client.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:      apiKey,
		baseURL:     defaultBaseURL,
		model:       defaultModel,
		timeout:     defaultTimeout,
		tokenBudget: defaultTokenBudget,
		httpClient:  http.DefaultClient,
	}
	// Codec failure degrades to a rune-count estimate in countTokens.
	if codec, err := tokenizer.Get(tokenizer.Cl100kBase); err == nil {
		c.codec = codec
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type chatCompletionRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message ChatMessage `json:"message"`
	} `json:"choices"`
}

// Generate sends history plus the new input and returns the assistant
// text. The call races a timeout; exceeding it yields ErrTimeout.
func (c *Client) Generate(ctx context.Context, input string, history []ChatMessage) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	messages := append(c.trimHistory(history), ChatMessage{Role: "user", Content: input})
	body, err := json.Marshal(chatCompletionRequest{Model: c.model, Messages: messages})
	if err != nil {
		return "", fmt.Errorf("marshal generation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create generation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return "", fmt.Errorf("generation request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read generation response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("generation API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var result chatCompletionResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("unmarshal generation response: %w", err)
	}
	if len(result.Choices) == 0 || result.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("generation API returned no content")
	}
	return result.Choices[0].Message.Content, nil
}

// trimHistory drops the oldest turns until the remainder fits the token
// budget. The newest context matters most, so trimming walks backwards.
func (c *Client) trimHistory(history []ChatMessage) []ChatMessage {
	total := 0
	for i := len(history) - 1; i >= 0; i-- {
		total += c.countTokens(history[i].Content)
		if total > c.tokenBudget {
			return history[i+1:]
		}
	}
	return history
}

func (c *Client) countTokens(text string) int {
	if c.codec != nil {
		if ids, _, err := c.codec.Encode(text); err == nil {
			return len(ids)
		}
	}
	// Rough estimate: one token per four characters.
	return len(text)/4 + 1
}
