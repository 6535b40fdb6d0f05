// Package llm wraps an OpenAI-compatible /v1/chat/completions endpoint
// (spec §4.2, §6): it builds the message list from prompt + conversation
// history, issues the completion request, and extracts the first
// syntactically complete JSON object from whatever free-form text the model
// returns. Grounded on original_source/src/llm/client.py, with the
// interface-wrapped-SDK construction idiom taken from
// goadesign-goa-ai/features/model/openai/client.go.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// HistoryEntry is one rendered prior turn: the worker result message plus
// optional raw output, joined the way the original's build_messages does.
type HistoryEntry struct {
	UserInput       string
	AssistantText   string
	RawOutput       string
	OutputTruncated bool
}

// ChatClient captures the subset of the go-openai client this package uses,
// so tests can substitute a stub without a live endpoint.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Options configures the client.
type Options struct {
	BaseURL     string
	APIKey      string
	Model       string
	Timeout     time.Duration
	MaxTokens   int
	Temperature float32
}

// Client is the OpsAI-facing LLM client.
type Client struct {
	chat        ChatClient
	model       string
	maxTokens   int
	temperature float32
}

// New builds a client over an already-constructed ChatClient (for tests).
func New(chat ChatClient, opts Options) *Client {
	return &Client{chat: chat, model: opts.Model, maxTokens: opts.MaxTokens, temperature: opts.Temperature}
}

// NewFromConfig builds a client talking to an OpenAI-compatible endpoint,
// defaulting the API key to a dummy value for compatible servers that don't
// require one (mirrors the original's `api_key or "dummy-key"`).
func NewFromConfig(opts Options) *Client {
	apiKey := opts.APIKey
	if apiKey == "" {
		apiKey = "dummy-key"
	}
	cfg := openai.DefaultConfig(apiKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	if opts.Timeout > 0 {
		cfg.HTTPClient.Timeout = opts.Timeout
	}
	return New(openai.NewClientWithConfig(cfg), opts)
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// BuildMessages assembles the {role, content} list from a system prompt,
// conversation history, and the current user prompt, exactly mirroring the
// original's build_messages: history entries with a truncated raw output
// get an "[OUTPUT TRUNCATED]" marker appended.
func (c *Client) BuildMessages(systemPrompt string, history []HistoryEntry, userPrompt string) []openai.ChatCompletionMessage {
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
	}

	for _, h := range history {
		if h.UserInput != "" {
			messages = append(messages, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: h.UserInput,
			})
		}
		content := h.AssistantText
		if h.RawOutput != "" {
			note := ""
			if h.OutputTruncated {
				note = " [OUTPUT TRUNCATED]"
			}
			content += fmt.Sprintf("\n\nRaw Output%s:\n%s", note, h.RawOutput)
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleAssistant,
			Content: content,
		})
	}

	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: userPrompt,
	})
	return messages
}

// Generate issues the chat completion request and returns the raw text
// response.
func (c *Client) Generate(ctx context.Context, systemPrompt string, history []HistoryEntry, userPrompt string) (string, error) {
	messages := c.BuildMessages(systemPrompt, history, userPrompt)

	resp, err := c.chat.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("llm: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

// Simple issues a single-turn completion with no conversation history,
// satisfying the narrower Generator seam workers like pkg/worker/analyze
// depend on instead of the full Generate signature.
func (c *Client) Simple(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return c.Generate(ctx, systemPrompt, nil, userPrompt)
}

// ExtractJSON recovers the first syntactically complete JSON object from a
// free-form LLM response. Port of original_source/src/llm/client.py's
// parse_json_response: (1) strip a fenced code block if present and try a
// direct parse, (2) brace-balanced scan over the (possibly fenced) text,
// (3) brace-balanced scan over the raw original response as a final
// fallback. Returns ("", false) if nothing can be recovered.
func ExtractJSON(response string) (string, bool) {
	candidate := stripFence(response)

	if isWellFormedObject(candidate) {
		return candidate, true
	}

	if obj, ok := firstBraceBalancedObject(candidate); ok && isWellFormedObject(obj) {
		return obj, true
	}

	if obj, ok := firstBraceBalancedObject(response); ok && isWellFormedObject(obj) {
		return obj, true
	}

	return "", false
}

func stripFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.Contains(trimmed, "```") {
		return trimmed
	}
	start := strings.Index(trimmed, "```")
	rest := trimmed[start+3:]
	rest = strings.TrimPrefix(rest, "json")
	rest = strings.TrimPrefix(rest, "\n")
	end := strings.Index(rest, "```")
	if end == -1 {
		return strings.TrimSpace(rest)
	}
	return strings.TrimSpace(rest[:end])
}

// firstBraceBalancedObject scans s for the first top-level {...} span with
// balanced braces, ignoring nesting depth tracking beyond a simple counter
// (the original does not attempt string/escape-aware scanning either).
func firstBraceBalancedObject(s string) (string, bool) {
	depth := 0
	start := -1
	for i, ch := range s {
		switch ch {
		case '{':
			if start == -1 {
				start = i
			}
			depth++
		case '}':
			depth--
			if depth == 0 && start != -1 {
				return s[start : i+len(string(ch))], true
			}
		}
	}
	return "", false
}

func isWellFormedObject(s string) bool {
	return jsonValid(s)
}
