package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// OpenAIConfig configures an OpenAI-compatible chat-completions provider.
// Groq and OpenRouter both speak this dialect, so the fallback chain is a
// matter of base URL and key.
type OpenAIConfig struct {
	// Name identifies this provider instance ("groq", "openrouter", ...).
	Name string
	// BaseURL up to and excluding /chat/completions.
	BaseURL string
	// APIKey is sent as a bearer token.
	APIKey string
	// Models is the fallback chain, primary first.
	Models []string
	// Timeout bounds each HTTP call. Default: 60s.
	Timeout time.Duration
	// MaxBytes bounds a response body. Default: 4MB.
	MaxBytes int64
}

func (c *OpenAIConfig) defaults() {
	if c.Name == "" {
		c.Name = "openai"
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 4 * 1024 * 1024
	}
}

// OpenAI is a single-document fallback provider speaking the
// chat-completions dialect.
type OpenAI struct {
	config OpenAIConfig
	client *http.Client
}

// NewOpenAI creates a chat-completions client.
func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	cfg.defaults()
	return &OpenAI{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Name implements Provider.
func (o *OpenAI) Name() string { return o.config.Name }

// Models implements Provider.
func (o *OpenAI) Models() []string { return o.config.Models }

// SupportsBurst implements Provider. Chat-completions fallbacks are only
// asked for one document at a time.
func (o *OpenAI) SupportsBurst() bool { return false }

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

func (o *OpenAI) post(ctx context.Context, model string, req Request, stream bool) (*http.Response, error) {
	body, err := json.Marshal(chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.User},
		},
		Temperature: 1.0,
		MaxTokens:   req.MaxTokens,
		Stream:      stream,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: marshal: %w", o.config.Name, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		o.config.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s: new request: %w", o.config.Name, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.config.APIKey)

	return o.client.Do(httpReq)
}

// Generate implements Provider.
func (o *OpenAI) Generate(ctx context.Context, model string, req Request) (string, error) {
	resp, err := o.post(ctx, model, req, false)
	if err != nil {
		return "", fmt.Errorf("%s: post: %w", o.config.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", &StatusError{Provider: o.config.Name, Model: model, Code: resp.StatusCode, Body: string(snippet)}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, o.config.MaxBytes))
	if err != nil {
		return "", fmt.Errorf("%s: read body: %w", o.config.Name, err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("%s: decode: %w", o.config.Name, err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("%s: empty choices", o.config.Name)
	}
	return stripCodeFence(parsed.Choices[0].Message.Content), nil
}

// GenerateStream implements Provider.
func (o *OpenAI) GenerateStream(ctx context.Context, model string, req Request) (io.ReadCloser, error) {
	resp, err := o.post(ctx, model, req, true)
	if err != nil {
		return nil, fmt.Errorf("%s: post: %w", o.config.Name, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, &StatusError{Provider: o.config.Name, Model: model, Code: resp.StatusCode, Body: string(snippet)}
	}

	return pipeSSE(resp.Body, func(data []byte) (string, bool) {
		var chunk chatResponse
		if err := json.Unmarshal(data, &chunk); err != nil {
			return "", false
		}
		if len(chunk.Choices) == 0 {
			return "", false
		}
		return chunk.Choices[0].Delta.Content, true
	}), nil
}
