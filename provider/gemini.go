package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// GeminiConfig configures the burst-capable primary provider.
type GeminiConfig struct {
	// BaseURL of the generateContent API. Default: the public endpoint.
	BaseURL string
	// APIKey is sent as a query parameter.
	APIKey string
	// Models is the fallback chain, primary first.
	Models []string
	// Timeout bounds each HTTP call. Default: 90s.
	Timeout time.Duration
	// MaxBytes bounds a non-streaming response body. Default: 4MB.
	MaxBytes int64
}

func (c *GeminiConfig) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if len(c.Models) == 0 {
		c.Models = []string{"gemini-2.0-flash", "gemini-2.0-flash-lite"}
	}
	if c.Timeout <= 0 {
		c.Timeout = 90 * time.Second
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 4 * 1024 * 1024
	}
}

// Gemini is the burst-capable provider. One streamed call can carry a whole
// JSON array of documents, which matters on a per-day quota.
type Gemini struct {
	config GeminiConfig
	client *http.Client
}

// NewGemini creates a Gemini client.
func NewGemini(cfg GeminiConfig) *Gemini {
	cfg.defaults()
	return &Gemini{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Name implements Provider.
func (g *Gemini) Name() string { return "gemini" }

// Models implements Provider.
func (g *Gemini) Models() []string { return g.config.Models }

// SupportsBurst implements Provider.
func (g *Gemini) SupportsBurst() bool { return true }

type geminiRequest struct {
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
	GenerationConfig  geminiGenConfig `json:"generationConfig"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

func (g *Gemini) body(req Request) ([]byte, error) {
	gr := geminiRequest{
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: req.User}}},
		},
		GenerationConfig: geminiGenConfig{
			Temperature:     1.0,
			MaxOutputTokens: req.MaxTokens,
		},
	}
	if req.System != "" {
		gr.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.System}}}
	}
	return json.Marshal(gr)
}

func (g *Gemini) post(ctx context.Context, endpoint string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("gemini: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return g.client.Do(req)
}

// Generate implements Provider.
func (g *Gemini) Generate(ctx context.Context, model string, req Request) (string, error) {
	body, err := g.body(req)
	if err != nil {
		return "", fmt.Errorf("gemini: marshal: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		g.config.BaseURL, url.PathEscape(model), url.QueryEscape(g.config.APIKey))
	resp, err := g.post(ctx, endpoint, body)
	if err != nil {
		return "", fmt.Errorf("gemini: post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", &StatusError{Provider: g.Name(), Model: model, Code: resp.StatusCode, Body: string(snippet)}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, g.config.MaxBytes))
	if err != nil {
		return "", fmt.Errorf("gemini: read body: %w", err)
	}

	var parsed geminiResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("gemini: decode: %w", err)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini: empty candidates")
	}

	var text string
	for _, p := range parsed.Candidates[0].Content.Parts {
		text += p.Text
	}
	return stripCodeFence(text), nil
}

// GenerateStream implements Provider using the SSE streaming endpoint.
func (g *Gemini) GenerateStream(ctx context.Context, model string, req Request) (io.ReadCloser, error) {
	body, err := g.body(req)
	if err != nil {
		return nil, fmt.Errorf("gemini: marshal: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse&key=%s",
		g.config.BaseURL, url.PathEscape(model), url.QueryEscape(g.config.APIKey))
	resp, err := g.post(ctx, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("gemini: post: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, &StatusError{Provider: g.Name(), Model: model, Code: resp.StatusCode, Body: string(snippet)}
	}

	return pipeSSE(resp.Body, func(data []byte) (string, bool) {
		var chunk geminiResponse
		if err := json.Unmarshal(data, &chunk); err != nil {
			return "", false
		}
		if len(chunk.Candidates) == 0 {
			return "", false
		}
		var text string
		for _, p := range chunk.Candidates[0].Content.Parts {
			text += p.Text
		}
		return text, text != ""
	}), nil
}
