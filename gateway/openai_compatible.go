package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/roundtable-ai/roundtable/types"
)

// OpenAICompatible implements Generator against any endpoint speaking the
// OpenAI chat-completions format (OpenAI, Mistral, Perplexity, local
// gateways). Anthropic-style endpoints are bridged by upstream proxies; this
// adapter only speaks the one wire format.
type OpenAICompatible struct {
	cfg    ProviderConfig
	client *http.Client
	logger *zap.Logger
}

// NewOpenAICompatible creates a chat-completions adapter.
func NewOpenAICompatible(cfg ProviderConfig, logger *zap.Logger) *OpenAICompatible {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &OpenAICompatible{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		logger: logger.With(zap.String("component", "gateway"), zap.String("provider", cfg.Name)),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Generate sends one chat completion for the personality.
//
// History is mapped so the speaking personality sees its own prior messages
// as assistant turns and everyone else's (user and other personalities) as
// user turns carrying the sender's name — providers reject multi-assistant
// transcripts otherwise.
func (g *OpenAICompatible) Generate(ctx context.Context, p types.Personality, prompt string, history []types.Message) (*Result, error) {
	messages := make([]chatMessage, 0, len(history)+2)
	if p.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: p.SystemPrompt})
	}
	for _, msg := range history {
		if msg.SenderID == p.NameID {
			messages = append(messages, chatMessage{Role: "assistant", Content: msg.Content})
			continue
		}
		m := chatMessage{Role: "user", Content: msg.Content}
		if msg.IsAI() {
			m.Name = msg.SenderID
		}
		messages = append(messages, m)
	}
	messages = append(messages, chatMessage{Role: "user", Content: prompt})

	reqBody := chatRequest{
		Model:       p.Model,
		Messages:    messages,
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, types.NewError(types.ErrProvider, "encode request").WithCause(err).WithProvider(g.cfg.Name)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, types.NewError(types.ErrProvider, "build request").WithCause(err).WithProvider(g.cfg.Name)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
	}

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, types.NewError(types.ErrProvider, "request failed").
			WithCause(err).WithProvider(g.cfg.Name).WithRetryable(true)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, types.NewError(types.ErrProvider, "read response").WithCause(err).WithProvider(g.cfg.Name)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, g.mapHTTPError(resp.StatusCode, body)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, types.NewError(types.ErrProvider, "decode response").WithCause(err).WithProvider(g.cfg.Name)
	}
	if parsed.Error != nil {
		return nil, types.NewErrorf(types.ErrProvider, "provider error: %s", parsed.Error.Message).WithProvider(g.cfg.Name)
	}
	if len(parsed.Choices) == 0 {
		return nil, types.NewError(types.ErrProvider, "empty response: no choices").WithProvider(g.cfg.Name)
	}

	content := parsed.Choices[0].Message.Content
	tokens := parsed.Usage.TotalTokens
	if tokens == 0 {
		tokens = EstimateTokens(p.Model, prompt, content)
	}

	duration := time.Since(start)
	g.logger.Debug("generation completed",
		zap.String("personality", p.NameID),
		zap.String("model", p.Model),
		zap.Int("tokens", tokens),
		zap.Duration("duration", duration),
	)

	return &Result{
		Content:        content,
		TokensUsed:     tokens,
		ProcessingTime: duration,
		Provider:       g.cfg.Name,
		Model:          p.Model,
	}, nil
}

func (g *OpenAICompatible) mapHTTPError(status int, body []byte) *types.Error {
	msg := fmt.Sprintf("upstream status %d", status)
	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error != nil {
		msg = parsed.Error.Message
	}

	e := types.NewError(types.ErrProvider, msg).WithProvider(g.cfg.Name).WithHTTPStatus(status)
	switch {
	case status == http.StatusTooManyRequests:
		return e.WithRetryable(true)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return e.WithRetryable(false)
	case status >= 500:
		return e.WithRetryable(true)
	default:
		return e.WithRetryable(false)
	}
}

var _ Generator = (*OpenAICompatible)(nil)
