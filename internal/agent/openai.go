package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"kirabridge/internal/domain"
	"kirabridge/internal/httpclient"

	"golang.org/x/time/rate"
)

const (
	defaultOpenAIBase  = "https://api.openai.com/v1"
	defaultOpenAIModel = "gpt-4o-mini"
	defaultRecentTurns = 10
)

// OpenAIConfig configures an OpenAI-compatible chat completions agent.
type OpenAIConfig struct {
	APIBase       string
	APIKey        string
	Model         string
	MaxTokens     int
	Temperature   float64
	Timeout       time.Duration
	Retry         httpclient.RetryPolicy
	RatePerMinute float64 // 0 disables client-side rate limiting
	RecentTurns   int     // conversation messages replayed before the current one
	Logger        *slog.Logger
}

// OpenAI sends the composed prompt, context and conversation to a
// /chat/completions endpoint.
type OpenAI struct {
	apiBase     string
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	recentTurns int
	retry       httpclient.RetryPolicy
	client      *http.Client
	limiter     *rate.Limiter
	logger      *slog.Logger
}

func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	if cfg.APIBase == "" {
		cfg.APIBase = defaultOpenAIBase
	}
	if cfg.Model == "" {
		cfg.Model = defaultOpenAIModel
	}
	if cfg.Retry == (httpclient.RetryPolicy{}) {
		cfg.Retry = httpclient.DefaultRetry
	}
	if cfg.RecentTurns <= 0 {
		cfg.RecentTurns = defaultRecentTurns
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &OpenAI{
		apiBase:     strings.TrimRight(cfg.APIBase, "/"),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		recentTurns: cfg.RecentTurns,
		retry:       cfg.Retry,
		client:      httpclient.Shared(cfg.Timeout),
		limiter:     newRateLimiter(cfg.RatePerMinute, 5),
		logger:      cfg.Logger,
	}
}

func (o *OpenAI) Name() string { return "openai" }

type oaiRequest struct {
	Model       string       `json:"model"`
	Messages    []oaiMessage `json:"messages"`
	MaxTokens   int          `json:"max_tokens,omitempty"`
	Temperature *float64     `json:"temperature,omitempty"`
	Stream      bool         `json:"stream"`
}

type oaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

type oaiResponse struct {
	Choices []struct {
		Message      oaiMessage `json:"message"`
		FinishReason string     `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (o *OpenAI) Respond(ctx context.Context, req domain.AgentRequest) (string, error) {
	if req.Message == nil {
		return "", fmt.Errorf("openai: request has no message")
	}
	if err := waitLimit(ctx, o.limiter); err != nil {
		return "", fmt.Errorf("openai: rate limit wait: %w", err)
	}

	body := oaiRequest{
		Model:     o.model,
		Messages:  o.buildMessages(req),
		MaxTokens: o.maxTokens,
	}
	if o.temperature > 0 {
		body.Temperature = &o.temperature
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("openai: marshal: %w", err)
	}

	resp, err := httpclient.DoWithRetry(ctx, o.client, o.retry, func() (*http.Request, error) {
		r, err := http.NewRequestWithContext(ctx, http.MethodPost, o.apiBase+"/chat/completions", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		r.Header.Set("Content-Type", "application/json")
		if o.apiKey != "" {
			r.Header.Set("Authorization", "Bearer "+o.apiKey)
		}
		return r, nil
	}, o.logger)
	if err != nil {
		return "", fmt.Errorf("openai request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("openai: %w", &httpclient.StatusError{StatusCode: resp.StatusCode, Body: string(respBody)})
	}

	var out oaiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("openai: decode: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", nil
	}
	o.logger.Debug("openai reply",
		"model", o.model,
		"finish_reason", out.Choices[0].FinishReason,
		"prompt_tokens", out.Usage.PromptTokens,
		"completion_tokens", out.Usage.CompletionTokens,
	)
	return out.Choices[0].Message.Content, nil
}

// buildMessages lays out system prompt, assembled context, the tail of the
// conversation and finally the current message.
func (o *OpenAI) buildMessages(req domain.AgentRequest) []oaiMessage {
	system := req.SystemPrompt
	if strings.TrimSpace(req.Context) != "" {
		if system != "" {
			system += "\n\n"
		}
		system += "# Context\n\n" + req.Context
	}

	var msgs []oaiMessage
	if system != "" {
		msgs = append(msgs, oaiMessage{Role: "system", Content: system})
	}

	if req.Conversation != nil {
		recent := req.Conversation.RecentMessages
		if len(recent) > o.recentTurns {
			recent = recent[len(recent)-o.recentTurns:]
		}
		for _, m := range recent {
			if m.Text == req.Message.Text && m.Timestamp == req.Message.Timestamp {
				continue
			}
			msgs = append(msgs, oaiMessage{Role: "user", Content: m.Text, Name: speakerName(m)})
		}
	}

	return append(msgs, oaiMessage{Role: "user", Content: req.Message.Text, Name: speakerName(*req.Message)})
}

// speakerName returns a name accepted by the API's name field ([a-zA-Z0-9_-]).
func speakerName(m domain.CanonicalMessage) string {
	name := m.UserName
	if name == "" {
		name = m.UserID
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('_')
		}
		if b.Len() >= 64 {
			break
		}
	}
	return b.String()
}
