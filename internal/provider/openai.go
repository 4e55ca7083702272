package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o-mini"

	// historyWindow is how many of our own previous replies are fed
	// back as assistant turns, to keep the register consistent and
	// give the frequency penalty something to push against.
	historyWindow = 5
)

// OpenAIOption configures the OpenAI provider.
type OpenAIOption func(*OpenAI)

// WithBaseURL points the provider at an OpenAI-compatible endpoint.
func WithBaseURL(baseURL string) OpenAIOption {
	return func(p *OpenAI) {
		p.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithModel overrides the default model.
func WithModel(model string) OpenAIOption {
	return func(p *OpenAI) {
		if model != "" {
			p.model = model
		}
	}
}

// WithHTTPClient sets a custom HTTP client, e.g. one with an
// instrumented transport.
func WithHTTPClient(client *http.Client) OpenAIOption {
	return func(p *OpenAI) {
		p.httpClient = client
	}
}

// OpenAI generates messages through a chat-completions API. One
// instance keeps a rolling history of its own replies; the history is
// reset on persona switches via HistoryResetter.
type OpenAI struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *slog.Logger

	mu      sync.Mutex
	history []string
}

// NewOpenAI creates the chat-completions provider.
func NewOpenAI(apiKey string, logger *slog.Logger, opts ...OpenAIOption) *OpenAI {
	if logger == nil {
		logger = slog.Default()
	}
	p := &OpenAI{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		model:      defaultModel,
		httpClient: http.DefaultClient,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements Provider.
func (p *OpenAI) Name() string { return "openai" }

// ResetHistory implements HistoryResetter.
func (p *OpenAI) ResetHistory() {
	p.mu.Lock()
	p.history = nil
	p.mu.Unlock()
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model            string        `json:"model"`
	Messages         []chatMessage `json:"messages"`
	MaxTokens        int           `json:"max_tokens,omitempty"`
	Temperature      float64       `json:"temperature,omitempty"`
	FrequencyPenalty float64       `json:"frequency_penalty,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Generate implements Provider. In dry-run mode no HTTP request is
// made; a canned reply is returned so the rest of the pipeline still
// has something log-visible to route.
func (p *OpenAI) Generate(ctx context.Context, req Request) (Reply, error) {
	if req.DryRun {
		return Reply{Text: fmt.Sprintf("[dry-run] %s reply for persona %q", req.Mode, req.Persona.Name)}, nil
	}

	maxTokens := 60
	if req.Mode == ModeVoice {
		maxTokens = 120
	}

	messages := []chatMessage{{Role: "system", Content: systemPrompt(req)}}
	p.mu.Lock()
	for _, past := range p.history {
		messages = append(messages, chatMessage{Role: "assistant", Content: past})
	}
	p.mu.Unlock()
	messages = append(messages, chatMessage{Role: "user", Content: userPrompt(req)})

	body, err := json.Marshal(chatCompletionRequest{
		Model:            p.model,
		Messages:         messages,
		MaxTokens:        maxTokens,
		Temperature:      1.0,
		FrequencyPenalty: 0.6,
	})
	if err != nil {
		return Reply{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Reply{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return Reply{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Reply{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Reply{}, fmt.Errorf("API error (status %d): %s", resp.StatusCode, truncateBody(respBody))
	}

	var result chatCompletionResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return Reply{}, fmt.Errorf("unmarshal response: %w", err)
	}
	if len(result.Choices) == 0 {
		return Reply{}, fmt.Errorf("empty choices in response")
	}

	text := cleanReply(result.Choices[0].Message.Content)
	if text == "" {
		return Reply{}, fmt.Errorf("reply empty after cleanup")
	}

	p.mu.Lock()
	p.history = append(p.history, text)
	if len(p.history) > historyWindow {
		p.history = p.history[len(p.history)-historyWindow:]
	}
	p.mu.Unlock()

	p.logger.Debug("generated reply",
		slog.String("persona", req.Persona.Name),
		slog.Int("prompt_tokens", result.Usage.PromptTokens),
		slog.Int("completion_tokens", result.Usage.CompletionTokens))

	return Reply{
		Text:             text,
		PromptTokens:     result.Usage.PromptTokens,
		CompletionTokens: result.Usage.CompletionTokens,
	}, nil
}

func truncateBody(body []byte) string {
	const max = 200
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}

var (
	_ Provider        = (*OpenAI)(nil)
	_ HistoryResetter = (*OpenAI)(nil)
)
