package output

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// Synthesizer turns text into 16-bit LE mono PCM. Implementations must
// make no external call in dry-run mode.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, dryRun bool) ([]byte, error)
}

// Player renders PCM to the audio device; *audio.Output satisfies it.
type Player interface {
	Play(pcm []byte) error
}

const elevenDefaultBaseURL = "https://api.elevenlabs.io/v1"

// ElevenLabsOption configures the speech backend.
type ElevenLabsOption func(*ElevenLabs)

// WithSpeechBaseURL points the synthesizer at a compatible endpoint.
func WithSpeechBaseURL(baseURL string) ElevenLabsOption {
	return func(e *ElevenLabs) { e.baseURL = baseURL }
}

// WithSpeechHTTPClient sets a custom HTTP client.
func WithSpeechHTTPClient(client *http.Client) ElevenLabsOption {
	return func(e *ElevenLabs) { e.httpClient = client }
}

// ElevenLabs synthesizes speech over the ElevenLabs REST API,
// requesting raw PCM at the audio context's sample rate so the player
// can consume the body directly.
type ElevenLabs struct {
	apiKey     string
	voiceID    string
	modelID    string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewElevenLabs creates the speech backend. modelID may be empty to
// use the API's default.
func NewElevenLabs(apiKey, voiceID, modelID string, logger *slog.Logger, opts ...ElevenLabsOption) *ElevenLabs {
	if logger == nil {
		logger = slog.Default()
	}
	e := &ElevenLabs{
		apiKey:     apiKey,
		voiceID:    voiceID,
		modelID:    modelID,
		baseURL:    elevenDefaultBaseURL,
		httpClient: http.DefaultClient,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type synthesisRequest struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id,omitempty"`
}

// Synthesize implements Synthesizer.
func (e *ElevenLabs) Synthesize(ctx context.Context, text string, dryRun bool) ([]byte, error) {
	if dryRun {
		e.logger.Info("[dry-run] would synthesize speech", slog.String("text", text))
		return nil, nil
	}
	if text == "" {
		return nil, nil
	}

	payload, err := json.Marshal(synthesisRequest{Text: text, ModelID: e.modelID})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	url := fmt.Sprintf("%s/text-to-speech/%s?output_format=pcm_24000", e.baseURL, e.voiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", e.apiKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("synthesis request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("synthesis error (status %d): %s", resp.StatusCode, body)
	}

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	return pcm, nil
}

var _ Synthesizer = (*ElevenLabs)(nil)
