package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/banterworks/banterbot/internal/session"
)

func chatServer(t *testing.T, reply string, gotReq *chatCompletionRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		if gotReq != nil {
			if err := json.NewDecoder(r.Body).Decode(gotReq); err != nil {
				t.Errorf("decode request: %v", err)
			}
		}
		fmt.Fprintf(w, `{"choices":[{"message":{"role":"assistant","content":%q}}],"usage":{"prompt_tokens":42,"completion_tokens":7}}`, reply)
	}))
}

func testRequest() Request {
	return Request{
		Persona:  session.Persona{Name: "Toxic", Style: "salty"},
		Context:  "we lost the round",
		Mode:     ModeText,
		Language: "en",
	}
}

func TestOpenAIGenerate(t *testing.T) {
	var captured chatCompletionRequest
	srv := chatServer(t, "gg ez", &captured)
	defer srv.Close()

	p := NewOpenAI("test-key", nil, WithBaseURL(srv.URL), WithModel("test-model"))
	reply, err := p.Generate(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if reply.Text != "gg ez" {
		t.Errorf("Text = %q, want \"gg ez\"", reply.Text)
	}
	if reply.PromptTokens != 42 || reply.CompletionTokens != 7 {
		t.Errorf("usage = (%d, %d), want (42, 7)", reply.PromptTokens, reply.CompletionTokens)
	}

	if captured.Model != "test-model" {
		t.Errorf("model = %q", captured.Model)
	}
	if captured.MaxTokens != 60 {
		t.Errorf("max_tokens = %d, want 60 for text mode", captured.MaxTokens)
	}
	if len(captured.Messages) != 2 {
		t.Fatalf("got %d messages, want system+user", len(captured.Messages))
	}
	if captured.Messages[0].Role != "system" || !strings.Contains(captured.Messages[0].Content, "salty") {
		t.Errorf("system prompt missing persona style: %q", captured.Messages[0].Content)
	}
	if !strings.Contains(captured.Messages[1].Content, "we lost the round") {
		t.Errorf("user prompt missing context: %q", captured.Messages[1].Content)
	}
}

func TestOpenAIVoiceModeUsesLongerBudget(t *testing.T) {
	var captured chatCompletionRequest
	srv := chatServer(t, "nice one everybody keep it up", &captured)
	defer srv.Close()

	p := NewOpenAI("test-key", nil, WithBaseURL(srv.URL))
	req := testRequest()
	req.Mode = ModeVoice
	if _, err := p.Generate(context.Background(), req); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if captured.MaxTokens != 120 {
		t.Errorf("max_tokens = %d, want 120 for voice mode", captured.MaxTokens)
	}
	if !strings.Contains(captured.Messages[0].Content, "voice chat") {
		t.Errorf("voice system prompt not used: %q", captured.Messages[0].Content)
	}
}

func TestOpenAIHistoryFeedsBackAndResets(t *testing.T) {
	var captured chatCompletionRequest
	srv := chatServer(t, "second reply", &captured)
	defer srv.Close()

	p := NewOpenAI("test-key", nil, WithBaseURL(srv.URL))
	p.history = []string{"first reply"}

	if _, err := p.Generate(context.Background(), testRequest()); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(captured.Messages) != 3 {
		t.Fatalf("got %d messages, want system+assistant+user", len(captured.Messages))
	}
	if captured.Messages[1].Role != "assistant" || captured.Messages[1].Content != "first reply" {
		t.Errorf("history turn = %+v", captured.Messages[1])
	}

	p.ResetHistory()
	if len(p.history) != 0 {
		t.Errorf("history not cleared: %v", p.history)
	}
}

func TestOpenAIHistoryWindowBounded(t *testing.T) {
	srv := chatServer(t, "latest", nil)
	defer srv.Close()

	p := NewOpenAI("test-key", nil, WithBaseURL(srv.URL))
	for i := 0; i < historyWindow; i++ {
		p.history = append(p.history, fmt.Sprintf("old %d", i))
	}
	if _, err := p.Generate(context.Background(), testRequest()); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(p.history) != historyWindow {
		t.Errorf("history length %d, want %d", len(p.history), historyWindow)
	}
	if p.history[historyWindow-1] != "latest" {
		t.Errorf("newest reply not appended: %v", p.history)
	}
}

func TestOpenAIDryRunMakesNoRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("dry-run generate reached the HTTP backend")
	}))
	defer srv.Close()

	p := NewOpenAI("test-key", nil, WithBaseURL(srv.URL))
	reply, err := p.Generate(context.Background(), Request{
		Persona: session.Persona{Name: "Toxic"},
		Mode:    ModeText,
		DryRun:  true,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.Contains(reply.Text, "dry-run") {
		t.Errorf("dry-run reply not log-visible: %q", reply.Text)
	}
}

func TestOpenAIErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"rate limited"}}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewOpenAI("test-key", nil, WithBaseURL(srv.URL))
	if _, err := p.Generate(context.Background(), testRequest()); err == nil {
		t.Fatal("expected error for non-200 status")
	}
}

func TestCleanReply(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`"gg ez"`, "gg ez"},
		{"nice clutch #Siege #gaming", "nice clutch"},
		{"gg wp \U0001F600\U0001F3AE", "gg wp"},
		{"  plain text  ", "plain text"},
		{"don't choke", "dont choke"},
	}
	for _, tt := range tests {
		if got := cleanReply(tt.in); got != tt.want {
			t.Errorf("cleanReply(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFixedAndRandomProviders(t *testing.T) {
	f := &Fixed{Message: "glhf"}
	reply, err := f.Generate(context.Background(), Request{})
	if err != nil || reply.Text != "glhf" {
		t.Errorf("Fixed.Generate = (%q, %v)", reply.Text, err)
	}

	r := NewRandom([]string{"gg", "wp"}, 1)
	reply, err = r.Generate(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Random.Generate: %v", err)
	}
	if reply.Text != "gg" && reply.Text != "wp" {
		t.Errorf("Random.Generate = %q, not from the list", reply.Text)
	}

	empty := NewRandom(nil, 0)
	reply, err = empty.Generate(context.Background(), Request{})
	if err != nil || reply.Text != "" {
		t.Errorf("empty Random.Generate = (%q, %v), want empty", reply.Text, err)
	}
}
