// Package provider defines the message-generation backend contract and
// its implementations. The controller depends only on the Provider
// interface; backends are selected by configuration.
package provider

import (
	"context"

	"github.com/banterworks/banterbot/internal/session"
)

// Mode selects the shape of the generated message.
type Mode string

const (
	// ModeText produces a short typed chat message.
	ModeText Mode = "text"
	// ModeVoice produces a line meant to be spoken aloud.
	ModeVoice Mode = "voice"
)

// Request carries the semantic fields of one generation. DryRun asks
// the backend to produce a log-visible result without any external
// side effect; every implementation must honor it.
type Request struct {
	Persona  session.Persona
	Context  string
	Mode     Mode
	Language string
	DryRun   bool
}

// Reply is a generated message plus the token usage it cost.
type Reply struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
}

// Provider generates a message for a persona/context/mode tuple. It
// must be safe to call repeatedly with identical arguments; results
// are cached upstream.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req Request) (Reply, error)
}

// HistoryResetter is implemented by providers that keep a rolling
// conversation history; the controller resets it on persona switches
// so one persona's register does not bleed into the next.
type HistoryResetter interface {
	ResetHistory()
}
