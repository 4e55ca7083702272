package controller

import (
	"time"

	"github.com/banterworks/banterbot/internal/event"
	"github.com/banterworks/banterbot/internal/metrics"
)

// DispatchResult is the record of one trigger dispatch. It exists to
// feed metrics and feedback; nothing else consumes it.
type DispatchResult struct {
	Kind        event.Kind
	Outcome     metrics.Outcome
	CacheStatus metrics.CacheStatus
	Persona     string
	Text        string
	DryRun      bool
	Err         error

	ContextGather time.Duration
	ProviderCall  time.Duration
	Output        time.Duration

	PromptTokens     int
	CompletionTokens int
}

func (r DispatchResult) sample() metrics.Sample {
	return metrics.Sample{
		EventKind:        string(r.Kind),
		Outcome:          r.Outcome,
		CacheStatus:      r.CacheStatus,
		Persona:          r.Persona,
		DryRun:           r.DryRun,
		ContextGather:    r.ContextGather,
		ProviderCall:     r.ProviderCall,
		Output:           r.Output,
		PromptTokens:     r.PromptTokens,
		CompletionTokens: r.CompletionTokens,
		CreatedAt:        time.Now(),
	}
}
