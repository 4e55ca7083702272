// Package metrics records dispatch outcomes and usage. Recording is
// fire-and-forget: the dispatch pipeline must never block on metrics
// storage, so writes are buffered and flushed by a single background
// writer.
package metrics

import "time"

// Outcome classifies one dispatch.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// CacheStatus reports how the response cache behaved for a dispatch.
type CacheStatus string

const (
	CacheHit      CacheStatus = "hit"
	CacheMiss     CacheStatus = "miss"
	CacheBypassed CacheStatus = "bypassed"
)

// Sample is one dispatch's worth of telemetry.
type Sample struct {
	EventKind        string
	Outcome          Outcome
	CacheStatus      CacheStatus
	Persona          string
	DryRun           bool
	ContextGather    time.Duration
	ProviderCall     time.Duration
	Output           time.Duration
	PromptTokens     int
	CompletionTokens int
	CreatedAt        time.Time
}

// Summary aggregates recorded samples for the diagnostics surface.
type Summary struct {
	Total          int     `json:"total"`
	Succeeded      int     `json:"succeeded"`
	Failed         int     `json:"failed"`
	CacheHits      int     `json:"cache_hits"`
	CacheMisses    int     `json:"cache_misses"`
	PromptTokens   int     `json:"prompt_tokens"`
	DroppedSamples int64   `json:"dropped_samples"`
	AvgProviderMS  float64 `json:"avg_provider_ms"`
}

// Recorder accepts samples without blocking the caller.
type Recorder interface {
	Record(s Sample)
	Close() error
}

// Noop discards every sample.
type Noop struct{}

// Record implements Recorder.
func (Noop) Record(Sample) {}

// Close implements Recorder.
func (Noop) Close() error { return nil }

var _ Recorder = Noop{}
